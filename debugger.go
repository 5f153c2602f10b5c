// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import (
	"time"

	"code.hybscloud.com/kont"
)

// debuggerState is the in-process debugger: breakpoint set, step-mode
// anchors, the one-shot command resume of the paused fiber, and the
// heap snapshot valid while paused.
type debuggerState struct {
	breakpoints []byte
	breakAlways bool

	// breakFrame anchors step-over/step-out: with it set, breakAlways
	// only stops frames on its ancestor chain.
	breakFrame *Frame

	resume       func(m *DebuggerRequest)
	heap         map[int]map[string]any
	tracePauseMs int
}

// setupDebugger sizes the breakpoint table for the loaded program and
// resets step state.
func (rt *Runtime) setupDebugger(numBreakpoints int) {
	rt.dbg.breakpoints = make([]byte, numBreakpoints)
	rt.dbg.breakAlways = false
	rt.dbg.breakFrame = nil
}

// BreakpointEnabled reports whether id is in the configured set.
func (rt *Runtime) BreakpointEnabled(id int) bool {
	bp := rt.dbg.breakpoints
	return id >= 0 && id < len(bp) && bp[id] != 0
}

// ShouldBreak is the predicate label functions consult at mapped source
// locations before calling Breakpoint.
func (rt *Runtime) ShouldBreak(s *Frame, id int) bool {
	return rt.BreakpointEnabled(id) || (rt.dbg.breakAlways && rt.isBreakFrame(s))
}

// isBreakFrame reports whether s anchors the current step scope: true
// with no break frame set, else true iff s lies on the break frame's
// ancestor chain.
func (rt *Runtime) isBreakFrame(s *Frame) bool {
	if rt.dbg.breakFrame == nil {
		return true
	}
	for p := rt.dbg.breakFrame; p != nil; p = p.Parent {
		if p == s {
			return true
		}
	}
	return false
}

// Breakpoint parks the fiber at a mapped source location: snapshots
// pc and scratch register, posts the breakpoint message with a fresh
// heap snapshot, and installs the one-shot command resume. Returns nil
// so the label function exits the loop.
func (rt *Runtime) Breakpoint(s *Frame, retPC, brkID int, r0 any) *Frame {
	assert(rt.dbg.resume == nil, "debugger already paused")
	s.PC = retPC
	s.R0 = r0
	s.LastBrkID = brkID
	msg, heap := rt.getBreakpointMsg(s, brkID)
	rt.dbg.heap = heap
	rt.postMessage(msg)
	once := kont.Once(func(v kont.Resumed) kont.Resumed {
		rt.dbgResumeCore(s, v.(*DebuggerRequest))
		return nil
	})
	rt.dbg.resume = func(m *DebuggerRequest) { once.TryResume(m) }
	return nil
}

// dbgResumeCore interprets a step command against the paused frame and
// re-enters the loop. Scheduler goroutine only.
func (rt *Runtime) dbgResumeCore(s *Frame, m *DebuggerRequest) {
	rt.dbg.resume = nil
	rt.dbg.heap = nil
	if rt.Dead() {
		return
	}
	rt.bind()
	switch m.Subtype {
	case "resume":
		rt.dbg.breakAlways = false
		rt.dbg.breakFrame = nil
	case "stepover":
		rt.dbg.breakAlways = true
		rt.dbg.breakFrame = s
	case "stepinto":
		rt.dbg.breakAlways = true
		rt.dbg.breakFrame = nil
	case "stepout":
		rt.dbg.breakAlways = true
		if s.Parent != nil {
			rt.dbg.breakFrame = s.Parent
		} else {
			rt.dbg.breakFrame = s
		}
	}
	rt.enterLoop(s)
}

// handleDebuggerMsg dispatches an inbound debugger command. Scheduler
// goroutine only.
func (rt *Runtime) handleDebuggerMsg(m *DebuggerRequest) {
	switch m.Subtype {
	case "config":
		for i := range rt.dbg.breakpoints {
			rt.dbg.breakpoints[i] = 0
		}
		for _, id := range m.SetBreakpoints {
			if id >= 0 && id < len(rt.dbg.breakpoints) {
				rt.dbg.breakpoints[id] = 1
			}
		}
	case "traceConfig":
		rt.dbg.tracePauseMs = m.Interval
	case "pause":
		rt.dbg.breakAlways = true
		rt.dbg.breakFrame = nil
	case "variables":
		rt.handleVariablesRequest(m)
	case "resume", "stepover", "stepinto", "stepout":
		if r := rt.dbg.resume; r != nil {
			r(m)
		}
	}
}

// handleVariablesRequest resolves a variables reference against the
// paused heap snapshot; outside a pause the response carries no
// variables.
func (rt *Runtime) handleVariablesRequest(m *DebuggerRequest) {
	var vars map[string]any
	if rt.dbg.heap != nil {
		vars = rt.dbg.heap[m.VariablesReference]
	}
	rt.postMessage(&VariablesMessage{
		Type:      "debugger",
		Subtype:   "variables",
		ReqSeq:    m.Seq,
		Variables: vars,
	})
}

// getBreakpointMsg builds the breakpoint envelope for the chain rooted
// at s, together with the heap snapshot mapping each stack frame's
// variables reference to its locals.
func (rt *Runtime) getBreakpointMsg(s *Frame, brkID int) (*BreakpointMessage, map[int]map[string]any) {
	heap := make(map[int]map[string]any)
	msg := &BreakpointMessage{
		Type:         "debugger",
		Subtype:      "breakpoint",
		BreakpointID: brkID,
	}
	ref := 1
	for p := s; p != nil && p.Parent != nil; p = p.Parent {
		vars := p.Locals
		if vars == nil {
			vars = map[string]any{}
		}
		heap[ref] = vars
		msg.Stackframes = append(msg.Stackframes, StackFrameInfo{
			BreakpointID:       p.LastBrkID,
			Depth:              p.Depth,
			VariablesReference: ref,
		})
		ref++
	}
	return msg, heap
}

// TracePoint is a source-mapped safepoint location.
type TracePoint struct {
	Function string
	File     string
}

// Trace is called by label functions at traced positions. Positions in
// the main entry or main source file post a trace message and pause the
// fiber for the configured interval; other positions just yield through
// the scheduler.
func (rt *Runtime) Trace(brkID int, s *Frame, retPC int, tp *TracePoint) *Frame {
	pause := time.Duration(rt.dbg.tracePauseMs) * time.Millisecond
	if rt.inMainFile(tp) {
		rt.postMessage(&TraceMessage{Type: "debugger", Subtype: "trace", BreakpointID: brkID})
	} else {
		pause = 0
	}
	s.LastBrkID = brkID
	ret := rt.Sleep(s, retPC, pause)
	rt.checkResumeConsumed()
	return ret
}

func (rt *Runtime) inMainFile(tp *TracePoint) bool {
	if tp == nil {
		return true
	}
	if tp.Function == "main" {
		return true
	}
	return rt.program != nil && tp.File == rt.program.MainFile
}
