// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

// maxStackDepth is the fiber stack-overflow contract: a frame at depth
// 1000 may still be dispatched, depth 1001 faults.
const maxStackDepth = 1000

// LabelFn is one compiled basic block. It advances the frame's program
// counter and returns the next frame to run: usually s itself with a
// mutated PC, a child frame prepared by [Runtime.ActionCall], the parent
// returned by [Leave], or nil to park the fiber.
type LabelFn func(rt *Runtime, s *Frame) *Frame

// Frame is one activation record on a fiber stack.
//
// The chain reached by following Parent is acyclic and ends at a
// sentinel whose Fn delivers Retval to the outer completion callback.
// Depth along the chain decreases by exactly 1 per hop.
type Frame struct {
	Fn     LabelFn
	PC     int
	Parent *Frame
	Depth  int

	// R0 is the scratch register preserved across yields.
	R0     any
	Retval any

	// OverwrittenPC is raised by OverwriteResume to force the loop to
	// re-dispatch this frame instead of following the returned frame.
	OverwrittenPC bool

	// FinalCallback, when set, observes the return value exactly once
	// as this frame leaves.
	FinalCallback func(v any)

	LambdaArgs []any
	Caps       []any

	// Locals holds the frame's named local variables for debugger
	// inspection. Compiled code maintains it only when a debugger is
	// attached.
	Locals map[string]any

	// LastBrkID is the last breakpoint id crossed, kept for exception
	// context in breakpoint-shaped error messages.
	LastBrkID int
}

// Leave is the universal return primitive: deposits v in the parent's
// Retval, fires the frame's final callback if one was installed, and
// hands control back to the parent.
func Leave(s *Frame, v any) *Frame {
	s.Parent.Retval = v
	if cb := s.FinalCallback; cb != nil {
		s.FinalCallback = nil
		cb(v)
	}
	return s.Parent
}

// ActionCall prepares a child frame for dispatch. The frame must already
// carry Fn, Parent and any lambda args/caps; ActionCall assigns depth,
// enforces the stack cap, resets the program counter, and optionally
// binds cb as the frame's final callback.
func (rt *Runtime) ActionCall(s *Frame, cb func(v any)) *Frame {
	if cb != nil {
		s.FinalCallback = cb
	}
	s.Depth = s.Parent.Depth + 1
	if s.Depth > maxStackDepth {
		UserError("stack overflow")
	}
	s.PC = 0
	return s
}

// setupTopCore fabricates the sentinel bottom frame. Its Fn delivers the
// deposited Retval to cb and returns nil, terminating the loop cleanly.
func (rt *Runtime) setupTopCore(cb func(v any)) *Frame {
	top := &Frame{
		Fn: func(_ *Runtime, s *Frame) *Frame {
			if cb != nil {
				cb(s.Retval)
			}
			return nil
		},
	}
	return top
}

// setupTop produces a fresh sentinel for an independent fiber and
// re-binds the module-level current runtime for code reached from it.
func (rt *Runtime) setupTop(cb func(v any)) *Frame {
	rt.bind()
	return rt.setupTopCore(cb)
}

// actionFrame builds the root frame of an action dispatch under parent.
func actionFrame(parent *Frame, a *RefAction, args []any) *Frame {
	return &Frame{
		Fn:         a.Fn,
		Parent:     parent,
		Caps:       a.Caps,
		LambdaArgs: args,
	}
}
