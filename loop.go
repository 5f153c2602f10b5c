// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import "runtime/debug"

// enterLoop re-enters the interpreter, deferring to the wait list when
// a loop lock is held. Fiber starts and debugger resumes go through
// here so the loop's lock assertion stays sound.
func (rt *Runtime) enterLoop(p *Frame) {
	if rt.loopLock != nil {
		rt.waitList = append(rt.waitList, func() { rt.enterLoop(p) })
		return
	}
	rt.loop(p)
}

// loop drives the frame-threaded trampoline: run the current frame's
// label function, follow the frame it returns, stop when the chain
// terminates (sentinel fired or fiber parked).
//
// Only one activation of loop may be on the call stack at a time;
// re-entries go through the scheduler, never recursively.
func (rt *Runtime) loop(p *Frame) {
	assert(rt.loopLock == nil, "loop entered while lock held")
	rt.bind()
	defer func() {
		if e := recover(); e != nil {
			rt.handleLoopError(e)
		}
	}()
	for p != nil {
		if rt.Dead() {
			return
		}
		rt.currFrame = p
		p.OverwrittenPC = false
		next := p.Fn(rt, p)
		if rt.displayUpdates.Load() > 0 {
			rt.displayUpdates.Store(0)
			rt.board.UpdateView()
		}
		if p.OverwrittenPC {
			// a native extension patched the pc via OverwriteResume;
			// re-dispatch the same frame instead of following next
			next = p
		}
		p = next
	}
}

// handleLoopError surfaces a fault recovered at the loop boundary. The
// faulting fiber does not resume; the runtime stays alive for debugger
// traffic until the host kills it.
func (rt *Runtime) handleLoopError(e any) {
	err := throwFiberError(e)
	if err.ExceptionStack == "" {
		err.ExceptionStack = string(debug.Stack())
	}
	rt.log.Error("uncaught program error", "id", rt.id, "err", err.Message)
	if h := rt.errorHandler; h != nil {
		h(err)
		return
	}
	brkID := 0
	s := rt.currFrame
	if s != nil {
		brkID = s.LastBrkID
	}
	msg, _ := rt.getBreakpointMsg(s, brkID)
	msg.ExceptionMessage = err.Message
	msg.ExceptionStack = err.ExceptionStack
	rt.postMessage(msg)
	if rt.postError != nil {
		rt.postError(err)
	}
}
