// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import (
	"time"

	"code.hybscloud.com/kont"
)

// ResumeFn is the one-shot continuation handed to a native extension.
// Invoking it re-enters the interpreter with the extension's return
// value; it may be called from any goroutine. Reuse is a silent no-op.
type ResumeFn func(v any)

// FnWrapper asks the resume mechanism to tail-call a function-like
// value instead of delivering it: the runtime builds the child frame
// itself so the frame-chain invariants hold.
type FnWrapper struct {
	Action   *RefAction
	Args     []any
	Callback func(v any)
}

// loopLock is the sentinel installed while the loop is quiescent but
// about to re-enter. While held, incoming resumes are parked on the
// wait list instead of entering the loop.
type loopLock struct {
	cause string
}

func (rt *Runtime) startLoopLock(cause string) *loopLock {
	assert(rt.loopLock == nil, "nested loop lock")
	l := &loopLock{cause: cause}
	rt.loopLock = l
	return l
}

func (rt *Runtime) stopLoopLock(l *loopLock) {
	assert(rt.loopLock == l, "mismatched loop lock release")
	rt.loopLock = nil
}

// flushLoopLock replays resumes deferred during a lock hold. A replayed
// resume may itself install a new lock, which stops the flush; the
// remainder replays on the next flush.
func (rt *Runtime) flushLoopLock() {
	for len(rt.waitList) > 0 && rt.loopLock == nil {
		f := rt.waitList[0]
		rt.waitList = rt.waitList[1:]
		f()
	}
}

// SetupResume stores a one-shot resume for the suspension site at
// retPC. The previous site's resume must have been consumed.
func (rt *Runtime) SetupResume(s *Frame, retPC int) {
	rt.checkResumeConsumed()
	s.PC = retPC
	rt.currResume = rt.buildResume(s, retPC)
}

// checkResumeConsumed asserts the pending resume, if any, was taken.
func (rt *Runtime) checkResumeConsumed() {
	if rt.currResume != nil {
		oops("getResume() not called")
	}
}

// GetResume consumes the pending resume installed by SetupResume.
func (rt *Runtime) GetResume() ResumeFn {
	if rt.currResume == nil {
		oops("noresume")
	}
	r := rt.currResume
	rt.currResume = nil
	return r
}

// GetResume consumes the pending resume of the current runtime. For
// extension code that is handed control without a runtime reference.
func GetResume() ResumeFn {
	return Current().GetResume()
}

// OverwriteResume is called by an extension that did not need to
// suspend after all: the stored resume is discarded, the pc is patched
// when retPC is non-negative, and the loop is told to re-dispatch the
// current frame instead of following its returned next-frame.
func (rt *Runtime) OverwriteResume(retPC int) {
	rt.currResume = nil
	if retPC >= 0 {
		rt.currFrame.PC = retPC
	}
	rt.currFrame.OverwrittenPC = true
}

// buildResume closes a one-shot continuation over the parked frame and
// its expected return pc. kont.Once enforces the affine contract: the
// second and later invocations do not reach the scheduler at all.
func (rt *Runtime) buildResume(s *Frame, retPC int) ResumeFn {
	once := kont.Once(func(v kont.Resumed) kont.Resumed {
		rt.sched.post(func() { rt.resumeCore(s, retPC, v) })
		return nil
	})
	return func(v any) {
		if rt.Dead() {
			return
		}
		once.TryResume(v)
	}
}

// resumeCore re-enters the interpreter with a resumed value. Scheduler
// goroutine only.
func (rt *Runtime) resumeCore(s *Frame, retPC int, v any) {
	if rt.Dead() {
		return
	}
	if rt.loopLock != nil {
		rt.waitList = append(rt.waitList, func() { rt.resumeCore(s, retPC, v) })
		return
	}
	rt.bind()
	if w, ok := v.(*FnWrapper); ok {
		// Tail dispatch: the child leaves into s, and the loop then
		// continues s at retPC with the child's return value in place.
		// The lock bounces through the scheduler so a tail-called
		// function that completes synchronously cannot grow the stack.
		child := actionFrame(s, w.Action, w.Args)
		child.FinalCallback = w.Callback
		lock := rt.startLoopLock("tailcall")
		rt.sched.post(func() {
			if rt.Dead() {
				return
			}
			rt.bind()
			rt.stopLoopLock(lock)
			rt.loop(rt.ActionCall(child, nil))
			rt.flushLoopLock()
		})
		return
	}
	s.Retval = v
	assert(s.PC == retPC, "frame pc moved before resume")
	rt.loop(s)
	rt.flushLoopLock()
}

// Sleep parks the current fiber for d and resumes it with nil. This is
// the canonical suspending extension; trace pauses reuse it.
func (rt *Runtime) Sleep(s *Frame, retPC int, d time.Duration) *Frame {
	rt.SetupResume(s, retPC)
	resume := rt.GetResume()
	rt.sched.postDelayed(d, func() { resume(nil) })
	return nil
}
