// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

// Fiber is the completion handle of a frame chain spawned by
// RunFiberAsync.
type Fiber struct {
	done   chan struct{}
	result any
}

// Done is closed when the fiber's sentinel fires (or when the runtime
// died before the fiber could start).
func (f *Fiber) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the fiber completes and returns its final value.
func (f *Fiber) Await() any {
	<-f.done
	return f.result
}

// RunFiberAsync starts an independent fiber running a on the shared
// interpreter loop. Accepts up to three arguments. The action holds a
// reference across the dispatch; the pair is balanced once the action
// has begun running.
func (rt *Runtime) RunFiberAsync(a *RefAction, args ...any) *Fiber {
	assert(len(args) <= 3, "too many fiber arguments")
	rt.IncrRef(&a.RefObject)
	f := &Fiber{done: make(chan struct{})}
	rt.sched.post(func() {
		if rt.Dead() {
			close(f.done)
			return
		}
		rt.runAction(a, args, func(v any) {
			f.result = v
			close(f.done)
		})
		rt.DecrRef(&a.RefObject)
	})
	return f
}

// runAction dispatches an action as a fresh fiber under its own
// sentinel. cb observes the fiber's final value. Scheduler goroutine
// only.
func (rt *Runtime) runAction(a *RefAction, args []any, cb func(v any)) {
	top := rt.setupTop(cb)
	s := actionFrame(top, a, args)
	rt.enterLoop(rt.ActionCall(s, nil))
}
