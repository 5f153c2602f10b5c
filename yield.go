// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import "time"

// The cooperation budget with the host event loop: run inline for at
// most yieldPeriod, then break out and come back after yieldDelay.
const (
	yieldPeriod = 20 * time.Millisecond
	yieldDelay  = 5 * time.Millisecond
)

// MaybeYield is called by label functions at safepoints. When the yield
// budget is spent it snapshots the frame's pc and scratch register,
// locks the loop, schedules the re-entry, and returns true so the
// caller exits to the host. Otherwise the fiber continues inline.
//
// At most one yield fires per budget window: two consecutive calls with
// no time advance cannot both yield.
func (rt *Runtime) MaybeYield(s *Frame, pc int, r0 any) bool {
	if time.Since(rt.lastYield) < yieldPeriod {
		return false
	}
	rt.lastYield = time.Now()
	s.PC = pc
	s.R0 = r0
	lock := rt.startLoopLock("yield")
	rt.sched.postDelayed(yieldDelay, func() {
		if rt.Dead() {
			return
		}
		rt.bind()
		rt.stopLoopLock(lock)
		rt.loop(s)
		rt.flushLoopLock()
	})
	return true
}
