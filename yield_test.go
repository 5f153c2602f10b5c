// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber_test

import (
	"testing"
	"time"

	"code.hybscloud.com/fiber"
)

func TestYieldBudget(t *testing.T) {
	rt, _ := newTestRuntime(t)

	var y0, y1, y2 bool
	var r0seen any
	entry := func(rtc *fiber.Runtime, s *fiber.Frame) *fiber.Frame {
		switch s.PC {
		case 0:
			// budget not spent yet: must continue inline
			y0 = rtc.MaybeYield(s, 0, nil)
			time.Sleep(25 * time.Millisecond) // burn the budget
			y1 = rtc.MaybeYield(s, 1, "a")
			y2 = rtc.MaybeYield(s, 1, "b") // same window: at most one yield
			if y1 {
				return nil
			}
			s.PC = 1
			return s
		case 1:
			r0seen = s.R0
			return fiber.Leave(s, "done")
		}
		return nil
	}

	v := rightValue(t, runProgram(t, rt, &fiber.Program{EntryPoint: entry}))
	if v != "done" {
		t.Fatalf("final value got %v, want done", v)
	}
	if y0 {
		t.Fatal("yielded before the budget was spent")
	}
	if !y1 {
		t.Fatal("did not yield after the budget was spent")
	}
	if y2 {
		t.Fatal("yielded twice in one budget window")
	}
	if r0seen != "a" {
		t.Fatalf("scratch register got %v, want %q", r0seen, "a")
	}
}

func TestLockDeferredResume(t *testing.T) {
	rt, _ := newTestRuntime(t)

	// fiber B parks and hands its resume out
	rch := make(chan fiber.ResumeFn, 1)
	bAction := rt.NewRefAction(0, func(rtc *fiber.Runtime, s *fiber.Frame) *fiber.Frame {
		switch s.PC {
		case 0:
			rtc.SetupResume(s, 1)
			rch <- rtc.GetResume()
			return nil
		case 1:
			return fiber.Leave(s, "b-done")
		}
		return nil
	})
	fb := rt.RunFiberAsync(bAction)
	rb := <-rch

	// the main fiber yields; B's resume lands during the lock window
	// and is replayed off the wait list
	entry := func(rtc *fiber.Runtime, s *fiber.Frame) *fiber.Frame {
		switch s.PC {
		case 0:
			time.Sleep(25 * time.Millisecond)
			if rtc.MaybeYield(s, 1, nil) {
				return nil
			}
			s.PC = 1
			return s
		case 1:
			return fiber.Leave(s, "main-done")
		}
		return nil
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		rb(nil)
	}()
	v := rightValue(t, runProgram(t, rt, &fiber.Program{EntryPoint: entry}))
	if v != "main-done" {
		t.Fatalf("main fiber got %v, want main-done", v)
	}
	if bv := fb.Await(); bv != "b-done" {
		t.Fatalf("deferred fiber got %v, want b-done", bv)
	}
}
