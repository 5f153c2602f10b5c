// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber_test

import (
	"testing"
	"time"

	"code.hybscloud.com/fiber"
	"code.hybscloud.com/kont"
)

func TestTrivialProgram(t *testing.T) {
	rt, sink := newTestRuntime(t)

	entry := func(_ *fiber.Runtime, s *fiber.Frame) *fiber.Frame {
		return fiber.Leave(s, 42)
	}
	v := rightValue(t, runProgram(t, rt, &fiber.Program{EntryPoint: entry}))
	if v != 42 {
		t.Fatalf("final value got %v, want 42", v)
	}

	rt.Kill()
	sink.waitFor(t, func([]fiber.Message) bool {
		st := sink.statuses()
		return len(st) == 2 && st[0] == "running" && st[1] == "killed"
	})
}

func TestPauseResume(t *testing.T) {
	rt, _ := newTestRuntime(t)

	entry := func(rtc *fiber.Runtime, s *fiber.Frame) *fiber.Frame {
		switch s.PC {
		case 0:
			return rtc.Sleep(s, 1, 50*time.Millisecond)
		case 1:
			return fiber.Leave(s, 7)
		}
		return nil
	}

	start := time.Now()
	v := rightValue(t, runProgram(t, rt, &fiber.Program{EntryPoint: entry}))
	elapsed := time.Since(start)
	if v != 7 {
		t.Fatalf("final value got %v, want 7", v)
	}
	if elapsed < 50*time.Millisecond {
		t.Fatalf("completed after %v, want >= 50ms", elapsed)
	}
}

func TestRunFiberAsync(t *testing.T) {
	rt, _ := newTestRuntime(t)

	sum := rt.NewRefAction(2, func(_ *fiber.Runtime, s *fiber.Frame) *fiber.Frame {
		a := s.LambdaArgs[0].(int)
		b := s.LambdaArgs[1].(int)
		return fiber.Leave(s, a+b)
	})
	f := rt.RunFiberAsync(sum, 3, 4)
	if v := f.Await(); v != 7 {
		t.Fatalf("fiber result got %v, want 7", v)
	}
}

func TestSerialFlush(t *testing.T) {
	rt, sink := newTestRuntime(t)

	onLoop(t, rt, func() {
		rt.WriteSerial("hi ")
		rt.WriteSerial("there\n")
	})
	msgs := sink.waitFor(t, func(msgs []fiber.Message) bool {
		return len(msgs) >= 1
	})
	sm, ok := msgs[0].(*fiber.SerialMessage)
	if !ok {
		t.Fatalf("message got %T, want *SerialMessage", msgs[0])
	}
	if sm.Data != "hi there\n" {
		t.Fatalf("serial data got %q, want %q", sm.Data, "hi there\n")
	}
	if !sm.Sim || sm.ID != "rt-test" {
		t.Fatalf("serial envelope got sim=%v id=%q", sm.Sim, sm.ID)
	}

	// no newline, but past the 16-char threshold
	onLoop(t, rt, func() {
		rt.WriteSerial("01234567890123456")
	})
	sink.waitFor(t, func(msgs []fiber.Message) bool {
		return len(msgs) >= 2
	})
}

func TestRunMessageThroughLoader(t *testing.T) {
	rt, sink := newTestRuntime(t)

	var loadedCode string
	rt.SetLoader(fiber.LoaderFunc(func(code string) (*fiber.Program, error) {
		loadedCode = code
		entry := func(rtc *fiber.Runtime, s *fiber.Frame) *fiber.Frame {
			rtc.WriteSerial("done\n")
			return fiber.Leave(s, nil)
		}
		return &fiber.Program{EntryPoint: entry}, nil
	}))

	rt.HandleMessage(&fiber.RunRequest{Type: "run", ID: "prog-1", Code: "blob"})
	sink.waitFor(t, func(msgs []fiber.Message) bool {
		for _, m := range msgs {
			if sm, ok := m.(*fiber.SerialMessage); ok && sm.Data == "done\n" && sm.ID == "prog-1" {
				return true
			}
		}
		return false
	})
	if loadedCode != "blob" {
		t.Fatalf("loader got %q, want %q", loadedCode, "blob")
	}
}

func TestKillDeadSafety(t *testing.T) {
	rt, sink := newTestRuntime(t)

	entry := func(rtc *fiber.Runtime, s *fiber.Frame) *fiber.Frame {
		switch s.PC {
		case 0:
			return rtc.Sleep(s, 1, 30*time.Millisecond)
		case 1:
			rtc.WriteSerial("never\n")
			return fiber.Leave(s, 1)
		}
		return nil
	}

	done := make(chan kont.Either[*fiber.FiberError, any], 1)
	rt.RunProgram(&fiber.Program{EntryPoint: entry}, func(r kont.Either[*fiber.FiberError, any]) {
		done <- r
	})
	sink.waitFor(t, func([]fiber.Message) bool {
		st := sink.statuses()
		return len(st) >= 1 && st[0] == "running"
	})
	rt.Kill()

	select {
	case r := <-done:
		t.Fatalf("program completed after kill: %v", r)
	case <-time.After(100 * time.Millisecond):
	}
	for _, m := range sink.snapshot() {
		if _, ok := m.(*fiber.SerialMessage); ok {
			t.Fatal("user code ran after kill")
		}
	}
	st := sink.statuses()
	if len(st) != 2 || st[1] != "killed" {
		t.Fatalf("statuses got %v, want [running killed]", st)
	}
}

func TestRunningClock(t *testing.T) {
	rt, _ := newTestRuntime(t)

	var ms time.Duration
	var us uint32
	entry := func(rtc *fiber.Runtime, s *fiber.Frame) *fiber.Frame {
		switch s.PC {
		case 0:
			return rtc.Sleep(s, 1, 10*time.Millisecond)
		case 1:
			ms = rtc.RunningTime()
			us = rtc.RunningTimeUs()
			return fiber.Leave(s, nil)
		}
		return nil
	}
	rightValue(t, runProgram(t, rt, &fiber.Program{EntryPoint: entry}))
	if ms < 10*time.Millisecond {
		t.Fatalf("running time got %v, want >= 10ms", ms)
	}
	if us < 10_000 {
		t.Fatalf("running time got %dus, want >= 10000", us)
	}
}
