// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber_test

import (
	"sync"
	"testing"
	"time"

	"code.hybscloud.com/fiber"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
)

const testTimeout = 5 * time.Second

// recordSink captures outbound envelopes for inspection. Posts come
// from the scheduler goroutine, reads from the test goroutine.
type recordSink struct {
	mu   sync.Mutex
	msgs []fiber.Message
}

func (s *recordSink) PostMessage(m fiber.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, m)
}

func (s *recordSink) snapshot() []fiber.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]fiber.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// waitFor spins with adaptive backoff until pred accepts the captured
// messages.
func (s *recordSink) waitFor(tb testing.TB, pred func([]fiber.Message) bool) []fiber.Message {
	tb.Helper()
	var bo iox.Backoff
	deadline := time.Now().Add(testTimeout)
	for {
		msgs := s.snapshot()
		if pred(msgs) {
			return msgs
		}
		if time.Now().After(deadline) {
			tb.Fatalf("timeout waiting for messages, have %d", len(msgs))
			return msgs
		}
		bo.Wait()
	}
}

func (s *recordSink) statuses() []string {
	var out []string
	for _, m := range s.snapshot() {
		if st, ok := m.(*fiber.StatusMessage); ok {
			out = append(out, st.State)
		}
	}
	return out
}

type stubBoard struct{}

func (*stubBoard) UpdateView() {}

func newTestRuntime(tb testing.TB) (*fiber.Runtime, *recordSink) {
	tb.Helper()
	sink := &recordSink{}
	rt := fiber.NewRuntime("rt-test", sink)
	rt.BindBoard(&stubBoard{})
	rt.Start()
	tb.Cleanup(rt.Kill)
	return rt, sink
}

// runProgram runs p to completion and returns the Either result.
func runProgram(tb testing.TB, rt *fiber.Runtime, p *fiber.Program) kont.Either[*fiber.FiberError, any] {
	tb.Helper()
	ch := make(chan kont.Either[*fiber.FiberError, any], 1)
	rt.RunProgram(p, func(r kont.Either[*fiber.FiberError, any]) { ch <- r })
	select {
	case r := <-ch:
		return r
	case <-time.After(testTimeout):
		tb.Fatal("program did not complete")
		panic("unreachable")
	}
}

func rightValue(tb testing.TB, r kont.Either[*fiber.FiberError, any]) any {
	tb.Helper()
	v, ok := r.GetRight()
	if !ok {
		e, _ := r.GetLeft()
		tb.Fatalf("program faulted: %v", e)
	}
	return v
}

func leftError(tb testing.TB, r kont.Either[*fiber.FiberError, any]) *fiber.FiberError {
	tb.Helper()
	e, ok := r.GetLeft()
	if !ok {
		v, _ := r.GetRight()
		tb.Fatalf("program succeeded with %v, want fault", v)
	}
	return e
}

// waitCond spins with adaptive backoff until cond holds.
func waitCond(tb testing.TB, cond func() bool) {
	tb.Helper()
	var bo iox.Backoff
	deadline := time.Now().Add(testTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			tb.Fatal("timeout waiting for condition")
			return
		}
		bo.Wait()
	}
}

// onLoop runs f on the scheduler goroutine and waits for it.
func onLoop(tb testing.TB, rt *fiber.Runtime, f func()) {
	tb.Helper()
	done := make(chan struct{})
	rt.Post(func() {
		f()
		close(done)
	})
	select {
	case <-done:
	case <-time.After(testTimeout):
		tb.Fatal("scheduler stalled")
	}
}
