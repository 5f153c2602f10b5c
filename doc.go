// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package fiber provides a cooperative fiber runtime for pre-compiled
// label-function programs embedded in a sandboxed host.
//
// A compiled program is a set of label functions, one per basic block.
// Each label function consumes a [Frame], advances its program counter,
// and returns the next frame to run (or nil to park the fiber). The
// runtime drives them from a single-threaded interpreter loop and talks
// to its host exclusively through message envelopes on a [MessageSink].
//
// # Architecture
//
//   - Dispatch: frame-threaded trampoline. The loop runs frame = frame.Fn(frame)
//     until the chain reaches the sentinel or the fiber parks.
//   - Suspension: native extensions park the current fiber via the resume
//     protocol ([Runtime.SetupResume], [Runtime.GetResume]). Resumes are
//     affine continuations built on [code.hybscloud.com/kont.Once]; reuse
//     is structurally a no-op.
//   - Events: per-source bounded [EventQueue] backed by a
//     [code.hybscloud.com/lfq.SPSC] ring. Excess pushes are dropped at the
//     bound, reported as [code.hybscloud.com/iox.ErrWouldBlock].
//   - Debugging: in-process breakpoint set, step modes, live heap snapshot
//     and trace mode, driven by host debugger messages.
//
// # Scheduling
//
// User code never runs in parallel. All runtime state is owned by one
// scheduler goroutine; timers, host messages, and extension callbacks
// re-enter through [Runtime.Post]/[Runtime.PostDelayed]. Suspension points
// are the resume protocol, the [Runtime.MaybeYield] budget, breakpoints,
// and lock-deferred resumes.
//
// # Example
//
//	entry := func(rt *fiber.Runtime, s *fiber.Frame) *fiber.Frame {
//		return fiber.Leave(s, 42)
//	}
//	rt := fiber.NewRuntime("rt-0", sink)
//	rt.BindBoard(board)
//	rt.Start()
//	rt.RunProgram(&fiber.Program{EntryPoint: entry}, func(r kont.Either[*fiber.FiberError, any]) {
//		v, _ := r.GetRight() // 42
//		_ = v
//	})
package fiber
