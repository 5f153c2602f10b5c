// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import (
	"time"

	"code.hybscloud.com/atomix"
)

// schedBacklog bounds the run queue before producers start blocking.
// Producers are timers, host messages, and extension callbacks; the
// consumer is the single scheduler goroutine.
const schedBacklog = 256

// sched is the runtime's event loop: a single goroutine draining a run
// queue of thunks. Every mutation of runtime state happens on this
// goroutine, which is what makes the interpreter single-threaded
// cooperative. Delayed posts are the runtime's only timer facility.
//
// The run queue is multi-producer, so it is a channel rather than an
// lfq ring (lfq provides SPSC only; the single-owner discipline that
// justifies a ring holds for event queues, not here).
type sched struct {
	work    chan func()
	done    chan struct{}
	stopped atomix.Uint32
}

func newSched() *sched {
	return &sched{
		work: make(chan func(), schedBacklog),
		done: make(chan struct{}),
	}
}

// start launches the scheduler goroutine.
func (s *sched) start() {
	go s.run()
}

func (s *sched) run() {
	for {
		select {
		case f := <-s.work:
			f()
		case <-s.done:
			return
		}
	}
}

// post enqueues f for execution on the scheduler goroutine. Posts after
// stop are dropped: every queued thunk dead-checks anyway, so losing
// them is not observable.
func (s *sched) post(f func()) {
	if s.stopped.Load() != 0 {
		return
	}
	select {
	case s.work <- f:
	case <-s.done:
	}
}

// postDelayed schedules f on the scheduler goroutine after d.
func (s *sched) postDelayed(d time.Duration, f func()) {
	if d <= 0 {
		s.post(f)
		return
	}
	time.AfterFunc(d, func() { s.post(f) })
}

// stop shuts the scheduler down. Idempotent.
func (s *sched) stop() {
	if s.stopped.CompareAndSwap(0, 1) {
		close(s.done)
	}
}
