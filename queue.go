// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import (
	"math/bits"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
)

// defaultEventQueueMax is the bound on pending events per source.
const defaultEventQueueMax = 5

// EventQueue is a bounded per-source event queue. Pushed values are
// dispatched to every registered handler as a fresh fiber, one event at
// a time: a later event's handlers do not start until the last handler
// fiber of the current event has completed.
//
// Pending values ride an lfq SPSC ring; push and drain both run on the
// scheduler goroutine, so the single-owner discipline holds. The ring
// capacity rounds up to a power of two and the max bound is enforced by
// an explicit length counter, keeping the drop point exact.
type EventQueue[T any] struct {
	rt     *Runtime
	max    int
	events lfq.SPSC[T]
	length int

	handlers []*RefAction
	awaiters []func(v any)

	// lock is held from the first dequeue of a drain until the last
	// handler fiber of the last pending event completes.
	lock bool

	valueToArgs func(v T) []any
}

// NewEventQueue creates a queue bounded to max pending events (the
// default bound when max is not positive).
func NewEventQueue[T any](rt *Runtime, max int) *EventQueue[T] {
	if max <= 0 {
		max = defaultEventQueueMax
	}
	q := &EventQueue[T]{rt: rt, max: max}
	q.events.Init(ceilPow2(max))
	return q
}

// SetValueToArgs installs the adapter translating a pushed value into
// handler arguments. Without one, handlers receive the value itself.
func (q *EventQueue[T]) SetValueToArgs(f func(v T) []any) {
	q.valueToArgs = f
}

// Push delivers v to the queue. Awaiters wake first: the head awaiter
// when notifyOne is set, otherwise the whole list is snapshotted,
// cleared, and woken, so awaiters re-registered by woken code land in
// the next batch. The value is then enqueued unconditionally while
// under the bound and a drain starts if none is running; at the bound
// the event is dropped and Push reports iox.ErrWouldBlock.
//
// Scheduler goroutine only.
func (q *EventQueue[T]) Push(v T, notifyOne bool) error {
	if len(q.awaiters) > 0 {
		if notifyOne {
			aw := q.awaiters[0]
			q.awaiters = q.awaiters[1:]
			aw(v)
		} else {
			batch := q.awaiters
			q.awaiters = nil
			for _, aw := range batch {
				aw(v)
			}
		}
	}
	if q.length >= q.max {
		return iox.ErrWouldBlock
	}
	slot := v
	if err := q.events.Enqueue(&slot); err != nil {
		return err
	}
	q.length++
	if q.length == 1 && !q.lock {
		q.poke()
	}
	return nil
}

// AddAwaiter parks fn until the next push (any event, delivered or
// dropped).
func (q *EventQueue[T]) AddAwaiter(fn func(v any)) {
	q.awaiters = append(q.awaiters, fn)
}

// AddHandler registers a handler action, taking a reference.
func (q *EventQueue[T]) AddHandler(a *RefAction) {
	q.rt.IncrRef(&a.RefObject)
	q.handlers = append(q.handlers, a)
}

// SetHandler replaces all registered handlers with a, refcount
// balanced.
func (q *EventQueue[T]) SetHandler(a *RefAction) {
	for _, h := range q.handlers {
		q.rt.DecrRef(&h.RefObject)
	}
	q.rt.IncrRef(&a.RefObject)
	q.handlers = []*RefAction{a}
}

// RemoveHandler removes every occurrence of a, releasing one reference
// per removal.
func (q *EventQueue[T]) RemoveHandler(a *RefAction) {
	kept := make([]*RefAction, 0, len(q.handlers))
	for _, h := range q.handlers {
		if h == a {
			q.rt.DecrRef(&h.RefObject)
			continue
		}
		kept = append(kept, h)
	}
	q.handlers = kept
}

// Handlers returns the number of registered handlers.
func (q *EventQueue[T]) Handlers() int {
	return len(q.handlers)
}

// poke drains the head event: every handler is spawned as a fresh
// fiber; when the last one completes the next event is drained, or the
// lock is released.
func (q *EventQueue[T]) poke() {
	q.lock = true
	v, err := q.events.Dequeue()
	if err != nil {
		q.lock = false
		return
	}
	q.length--
	handlers := q.handlers
	if len(handlers) == 0 {
		q.next()
		return
	}
	args := []any{v}
	if q.valueToArgs != nil {
		args = q.valueToArgs(v)
	}
	remaining := len(handlers)
	for _, h := range handlers {
		q.rt.sched.post(func() {
			if q.rt.Dead() {
				return
			}
			q.rt.runAction(h, args, func(any) {
				remaining--
				if remaining == 0 {
					q.next()
				}
			})
		})
	}
}

func (q *EventQueue[T]) next() {
	if q.length > 0 {
		q.poke()
	} else {
		q.lock = false
	}
}

// ceilPow2 rounds n up to the next power of two.
func ceilPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}
