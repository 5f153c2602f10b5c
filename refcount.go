// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import "code.hybscloud.com/atomix"

// objectCounter is the global monotonic counter for heap object ids.
var objectCounter atomix.Uint32

// RefObject is the reference-counted heap object header. Ids increase
// monotonically across all runtimes. There is no cycle collection and
// no finalization; the count is bookkeeping for leak diagnosis.
type RefObject struct {
	id     Serial
	refcnt int32
}

// ID returns the object's monotonic id.
func (o *RefObject) ID() Serial {
	return o.id
}

// RefCount returns the current reference count.
func (o *RefObject) RefCount() int32 {
	return o.refcnt
}

// initRefObject assigns the id and, when refcount debugging is on,
// registers the object in the live table.
func (rt *Runtime) initRefObject(o *RefObject) {
	o.id = objectCounter.Add(1)
	o.refcnt = 1
	if rt.refCountingDebug {
		rt.liveObjects[o.id] = o
	}
}

// IncrRef takes one reference. A no-op unless the loaded program was
// compiled with refcounting.
func (rt *Runtime) IncrRef(o *RefObject) {
	if !rt.refCounting || o == nil {
		return
	}
	assert(o.refcnt > 0, "incr on freed object")
	o.refcnt++
}

// DecrRef releases one reference, unregistering the object when the
// count reaches zero.
func (rt *Runtime) DecrRef(o *RefObject) {
	if !rt.refCounting || o == nil {
		return
	}
	assert(o.refcnt > 0, "decr on freed object")
	o.refcnt--
	if o.refcnt == 0 {
		rt.unregisterLiveObject(o, false)
	}
}

// unregisterLiveObject removes o from the live table. Unless keepAlive
// is set the refcount must have reached zero.
func (rt *Runtime) unregisterLiveObject(o *RefObject, keepAlive bool) {
	if !keepAlive {
		assert(o.refcnt == 0, "unregister of object with pending references")
	}
	if rt.refCountingDebug {
		delete(rt.liveObjects, o.id)
	}
}

// DumpLivePointers logs every object still registered in the live
// table. Debug-only leak diagnosis; requires refcount debugging.
func (rt *Runtime) DumpLivePointers() {
	if !rt.refCountingDebug {
		return
	}
	rt.log.Info("live pointers", "count", len(rt.liveObjects))
	for id, o := range rt.liveObjects {
		rt.log.Info("live object", "id", id, "refcnt", o.refcnt)
	}
}

// RefAction is a function-like heap value: a label function plus its
// captured variables.
type RefAction struct {
	RefObject
	Len  int
	Fn   LabelFn
	Caps []any
}

// NewRefAction allocates an action of the given arity over fn, taking
// the initial reference.
func (rt *Runtime) NewRefAction(arity int, fn LabelFn) *RefAction {
	a := &RefAction{Len: arity, Fn: fn}
	rt.initRefObject(&a.RefObject)
	return a
}
