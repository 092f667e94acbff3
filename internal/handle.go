package dynabind

import (
	"fmt"
	"reflect"
)

// wrapNative stores a native value inside a new instance object of the
// dynamic type currently bound to its Go type. The result owns one reference.
func (rt *Runtime) wrapNative(v any) (*Object, error) {
	record, ok := rt.records[reflect.TypeOf(v)]
	if !ok {
		return nil, newConversionError(v, "dynamic object (type not bound)")
	}
	return &Object{typ: record.Type, refs: 1, value: v}, nil
}

// unwrapHandle recovers the native value stored in an instance object. The
// stored value's concrete type must match the type the trampoline was
// generated for; anything else is a registration bug and fails loudly.
func unwrapHandle(recv *Object, want reflect.Type) (any, error) {
	if recv == nil || recv.value == nil {
		return nil, &TypeMismatchError{Want: want, Got: nil}
	}
	got := reflect.TypeOf(recv.value)
	if got != want {
		return nil, &TypeMismatchError{Want: want, Got: got}
	}
	return recv.value, nil
}

// handleEntry pairs an object with the reference count held on behalf of a
// guest. The object itself carries one reference for the slot; when the guest
// count drops to zero that reference is released and the slot is recycled.
type handleEntry struct {
	obj      *Object
	refCount int
}

// handleAllocator hands out stable numeric ids for objects crossing the wasm
// boundary. Slot 0 is reserved as the null handle, which doubles as the call
// and get trampolines' failure sentinel on the wire.
type handleAllocator struct {
	allocated []*handleEntry
	freelist  []int32
}

func newHandleAllocator() *handleAllocator {
	return &handleAllocator{
		allocated: []*handleEntry{nil},
	}
}

func (ha *handleAllocator) get(id int32) (*handleEntry, error) {
	if id < 1 || int(id) > len(ha.allocated)-1 || ha.allocated[id] == nil {
		return nil, fmt.Errorf("invalid handle: %d", id)
	}
	return ha.allocated[id], nil
}

// allocate takes ownership of one reference to obj and returns its id.
func (ha *handleAllocator) allocate(obj *Object) int32 {
	entry := &handleEntry{obj: obj, refCount: 1}

	// Reuse freed slots when available.
	if len(ha.freelist) > 0 {
		id := ha.freelist[len(ha.freelist)-1]
		ha.freelist = ha.freelist[:len(ha.freelist)-1]
		ha.allocated[id] = entry
		return id
	}

	ha.allocated = append(ha.allocated, entry)
	return int32(len(ha.allocated) - 1)
}

func (ha *handleAllocator) incref(id int32) error {
	entry, err := ha.get(id)
	if err != nil {
		return err
	}
	entry.refCount++
	return nil
}

func (ha *handleAllocator) decref(id int32) error {
	entry, err := ha.get(id)
	if err != nil {
		return err
	}
	entry.refCount--
	if entry.refCount == 0 {
		entry.obj.DecRef()
		ha.allocated[id] = nil
		ha.freelist = append(ha.freelist, id)
	}
	return nil
}

// live reports the number of occupied slots, used by tests and leak checks.
func (ha *handleAllocator) live() int {
	return len(ha.allocated) - len(ha.freelist) - 1
}

// WrapForGuest wraps a native value and registers it in the handle table,
// returning the id to hand to a wasm guest.
func (rt *Runtime) WrapForGuest(v any) (int32, error) {
	obj, err := rt.ToDynamic(v)
	if err != nil {
		return 0, err
	}
	return rt.handles.allocate(obj), nil
}

// GuestHandle registers an existing object in the handle table, acquiring a
// reference on its behalf.
func (rt *Runtime) GuestHandle(obj *Object) int32 {
	return rt.handles.allocate(obj.IncRef())
}

// GuestObject resolves a guest handle back to its object.
func (rt *Runtime) GuestObject(id int32) (*Object, error) {
	entry, err := rt.handles.get(id)
	if err != nil {
		return nil, err
	}
	return entry.obj, nil
}

// LiveGuestHandles reports how many guest handles are currently allocated.
func (rt *Runtime) LiveGuestHandles() int {
	return rt.handles.live()
}
