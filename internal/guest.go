package dynabind

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

// Guest-facing dispatch protocol. Each function is a wazero host function
// with a fixed wasm-level signature operating on i32 handles from the
// runtime's handle table. The null handle (0) is the failure sentinel for
// object results; attribute writes report 0/-1 like the set trampoline.

// readGuestMemory guards against being invoked without an attached guest
// memory (host-side calls during tests have none).
func readGuestMemory(mod api.Module, ptr, length uint32) ([]byte, bool) {
	mem := mod.Memory()
	if mem == nil {
		return nil, false
	}
	return mem.Read(ptr, length)
}

func (rt *Runtime) stringFromHandle(id int32) (string, error) {
	obj, err := rt.GuestObject(id)
	if err != nil {
		return "", err
	}
	s, ok := obj.value.(string)
	if !ok {
		return "", fmt.Errorf("handle %d is not a string", id)
	}
	return s, nil
}

// GuestIntern reads a name from guest memory and returns a string handle.
var GuestIntern = api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
	rt := MustGetRuntimeFromContext(ctx)
	ptr := api.DecodeU32(stack[0])
	length := api.DecodeU32(stack[1])

	data, ok := readGuestMemory(mod, ptr, length)
	if !ok {
		rt.Raise(fmt.Errorf("could not read %d bytes of guest memory at %d", length, ptr))
		stack[0] = 0
		return
	}
	stack[0] = api.EncodeI32(rt.handles.allocate(rt.NewString(string(data))))
})

// GuestCall dispatches recv.name(args..., kwargs...) through the bound
// method's call trampoline. 0 args/kwargs handles mean absent containers.
var GuestCall = api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
	rt := MustGetRuntimeFromContext(ctx)
	recvID := api.DecodeI32(stack[0])
	nameID := api.DecodeI32(stack[1])
	argsID := api.DecodeI32(stack[2])
	kwargsID := api.DecodeI32(stack[3])

	fail := func(err error) {
		rt.Raise(err)
		stack[0] = 0
	}

	recv, err := rt.GuestObject(recvID)
	if err != nil {
		fail(err)
		return
	}
	name, err := rt.stringFromHandle(nameID)
	if err != nil {
		fail(err)
		return
	}

	var args, kwargs *Object
	if argsID != 0 {
		if args, err = rt.GuestObject(argsID); err != nil {
			fail(err)
			return
		}
	}
	if kwargsID != 0 {
		if kwargs, err = rt.GuestObject(kwargsID); err != nil {
			fail(err)
			return
		}
	}

	callable := recv.typ.getAttr(rt, recv, name)
	if callable == nil {
		stack[0] = 0
		return
	}
	res := rt.call(callable, args, kwargs)
	callable.DecRef()
	if res == nil {
		stack[0] = 0
		return
	}
	stack[0] = api.EncodeI32(rt.handles.allocate(res))
})

// GuestGet reads recv.name and returns a new handle owning the result.
var GuestGet = api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
	rt := MustGetRuntimeFromContext(ctx)
	recvID := api.DecodeI32(stack[0])
	nameID := api.DecodeI32(stack[1])

	recv, err := rt.GuestObject(recvID)
	if err != nil {
		rt.Raise(err)
		stack[0] = 0
		return
	}
	name, err := rt.stringFromHandle(nameID)
	if err != nil {
		rt.Raise(err)
		stack[0] = 0
		return
	}

	res := recv.typ.getAttr(rt, recv, name)
	if res == nil {
		stack[0] = 0
		return
	}
	stack[0] = api.EncodeI32(rt.handles.allocate(res))
})

// GuestSet writes recv.name = value and returns 0 or -1.
var GuestSet = api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
	rt := MustGetRuntimeFromContext(ctx)
	recvID := api.DecodeI32(stack[0])
	nameID := api.DecodeI32(stack[1])
	valueID := api.DecodeI32(stack[2])

	fail := func(err error) {
		rt.Raise(err)
		stack[0] = api.EncodeI32(-1)
	}

	recv, err := rt.GuestObject(recvID)
	if err != nil {
		fail(err)
		return
	}
	name, err := rt.stringFromHandle(nameID)
	if err != nil {
		fail(err)
		return
	}
	value, err := rt.GuestObject(valueID)
	if err != nil {
		fail(err)
		return
	}

	stack[0] = api.EncodeI32(int32(recv.typ.setAttr(rt, recv, name, value)))
})

// GuestArgsNew allocates an empty positional container.
var GuestArgsNew = api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
	rt := MustGetRuntimeFromContext(ctx)
	stack[0] = api.EncodeI32(rt.handles.allocate(rt.NewTuple()))
})

// GuestArgsPush appends a value to a positional container.
var GuestArgsPush = api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
	rt := MustGetRuntimeFromContext(ctx)
	argsID := api.DecodeI32(stack[0])
	valueID := api.DecodeI32(stack[1])

	args, err := rt.GuestObject(argsID)
	if err != nil {
		rt.Raise(err)
		return
	}
	value, err := rt.GuestObject(valueID)
	if err != nil {
		rt.Raise(err)
		return
	}
	elems, ok := args.value.([]*Object)
	if !ok {
		rt.Raise(fmt.Errorf("handle %d is not an argument container", argsID))
		return
	}
	args.value = append(elems, value.IncRef())
})

// GuestKwargsNew allocates an empty keyword container.
var GuestKwargsNew = api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
	rt := MustGetRuntimeFromContext(ctx)
	stack[0] = api.EncodeI32(rt.handles.allocate(rt.NewDict(nil)))
})

// GuestKwargsSet stores a named value in a keyword container.
var GuestKwargsSet = api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
	rt := MustGetRuntimeFromContext(ctx)
	kwargsID := api.DecodeI32(stack[0])
	nameID := api.DecodeI32(stack[1])
	valueID := api.DecodeI32(stack[2])

	kwargs, err := rt.GuestObject(kwargsID)
	if err != nil {
		rt.Raise(err)
		return
	}
	name, err := rt.stringFromHandle(nameID)
	if err != nil {
		rt.Raise(err)
		return
	}
	value, err := rt.GuestObject(valueID)
	if err != nil {
		rt.Raise(err)
		return
	}
	entries, ok := kwargs.value.(map[string]*Object)
	if !ok {
		rt.Raise(fmt.Errorf("handle %d is not a keyword container", kwargsID))
		return
	}
	if prev, exists := entries[name]; exists {
		prev.DecRef()
	}
	entries[name] = value.IncRef()
})

// GuestIntNew wraps an i64 into an int object handle.
var GuestIntNew = api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
	rt := MustGetRuntimeFromContext(ctx)
	stack[0] = api.EncodeI32(rt.handles.allocate(rt.NewInt(int64(stack[0]))))
})

// GuestIntValue reads an int object back to i64; 0 with a pending error on
// mismatch.
var GuestIntValue = api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
	rt := MustGetRuntimeFromContext(ctx)
	obj, err := rt.GuestObject(api.DecodeI32(stack[0]))
	if err != nil {
		rt.Raise(err)
		stack[0] = 0
		return
	}
	v, ok := obj.value.(int64)
	if !ok {
		rt.Raise(newConversionError(obj.value, "int"))
		stack[0] = 0
		return
	}
	stack[0] = uint64(v)
})

// GuestFloatNew wraps an f64 into a float object handle.
var GuestFloatNew = api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
	rt := MustGetRuntimeFromContext(ctx)
	stack[0] = api.EncodeI32(rt.handles.allocate(rt.NewFloat(api.DecodeF64(stack[0]))))
})

// GuestFloatValue reads a float object back to f64.
var GuestFloatValue = api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
	rt := MustGetRuntimeFromContext(ctx)
	obj, err := rt.GuestObject(api.DecodeI32(stack[0]))
	if err != nil {
		rt.Raise(err)
		stack[0] = api.EncodeF64(0)
		return
	}
	v, ok := obj.value.(float64)
	if !ok {
		rt.Raise(newConversionError(obj.value, "float"))
		stack[0] = api.EncodeF64(0)
		return
	}
	stack[0] = api.EncodeF64(v)
})

// GuestBoolNew wraps an i32 into a bool object handle.
var GuestBoolNew = api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
	rt := MustGetRuntimeFromContext(ctx)
	stack[0] = api.EncodeI32(rt.handles.allocate(rt.NewBool(api.DecodeI32(stack[0]) != 0).IncRef()))
})

// GuestBoolValue reads a bool object back to i32.
var GuestBoolValue = api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
	rt := MustGetRuntimeFromContext(ctx)
	obj, err := rt.GuestObject(api.DecodeI32(stack[0]))
	if err != nil {
		rt.Raise(err)
		stack[0] = 0
		return
	}
	v, ok := obj.value.(bool)
	if !ok {
		rt.Raise(newConversionError(obj.value, "bool"))
		stack[0] = 0
		return
	}
	if v {
		stack[0] = 1
	} else {
		stack[0] = 0
	}
})

// GuestStringNew builds a string object from guest memory.
var GuestStringNew = api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
	rt := MustGetRuntimeFromContext(ctx)
	ptr := api.DecodeU32(stack[0])
	length := api.DecodeU32(stack[1])

	data, ok := readGuestMemory(mod, ptr, length)
	if !ok {
		rt.Raise(fmt.Errorf("could not read %d bytes of guest memory at %d", length, ptr))
		stack[0] = 0
		return
	}
	stack[0] = api.EncodeI32(rt.handles.allocate(rt.NewString(string(data))))
})

// GuestStringLen reports the byte length of a string object.
var GuestStringLen = api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
	rt := MustGetRuntimeFromContext(ctx)
	s, err := rt.stringFromHandle(api.DecodeI32(stack[0]))
	if err != nil {
		rt.Raise(err)
		stack[0] = 0
		return
	}
	stack[0] = api.EncodeI32(int32(len(s)))
})

// GuestStringRead copies a string object into guest memory and returns the
// number of bytes written.
var GuestStringRead = api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
	rt := MustGetRuntimeFromContext(ctx)
	s, err := rt.stringFromHandle(api.DecodeI32(stack[0]))
	if err != nil {
		rt.Raise(err)
		stack[0] = 0
		return
	}
	mem := mod.Memory()
	if mem == nil || !mem.Write(api.DecodeU32(stack[1]), []byte(s)) {
		rt.Raise(fmt.Errorf("could not write %d bytes of guest memory", len(s)))
		stack[0] = 0
		return
	}
	stack[0] = api.EncodeI32(int32(len(s)))
})

// GuestTypeName returns the display name of a handle's type as a string
// handle, so guests can report what they are holding.
var GuestTypeName = api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
	rt := MustGetRuntimeFromContext(ctx)
	obj, err := rt.GuestObject(api.DecodeI32(stack[0]))
	if err != nil {
		rt.Raise(err)
		stack[0] = 0
		return
	}
	stack[0] = api.EncodeI32(rt.handles.allocate(rt.NewString(obj.typ.name)))
})

// GuestIncref acquires one guest reference on a handle.
var GuestIncref = api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
	rt := MustGetRuntimeFromContext(ctx)
	if err := rt.handles.incref(api.DecodeI32(stack[0])); err != nil {
		rt.Raise(err)
	}
})

// GuestDecref releases one guest reference on a handle.
var GuestDecref = api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
	rt := MustGetRuntimeFromContext(ctx)
	if err := rt.handles.decref(api.DecodeI32(stack[0])); err != nil {
		rt.Raise(err)
	}
})

// GuestErrorOccurred reports whether an error is pending.
var GuestErrorOccurred = api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
	rt := MustGetRuntimeFromContext(ctx)
	if rt.ErrOccurred() != nil {
		stack[0] = 1
	} else {
		stack[0] = 0
	}
})

// GuestErrorMessage consumes the pending error and returns it as a string
// handle, or the null handle when no error is pending.
var GuestErrorMessage = api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
	rt := MustGetRuntimeFromContext(ctx)
	if rt.ErrOccurred() == nil {
		stack[0] = 0
		return
	}
	err := rt.popError("guest error fetch")
	stack[0] = api.EncodeI32(rt.handles.allocate(rt.NewString(err.Error())))
})

// GuestClearError drops any pending error.
var GuestClearError = api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
	MustGetRuntimeFromContext(ctx).ClearError()
})
