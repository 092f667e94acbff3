package dynabind

import (
	"context"
	"fmt"
	"reflect"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("dynabind")

// Runtime is the embedded dynamic runtime the bridge dispatches into: the
// object graph, the pending-error state and the bindings between Go types and
// generated dynamic types. All dispatch is driven synchronously from a single
// interpreter thread, so the runtime performs no locking.
type Runtime struct {
	pendingErr error

	// records maps a Go type to its current binding. Redefinition replaces
	// the entry, shadowing the old binding for future conversions only.
	records    map[reflect.Type]*TypeRecord
	recordList []*TypeRecord

	handles *handleAllocator

	objectType *Type
	noneType   *Type
	boolType   *Type
	intType    *Type
	floatType  *Type
	strType    *Type
	tupleType  *Type
	dictType   *Type
	methodType *Type

	none, vtrue, vfalse *Object
}

func NewRuntime() *Runtime {
	rt := &Runtime{
		records: map[reflect.Type]*TypeRecord{},
		handles: newHandleAllocator(),
	}

	rt.objectType = &Type{name: "object"}
	rt.objectType.getAttr = genericGetAttr
	rt.objectType.setAttr = genericSetAttr
	rt.objectType.rebuildLookup()

	builtin := func(name string) *Type {
		t := &Type{name: name, base: rt.objectType}
		t.getAttr = genericGetAttr
		t.setAttr = genericSetAttr
		t.rebuildLookup()
		return t
	}

	rt.noneType = builtin("none")
	rt.boolType = builtin("bool")
	rt.intType = builtin("int")
	rt.floatType = builtin("float")
	rt.strType = builtin("str")
	rt.tupleType = builtin("tuple")
	rt.dictType = builtin("dict")
	rt.methodType = builtin("method")

	rt.none = &Object{typ: rt.noneType, immortal: true}
	rt.vtrue = &Object{typ: rt.boolType, immortal: true, value: true}
	rt.vfalse = &Object{typ: rt.boolType, immortal: true, value: false}

	return rt
}

// Raise sets the pending error state. A later Raise before the state is
// consumed replaces the pending error, matching the host runtime's
// last-raise-wins protocol.
func (rt *Runtime) Raise(err error) {
	rt.pendingErr = err
}

func (rt *Runtime) ClearError() {
	rt.pendingErr = nil
}

// ErrOccurred reports the pending error without consuming it.
func (rt *Runtime) ErrOccurred() error {
	return rt.pendingErr
}

// popError consumes the pending error. The fallback covers slots that return
// their failure sentinel without raising, which would be a bug in the slot.
func (rt *Runtime) popError(fallback string) error {
	if rt.pendingErr != nil {
		err := rt.pendingErr
		rt.pendingErr = nil
		return err
	}
	return fmt.Errorf("%s failed without a pending error", fallback)
}

func (rt *Runtime) None() *Object {
	return rt.none
}

func (rt *Runtime) NewBool(v bool) *Object {
	if v {
		return rt.vtrue
	}
	return rt.vfalse
}

func (rt *Runtime) NewInt(v int64) *Object {
	return &Object{typ: rt.intType, refs: 1, value: v}
}

func (rt *Runtime) NewFloat(v float64) *Object {
	return &Object{typ: rt.floatType, refs: 1, value: v}
}

func (rt *Runtime) NewString(v string) *Object {
	return &Object{typ: rt.strType, refs: 1, value: v}
}

// NewTuple builds a positional-argument container. The tuple acquires its own
// reference to every element.
func (rt *Runtime) NewTuple(items ...*Object) *Object {
	elems := make([]*Object, len(items))
	for i := range items {
		elems[i] = items[i].IncRef()
	}
	return &Object{typ: rt.tupleType, refs: 1, value: elems}
}

// NewDict builds a keyword-argument container, acquiring a reference to every
// value.
func (rt *Runtime) NewDict(items map[string]*Object) *Object {
	m := make(map[string]*Object, len(items))
	for k, v := range items {
		m[k] = v.IncRef()
	}
	return &Object{typ: rt.dictType, refs: 1, value: m}
}

func (rt *Runtime) newBoundMethod(recv *Object, def *MethodDef) *Object {
	return &Object{
		typ:   rt.methodType,
		refs:  1,
		value: &boundMethod{recv: recv.IncRef(), def: def},
	}
}

// genericGetAttr is the attribute-lookup slot installed on every generated
// type: the getset table first, then the method table (producing a bound
// method), walking the single base chain. Unknown names raise.
func genericGetAttr(rt *Runtime, recv *Object, name string) *Object {
	if def := recv.typ.lookupGetSet(name); def != nil {
		return def.Get(rt, recv)
	}
	if def := recv.typ.lookupMethod(name); def != nil {
		return rt.newBoundMethod(recv, def)
	}
	rt.Raise(fmt.Errorf("'%s' object has no attribute '%s'", recv.typ.name, name))
	return nil
}

func genericSetAttr(rt *Runtime, recv *Object, name string, value *Object) int {
	if def := recv.typ.lookupGetSet(name); def != nil {
		return def.Set(rt, recv, value)
	}
	if recv.typ.lookupMethod(name) != nil {
		rt.Raise(fmt.Errorf("'%s.%s' is not writable", recv.typ.name, name))
		return -1
	}
	rt.Raise(fmt.Errorf("'%s' object has no attribute '%s'", recv.typ.name, name))
	return -1
}

// call dispatches a callable object at the slot level: nil result means the
// pending error is set.
func (rt *Runtime) call(callable, args, kwargs *Object) *Object {
	bm, ok := callable.value.(*boundMethod)
	if !ok {
		rt.Raise(fmt.Errorf("'%s' object is not callable", callable.typ.name))
		return nil
	}
	return bm.def.Call(rt, bm.recv, args, kwargs)
}

// GetAttr is the host-facing attribute read: it runs the type's lookup slot
// and converts the failure sentinel back into a Go error. The returned object
// owns one reference.
func (rt *Runtime) GetAttr(recv *Object, name string) (*Object, error) {
	res := recv.typ.getAttr(rt, recv, name)
	if res == nil {
		return nil, rt.popError("attribute read " + name)
	}
	return res, nil
}

// GetAttrValue reads an attribute and converts the result to its Go
// representation.
func (rt *Runtime) GetAttrValue(recv *Object, name string) (any, error) {
	obj, err := rt.GetAttr(recv, name)
	if err != nil {
		return nil, err
	}
	defer obj.DecRef()
	return rt.ToNative(obj, anyType)
}

// SetAttr is the host-facing attribute write.
func (rt *Runtime) SetAttr(recv *Object, name string, value any) error {
	obj, err := rt.ToDynamic(value)
	if err != nil {
		return err
	}
	status := recv.typ.setAttr(rt, recv, name, obj)
	obj.DecRef()
	if status != 0 {
		return rt.popError("attribute write " + name)
	}
	return nil
}

// CallMethod invokes an exposed method on an instance with positional
// arguments only, returning the Go representation of the result.
func (rt *Runtime) CallMethod(recv *Object, name string, arguments ...any) (any, error) {
	return rt.CallMethodKw(recv, name, arguments, nil)
}

// CallMethodKw invokes an exposed method with positional and keyword
// arguments.
func (rt *Runtime) CallMethodKw(recv *Object, name string, arguments []any, keywords map[string]any) (any, error) {
	callable, err := rt.GetAttr(recv, name)
	if err != nil {
		return nil, err
	}
	defer callable.DecRef()

	items := make([]*Object, len(arguments))
	for i := range arguments {
		items[i], err = rt.ToDynamic(arguments[i])
		if err != nil {
			for j := 0; j < i; j++ {
				items[j].DecRef()
			}
			return nil, err
		}
	}
	args := rt.NewTuple(items...)
	for i := range items {
		items[i].DecRef()
	}
	defer args.DecRef()

	// A nil keyword container means "no keyword arguments"; the call
	// trampoline skips keyword conversion entirely in that case.
	var kwargs *Object
	if keywords != nil {
		m := make(map[string]*Object, len(keywords))
		for k, v := range keywords {
			obj, err := rt.ToDynamic(v)
			if err != nil {
				for _, prev := range m {
					prev.DecRef()
				}
				return nil, err
			}
			m[k] = obj
		}
		kwargs = rt.NewDict(m)
		for _, v := range m {
			v.DecRef()
		}
		defer kwargs.DecRef()
	}

	res := rt.call(callable, args, kwargs)
	if res == nil {
		return nil, rt.popError("call " + name)
	}
	defer res.DecRef()
	return rt.ToNative(res, anyType)
}

// LookupType resolves a bound type by its short name, for guest-facing
// lookups.
func (rt *Runtime) LookupType(name string) *TypeRecord {
	for i := len(rt.recordList) - 1; i >= 0; i-- {
		if rt.recordList[i].ShortName == name {
			return rt.recordList[i]
		}
	}
	return nil
}

// Records returns every binding created on this runtime, including shadowed
// ones, in registration order.
func (rt *Runtime) Records() []*TypeRecord {
	return rt.recordList
}

// RuntimeKey is the context key under which a Runtime travels to guest-facing
// host functions: ctx = rt.Attach(ctx).
type RuntimeKey struct{}

func (rt *Runtime) Attach(ctx context.Context) context.Context {
	return context.WithValue(ctx, RuntimeKey{}, rt)
}

func GetRuntimeFromContext(ctx context.Context) (*Runtime, error) {
	raw := ctx.Value(RuntimeKey{})
	if raw == nil {
		return nil, fmt.Errorf("dynabind runtime not found in context")
	}
	rt, ok := raw.(*Runtime)
	if !ok {
		return nil, fmt.Errorf("context value %v is not a dynabind runtime", raw)
	}
	return rt, nil
}

func MustGetRuntimeFromContext(ctx context.Context) *Runtime {
	rt, err := GetRuntimeFromContext(ctx)
	if err != nil {
		panic(fmt.Errorf("could not get dynabind runtime from context: %w, attach it with ctx = rt.Attach(ctx)", err))
	}
	return rt
}
