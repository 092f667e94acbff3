package dynabind

import (
	"reflect"
)

// Object is a reference-counted cell in the dynamic runtime's object graph.
// The payload is one of: nil (none), bool, int64, float64, string, []*Object
// (tuple), map[string]*Object (dict), *boundMethod, or a wrapped native value
// of the concrete Go type recorded on the object's Type.
type Object struct {
	typ      *Type
	refs     int32
	immortal bool
	value    any
}

func (o *Object) Type() *Type {
	return o.typ
}

func (o *Object) RefCount() int32 {
	return o.refs
}

// IncRef acquires one reference and returns the same object for chaining.
func (o *Object) IncRef() *Object {
	if o == nil || o.immortal {
		return o
	}
	o.refs++
	return o
}

// DecRef releases one reference. When the count reaches zero the payload is
// detached so that references held through tuples, dicts and bound methods
// are released as well.
func (o *Object) DecRef() {
	if o == nil || o.immortal {
		return
	}
	o.refs--
	if o.refs > 0 {
		return
	}

	switch v := o.value.(type) {
	case []*Object:
		for i := range v {
			v[i].DecRef()
		}
	case map[string]*Object:
		for k := range v {
			v[k].DecRef()
		}
	case *boundMethod:
		v.recv.DecRef()
	}
	o.value = nil
}

// MethodFlags records the calling convention of a method table entry.
type MethodFlags int32

const (
	// MethodVarargs marks an entry taking a positional argument tuple.
	MethodVarargs MethodFlags = 1 << iota
	// MethodKeywords marks an entry that also accepts a keyword dict. All
	// generated call trampolines use this convention.
	MethodKeywords
)

// CallSlot is the fixed calling convention for method dispatch: receiver,
// positional tuple, keyword dict or nil. A nil result signals failure; the
// pending error has been set on the runtime. A non-nil result carries exactly
// one reference owned by the caller.
type CallSlot func(rt *Runtime, recv, args, kwargs *Object) *Object

// GetSlot is the fixed calling convention for attribute reads. The returned
// object owns one new reference; nil signals failure.
type GetSlot func(rt *Runtime, recv *Object) *Object

// SetSlot is the fixed calling convention for attribute writes. It returns 0
// on success and -1 after setting the pending error. The value reference is
// borrowed and released by the slot on every path.
type SetSlot func(rt *Runtime, recv, value *Object) int

// MethodDef is one fixed-layout method table entry. The zero value is the
// table sentinel.
type MethodDef struct {
	Name  string
	Call  CallSlot
	Flags MethodFlags
}

// GetSetDef is one fixed-layout accessor table entry. The zero value is the
// table sentinel. Set is always non-nil for real entries; read-only
// attributes get a slot that reports the write as an error.
type GetSetDef struct {
	Name string
	Get  GetSlot
	Set  SetSlot
}

// Type is a dynamic-runtime type object. For types generated by the
// registrar, native records the concrete Go type whose values instances wrap,
// and the method and getset tables point into the process-lifetime retention
// store.
type Type struct {
	name    string
	base    *Type
	native  reflect.Type
	methods []MethodDef
	getsets []GetSetDef

	// Lookup maps are derived from the tables by a forward scan, so a
	// duplicated exposed name resolves to the last entry.
	methodsByName map[string]*MethodDef
	getsetsByName map[string]*GetSetDef

	getAttr func(rt *Runtime, recv *Object, name string) *Object
	setAttr func(rt *Runtime, recv *Object, name string, value *Object) int
}

func (t *Type) Name() string {
	return t.name
}

func (t *Type) Base() *Type {
	return t.base
}

// NativeType reports the Go type bound to this dynamic type, or nil for
// builtins.
func (t *Type) NativeType() reflect.Type {
	return t.native
}

func (t *Type) rebuildLookup() {
	t.methodsByName = map[string]*MethodDef{}
	for i := range t.methods {
		if t.methods[i].Name == "" {
			continue
		}
		t.methodsByName[t.methods[i].Name] = &t.methods[i]
	}
	t.getsetsByName = map[string]*GetSetDef{}
	for i := range t.getsets {
		if t.getsets[i].Name == "" {
			continue
		}
		t.getsetsByName[t.getsets[i].Name] = &t.getsets[i]
	}
}

// lookupMethod resolves an exposed method name along the single base chain.
func (t *Type) lookupMethod(name string) *MethodDef {
	for cur := t; cur != nil; cur = cur.base {
		if def, ok := cur.methodsByName[name]; ok {
			return def
		}
	}
	return nil
}

// lookupGetSet resolves an exposed attribute name along the single base chain.
func (t *Type) lookupGetSet(name string) *GetSetDef {
	for cur := t; cur != nil; cur = cur.base {
		if def, ok := cur.getsetsByName[name]; ok {
			return def
		}
	}
	return nil
}

type boundMethod struct {
	recv *Object
	def  *MethodDef
}
