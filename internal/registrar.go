package dynabind

import (
	"fmt"
	"reflect"
	"strings"
)

// TypeRecord binds one Go type to one generated dynamic type and the tables
// behind it. Records are immutable once created; redefining the same Go type
// creates a fresh record that shadows this one for future conversions, while
// instances created under the old record keep their old type identity.
type TypeRecord struct {
	Native    reflect.Type
	ShortName string
	Type      *Type
	Base      *Type
	methods   []MethodDef
	getsets   []GetSetDef
}

type defineOptions struct {
	base    *Type
	getsets []GetSetEntry
}

// DefineOption configures DefineType.
type DefineOption func(*defineOptions)

// WithBase sets the single base type. The underlying type-object layout
// supports exactly one base; the default is the runtime's root object type.
func WithBase(base *Type) DefineOption {
	return func(o *defineOptions) {
		o.base = base
	}
}

// WithGetSets declares the attribute accessors of the type.
func WithGetSets(entries ...GetSetEntry) DefineOption {
	return func(o *defineOptions) {
		o.getsets = append(o.getsets, entries...)
	}
}

// DefineType creates a new dynamic type bound to the Go type of sample,
// builds and installs its method and getset tables, and installs the
// conversion so that future native values of that exact Go type cross into
// the runtime as instances of the new type. It returns the new type object.
func (rt *Runtime) DefineType(sample any, methods []MethodEntry, opts ...DefineOption) (*Type, error) {
	if sample == nil {
		return nil, newConfigurationError("cannot define a type for nil")
	}
	native := reflect.TypeOf(sample)

	options := &defineOptions{}
	for i := range opts {
		opts[i](options)
	}
	base := options.base
	if base == nil {
		base = rt.objectType
	}

	methodDefs, err := makeMethodDefs(native, methods)
	if err != nil {
		return nil, err
	}
	getsetDefs, err := makeGetSetDefs(native, options.getsets)
	if err != nil {
		return nil, err
	}

	typ := &Type{
		name:    fmt.Sprintf("dynabind(%s)", native.String()),
		base:    base,
		native:  native,
		methods: methodDefs,
		getsets: getsetDefs,
		getAttr: genericGetAttr,
		setAttr: genericSetAttr,
	}
	typ.rebuildLookup()

	record := &TypeRecord{
		Native:    native,
		ShortName: shortTypeName(native),
		Type:      typ,
		Base:      base,
		methods:   methodDefs,
		getsets:   getsetDefs,
	}

	if prev, ok := rt.records[native]; ok {
		log.Warningf("redefining %v shadows %s; previous tables stay retained", native, prev.Type.name)
	}
	rt.records[native] = record
	rt.recordList = append(rt.recordList, record)

	log.Infof("bound %v as %s (%d methods, %d attributes)", native, typ.name, len(methods), len(options.getsets))

	return typ, nil
}

// shortTypeName strips pointer markers and package qualifiers for
// guest-facing lookups: *pkg.Counter becomes Counter.
func shortTypeName(t reflect.Type) string {
	name := t.String()
	name = strings.TrimLeft(name, "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}
