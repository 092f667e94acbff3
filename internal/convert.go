package dynabind

import (
	"math"
	"reflect"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
)

var anyType = reflect.TypeOf((*any)(nil)).Elem()

// WideString is a foreign text payload encoded in UTF-16 or UTF-32 code
// units. CharSize follows the wire convention: 2 for UTF-16, 4 for UTF-32,
// little endian in both cases.
type WideString struct {
	Bytes    []byte
	CharSize int
}

func decodeWideString(ws WideString) (string, error) {
	switch ws.CharSize {
	case 2:
		dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
		out, err := dec.Bytes(ws.Bytes)
		if err != nil {
			return "", newConversionError(ws, "str (UTF-16)")
		}
		return string(out), nil
	case 4:
		dec := utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM).NewDecoder()
		out, err := dec.Bytes(ws.Bytes)
		if err != nil {
			return "", newConversionError(ws, "str (UTF-32)")
		}
		return string(out), nil
	}
	return "", newConversionError(ws, "str (unknown char size)")
}

// ToDynamic converts a native value into a dynamic object. The result always
// owns one new reference, singletons included. Values of a bound Go type
// cross as instances of the dynamic type currently bound to them.
func (rt *Runtime) ToDynamic(v any) (*Object, error) {
	switch val := v.(type) {
	case nil:
		return rt.none.IncRef(), nil
	case *Object:
		return val.IncRef(), nil
	case bool:
		return rt.NewBool(val).IncRef(), nil
	case int:
		return rt.NewInt(int64(val)), nil
	case int8:
		return rt.NewInt(int64(val)), nil
	case int16:
		return rt.NewInt(int64(val)), nil
	case int32:
		return rt.NewInt(int64(val)), nil
	case int64:
		return rt.NewInt(val), nil
	case uint8:
		return rt.NewInt(int64(val)), nil
	case uint16:
		return rt.NewInt(int64(val)), nil
	case uint32:
		return rt.NewInt(int64(val)), nil
	case uint:
		if uint64(val) > math.MaxInt64 {
			return nil, newConversionError(v, "int")
		}
		return rt.NewInt(int64(val)), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, newConversionError(v, "int")
		}
		return rt.NewInt(int64(val)), nil
	case float32:
		return rt.NewFloat(float64(val)), nil
	case float64:
		return rt.NewFloat(val), nil
	case string:
		return rt.NewString(val), nil
	case WideString:
		s, err := decodeWideString(val)
		if err != nil {
			return nil, err
		}
		return rt.NewString(s), nil
	case []any:
		items := make([]*Object, len(val))
		for i := range val {
			obj, err := rt.ToDynamic(val[i])
			if err != nil {
				for j := 0; j < i; j++ {
					items[j].DecRef()
				}
				return nil, err
			}
			items[i] = obj
		}
		tuple := rt.NewTuple(items...)
		for i := range items {
			items[i].DecRef()
		}
		return tuple, nil
	case map[string]any:
		m := make(map[string]*Object, len(val))
		for k := range val {
			obj, err := rt.ToDynamic(val[k])
			if err != nil {
				for _, prev := range m {
					prev.DecRef()
				}
				return nil, err
			}
			m[k] = obj
		}
		dict := rt.NewDict(m)
		for k := range m {
			m[k].DecRef()
		}
		return dict, nil
	}

	if v != nil {
		if _, ok := rt.records[reflect.TypeOf(v)]; ok {
			return rt.wrapNative(v)
		}
	}

	return nil, newConversionError(v, "dynamic object")
}

// ToNative converts a dynamic object into a native value of the wanted type.
// The any target yields the generic representation: nil, bool, int64,
// float64, string, []any, map[string]any, or the wrapped native value for
// instances.
func (rt *Runtime) ToNative(o *Object, want reflect.Type) (any, error) {
	generic, err := rt.toGeneric(o)
	if err != nil {
		return nil, err
	}
	if want == anyType || want == nil {
		return generic, nil
	}
	if generic == nil {
		return nil, newConversionError(nil, want.String())
	}

	got := reflect.TypeOf(generic)
	if got == want {
		return generic, nil
	}
	if got.AssignableTo(want) {
		return generic, nil
	}

	// Numeric widths are relaxed across the boundary: dynamic ints travel as
	// int64 and floats as float64, narrowing to the native parameter type
	// here.
	if isNumeric(got.Kind()) && isNumeric(want.Kind()) {
		return reflect.ValueOf(generic).Convert(want).Interface(), nil
	}

	return nil, newConversionError(generic, want.String())
}

func (rt *Runtime) toGeneric(o *Object) (any, error) {
	switch v := o.value.(type) {
	case nil:
		return nil, nil
	case bool, int64, float64, string:
		return v, nil
	case []*Object:
		items := make([]any, len(v))
		for i := range v {
			var err error
			items[i], err = rt.toGeneric(v[i])
			if err != nil {
				return nil, err
			}
		}
		return items, nil
	case map[string]*Object:
		m := make(map[string]any, len(v))
		for k := range v {
			var err error
			m[k], err = rt.toGeneric(v[k])
			if err != nil {
				return nil, err
			}
		}
		return m, nil
	case *boundMethod:
		return nil, newConversionError(o, "native value (bound method)")
	}

	// Instances carry their wrapped native value across unchanged.
	if o.typ != nil && o.typ.native != nil {
		return o.value, nil
	}

	return nil, newConversionError(o.value, "native value")
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
