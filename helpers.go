package dynabind

import (
	"fmt"
	"reflect"
)

// ReceiverAs asserts the unwrapped receiver to its concrete Go type. The
// trampoline has already verified the stored type, so a failure here means a
// generated binding was registered against the wrong type.
func ReceiverAs[T any](recv any) (T, error) {
	v, ok := recv.(T)
	if !ok {
		var zero T
		return zero, &TypeMismatchError{
			Want: reflect.TypeOf(zero),
			Got:  reflect.TypeOf(recv),
		}
	}
	return v, nil
}

// ArgAs converts the i-th positional argument to the wanted Go type. Dynamic
// integers arrive as int64 and floats as float64; numeric widths are relaxed
// the same way the value bridge relaxes them.
func ArgAs[T any](args []any, i int) (T, error) {
	var zero T
	if i >= len(args) {
		return zero, &ConversionError{Value: nil, Target: fmt.Sprintf("argument %d (%T)", i, zero)}
	}
	return ValueAs[T](args[i])
}

// ValueAs converts a single bridged value to the wanted Go type.
func ValueAs[T any](value any) (T, error) {
	if v, ok := value.(T); ok {
		return v, nil
	}

	var zero T
	want := reflect.TypeOf(zero)
	if value != nil && want != nil {
		got := reflect.TypeOf(value)
		if isNumericKind(got.Kind()) && isNumericKind(want.Kind()) {
			return reflect.ValueOf(value).Convert(want).Interface().(T), nil
		}
	}
	return zero, &ConversionError{Value: value, Target: fmt.Sprintf("%T", zero)}
}

// ErrWrongArgCount is returned by generated overload switches when no clause
// matches the argument count.
func ErrWrongArgCount(symbol string, count int) error {
	return &WrongArgCountError{Symbol: symbol, Count: count}
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
