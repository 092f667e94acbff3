package dynabind

import (
	"fmt"
	"reflect"
)

// NativeFunc is the uniform native calling convention for bridged methods:
// the unwrapped receiver, the converted positional arguments and the
// converted keyword arguments (nil when the caller supplied no keyword
// container).
type NativeFunc func(recv any, args []any, kwargs map[string]any) (any, error)

// NativeGetter is the native convention for attribute reads.
type NativeGetter func(recv any) (any, error)

// NativeSetter is the native convention for attribute writes. Its return
// value is ignored beyond the error.
type NativeSetter func(recv any, value any) error

// translateError converts a native-side failure into the runtime's pending
// error state. Every trampoline funnels through here exactly once per failed
// dispatch.
func (rt *Runtime) translateError(symbol string, err error) {
	switch err.(type) {
	case *ConversionError, *TypeMismatchError, *NativeError:
		rt.Raise(err)
	default:
		rt.Raise(&NativeError{Symbol: symbol, Err: err})
	}
	log.Debugf("dispatch %s failed: %v", symbol, err)
}

// recoverToError maps a panic in a native function body onto the same error
// path as a returned error.
func recoverToError(symbol string, out *error) {
	if r := recover(); r != nil {
		if err, ok := r.(error); ok {
			*out = &NativeError{Symbol: symbol, Err: err}
			return
		}
		*out = &NativeError{Symbol: symbol, Err: fmt.Errorf("panic: %v", r)}
	}
}

func callNative(symbol string, fn NativeFunc, recv any, args []any, kwargs map[string]any) (res any, err error) {
	defer recoverToError(symbol, &err)
	return fn(recv, args, kwargs)
}

func callGetter(symbol string, fn NativeGetter, recv any) (res any, err error) {
	defer recoverToError(symbol, &err)
	return fn(recv)
}

func callSetter(symbol string, fn NativeSetter, recv any, value any) (err error) {
	defer recoverToError(symbol, &err)
	return fn(recv, value)
}

// makeCallTrampoline generates the method dispatch trampoline for one table
// entry. The trampoline unwraps the receiver, converts the borrowed argument
// containers, invokes the native function and converts the result back,
// transferring one reference to the caller. On any failure it raises on the
// runtime and returns the nil sentinel. The positional container is borrowed
// and never released here.
func makeCallTrampoline(symbol string, fn NativeFunc, want reflect.Type) CallSlot {
	return func(rt *Runtime, recv, args, kwargs *Object) *Object {
		self, err := unwrapHandle(recv, want)
		if err != nil {
			rt.translateError(symbol, err)
			return nil
		}

		var positional []any
		if args != nil {
			elems, ok := args.value.([]*Object)
			if !ok {
				rt.translateError(symbol, newConversionError(args.value, "argument tuple"))
				return nil
			}
			positional = make([]any, len(elems))
			for i := range elems {
				positional[i], err = rt.ToNative(elems[i], anyType)
				if err != nil {
					rt.translateError(symbol, err)
					return nil
				}
			}
		}

		// A nil keyword container means no keyword arguments at all; only a
		// real dict is converted.
		var keywords map[string]any
		if kwargs != nil {
			entries, ok := kwargs.value.(map[string]*Object)
			if !ok {
				rt.translateError(symbol, newConversionError(kwargs.value, "keyword dict"))
				return nil
			}
			keywords = make(map[string]any, len(entries))
			for k := range entries {
				keywords[k], err = rt.ToNative(entries[k], anyType)
				if err != nil {
					rt.translateError(symbol, err)
					return nil
				}
			}
		}

		res, err := callNative(symbol, fn, self, positional, keywords)
		if err != nil {
			rt.translateError(symbol, err)
			return nil
		}

		obj, err := rt.ToDynamic(res)
		if err != nil {
			rt.translateError(symbol, err)
			return nil
		}
		return obj
	}
}

// makeGetTrampoline generates the attribute-read trampoline for one getset
// entry. The returned object owns one reference, as the get protocol
// requires.
func makeGetTrampoline(symbol string, fn NativeGetter, want reflect.Type) GetSlot {
	return func(rt *Runtime, recv *Object) *Object {
		self, err := unwrapHandle(recv, want)
		if err != nil {
			rt.translateError(symbol, err)
			return nil
		}

		res, err := callGetter(symbol, fn, self)
		if err != nil {
			rt.translateError(symbol, err)
			return nil
		}

		obj, err := rt.ToDynamic(res)
		if err != nil {
			rt.translateError(symbol, err)
			return nil
		}
		return obj
	}
}

// makeSetTrampoline generates the attribute-write trampoline. The incoming
// value reference is borrowed for the duration of the call and released on
// every path.
func makeSetTrampoline(symbol string, fn NativeSetter, want reflect.Type) SetSlot {
	return func(rt *Runtime, recv, value *Object) int {
		value.IncRef()
		defer value.DecRef()

		self, err := unwrapHandle(recv, want)
		if err != nil {
			rt.translateError(symbol, err)
			return -1
		}

		native, err := rt.ToNative(value, anyType)
		if err != nil {
			rt.translateError(symbol, err)
			return -1
		}

		if err := callSetter(symbol, fn, self, native); err != nil {
			rt.translateError(symbol, err)
			return -1
		}
		return 0
	}
}

// makeReadOnlySetSlot fills the set slot of getter-only entries so that
// writes fail at dispatch time instead of falling through to generic lookup.
func makeReadOnlySetSlot(symbol string) SetSlot {
	return func(rt *Runtime, recv, value *Object) int {
		rt.Raise(fmt.Errorf("%s is a read-only attribute", symbol))
		return -1
	}
}
