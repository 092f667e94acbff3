package dynabind

import (
	"fmt"
	"reflect"
)

// ConversionError reports a value that could not be moved across the runtime
// boundary in either direction.
type ConversionError struct {
	Value  any
	Target string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("cannot convert %T to %s", e.Value, e.Target)
}

func newConversionError(value any, target string) *ConversionError {
	return &ConversionError{Value: value, Target: target}
}

// TypeMismatchError reports a handle whose stored native value does not match
// the type the trampoline was generated for. This is a registration or
// aliasing bug on the host side, not something a guest can provoke, so it is
// treated as fatal to the call.
type TypeMismatchError struct {
	Want reflect.Type
	Got  reflect.Type
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("handle holds %v, trampoline expects %v", e.Got, e.Want)
}

// ConfigurationError reports a malformed registration: an accessor without a
// getter, an empty table entry, or a malformed declarative line. It is raised
// at registration time and aborts the registration, it never occurs during a
// live dispatch.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

func newConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// NativeError wraps an error raised by a user-supplied native function body.
type NativeError struct {
	Symbol string
	Err    error
}

func (e *NativeError) Error() string {
	return fmt.Sprintf("error in %s: %v", e.Symbol, e.Err)
}

func (e *NativeError) Unwrap() error {
	return e.Err
}

// WrongArgCountError is returned by generated overload switches when no clause
// matches the number of arguments.
type WrongArgCountError struct {
	Symbol string
	Count  int
}

func (e *WrongArgCountError) Error() string {
	return fmt.Sprintf("%s called with an invalid number of arguments (%d)", e.Symbol, e.Count)
}
