// Package dynabind presents native Go values to an embedded dynamically-typed
// runtime as first-class class instances. Method calls, attribute reads and
// attribute writes made against such an instance are routed into native Go
// functions through generated dispatch trampolines; arguments, results and
// errors are translated across the runtime boundary on every path.
package dynabind

import (
	internal "github.com/dynabind/dynabind/internal"
)

type Runtime = internal.Runtime

type Object = internal.Object

type Type = internal.Type

type TypeRecord = internal.TypeRecord

type MethodEntry = internal.MethodEntry

type GetSetEntry = internal.GetSetEntry

type MethodDef = internal.MethodDef

type GetSetDef = internal.GetSetDef

type NativeFunc = internal.NativeFunc

type NativeGetter = internal.NativeGetter

type NativeSetter = internal.NativeSetter

type DefineOption = internal.DefineOption

type WideString = internal.WideString

type ConversionError = internal.ConversionError

type TypeMismatchError = internal.TypeMismatchError

type ConfigurationError = internal.ConfigurationError

type NativeError = internal.NativeError

type WrongArgCountError = internal.WrongArgCountError

// RuntimeKey is the context key under which a Runtime travels to guest-facing
// host functions: ctx = rt.Attach(ctx).
type RuntimeKey = internal.RuntimeKey

func NewRuntime() *Runtime {
	return internal.NewRuntime()
}

func WithBase(base *Type) DefineOption {
	return internal.WithBase(base)
}

func WithGetSets(entries ...GetSetEntry) DefineOption {
	return internal.WithGetSets(entries...)
}

// RetainedTableCount reports how many generated tables the process-lifetime
// retention store has accumulated, shadowed definitions included.
func RetainedTableCount() (methods int, getsets int) {
	return internal.RetainedTableCount()
}
