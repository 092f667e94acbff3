package dynabind

import (
	internal "github.com/dynabind/dynabind/internal"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// HostModule is the import namespace guest interpreters use for the dispatch
// protocol.
const HostModule = "dynabind"

// FunctionExporter configures the dispatch protocol functions a wasm guest
// interpreter imports from the "dynabind" module.
type FunctionExporter interface {
	// ExportFunctions builds the functions to export with a
	// wazero.HostModuleBuilder.
	ExportFunctions(wazero.HostModuleBuilder)
}

// NewFunctionExporter returns an exporter for the dispatch protocol. The
// runtime itself travels per call through the context, so one exporter can
// serve any number of instantiations: attach it with ctx = rt.Attach(ctx)
// before instantiating the guest.
func NewFunctionExporter() FunctionExporter {
	return &functionExporter{}
}

type functionExporter struct{}

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
	f64 = api.ValueTypeF64
)

// ExportFunctions implements FunctionExporter.ExportFunctions
func (e *functionExporter) ExportFunctions(b wazero.HostModuleBuilder) {
	b.NewFunctionBuilder().
		WithName("_dynabind_intern").
		WithParameterNames("ptr", "len").
		WithGoModuleFunction(internal.GuestIntern, []api.ValueType{i32, i32}, []api.ValueType{i32}).
		Export("_dynabind_intern")

	b.NewFunctionBuilder().
		WithName("_dynabind_call").
		WithParameterNames("recv", "name", "args", "kwargs").
		WithGoModuleFunction(internal.GuestCall, []api.ValueType{i32, i32, i32, i32}, []api.ValueType{i32}).
		Export("_dynabind_call")

	b.NewFunctionBuilder().
		WithName("_dynabind_get").
		WithParameterNames("recv", "name").
		WithGoModuleFunction(internal.GuestGet, []api.ValueType{i32, i32}, []api.ValueType{i32}).
		Export("_dynabind_get")

	b.NewFunctionBuilder().
		WithName("_dynabind_set").
		WithParameterNames("recv", "name", "value").
		WithGoModuleFunction(internal.GuestSet, []api.ValueType{i32, i32, i32}, []api.ValueType{i32}).
		Export("_dynabind_set")

	b.NewFunctionBuilder().
		WithName("_dynabind_args_new").
		WithGoModuleFunction(internal.GuestArgsNew, []api.ValueType{}, []api.ValueType{i32}).
		Export("_dynabind_args_new")

	b.NewFunctionBuilder().
		WithName("_dynabind_args_push").
		WithParameterNames("args", "value").
		WithGoModuleFunction(internal.GuestArgsPush, []api.ValueType{i32, i32}, []api.ValueType{}).
		Export("_dynabind_args_push")

	b.NewFunctionBuilder().
		WithName("_dynabind_kwargs_new").
		WithGoModuleFunction(internal.GuestKwargsNew, []api.ValueType{}, []api.ValueType{i32}).
		Export("_dynabind_kwargs_new")

	b.NewFunctionBuilder().
		WithName("_dynabind_kwargs_set").
		WithParameterNames("kwargs", "name", "value").
		WithGoModuleFunction(internal.GuestKwargsSet, []api.ValueType{i32, i32, i32}, []api.ValueType{}).
		Export("_dynabind_kwargs_set")

	b.NewFunctionBuilder().
		WithName("_dynabind_int_new").
		WithParameterNames("value").
		WithGoModuleFunction(internal.GuestIntNew, []api.ValueType{i64}, []api.ValueType{i32}).
		Export("_dynabind_int_new")

	b.NewFunctionBuilder().
		WithName("_dynabind_int_value").
		WithParameterNames("handle").
		WithGoModuleFunction(internal.GuestIntValue, []api.ValueType{i32}, []api.ValueType{i64}).
		Export("_dynabind_int_value")

	b.NewFunctionBuilder().
		WithName("_dynabind_float_new").
		WithParameterNames("value").
		WithGoModuleFunction(internal.GuestFloatNew, []api.ValueType{f64}, []api.ValueType{i32}).
		Export("_dynabind_float_new")

	b.NewFunctionBuilder().
		WithName("_dynabind_float_value").
		WithParameterNames("handle").
		WithGoModuleFunction(internal.GuestFloatValue, []api.ValueType{i32}, []api.ValueType{f64}).
		Export("_dynabind_float_value")

	b.NewFunctionBuilder().
		WithName("_dynabind_bool_new").
		WithParameterNames("value").
		WithGoModuleFunction(internal.GuestBoolNew, []api.ValueType{i32}, []api.ValueType{i32}).
		Export("_dynabind_bool_new")

	b.NewFunctionBuilder().
		WithName("_dynabind_bool_value").
		WithParameterNames("handle").
		WithGoModuleFunction(internal.GuestBoolValue, []api.ValueType{i32}, []api.ValueType{i32}).
		Export("_dynabind_bool_value")

	b.NewFunctionBuilder().
		WithName("_dynabind_string_new").
		WithParameterNames("ptr", "len").
		WithGoModuleFunction(internal.GuestStringNew, []api.ValueType{i32, i32}, []api.ValueType{i32}).
		Export("_dynabind_string_new")

	b.NewFunctionBuilder().
		WithName("_dynabind_string_len").
		WithParameterNames("handle").
		WithGoModuleFunction(internal.GuestStringLen, []api.ValueType{i32}, []api.ValueType{i32}).
		Export("_dynabind_string_len")

	b.NewFunctionBuilder().
		WithName("_dynabind_string_read").
		WithParameterNames("handle", "ptr").
		WithGoModuleFunction(internal.GuestStringRead, []api.ValueType{i32, i32}, []api.ValueType{i32}).
		Export("_dynabind_string_read")

	b.NewFunctionBuilder().
		WithName("_dynabind_type_name").
		WithParameterNames("handle").
		WithGoModuleFunction(internal.GuestTypeName, []api.ValueType{i32}, []api.ValueType{i32}).
		Export("_dynabind_type_name")

	b.NewFunctionBuilder().
		WithName("_dynabind_incref").
		WithParameterNames("handle").
		WithGoModuleFunction(internal.GuestIncref, []api.ValueType{i32}, []api.ValueType{}).
		Export("_dynabind_incref")

	b.NewFunctionBuilder().
		WithName("_dynabind_decref").
		WithParameterNames("handle").
		WithGoModuleFunction(internal.GuestDecref, []api.ValueType{i32}, []api.ValueType{}).
		Export("_dynabind_decref")

	b.NewFunctionBuilder().
		WithName("_dynabind_error_occurred").
		WithGoModuleFunction(internal.GuestErrorOccurred, []api.ValueType{}, []api.ValueType{i32}).
		Export("_dynabind_error_occurred")

	b.NewFunctionBuilder().
		WithName("_dynabind_error_message").
		WithGoModuleFunction(internal.GuestErrorMessage, []api.ValueType{}, []api.ValueType{i32}).
		Export("_dynabind_error_message")

	b.NewFunctionBuilder().
		WithName("_dynabind_clear_error").
		WithGoModuleFunction(internal.GuestClearError, []api.ValueType{}, []api.ValueType{}).
		Export("_dynabind_clear_error")
}
