package dynabind_test

import (
	"context"

	dynabind "github.com/dynabind/dynabind"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("guest dispatch protocol", func() {
	var ctx context.Context
	var rt *dynabind.Runtime
	var wr wazero.Runtime
	var mod api.Module

	call := func(name string, params ...uint64) []uint64 {
		fn := mod.ExportedFunction(name)
		Expect(fn).ToNot(BeNil(), name)
		res, err := fn.Call(ctx, params...)
		Expect(err).ToNot(HaveOccurred())
		return res
	}

	handleOf := func(res []uint64) int32 {
		return api.DecodeI32(res[0])
	}

	nameHandle := func(name string) uint64 {
		obj, err := rt.ToDynamic(name)
		Expect(err).ToNot(HaveOccurred())
		defer obj.DecRef()
		return api.EncodeI32(rt.GuestHandle(obj))
	}

	BeforeEach(func() {
		rt = dynabind.NewRuntime()
		ctx = rt.Attach(context.Background())

		// The interpreter engine is required to call a host module's exports
		// directly; the compiling engine only supports them as guest imports.
		wr = wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
		builder := wr.NewHostModuleBuilder(dynabind.HostModule)
		dynabind.NewFunctionExporter().ExportFunctions(builder)

		var err error
		mod, err = builder.Instantiate(ctx)
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		Expect(wr.Close(ctx)).To(Succeed())
	})

	It("roundtrips integers through handles", func() {
		handle := handleOf(call("_dynabind_int_new", uint64(42)))
		Expect(handle).ToNot(BeZero())

		res := call("_dynabind_int_value", api.EncodeI32(handle))
		Expect(int64(res[0])).To(Equal(int64(42)))
	})

	It("roundtrips floats through handles", func() {
		handle := handleOf(call("_dynabind_float_new", api.EncodeF64(2.5)))

		res := call("_dynabind_float_value", api.EncodeI32(handle))
		Expect(api.DecodeF64(res[0])).To(Equal(2.5))
	})

	It("roundtrips booleans through handles", func() {
		handle := handleOf(call("_dynabind_bool_new", 1))

		res := call("_dynabind_bool_value", api.EncodeI32(handle))
		Expect(res[0]).To(Equal(uint64(1)))
	})

	It("raises when a handle is read as the wrong primitive", func() {
		handle := handleOf(call("_dynabind_int_new", uint64(1)))

		res := call("_dynabind_bool_value", api.EncodeI32(handle))
		Expect(res[0]).To(BeZero())

		occurred := call("_dynabind_error_occurred")
		Expect(occurred[0]).To(Equal(uint64(1)))

		call("_dynabind_clear_error")
		occurred = call("_dynabind_error_occurred")
		Expect(occurred[0]).To(BeZero())
	})

	It("dispatches a method call end to end", func() {
		_, err := registerCounter(rt)
		Expect(err).ToNot(HaveOccurred())

		counter := &Counter{}
		recv, err := rt.WrapForGuest(counter)
		Expect(err).ToNot(HaveOccurred())

		args := handleOf(call("_dynabind_args_new"))
		by := handleOf(call("_dynabind_int_new", uint64(41)))
		call("_dynabind_args_push", api.EncodeI32(args), api.EncodeI32(by))

		res := handleOf(call("_dynabind_call",
			api.EncodeI32(recv), nameHandle("increment"), api.EncodeI32(args), 0))
		Expect(res).ToNot(BeZero())
		Expect(counter.Count).To(Equal(int64(41)))

		value := handleOf(call("_dynabind_get", api.EncodeI32(recv), nameHandle("value")))
		Expect(value).ToNot(BeZero())

		out := call("_dynabind_int_value", api.EncodeI32(value))
		Expect(int64(out[0])).To(Equal(int64(41)))
	})

	It("writes an attribute from the guest side", func() {
		_, err := registerCounter(rt)
		Expect(err).ToNot(HaveOccurred())

		counter := &Counter{}
		recv, err := rt.WrapForGuest(counter)
		Expect(err).ToNot(HaveOccurred())

		value := handleOf(call("_dynabind_int_new", uint64(7)))
		res := call("_dynabind_set", api.EncodeI32(recv), nameHandle("value"), api.EncodeI32(value))

		Expect(api.DecodeI32(res[0])).To(Equal(int32(0)))
		Expect(counter.Count).To(Equal(int64(7)))
	})

	It("reports failures through the error protocol", func() {
		_, err := registerCounter(rt)
		Expect(err).ToNot(HaveOccurred())

		recv, err := rt.WrapForGuest(&Counter{})
		Expect(err).ToNot(HaveOccurred())

		res := call("_dynabind_get", api.EncodeI32(recv), nameHandle("missing"))
		Expect(handleOf(res)).To(BeZero())

		occurred := call("_dynabind_error_occurred")
		Expect(occurred[0]).To(Equal(uint64(1)))

		message := handleOf(call("_dynabind_error_message"))
		Expect(message).ToNot(BeZero())

		length := call("_dynabind_string_len", api.EncodeI32(message))
		Expect(api.DecodeI32(length[0])).To(BeNumerically(">", 0))

		occurred = call("_dynabind_error_occurred")
		Expect(occurred[0]).To(BeZero())
	})

	It("names the type behind a handle", func() {
		handle := handleOf(call("_dynabind_int_new", uint64(1)))

		name := handleOf(call("_dynabind_type_name", api.EncodeI32(handle)))
		Expect(name).ToNot(BeZero())

		length := call("_dynabind_string_len", api.EncodeI32(name))
		Expect(api.DecodeI32(length[0])).To(Equal(int32(len("int"))))
	})

	It("frees a slot once every guest reference is dropped", func() {
		handle := handleOf(call("_dynabind_int_new", uint64(5)))
		live := rt.LiveGuestHandles()

		call("_dynabind_incref", api.EncodeI32(handle))
		call("_dynabind_decref", api.EncodeI32(handle))
		Expect(rt.LiveGuestHandles()).To(Equal(live))

		call("_dynabind_decref", api.EncodeI32(handle))
		Expect(rt.LiveGuestHandles()).To(Equal(live - 1))
	})
})
