package dynabind

import (
	"errors"
	"math"
	"reflect"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("value bridge", func() {
	var rt *Runtime

	BeforeEach(func() {
		rt = NewRuntime()
	})

	roundtrip := func(v any) any {
		obj, err := rt.ToDynamic(v)
		Expect(err).ToNot(HaveOccurred())
		defer obj.DecRef()

		out, err := rt.ToNative(obj, anyType)
		Expect(err).ToNot(HaveOccurred())
		return out
	}

	Describe("ToDynamic", func() {
		It("widens every integer width to int64", func() {
			Expect(roundtrip(int(7))).To(Equal(int64(7)))
			Expect(roundtrip(int8(-3))).To(Equal(int64(-3)))
			Expect(roundtrip(int32(100))).To(Equal(int64(100)))
			Expect(roundtrip(uint8(255))).To(Equal(int64(255)))
			Expect(roundtrip(uint32(9))).To(Equal(int64(9)))
			Expect(roundtrip(uint(12))).To(Equal(int64(12)))
			Expect(roundtrip(uint64(1 << 40))).To(Equal(int64(1 << 40)))
		})

		It("rejects an unsigned value beyond the int range", func() {
			_, err := rt.ToDynamic(uint64(math.MaxInt64) + 1)

			var conv *ConversionError
			Expect(errors.As(err, &conv)).To(BeTrue())
		})

		It("widens float32 to float64", func() {
			Expect(roundtrip(float32(1.5))).To(Equal(float64(1.5)))
		})

		It("carries bool, string and nil", func() {
			Expect(roundtrip(true)).To(Equal(true))
			Expect(roundtrip("hello")).To(Equal("hello"))
			Expect(roundtrip(nil)).To(BeNil())
		})

		It("decodes UTF-16 wide strings", func() {
			ws := WideString{Bytes: []byte{'h', 0, 'i', 0}, CharSize: 2}

			Expect(roundtrip(ws)).To(Equal("hi"))
		})

		It("decodes UTF-32 wide strings", func() {
			ws := WideString{Bytes: []byte{'h', 0, 0, 0, 'i', 0, 0, 0}, CharSize: 4}

			Expect(roundtrip(ws)).To(Equal("hi"))
		})

		It("rejects a wide string with an unknown char size", func() {
			_, err := rt.ToDynamic(WideString{Bytes: []byte{'h'}, CharSize: 3})

			var conv *ConversionError
			Expect(errors.As(err, &conv)).To(BeTrue())
		})

		It("builds tuples from slices and dicts from maps", func() {
			Expect(roundtrip([]any{int64(1), "two"})).To(Equal([]any{int64(1), "two"}))
			Expect(roundtrip(map[string]any{"k": true})).To(Equal(map[string]any{"k": true}))
		})

		It("passes objects through with a fresh reference", func() {
			obj := rt.NewInt(5)
			defer obj.DecRef()

			again, err := rt.ToDynamic(obj)
			Expect(err).ToNot(HaveOccurred())
			Expect(again).To(BeIdenticalTo(obj))
			Expect(again.RefCount()).To(Equal(int32(2)))
			again.DecRef()
		})

		It("rejects a native value whose type is not bound", func() {
			type unbound struct{}
			_, err := rt.ToDynamic(&unbound{})

			var conv *ConversionError
			Expect(errors.As(err, &conv)).To(BeTrue())
			Expect(err).To(MatchError(ContainSubstring("dynamic object")))
		})

		It("wraps a bound native value as an instance", func() {
			typ, err := defineCounter(rt)
			Expect(err).ToNot(HaveOccurred())

			counter := &testCounter{}
			obj, err := rt.ToDynamic(counter)
			Expect(err).ToNot(HaveOccurred())
			defer obj.DecRef()

			Expect(obj.Type()).To(BeIdenticalTo(typ))
			Expect(obj.Type().NativeType()).To(Equal(reflect.TypeOf(counter)))
		})
	})

	Describe("ToNative", func() {
		It("narrows dynamic ints to the wanted numeric width", func() {
			obj := rt.NewInt(42)
			defer obj.DecRef()

			out, err := rt.ToNative(obj, reflect.TypeOf(int32(0)))
			Expect(err).ToNot(HaveOccurred())
			Expect(out).To(Equal(int32(42)))
		})

		It("converts between int and float kinds", func() {
			obj := rt.NewInt(3)
			defer obj.DecRef()

			out, err := rt.ToNative(obj, reflect.TypeOf(float64(0)))
			Expect(err).ToNot(HaveOccurred())
			Expect(out).To(Equal(float64(3)))
		})

		It("rejects an impossible target", func() {
			obj := rt.NewString("x")
			defer obj.DecRef()

			_, err := rt.ToNative(obj, reflect.TypeOf(int64(0)))

			var conv *ConversionError
			Expect(errors.As(err, &conv)).To(BeTrue())
		})

		It("returns the wrapped native value for instances", func() {
			_, err := defineCounter(rt)
			Expect(err).ToNot(HaveOccurred())

			counter := &testCounter{count: 2}
			obj, err := rt.ToDynamic(counter)
			Expect(err).ToNot(HaveOccurred())
			defer obj.DecRef()

			out, err := rt.ToNative(obj, anyType)
			Expect(err).ToNot(HaveOccurred())
			Expect(out).To(BeIdenticalTo(counter))
		})

		It("refuses to convert a bound method", func() {
			_, err := defineCounter(rt)
			Expect(err).ToNot(HaveOccurred())

			obj, err := rt.ToDynamic(&testCounter{})
			Expect(err).ToNot(HaveOccurred())
			defer obj.DecRef()

			bound, err := rt.GetAttr(obj, "increment")
			Expect(err).ToNot(HaveOccurred())
			defer bound.DecRef()

			_, err = rt.ToNative(bound, anyType)

			var conv *ConversionError
			Expect(errors.As(err, &conv)).To(BeTrue())
		})
	})
})
