package dynabind

import (
	"errors"
	"reflect"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("dispatch trampolines", func() {
	var rt *Runtime

	BeforeEach(func() {
		rt = NewRuntime()
	})

	Describe("error translation", func() {
		It("wraps a plain native error and clears it after delivery", func() {
			boom := errors.New("boom")
			_, err := rt.DefineType((*testCounter)(nil), []MethodEntry{
				{Name: "fail", Func: func(recv any, args []any, kwargs map[string]any) (any, error) {
					return nil, boom
				}},
			})
			Expect(err).ToNot(HaveOccurred())

			obj, err := rt.ToDynamic(&testCounter{})
			Expect(err).ToNot(HaveOccurred())
			defer obj.DecRef()

			_, err = rt.CallMethod(obj, "fail")

			var native *NativeError
			Expect(errors.As(err, &native)).To(BeTrue())
			Expect(native.Err).To(MatchError(boom))
			Expect(native.Symbol).To(ContainSubstring("fail"))
			Expect(rt.ErrOccurred()).To(BeNil())
		})

		It("passes bridge errors through untouched", func() {
			conv := newConversionError("x", "int")
			_, err := rt.DefineType((*testCounter)(nil), []MethodEntry{
				{Name: "fail", Func: func(recv any, args []any, kwargs map[string]any) (any, error) {
					return nil, conv
				}},
			})
			Expect(err).ToNot(HaveOccurred())

			obj, err := rt.ToDynamic(&testCounter{})
			Expect(err).ToNot(HaveOccurred())
			defer obj.DecRef()

			_, err = rt.CallMethod(obj, "fail")
			Expect(err).To(BeIdenticalTo(conv))
		})

		It("maps a panic in the native body onto the error path", func() {
			_, err := rt.DefineType((*testCounter)(nil), []MethodEntry{
				{Name: "explode", Func: func(recv any, args []any, kwargs map[string]any) (any, error) {
					panic("kaboom")
				}},
			})
			Expect(err).ToNot(HaveOccurred())

			obj, err := rt.ToDynamic(&testCounter{})
			Expect(err).ToNot(HaveOccurred())
			defer obj.DecRef()

			_, err = rt.CallMethod(obj, "explode")

			var native *NativeError
			Expect(errors.As(err, &native)).To(BeTrue())
			Expect(native.Err).To(MatchError(ContainSubstring("kaboom")))
		})
	})

	Describe("receiver unwrapping", func() {
		It("fails a call whose handle holds the wrong native type", func() {
			typ, err := defineCounter(rt)
			Expect(err).ToNot(HaveOccurred())

			// An instance cell aliased to a foreign payload is a registration
			// bug; the trampoline must refuse it rather than assert.
			forged := &Object{typ: typ, refs: 1, value: "not a counter"}
			defer forged.DecRef()

			_, err = rt.CallMethod(forged, "increment")

			var mismatch *TypeMismatchError
			Expect(errors.As(err, &mismatch)).To(BeTrue())
			Expect(mismatch.Want).To(Equal(reflect.TypeOf((*testCounter)(nil))))
			Expect(mismatch.Got).To(Equal(reflect.TypeOf("")))
		})

		It("fails an attribute read on a forged handle", func() {
			typ, err := defineCounter(rt)
			Expect(err).ToNot(HaveOccurred())

			forged := &Object{typ: typ, refs: 1, value: int64(5)}
			defer forged.DecRef()

			_, err = rt.GetAttrValue(forged, "value")

			var mismatch *TypeMismatchError
			Expect(errors.As(err, &mismatch)).To(BeTrue())
		})
	})

	Describe("reference discipline", func() {
		It("borrows the positional container without releasing it", func() {
			typ, err := defineCounter(rt)
			Expect(err).ToNot(HaveOccurred())

			obj := &Object{typ: typ, refs: 1, value: &testCounter{}}
			defer obj.DecRef()

			args := rt.NewTuple(rt.NewInt(2))
			defer args.DecRef()

			slot := typ.lookupMethod("increment")
			Expect(slot).ToNot(BeNil())

			res := slot.Call(rt, obj, args, nil)
			Expect(res).ToNot(BeNil())
			res.DecRef()

			Expect(args.RefCount()).To(Equal(int32(1)))
		})

		It("balances the borrowed value reference in the set slot", func() {
			typ, err := defineCounter(rt)
			Expect(err).ToNot(HaveOccurred())

			counter := &testCounter{}
			obj := &Object{typ: typ, refs: 1, value: counter}
			defer obj.DecRef()

			value := rt.NewInt(11)
			defer value.DecRef()

			slot := typ.lookupGetSet("value")
			Expect(slot).ToNot(BeNil())

			Expect(slot.Set(rt, obj, value)).To(Equal(0))
			Expect(counter.count).To(Equal(int64(11)))
			Expect(value.RefCount()).To(Equal(int32(1)))
		})

		It("hands the caller one reference to a get result", func() {
			_, err := defineCounter(rt)
			Expect(err).ToNot(HaveOccurred())

			obj, err := rt.ToDynamic(&testCounter{count: 4})
			Expect(err).ToNot(HaveOccurred())
			defer obj.DecRef()

			res, err := rt.GetAttr(obj, "value")
			Expect(err).ToNot(HaveOccurred())
			Expect(res.RefCount()).To(Equal(int32(1)))
			res.DecRef()
		})
	})

	Describe("read-only attributes", func() {
		It("rejects writes through the generated read-only slot", func() {
			_, err := rt.DefineType((*testCounter)(nil), nil,
				WithGetSets(GetSetEntry{Name: "value", Get: counterValueGet}))
			Expect(err).ToNot(HaveOccurred())

			counter := &testCounter{count: 8}
			obj, err := rt.ToDynamic(counter)
			Expect(err).ToNot(HaveOccurred())
			defer obj.DecRef()

			err = rt.SetAttr(obj, "value", int64(0))

			Expect(err).To(MatchError(ContainSubstring("is a read-only attribute")))
			Expect(counter.count).To(Equal(int64(8)))

			value, err := rt.GetAttrValue(obj, "value")
			Expect(err).ToNot(HaveOccurred())
			Expect(value).To(Equal(int64(8)))
		})
	})
})
