package generator

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Parse", func() {
	It("parses a full class block", func() {
		desc, err := Parse(counterBlock)

		Expect(err).ToNot(HaveOccurred())
		Expect(desc.TypeName).To(Equal("Counter"))
		Expect(desc.SelfType).To(Equal("*Counter"))
		Expect(desc.Base).To(BeEmpty())

		Expect(desc.Methods).To(HaveLen(1))
		Expect(desc.Methods[0].Name).To(Equal("increment"))
		Expect(desc.Methods[0].Clauses).To(HaveLen(2))
		Expect(desc.Methods[0].Clauses[0].Params).To(HaveLen(1))
		Expect(desc.Methods[0].Clauses[1].Params).To(Equal([]Param{
			{Name: "self", Type: "*Counter"},
			{Name: "by", Type: "int64"},
		}))
		Expect(desc.Methods[0].Clauses[1].Body).To(Equal("self.Count += by"))

		Expect(desc.AccessorNames()).To(Equal([]string{"value"}))
		Expect(desc.Getters).To(HaveKey("value"))
		Expect(desc.Setters).To(HaveKey("value"))
	})

	It("parses a base clause", func() {
		desc, err := Parse(`type Derived <: shapeType
	area(self *Derived) = self.W * self.H
end`)

		Expect(err).ToNot(HaveOccurred())
		Expect(desc.TypeName).To(Equal("Derived"))
		Expect(desc.Base).To(Equal("shapeType"))
	})

	It("keeps bracketed parameter types intact", func() {
		desc, err := Parse(`type Box
	fill(self *Box, items map[string]any) = self.Items = items
end`)

		Expect(err).ToNot(HaveOccurred())
		Expect(desc.Methods[0].Clauses[0].Params[1].Type).To(Equal("map[string]any"))
	})

	It("skips comments and blank lines", func() {
		desc, err := Parse(`
# leading comment
type Counter

	# interior comment
	bump(self *Counter) = self.Count++

end`)

		Expect(err).ToNot(HaveOccurred())
		Expect(desc.Methods).To(HaveLen(1))
	})

	DescribeTable("rejects malformed blocks",
		func(src string, fragment string) {
			_, err := Parse(src)

			var syntax *SyntaxError
			Expect(err).To(BeAssignableToTypeOf(syntax))
			Expect(err).To(MatchError(ContainSubstring(fragment)))
		},
		Entry("missing header", "bump(self *C) = 1\nend", "expected type header"),
		Entry("missing end", "type C\n\tbump(self *C) = 1", "missing end"),
		Entry("content after end", "type C\n\tbump(self *C) = 1\nend\nstray", "content after end"),
		Entry("no parameter list", "type C\n\tbump = 1\nend", "expected name(params...)"),
		Entry("unbalanced parens", "type C\n\tbump(self *C = 1\nend", "unbalanced"),
		Entry("missing assignment", "type C\n\tbump(self *C)\nend", "expected ="),
		Entry("empty body", "type C\n\tbump(self *C) = \nend", "empty body"),
		Entry("self not first", "type C\n\tbump(x *C) = 1\nend", "first parameter must be self"),
		Entry("bad accessor kind", "type C\n\tv.put(self *C) = 1\nend", "unknown accessor"),
		Entry("getter arity", "type C\n\tv.get(self *C, x int64) = 1\nend", "getter takes exactly"),
		Entry("setter arity", "type C\n\tv.set!(self *C) = 1\nend", "setter takes exactly"),
		Entry("conflicting self types", "type C\n\ta(self *C) = 1\n\tb(self *D) = 1\nend", "conflicts with"),
	)

	DescribeTable("rejects inconsistent blocks",
		func(src string, fragment string) {
			_, err := Parse(src)

			var config *ConfigError
			Expect(err).To(BeAssignableToTypeOf(config))
			Expect(err).To(MatchError(ContainSubstring(fragment)))
		},
		Entry("setter without getter",
			"type C\n\tv.set!(self *C, x int64) = self.V = x\nend",
			"has a setter but no getter"),
		Entry("duplicate clause arity",
			"type C\n\tbump(self *C) = 1\n\tbump(self *C) = 2\nend",
			"duplicate clause"),
		Entry("duplicate getter",
			"type C\n\tv.get(self *C) = 1\n\tv.get(self *C) = 2\nend",
			"duplicate getter"),
		Entry("no typed self anywhere",
			"type C\n\tbump(self) = 1\nend",
			"never declares a typed self"),
	)
})
