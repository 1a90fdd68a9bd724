package schema_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/schema"
)

var _ = Describe("TableName", func() {
	It("joins domain, content type and a short hash", func() {
		name := schema.TableName("philosophy", "book")
		Expect(name).To(MatchRegexp(`^philosophy_book_[0-9a-f]{8}$`))
	})

	It("is deterministic", func() {
		Expect(schema.TableName("science", "academic_paper")).
			To(Equal(schema.TableName("science", "academic_paper")))
	})

	It("is case insensitive", func() {
		Expect(schema.TableName("Science", "Book")).To(Equal(schema.TableName("science", "book")))
	})

	It("keeps pairs that sanitise alike apart", func() {
		a := schema.TableName("data-science", "book")
		b := schema.TableName("data_science", "book")
		Expect(a).NotTo(Equal(b))
		Expect(a[:len(a)-9]).To(Equal(b[:len(b)-9]))
	})

	It("produces safe identifiers from hostile input", func() {
		name := schema.TableName(`x"; DROP TABLE users; --`, "9 lives!")
		Expect(schema.ValidIdent(name)).To(BeTrue())
		Expect(name).NotTo(ContainSubstring(" "))
		Expect(name).NotTo(ContainSubstring(`"`))
	})

	It("bounds the identifier length", func() {
		name := schema.TableName(strings.Repeat("verylongdomain", 10), strings.Repeat("type", 20))
		Expect(len(name)).To(BeNumerically("<=", 48))
		Expect(schema.ValidIdent(name)).To(BeTrue())
	})

	It("falls back for empty parts", func() {
		Expect(schema.TableName("", "")).To(HavePrefix("general_document_"))
		Expect(schema.TableName("???", "!!!")).To(HavePrefix("general_document_"))
	})
})

var _ = Describe("ValidIdent", func() {
	DescribeTable("validates identifiers",
		func(name string, valid bool) {
			Expect(schema.ValidIdent(name)).To(Equal(valid))
		},
		Entry("lowercase", "strata_content", true),
		Entry("digits after first rune", "t1_b2", true),
		Entry("leading digit", "1table", false),
		Entry("uppercase", "Table", false),
		Entry("quote", `a"b`, false),
		Entry("empty", "", false),
	)
})
