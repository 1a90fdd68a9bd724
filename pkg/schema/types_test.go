package schema_test

import (
	"entgo.io/ent/dialect"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/schema"
)

var _ = Describe("CreateTable", func() {
	It("renders columns, attributes and the primary key", func() {
		t := schema.Types(dialect.SQLite)
		q, args := schema.CreateTable("notes").IfNotExists().
			Columns(
				schema.Col("id", t.Text, "NOT NULL"),
				schema.Col("body", t.Text),
				schema.Col("size", t.BigInt, "NOT NULL", "DEFAULT 0"),
			).
			PrimaryKey("id").
			Query()
		Expect(args).To(BeEmpty())
		Expect(q).To(Equal(`CREATE TABLE IF NOT EXISTS "notes" ("id" TEXT NOT NULL, "body" TEXT, "size" INTEGER NOT NULL DEFAULT 0, PRIMARY KEY ("id"))`))
	})

	It("omits IF NOT EXISTS unless asked", func() {
		q, _ := schema.CreateTable("notes").Columns(schema.Col("id", "TEXT")).Query()
		Expect(q).To(Equal(`CREATE TABLE "notes" ("id" TEXT)`))
	})

	It("uses dialect column types", func() {
		Expect(schema.Types(dialect.Postgres).Timestamp).To(Equal("TIMESTAMPTZ"))
		Expect(schema.Types(dialect.SQLite).Double).To(Equal("REAL"))
	})
})
