package postgres_test

import (
	"context"
	"os"

	"entgo.io/ent/dialect"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/storage/postgres"
)

// connStr returns the PostgreSQL connection string from environment or skips the test.
func connStr() string {
	dsn := os.Getenv("STRATA_TEST_POSTGRES_DSN")
	if dsn == "" {
		Skip("STRATA_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

var _ = Describe("Driver", func() {
	var (
		driver *postgres.Driver
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		dsn := connStr()

		var err error
		driver, err = postgres.NewDriver(ctx, dsn)
		Expect(err).NotTo(HaveOccurred())
		Expect(driver.Exec(ctx, "DROP TABLE IF EXISTS strata_pg_probe")).To(Succeed())
	})

	AfterEach(func() {
		if driver != nil {
			driver.Close()
		}
	})

	It("reports the postgres dialect", func() {
		Expect(driver.Dialect()).To(Equal(dialect.Postgres))
	})

	It("rebinds placeholders and checks information_schema", func() {
		Expect(driver.Exec(ctx, "CREATE TABLE strata_pg_probe (id TEXT PRIMARY KEY, n INTEGER)")).To(Succeed())
		Expect(driver.Exec(ctx, "INSERT INTO strata_pg_probe (id, n) VALUES (?, ?)", "a", 1)).To(Succeed())

		exists, err := driver.TableExists(ctx, "strata_pg_probe")
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeTrue())

		rows, err := driver.Query(ctx, "SELECT n FROM strata_pg_probe WHERE id = ? AND n > ?", "a", 0)
		Expect(err).NotTo(HaveOccurred())
		defer rows.Close()
		Expect(rows.Next()).To(BeTrue())
		var n int
		Expect(rows.Scan(&n)).To(Succeed())
		Expect(n).To(Equal(1))
	})
})
