package schema_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/content"
	"github.com/papercomputeco/strata/pkg/schema"
	"github.com/papercomputeco/strata/pkg/storage"
	"github.com/papercomputeco/strata/pkg/storage/sqlite"
)

var _ = Describe("Manager", func() {
	var (
		ctx     context.Context
		driver  *sqlite.Driver
		manager *schema.Manager
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		driver, err = sqlite.NewDriver(":memory:")
		Expect(err).NotTo(HaveOccurred())
		manager = schema.NewManager(driver, nil)
		Expect(manager.EnsureSystemTables(ctx)).To(Succeed())
	})

	AfterEach(func() {
		driver.Close()
	})

	It("creates a table once and registers it", func() {
		name, created, err := manager.EnsureTable(ctx, "philosophy", "book")
		Expect(err).NotTo(HaveOccurred())
		Expect(created).To(BeTrue())
		Expect(name).To(Equal(schema.TableName("philosophy", "book")))

		exists, err := driver.TableExists(ctx, name)
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeTrue())

		_, created, err = manager.EnsureTable(ctx, "philosophy", "book")
		Expect(err).NotTo(HaveOccurred())
		Expect(created).To(BeFalse())

		tables, err := manager.Tables(ctx, "philosophy")
		Expect(err).NotTo(HaveOccurred())
		Expect(tables).To(HaveLen(1))
		Expect(tables[0].Name).To(Equal(name))
		Expect(tables[0].FullText).To(BeTrue())
	})

	It("creates exactly one table under concurrent first writes", func() {
		var wg sync.WaitGroup
		var mu sync.Mutex
		createdCount := 0
		names := map[string]struct{}{}

		for range 16 {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				name, created, err := manager.EnsureTable(ctx, "science", "academic_paper")
				Expect(err).NotTo(HaveOccurred())
				mu.Lock()
				defer mu.Unlock()
				names[name] = struct{}{}
				if created {
					createdCount++
				}
			}()
		}
		wg.Wait()

		Expect(createdCount).To(Equal(1))
		Expect(names).To(HaveLen(1))
	})

	It("adopts a table another process already created", func() {
		other := schema.NewManager(driver, nil)
		_, created, err := other.EnsureTable(ctx, "history", "book")
		Expect(err).NotTo(HaveOccurred())
		Expect(created).To(BeTrue())

		_, created, err = manager.EnsureTable(ctx, "history", "book")
		Expect(err).NotTo(HaveOccurred())
		Expect(created).To(BeFalse())
	})

	It("drops tables and unregisters them", func() {
		name, _, err := manager.EnsureTable(ctx, "general", "small_document")
		Expect(err).NotTo(HaveOccurred())

		Expect(manager.DropTable(ctx, name)).To(Succeed())

		exists, err := driver.TableExists(ctx, name)
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeFalse())

		tables, err := manager.Tables(ctx, "")
		Expect(err).NotTo(HaveOccurred())
		Expect(tables).To(BeEmpty())
	})

	It("refuses unsafe names", func() {
		Expect(manager.DropTable(ctx, "x; DROP TABLE strata_tables")).NotTo(Succeed())
		Expect(manager.Analyze(ctx, "Bad Name")).NotTo(Succeed())
	})

	Describe("records", func() {
		var table string

		BeforeEach(func() {
			var err error
			table, _, err = manager.EnsureTable(ctx, "philosophy", "book")
			Expect(err).NotTo(HaveOccurred())
		})

		record := func(id, title, body string, created time.Time) schema.Record {
			return schema.Record{
				ID:          id,
				Title:       title,
				Content:     body,
				Domain:      "philosophy",
				Language:    "en",
				ContentType: "book",
				SizeBytes:   int64(len(body)),
				Strategy:    "hybrid",
				Status:      content.StatusStored,
				Metadata:    map[string]string{"edition": "first"},
				CreatedAt:   created,
			}
		}

		It("upserts and loads records", func() {
			created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
			Expect(schema.UpsertRecord(ctx, driver, table, record("a", "Ethics", "virtue and reason", created))).To(Succeed())

			got, err := schema.LoadRecord(ctx, driver, table, "a")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Title).To(Equal("Ethics"))
			Expect(got.Content).To(Equal("virtue and reason"))
			Expect(got.Metadata).To(HaveKeyWithValue("edition", "first"))
			Expect(got.CreatedAt.Equal(created)).To(BeTrue())

			updated := record("a", "Ethics, revised", "", time.Now())
			Expect(schema.UpsertRecord(ctx, driver, table, updated)).To(Succeed())

			got, err = schema.LoadRecord(ctx, driver, table, "a")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Title).To(Equal("Ethics, revised"))
			Expect(got.Content).To(BeEmpty())
			Expect(got.CreatedAt.Equal(created)).To(BeTrue())

			n, err := schema.CountRecords(ctx, driver, table)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(1)))
		})

		It("reports missing records", func() {
			_, err := schema.LoadRecord(ctx, driver, table, "missing")
			Expect(err).To(MatchError(storage.NotFoundError{ID: "missing"}))
		})

		It("updates status and deletes", func() {
			Expect(schema.UpsertRecord(ctx, driver, table, record("a", "t", "b", time.Now()))).To(Succeed())
			Expect(schema.SetStatus(ctx, driver, table, "a", content.StatusDegraded)).To(Succeed())

			got, err := schema.LoadRecord(ctx, driver, table, "a")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(content.StatusDegraded))

			Expect(schema.DeleteRecord(ctx, driver, table, "a")).To(Succeed())
			Expect(schema.DeleteRecord(ctx, driver, table, "a")).To(Succeed())
			_, err = schema.LoadRecord(ctx, driver, table, "a")
			Expect(err).To(HaveOccurred())
		})

		It("ranks text matches with title hits first", func() {
			base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			Expect(schema.UpsertRecord(ctx, driver, table, record("body", "Notes", "a long essay on virtue", base))).To(Succeed())
			Expect(schema.UpsertRecord(ctx, driver, table, record("title", "Virtue", "an essay", base))).To(Succeed())
			Expect(schema.UpsertRecord(ctx, driver, table, record("none", "Logic", "syllogisms", base))).To(Succeed())

			hits, err := schema.SearchText(ctx, driver, table, "virtue", schema.Filter{}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(HaveLen(2))
			Expect(hits[0].ID).To(Equal("title"))
			Expect(hits[1].ID).To(Equal("body"))
			Expect(hits[0].Rank).To(BeNumerically(">", hits[1].Rank))
			Expect(hits[0].Table).To(Equal(table))
		})

		It("applies filters and limits", func() {
			for i := range 5 {
				r := record(fmt.Sprintf("r%d", i), "Virtue", "virtue", time.Now())
				if i%2 == 0 {
					r.Language = "de"
				}
				Expect(schema.UpsertRecord(ctx, driver, table, r)).To(Succeed())
			}

			hits, err := schema.SearchText(ctx, driver, table, "virtue", schema.Filter{Language: "de"}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(HaveLen(3))

			hits, err = schema.SearchText(ctx, driver, table, "virtue", schema.Filter{}, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(HaveLen(2))
		})

		It("returns nothing for an empty query", func() {
			hits, err := schema.SearchText(ctx, driver, table, " ! ", schema.Filter{}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(BeEmpty())
		})
	})
})

var _ = Describe("IndexPlan", func() {
	It("adds a full-text index for large text", func() {
		plan := schema.IndexPlan("t", true)
		Expect(plan[0].Kind).To(Equal(schema.IndexFullText))
		Expect(plan[0].DDL("postgres", "t")).To(ContainSubstring("USING GIN"))
		Expect(plan[0].DDL("sqlite3", "t")).To(ContainSubstring("COLLATE NOCASE"))
	})

	It("uses b-tree indexes otherwise", func() {
		for _, ix := range schema.IndexPlan("t", false) {
			Expect(ix.Kind).To(Equal(schema.IndexBTree))
			Expect(ix.DDL("postgres", "t")).NotTo(ContainSubstring("GIN"))
		}
	})
})

var _ = Describe("SearchTerms", func() {
	It("lowercases, dedupes and drops short tokens", func() {
		Expect(schema.SearchTerms("Virtue, virtue and a REASON")).To(Equal([]string{"virtue", "and", "reason"}))
	})
})
