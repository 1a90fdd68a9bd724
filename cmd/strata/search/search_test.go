package searchcmder_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	searchcmder "github.com/papercomputeco/strata/cmd/strata/search"
	"github.com/papercomputeco/strata/pkg/query"
)

var _ = Describe("NewSearchCmd", func() {
	It("requires exactly one query argument", func() {
		cmd := searchcmder.NewSearchCmd()
		Expect(cmd.Args(cmd, []string{})).NotTo(Succeed())
		Expect(cmd.Args(cmd, []string{"q"})).To(Succeed())
	})

	It("registers the store flags", func() {
		cmd := searchcmder.NewSearchCmd()
		for _, name := range []string{"sqlite", "vector-store", "embedding-model", "filter", "top", "threshold"} {
			Expect(cmd.Flags().Lookup(name)).NotTo(BeNil(), name)
		}
	})
})

var _ = Describe("ParseFilters", func() {
	It("parses key=value pairs", func() {
		f, err := searchcmder.ParseFilters([]string{"domain=philosophy", "author = Kant"})
		Expect(err).NotTo(HaveOccurred())
		Expect(f).To(Equal(map[string]string{"domain": "philosophy", "author": "Kant"}))
	})

	It("returns nil for no filters", func() {
		f, err := searchcmder.ParseFilters(nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(f).To(BeNil())
	})

	It("rejects malformed pairs", func() {
		_, err := searchcmder.ParseFilters([]string{"domain"})
		Expect(err).To(MatchError(ContainSubstring("expected key=value")))
	})
})

var _ = Describe("Print", func() {
	It("prints results and the partial marker", func() {
		var buf bytes.Buffer
		searchcmder.Print(&buf, "duty", &query.SearchResult{
			Results: []query.FusedResult{{
				ID:      "abc",
				Title:   "Groundwork",
				Domain:  "philosophy",
				Snippet: "act only according to that maxim",
				Score:   0.7,
				Sources: []query.Backend{query.BackendRelational},
			}},
			Partial:  true,
			Excluded: []query.Backend{query.BackendVector},
		})

		out := buf.String()
		Expect(out).To(ContainSubstring("Groundwork"))
		Expect(out).To(ContainSubstring("abc"))
		Expect(out).To(ContainSubstring("via relational"))
		Expect(out).To(ContainSubstring("vector store unavailable"))
	})

	It("reports no results", func() {
		var buf bytes.Buffer
		searchcmder.Print(&buf, "nothing", &query.SearchResult{})
		Expect(buf.String()).To(ContainSubstring("No results found."))
	})
})
