package analyzer_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/analyzer"
	"github.com/papercomputeco/strata/pkg/content"
)

var _ = Describe("Keyword analyzer", func() {
	var a *analyzer.Keyword

	BeforeEach(func() {
		a = analyzer.NewKeyword(0)
	})

	It("picks the domain with the most keyword hits", func() {
		item := content.NewItem("Notes", "The patient received clinical treatment for the disease. A study followed.")
		hints, err := a.Analyze(context.Background(), item)
		Expect(err).NotTo(HaveOccurred())
		Expect(hints.DomainTag).To(Equal("medicine"))
	})

	It("considers the source url", func() {
		item := content.NewItem("x", "plain words only", content.WithSourceURL("https://example.org/philosophy/ethics"))
		hints, err := a.Analyze(context.Background(), item)
		Expect(err).NotTo(HaveOccurred())
		Expect(hints.DomainTag).To(Equal("philosophy"))
	})

	It("falls back to the default domain with no hits", func() {
		item := content.NewItem("x", "zzz qqq")
		hints, err := a.Analyze(context.Background(), item)
		Expect(err).NotTo(HaveOccurred())
		Expect(hints.DomainTag).To(Equal(content.DefaultDomain))
		Expect(hints.QueryPotential).To(BeNil())
	})

	It("only scans the configured window", func() {
		a = analyzer.NewKeyword(10)
		item := content.NewItem("x", "aaaaaaaaaaaaaaaaaaaa theorem proof equation")
		hints, err := a.Analyze(context.Background(), item)
		Expect(err).NotTo(HaveOccurred())
		Expect(hints.DomainTag).To(Equal(content.DefaultDomain))
	})

	It("returns the context error when cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := a.Analyze(ctx, content.NewItem("x", "y"))
		Expect(err).To(MatchError(context.Canceled))
	})
})
