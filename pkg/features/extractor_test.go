package features_test

import (
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/content"
	"github.com/papercomputeco/strata/pkg/features"
)

type failingTokenizer struct{}

func (failingTokenizer) Tokenize(string) ([]string, error) {
	return nil, errors.New("nlp service down")
}

const essay = `Chapter one. The study of ethics begins with a question about the good life.
Ethics asks what we owe to others and what we owe to ourselves; the question of the good
life has occupied philosophy since antiquity. See https://plato.stanford.edu for a survey.
Section two considers virtue, duty and consequence as rival answers to that question.`

var _ = Describe("Extractor", func() {
	var e *features.Extractor

	BeforeEach(func() {
		var err error
		e, err = features.New(features.Config{
			AcademicDomains: []string{"science", "philosophy", "literature"},
		})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(e.Close)
	})

	It("is deterministic", func() {
		item := content.NewItem("Ethics", essay, content.WithDomain("philosophy"))

		a, err := e.Extract(item)
		Expect(err).NotTo(HaveOccurred())
		b, err := e.Extract(item)
		Expect(err).NotTo(HaveOccurred())
		Expect(a).To(Equal(b))
	})

	It("keeps every score within [0, 1]", func() {
		item := content.NewItem("Ethics", strings.Repeat(essay, 50), content.WithDomain("philosophy"))
		fv, err := e.Extract(item)
		Expect(err).NotTo(HaveOccurred())

		for _, v := range []float64{fv.SemanticComplexity, fv.TopicCoherence, fv.InformationDensity, fv.QueryPotential} {
			Expect(v).To(BeNumerically(">=", 0))
			Expect(v).To(BeNumerically("<=", 1))
		}
		Expect(fv.LowConfidence).To(BeFalse())
		Expect(fv.SizeBytes).To(Equal(item.SizeBytes))
	})

	It("scores structure, references and academic domains as query potential", func() {
		academic, err := e.Extract(content.NewItem("Ethics", essay, content.WithDomain("philosophy")))
		Expect(err).NotTo(HaveOccurred())

		plain, err := e.Extract(content.NewItem("Note", "a plain note about lunch plans with friends on a sunny afternoon today", content.WithDomain("general")))
		Expect(err).NotTo(HaveOccurred())

		Expect(academic.QueryPotential).To(BeNumerically(">", plain.QueryPotential))
	})

	It("returns neutral scores for empty content", func() {
		fv, err := e.Extract(content.NewItem("Empty", ""))
		Expect(err).NotTo(HaveOccurred())

		Expect(fv.SizeBytes).To(BeZero())
		Expect(fv.DomainTag).To(Equal(content.DefaultDomain))
		for _, v := range []float64{fv.SemanticComplexity, fv.TopicCoherence, fv.InformationDensity, fv.QueryPotential} {
			Expect(v).To(BeNumerically(">=", 0.3))
			Expect(v).To(BeNumerically("<=", 0.5))
		}
		Expect(fv.LowConfidence).To(BeTrue())
		Expect(fv.Notes).To(ContainElement(ContainSubstring("empty content")))
	})

	It("defaults coherence and density below ten words and flags it", func() {
		fv, err := e.Extract(content.NewItem("Short", "Too short to judge."))
		Expect(err).NotTo(HaveOccurred())

		Expect(fv.WordCount).To(Equal(4))
		Expect(fv.TopicCoherence).To(Equal(0.3))
		Expect(fv.InformationDensity).To(Equal(0.3))
		Expect(fv.LowConfidence).To(BeTrue())
		Expect(fv.Notes).To(ContainElement(ContainSubstring("short content")))
	})

	It("carries the content type and domain tag", func() {
		fv, err := e.Extract(content.NewItem("x", essay,
			content.WithDomain("philosophy"),
			content.WithSourceURL("https://arxiv.org/abs/1")))
		Expect(err).NotTo(HaveOccurred())
		Expect(fv.DomainTag).To(Equal("philosophy"))
		Expect(fv.ContentType).To(Equal(content.TypeAcademicPaper))
	})

	It("fails on invalid UTF-8", func() {
		item := content.NewItem("bad", string([]byte{0xff, 0xfe, 0xfd}))
		_, err := e.Extract(item)
		Expect(err).To(MatchError(features.ErrFeatureExtractionFailed))
	})

	It("wraps tokenizer failures", func() {
		failing, err := features.New(features.Config{Tokenizer: failingTokenizer{}, CacheSize: -1})
		Expect(err).NotTo(HaveOccurred())

		_, err = failing.Extract(content.NewItem("x", essay))
		Expect(err).To(MatchError(features.ErrFeatureExtractionFailed))
		Expect(err.Error()).To(ContainSubstring("nlp service down"))
	})

	It("returns independent copies of cached notes", func() {
		item := content.NewItem("Short", "tiny")
		first, err := e.Extract(item)
		Expect(err).NotTo(HaveOccurred())
		first.Notes[0] = "mutated"

		second, err := e.Extract(item)
		Expect(err).NotTo(HaveOccurred())
		Expect(second.Notes[0]).NotTo(Equal("mutated"))
	})
})
