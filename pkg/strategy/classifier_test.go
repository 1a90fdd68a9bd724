package strategy_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/content"
	"github.com/papercomputeco/strata/pkg/features"
	"github.com/papercomputeco/strata/pkg/schema"
	"github.com/papercomputeco/strata/pkg/strategy"
)

type stubModel struct {
	strategy strategy.Strategy
	conf     float64
	samples  int
	err      error
	calls    int
}

func (m *stubModel) Predict(features.FeatureVector) (strategy.Strategy, float64, error) {
	m.calls++
	return m.strategy, m.conf, m.err
}

func (m *stubModel) Samples() int { return m.samples }

func vector(size int64, domain string, complexity, coherence, density, potential float64) features.FeatureVector {
	return features.FeatureVector{
		SizeBytes:          size,
		SemanticComplexity: complexity,
		TopicCoherence:     coherence,
		InformationDensity: density,
		QueryPotential:     potential,
		DomainTag:          domain,
		ContentType:        content.TypeMediumDocument,
	}
}

var _ = Describe("Classifier", func() {
	var classifier *strategy.Classifier

	BeforeEach(func() {
		classifier = strategy.NewClassifier(strategy.Config{
			Thresholds: strategy.DefaultThresholds(),
			MinSamples: 50,
		})
	})

	DescribeTable("applies the heuristic rules in order",
		func(fv features.FeatureVector, want strategy.Strategy, conf float64) {
			d := classifier.Decide(fv)
			Expect(d.Strategy).To(Equal(want))
			Expect(d.Confidence).To(BeNumerically("~", conf, 1e-9))
			Expect(d.Reasons).NotTo(BeEmpty())
			Expect(d.Validate()).To(Succeed())
		},
		Entry("small content", vector(10_000, "general", 0.9, 0.5, 0.9, 0.9), strategy.RelationalFull, 0.9),
		Entry("very large content", vector(60_000_000, "science", 0.9, 0.5, 0.9, 0.9), strategy.VectorOnly, 0.95),
		Entry("high query potential and complexity", vector(2_000_000, "philosophy", 0.8, 0.5, 0.5, 0.85), strategy.Hybrid, 0.85),
		Entry("dense information", vector(200_000, "general", 0.5, 0.5, 0.85, 0.5), strategy.RelationalFull, 0.8),
		Entry("large academic content", vector(2_000_000, "science", 0.5, 0.5, 0.5, 0.5), strategy.Hybrid, 0.75),
		Entry("default", vector(2_000_000, "history", 0.5, 0.5, 0.5, 0.5), strategy.RelationalMetadataOnly, 0.6),
	)

	It("treats the size boundaries as exclusive", func() {
		Expect(classifier.Decide(vector(50_000, "history", 0.1, 0.5, 0.1, 0.1)).Strategy).
			To(Equal(strategy.RelationalMetadataOnly))
		Expect(classifier.Decide(vector(50_000_000, "history", 0.1, 0.5, 0.1, 0.1)).Strategy).
			To(Equal(strategy.RelationalMetadataOnly))
	})

	It("routes dense content to the dedicated table", func() {
		d := classifier.Decide(vector(200_000, "law", 0.5, 0.5, 0.85, 0.5))
		Expect(d.Dedicated).To(BeTrue())
		Expect(d.ContentType).To(Equal(content.TypeDenseText))
		Expect(d.TableName).To(Equal(schema.TableName("law", string(content.TypeDenseText))))
	})

	It("names a table only for relational strategies", func() {
		Expect(classifier.Decide(vector(60_000_000, "science", 0.5, 0.5, 0.5, 0.5)).TableName).To(BeEmpty())
		Expect(classifier.Decide(vector(10_000, "science", 0.5, 0.5, 0.5, 0.5)).TableName).
			To(Equal(schema.TableName("science", string(content.TypeMediumDocument))))
	})

	It("defaults an empty domain", func() {
		d := classifier.Decide(vector(10_000, "", 0.5, 0.5, 0.5, 0.5))
		Expect(d.DomainTag).To(Equal(content.DefaultDomain))
	})

	It("carries extractor notes into the reasons", func() {
		fv := vector(100, "general", 0.5, 0.3, 0.3, 0.5)
		fv.Notes = []string{"short content"}
		Expect(classifier.Decide(fv).Reasons).To(ContainElement("short content"))
	})

	It("is deterministic", func() {
		fv := vector(2_000_000, "philosophy", 0.8, 0.5, 0.5, 0.85)
		Expect(classifier.Decide(fv)).To(Equal(classifier.Decide(fv)))
	})

	Context("with a learned model", func() {
		It("overrides a less confident heuristic", func() {
			m := &stubModel{strategy: strategy.Hybrid, conf: 0.92, samples: 300}
			classifier.SetModel(m)

			d := classifier.Decide(vector(2_000_000, "history", 0.5, 0.5, 0.5, 0.5))
			Expect(d.Strategy).To(Equal(strategy.Hybrid))
			Expect(d.Confidence).To(Equal(0.92))
			Expect(d.ModelUsed).To(BeTrue())
			Expect(d.Reasons).To(ContainElement(ContainSubstring("learned model chose hybrid")))
			Expect(d.Validate()).To(Succeed())
		})

		It("keeps a more confident heuristic", func() {
			classifier.SetModel(&stubModel{strategy: strategy.Hybrid, conf: 0.7, samples: 300})

			d := classifier.Decide(vector(10_000, "history", 0.5, 0.5, 0.5, 0.5))
			Expect(d.Strategy).To(Equal(strategy.RelationalFull))
			Expect(d.ModelUsed).To(BeFalse())
		})

		It("ignores an undertrained model", func() {
			m := &stubModel{strategy: strategy.VectorOnly, conf: 0.99, samples: 10}
			classifier.SetModel(m)

			d := classifier.Decide(vector(2_000_000, "history", 0.5, 0.5, 0.5, 0.5))
			Expect(d.Strategy).To(Equal(strategy.RelationalMetadataOnly))
			Expect(m.calls).To(BeZero())
		})

		It("falls back to the heuristic when the model fails", func() {
			classifier.SetModel(&stubModel{err: errors.New("boom"), samples: 300})

			d := classifier.Decide(vector(2_000_000, "history", 0.5, 0.5, 0.5, 0.5))
			Expect(d.Strategy).To(Equal(strategy.RelationalMetadataOnly))
			Expect(d.ModelUsed).To(BeFalse())
		})

		It("rejects an unknown predicted strategy", func() {
			classifier.SetModel(&stubModel{strategy: "tape", conf: 0.99, samples: 300})

			d := classifier.Decide(vector(2_000_000, "history", 0.5, 0.5, 0.5, 0.5))
			Expect(d.Strategy).To(Equal(strategy.RelationalMetadataOnly))
		})

		It("clamps model confidence", func() {
			classifier.SetModel(&stubModel{strategy: strategy.VectorOnly, conf: 1.7, samples: 300})

			d := classifier.Decide(vector(2_000_000, "history", 0.5, 0.5, 0.5, 0.5))
			Expect(d.Confidence).To(Equal(1.0))
			Expect(d.TableName).To(BeEmpty())
		})

		It("can be removed", func() {
			classifier.SetModel(&stubModel{strategy: strategy.Hybrid, conf: 0.99, samples: 300})
			classifier.SetModel(nil)
			Expect(classifier.Model()).To(BeNil())
		})
	})
})

var _ = Describe("Decision", func() {
	DescribeTable("Validate",
		func(d strategy.Decision, ok bool) {
			err := d.Validate()
			if ok {
				Expect(err).NotTo(HaveOccurred())
				return
			}
			Expect(err).To(MatchError(strategy.ErrInvalidDecisionState))
		},
		Entry("valid relational", strategy.Decision{Strategy: strategy.RelationalFull, Confidence: 0.9, Reasons: []string{"r"}, TableName: "t"}, true),
		Entry("valid vector", strategy.Decision{Strategy: strategy.VectorOnly, Confidence: 0.9, Reasons: []string{"r"}}, true),
		Entry("unknown strategy", strategy.Decision{Strategy: "x", Confidence: 0.9, Reasons: []string{"r"}}, false),
		Entry("confidence too high", strategy.Decision{Strategy: strategy.VectorOnly, Confidence: 1.1, Reasons: []string{"r"}}, false),
		Entry("no reasons", strategy.Decision{Strategy: strategy.VectorOnly, Confidence: 0.9}, false),
		Entry("hybrid without table", strategy.Decision{Strategy: strategy.Hybrid, Confidence: 0.9, Reasons: []string{"r"}}, false),
		Entry("vector with table", strategy.Decision{Strategy: strategy.VectorOnly, Confidence: 0.9, Reasons: []string{"r"}, TableName: "t"}, false),
	)

	It("classifies strategy sides", func() {
		Expect(strategy.Hybrid.UsesRelational()).To(BeTrue())
		Expect(strategy.Hybrid.UsesVector()).To(BeTrue())
		Expect(strategy.RelationalMetadataOnly.StoresContent()).To(BeFalse())
		Expect(strategy.VectorOnly.UsesRelational()).To(BeFalse())
	})
})
