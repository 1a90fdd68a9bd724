package training_test

import (
	"math/rand/v2"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/catalog"
	"github.com/papercomputeco/strata/pkg/content"
	"github.com/papercomputeco/strata/pkg/features"
	"github.com/papercomputeco/strata/pkg/strategy"
	"github.com/papercomputeco/strata/pkg/strategy/model"
	"github.com/papercomputeco/strata/pkg/strategy/training"
)

var _ = Describe("Synthetic", func() {
	It("draws the requested number of samples per strategy inside the envelopes", func() {
		samples := training.Synthetic(rand.New(rand.NewPCG(1, 2)), 50)
		Expect(samples).To(HaveLen(50 * len(strategy.All)))

		counts := map[strategy.Strategy]int{}
		for _, s := range samples {
			counts[s.Strategy]++
			fv := s.Features
			for _, v := range []float64{fv.SemanticComplexity, fv.TopicCoherence, fv.InformationDensity, fv.QueryPotential} {
				Expect(v).To(And(BeNumerically(">=", 0), BeNumerically("<=", 1)))
			}
			if s.Strategy == strategy.VectorOnly {
				Expect(fv.SizeBytes).To(BeNumerically(">=", 50_000_000))
			}
			if s.Strategy == strategy.RelationalFull {
				Expect(fv.SizeBytes).To(BeNumerically("<=", 50_000))
			}
		}
		for _, s := range strategy.All {
			Expect(counts[s]).To(Equal(50))
		}
	})

	It("is reproducible for a seed", func() {
		a := training.Synthetic(rand.New(rand.NewPCG(7, 7)), 5)
		b := training.Synthetic(rand.New(rand.NewPCG(7, 7)), 5)
		Expect(a).To(Equal(b))
	})

	It("trains a model that separates the classes", func() {
		rng := rand.New(rand.NewPCG(3, 4))
		train, test := training.Split(rng, training.Synthetic(rng, 200), 0.2)
		Expect(test).To(HaveLen(160))
		Expect(train).To(HaveLen(640))

		m, err := model.Train(train)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Accuracy(test)).To(BeNumerically(">", 0.6))
	})
})

var _ = Describe("FromHistory", func() {
	It("keeps only fully stored entries with a feature snapshot", func() {
		fv := features.FeatureVector{SizeBytes: 2048, QueryPotential: 0.5}
		samples := training.FromHistory([]catalog.Entry{
			{ID: "a", Strategy: strategy.Hybrid, Status: content.StatusStored, Features: fv},
			{ID: "b", Strategy: strategy.Hybrid, Status: content.StatusDegraded, Features: fv},
			{ID: "c", Strategy: strategy.VectorOnly, Status: content.StatusFailed, Features: fv},
			{ID: "d", Strategy: strategy.RelationalFull, Status: content.StatusStored},
		})
		Expect(samples).To(HaveLen(1))
		Expect(samples[0].Strategy).To(Equal(strategy.Hybrid))
		Expect(samples[0].Features.SizeBytes).To(Equal(int64(2048)))
	})
})
