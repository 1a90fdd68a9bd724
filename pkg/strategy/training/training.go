// Package training builds labelled sample sets for the centroid model:
// synthetic bootstrap data for a fresh install and recovered history from
// the catalog once real traffic exists.
package training

import (
	"math/rand/v2"

	"github.com/papercomputeco/strata/pkg/catalog"
	"github.com/papercomputeco/strata/pkg/content"
	"github.com/papercomputeco/strata/pkg/features"
	"github.com/papercomputeco/strata/pkg/strategy"
	"github.com/papercomputeco/strata/pkg/strategy/model"
)

type span struct{ lo, hi float64 }

func (s span) draw(rng *rand.Rand) float64 {
	return s.lo + rng.Float64()*(s.hi-s.lo)
}

// profile is the feature envelope of one strategy's typical content.
type profile struct {
	size, complexity, coherence, density, potential span
	contentType                                     content.Type
}

var profiles = map[strategy.Strategy]profile{
	strategy.RelationalFull: {
		size:        span{1_000, 50_000},
		complexity:  span{0.1, 0.6},
		coherence:   span{0.3, 0.8},
		density:     span{0.2, 0.7},
		potential:   span{0.2, 0.6},
		contentType: content.TypeSmallDocument,
	},
	strategy.VectorOnly: {
		size:        span{50_000_000, 100_000_000},
		complexity:  span{0.4, 0.9},
		coherence:   span{0.5, 0.9},
		density:     span{0.6, 0.9},
		potential:   span{0.7, 1.0},
		contentType: content.TypeLargeDocument,
	},
	strategy.Hybrid: {
		size:        span{100_000, 10_000_000},
		complexity:  span{0.6, 0.9},
		coherence:   span{0.6, 0.9},
		density:     span{0.7, 0.9},
		potential:   span{0.7, 0.9},
		contentType: content.TypeBook,
	},
	strategy.RelationalMetadataOnly: {
		size:        span{50_000, 1_000_000},
		complexity:  span{0.2, 0.6},
		coherence:   span{0.2, 0.6},
		density:     span{0.2, 0.6},
		potential:   span{0.1, 0.5},
		contentType: content.TypeMediumDocument,
	},
}

// Synthetic draws perClass samples for every strategy from its envelope.
// Samples come out grouped by strategy in strategy.All order.
func Synthetic(rng *rand.Rand, perClass int) []model.Sample {
	out := make([]model.Sample, 0, perClass*len(strategy.All))
	for _, s := range strategy.All {
		p := profiles[s]
		for range perClass {
			out = append(out, model.Sample{
				Strategy: s,
				Features: features.FeatureVector{
					SizeBytes:          int64(p.size.draw(rng)),
					SemanticComplexity: p.complexity.draw(rng),
					TopicCoherence:     p.coherence.draw(rng),
					InformationDensity: p.density.draw(rng),
					QueryPotential:     p.potential.draw(rng),
					ContentType:        p.contentType,
				},
			})
		}
	}
	return out
}

// FromHistory turns catalog entries into samples labelled with the strategy
// that was actually stored. Items that did not end up fully stored say
// nothing reliable about the right strategy and are skipped, as are entries
// written before feature snapshots were kept.
func FromHistory(entries []catalog.Entry) []model.Sample {
	var out []model.Sample
	for _, e := range entries {
		if e.Status != content.StatusStored || !e.Strategy.Valid() || e.Features.SizeBytes == 0 {
			continue
		}
		out = append(out, model.Sample{Features: e.Features, Strategy: e.Strategy})
	}
	return out
}

// Split shuffles samples and holds out the given fraction for evaluation.
func Split(rng *rand.Rand, samples []model.Sample, holdout float64) (train, test []model.Sample) {
	shuffled := make([]model.Sample, len(samples))
	copy(shuffled, samples)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	n := int(float64(len(shuffled)) * holdout)
	n = min(max(n, 0), len(shuffled))
	return shuffled[n:], shuffled[:n]
}
