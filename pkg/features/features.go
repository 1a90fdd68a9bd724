// Package features computes the deterministic FeatureVector the strategy
// classifier decides on.
package features

import (
	"errors"
	"fmt"

	"github.com/papercomputeco/strata/pkg/content"
)

// ErrFeatureExtractionFailed is wrapped by every error Extract returns. The
// orchestrator fails the item when it sees it.
var ErrFeatureExtractionFailed = errors.New("feature extraction failed")

// MinWords is the token count below which coherence and density are not
// measured and fall back to low-confidence defaults.
const MinWords = 10

// FeatureVector is the classifier input derived from a content.Item. All
// scores are within [0, 1].
type FeatureVector struct {
	SizeBytes          int64        `json:"size_bytes"`
	SemanticComplexity float64      `json:"semantic_complexity"`
	TopicCoherence     float64      `json:"topic_coherence"`
	InformationDensity float64      `json:"information_density"`
	QueryPotential     float64      `json:"query_potential"`
	DomainTag          string       `json:"domain_tag"`
	ContentType        content.Type `json:"content_type"`
	WordCount          int          `json:"word_count"`

	// LowConfidence is set when one or more scores are defaults rather than
	// measurements. Notes says which.
	LowConfidence bool     `json:"low_confidence,omitempty"`
	Notes         []string `json:"notes,omitempty"`
}

func (f *FeatureVector) note(format string, args ...any) {
	f.LowConfidence = true
	f.Notes = append(f.Notes, fmt.Sprintf(format, args...))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
