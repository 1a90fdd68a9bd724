package strategy

import (
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/papercomputeco/strata/pkg/content"
	"github.com/papercomputeco/strata/pkg/features"
	"github.com/papercomputeco/strata/pkg/logger"
	"github.com/papercomputeco/strata/pkg/schema"
)

// Model is a learned classifier. Predict returns the strategy it favours and
// its confidence in [0, 1].
type Model interface {
	Predict(fv features.FeatureVector) (Strategy, float64, error)

	// Samples is the number of training samples the model was fitted on.
	Samples() int
}

// Thresholds are the heuristic rule boundaries.
type Thresholds struct {
	SmallBytes           int64
	LargeBytes           int64
	AcademicBytes        int64
	AcademicDomains      []string
	HybridQueryPotential float64
	HybridComplexity     float64
	DenseInformation     float64
}

// DefaultThresholds returns the stock rule boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SmallBytes:           50_000,
		LargeBytes:           50_000_000,
		AcademicBytes:        1_000_000,
		AcademicDomains:      []string{"science", "philosophy", "literature"},
		HybridQueryPotential: 0.8,
		HybridComplexity:     0.7,
		DenseInformation:     0.8,
	}
}

// Config configures a Classifier.
type Config struct {
	Thresholds Thresholds

	// MinSamples guards the learned model: models fitted on fewer samples
	// are ignored.
	MinSamples int

	Logger *slog.Logger
}

// Classifier applies the ordered heuristic rules and, when a sufficiently
// trained model is installed, lets the model override a less confident
// heuristic result. Models are swapped atomically; Decide never blocks.
type Classifier struct {
	thresholds Thresholds
	minSamples int
	model      atomic.Pointer[modelSlot]
	logger     *slog.Logger
}

type modelSlot struct {
	m Model
}

// NewClassifier creates a Classifier without a model.
func NewClassifier(c Config) *Classifier {
	cl := &Classifier{
		thresholds: c.Thresholds,
		minSamples: c.MinSamples,
		logger:     c.Logger,
	}
	if cl.logger == nil {
		cl.logger = logger.Nop()
	}
	return cl
}

// SetModel installs m for subsequent decisions. A nil m removes the model.
func (c *Classifier) SetModel(m Model) {
	if m == nil {
		c.model.Store(nil)
		return
	}
	c.model.Store(&modelSlot{m: m})
}

// Model returns the installed model, or nil.
func (c *Classifier) Model() Model {
	slot := c.model.Load()
	if slot == nil {
		return nil
	}
	return slot.m
}

// Decide returns the storage decision for fv.
func (c *Classifier) Decide(fv features.FeatureVector) Decision {
	d := c.heuristic(fv)
	d.Reasons = append(d.Reasons, fv.Notes...)

	if m := c.Model(); m != nil {
		d = c.consult(m, fv, d)
	}

	d.Confidence = clamp01(d.Confidence)
	c.assignTable(&d, fv)
	return d
}

func (c *Classifier) heuristic(fv features.FeatureVector) Decision {
	t := c.thresholds

	switch {
	case fv.SizeBytes < t.SmallBytes:
		return Decision{
			Strategy:   RelationalFull,
			Confidence: 0.9,
			Reasons:    []string{fmt.Sprintf("small content (%d bytes) stored fully in relational store", fv.SizeBytes)},
		}

	case fv.SizeBytes > t.LargeBytes:
		return Decision{
			Strategy:   VectorOnly,
			Confidence: 0.95,
			Reasons:    []string{fmt.Sprintf("very large content (%d bytes) stored as vectors only", fv.SizeBytes)},
		}

	case fv.QueryPotential > t.HybridQueryPotential && fv.SemanticComplexity > t.HybridComplexity:
		return Decision{
			Strategy:   Hybrid,
			Confidence: 0.85,
			Reasons: []string{fmt.Sprintf("high query potential (%.2f) and semantic complexity (%.2f)",
				fv.QueryPotential, fv.SemanticComplexity)},
		}

	case fv.InformationDensity > t.DenseInformation:
		return Decision{
			Strategy:   RelationalFull,
			Confidence: 0.8,
			Dedicated:  true,
			Reasons:    []string{fmt.Sprintf("high information density (%.2f) gets a dedicated table", fv.InformationDensity)},
		}

	case slices.Contains(t.AcademicDomains, fv.DomainTag) && fv.SizeBytes > t.AcademicBytes:
		return Decision{
			Strategy:   Hybrid,
			Confidence: 0.75,
			Reasons:    []string{fmt.Sprintf("large %s content benefits from structured and semantic access", fv.DomainTag)},
		}

	default:
		return Decision{
			Strategy:   RelationalMetadataOnly,
			Confidence: 0.6,
			Reasons:    []string{"default: metadata in relational store"},
		}
	}
}

func (c *Classifier) consult(m Model, fv features.FeatureVector, d Decision) Decision {
	if m.Samples() < c.minSamples {
		c.logger.Debug("model below minimum sample size, ignoring",
			"samples", m.Samples(), "min_samples", c.minSamples)
		return d
	}

	s, conf, err := m.Predict(fv)
	if err == nil && !s.Valid() {
		err = fmt.Errorf("model predicted unknown strategy %q", s)
	}
	if err != nil {
		c.logger.Warn("learned classifier unavailable, keeping heuristic decision",
			"error", fmt.Errorf("%w: %w", ErrClassificationUnavailable, err))
		return d
	}

	if conf <= d.Confidence {
		return d
	}

	reasons := append(slices.Clone(d.Reasons),
		fmt.Sprintf("learned model chose %s (%.2f) over heuristic %s (%.2f)", s, conf, d.Strategy, d.Confidence))

	return Decision{
		Strategy:   s,
		Confidence: conf,
		Reasons:    reasons,
		Dedicated:  s == d.Strategy && d.Dedicated,
		ModelUsed:  true,
	}
}

func (c *Classifier) assignTable(d *Decision, fv features.FeatureVector) {
	d.DomainTag = fv.DomainTag
	if d.DomainTag == "" {
		d.DomainTag = content.DefaultDomain
	}

	d.ContentType = fv.ContentType
	if d.Dedicated {
		d.ContentType = content.TypeDenseText
	}

	if d.Strategy.UsesRelational() {
		d.TableName = schema.TableName(d.DomainTag, string(d.ContentType))
	}
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
