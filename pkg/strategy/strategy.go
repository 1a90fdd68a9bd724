// Package strategy decides how a content item is persisted: relational,
// vector or both.
package strategy

import (
	"errors"
	"fmt"

	"github.com/papercomputeco/strata/pkg/content"
)

var (
	// ErrInvalidDecisionState marks a Decision that violates its own
	// invariants. It indicates a bug upstream and is never corrected.
	ErrInvalidDecisionState = errors.New("invalid decision state")

	// ErrClassificationUnavailable is logged when the learned model cannot
	// score a vector. Decide falls back to the heuristic result.
	ErrClassificationUnavailable = errors.New("classification unavailable")
)

// Strategy is a storage plan.
type Strategy string

const (
	RelationalMetadataOnly Strategy = "relational_metadata_only"
	RelationalFull         Strategy = "relational_full"
	VectorOnly             Strategy = "vector_only"
	Hybrid                 Strategy = "hybrid"
)

// All lists every strategy.
var All = []Strategy{RelationalMetadataOnly, RelationalFull, VectorOnly, Hybrid}

func (s Strategy) Valid() bool {
	switch s {
	case RelationalMetadataOnly, RelationalFull, VectorOnly, Hybrid:
		return true
	}
	return false
}

// UsesRelational reports whether a RelationalRecord is written.
func (s Strategy) UsesRelational() bool {
	return s == RelationalMetadataOnly || s == RelationalFull || s == Hybrid
}

// UsesVector reports whether a VectorRecord is written.
func (s Strategy) UsesVector() bool {
	return s == VectorOnly || s == Hybrid
}

// StoresContent reports whether the relational record keeps the full body.
func (s Strategy) StoresContent() bool {
	return s == RelationalFull || s == Hybrid
}

// Decision is the classifier's output for one item.
type Decision struct {
	Strategy   Strategy `json:"strategy"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons"`

	// TableName is set exactly when the strategy writes a relational record.
	TableName   string       `json:"table_name,omitempty"`
	ContentType content.Type `json:"content_type,omitempty"`
	DomainTag   string       `json:"domain_tag,omitempty"`

	// Dedicated marks rule-4 decisions routed to the per-domain dense text
	// table.
	Dedicated bool `json:"dedicated,omitempty"`

	// ModelUsed is set when the learned model replaced the heuristic result.
	ModelUsed bool `json:"model_used,omitempty"`
}

// Validate checks the Decision invariants.
func (d Decision) Validate() error {
	if !d.Strategy.Valid() {
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidDecisionState, d.Strategy)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0, 1]", ErrInvalidDecisionState, d.Confidence)
	}
	if len(d.Reasons) == 0 {
		return fmt.Errorf("%w: no reasons recorded", ErrInvalidDecisionState)
	}
	if d.Strategy.UsesRelational() && d.TableName == "" {
		return fmt.Errorf("%w: %s requires a table name", ErrInvalidDecisionState, d.Strategy)
	}
	if !d.Strategy.UsesRelational() && d.TableName != "" {
		return fmt.Errorf("%w: %s must not name a table", ErrInvalidDecisionState, d.Strategy)
	}
	return nil
}
