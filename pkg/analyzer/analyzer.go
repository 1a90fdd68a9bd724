// Package analyzer provides optional content analyzers that supply domain and
// query-potential hints ahead of feature extraction.
package analyzer

import (
	"context"
	"errors"

	"github.com/papercomputeco/strata/pkg/content"
)

// ErrUnavailable is returned by analyzers that cannot serve a request. The
// orchestrator treats it like any other analyzer error and falls back to
// content.DefaultDomain.
var ErrUnavailable = errors.New("analyzer unavailable")

// Hints are the optional signals an Analyzer contributes. Zero values mean
// "no opinion".
type Hints struct {
	DomainTag      string
	QueryPotential *float64
}

// Analyzer inspects an item and returns hints.
type Analyzer interface {
	Analyze(ctx context.Context, item content.Item) (Hints, error)
}

// Nop is an Analyzer that never has an opinion.
type Nop struct{}

func (Nop) Analyze(context.Context, content.Item) (Hints, error) {
	return Hints{}, nil
}
