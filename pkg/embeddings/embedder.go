// Package embeddings defines the text embedding function strata consumes.
package embeddings

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrEmbedding is returned when an embedding cannot be produced.
	ErrEmbedding = errors.New("embedding failed")

	// ErrDimensions is returned when an embedder produces a vector of the
	// wrong size.
	ErrDimensions = errors.New("unexpected embedding dimensions")
)

// Embedder provides text embedding capabilities.
type Embedder interface {
	// Embed converts text into a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Close releases any resources held by the embedder.
	Close() error
}

// Fixed wraps an Embedder and rejects vectors that are not exactly
// dimensions long. The dimension count is process-wide.
type Fixed struct {
	Embedder
	dimensions uint
}

// WithDimensions returns e checked against dimensions.
func WithDimensions(e Embedder, dimensions uint) *Fixed {
	return &Fixed{Embedder: e, dimensions: dimensions}
}

// Dimensions is the enforced embedding size.
func (f *Fixed) Dimensions() uint {
	return f.dimensions
}

func (f *Fixed) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := f.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if uint(len(v)) != f.dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensions, len(v), f.dimensions)
	}
	return v, nil
}
