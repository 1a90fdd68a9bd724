// Package hashing is an offline Embedder that projects words into a fixed
// number of buckets. Texts sharing vocabulary land close together under
// cosine similarity, which is enough for local use and tests.
package hashing

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/papercomputeco/strata/pkg/embeddings"
)

// DefaultDimensions is used when Config.Dimensions is zero.
const DefaultDimensions = 256

// Embedder implements embeddings.Embedder with the hashing trick.
type Embedder struct {
	dimensions int
}

var _ embeddings.Embedder = (*Embedder)(nil)

// NewEmbedder creates a hashing embedder producing dimensions-sized vectors.
func NewEmbedder(dimensions uint) *Embedder {
	if dimensions == 0 {
		dimensions = DefaultDimensions
	}
	return &Embedder{dimensions: int(dimensions)}
}

// Embed returns the L2-normalised bucket counts of the lower-cased words of
// text. Text without words maps to the first basis vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := make([]float32, e.dimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := xxhash.Sum64String(w)
		idx := int(h % uint64(e.dimensions))
		if h>>63 == 1 {
			v[idx]--
		} else {
			v[idx]++
		}
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		v[0] = 1
		return v, nil
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v, nil
}

func (e *Embedder) Close() error {
	return nil
}
