// Package inmemory is a brute-force vector.Driver for tests and single
// process use. It keeps every point in a map and scores with cosine
// similarity.
package inmemory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"sync"

	"github.com/papercomputeco/strata/pkg/vector"
)

// Driver implements vector.Driver in memory.
type Driver struct {
	mu         sync.RWMutex
	dimensions uint
	docs       map[string]vector.Document
}

var _ vector.Driver = (*Driver)(nil)

// NewDriver creates an empty store. Zero dimensions accepts any embedding
// length.
func NewDriver(dimensions uint) *Driver {
	return &Driver{dimensions: dimensions, docs: map[string]vector.Document{}}
}

func (d *Driver) Add(_ context.Context, docs []vector.Document) error {
	for _, doc := range docs {
		if d.dimensions > 0 && uint(len(doc.Embedding)) != d.dimensions {
			return fmt.Errorf("%w: document %s has %d dimensions, want %d",
				vector.ErrDimensionMismatch, doc.ID, len(doc.Embedding), d.dimensions)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, doc := range docs {
		d.docs[doc.ID] = clone(doc)
	}
	return nil
}

func (d *Driver) Query(_ context.Context, embedding []float32, topK int, opts vector.QueryOptions) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var results []vector.QueryResult
	for _, doc := range d.docs {
		if !opts.Matches(doc.Payload) || len(doc.Embedding) != len(embedding) {
			continue
		}
		score := Cosine(embedding, doc.Embedding)
		if opts.ScoreThreshold > 0 && score < opts.ScoreThreshold {
			continue
		}
		results = append(results, vector.QueryResult{Document: clone(doc), Score: score})
	}

	slices.SortFunc(results, func(a, b vector.QueryResult) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (d *Driver) Get(_ context.Context, ids []string) ([]vector.Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []vector.Document
	for _, id := range ids {
		if doc, ok := d.docs[id]; ok {
			out = append(out, clone(doc))
		}
	}
	return out, nil
}

func (d *Driver) Delete(_ context.Context, ids []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range ids {
		delete(d.docs, id)
	}
	return nil
}

// Len returns the number of stored documents.
func (d *Driver) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.docs)
}

func (d *Driver) Close() error {
	return nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector.
func Cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func clone(doc vector.Document) vector.Document {
	return vector.Document{
		ID:        doc.ID,
		Embedding: slices.Clone(doc.Embedding),
		Payload:   maps.Clone(doc.Payload),
	}
}
