package testutils

import (
	"context"
	"fmt"

	"github.com/papercomputeco/strata/pkg/embeddings/hashing"
)

// MockEmbedder is a test embedder that returns predictable embeddings.
// Texts without a canned embedding are hashed, so similar texts still land
// close together.
type MockEmbedder struct {
	Embeddings map[string][]float32

	// FailOn causes Embed to return an error when the input text matches
	FailOn string

	hashed *hashing.Embedder
}

func NewMockEmbedder(dimensions uint) *MockEmbedder {
	return &MockEmbedder{
		Embeddings: make(map[string][]float32),
		hashed:     hashing.NewEmbedder(dimensions),
	}
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.FailOn != "" && text == m.FailOn {
		return nil, fmt.Errorf("mock embedding failure for: %s", text)
	}

	if emb, ok := m.Embeddings[text]; ok {
		return emb, nil
	}

	return m.hashed.Embed(ctx, text)
}

func (m *MockEmbedder) Close() error {
	return nil
}
