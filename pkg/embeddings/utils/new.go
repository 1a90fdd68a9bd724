// Package embeddingutils builds the configured Embedder.
package embeddingutils

import (
	"fmt"
	"log/slog"

	"github.com/papercomputeco/strata/pkg/embeddings"
	"github.com/papercomputeco/strata/pkg/embeddings/hashing"
	"github.com/papercomputeco/strata/pkg/embeddings/ollama"
)

type NewEmbedderOpts struct {
	ProviderType string
	TargetURL    string
	Model        string
	Dimensions   uint
	MaxChars     int
	Logger       *slog.Logger
}

// NewEmbedder returns the provider's embedder checked against Dimensions.
func NewEmbedder(o *NewEmbedderOpts) (*embeddings.Fixed, error) {
	var (
		e   embeddings.Embedder
		err error
	)
	switch o.ProviderType {
	case "ollama":
		e, err = ollama.NewEmbedder(ollama.EmbedderConfig{
			BaseURL:  o.TargetURL,
			Model:    o.Model,
			MaxChars: o.MaxChars,
			Logger:   o.Logger,
		})
	case "hashing":
		e = hashing.NewEmbedder(o.Dimensions)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", o.ProviderType)
	}
	if err != nil {
		return nil, err
	}
	if o.Dimensions == 0 {
		return nil, fmt.Errorf("embedding dimensions must be configured for provider %s", o.ProviderType)
	}
	return embeddings.WithDimensions(e, o.Dimensions), nil
}
