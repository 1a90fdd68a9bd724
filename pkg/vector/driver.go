// Package vector provides interfaces and implementations for vector storage.
package vector

import "context"

// Payload keys every driver stores alongside a point. Search filters match
// against the same keys.
const (
	PayloadTitle       = "title"
	PayloadDomain      = "domain"
	PayloadLanguage    = "language"
	PayloadContentType = "content_type"
	PayloadAuthor      = "author"
	PayloadSourceURL   = "source_url"
	PayloadTable       = "table"
	PayloadStrategy    = "strategy"
	PayloadCreatedAt   = "created_at"
	PayloadStatus      = "status"
)

// Payload is the flat metadata stored with a point.
type Payload map[string]string

// Document represents a stored item with its embedding and metadata.
type Document struct {
	// ID is the content item id.
	ID string

	// Embedding is the vector representation of the item content.
	Embedding []float32

	Payload Payload
}

// QueryResult represents a search result with similarity score.
type QueryResult struct {
	Document

	// Score is the cosine similarity to the query (higher = more similar).
	Score float32
}

// QueryOptions narrow a Query.
type QueryOptions struct {
	// Filter requires exact payload matches on every key.
	Filter map[string]string

	// ScoreThreshold drops results scoring below it.
	ScoreThreshold float32
}

// Matches reports whether p satisfies every filter key.
func (o QueryOptions) Matches(p Payload) bool {
	for k, v := range o.Filter {
		if p[k] != v {
			return false
		}
	}
	return true
}

// Driver handles storage and retrieval of vector embeddings.
type Driver interface {
	// Add stores documents with their embeddings.
	// If a document with the same ID already exists, implementers should update
	// the document.
	Add(ctx context.Context, docs []Document) error

	// Query finds the topK most similar documents to the given embedding,
	// best first.
	Query(ctx context.Context, embedding []float32, topK int, opts QueryOptions) ([]QueryResult, error)

	// Get retrieves documents by their IDs. Unknown IDs are skipped.
	Get(ctx context.Context, ids []string) ([]Document, error)

	// Delete removes documents by their IDs.
	Delete(ctx context.Context, ids []string) error

	// Close releases any resources held by the driver.
	Close() error
}
