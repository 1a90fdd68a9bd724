// Package query runs searches against the relational and vector stores
// concurrently and fuses their results.
package query

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/papercomputeco/strata/pkg/catalog"
	"github.com/papercomputeco/strata/pkg/embeddings"
	"github.com/papercomputeco/strata/pkg/logger"
	"github.com/papercomputeco/strata/pkg/schema"
	"github.com/papercomputeco/strata/pkg/storage"
	"github.com/papercomputeco/strata/pkg/vector"
)

const (
	defaultLimit   = 10
	defaultTimeout = 5 * time.Second
	snippetLength  = 240
)

// Weights are the fusion coefficients.
type Weights struct {
	Vector float64
	Text   float64
}

// DefaultWeights favours semantic similarity.
func DefaultWeights() Weights {
	return Weights{Vector: 0.6, Text: 0.4}
}

// Config configures an Engine. Catalog is optional; without it vector hits
// are enriched only through the table named in their payload.
type Config struct {
	Schema   *schema.Manager
	Vectors  vector.Driver
	Embedder embeddings.Embedder
	Catalog  *catalog.Catalog
	Weights  Weights

	// SubQueryTimeout bounds each store's side of a search.
	SubQueryTimeout time.Duration
	DefaultLimit    int
	Logger          *slog.Logger
}

// Engine executes hybrid searches. It is safe for concurrent use.
type Engine struct {
	schema   *schema.Manager
	db       storage.Driver
	vectors  vector.Driver
	embedder embeddings.Embedder
	catalog  *catalog.Catalog
	weights  Weights
	timeout  time.Duration
	limit    int
	logger   *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(c Config) *Engine {
	e := &Engine{
		schema:   c.Schema,
		db:       c.Schema.Driver(),
		vectors:  c.Vectors,
		embedder: c.Embedder,
		catalog:  c.Catalog,
		weights:  c.Weights,
		timeout:  c.SubQueryTimeout,
		limit:    c.DefaultLimit,
		logger:   c.Logger,
	}
	if e.weights == (Weights{}) {
		e.weights = DefaultWeights()
	}
	if e.timeout <= 0 {
		e.timeout = defaultTimeout
	}
	if e.limit <= 0 {
		e.limit = defaultLimit
	}
	if e.logger == nil {
		e.logger = logger.Nop()
	}
	return e
}

// filterKeys maps accepted filter keys to vector payload keys.
var filterKeys = map[string]string{
	"domain":       vector.PayloadDomain,
	"language":     vector.PayloadLanguage,
	"content_type": vector.PayloadContentType,
	"author":       vector.PayloadAuthor,
}

// Filters converts caller filters into the relational and vector forms.
func Filters(filters map[string]string) (schema.Filter, map[string]string, error) {
	var f schema.Filter
	payload := make(map[string]string, len(filters))
	for k, v := range filters {
		key, ok := filterKeys[k]
		if !ok {
			return f, nil, fmt.Errorf("%w: %q", ErrUnknownFilter, k)
		}
		if v == "" {
			continue
		}
		payload[key] = v
		switch k {
		case "domain":
			f.Domain = v
		case "language":
			f.Language = v
		case "content_type":
			f.ContentType = v
		case "author":
			f.Author = v
		}
	}
	return f, payload, nil
}

// Search queries both stores concurrently, enriches vector hits with their
// relational records and merges by id. Results are sorted by score, then
// newest first. One failing store yields a partial result; both failing is
// an error.
func (e *Engine) Search(ctx context.Context, q string, filters map[string]string, limit int, scoreThreshold float64) (*SearchResult, error) {
	if limit <= 0 {
		limit = e.limit
	}
	relFilter, vecFilter, err := Filters(filters)
	if err != nil {
		return nil, err
	}

	var (
		vecHits []vector.QueryResult
		txtHits []schema.TextHit
		vecErr  error
		txtErr  error
		done    = make(chan struct{}, 2)
	)

	go func() {
		defer func() { done <- struct{}{} }()
		sctx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()
		vecHits, vecErr = e.searchVector(sctx, q, vecFilter, limit, scoreThreshold)
	}()
	go func() {
		defer func() { done <- struct{}{} }()
		sctx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()
		txtHits, txtErr = e.searchText(sctx, q, relFilter, limit)
	}()
	<-done
	<-done

	res := &SearchResult{}
	if vecErr != nil {
		vecErr = &BackendError{Backend: BackendVector, Err: vecErr}
		res.Excluded = append(res.Excluded, BackendVector)
		res.Errors = append(res.Errors, vecErr)
	}
	if txtErr != nil {
		txtErr = &BackendError{Backend: BackendRelational, Err: txtErr}
		res.Excluded = append(res.Excluded, BackendRelational)
		res.Errors = append(res.Errors, txtErr)
	}
	if vecErr != nil && txtErr != nil {
		return nil, errors.Join(vecErr, txtErr)
	}
	res.Partial = len(res.Excluded) > 0
	if res.Partial {
		e.logger.Warn("partial search", "excluded", res.Excluded, "error", errors.Join(res.Errors...))
	}

	fused := make(map[string]*FusedResult, len(vecHits)+len(txtHits))

	for _, h := range txtHits {
		fused[h.ID] = fromRecord(h.Record, h.Table)
	}
	normalizeText(txtHits, fused)

	e.enrich(ctx, vecHits, fused)

	out := make([]FusedResult, 0, len(fused))
	for _, r := range fused {
		r.Score = e.weights.Vector*r.VectorScore + e.weights.Text*r.TextScore
		out = append(out, *r)
	}
	Rank(out)
	if len(out) > limit {
		out = out[:limit]
	}
	res.Results = out

	e.logger.Debug("searched",
		"query", q,
		"vector_hits", len(vecHits),
		"text_hits", len(txtHits),
		"results", len(out),
		"partial", res.Partial,
	)
	return res, nil
}

// Rank sorts results by score, then newest first, then id.
func Rank(results []FusedResult) {
	slices.SortFunc(results, func(a, b FusedResult) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// Get returns one item with its content when the relational record holds
// it, falling back to the vector payload.
func (e *Engine) Get(ctx context.Context, id string) (FusedResult, error) {
	var table string
	if e.catalog != nil {
		entry, err := e.catalog.Get(ctx, id)
		switch {
		case err == nil:
			table = entry.TableName
		case errors.As(err, new(storage.NotFoundError)):
			return FusedResult{}, err
		default:
			e.logger.Warn("catalog lookup failed", "item_id", id, "error", err)
		}
	}

	if table != "" {
		rec, err := schema.LoadRecord(ctx, e.db, table, id)
		if err == nil {
			r := fromRecord(rec, table)
			r.Content = rec.Content
			r.Sources = []Backend{BackendRelational}
			return *r, nil
		}
		e.logger.Warn("relational lookup failed", "item_id", id, "table", table, "error", err)
	}

	docs, err := e.vectors.Get(ctx, []string{id})
	if err != nil {
		return FusedResult{}, &BackendError{Backend: BackendVector, Err: err}
	}
	if len(docs) == 0 {
		return FusedResult{}, storage.NotFoundError{ID: id}
	}
	r := fromPayload(docs[0].ID, docs[0].Payload)
	r.Sources = []Backend{BackendVector}
	return *r, nil
}

func (e *Engine) searchVector(ctx context.Context, q string, filter map[string]string, limit int, threshold float64) ([]vector.QueryResult, error) {
	emb, err := e.embedder.Embed(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return e.vectors.Query(ctx, emb, limit, vector.QueryOptions{
		Filter:         filter,
		ScoreThreshold: float32(threshold),
	})
}

// searchText runs the keyword search over every dynamic table that could
// hold a match and keeps the best limit hits.
func (e *Engine) searchText(ctx context.Context, q string, f schema.Filter, limit int) ([]schema.TextHit, error) {
	tables, err := e.schema.Tables(ctx, f.Domain)
	if err != nil {
		return nil, err
	}

	var hits []schema.TextHit
	for _, t := range tables {
		if f.ContentType != "" && t.ContentType != f.ContentType {
			continue
		}
		th, err := schema.SearchText(ctx, e.db, t.Name, q, f, limit)
		if err != nil {
			return nil, err
		}
		hits = append(hits, th...)
	}

	slices.SortStableFunc(hits, func(a, b schema.TextHit) int {
		return cmp.Compare(b.Rank, a.Rank)
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// enrich folds vector hits into fused. Hits without a reachable relational
// record keep their payload metadata.
func (e *Engine) enrich(ctx context.Context, hits []vector.QueryResult, fused map[string]*FusedResult) {
	byTable := map[string][]string{}
	var unknown []string
	for _, h := range hits {
		r, ok := fused[h.ID]
		if !ok {
			r = fromPayload(h.ID, h.Payload)
			fused[h.ID] = r
		}
		r.VectorScore = clamp01(float64(h.Score))
		r.Sources = append(r.Sources, BackendVector)
		if r.Enriched {
			continue
		}
		if t := h.Payload[vector.PayloadTable]; t != "" {
			byTable[t] = append(byTable[t], h.ID)
		} else {
			unknown = append(unknown, h.ID)
		}
	}

	if len(unknown) > 0 && e.catalog != nil {
		entries, err := e.catalog.GetMany(ctx, unknown)
		if err != nil {
			e.logger.Warn("catalog lookup failed, using vector payloads", "error", err)
		}
		for id, entry := range entries {
			if entry.TableName != "" {
				byTable[entry.TableName] = append(byTable[entry.TableName], id)
			}
		}
	}

	for table, ids := range byTable {
		recs, err := schema.LoadRecords(ctx, e.db, table, ids)
		if err != nil {
			e.logger.Warn("enrichment failed, using vector payloads", "table", table, "error", err)
			continue
		}
		for id, rec := range recs {
			r := fused[id]
			enriched := fromRecord(rec, table)
			enriched.VectorScore = r.VectorScore
			enriched.TextScore = r.TextScore
			enriched.Sources = r.Sources
			fused[id] = enriched
		}
	}
}

// normalizeText scales text ranks into [0, 1] by the best rank.
func normalizeText(hits []schema.TextHit, fused map[string]*FusedResult) {
	var best float64
	for _, h := range hits {
		best = max(best, h.Rank)
	}
	for _, h := range hits {
		r := fused[h.ID]
		if best > 0 {
			r.TextScore = clamp01(h.Rank / best)
		}
		if !slices.Contains(r.Sources, BackendRelational) {
			r.Sources = append(r.Sources, BackendRelational)
		}
	}
}

func fromRecord(rec schema.Record, table string) *FusedResult {
	return &FusedResult{
		ID:          rec.ID,
		Title:       rec.Title,
		Author:      rec.Author,
		SourceURL:   rec.SourceURL,
		Domain:      rec.Domain,
		Language:    rec.Language,
		ContentType: rec.ContentType,
		Strategy:    rec.Strategy,
		TableName:   table,
		Snippet:     snippet(rec.Content),
		CreatedAt:   rec.CreatedAt,
		Enriched:    true,
	}
}

func fromPayload(id string, p vector.Payload) *FusedResult {
	r := &FusedResult{
		ID:          id,
		Title:       p[vector.PayloadTitle],
		Author:      p[vector.PayloadAuthor],
		SourceURL:   p[vector.PayloadSourceURL],
		Domain:      p[vector.PayloadDomain],
		Language:    p[vector.PayloadLanguage],
		ContentType: p[vector.PayloadContentType],
		Strategy:    p[vector.PayloadStrategy],
		TableName:   p[vector.PayloadTable],
	}
	if ts, err := time.Parse(time.RFC3339Nano, p[vector.PayloadCreatedAt]); err == nil {
		r.CreatedAt = ts
	}
	return r
}

func snippet(s string) string {
	if len(s) <= snippetLength {
		return s
	}
	n := snippetLength
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
