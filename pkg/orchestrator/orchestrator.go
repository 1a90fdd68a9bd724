// Package orchestrator composes feature extraction, strategy decisions,
// dual-store writes, hybrid search and performance tracking into the
// operations callers use.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/strata/pkg/analyzer"
	"github.com/papercomputeco/strata/pkg/catalog"
	"github.com/papercomputeco/strata/pkg/content"
	"github.com/papercomputeco/strata/pkg/embeddings"
	"github.com/papercomputeco/strata/pkg/features"
	"github.com/papercomputeco/strata/pkg/ledger"
	"github.com/papercomputeco/strata/pkg/logger"
	"github.com/papercomputeco/strata/pkg/perf"
	"github.com/papercomputeco/strata/pkg/query"
	"github.com/papercomputeco/strata/pkg/retry"
	"github.com/papercomputeco/strata/pkg/schema"
	"github.com/papercomputeco/strata/pkg/storage"
	"github.com/papercomputeco/strata/pkg/strategy"
	"github.com/papercomputeco/strata/pkg/writer"
)

const (
	defaultAnalyzerTimeout = 2 * time.Second
	defaultMaxConcurrency  = 4
)

// Config holds the components an Orchestrator drives. Analyzer, Tracker
// and Recommender are optional.
type Config struct {
	Extractor   *features.Extractor
	Classifier  *strategy.Classifier
	Analyzer    analyzer.Analyzer
	Embedder    embeddings.Embedder
	Writer      *writer.Writer
	Engine      *query.Engine
	Schema      *schema.Manager
	Catalog     *catalog.Catalog
	Ledger      ledger.Ledger
	Perf        *perf.Store
	Tracker     *perf.Tracker
	Recommender *perf.Recommender

	AnalyzerTimeout time.Duration
	MaxConcurrency  int
	EmbedRetry      retry.Policy

	// Retention is how long performance entries are kept. Zero keeps them.
	Retention time.Duration

	Logger *slog.Logger
}

// Orchestrator is the facade over the storage engine. It is safe for
// concurrent use.
type Orchestrator struct {
	extractor   *features.Extractor
	classifier  *strategy.Classifier
	analyzer    analyzer.Analyzer
	embedder    embeddings.Embedder
	writer      *writer.Writer
	engine      *query.Engine
	schema      *schema.Manager
	catalog     *catalog.Catalog
	ledger      ledger.Ledger
	perf        *perf.Store
	tracker     *perf.Tracker
	recommender *perf.Recommender

	analyzerTimeout time.Duration
	maxConcurrency  int
	embedRetry      retry.Policy
	retention       time.Duration
	logger          *slog.Logger

	// closers run on Close in reverse order.
	closers []func(context.Context) error
}

// New creates an Orchestrator over already constructed components.
func New(c Config) *Orchestrator {
	o := &Orchestrator{
		extractor:       c.Extractor,
		classifier:      c.Classifier,
		analyzer:        c.Analyzer,
		embedder:        c.Embedder,
		writer:          c.Writer,
		engine:          c.Engine,
		schema:          c.Schema,
		catalog:         c.Catalog,
		ledger:          c.Ledger,
		perf:            c.Perf,
		tracker:         c.Tracker,
		recommender:     c.Recommender,
		analyzerTimeout: c.AnalyzerTimeout,
		maxConcurrency:  c.MaxConcurrency,
		embedRetry:      c.EmbedRetry,
		retention:       c.Retention,
		logger:          c.Logger,
	}
	if o.analyzer == nil {
		o.analyzer = analyzer.Nop{}
	}
	if o.analyzerTimeout <= 0 {
		o.analyzerTimeout = defaultAnalyzerTimeout
	}
	if o.maxConcurrency <= 0 {
		o.maxConcurrency = defaultMaxConcurrency
	}
	if o.embedRetry.MaxAttempts == 0 {
		o.embedRetry = retry.DefaultPolicy()
	}
	if o.ledger == nil {
		o.ledger = ledger.NewMemory()
	}
	if o.logger == nil {
		o.logger = logger.Nop()
	}
	return o
}

// Analysis is the outcome of AnalyzeAndDecide.
type Analysis struct {
	Item     content.Item           `json:"-"`
	Features features.FeatureVector `json:"features"`
	Decision strategy.Decision      `json:"decision"`
}

// AnalyzeAndDecide consults the analyzer, extracts features and returns the
// storage decision without writing anything. An unavailable or slow
// analyzer never blocks: the item keeps its own domain or the default.
func (o *Orchestrator) AnalyzeAndDecide(ctx context.Context, item content.Item) (Analysis, error) {
	hints := o.hints(ctx, item)
	if item.DomainTag == "" {
		item.DomainTag = hints.DomainTag
	}
	if item.DomainTag == "" {
		item.DomainTag = content.DefaultDomain
	}

	fv, err := o.extractor.Extract(item)
	if err != nil {
		return Analysis{Item: item}, err
	}
	if hints.QueryPotential != nil {
		fv.QueryPotential = math.Min(1, math.Max(0, *hints.QueryPotential))
	}

	d := o.classifier.Decide(fv)
	if err := d.Validate(); err != nil {
		return Analysis{Item: item, Features: fv, Decision: d}, err
	}

	o.logger.Debug("decided storage strategy",
		"item_id", item.ID,
		"strategy", d.Strategy,
		"confidence", d.Confidence,
		"table", d.TableName,
		"model_used", d.ModelUsed,
	)
	return Analysis{Item: item, Features: fv, Decision: d}, nil
}

func (o *Orchestrator) hints(ctx context.Context, item content.Item) analyzer.Hints {
	actx, cancel := context.WithTimeout(ctx, o.analyzerTimeout)
	defer cancel()

	h, err := o.analyzer.Analyze(actx, item)
	if err != nil {
		o.logger.Warn("analyzer unavailable, using default domain",
			"item_id", item.ID,
			"error", fmt.Errorf("%w: %w", analyzer.ErrUnavailable, err),
		)
		return analyzer.Hints{}
	}
	return h
}

// IngestContent decides where item goes and writes it. A degraded write
// returns a nil error with the partial outcome in the result.
func (o *Orchestrator) IngestContent(ctx context.Context, item content.Item) (writer.WriteResult, error) {
	a, err := o.AnalyzeAndDecide(ctx, item)
	if err != nil {
		return failed(item, a.Decision, err), err
	}

	var emb []float32
	if a.Decision.Strategy.UsesVector() {
		emb, err = o.embed(ctx, a.Item)
		if err != nil {
			return failed(a.Item, a.Decision, err), err
		}
	}

	return o.writer.Write(ctx, a.Item, a.Decision, emb, writer.WithFeatures(a.Features))
}

func (o *Orchestrator) embed(ctx context.Context, item content.Item) ([]float32, error) {
	text := item.Title
	if item.Content != "" {
		text += "\n\n" + item.Content
	}

	var emb []float32
	err := retry.Do(ctx, o.embedRetry, func(ctx context.Context) error {
		var err error
		emb, err = o.embedder.Embed(ctx, text)
		if errors.Is(err, embeddings.ErrDimensions) {
			return retry.Permanent(err)
		}
		return err
	}, func(attempt int, err error, wait time.Duration) {
		o.logger.Warn("embedding failed, retrying",
			"item_id", item.ID,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	})
	if err != nil {
		return nil, fmt.Errorf("embedding item %s: %w", item.ID, err)
	}
	return emb, nil
}

func failed(item content.Item, d strategy.Decision, err error) writer.WriteResult {
	return writer.WriteResult{
		ItemID:    item.ID,
		Strategy:  d.Strategy,
		TableName: d.TableName,
		Status:    content.StatusFailed,
		Outcome:   writer.OutcomeFailure,
		Failure:   err,
	}
}

// ItemResult is one item of a batch.
type ItemResult struct {
	Result writer.WriteResult `json:"result"`
	Error  string             `json:"error,omitempty"`
}

// BatchResult reports a batch in input order.
type BatchResult struct {
	Items    []ItemResult `json:"items"`
	Stored   int          `json:"stored"`
	Degraded int          `json:"degraded"`
	Failed   int          `json:"failed"`
}

// IngestBatch ingests items concurrently, at most MaxConcurrency at a time.
// One item failing never stops the others.
func (o *Orchestrator) IngestBatch(ctx context.Context, items []content.Item) BatchResult {
	out := BatchResult{Items: make([]ItemResult, len(items))}

	var g errgroup.Group
	g.SetLimit(o.maxConcurrency)
	for i, item := range items {
		g.Go(func() error {
			var res writer.WriteResult
			var err error
			if err = ctx.Err(); err != nil {
				res = failed(item, strategy.Decision{}, err)
			} else {
				res, err = o.IngestContent(ctx, item)
			}
			out.Items[i] = ItemResult{Result: res}
			if err != nil {
				out.Items[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, it := range out.Items {
		switch it.Result.Status {
		case content.StatusStored:
			out.Stored++
		case content.StatusDegraded:
			out.Degraded++
		default:
			out.Failed++
		}
	}
	o.logger.Info("ingested batch",
		"items", len(items),
		"stored", out.Stored,
		"degraded", out.Degraded,
		"failed", out.Failed,
	)
	return out
}

// Search runs a hybrid search and records its performance.
func (o *Orchestrator) Search(ctx context.Context, q string, filters map[string]string, limit int, scoreThreshold float64) (*query.SearchResult, error) {
	start := time.Now()
	res, err := o.engine.Search(ctx, q, filters, limit, scoreThreshold)
	elapsed := time.Since(start)

	if o.tracker != nil && !errors.Is(err, query.ErrUnknownFilter) {
		e := perf.Entry{
			QueryHash:   perf.HashQuery(q),
			QueryType:   perf.QuerySearch,
			Domain:      filters["domain"],
			ExecutionMs: float64(elapsed.Microseconds()) / 1000,
		}
		if q == "" {
			e.QueryType = perf.QueryFilter
		}
		if res != nil {
			e.RowsReturned = len(res.Results)
			e.Partial = res.Partial
			e.Strategy = servedBy(res)
		} else {
			e.Partial = true
		}
		o.tracker.Record(e)
	}
	return res, err
}

func servedBy(res *query.SearchResult) string {
	if !res.Partial {
		return string(strategy.Hybrid)
	}
	if res.Excluded[0] == query.BackendVector {
		return string(query.BackendRelational)
	}
	return string(query.BackendVector)
}

// Get returns one stored item.
func (o *Orchestrator) Get(ctx context.Context, id string) (query.FusedResult, error) {
	return o.engine.Get(ctx, id)
}

// DeleteContent removes an item from both stores, the catalog and the
// reconciliation ledger. An item whose catalog entry is missing is found
// through the stores. Deleting an unknown id returns storage.NotFoundError.
func (o *Orchestrator) DeleteContent(ctx context.Context, id string) error {
	var table string
	entry, err := o.catalog.Get(ctx, id)
	switch {
	case err == nil:
		table = entry.TableName
	case errors.As(err, new(storage.NotFoundError)):
		var found bool
		table, found, err = o.writer.Locate(ctx, id)
		if err != nil {
			return fmt.Errorf("looking up %s: %w", id, err)
		}
		if !found {
			return storage.NotFoundError{ID: id}
		}
	default:
		return fmt.Errorf("looking up %s: %w", id, err)
	}

	if err := o.writer.Delete(ctx, id, table); err != nil {
		return err
	}
	if err := o.catalog.Delete(ctx, id); err != nil {
		return err
	}
	o.logger.Info("deleted item", "item_id", id, "table", table)
	return nil
}

// PerformanceReport aggregates tracked queries since since, optionally for
// one domain, grouped by query type and domain.
func (o *Orchestrator) PerformanceReport(ctx context.Context, domain *string, since time.Time) ([]perf.AggregateStat, error) {
	stats, err := o.perf.Aggregate(ctx, perf.GroupBy{Type: true, Domain: true}, since)
	if err != nil {
		return nil, err
	}
	if domain == nil {
		return stats, nil
	}
	out := stats[:0]
	for _, s := range stats {
		if s.Domain == *domain {
			out = append(out, s)
		}
	}
	return out, nil
}

// Recommendations lists stored recommendations, optionally by status.
func (o *Orchestrator) Recommendations(ctx context.Context, status perf.RecommendationStatus) ([]perf.Recommendation, error) {
	if o.recommender == nil {
		return nil, nil
	}
	return o.recommender.List(ctx, status)
}

// SetRecommendationStatus applies or dismisses a recommendation.
func (o *Orchestrator) SetRecommendationStatus(ctx context.Context, id string, status perf.RecommendationStatus) error {
	if o.recommender == nil {
		return storage.NotFoundError{ID: id}
	}
	return o.recommender.SetStatus(ctx, id, status)
}

// Catalog exposes the catalog for offline tooling such as training.
func (o *Orchestrator) Catalog() *catalog.Catalog {
	return o.catalog
}

// Classifier exposes the classifier so a retrained model can be installed.
func (o *Orchestrator) Classifier() *strategy.Classifier {
	return o.classifier
}

// Close flushes the performance tracker and releases every resource
// opened for the orchestrator.
func (o *Orchestrator) Close(ctx context.Context) error {
	var errs []error
	if o.tracker != nil {
		if err := o.tracker.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flushing performance tracker: %w", err))
		}
	}
	if o.extractor != nil {
		o.extractor.Close()
	}
	for i := len(o.closers) - 1; i >= 0; i-- {
		if err := o.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
