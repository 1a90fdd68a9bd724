// Package writer persists content items into the relational store, the
// vector store or both, according to a strategy decision.
package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/papercomputeco/strata/pkg/catalog"
	"github.com/papercomputeco/strata/pkg/content"
	"github.com/papercomputeco/strata/pkg/eventstream"
	"github.com/papercomputeco/strata/pkg/features"
	"github.com/papercomputeco/strata/pkg/ledger"
	"github.com/papercomputeco/strata/pkg/logger"
	"github.com/papercomputeco/strata/pkg/retry"
	"github.com/papercomputeco/strata/pkg/schema"
	"github.com/papercomputeco/strata/pkg/storage"
	"github.com/papercomputeco/strata/pkg/strategy"
	"github.com/papercomputeco/strata/pkg/vector"
)

// Config configures a Writer. Catalog and Events are optional.
type Config struct {
	Schema  *schema.Manager
	Vectors vector.Driver
	Catalog *catalog.Catalog
	Ledger  ledger.Ledger
	Events  eventstream.Publisher
	Retry   retry.Policy
	Logger  *slog.Logger
}

// Writer coordinates writes to both stores. It is safe for concurrent use.
type Writer struct {
	schema  *schema.Manager
	vectors vector.Driver
	catalog *catalog.Catalog
	ledger  ledger.Ledger
	events  eventstream.Publisher
	retry   retry.Policy
	logger  *slog.Logger
}

// New creates a Writer.
func New(c Config) *Writer {
	w := &Writer{
		schema:  c.Schema,
		vectors: c.Vectors,
		catalog: c.Catalog,
		ledger:  c.Ledger,
		events:  c.Events,
		retry:   c.Retry,
		logger:  c.Logger,
	}
	if w.logger == nil {
		w.logger = logger.Nop()
	}
	if w.ledger == nil {
		w.ledger = ledger.NewMemory()
	}
	if w.retry.MaxAttempts == 0 {
		w.retry = retry.DefaultPolicy()
	}
	return w
}

// Option adds optional data to a write.
type Option func(*writeOptions)

type writeOptions struct {
	features *features.FeatureVector
}

// WithFeatures stores the feature vector alongside the item: word count and
// complexity in the relational record and a snapshot in the catalog.
func WithFeatures(fv features.FeatureVector) Option {
	return func(o *writeOptions) { o.features = &fv }
}

// Write persists item per decision. Writes are upserts keyed by item.ID, so
// repeating a write never duplicates records.
//
// A hybrid write that reaches one store returns a nil error and a
// WriteResult whose Failure is a *PartialWriteError. Writes that reach no
// store return ErrDualWriteFailure or ErrWriteFailed.
//
// When an earlier write of the same item used a different strategy or
// table, the records the new decision no longer targets are removed. If
// that fails the item is left degraded with the stale sides named.
func (w *Writer) Write(ctx context.Context, item content.Item, d strategy.Decision, embedding []float32, opts ...Option) (WriteResult, error) {
	res := WriteResult{
		ItemID:    item.ID,
		Strategy:  d.Strategy,
		TableName: d.TableName,
		Status:    content.StatusFailed,
		Outcome:   OutcomeFailure,
	}

	if err := d.Validate(); err != nil {
		res.Failure = err
		return res, err
	}
	if d.Strategy.UsesVector() && len(embedding) == 0 {
		res.Failure = ErrMissingEmbedding
		return res, ErrMissingEmbedding
	}

	var o writeOptions
	for _, opt := range opts {
		opt(&o)
	}

	prior, hasPrior := w.priorEntry(ctx, item.ID)
	w.putCatalog(ctx, item, d, o, content.StatusPending)

	var relErr, vecErr error
	switch d.Strategy {
	case strategy.Hybrid:
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			res.TableCreated, relErr = w.writeRelational(ctx, item, d, o)
		}()
		go func() {
			defer wg.Done()
			vecErr = w.writeVector(ctx, item, d, embedding, content.StatusStored)
		}()
		wg.Wait()
	case strategy.VectorOnly:
		vecErr = w.writeVector(ctx, item, d, embedding, content.StatusStored)
	default:
		res.TableCreated, relErr = w.writeRelational(ctx, item, d, o)
	}

	res.Relational = d.Strategy.UsesRelational() && relErr == nil
	res.Vector = d.Strategy.UsesVector() && vecErr == nil
	if d.Strategy.UsesRelational() && relErr != nil {
		res.Missing = append(res.Missing, ledger.SideRelational)
	}
	if d.Strategy.UsesVector() && vecErr != nil {
		res.Missing = append(res.Missing, ledger.SideVector)
	}

	// Completed sides stay even if the caller gave up; the bookkeeping below
	// must still land.
	bg := context.WithoutCancel(ctx)

	var staleErr error
	if hasPrior && (res.Relational || res.Vector) {
		res.Stale, staleErr = w.prune(bg, item.ID, prior, d)
	}

	var err error
	switch {
	case len(res.Missing) == 0 && len(res.Stale) == 0:
		res.Status = content.StatusStored
		res.Outcome = OutcomeOK
		if err := w.ledger.Resolve(bg, item.ID); err != nil {
			w.logger.Warn("could not clear reconciliation entry", "item_id", item.ID, "error", err)
		}
		w.logger.Info("stored item",
			"item_id", item.ID,
			"strategy", d.Strategy,
			"table", d.TableName,
		)

	case res.Relational || res.Vector:
		res.Status = content.StatusDegraded
		res.Outcome = OutcomePartialFailure
		if len(res.Missing) > 0 {
			res.Failure = &PartialWriteError{Missing: res.Missing, Err: errors.Join(relErr, vecErr, staleErr)}
		} else {
			res.Failure = &StaleRecordError{Stale: res.Stale, Err: staleErr}
		}
		w.degrade(bg, item, d, embedding, res)
		w.logger.Warn("partial write",
			"item_id", item.ID,
			"strategy", d.Strategy,
			"missing", res.Missing,
			"stale", res.Stale,
			"error", res.Failure,
		)

	default:
		if d.Strategy == strategy.Hybrid {
			err = fmt.Errorf("%w: %w", ErrDualWriteFailure, errors.Join(relErr, vecErr))
		} else {
			err = fmt.Errorf("%w: %w", ErrWriteFailed, errors.Join(relErr, vecErr))
		}
		res.Failure = err
		w.logger.Error("write failed",
			"item_id", item.ID,
			"strategy", d.Strategy,
			"error", err,
		)
	}

	if res.Outcome != OutcomeOK {
		w.recordLedger(bg, d, res)
		w.publish(bg, item, d, res)
	}
	w.markCatalog(bg, item.ID, res)

	return res, err
}

// Delete removes an item from both stores. Missing records are not errors.
func (w *Writer) Delete(ctx context.Context, id, table string) error {
	var errs []error
	if table != "" {
		if err := schema.DeleteRecord(ctx, w.schema.Driver(), table, id); err != nil {
			errs = append(errs, fmt.Errorf("relational: %w", err))
		}
	}
	if err := w.vectors.Delete(ctx, []string{id}); err != nil && !errors.Is(err, vector.ErrNotFound) {
		errs = append(errs, fmt.Errorf("vector: %w", err))
	}
	if err := w.ledger.Resolve(ctx, id); err != nil {
		errs = append(errs, fmt.Errorf("ledger: %w", err))
	}
	return errors.Join(errs...)
}

// Locate finds an item that has no catalog entry: the table named in its
// vector payload, else the registered table holding a record with its id.
// found reports whether either store holds the item.
func (w *Writer) Locate(ctx context.Context, id string) (table string, found bool, err error) {
	docs, err := w.vectors.Get(ctx, []string{id})
	if err != nil && !errors.Is(err, vector.ErrNotFound) {
		return "", false, fmt.Errorf("vector: %w", err)
	}
	for _, doc := range docs {
		if doc.ID != id {
			continue
		}
		found = true
		if t := doc.Payload[vector.PayloadTable]; t != "" {
			return t, true, nil
		}
	}

	tables, err := w.schema.Tables(ctx, "")
	if err != nil {
		return "", found, err
	}
	for _, t := range tables {
		_, err := schema.LoadRecord(ctx, w.schema.Driver(), t.Name, id)
		switch {
		case err == nil:
			return t.Name, true, nil
		case errors.As(err, new(storage.NotFoundError)):
		default:
			return "", found, err
		}
	}
	return "", found, nil
}

// priorEntry returns the catalog entry of an earlier write of id.
func (w *Writer) priorEntry(ctx context.Context, id string) (catalog.Entry, bool) {
	if w.catalog == nil {
		return catalog.Entry{}, false
	}
	e, err := w.catalog.Get(ctx, id)
	if err != nil {
		if !errors.As(err, new(storage.NotFoundError)) {
			w.logger.Warn("could not read catalog entry", "item_id", id, "error", err)
		}
		return catalog.Entry{}, false
	}
	return e, true
}

// prune removes the records an earlier write of id left on sides or in a
// table that d no longer targets. It returns the sides it could not clear.
func (w *Writer) prune(ctx context.Context, id string, prior catalog.Entry, d strategy.Decision) ([]ledger.Side, error) {
	var stale []ledger.Side
	var errs []error

	if (prior.HasVector || prior.Strategy.UsesVector()) && !d.Strategy.UsesVector() {
		err := w.vectors.Delete(ctx, []string{id})
		if err != nil && !errors.Is(err, vector.ErrNotFound) {
			stale = append(stale, ledger.SideVector)
			errs = append(errs, fmt.Errorf("removing stale vector record: %w", err))
		}
	}
	if prior.TableName != "" && prior.TableName != d.TableName &&
		(prior.HasRelational || prior.Strategy.UsesRelational()) {
		if err := schema.DeleteRecord(ctx, w.schema.Driver(), prior.TableName, id); err != nil {
			stale = append(stale, ledger.SideRelational)
			errs = append(errs, fmt.Errorf("removing stale record from %s: %w", prior.TableName, err))
		}
	}

	if prior.Strategy != d.Strategy || prior.TableName != d.TableName {
		w.logger.Info("strategy changed",
			"item_id", id,
			"from", prior.Strategy,
			"to", d.Strategy,
			"from_table", prior.TableName,
			"stale", stale,
		)
	}
	return stale, errors.Join(errs...)
}

func (w *Writer) writeRelational(ctx context.Context, item content.Item, d strategy.Decision, o writeOptions) (bool, error) {
	var created bool
	err := retry.Do(ctx, w.retry, func(ctx context.Context) error {
		name, c, err := w.schema.EnsureTable(ctx, d.DomainTag, string(d.ContentType))
		if err != nil {
			return err
		}
		created = created || c
		if name != d.TableName {
			return retry.Permanent(fmt.Errorf("%w: table %s does not match ensured table %s",
				strategy.ErrInvalidDecisionState, d.TableName, name))
		}
		return schema.UpsertRecord(ctx, w.schema.Driver(), name, record(item, d, o))
	}, w.onRetry(item.ID, ledger.SideRelational))
	return created, err
}

func (w *Writer) writeVector(ctx context.Context, item content.Item, d strategy.Decision, embedding []float32, status content.Status) error {
	doc := vector.Document{
		ID:        item.ID,
		Embedding: embedding,
		Payload:   payload(item, d, status),
	}
	return retry.Do(ctx, w.retry, func(ctx context.Context) error {
		err := w.vectors.Add(ctx, []vector.Document{doc})
		if errors.Is(err, vector.ErrDimensionMismatch) {
			return retry.Permanent(err)
		}
		return err
	}, w.onRetry(item.ID, ledger.SideVector))
}

func (w *Writer) onRetry(id string, side ledger.Side) func(int, error, time.Duration) {
	return func(attempt int, err error, wait time.Duration) {
		w.logger.Debug("retrying write",
			"item_id", id,
			"side", side,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	}
}

// degrade marks the surviving side of a partial write as degraded.
func (w *Writer) degrade(ctx context.Context, item content.Item, d strategy.Decision, embedding []float32, res WriteResult) {
	if res.Relational {
		if err := schema.SetStatus(ctx, w.schema.Driver(), d.TableName, item.ID, content.StatusDegraded); err != nil {
			w.logger.Warn("could not mark relational record degraded", "item_id", item.ID, "error", err)
		}
	}
	if res.Vector {
		doc := vector.Document{ID: item.ID, Embedding: embedding, Payload: payload(item, d, content.StatusDegraded)}
		if err := w.vectors.Add(ctx, []vector.Document{doc}); err != nil {
			w.logger.Warn("could not mark vector record degraded", "item_id", item.ID, "error", err)
		}
	}
}

func (w *Writer) recordLedger(ctx context.Context, d strategy.Decision, res WriteResult) {
	err := w.ledger.Record(ctx, ledger.Entry{
		ItemID:    res.ItemID,
		Strategy:  d.Strategy,
		TableName: d.TableName,
		Missing:   res.Missing,
		Reason:    res.Reason(),
	})
	if err != nil {
		w.logger.Error("could not record reconciliation entry", "item_id", res.ItemID, "error", err)
	}
}

func (w *Writer) publish(ctx context.Context, item content.Item, d strategy.Decision, res WriteResult) {
	if w.events == nil {
		return
	}
	eventType := eventstream.EventTypeItemDegraded
	if res.Outcome == OutcomeFailure {
		eventType = eventstream.EventTypeItemFailed
	}
	ev := eventstream.NewItemEvent(eventType)
	ev.ItemID = item.ID
	ev.Title = item.Title
	ev.Domain = d.DomainTag
	ev.Strategy = string(d.Strategy)
	ev.TableName = d.TableName
	ev.Status = string(res.Status)
	ev.Reason = res.Reason()
	for _, s := range res.Missing {
		ev.Missing = append(ev.Missing, string(s))
	}
	if err := w.events.PublishItem(ctx, ev); err != nil {
		w.logger.Warn("could not publish item event", "item_id", item.ID, "error", err)
	}
}

func (w *Writer) putCatalog(ctx context.Context, item content.Item, d strategy.Decision, o writeOptions, status content.Status) {
	if w.catalog == nil {
		return
	}
	e := catalog.Entry{
		ID:          item.ID,
		Title:       item.Title,
		TableName:   d.TableName,
		Domain:      d.DomainTag,
		ContentType: d.ContentType,
		Strategy:    d.Strategy,
		Status:      status,
		Confidence:  d.Confidence,
		ModelUsed:   d.ModelUsed,
		CreatedAt:   item.CreatedAt,
	}
	if o.features != nil {
		e.Features = *o.features
	}
	if err := w.catalog.Put(ctx, e); err != nil {
		w.logger.Warn("could not write catalog entry", "item_id", item.ID, "error", err)
	}
}

func (w *Writer) markCatalog(ctx context.Context, id string, res WriteResult) {
	if w.catalog == nil {
		return
	}
	if err := w.catalog.MarkSides(ctx, id, res.Status, res.Relational, res.Vector); err != nil {
		w.logger.Warn("could not update catalog entry", "item_id", id, "error", err)
	}
}

func record(item content.Item, d strategy.Decision, o writeOptions) schema.Record {
	r := schema.Record{
		ID:          item.ID,
		Title:       item.Title,
		Author:      item.Author,
		SourceURL:   item.SourceURL,
		Domain:      d.DomainTag,
		Language:    item.Language,
		ContentType: string(d.ContentType),
		SizeBytes:   item.SizeBytes,
		Strategy:    string(d.Strategy),
		Status:      content.StatusStored,
		CreatedAt:   item.CreatedAt,
	}
	if d.Strategy.StoresContent() {
		r.Content = item.Content
	}
	if o.features != nil {
		r.WordCount = o.features.WordCount
		r.Complexity = o.features.SemanticComplexity
	}
	r.Metadata = map[string]string{
		"confidence": strconv.FormatFloat(d.Confidence, 'f', 3, 64),
	}
	if d.ModelUsed {
		r.Metadata["model_used"] = "true"
	}
	return r
}

func payload(item content.Item, d strategy.Decision, status content.Status) vector.Payload {
	p := vector.Payload{
		vector.PayloadTitle:       item.Title,
		vector.PayloadDomain:      d.DomainTag,
		vector.PayloadLanguage:    item.Language,
		vector.PayloadContentType: string(d.ContentType),
		vector.PayloadStrategy:    string(d.Strategy),
		vector.PayloadStatus:      string(status),
		vector.PayloadCreatedAt:   item.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if item.Author != "" {
		p[vector.PayloadAuthor] = item.Author
	}
	if item.SourceURL != "" {
		p[vector.PayloadSourceURL] = item.SourceURL
	}
	if d.TableName != "" {
		p[vector.PayloadTable] = d.TableName
	}
	return p
}
