package perf

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/papercomputeco/strata/pkg/catalog"
	"github.com/papercomputeco/strata/pkg/logger"
	"github.com/papercomputeco/strata/pkg/schema"
	"github.com/papercomputeco/strata/pkg/storage"
	"github.com/papercomputeco/strata/pkg/strategy"
)

// RecommendationsTable holds generated recommendations.
const RecommendationsTable = "strata_recommendations"

// ErrInvalidTransition is returned when an operator acts on a
// recommendation that is no longer pending.
var ErrInvalidTransition = errors.New("recommendation is not pending")

// RecommendationType is the kind of change proposed.
type RecommendationType string

const (
	RecommendIndex         RecommendationType = "index"
	RecommendPartition     RecommendationType = "partition"
	RecommendConsolidation RecommendationType = "consolidation"
	RecommendRetrain       RecommendationType = "retrain"
)

// RecommendationStatus is the operator-controlled state.
type RecommendationStatus string

const (
	StatusPending   RecommendationStatus = "pending"
	StatusApplied   RecommendationStatus = "applied"
	StatusDismissed RecommendationStatus = "dismissed"
)

// Recommendation is a proposed change. Key identifies the condition that
// produced it so regeneration updates instead of duplicating.
type Recommendation struct {
	ID                          string               `json:"id"`
	Key                         string               `json:"key"`
	Type                        RecommendationType   `json:"type"`
	Title                       string               `json:"title"`
	Description                 string               `json:"description"`
	EstimatedImprovementPercent float64              `json:"estimated_improvement_percent"`
	ConfidenceScore             float64              `json:"confidence_score"`
	Status                      RecommendationStatus `json:"status"`
	CreatedAt                   time.Time            `json:"created_at"`
	UpdatedAt                   time.Time            `json:"updated_at"`
}

// Rules are the thresholds recommendations are generated against.
type Rules struct {
	// SlowQueryMs and ConsecutiveWindows: a (type, domain) pair whose mean
	// execution time exceeds SlowQueryMs in each of the last
	// ConsecutiveWindows windows of length Window gets an index proposal.
	SlowQueryMs        float64
	ConsecutiveWindows int
	Window             time.Duration

	// HybridShare is the fraction of hybrid items above which the hybrid
	// sync is flagged.
	HybridShare float64

	DynamicTableLimit int
	RetrainConfidence float64
	PartitionRows     int64
}

// DefaultRules returns the stock thresholds.
func DefaultRules() Rules {
	return Rules{
		SlowQueryMs:        200,
		ConsecutiveWindows: 3,
		Window:             time.Hour,
		HybridShare:        0.5,
		DynamicTableLimit:  20,
		RetrainConfidence:  0.7,
		PartitionRows:      1_000_000,
	}
}

// RecommenderConfig configures a Recommender.
type RecommenderConfig struct {
	Store   *Store
	Schema  *schema.Manager
	Catalog *catalog.Catalog
	Rules   Rules
	Logger  *slog.Logger

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Recommender derives recommendations from the performance log, the
// catalog and the dynamic tables. It never applies them.
type Recommender struct {
	store   *Store
	db      storage.Driver
	schema  *schema.Manager
	catalog *catalog.Catalog
	rules   Rules
	now     func() time.Time
	logger  *slog.Logger
}

// NewRecommender creates a Recommender.
func NewRecommender(c RecommenderConfig) *Recommender {
	r := &Recommender{
		store:   c.Store,
		db:      c.Schema.Driver(),
		schema:  c.Schema,
		catalog: c.Catalog,
		rules:   c.Rules,
		now:     c.Now,
		logger:  c.Logger,
	}
	if r.rules == (Rules{}) {
		r.rules = DefaultRules()
	}
	if r.rules.Window <= 0 {
		r.rules.Window = DefaultRules().Window
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.logger == nil {
		r.logger = logger.Nop()
	}
	return r
}

var recommendationColumns = []string{
	"id", "rec_key", "rec_type", "title", "description",
	"estimated_improvement", "confidence", "status", "created_at", "updated_at",
}

// Migrate creates the recommendations table.
func (r *Recommender) Migrate(ctx context.Context) error {
	t := schema.Types(r.db.Dialect())
	st := schema.CreateTable(RecommendationsTable).IfNotExists().
		Columns(
			schema.Col("id", t.Text, "NOT NULL"),
			schema.Col("rec_key", t.Text, "NOT NULL UNIQUE"),
			schema.Col("rec_type", t.Text, "NOT NULL"),
			schema.Col("title", t.Text, "NOT NULL"),
			schema.Col("description", t.Text, "NOT NULL"),
			schema.Col("estimated_improvement", t.Double, "NOT NULL DEFAULT 0"),
			schema.Col("confidence", t.Double, "NOT NULL DEFAULT 0"),
			schema.Col("status", t.Text, "NOT NULL"),
			schema.Col("created_at", t.Timestamp, "NOT NULL"),
			schema.Col("updated_at", t.Timestamp, "NOT NULL"),
		).
		PrimaryKey("id")
	if err := storage.ExecStatement(ctx, r.db, st); err != nil {
		return fmt.Errorf("creating %s: %w", RecommendationsTable, err)
	}
	return nil
}

// Generate evaluates every rule and reconciles the stored recommendations:
// new conditions are inserted as pending, pending ones are refreshed or
// removed when their condition cleared, and applied or dismissed ones are
// left alone. It returns the pending set.
func (r *Recommender) Generate(ctx context.Context) ([]Recommendation, error) {
	candidates, err := r.candidates(ctx)
	if err != nil {
		return nil, err
	}

	existing, err := r.List(ctx, "")
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]Recommendation, len(existing))
	for _, rec := range existing {
		byKey[rec.Key] = rec
	}

	now := r.now().UTC()
	seen := map[string]bool{}
	for _, c := range candidates {
		seen[c.Key] = true
		prev, ok := byKey[c.Key]
		switch {
		case !ok:
			c.ID = uuid.NewString()
			c.Status = StatusPending
			c.CreatedAt = now
			c.UpdatedAt = now
			if err := r.insert(ctx, c); err != nil {
				return nil, err
			}
			r.logger.Info("new recommendation", "type", c.Type, "title", c.Title, "confidence", c.ConfidenceScore)
		case prev.Status == StatusPending:
			upd := storage.Builder(r.db).Update(RecommendationsTable).
				Set("title", c.Title).
				Set("description", c.Description).
				Set("estimated_improvement", c.EstimatedImprovementPercent).
				Set("confidence", c.ConfidenceScore).
				Set("updated_at", now).
				Where(entsql.EQ("id", prev.ID))
			if err := storage.ExecStatement(ctx, r.db, upd); err != nil {
				return nil, fmt.Errorf("refreshing recommendation %s: %w", prev.ID, err)
			}
		}
	}

	for _, rec := range existing {
		if rec.Status == StatusPending && !seen[rec.Key] {
			del := storage.Builder(r.db).Delete(RecommendationsTable).Where(entsql.EQ("id", rec.ID))
			if err := storage.ExecStatement(ctx, r.db, del); err != nil {
				return nil, fmt.Errorf("removing stale recommendation %s: %w", rec.ID, err)
			}
		}
	}

	return r.List(ctx, StatusPending)
}

// List returns recommendations, optionally only those with status, most
// confident first.
func (r *Recommender) List(ctx context.Context, status RecommendationStatus) ([]Recommendation, error) {
	sel := storage.Builder(r.db).Select(recommendationColumns...).
		From(entsql.Table(RecommendationsTable)).
		OrderBy(entsql.Desc("confidence"), "rec_key")
	if status != "" {
		sel.Where(entsql.EQ("status", string(status)))
	}

	rows, err := storage.QueryStatement(ctx, r.db, sel)
	if err != nil {
		return nil, fmt.Errorf("listing recommendations: %w", err)
	}
	defer rows.Close()

	var out []Recommendation
	for rows.Next() {
		var rec Recommendation
		var typ, st string
		if err := rows.Scan(&rec.ID, &rec.Key, &typ, &rec.Title, &rec.Description,
			&rec.EstimatedImprovementPercent, &rec.ConfidenceScore, &st, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning recommendation: %w", err)
		}
		rec.Type = RecommendationType(typ)
		rec.Status = RecommendationStatus(st)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SetStatus applies or dismisses a pending recommendation.
func (r *Recommender) SetStatus(ctx context.Context, id string, status RecommendationStatus) error {
	if status != StatusApplied && status != StatusDismissed {
		return fmt.Errorf("%w: cannot move to %q", ErrInvalidTransition, status)
	}

	all, err := r.List(ctx, "")
	if err != nil {
		return err
	}
	i := slices.IndexFunc(all, func(rec Recommendation) bool { return rec.ID == id })
	if i < 0 {
		return storage.NotFoundError{ID: id}
	}
	if all[i].Status != StatusPending {
		return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, all[i].Status)
	}

	upd := storage.Builder(r.db).Update(RecommendationsTable).
		Set("status", string(status)).
		Set("updated_at", r.now().UTC()).
		Where(entsql.EQ("id", id))
	if err := storage.ExecStatement(ctx, r.db, upd); err != nil {
		return fmt.Errorf("updating recommendation %s: %w", id, err)
	}
	r.logger.Info("recommendation updated", "id", id, "status", status)
	return nil
}

func (r *Recommender) insert(ctx context.Context, rec Recommendation) error {
	ins := storage.Builder(r.db).Insert(RecommendationsTable).
		Columns(recommendationColumns...).
		Values(rec.ID, rec.Key, string(rec.Type), rec.Title, rec.Description,
			rec.EstimatedImprovementPercent, rec.ConfidenceScore, string(rec.Status),
			rec.CreatedAt, rec.UpdatedAt)
	if err := storage.ExecStatement(ctx, r.db, ins); err != nil {
		return fmt.Errorf("writing recommendation %s: %w", rec.Key, err)
	}
	return nil
}

// candidates evaluates the rules. A failing input source skips its rules
// rather than failing generation.
func (r *Recommender) candidates(ctx context.Context) ([]Recommendation, error) {
	var out []Recommendation

	slow, err := r.slowPairs(ctx)
	if err != nil {
		return nil, err
	}
	out = append(out, slow...)

	if r.catalog != nil {
		stats, err := r.catalog.Stats(ctx)
		if err != nil {
			r.logger.Warn("catalog statistics unavailable", "error", err)
		} else {
			out = append(out, r.catalogRules(stats)...)
		}
	}

	tables, err := r.schema.Tables(ctx, "")
	if err != nil {
		r.logger.Warn("table registry unavailable", "error", err)
		return out, nil
	}
	if len(tables) > r.rules.DynamicTableLimit {
		out = append(out, Recommendation{
			Key:                         "consolidation:tables",
			Type:                        RecommendConsolidation,
			Title:                       "Many dynamic tables created - consider table consolidation",
			Description:                 fmt.Sprintf("%d dynamic tables exist, above the limit of %d. Merging sparse domains reduces catalog and planning overhead.", len(tables), r.rules.DynamicTableLimit),
			EstimatedImprovementPercent: 10,
			ConfidenceScore:             sampleConfidence(len(tables)),
		})
	}
	for _, t := range tables {
		n, err := schema.CountRecords(ctx, r.db, t.Name)
		if err != nil {
			r.logger.Warn("could not count table rows", "table", t.Name, "error", err)
			continue
		}
		if n > r.rules.PartitionRows {
			out = append(out, Recommendation{
				Key:                         "partition:" + t.Name,
				Type:                        RecommendPartition,
				Title:                       "Partition " + t.Name,
				Description:                 fmt.Sprintf("%s holds %d rows, above %d. Partition it by created_at.", t.Name, n, r.rules.PartitionRows),
				EstimatedImprovementPercent: 25,
				ConfidenceScore:             0.8,
			})
		}
	}
	return out, nil
}

func (r *Recommender) catalogRules(s catalog.Stats) []Recommendation {
	if s.Total == 0 {
		return nil
	}
	var out []Recommendation

	share := float64(s.ByStrategy[strategy.Hybrid]) / float64(s.Total)
	if share > r.rules.HybridShare {
		out = append(out, Recommendation{
			Key:                         "consolidation:hybrid_sync",
			Type:                        RecommendConsolidation,
			Title:                       "High hybrid usage - review relational and vector sync",
			Description:                 fmt.Sprintf("%.0f%% of %d items are stored in both stores. Review the hybrid thresholds and the reconciliation backlog.", share*100, s.Total),
			EstimatedImprovementPercent: 15,
			ConfidenceScore:             sampleConfidence(s.Total),
		})
	}

	if s.AverageConfidence < r.rules.RetrainConfidence {
		out = append(out, Recommendation{
			Key:                         "retrain:classifier",
			Type:                        RecommendRetrain,
			Title:                       "Consider retraining the storage classifier with more data",
			Description:                 fmt.Sprintf("Average decision confidence is %.2f across %d items, below %.2f.", s.AverageConfidence, s.Total, r.rules.RetrainConfidence),
			EstimatedImprovementPercent: 10,
			ConfidenceScore:             sampleConfidence(s.Total),
		})
	}
	return out
}

// slowPairs finds (type, domain) pairs slow in each of the last
// ConsecutiveWindows windows.
func (r *Recommender) slowPairs(ctx context.Context) ([]Recommendation, error) {
	n := max(r.rules.ConsecutiveWindows, 1)
	now := r.now().UTC()
	since := now.Add(-time.Duration(n) * r.rules.Window)

	entries, err := r.store.Since(ctx, since)
	if err != nil {
		return nil, err
	}

	type key struct {
		t QueryType
		d string
	}
	buckets := map[key][][]Entry{}
	for _, e := range entries {
		w := int(now.Sub(e.Timestamp) / r.rules.Window)
		if w < 0 || w >= n {
			continue
		}
		k := key{e.QueryType, e.Domain}
		if buckets[k] == nil {
			buckets[k] = make([][]Entry, n)
		}
		buckets[k][w] = append(buckets[k][w], e)
	}

	var out []Recommendation
	for k, windows := range buckets {
		slow, samples := true, 0
		var sum float64
		for _, w := range windows {
			if len(w) == 0 {
				slow = false
				break
			}
			st := Aggregate(w, GroupBy{})[0]
			if st.AvgMs <= r.rules.SlowQueryMs {
				slow = false
				break
			}
			samples += st.Count
			sum += st.AvgMs * float64(st.Count)
		}
		if !slow {
			continue
		}
		avg := sum / float64(samples)
		domain := k.d
		if domain == "" {
			domain = "all domains"
		}
		out = append(out, Recommendation{
			Key:   fmt.Sprintf("index:%s:%s", k.t, k.d),
			Type:  RecommendIndex,
			Title: fmt.Sprintf("Add an index for %s queries on %s", k.t, domain),
			Description: fmt.Sprintf("%s queries on %s averaged %.0fms over %d consecutive windows (%d samples), above %.0fms.",
				k.t, domain, avg, n, samples, r.rules.SlowQueryMs),
			EstimatedImprovementPercent: math.Round(min(80, (avg-r.rules.SlowQueryMs)/avg*100)),
			ConfidenceScore:             sampleConfidence(samples),
		})
	}
	slices.SortFunc(out, func(a, b Recommendation) int { return cmp.Compare(a.Key, b.Key) })
	return out, nil
}

// sampleConfidence grows with sample size towards 0.95.
func sampleConfidence(n int) float64 {
	if n <= 0 {
		return 0
	}
	return math.Round(min(0.95, 1-1/math.Sqrt(float64(n)+1))*100) / 100
}
