// Package catalog keeps one row per ingested item: where it lives, which
// sides were written and the decision that placed it. A vector hit resolves
// its dynamic table through the catalog, and retraining reads decision
// history from it.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/strata/pkg/content"
	"github.com/papercomputeco/strata/pkg/features"
	"github.com/papercomputeco/strata/pkg/logger"
	"github.com/papercomputeco/strata/pkg/schema"
	"github.com/papercomputeco/strata/pkg/storage"
	"github.com/papercomputeco/strata/pkg/strategy"
)

// Table is the catalog table.
const Table = "strata_content"

// Entry is one catalog row.
type Entry struct {
	ID            string
	Title         string
	TableName     string
	Domain        string
	ContentType   content.Type
	Strategy      strategy.Strategy
	Status        content.Status
	HasRelational bool
	HasVector     bool
	Confidence    float64
	ModelUsed     bool
	Features      features.FeatureVector
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Catalog reads and writes catalog entries.
type Catalog struct {
	db     storage.Driver
	logger *slog.Logger
}

// New creates a Catalog over db.
func New(db storage.Driver, log *slog.Logger) *Catalog {
	if log == nil {
		log = logger.Nop()
	}
	return &Catalog{db: db, logger: log}
}

var columns = []string{
	"id", "title", "table_name", "domain", "content_type", "strategy", "status",
	"has_relational", "has_vector", "confidence", "model_used", "features",
	"created_at", "updated_at",
}

// Migrate creates the catalog table.
func (c *Catalog) Migrate(ctx context.Context) error {
	t := schema.Types(c.db.Dialect())
	st := schema.CreateTable(Table).IfNotExists().
		Columns(
			schema.Col("id", t.Text, "NOT NULL"),
			schema.Col("title", t.Text, "NOT NULL"),
			schema.Col("table_name", t.Text),
			schema.Col("domain", t.Text, "NOT NULL"),
			schema.Col("content_type", t.Text, "NOT NULL"),
			schema.Col("strategy", t.Text, "NOT NULL"),
			schema.Col("status", t.Text, "NOT NULL"),
			schema.Col("has_relational", t.Bool, "NOT NULL DEFAULT FALSE"),
			schema.Col("has_vector", t.Bool, "NOT NULL DEFAULT FALSE"),
			schema.Col("confidence", t.Double, "NOT NULL DEFAULT 0"),
			schema.Col("model_used", t.Bool, "NOT NULL DEFAULT FALSE"),
			schema.Col("features", t.Text),
			schema.Col("created_at", t.Timestamp, "NOT NULL"),
			schema.Col("updated_at", t.Timestamp, "NOT NULL"),
		).
		PrimaryKey("id")
	if err := storage.ExecStatement(ctx, c.db, st); err != nil {
		return fmt.Errorf("creating %s: %w", Table, err)
	}

	for _, col := range []string{"status", "strategy", "created_at"} {
		ix := schema.Index{Name: Table + "_" + col, Columns: []string{col}}
		if err := c.db.Exec(ctx, ix.DDL(c.db.Dialect(), Table)); err != nil {
			return fmt.Errorf("indexing %s.%s: %w", Table, col, err)
		}
	}
	return nil
}

// Put inserts or replaces an entry. CreatedAt is kept from the first write.
func (c *Catalog) Put(ctx context.Context, e Entry) error {
	fv, err := json.Marshal(e.Features)
	if err != nil {
		return fmt.Errorf("encoding features: %w", err)
	}

	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	var table any
	if e.TableName != "" {
		table = e.TableName
	}

	ins := storage.Builder(c.db).Insert(Table).
		Columns(columns...).
		Values(
			e.ID, e.Title, table, e.Domain, string(e.ContentType), string(e.Strategy),
			string(e.Status), e.HasRelational, e.HasVector, e.Confidence, e.ModelUsed,
			string(fv), e.CreatedAt.UTC(), e.UpdatedAt,
		).
		OnConflict(
			entsql.ConflictColumns("id"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				for _, col := range columns {
					if col != "id" && col != "created_at" {
						u.SetExcluded(col)
					}
				}
			}),
		)
	if err := storage.ExecStatement(ctx, c.db, ins); err != nil {
		return fmt.Errorf("writing catalog entry %s: %w", e.ID, err)
	}
	return nil
}

// MarkSides records which sides of an item are present and its status.
func (c *Catalog) MarkSides(ctx context.Context, id string, status content.Status, hasRelational, hasVector bool) error {
	upd := storage.Builder(c.db).Update(Table).
		Set("status", string(status)).
		Set("has_relational", hasRelational).
		Set("has_vector", hasVector).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.EQ("id", id))
	if err := storage.ExecStatement(ctx, c.db, upd); err != nil {
		return fmt.Errorf("updating catalog entry %s: %w", id, err)
	}
	return nil
}

// Get returns one entry or storage.NotFoundError.
func (c *Catalog) Get(ctx context.Context, id string) (Entry, error) {
	entries, err := c.GetMany(ctx, []string{id})
	if err != nil {
		return Entry{}, err
	}
	e, ok := entries[id]
	if !ok {
		return Entry{}, storage.NotFoundError{ID: id}
	}
	return e, nil
}

// GetMany returns the entries that exist among ids.
func (c *Catalog) GetMany(ctx context.Context, ids []string) (map[string]Entry, error) {
	out := make(map[string]Entry, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	sel := storage.Builder(c.db).Select(columns...).
		From(entsql.Table(Table)).
		Where(entsql.In("id", args...))
	entries, err := c.query(ctx, sel)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		out[e.ID] = e
	}
	return out, nil
}

// Delete removes an entry. Deleting a missing id is not an error.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	del := storage.Builder(c.db).Delete(Table).Where(entsql.EQ("id", id))
	if err := storage.ExecStatement(ctx, c.db, del); err != nil {
		return fmt.Errorf("deleting catalog entry %s: %w", id, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (c *Catalog) Recent(ctx context.Context, limit int) ([]Entry, error) {
	sel := storage.Builder(c.db).Select(columns...).
		From(entsql.Table(Table)).
		OrderBy(entsql.Desc("created_at"), "id").
		Limit(limit)
	return c.query(ctx, sel)
}

// Stats summarises the catalog.
type Stats struct {
	Total             int                       `json:"total"`
	ByStrategy        map[strategy.Strategy]int `json:"by_strategy"`
	ByStatus          map[content.Status]int    `json:"by_status"`
	AverageConfidence float64                   `json:"average_confidence"`
	ModelDecisions    int                       `json:"model_decisions"`
}

// Stats counts entries by strategy and status and averages confidence.
func (c *Catalog) Stats(ctx context.Context) (Stats, error) {
	s := Stats{
		ByStrategy: map[strategy.Strategy]int{},
		ByStatus:   map[content.Status]int{},
	}

	rows, err := c.db.Query(ctx,
		"SELECT strategy, status, COUNT(*), COALESCE(SUM(confidence), 0), COALESCE(SUM(CASE WHEN model_used THEN 1 ELSE 0 END), 0) FROM "+
			Table+" GROUP BY strategy, status")
	if err != nil {
		return s, fmt.Errorf("summarising catalog: %w", err)
	}
	defer rows.Close()

	var confSum float64
	for rows.Next() {
		var (
			strat, status string
			n, model      int64
			conf          float64
		)
		if err := rows.Scan(&strat, &status, &n, &conf, &model); err != nil {
			return s, fmt.Errorf("scanning catalog summary: %w", err)
		}
		s.Total += int(n)
		s.ByStrategy[strategy.Strategy(strat)] += int(n)
		s.ByStatus[content.Status(status)] += int(n)
		s.ModelDecisions += int(model)
		confSum += conf
	}
	if err := rows.Err(); err != nil {
		return s, err
	}
	if s.Total > 0 {
		s.AverageConfidence = confSum / float64(s.Total)
	}
	return s, nil
}

func (c *Catalog) query(ctx context.Context, st storage.Statement) ([]Entry, error) {
	rows, err := storage.QueryStatement(ctx, c.db, st)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var table, fv sql.NullString
		var contentType, strat, status string
		if err := rows.Scan(
			&e.ID, &e.Title, &table, &e.Domain, &contentType, &strat, &status,
			&e.HasRelational, &e.HasVector, &e.Confidence, &e.ModelUsed, &fv,
			&e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning catalog entry: %w", err)
		}
		e.TableName = table.String
		e.ContentType = content.Type(contentType)
		e.Strategy = strategy.Strategy(strat)
		e.Status = content.Status(status)
		if fv.String != "" {
			if err := json.Unmarshal([]byte(fv.String), &e.Features); err != nil {
				c.logger.Warn("unreadable feature snapshot", "item_id", e.ID, "error", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
