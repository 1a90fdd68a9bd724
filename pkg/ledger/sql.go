package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/strata/pkg/schema"
	"github.com/papercomputeco/strata/pkg/storage"
	"github.com/papercomputeco/strata/pkg/strategy"
)

// Table is the relational ledger table.
const Table = "strata_reconciliation"

// SQL is a Ledger in the relational store.
type SQL struct {
	db storage.Driver
}

var _ Ledger = (*SQL)(nil)

// NewSQL creates a ledger over db.
func NewSQL(db storage.Driver) *SQL {
	return &SQL{db: db}
}

// Migrate creates the ledger table.
func (l *SQL) Migrate(ctx context.Context) error {
	t := schema.Types(l.db.Dialect())
	st := schema.CreateTable(Table).IfNotExists().
		Columns(
			schema.Col("item_id", t.Text, "NOT NULL"),
			schema.Col("strategy", t.Text, "NOT NULL"),
			schema.Col("table_name", t.Text),
			schema.Col("missing", t.Text, "NOT NULL"),
			schema.Col("reason", t.Text, "NOT NULL"),
			schema.Col("attempts", t.BigInt, "NOT NULL DEFAULT 1"),
			schema.Col("created_at", t.Timestamp, "NOT NULL"),
			schema.Col("updated_at", t.Timestamp, "NOT NULL"),
		).
		PrimaryKey("item_id")
	if err := storage.ExecStatement(ctx, l.db, st); err != nil {
		return fmt.Errorf("creating %s: %w", Table, err)
	}
	return nil
}

func (l *SQL) Record(ctx context.Context, e Entry) error {
	now := time.Now().UTC()
	var table any
	if e.TableName != "" {
		table = e.TableName
	}

	ins := storage.Builder(l.db).Insert(Table).
		Columns("item_id", "strategy", "table_name", "missing", "reason", "attempts", "created_at", "updated_at").
		Values(e.ItemID, string(e.Strategy), table, joinSides(e.Missing), e.Reason, 1, now, now).
		OnConflict(
			entsql.ConflictColumns("item_id"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				u.SetExcluded("strategy")
				u.SetExcluded("table_name")
				u.SetExcluded("missing")
				u.SetExcluded("reason")
				u.SetExcluded("updated_at")
				u.Add("attempts", 1)
			}),
		)
	if err := storage.ExecStatement(ctx, l.db, ins); err != nil {
		return fmt.Errorf("recording reconciliation for %s: %w", e.ItemID, err)
	}
	return nil
}

func (l *SQL) Resolve(ctx context.Context, itemID string) error {
	del := storage.Builder(l.db).Delete(Table).Where(entsql.EQ("item_id", itemID))
	if err := storage.ExecStatement(ctx, l.db, del); err != nil {
		return fmt.Errorf("resolving reconciliation for %s: %w", itemID, err)
	}
	return nil
}

func (l *SQL) Pending(ctx context.Context, limit int) ([]Entry, error) {
	sel := storage.Builder(l.db).
		Select("item_id", "strategy", "table_name", "missing", "reason", "attempts", "created_at", "updated_at").
		From(entsql.Table(Table)).
		OrderBy("created_at", "item_id")
	if limit > 0 {
		sel.Limit(limit)
	}

	rows, err := storage.QueryStatement(ctx, l.db, sel)
	if err != nil {
		return nil, fmt.Errorf("listing reconciliation entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var strat, missing string
		var table sql.NullString
		var attempts int64
		if err := rows.Scan(&e.ItemID, &strat, &table, &missing, &e.Reason, &attempts, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning reconciliation entry: %w", err)
		}
		e.Strategy = strategy.Strategy(strat)
		e.TableName = table.String
		e.Missing = splitSides(missing)
		e.Attempts = int(attempts)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (l *SQL) Count(ctx context.Context) (int, error) {
	rows, err := l.db.Query(ctx, "SELECT COUNT(*) FROM "+Table)
	if err != nil {
		return 0, fmt.Errorf("counting reconciliation entries: %w", err)
	}
	defer rows.Close()

	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, fmt.Errorf("counting reconciliation entries: %w", err)
		}
	}
	return int(n), rows.Err()
}
