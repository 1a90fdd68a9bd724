package perf

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"math"
	"slices"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/strata/pkg/schema"
	"github.com/papercomputeco/strata/pkg/storage"
)

// EntriesTable holds the append-only performance log.
const EntriesTable = "strata_query_performance"

var entryColumns = []string{
	"id", "query_hash", "query_type", "domain", "execution_ms",
	"rows_returned", "strategy", "partial", "created_at",
}

// Store persists performance entries in the relational store.
type Store struct {
	db storage.Driver
}

// NewStore creates a Store over db.
func NewStore(db storage.Driver) *Store {
	return &Store{db: db}
}

// Migrate creates the performance log table.
func (s *Store) Migrate(ctx context.Context) error {
	t := schema.Types(s.db.Dialect())
	st := schema.CreateTable(EntriesTable).IfNotExists().
		Columns(
			schema.Col("id", t.Text, "NOT NULL"),
			schema.Col("query_hash", t.Text, "NOT NULL"),
			schema.Col("query_type", t.Text, "NOT NULL"),
			schema.Col("domain", t.Text),
			schema.Col("execution_ms", t.Double, "NOT NULL"),
			schema.Col("rows_returned", t.BigInt, "NOT NULL DEFAULT 0"),
			schema.Col("strategy", t.Text),
			schema.Col("partial", t.Bool, "NOT NULL DEFAULT FALSE"),
			schema.Col("created_at", t.Timestamp, "NOT NULL"),
		).
		PrimaryKey("id")
	if err := storage.ExecStatement(ctx, s.db, st); err != nil {
		return fmt.Errorf("creating %s: %w", EntriesTable, err)
	}

	ix := schema.Index{Name: EntriesTable + "_created_at", Columns: []string{"created_at"}}
	if err := s.db.Exec(ctx, ix.DDL(s.db.Dialect(), EntriesTable)); err != nil {
		return fmt.Errorf("indexing %s: %w", EntriesTable, err)
	}
	return nil
}

// Insert appends entries in one statement.
func (s *Store) Insert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	ins := storage.Builder(s.db).Insert(EntriesTable).Columns(entryColumns...)
	for _, e := range entries {
		ins.Values(
			e.ID, e.QueryHash, string(e.QueryType), nullable(e.Domain), e.ExecutionMs,
			e.RowsReturned, nullable(e.Strategy), e.Partial, e.Timestamp.UTC(),
		)
	}
	ins.OnConflict(entsql.ConflictColumns("id"), entsql.DoNothing())
	if err := storage.ExecStatement(ctx, s.db, ins); err != nil {
		return fmt.Errorf("writing %d performance entries: %w", len(entries), err)
	}
	return nil
}

// Since returns the entries recorded at or after since, oldest first.
func (s *Store) Since(ctx context.Context, since time.Time) ([]Entry, error) {
	sel := storage.Builder(s.db).Select(entryColumns...).
		From(entsql.Table(EntriesTable)).
		Where(entsql.GTE("created_at", since.UTC())).
		OrderBy("created_at", "id")

	rows, err := storage.QueryStatement(ctx, s.db, sel)
	if err != nil {
		return nil, fmt.Errorf("reading performance entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var qt string
		var domain, strat sql.NullString
		var n int64
		if err := rows.Scan(&e.ID, &e.QueryHash, &qt, &domain, &e.ExecutionMs, &n, &strat, &e.Partial, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning performance entry: %w", err)
		}
		e.QueryType = QueryType(qt)
		e.Domain = domain.String
		e.Strategy = strat.String
		e.RowsReturned = int(n)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune deletes entries older than before and returns how many went.
func (s *Store) Prune(ctx context.Context, before time.Time) (int, error) {
	rows, err := s.db.Query(ctx, "SELECT COUNT(*) FROM "+EntriesTable+" WHERE created_at < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("counting expired performance entries: %w", err)
	}
	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			rows.Close()
			return 0, err
		}
	}
	rows.Close()

	del := storage.Builder(s.db).Delete(EntriesTable).Where(entsql.LT("created_at", before.UTC()))
	if err := storage.ExecStatement(ctx, s.db, del); err != nil {
		return 0, fmt.Errorf("pruning performance entries: %w", err)
	}
	return n, nil
}

// Aggregate groups entries recorded since since and computes count, mean,
// median, 95th percentile and max execution time per group.
func (s *Store) Aggregate(ctx context.Context, g GroupBy, since time.Time) ([]AggregateStat, error) {
	entries, err := s.Since(ctx, since)
	if err != nil {
		return nil, err
	}
	return Aggregate(entries, g), nil
}

// Aggregate is the in-memory form of Store.Aggregate. Groups are sorted by
// type then domain.
func Aggregate(entries []Entry, g GroupBy) []AggregateStat {
	type key struct {
		t QueryType
		d string
	}
	groups := map[key][]Entry{}
	for _, e := range entries {
		var k key
		if g.Type {
			k.t = e.QueryType
		}
		if g.Domain {
			k.d = e.Domain
		}
		groups[k] = append(groups[k], e)
	}

	out := make([]AggregateStat, 0, len(groups))
	for k, es := range groups {
		times := make([]float64, len(es))
		st := AggregateStat{QueryType: k.t, Domain: k.d, Count: len(es)}
		var sum, rows float64
		for i, e := range es {
			times[i] = e.ExecutionMs
			sum += e.ExecutionMs
			rows += float64(e.RowsReturned)
			if e.Partial {
				st.Partial++
			}
		}
		slices.Sort(times)
		st.AvgMs = sum / float64(len(es))
		st.AvgRows = rows / float64(len(es))
		st.P50Ms = percentile(times, 0.50)
		st.P95Ms = percentile(times, 0.95)
		st.MaxMs = times[len(times)-1]
		out = append(out, st)
	}

	slices.SortFunc(out, func(a, b AggregateStat) int {
		if c := cmp.Compare(a.QueryType, b.QueryType); c != 0 {
			return c
		}
		return cmp.Compare(a.Domain, b.Domain)
	})
	return out
}

// percentile uses the nearest-rank method on sorted values.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	return sorted[min(max(rank, 0), len(sorted)-1)]
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
