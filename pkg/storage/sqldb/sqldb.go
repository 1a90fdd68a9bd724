// Package sqldb implements storage.Driver on top of ent's dialect-aware SQL
// driver. The postgres and sqlite packages only open the connection.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/strata/pkg/storage"
)

// Driver provides storage operations over an ent SQL driver. It is
// database-agnostic and embedded by the concrete drivers.
type Driver struct {
	drv *entsql.Driver
}

// New wraps db for the given ent dialect.
func New(dialectName string, db *sql.DB) *Driver {
	return &Driver{drv: entsql.OpenDB(dialectName, db)}
}

// DB returns the underlying *sql.DB.
func (d *Driver) DB() *sql.DB {
	return d.drv.DB()
}

func (d *Driver) Dialect() string {
	return d.drv.Dialect()
}

func (d *Driver) Exec(ctx context.Context, query string, args ...any) error {
	if err := d.drv.Exec(ctx, d.rebind(query), args, nil); err != nil {
		return err
	}
	return nil
}

func (d *Driver) Query(ctx context.Context, query string, args ...any) (storage.Rows, error) {
	rows := &entsql.Rows{}
	if err := d.drv.Query(ctx, d.rebind(query), args, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (d *Driver) TableExists(ctx context.Context, name string) (bool, error) {
	var q string
	switch d.Dialect() {
	case dialect.Postgres:
		q = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?"
	case dialect.SQLite:
		q = "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
	default:
		return false, fmt.Errorf("table lookup not supported for dialect %q", d.Dialect())
	}

	rows, err := d.Query(ctx, q, name)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", name, err)
	}
	defer rows.Close()

	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return false, fmt.Errorf("checking table %s: %w", name, err)
		}
	}
	return n > 0, rows.Err()
}

func (d *Driver) Ping(ctx context.Context) error {
	return d.drv.DB().PingContext(ctx)
}

func (d *Driver) Close() error {
	return d.drv.Close()
}

// rebind rewrites "?" placeholders as "$n" for PostgreSQL. Statements
// produced by ent's builders already carry "$n" and pass through unchanged.
func (d *Driver) rebind(query string) string {
	if d.Dialect() != dialect.Postgres || !strings.Contains(query, "?") {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
