// Package storage defines the relational store strata writes RelationalRecords,
// the catalog, the reconciliation ledger and performance data to.
package storage

import (
	"context"

	entsql "entgo.io/ent/dialect/sql"
)

// Rows is the cursor returned by Driver.Query. *sql.Rows and ent's
// *entsql.Rows both satisfy it. Callers must Close it before issuing the next
// statement on the same goroutine.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Driver is a relational store. Statements use "?" placeholders; drivers for
// dialects with numbered placeholders rebind them.
type Driver interface {
	// Dialect returns the ent dialect name (dialect.Postgres, dialect.SQLite).
	Dialect() string

	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, query string, args ...any) error

	// Query runs a statement that returns rows.
	Query(ctx context.Context, query string, args ...any) (Rows, error)

	// TableExists reports whether a table with the given name exists in the
	// active schema.
	TableExists(ctx context.Context, name string) (bool, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close closes the store and releases any resources.
	Close() error
}

// Statement is anything that renders to SQL, e.g. ent's sql builders.
type Statement interface {
	Query() (string, []any)
}

// Builder returns an ent SQL builder for the driver's dialect.
func Builder(d Driver) *entsql.DialectBuilder {
	return entsql.Dialect(d.Dialect())
}

// ExecStatement renders and executes st.
func ExecStatement(ctx context.Context, d Driver, st Statement) error {
	q, args := st.Query()
	return d.Exec(ctx, q, args...)
}

// QueryStatement renders st and runs it as a query.
func QueryStatement(ctx context.Context, d Driver, st Statement) (Rows, error) {
	q, args := st.Query()
	return d.Query(ctx, q, args...)
}
