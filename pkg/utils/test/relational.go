package testutils

import (
	"context"
	"strings"
	"sync"

	"github.com/papercomputeco/strata/pkg/storage"
	"github.com/papercomputeco/strata/pkg/storage/sqlite"
)

// FailingDriver wraps a relational driver and fails statements that mention
// a configured substring.
type FailingDriver struct {
	storage.Driver

	mu      sync.Mutex
	err     error
	match   string
	queries bool
}

var _ storage.Driver = (*FailingDriver)(nil)

// NewSQLiteDriver opens a fresh in-memory SQLite store wrapped for failure
// injection.
func NewSQLiteDriver() (*FailingDriver, error) {
	d, err := sqlite.NewDriver(":memory:")
	if err != nil {
		return nil, err
	}
	return &FailingDriver{Driver: d}, nil
}

// FailWrites makes Exec fail with err for statements containing match. An
// empty match fails every write; a nil err clears the failure.
func (f *FailingDriver) FailWrites(match string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err, f.match, f.queries = err, match, false
}

// FailAll makes every statement, reads included, fail with err.
func (f *FailingDriver) FailAll(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err, f.match, f.queries = err, "", true
}

func (f *FailingDriver) failure(query string, read bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err == nil || (read && !f.queries) {
		return nil
	}
	if f.match != "" && !strings.Contains(query, f.match) {
		return nil
	}
	return f.err
}

func (f *FailingDriver) Exec(ctx context.Context, query string, args ...any) error {
	if err := f.failure(query, false); err != nil {
		return err
	}
	return f.Driver.Exec(ctx, query, args...)
}

func (f *FailingDriver) Query(ctx context.Context, query string, args ...any) (storage.Rows, error) {
	if err := f.failure(query, true); err != nil {
		return nil, err
	}
	return f.Driver.Query(ctx, query, args...)
}

func (f *FailingDriver) TableExists(ctx context.Context, name string) (bool, error) {
	if err := f.failure(name, true); err != nil {
		return false, err
	}
	return f.Driver.TableExists(ctx, name)
}
