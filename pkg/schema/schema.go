// Package schema creates and tracks the dynamic per-(domain, content type)
// tables relational records are written to.
package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/papercomputeco/strata/pkg/content"
	"github.com/papercomputeco/strata/pkg/logger"
	"github.com/papercomputeco/strata/pkg/storage"
)

// ErrSchemaCreationConflict marks a CREATE that lost a race to another
// writer. EnsureTable treats it as success.
var ErrSchemaCreationConflict = errors.New("schema creation conflict")

// RegistryTable lists every dynamic table strata has created.
const RegistryTable = "strata_tables"

// TableInfo describes a dynamic table.
type TableInfo struct {
	Name        string
	Domain      string
	ContentType string
	FullText    bool
	CreatedAt   time.Time
}

// Manager ensures dynamic tables exist exactly once per process and records
// them in the registry. Concurrent EnsureTable calls for the same name
// serialise on a per-name mutex; different names proceed in parallel.
type Manager struct {
	db     storage.Driver
	locks  sync.Map // table name -> *sync.Mutex
	known  sync.Map // table name -> struct{}
	logger *slog.Logger
}

// NewManager creates a Manager over db.
func NewManager(db storage.Driver, log *slog.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{db: db, logger: log}
}

// Driver returns the relational driver the manager writes to.
func (m *Manager) Driver() storage.Driver {
	return m.db
}

// Migrator creates the system tables one component owns.
type Migrator interface {
	Migrate(ctx context.Context) error
}

// EnsureSystemTables creates the table registry and then runs each
// component migrator in order.
func (m *Manager) EnsureSystemTables(ctx context.Context, migrators ...Migrator) error {
	if err := m.migrate(ctx); err != nil {
		return err
	}
	for _, mg := range migrators {
		if err := mg.Migrate(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) migrate(ctx context.Context) error {
	t := Types(m.db.Dialect())
	st := CreateTable(RegistryTable).IfNotExists().
		Columns(
			Col("name", t.Text, "NOT NULL"),
			Col("domain", t.Text, "NOT NULL"),
			Col("content_type", t.Text, "NOT NULL"),
			Col("full_text", t.Bool, "NOT NULL DEFAULT FALSE"),
			Col("created_at", t.Timestamp, "NOT NULL"),
		).
		PrimaryKey("name")
	if err := storage.ExecStatement(ctx, m.db, st); err != nil {
		return fmt.Errorf("creating %s: %w", RegistryTable, err)
	}
	return nil
}

// EnsureTable makes sure the dynamic table for (domain, contentType) exists
// with its indexes and is registered. It returns the table name and whether
// this call created it. Losing a creation race to another process is not an
// error. Large text content types get a full-text index.
func (m *Manager) EnsureTable(ctx context.Context, domain, contentType string) (string, bool, error) {
	name := TableName(domain, contentType)
	fullText := content.Type(contentType).LargeText()
	if _, ok := m.known.Load(name); ok {
		return name, false, nil
	}

	mu := m.lock(name)
	mu.Lock()
	defer mu.Unlock()

	if _, ok := m.known.Load(name); ok {
		return name, false, nil
	}

	exists, err := m.db.TableExists(ctx, name)
	if err != nil {
		return "", false, err
	}

	created := false
	if !exists {
		err := m.createTable(ctx, name)
		switch {
		case err == nil:
			created = true
		case isAlreadyExists(err):
			m.logger.Debug("table created concurrently",
				"table", name,
				"error", fmt.Errorf("%w: %w", ErrSchemaCreationConflict, err),
			)
		default:
			return "", false, fmt.Errorf("creating table %s: %w", name, err)
		}
	}

	for _, ix := range IndexPlan(name, fullText) {
		if err := m.db.Exec(ctx, ix.DDL(m.db.Dialect(), name)); err != nil && !isAlreadyExists(err) {
			return "", false, fmt.Errorf("creating index %s: %w", ix.Name, err)
		}
	}

	info := TableInfo{
		Name:        name,
		Domain:      domain,
		ContentType: contentType,
		FullText:    fullText,
		CreatedAt:   time.Now().UTC(),
	}
	if err := m.register(ctx, info); err != nil {
		return "", false, err
	}

	m.known.Store(name, struct{}{})
	if created {
		m.logger.Info("created table",
			"table", name,
			"domain", domain,
			"content_type", contentType,
			"full_text", fullText,
		)
	}
	return name, created, nil
}

// Tables lists registered dynamic tables, optionally limited to one domain.
func (m *Manager) Tables(ctx context.Context, domain string) ([]TableInfo, error) {
	b := storage.Builder(m.db)
	sel := b.Select("name", "domain", "content_type", "full_text", "created_at").
		From(entsql.Table(RegistryTable)).
		OrderBy("name")
	if domain != "" {
		sel.Where(entsql.EQ("domain", domain))
	}

	rows, err := storage.QueryStatement(ctx, m.db, sel)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var out []TableInfo
	for rows.Next() {
		var ti TableInfo
		if err := rows.Scan(&ti.Name, &ti.Domain, &ti.ContentType, &ti.FullText, &ti.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning table info: %w", err)
		}
		out = append(out, ti)
	}
	return out, rows.Err()
}

// DropTable removes a dynamic table and its registry row.
func (m *Manager) DropTable(ctx context.Context, name string) error {
	if !ValidIdent(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	if err := m.db.Exec(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
		return fmt.Errorf("dropping table %s: %w", name, err)
	}
	del := storage.Builder(m.db).Delete(RegistryTable).Where(entsql.EQ("name", name))
	if err := storage.ExecStatement(ctx, m.db, del); err != nil {
		return fmt.Errorf("unregistering table %s: %w", name, err)
	}
	m.known.Delete(name)
	return nil
}

// Analyze refreshes planner statistics for a table.
func (m *Manager) Analyze(ctx context.Context, name string) error {
	if !ValidIdent(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return m.db.Exec(ctx, "ANALYZE "+name)
}

func (m *Manager) createTable(ctx context.Context, name string) error {
	t := Types(m.db.Dialect())
	st := CreateTable(name).
		Columns(
			Col("id", t.Text, "NOT NULL"),
			Col("title", t.Text, "NOT NULL"),
			Col("content", t.Text),
			Col("author", t.Text),
			Col("source_url", t.Text),
			Col("domain", t.Text, "NOT NULL"),
			Col("language", t.Text, "NOT NULL"),
			Col("content_type", t.Text, "NOT NULL"),
			Col("size_bytes", t.BigInt, "NOT NULL DEFAULT 0"),
			Col("word_count", t.BigInt, "NOT NULL DEFAULT 0"),
			Col("complexity", t.Double, "NOT NULL DEFAULT 0"),
			Col("strategy", t.Text, "NOT NULL"),
			Col("status", t.Text, "NOT NULL"),
			Col("metadata", t.Text),
			Col("created_at", t.Timestamp, "NOT NULL"),
			Col("updated_at", t.Timestamp, "NOT NULL"),
		).
		PrimaryKey("id")
	return storage.ExecStatement(ctx, m.db, st)
}

func (m *Manager) register(ctx context.Context, ti TableInfo) error {
	ins := storage.Builder(m.db).Insert(RegistryTable).
		Columns("name", "domain", "content_type", "full_text", "created_at").
		Values(ti.Name, ti.Domain, ti.ContentType, ti.FullText, ti.CreatedAt).
		OnConflict(entsql.ConflictColumns("name"), entsql.DoNothing())
	if err := storage.ExecStatement(ctx, m.db, ins); err != nil {
		return fmt.Errorf("registering table %s: %w", ti.Name, err)
	}
	return nil
}

func (m *Manager) lock(name string) *sync.Mutex {
	mu, _ := m.locks.LoadOrStore(name, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// isAlreadyExists matches duplicate-object errors from PostgreSQL
// (42P07 duplicate_table, 23505 on the catalog unique index during racing
// CREATEs) and SQLite.
func isAlreadyExists(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42P07" || pgErr.Code == "23505"
	}
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}
