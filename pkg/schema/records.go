package schema

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/strata/pkg/content"
	"github.com/papercomputeco/strata/pkg/storage"
)

// Record is a row of a dynamic table. Content is empty for metadata-only
// records.
type Record struct {
	ID          string
	Title       string
	Content     string
	Author      string
	SourceURL   string
	Domain      string
	Language    string
	ContentType string
	SizeBytes   int64
	WordCount   int
	Complexity  float64
	Strategy    string
	Status      content.Status
	Metadata    map[string]string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

var recordColumns = []string{
	"id", "title", "content", "author", "source_url", "domain", "language",
	"content_type", "size_bytes", "word_count", "complexity", "strategy",
	"status", "metadata", "created_at", "updated_at",
}

// UpsertRecord inserts r into table or replaces the existing row with the
// same id, preserving its created_at.
func UpsertRecord(ctx context.Context, db storage.Driver, table string, r Record) error {
	if !ValidIdent(table) {
		return fmt.Errorf("invalid table name %q", table)
	}

	var meta any
	if len(r.Metadata) > 0 {
		raw, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata: %w", err)
		}
		meta = string(raw)
	}

	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = now
	}

	ins := storage.Builder(db).Insert(table).
		Columns(recordColumns...).
		Values(
			r.ID, r.Title, nullable(r.Content), nullable(r.Author), nullable(r.SourceURL),
			r.Domain, r.Language, r.ContentType, r.SizeBytes, r.WordCount, r.Complexity,
			r.Strategy, string(r.Status), meta, r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
		).
		OnConflict(
			entsql.ConflictColumns("id"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				for _, c := range recordColumns {
					if c != "id" && c != "created_at" {
						u.SetExcluded(c)
					}
				}
			}),
		)
	if err := storage.ExecStatement(ctx, db, ins); err != nil {
		return fmt.Errorf("upserting %s into %s: %w", r.ID, table, err)
	}
	return nil
}

// SetStatus updates the status of one record.
func SetStatus(ctx context.Context, db storage.Driver, table, id string, status content.Status) error {
	if !ValidIdent(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	upd := storage.Builder(db).Update(table).
		Set("status", string(status)).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.EQ("id", id))
	if err := storage.ExecStatement(ctx, db, upd); err != nil {
		return fmt.Errorf("updating status of %s: %w", id, err)
	}
	return nil
}

// LoadRecords fetches records by id. Missing ids are absent from the map.
func LoadRecords(ctx context.Context, db storage.Driver, table string, ids []string) (map[string]Record, error) {
	if !ValidIdent(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	out := make(map[string]Record, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	sel := storage.Builder(db).Select(recordColumns...).
		From(entsql.Table(table)).
		Where(entsql.In("id", args...))

	rows, err := storage.QueryStatement(ctx, db, sel)
	if err != nil {
		return nil, fmt.Errorf("loading records from %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out[r.ID] = r
	}
	return out, rows.Err()
}

// LoadRecord fetches one record, returning storage.NotFoundError when the
// id is absent.
func LoadRecord(ctx context.Context, db storage.Driver, table, id string) (Record, error) {
	recs, err := LoadRecords(ctx, db, table, []string{id})
	if err != nil {
		return Record{}, err
	}
	r, ok := recs[id]
	if !ok {
		return Record{}, storage.NotFoundError{ID: id}
	}
	return r, nil
}

// DeleteRecord removes a record. Deleting a missing id is not an error.
func DeleteRecord(ctx context.Context, db storage.Driver, table, id string) error {
	if !ValidIdent(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	del := storage.Builder(db).Delete(table).Where(entsql.EQ("id", id))
	if err := storage.ExecStatement(ctx, db, del); err != nil {
		return fmt.Errorf("deleting %s from %s: %w", id, table, err)
	}
	return nil
}

// CountRecords returns the number of rows in table.
func CountRecords(ctx context.Context, db storage.Driver, table string) (int64, error) {
	if !ValidIdent(table) {
		return 0, fmt.Errorf("invalid table name %q", table)
	}
	rows, err := db.Query(ctx, "SELECT COUNT(*) FROM "+table)
	if err != nil {
		return 0, fmt.Errorf("counting %s: %w", table, err)
	}
	defer rows.Close()

	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, fmt.Errorf("counting %s: %w", table, err)
		}
	}
	return n, rows.Err()
}

func scanRecord(rows storage.Rows, extra ...any) (Record, error) {
	var r Record
	var body, author, sourceURL, metadata sql.NullString
	var status string
	var wordCount int64
	dest := []any{
		&r.ID, &r.Title, &body, &author, &sourceURL, &r.Domain, &r.Language,
		&r.ContentType, &r.SizeBytes, &wordCount, &r.Complexity, &r.Strategy,
		&status, &metadata, &r.CreatedAt, &r.UpdatedAt,
	}
	if err := rows.Scan(append(dest, extra...)...); err != nil {
		return Record{}, fmt.Errorf("scanning record: %w", err)
	}

	r.Content = body.String
	r.Author = author.String
	r.SourceURL = sourceURL.String
	r.WordCount = int(wordCount)
	r.Status = content.Status(status)
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &r.Metadata); err != nil {
			return Record{}, fmt.Errorf("decoding metadata of %s: %w", r.ID, err)
		}
	}
	return r, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
