package schema

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"entgo.io/ent/dialect"

	"github.com/papercomputeco/strata/pkg/storage"
)

const maxSearchTerms = 8

// Filter narrows a search. Empty fields match everything.
type Filter struct {
	Domain      string
	Language    string
	ContentType string
	Author      string
}

// Empty reports whether the filter has no constraints.
func (f Filter) Empty() bool {
	return f == Filter{}
}

// Matches reports whether the record satisfies the filter.
func (f Filter) Matches(domain, language, contentType, author string) bool {
	return (f.Domain == "" || f.Domain == domain) &&
		(f.Language == "" || f.Language == language) &&
		(f.ContentType == "" || f.ContentType == contentType) &&
		(f.Author == "" || f.Author == author)
}

func (f Filter) clauses() ([]string, []any) {
	var where []string
	var args []any
	for _, kv := range []struct{ col, val string }{
		{"domain", f.Domain},
		{"language", f.Language},
		{"content_type", f.ContentType},
		{"author", f.Author},
	} {
		if kv.val != "" {
			where = append(where, kv.col+" = ?")
			args = append(args, kv.val)
		}
	}
	return where, args
}

// TextHit is a full-text match. Rank is dialect specific and only comparable
// within one result set.
type TextHit struct {
	Record
	Table string
	Rank  float64
}

// SearchText runs a keyword search over one dynamic table. PostgreSQL ranks
// with ts_rank over the indexed document; SQLite counts term occurrences in
// the title (weighted double) and body.
func SearchText(ctx context.Context, db storage.Driver, table, query string, f Filter, limit int) ([]TextHit, error) {
	if !ValidIdent(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if limit <= 0 {
		limit = 10
	}

	var q string
	var args []any
	if db.Dialect() == dialect.Postgres {
		if strings.TrimSpace(query) == "" {
			return nil, nil
		}
		q, args = postgresSearch(table, query, f, limit)
	} else {
		terms := SearchTerms(query)
		if len(terms) == 0 {
			return nil, nil
		}
		q, args = sqliteSearch(table, terms, f, limit)
	}

	rows, err := db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", table, err)
	}
	defer rows.Close()

	var hits []TextHit
	for rows.Next() {
		var rank float64
		r, err := scanRecord(rows, &rank)
		if err != nil {
			return nil, err
		}
		hits = append(hits, TextHit{Record: r, Table: table, Rank: rank})
	}
	return hits, rows.Err()
}

func postgresSearch(table, query string, f Filter, limit int) (string, []any) {
	where, fargs := f.clauses()
	where = append([]string{FullTextDocument + " @@ plainto_tsquery('english', ?)"}, where...)

	args := []any{query, query}
	args = append(args, fargs...)
	args = append(args, limit)

	return fmt.Sprintf(
		"SELECT %s, ts_rank(%s, plainto_tsquery('english', ?)) AS rank FROM %s WHERE %s ORDER BY rank DESC, created_at DESC, id ASC LIMIT ?",
		strings.Join(recordColumns, ", "), FullTextDocument, table, strings.Join(where, " AND "),
	), args
}

func sqliteSearch(table string, terms []string, f Filter, limit int) (string, []any) {
	parts := make([]string, 0, len(terms))
	args := make([]any, 0, len(terms)*2+8)
	for _, t := range terms {
		parts = append(parts, "(CASE WHEN instr(lower(title), ?) > 0 THEN 2 ELSE 0 END + CASE WHEN instr(lower(coalesce(content, '')), ?) > 0 THEN 1 ELSE 0 END)")
		args = append(args, t, t)
	}
	// Normalised to [0, 1] over the best possible score.
	rank := fmt.Sprintf("(%s) / %d.0", strings.Join(parts, " + "), 3*len(terms))

	where, fargs := f.clauses()
	inner := fmt.Sprintf("SELECT %s, %s AS rank FROM %s", strings.Join(recordColumns, ", "), rank, table)
	if len(where) > 0 {
		inner += " WHERE " + strings.Join(where, " AND ")
		args = append(args, fargs...)
	}
	args = append(args, limit)

	return fmt.Sprintf(
		"SELECT %s, rank FROM (%s) WHERE rank > 0 ORDER BY rank DESC, created_at DESC, id ASC LIMIT ?",
		strings.Join(recordColumns, ", "), inner,
	), args
}

// SearchTerms lowercases and splits a query into distinct terms of two or
// more characters.
func SearchTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	seen := make(map[string]struct{}, len(fields))
	var out []string
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
		if len(out) == maxSearchTerms {
			break
		}
	}
	return out
}
