package schema

import (
	"fmt"

	"entgo.io/ent/dialect"
)

// IndexKind selects how an index is built.
type IndexKind int

const (
	// IndexBTree is an ordinary column index.
	IndexBTree IndexKind = iota

	// IndexFullText is a GIN index over the title and body document on
	// PostgreSQL. SQLite has no equivalent without FTS5 virtual tables and
	// gets a case-insensitive title index instead.
	IndexFullText
)

func (k IndexKind) String() string {
	if k == IndexFullText {
		return "fulltext"
	}
	return "btree"
}

// FullTextDocument is the tsvector expression both the GIN index and text
// search use on PostgreSQL; they must match for the planner to pick the index.
const FullTextDocument = "to_tsvector('english', coalesce(title, '') || ' ' || coalesce(content, ''))"

// Index is one planned index on a dynamic table.
type Index struct {
	Name    string
	Kind    IndexKind
	Columns []string
}

// IndexPlan returns the indexes for a dynamic table. Large text content gets
// full-text search; everything else gets title and domain lookups.
func IndexPlan(table string, fullText bool) []Index {
	if fullText {
		return []Index{
			{Name: table + "_fts", Kind: IndexFullText, Columns: []string{"title", "content"}},
			{Name: table + "_domain", Kind: IndexBTree, Columns: []string{"domain"}},
			{Name: table + "_created", Kind: IndexBTree, Columns: []string{"created_at"}},
		}
	}
	return []Index{
		{Name: table + "_title", Kind: IndexBTree, Columns: []string{"title"}},
		{Name: table + "_domain", Kind: IndexBTree, Columns: []string{"domain"}},
	}
}

// DDL renders the index for a dialect. Table and index names come from
// TableName and are valid bare identifiers.
func (ix Index) DDL(dialectName, table string) string {
	if ix.Kind == IndexFullText {
		if dialectName == dialect.Postgres {
			return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (%s)", ix.Name, table, FullTextDocument)
		}
		return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (title COLLATE NOCASE)", ix.Name, table)
	}

	cols := ""
	for i, c := range ix.Columns {
		if i > 0 {
			cols += ", "
		}
		cols += c
	}
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", ix.Name, table, cols)
}
