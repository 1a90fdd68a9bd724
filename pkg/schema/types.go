package schema

import (
	"strings"

	"entgo.io/ent/dialect"
)

// ColumnTypes are the SQL type names used for portable DDL.
type ColumnTypes struct {
	Text      string
	BigInt    string
	Double    string
	Bool      string
	Timestamp string
}

// Types returns the column types of an ent dialect.
func Types(dialectName string) ColumnTypes {
	if dialectName == dialect.Postgres {
		return ColumnTypes{
			Text:      "TEXT",
			BigInt:    "BIGINT",
			Double:    "DOUBLE PRECISION",
			Bool:      "BOOLEAN",
			Timestamp: "TIMESTAMPTZ",
		}
	}
	return ColumnTypes{
		Text:      "TEXT",
		BigInt:    "INTEGER",
		Double:    "REAL",
		Bool:      "BOOLEAN",
		Timestamp: "DATETIME",
	}
}

// Column is one column of a CREATE TABLE statement.
type Column struct {
	name  string
	typ   string
	attrs []string
}

// Col is a shorthand for a column definition. Attributes such as
// "NOT NULL" or "DEFAULT 0" are rendered after the type in order.
func Col(name, typ string, attrs ...string) *Column {
	return &Column{name: name, typ: typ, attrs: attrs}
}

// TableBuilder renders CREATE TABLE statements. ent's dialect builder
// covers DML only, so DDL for dynamic and system tables is rendered here.
type TableBuilder struct {
	name        string
	ifNotExists bool
	columns     []*Column
	primary     []string
}

// CreateTable starts a CREATE TABLE statement for name.
func CreateTable(name string) *TableBuilder {
	return &TableBuilder{name: name}
}

// IfNotExists makes the statement a no-op when the table exists.
func (t *TableBuilder) IfNotExists() *TableBuilder {
	t.ifNotExists = true
	return t
}

// Columns appends column definitions.
func (t *TableBuilder) Columns(cols ...*Column) *TableBuilder {
	t.columns = append(t.columns, cols...)
	return t
}

// PrimaryKey sets the primary key columns.
func (t *TableBuilder) PrimaryKey(cols ...string) *TableBuilder {
	t.primary = append(t.primary, cols...)
	return t
}

// Query renders the statement. It implements storage.Statement.
func (t *TableBuilder) Query() (string, []any) {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	if t.ifNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(quote(t.name))
	b.WriteString(" (")
	defs := make([]string, 0, len(t.columns)+1)
	for _, c := range t.columns {
		def := quote(c.name) + " " + c.typ
		if len(c.attrs) > 0 {
			def += " " + strings.Join(c.attrs, " ")
		}
		defs = append(defs, def)
	}
	if len(t.primary) > 0 {
		keys := make([]string, len(t.primary))
		for i, k := range t.primary {
			keys[i] = quote(k)
		}
		defs = append(defs, "PRIMARY KEY ("+strings.Join(keys, ", ")+")")
	}
	b.WriteString(strings.Join(defs, ", "))
	b.WriteString(")")
	return b.String(), nil
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
