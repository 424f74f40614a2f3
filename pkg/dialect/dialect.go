// Package dialect describes how each supported store spells the DDL and
// parameter syntax leapmeta generates.
//
// This package contains the public contract for dialect definitions. Concrete
// dialects are registered from pkg/adapters/*/dialect packages, which carry
// no driver dependencies.
package dialect

import (
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// KeyStyle selects how a dialect declares the surrogate key column.
type KeyStyle int

const (
	// KeySerial declares "id SERIAL PRIMARY KEY" (PostgreSQL).
	KeySerial KeyStyle = iota
	// KeyAutoincrement declares "id INTEGER PRIMARY KEY AUTOINCREMENT" (SQLite).
	KeyAutoincrement
	// KeySequence backs the key with a per-table sequence (DuckDB).
	KeySequence
)

// Dialect represents the DDL and parameter conventions of one store.
type Dialect struct {
	Name string

	DefaultSchema string                // "public" for Postgres, "main" for DuckDB and SQLite
	Placeholder   core.PlaceholderStyle // How to format query parameters

	Key KeyStyle

	// CurrentUser is the SQL expression used as the created_by default.
	// Empty means the store has none and a literal audit user is used.
	CurrentUser string

	// TimestampType is the column type of created_at and modified_at.
	TimestampType string

	// AddColumnIfNotExists is true when ALTER TABLE ... ADD COLUMN accepts IF NOT EXISTS.
	AddColumnIfNotExists bool

	// ListTablesQuery returns one column of table names in the default schema.
	// It takes the schema name as its only parameter.
	ListTablesQuery string
}

// FormatPlaceholder returns a placeholder for the given parameter index (1-based).
// Returns "?" for PlaceholderQuestion style, "$1", "$2" etc. for PlaceholderDollar style.
func (d *Dialect) FormatPlaceholder(index int) string {
	switch d.Placeholder {
	case core.PlaceholderDollar:
		return "$" + strconv.Itoa(index)
	default: // PlaceholderQuestion
		return "?"
	}
}

// Placeholders returns n comma-separated placeholders starting at index start.
func (d *Dialect) Placeholders(start, n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = d.FormatPlaceholder(start + i)
	}
	return strings.Join(ps, ", ")
}

// QuoteIdentifier quotes a table or column name.
func (d *Dialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// GetName returns the dialect name.
func (d *Dialect) GetName() string {
	return d.Name
}

// Builder provides a fluent API for constructing dialects.
type Builder struct {
	dialect *Dialect
}

// NewDialect creates a new dialect builder with the given name.
func NewDialect(name string) *Builder {
	return &Builder{
		dialect: &Dialect{
			Name:                 name,
			DefaultSchema:        "main",
			Placeholder:          core.PlaceholderQuestion,
			Key:                  KeySerial,
			TimestampType:        "timestamp",
			AddColumnIfNotExists: true,
			ListTablesQuery: `SELECT table_name FROM information_schema.tables
		WHERE table_schema = ? AND table_type = 'BASE TABLE'
		ORDER BY table_name`,
		},
	}
}

// DefaultSchema sets the default schema name.
func (b *Builder) DefaultSchema(schema string) *Builder {
	b.dialect.DefaultSchema = schema
	return b
}

// PlaceholderStyle sets how query parameters are formatted.
func (b *Builder) PlaceholderStyle(style core.PlaceholderStyle) *Builder {
	b.dialect.Placeholder = style
	return b
}

// KeyColumn sets how the surrogate key is declared.
func (b *Builder) KeyColumn(style KeyStyle) *Builder {
	b.dialect.Key = style
	return b
}

// CurrentUser sets the SQL expression for the created_by default.
func (b *Builder) CurrentUser(expr string) *Builder {
	b.dialect.CurrentUser = expr
	return b
}

// Timestamps sets the column type of the audit timestamps.
func (b *Builder) Timestamps(sqlType string) *Builder {
	b.dialect.TimestampType = sqlType
	return b
}

// AddColumnIfNotExists sets whether ADD COLUMN accepts IF NOT EXISTS.
func (b *Builder) AddColumnIfNotExists(ok bool) *Builder {
	b.dialect.AddColumnIfNotExists = ok
	return b
}

// ListTables sets the query used to list tables.
func (b *Builder) ListTables(query string) *Builder {
	b.dialect.ListTablesQuery = query
	return b
}

// Build returns the configured dialect.
func (b *Builder) Build() *Dialect {
	return b.dialect
}
