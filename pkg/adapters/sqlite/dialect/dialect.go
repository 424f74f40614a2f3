// Package dialect provides the SQLite dialect definition.
// This package is lightweight and has no database driver dependencies.
package dialect

import (
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/dialect"
)

func init() {
	dialect.Register(SQLite)
}

// SQLite is the SQLite dialect configuration.
// SQLite rejects IF NOT EXISTS on ADD COLUMN, so reconciliation relies on
// the column diff alone.
var SQLite = dialect.NewDialect("sqlite").
	DefaultSchema("main").
	PlaceholderStyle(core.PlaceholderQuestion).
	KeyColumn(dialect.KeyAutoincrement).
	Timestamps("timestamp").
	AddColumnIfNotExists(false).
	ListTables(`SELECT name FROM pragma_table_list
		WHERE schema = ? AND type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`).
	Build()
