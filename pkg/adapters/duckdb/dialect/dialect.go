// Package dialect provides the DuckDB dialect definition.
// This package is lightweight and has no database driver dependencies.
package dialect

import (
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/dialect"
)

func init() {
	dialect.Register(DuckDB)
}

// DuckDB is the DuckDB dialect configuration.
// DuckDB has no SERIAL type and no current_user, so keys come from a
// sequence and created_by falls back to the configured audit user.
var DuckDB = dialect.NewDialect("duckdb").
	DefaultSchema("main").
	PlaceholderStyle(core.PlaceholderQuestion).
	KeyColumn(dialect.KeySequence).
	Timestamps("timestamptz").
	AddColumnIfNotExists(true).
	Build()
