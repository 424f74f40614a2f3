// Package adapter provides the database adapter contract and the shared
// database/sql implementation used by leapmeta's stores.
//
// The duckdb, postgres and sqlite packages under pkg/adapters register
// themselves from init under TypeDuckDB, TypePostgres and TypeSQLite.
// NewAdapter resolves target.type from leapmeta.yaml against that registry.
package adapter

import (
	"context"

	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/dialect"
)

// Config is an alias for core.AdapterConfig.
type Config = core.AdapterConfig

// Adapter defines the interface that all database adapters must implement.
// Beyond the core.Store capabilities it manages the connection and exposes
// the dialect used to generate statements for it.
type Adapter interface {
	core.Store

	// Connect establishes a connection to the database using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Close closes the database connection and releases resources.
	Close() error

	// Dialect returns the SQL dialect configuration for this adapter.
	Dialect() *dialect.Dialect
}
