// Package postgres provides a PostgreSQL store adapter for leapmeta.
//
// This file registers the PostgreSQL adapter with the adapter registry.
// Import this package with a blank identifier to register the adapter:
//
//	import _ "github.com/leapstack-labs/leapmeta/pkg/adapters/postgres"
package postgres

import (
	"log/slog"

	"github.com/leapstack-labs/leapmeta/pkg/adapter"
)

func init() {
	adapter.Register(adapter.TypePostgres, func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}
