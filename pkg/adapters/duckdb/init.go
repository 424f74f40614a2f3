// Package duckdb provides a DuckDB store adapter for leapmeta.
//
// This file registers the DuckDB adapter with the adapter registry.
// Import this package with a blank identifier to register the adapter:
//
//	import _ "github.com/leapstack-labs/leapmeta/pkg/adapters/duckdb"
package duckdb

import (
	"log/slog"

	"github.com/leapstack-labs/leapmeta/pkg/adapter"
)

func init() {
	adapter.Register(adapter.TypeDuckDB, func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}
