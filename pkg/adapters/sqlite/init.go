// Package sqlite provides a SQLite store adapter for leapmeta.
//
// Import this package with a blank identifier to register the adapter:
//
//	import _ "github.com/leapstack-labs/leapmeta/pkg/adapters/sqlite"
package sqlite

import (
	"log/slog"

	"github.com/leapstack-labs/leapmeta/pkg/adapter"
)

func init() {
	adapter.Register(adapter.TypeSQLite, func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}
