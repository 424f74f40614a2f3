package core

import (
	"context"
)

// Store is the relational store collaborator the core depends on.
// Implementations live in pkg/adapters; tests use an in-memory fake.
type Store interface {
	// Exec executes a statement that doesn't return rows (DDL or DML).
	Exec(ctx context.Context, sql string, args ...any) error

	// Query executes a statement and returns the fully materialized result.
	Query(ctx context.Context, sql string, args ...any) (*ResultSet, error)

	// ListColumns returns the live columns of a table in ordinal order.
	// An unparseable or empty response is reported as *SchemaConflictError.
	ListColumns(ctx context.Context, table string) ([]Column, error)

	// InsertRows writes a batch of rows. Nil values are stored as NULL.
	// Returns the number of rows written.
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)

	// ListTables returns the table names of the default schema, sorted.
	ListTables(ctx context.Context) ([]string, error)
}

// AdapterConfig holds configuration for connecting to a database.
type AdapterConfig struct {
	Type     string
	Path     string
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Schema   string
	Options  map[string]string
	Params   map[string]any

	// BatchSize is the number of rows per INSERT statement. Zero uses the adapter default.
	BatchSize int
}

// ResultSet is a fully read query result.
type ResultSet struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Len returns the number of rows.
func (r *ResultSet) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// Records returns each row keyed by column name.
func (r *ResultSet) Records() []map[string]any {
	if r == nil {
		return nil
	}
	out := make([]map[string]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		rec := make(map[string]any, len(r.Columns))
		for i, col := range r.Columns {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		out = append(out, rec)
	}
	return out
}
