package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/ddl"
	"github.com/leapstack-labs/leapmeta/pkg/dialect"
)

// DefaultBatchSize is the number of rows sent per INSERT statement.
const DefaultBatchSize = 500

// maxParams bounds the parameters of a single statement.
const maxParams = 30000

// BaseSQLAdapter provides common database/sql functionality for adapters.
// Embed this struct in concrete adapter implementations to get standard
// Close, Exec, Query, ListColumns, ListTables and InsertRows implementations.
type BaseSQLAdapter struct {
	DB        *sql.DB
	Cfg       core.AdapterConfig
	Logger    *slog.Logger
	SQL       *dialect.Dialect
	BatchSize int
}

// Dialect returns the dialect used for placeholders and DDL.
func (b *BaseSQLAdapter) Dialect() *dialect.Dialect {
	return b.SQL
}

// Close closes the database connection.
func (b *BaseSQLAdapter) Close() error {
	if b.DB != nil {
		if b.Logger != nil {
			b.Logger.Debug("closing database connection")
		}
		return b.DB.Close()
	}
	return nil
}

// Exec executes a SQL statement that doesn't return rows.
func (b *BaseSQLAdapter) Exec(ctx context.Context, sqlStr string, args ...any) error {
	if b.DB == nil {
		return fmt.Errorf("database connection not established")
	}
	_, err := b.DB.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	return nil
}

// Query executes a SQL statement and reads every row.
// []byte values are returned as strings.
func (b *BaseSQLAdapter) Query(ctx context.Context, sqlStr string, args ...any) (*core.ResultSet, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}
	rows, err := b.DB.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	rs, err := ScanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to read query results: %w", err)
	}
	return rs, nil
}

// ScanRows reads all rows into a ResultSet.
func ScanRows(rows *sql.Rows) (*core.ResultSet, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	rs := &core.ResultSet{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			if bs, ok := v.([]byte); ok {
				values[i] = string(bs)
			}
		}
		rs.Rows = append(rs.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rs, nil
}

// SQLDB returns the underlying connection pool, or nil before Connect.
func (b *BaseSQLAdapter) SQLDB() *sql.DB {
	return b.DB
}

// IsConnected returns true if the database connection is established.
func (b *BaseSQLAdapter) IsConnected() bool {
	return b.DB != nil
}

// ParseQualifiedName splits a table reference into schema and name.
// Uses the dialect's default schema if not specified.
func ParseQualifiedName(table string, d *dialect.Dialect) (schema, name string) {
	if parts := strings.Split(table, "."); len(parts) == 2 {
		return parts[0], parts[1]
	}
	return d.DefaultSchema, table
}

// schema returns the configured schema or the dialect default.
func (b *BaseSQLAdapter) schema() string {
	if b.Cfg.Schema != "" {
		return b.Cfg.Schema
	}
	return b.SQL.DefaultSchema
}

// ListColumns reads a table's columns from information_schema.columns.
func (b *BaseSQLAdapter) ListColumns(ctx context.Context, table string) ([]core.Column, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}

	schema, tableName := ParseQualifiedName(table, b.SQL)
	if !strings.Contains(table, ".") {
		schema = b.schema()
	}

	//nolint:gosec // Placeholders are safe - they come from dialect.FormatPlaceholder
	query := fmt.Sprintf(`
		SELECT
			column_name,
			data_type,
			is_nullable,
			ordinal_position
		FROM information_schema.columns
		WHERE table_schema = %s AND table_name = %s
		ORDER BY ordinal_position
	`, b.SQL.FormatPlaceholder(1), b.SQL.FormatPlaceholder(2))

	rows, err := b.DB.QueryContext(ctx, query, schema, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var columns []core.Column
	for rows.Next() {
		var col core.Column
		var nullable string
		if err := rows.Scan(&col.Name, &col.SQLType, &nullable, &col.Position); err != nil {
			return nil, &core.SchemaConflictError{Table: table, Err: err}
		}
		col.Type = core.ParseColumnType(col.SQLType)
		col.Nullable = strings.EqualFold(nullable, "YES")
		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}

	if len(columns) == 0 {
		return nil, &core.SchemaConflictError{Table: table, Raw: "no columns returned"}
	}
	return columns, nil
}

// ListTables returns the tables of the configured schema.
func (b *BaseSQLAdapter) ListTables(ctx context.Context) ([]string, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}

	rows, err := b.DB.QueryContext(ctx, b.SQL.ListTablesQuery, b.schema())
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		if strings.HasPrefix(name, "goose_") {
			continue
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}
	return tables, nil
}

// InsertRows writes rows with multi-row INSERT statements inside one
// transaction. Either every row is written or none is.
func (b *BaseSQLAdapter) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if b.DB == nil {
		return 0, fmt.Errorf("database connection not established")
	}
	if len(rows) == 0 {
		return 0, nil
	}
	for i, r := range rows {
		if len(r) != len(columns) {
			return 0, fmt.Errorf("row %d has %d values, expected %d", i+1, len(r), len(columns))
		}
	}

	batch := b.BatchSize
	if batch <= 0 {
		batch = b.Cfg.BatchSize
	}
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	if limit := maxParams / len(columns); batch > limit {
		batch = max(limit, 1)
	}

	tx, err := b.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var written int64
	for start := 0; start < len(rows); start += batch {
		end := min(start+batch, len(rows))
		chunk := rows[start:end]

		stmt, err := ddl.Insert(b.SQL, table, columns, len(chunk))
		if err != nil {
			return 0, err
		}
		args := make([]any, 0, len(chunk)*len(columns))
		for _, r := range chunk {
			args = append(args, r...)
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return 0, fmt.Errorf("failed to insert rows %d-%d: %w", start+1, end, err)
		}
		written += int64(len(chunk))
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit insert: %w", err)
	}

	if b.Logger != nil {
		b.Logger.Debug("inserted rows", slog.String("table", table), slog.Int64("rows", written))
	}
	return written, nil
}
