package schemasync

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapmeta/internal/testutil"
	duckdbdialect "github.com/leapstack-labs/leapmeta/pkg/adapters/duckdb/dialect"
	pgdialect "github.com/leapstack-labs/leapmeta/pkg/adapters/postgres/dialect"
	sqlitedialect "github.com/leapstack-labs/leapmeta/pkg/adapters/sqlite/dialect"
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/ddl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func salesColumns() []core.Column {
	return []core.Column{
		{Name: "Region", Type: core.TypeText},
		{Name: "Total Sales", Type: core.TypeFloat},
		{Name: "units", Type: core.TypeInteger},
	}
}

func newSync(t *testing.T, store core.Store) *Synchronizer {
	t.Helper()
	return New(store, pgdialect.Postgres, testutil.NewTestLogger(t), ddl.Options{})
}

func TestEnsureTable(t *testing.T) {
	store := testutil.NewFakeStore()
	s := newSync(t, store)

	stmts, err := s.EnsureTable(context.Background(), "raw_sales", salesColumns())
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Equal(t, `CREATE TABLE IF NOT EXISTS raw_sales (id SERIAL PRIMARY KEY, "region" text, "total_sales" double precision, "units" bigint, `+
		`created_by text DEFAULT current_user, created_at timestamptz DEFAULT current_timestamp, `+
		`modified_by text DEFAULT current_user, modified_at timestamptz DEFAULT current_timestamp)`, stmts[0])

	again, err := s.EnsureTable(context.Background(), "raw_sales", salesColumns())
	require.NoError(t, err)
	assert.Equal(t, stmts, again, "statements must be identical on re-run")

	cols, err := store.ListColumns(context.Background(), "raw_sales")
	require.NoError(t, err)
	assert.Len(t, cols, 8)
}

func TestEnsureTable_DuckDBCreatesSequenceFirst(t *testing.T) {
	store := testutil.NewFakeStore()
	s := New(store, duckdbdialect.DuckDB, nil, ddl.Options{AuditUser: "etl"})

	stmts, err := s.EnsureTable(context.Background(), "raw_sales", salesColumns())
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE SEQUENCE IF NOT EXISTS raw_sales_id_seq", stmts[0])
	assert.Contains(t, stmts[1], "created_by text DEFAULT 'etl'")
	assert.Equal(t, stmts, store.Statements)
}

func TestEnsureTable_InputErrors(t *testing.T) {
	tests := []struct {
		name    string
		table   string
		columns []core.Column
	}{
		{"bad table", "Raw Sales", salesColumns()},
		{"no columns", "raw_sales", nil},
		{"colliding columns", "raw_sales", []core.Column{{Name: "a b"}, {Name: "a-b"}}},
		{"reserved column", "raw_sales", []core.Column{{Name: "ID"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewFakeStore()
			_, err := newSync(t, store).EnsureTable(context.Background(), tt.table, tt.columns)
			var inputErr *core.InputError
			require.True(t, errors.As(err, &inputErr), "got %v", err)
			assert.Empty(t, store.Statements, "no statement may reach the store")
		})
	}
}

func TestEnsureTable_RemoteFailure(t *testing.T) {
	store := testutil.NewFakeStore()
	store.ExecErr = func(string) error { return errors.New("permission denied for schema public") }

	_, err := newSync(t, store).EnsureTable(context.Background(), "raw_sales", salesColumns())
	var remote *core.RemoteExecutionError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, "raw_sales", remote.Table)
	assert.True(t, strings.HasPrefix(remote.Statement, "CREATE TABLE"))
	assert.Contains(t, err.Error(), "permission denied for schema public")
	assert.Len(t, store.Statements, 1, "no retry")
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name        string
		live        []string
		columns     []core.Column
		wantMissing []string
	}{
		{
			name:    "nothing missing",
			live:    []string{"id", "region", "total_sales"},
			columns: []core.Column{{Name: "region"}, {Name: "total_sales", Type: core.TypeFloat}},
		},
		{
			name:        "one new column",
			live:        []string{"id", "region"},
			columns:     []core.Column{{Name: "region"}, {Name: "margin", Type: core.TypeFloat}},
			wantMissing: []string{"margin"},
		},
		{
			name:    "live names in upper case",
			live:    []string{"ID", "REGION", "TOTAL_SALES"},
			columns: []core.Column{{Name: "Region"}, {Name: "Total Sales"}},
		},
		{
			name:    "live name in raw form",
			live:    []string{"id", "total sales"},
			columns: []core.Column{{Name: "Total Sales"}},
		},
		{
			name:        "raw names normalized before adding",
			live:        []string{"id"},
			columns:     []core.Column{{Name: "Unit Price", Type: core.TypeFloat}, {Name: "in.stock", Type: core.TypeBoolean}},
			wantMissing: []string{"unit_price", "in_stock"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewFakeStore()
			store.AddTable("raw_sales", tt.live...)

			diff, err := newSync(t, store).Reconcile(context.Background(), "raw_sales", tt.columns)
			require.NoError(t, err)

			var missing []string
			for _, c := range diff.MissingColumns {
				missing = append(missing, c.Name)
			}
			assert.Equal(t, tt.wantMissing, missing)
			assert.Len(t, diff.Statements, len(tt.wantMissing))
			assert.Equal(t, diff.Empty(), len(tt.wantMissing) == 0)
		})
	}
}

func TestReconcile_EmitsAddColumnIfNotExists(t *testing.T) {
	store := testutil.NewFakeStore()
	store.AddTable("raw_sales", "id", "region")

	diff, err := newSync(t, store).Reconcile(context.Background(), "raw_sales", []core.Column{
		{Name: "region"}, {Name: "margin", Type: core.TypeFloat},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{`ALTER TABLE raw_sales ADD COLUMN IF NOT EXISTS "margin" double precision`}, diff.Statements)

	second, err := newSync(t, store).Reconcile(context.Background(), "raw_sales", []core.Column{
		{Name: "region"}, {Name: "margin", Type: core.TypeFloat},
	})
	require.NoError(t, err)
	assert.True(t, second.Empty(), "reconcile must converge")
}

func TestReconcile_SQLiteOmitsIfNotExists(t *testing.T) {
	store := testutil.NewFakeStore()
	store.AddTable("raw_sales", "id")

	s := New(store, sqlitedialect.SQLite, nil, ddl.Options{})
	diff, err := s.Reconcile(context.Background(), "raw_sales", []core.Column{{Name: "x", Type: core.TypeInteger}})
	require.NoError(t, err)
	assert.Equal(t, []string{`ALTER TABLE raw_sales ADD COLUMN "x" bigint`}, diff.Statements)
}

func TestReconcile_UnreadableSchema(t *testing.T) {
	t.Run("schema conflict", func(t *testing.T) {
		store := testutil.NewFakeStore()
		store.ListColumnsErr["raw_sales"] = &core.SchemaConflictError{Table: "raw_sales", Raw: `{"error":"bad"}`}

		diff, err := newSync(t, store).Reconcile(context.Background(), "raw_sales", salesColumns())
		var conflict *core.SchemaConflictError
		require.True(t, errors.As(err, &conflict))
		assert.Equal(t, `{"error":"bad"}`, conflict.Raw)
		assert.True(t, diff.Empty())
		assert.Empty(t, store.Statements)
	})

	t.Run("missing table", func(t *testing.T) {
		store := testutil.NewFakeStore()
		diff, err := newSync(t, store).Reconcile(context.Background(), "raw_sales", salesColumns())
		var conflict *core.SchemaConflictError
		require.True(t, errors.As(err, &conflict))
		assert.True(t, diff.Empty())
	})

	t.Run("lookup failure", func(t *testing.T) {
		store := testutil.NewFakeStore()
		store.ListColumnsErr["raw_sales"] = errors.New("connection reset")

		diff, err := newSync(t, store).Reconcile(context.Background(), "raw_sales", salesColumns())
		var remote *core.RemoteExecutionError
		require.True(t, errors.As(err, &remote))
		assert.Equal(t, "list columns", remote.Op)
		assert.True(t, diff.Empty())
	})
}

func TestReconcile_StopsOnFirstFailedAlter(t *testing.T) {
	store := testutil.NewFakeStore()
	store.AddTable("raw_sales", "id")
	store.ExecErr = func(stmt string) error {
		if strings.Contains(stmt, `"b"`) {
			return errors.New("lock timeout")
		}
		return nil
	}

	diff, err := newSync(t, store).Reconcile(context.Background(), "raw_sales", []core.Column{
		{Name: "a"}, {Name: "b"}, {Name: "c"},
	})
	var remote *core.RemoteExecutionError
	require.True(t, errors.As(err, &remote))
	assert.Contains(t, remote.Statement, `"b"`)
	assert.Len(t, diff.MissingColumns, 3)
	assert.Len(t, diff.Statements, 1)
	assert.Len(t, store.Statements, 2, "c is never attempted")
}

func TestEnsureAndReconcile(t *testing.T) {
	store := testutil.NewFakeStore()
	s := newSync(t, store)

	diff, err := s.EnsureAndReconcile(context.Background(), "raw_sales", salesColumns())
	require.NoError(t, err)
	assert.True(t, diff.Empty())
	require.Len(t, diff.Statements, 1)

	wider := append(salesColumns(), core.Column{Name: "Discount", Type: core.TypeFloat})
	diff, err = s.EnsureAndReconcile(context.Background(), "raw_sales", wider)
	require.NoError(t, err)
	require.Len(t, diff.MissingColumns, 1)
	assert.Equal(t, "discount", diff.MissingColumns[0].Name)
	assert.Len(t, diff.Statements, 2)
}
