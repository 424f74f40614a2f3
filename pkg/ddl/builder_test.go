package ddl

import (
	"errors"
	"testing"

	duckdbdialect "github.com/leapstack-labs/leapmeta/pkg/adapters/duckdb/dialect"
	pgdialect "github.com/leapstack-labs/leapmeta/pkg/adapters/postgres/dialect"
	sqlitedialect "github.com/leapstack-labs/leapmeta/pkg/adapters/sqlite/dialect"
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var salesColumns = []core.Column{
	{Name: "order_id", Type: core.TypeInteger},
	{Name: "price", Type: core.TypeFloat},
	{Name: "customer name", Type: core.TypeText},
}

func TestCreateTable(t *testing.T) {
	t.Run("postgres", func(t *testing.T) {
		stmts, err := CreateTable(pgdialect.Postgres, "raw_sales", salesColumns[:2], Options{})
		require.NoError(t, err)
		require.Len(t, stmts, 1)
		assert.Equal(t,
			`CREATE TABLE IF NOT EXISTS raw_sales (id SERIAL PRIMARY KEY, "order_id" bigint, "price" double precision, `+
				`created_by text DEFAULT current_user, created_at timestamptz DEFAULT current_timestamp, `+
				`modified_by text DEFAULT current_user, modified_at timestamptz DEFAULT current_timestamp)`,
			stmts[0])
	})

	t.Run("duckdb uses a sequence and literal user", func(t *testing.T) {
		stmts, err := CreateTable(duckdbdialect.DuckDB, "raw_sales", salesColumns[:1], Options{AuditUser: "etl"})
		require.NoError(t, err)
		require.Len(t, stmts, 2)
		assert.Equal(t, "CREATE SEQUENCE IF NOT EXISTS raw_sales_id_seq", stmts[0])
		assert.Contains(t, stmts[1], `id BIGINT PRIMARY KEY DEFAULT nextval('raw_sales_id_seq')`)
		assert.Contains(t, stmts[1], `created_by text DEFAULT 'etl'`)
	})

	t.Run("sqlite", func(t *testing.T) {
		stmts, err := CreateTable(sqlitedialect.SQLite, "raw_sales", salesColumns[:1], Options{})
		require.NoError(t, err)
		require.Len(t, stmts, 1)
		assert.Contains(t, stmts[0], "id INTEGER PRIMARY KEY AUTOINCREMENT")
		assert.Contains(t, stmts[0], `created_by text DEFAULT 'leapmeta'`)
		assert.Contains(t, stmts[0], "created_at timestamp DEFAULT current_timestamp")
	})

	t.Run("quotes column names", func(t *testing.T) {
		stmts, err := CreateTable(pgdialect.Postgres, "raw_sales", salesColumns[2:], Options{})
		require.NoError(t, err)
		assert.Contains(t, stmts[0], `"customer name" text`)
	})
}

func TestCreateTable_Errors(t *testing.T) {
	tests := []struct {
		name    string
		table   string
		columns []core.Column
	}{
		{"invalid table", "Raw-Sales", salesColumns},
		{"no columns", "raw_sales", nil},
		{"duplicate column", "raw_sales", []core.Column{{Name: "a"}, {Name: "a"}}},
		{"reserved column", "raw_sales", []core.Column{{Name: "id"}}},
		{"empty column", "raw_sales", []core.Column{{Name: ""}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreateTable(pgdialect.Postgres, tt.table, tt.columns, Options{})
			var inputErr *core.InputError
			assert.True(t, errors.As(err, &inputErr), "got %v", err)
		})
	}

	_, err := CreateTable(nil, "raw_sales", salesColumns, Options{})
	assert.Error(t, err)
}

func TestAddColumn(t *testing.T) {
	stmt, err := AddColumn(pgdialect.Postgres, "raw_sales", core.Column{Name: "discount", Type: core.TypeFloat})
	require.NoError(t, err)
	assert.Equal(t, `ALTER TABLE raw_sales ADD COLUMN IF NOT EXISTS "discount" double precision`, stmt)

	stmt, err = AddColumn(sqlitedialect.SQLite, "raw_sales", core.Column{Name: "active", Type: core.TypeBoolean})
	require.NoError(t, err)
	assert.Equal(t, `ALTER TABLE raw_sales ADD COLUMN "active" boolean`, stmt)

	_, err = AddColumn(pgdialect.Postgres, "1bad", core.Column{Name: "x"})
	assert.Error(t, err)
}

func TestInsert(t *testing.T) {
	stmt, err := Insert(pgdialect.Postgres, "raw_sales", []string{"a", "b"}, 2)
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "raw_sales" ("a", "b") VALUES ($1, $2), ($3, $4)`, stmt)

	stmt, err = Insert(sqlitedialect.SQLite, "raw_sales", []string{"a"}, 3)
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "raw_sales" ("a") VALUES (?), (?), (?)`, stmt)

	_, err = Insert(pgdialect.Postgres, "raw_sales", nil, 1)
	assert.Error(t, err)
	_, err = Insert(pgdialect.Postgres, "raw_sales", []string{"a"}, 0)
	assert.Error(t, err)
}

func TestInsertTemplate(t *testing.T) {
	assert.Equal(t, "INSERT INTO raw_sales (a, b) VALUES (...)", InsertTemplate("raw_sales", []string{"a", "b"}))
}
