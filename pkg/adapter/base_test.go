package adapter

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/dialect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDialect = dialect.NewDialect("test").Build()

func newMockBase(t *testing.T) (*BaseSQLAdapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &BaseSQLAdapter{DB: db, SQL: testDialect}, mock
}

func TestBaseSQLAdapter_Close(t *testing.T) {
	tests := []struct {
		name    string
		setupDB bool
	}{
		{name: "close with nil DB", setupDB: false},
		{name: "close with open DB", setupDB: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := &BaseSQLAdapter{}
			if tt.setupDB {
				db, mock, err := sqlmock.New()
				require.NoError(t, err)
				mock.ExpectClose()
				base.DB = db
			}
			assert.NoError(t, base.Close())
		})
	}
}

func TestBaseSQLAdapter_Exec(t *testing.T) {
	tests := []struct {
		name      string
		setupDB   bool
		setupMock func(mock sqlmock.Sqlmock)
		sql       string
		args      []any
		expectErr bool
		errMsg    string
	}{
		{
			name:      "exec without connection",
			sql:       "SELECT 1",
			expectErr: true,
			errMsg:    "database connection not established",
		},
		{
			name:    "exec success",
			setupDB: true,
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("CREATE TABLE users").WillReturnResult(sqlmock.NewResult(0, 0))
			},
			sql: "CREATE TABLE users (id INT)",
		},
		{
			name:    "exec with args",
			setupDB: true,
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("DELETE FROM users").WithArgs(int64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
			},
			sql:  "DELETE FROM users WHERE id = ?",
			args: []any{int64(7)},
		},
		{
			name:    "exec with error",
			setupDB: true,
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("INVALID SQL").WillReturnError(assert.AnError)
			},
			sql:       "INVALID SQL",
			expectErr: true,
			errMsg:    "failed to execute SQL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := &BaseSQLAdapter{SQL: testDialect}
			var mock sqlmock.Sqlmock
			if tt.setupDB {
				base, mock = newMockBase(t)
				tt.setupMock(mock)
			}

			err := base.Exec(context.Background(), tt.sql, tt.args...)
			if tt.expectErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
			if mock != nil {
				assert.NoError(t, mock.ExpectationsWereMet())
			}
		})
	}
}

func TestBaseSQLAdapter_Query(t *testing.T) {
	base, mock := newMockBase(t)

	mock.ExpectQuery("SELECT id, name FROM users").
		WithArgs("BR").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), []byte("Ana")).
			AddRow(int64(2), nil))

	rs, err := base.Query(context.Background(), "SELECT id, name FROM users WHERE country = ?", "BR")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, rs.Columns)
	assert.Equal(t, [][]any{{int64(1), "Ana"}, {int64(2), nil}}, rs.Rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBaseSQLAdapter_QueryError(t *testing.T) {
	base, mock := newMockBase(t)
	mock.ExpectQuery("SELECT").WillReturnError(assert.AnError)

	_, err := base.Query(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)

	_, err = (&BaseSQLAdapter{}).Query(context.Background(), "SELECT 1")
	assert.EqualError(t, err, "database connection not established")
}

func TestParseQualifiedName(t *testing.T) {
	tests := []struct {
		input      string
		wantSchema string
		wantName   string
	}{
		{"users", "main", "users"},
		{"raw.users", "raw", "users"},
		{"a.b.c", "main", "a.b.c"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			schema, name := ParseQualifiedName(tt.input, testDialect)
			assert.Equal(t, tt.wantSchema, schema)
			assert.Equal(t, tt.wantName, name)
		})
	}
}

func TestBaseSQLAdapter_ListColumns(t *testing.T) {
	t.Run("maps information_schema rows", func(t *testing.T) {
		base, mock := newMockBase(t)
		mock.ExpectQuery("FROM information_schema.columns").
			WithArgs("main", "raw_sales").
			WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "ordinal_position"}).
				AddRow("id", "INTEGER", "NO", 1).
				AddRow("region", "VARCHAR", "YES", 2).
				AddRow("total", "DOUBLE", "YES", 3))

		cols, err := base.ListColumns(context.Background(), "raw_sales")
		require.NoError(t, err)
		require.Len(t, cols, 3)
		assert.Equal(t, core.Column{Name: "id", Type: core.TypeInteger, SQLType: "INTEGER", Position: 1}, cols[0])
		assert.Equal(t, core.TypeText, cols[1].Type)
		assert.True(t, cols[1].Nullable)
		assert.Equal(t, core.TypeFloat, cols[2].Type)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("configured schema", func(t *testing.T) {
		base, mock := newMockBase(t)
		base.Cfg.Schema = "staging"
		mock.ExpectQuery("FROM information_schema.columns").
			WithArgs("staging", "t").
			WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "ordinal_position"}).
				AddRow("x", "text", "YES", 1))

		_, err := base.ListColumns(context.Background(), "t")
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty result is a schema conflict", func(t *testing.T) {
		base, mock := newMockBase(t)
		mock.ExpectQuery("FROM information_schema.columns").
			WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "ordinal_position"}))

		_, err := base.ListColumns(context.Background(), "missing")
		var conflict *core.SchemaConflictError
		require.True(t, errors.As(err, &conflict))
		assert.Equal(t, "missing", conflict.Table)
	})

	t.Run("unscannable row is a schema conflict", func(t *testing.T) {
		base, mock := newMockBase(t)
		mock.ExpectQuery("FROM information_schema.columns").
			WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "ordinal_position"}).
				AddRow("x", "text", "YES", "not-a-number"))

		_, err := base.ListColumns(context.Background(), "t")
		var conflict *core.SchemaConflictError
		assert.True(t, errors.As(err, &conflict))
	})
}

func TestBaseSQLAdapter_ListTables(t *testing.T) {
	base, mock := newMockBase(t)
	mock.ExpectQuery("information_schema.tables").
		WithArgs("main").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).
			AddRow("data_lineage").
			AddRow("goose_db_version").
			AddRow("raw_sales"))

	tables, err := base.ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"data_lineage", "raw_sales"}, tables)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBaseSQLAdapter_InsertRows(t *testing.T) {
	t.Run("batches inside one transaction", func(t *testing.T) {
		base, mock := newMockBase(t)
		base.Cfg.BatchSize = 2

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO "raw_sales" \("region", "total"\) VALUES \(\?, \?\), \(\?, \?\)`).
			WithArgs("n", 1.5, "s", 2.0).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec(`INSERT INTO "raw_sales" \("region", "total"\) VALUES \(\?, \?\)$`).
			WithArgs("e", nil).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		n, err := base.InsertRows(context.Background(), "raw_sales", []string{"region", "total"}, [][]any{
			{"n", 1.5}, {"s", 2.0}, {"e", nil},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure rolls back", func(t *testing.T) {
		base, mock := newMockBase(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO").WillReturnError(assert.AnError)
		mock.ExpectRollback()

		n, err := base.InsertRows(context.Background(), "t", []string{"a"}, [][]any{{1}})
		require.Error(t, err)
		assert.Zero(t, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no rows is a no-op", func(t *testing.T) {
		base, mock := newMockBase(t)
		n, err := base.InsertRows(context.Background(), "t", []string{"a"}, nil)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ragged row", func(t *testing.T) {
		base, _ := newMockBase(t)
		_, err := base.InsertRows(context.Background(), "t", []string{"a", "b"}, [][]any{{1}})
		assert.ErrorContains(t, err, "row 1 has 1 values, expected 2")
	})
}

func TestBaseSQLAdapter_IsConnected(t *testing.T) {
	base := &BaseSQLAdapter{}
	assert.False(t, base.IsConnected())

	base, _ = newMockBase(t)
	assert.True(t, base.IsConnected())
	assert.Same(t, testDialect, base.Dialect())
}
