package lineage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leapstack-labs/leapmeta/internal/migrate"
	"github.com/leapstack-labs/leapmeta/internal/testutil"
	"github.com/leapstack-labs/leapmeta/pkg/adapters/sqlite"
	sqlitedialect "github.com/leapstack-labs/leapmeta/pkg/adapters/sqlite/dialect"
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeRecorder(t *testing.T) (*Recorder, *testutil.FakeStore) {
	t.Helper()
	store := testutil.NewFakeStore()
	store.AddTable(Table, columns...)
	rec := NewRecorder(store, sqlitedialect.SQLite, testutil.NewTestLogger(t))
	rec.now = func() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) }
	return rec, store
}

func TestRecord(t *testing.T) {
	rec, store := newFakeRecorder(t)

	got, err := rec.Record(context.Background(), "upload", "raw_sales", 12, core.LayerRaw, "CREATE TABLE ...")
	require.NoError(t, err)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC), got.CreatedAt)

	rows := store.Rows(Table)
	require.Len(t, rows, 1)
	assert.Equal(t, "upload", rows[0]["source_table"])
	assert.Equal(t, "raw_sales", rows[0]["target_table"])
	assert.Equal(t, int64(12), rows[0]["rows"])
	assert.Equal(t, "raw", rows[0]["layer"])
	assert.Equal(t, "CREATE TABLE ...", rows[0]["transformation_query"])
}

func TestRecord_Validation(t *testing.T) {
	tests := []struct {
		name   string
		source string
		target string
		rows   int64
		layer  core.Layer
	}{
		{"empty source", "", "t", 0, core.LayerRaw},
		{"empty target", "upload", " ", 0, core.LayerRaw},
		{"empty layer", "upload", "t", 0, ""},
		{"negative rows", "upload", "t", -1, core.LayerRaw},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, store := newFakeRecorder(t)
			_, err := rec.Record(context.Background(), tt.source, tt.target, tt.rows, tt.layer, "q")
			var inputErr *core.InputError
			assert.True(t, errors.As(err, &inputErr))
			assert.Empty(t, store.Rows(Table))
		})
	}
}

func TestRecord_WriteFailurePropagates(t *testing.T) {
	rec, store := newFakeRecorder(t)
	store.InsertErr[Table] = errors.New("disk full")

	_, err := rec.Record(context.Background(), "upload", "raw_sales", 1, core.LayerRaw, "q")
	var remote *core.RemoteExecutionError
	require.True(t, errors.As(err, &remote))
	assert.Contains(t, err.Error(), "disk full")
}

func TestRecordRawAndIndicator(t *testing.T) {
	rec, store := newFakeRecorder(t)
	ctx := context.Background()

	_, err := rec.RecordRaw(ctx, "", "raw_sales", 3, "INSERT INTO raw_sales (a) VALUES (...)")
	require.NoError(t, err)
	_, err = rec.RecordRaw(ctx, "sales.csv", "raw_sales", 3, "INSERT INTO raw_sales (a) VALUES (...)")
	require.NoError(t, err)

	ind := core.Indicator{
		TargetTable:        "indicator_revenue",
		TransformationRule: "SELECT raw_sales.total\nFROM raw_sales",
		Mappings: []core.MetadataMapping{
			{SourceTable: "raw_sales", SourceColumn: "total"},
			{SourceTable: "raw_regions", SourceColumn: "name"},
			{SourceTable: "raw_sales", SourceColumn: "region"},
		},
	}
	got, err := rec.RecordIndicator(ctx, ind)
	require.NoError(t, err)
	assert.Equal(t, "raw_sales, raw_regions", got.SourceTable)
	assert.Equal(t, core.LayerIndicator, got.Layer)
	assert.Zero(t, got.Rows)

	rows := store.Rows(Table)
	require.Len(t, rows, 3)
	assert.Equal(t, UploadSource, rows[0]["source_table"])
	assert.Equal(t, "sales.csv", rows[1]["source_table"])
	assert.Equal(t, "indicator", rows[2]["layer"])
}

func TestList_FakeStore(t *testing.T) {
	rec, store := newFakeRecorder(t)
	ctx := context.Background()

	_, err := rec.RecordRaw(ctx, "upload", "raw_sales", 4, "q")
	require.NoError(t, err)

	records, err := rec.List(ctx, "raw_sales")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(4), records[0].Rows)
	assert.Equal(t, core.LayerRaw, records[0].Layer)

	last := store.QueryLog[len(store.QueryLog)-1]
	assert.Contains(t, last.SQL, `"rows"`)
	assert.Contains(t, last.SQL, "WHERE target_table = ?")
	assert.Equal(t, []any{"raw_sales"}, last.Args)
}

func TestList_SQLite(t *testing.T) {
	ctx := context.Background()
	adp := sqlite.New(nil)
	require.NoError(t, adp.Connect(ctx, core.AdapterConfig{Path: ":memory:"}))
	defer func() { _ = adp.Close() }()
	require.NoError(t, migrate.Up(ctx, adp, nil))

	rec := NewRecorder(adp, adp.Dialect(), nil)
	_, err := rec.RecordRaw(ctx, "upload", "raw_sales", 2, "CREATE TABLE IF NOT EXISTS raw_sales (...)")
	require.NoError(t, err)
	_, err = rec.RecordRaw(ctx, "upload", "raw_other", 5, "q")
	require.NoError(t, err)

	all, err := rec.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	sales, err := rec.List(ctx, "raw_sales")
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, int64(2), sales[0].Rows)
	assert.False(t, sales[0].CreatedAt.IsZero())
}
