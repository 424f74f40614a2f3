package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/leapmeta/internal/cli/output"
	"github.com/leapstack-labs/leapmeta/internal/indicator"
	"github.com/leapstack-labs/leapmeta/internal/lineage"
	"github.com/leapstack-labs/leapmeta/internal/mapping"
	"github.com/leapstack-labs/leapmeta/internal/testutil"
	pgdialect "github.com/leapstack-labs/leapmeta/pkg/adapters/postgres/dialect"
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T) (*buildSession, *testutil.FakeStore, *bytes.Buffer) {
	t.Helper()
	store := testutil.NewFakeStore()
	store.AddTable(lineage.Table, "id", "source_table", "target_table", "rows", "layer", "transformation_query", "created_at")
	store.AddTable(mapping.Table, "id", "source_table", "source_column", "target_table", "target_column",
		"transformation_rule", "data_type", "is_nullable", "created_at")
	store.SetColumns("raw_sales", []core.Column{
		{Name: "region", Type: core.TypeText, SQLType: "text", Nullable: true},
		{Name: "total", Type: core.TypeFloat, SQLType: "double precision"},
	})
	store.AddTable("raw_regions", "name", "manager")

	out := new(bytes.Buffer)
	r := output.NewRendererWithTTY(out, out, false, output.ModeMarkdown)
	svc := indicator.NewService(store, pgdialect.Postgres, indicator.Options{}, testutil.NewTestLogger(t))
	return newBuildSession(store, svc, r, 10), store, out
}

func runLines(t *testing.T, s *buildSession, lines ...string) {
	t.Helper()
	for _, line := range lines {
		require.NoError(t, s.handle(context.Background(), line), line)
	}
}

func TestBuildSession_ComposesSQL(t *testing.T) {
	s, _, out := newTestSession(t)

	runLines(t, s,
		".from raw_sales raw_regions",
		".select raw_sales region total",
		".select raw_regions.manager",
		".join left raw_sales.region raw_regions.name",
		".where raw_sales.region NOT IN 'a','b'",
		".where raw_sales.total >= 10",
		".order raw_sales.total desc",
		".sql",
	)

	assert.Equal(t, "SELECT raw_sales.region, raw_sales.total, raw_regions.manager\n"+
		"FROM raw_sales\n"+
		"LEFT JOIN raw_regions ON raw_sales.region = raw_regions.name\n"+
		"WHERE raw_sales.region NOT IN ('a','b') AND raw_sales.total >= '10'\n"+
		"ORDER BY raw_sales.total DESC\n", out.String())
}

func TestBuildSession_DeselectAndReset(t *testing.T) {
	s, _, out := newTestSession(t)

	runLines(t, s,
		".from raw_sales",
		".select raw_sales region total",
		".deselect raw_sales total",
		".order raw_sales.region",
		".reset",
	)
	out.Reset()
	runLines(t, s, ".sql")
	assert.Equal(t, "SELECT raw_sales.region\nFROM raw_sales\n", out.String())

	runLines(t, s, ".clear")
	assert.Error(t, s.handle(context.Background(), ".sql"), "cleared query has no tables")
}

func TestBuildSession_FullOuterJoin(t *testing.T) {
	s, _, out := newTestSession(t)

	runLines(t, s,
		".from raw_sales raw_regions",
		".select raw_sales.region",
		".join full outer raw_sales.region raw_regions.name",
		".sql",
	)
	assert.Contains(t, out.String(), "FULL JOIN raw_regions ON raw_sales.region = raw_regions.name")
}

func TestBuildSession_Errors(t *testing.T) {
	s, _, _ := newTestSession(t)
	ctx := context.Background()

	tests := []string{
		"select region",
		".nope",
		".from",
		".select raw_sales",
		".join inner raw_sales.region",
		".join sideways raw_sales.region raw_regions.name",
		".where raw_sales.region =",
		".where region = x",
		".where raw_sales.region ~ x",
		".order raw_sales.region sideways",
		".preview abc",
		".save",
		".columns",
	}
	for _, line := range tests {
		assert.Error(t, s.handle(ctx, line), line)
	}

	assert.ErrorIs(t, s.handle(ctx, ".quit"), errQuit)
	assert.ErrorIs(t, s.handle(ctx, ".exit"), errQuit)
	assert.NoError(t, s.handle(ctx, "   "))
}

func TestBuildSession_PreviewAndSave(t *testing.T) {
	s, store, out := newTestSession(t)
	_, err := store.InsertRows(context.Background(), "raw_sales", []string{"region", "total"}, [][]any{{"north", 10.5}})
	require.NoError(t, err)

	runLines(t, s,
		".from raw_sales",
		".select raw_sales region total",
		".preview 5",
	)
	assert.Contains(t, out.String(), "| north | 10.5 |")
	assert.Contains(t, store.QueryLog[len(store.QueryLog)-1].SQL, "LIMIT 5")

	runLines(t, s, ".save Sales by Region")
	assert.Contains(t, out.String(), "Saved Sales By Region as indicator_sales_by_region")
	assert.Len(t, store.Rows(mapping.Table), 2)
}

func TestBuildSession_TablesAndColumns(t *testing.T) {
	s, _, out := newTestSession(t)

	runLines(t, s, ".tables")
	assert.Equal(t, "raw_regions\nraw_sales\n", out.String())

	out.Reset()
	runLines(t, s, ".columns raw_sales")
	assert.Contains(t, out.String(), "## raw_sales")
	assert.Contains(t, out.String(), "| total | DOUBLE PRECISION | float | NO |")
}

func TestBuildSession_WriteAndLoad(t *testing.T) {
	s, _, out := newTestSession(t)
	path := filepath.Join(t.TempDir(), "q.yaml")

	runLines(t, s,
		".from raw_sales",
		".select raw_sales region",
		".where raw_sales.region LIKE nor",
		".write "+path,
	)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "raw_sales")

	other, _, otherOut := newTestSession(t)
	runLines(t, other, ".load "+path, ".sql")
	assert.Contains(t, otherOut.String(), "WHERE raw_sales.region LIKE '%nor%'")
	assert.Contains(t, out.String(), "Wrote "+path)
}

func TestParseColumnRef(t *testing.T) {
	ref, err := parseColumnRef("raw_sales.region")
	require.NoError(t, err)
	assert.Equal(t, "raw_sales", ref.Table)
	assert.Equal(t, "region", ref.Column)

	for _, bad := range []string{"region", ".region", "raw_sales."} {
		_, err := parseColumnRef(bad)
		assert.Error(t, err, bad)
	}
}
