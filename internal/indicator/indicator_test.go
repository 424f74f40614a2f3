package indicator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapmeta/internal/ingest"
	"github.com/leapstack-labs/leapmeta/internal/lineage"
	"github.com/leapstack-labs/leapmeta/internal/mapping"
	"github.com/leapstack-labs/leapmeta/internal/migrate"
	"github.com/leapstack-labs/leapmeta/internal/testutil"
	pgdialect "github.com/leapstack-labs/leapmeta/pkg/adapters/postgres/dialect"
	"github.com/leapstack-labs/leapmeta/pkg/adapters/sqlite"
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeService(t *testing.T) (*Service, *testutil.FakeStore) {
	t.Helper()
	store := testutil.NewFakeStore()
	store.AddTable(lineage.Table, "id", "source_table", "target_table", "rows", "layer", "transformation_query", "created_at")
	store.AddTable(mapping.Table, "id", "source_table", "source_column", "target_table", "target_column",
		"transformation_rule", "data_type", "is_nullable", "created_at")
	store.SetColumns("raw_sales", []core.Column{
		{Name: "region", Type: core.TypeText, SQLType: "text", Nullable: true},
		{Name: "total", Type: core.TypeFloat, SQLType: "double precision"},
	})
	return NewService(store, pgdialect.Postgres, Options{}, testutil.NewTestLogger(t)), store
}

func salesSpec(t *testing.T) *query.Spec {
	t.Helper()
	spec, err := query.NewBuilder().
		From("raw_sales").
		Select("raw_sales", "region", "total").
		Where("raw_sales", "region", query.OpEq, "north").
		Build()
	require.NoError(t, err)
	return spec
}

func TestCompose(t *testing.T) {
	svc, _ := newFakeService(t)

	sql, err := svc.Compose(salesSpec(t))
	require.NoError(t, err)
	assert.Equal(t, "SELECT raw_sales.region, raw_sales.total\nFROM raw_sales\nWHERE raw_sales.region = 'north'", sql)

	_, err = svc.Compose(&query.Spec{})
	var inputErr *core.InputError
	assert.True(t, errors.As(err, &inputErr))
}

func TestPreview_BindsParameters(t *testing.T) {
	svc, store := newFakeService(t)
	store.QueryFunc = func(_ string, _ []any) (*core.ResultSet, error) {
		return &core.ResultSet{Columns: []string{"region", "total"}, Rows: [][]any{{"north", 10.5}}}, nil
	}

	p, err := svc.Preview(context.Background(), salesSpec(t), 5)
	require.NoError(t, err)
	assert.Contains(t, p.SQL, "= 'north'")
	assert.Equal(t, 1, p.Result.Len())

	require.Len(t, store.QueryLog, 1)
	assert.Equal(t, "SELECT raw_sales.region, raw_sales.total\nFROM raw_sales\nWHERE raw_sales.region = $1\nLIMIT 5", store.QueryLog[0].SQL)
	assert.Equal(t, []any{"north"}, store.QueryLog[0].Args)
}

func TestPreview_RemoteFailure(t *testing.T) {
	svc, store := newFakeService(t)
	store.QueryFunc = func(string, []any) (*core.ResultSet, error) {
		return nil, errors.New(`column "region" does not exist`)
	}

	_, err := svc.Preview(context.Background(), salesSpec(t), 0)
	var remote *core.RemoteExecutionError
	require.True(t, errors.As(err, &remote))
	assert.Contains(t, err.Error(), `column "region" does not exist`)
}

func TestSave(t *testing.T) {
	svc, store := newFakeService(t)
	spec, err := query.NewBuilder().
		From("raw_sales", "raw_regions").
		Select("raw_sales", "region", "total").
		Select("raw_regions", "manager").
		Join(query.LeftJoin, "raw_sales", "region", "raw_regions", "name").
		Build()
	require.NoError(t, err)

	ind, err := svc.Save(context.Background(), "Sales By Region", spec)
	require.NoError(t, err)

	assert.Equal(t, "indicator_sales_by_region", ind.TargetTable)
	assert.Equal(t, "Sales By Region", ind.Title)
	require.Len(t, ind.Mappings, 3)
	assert.Equal(t, "TEXT", ind.Mappings[0].DataType)
	assert.Equal(t, "DOUBLE PRECISION", ind.Mappings[1].DataType)
	assert.Equal(t, "TEXT", ind.Mappings[2].DataType, "unreadable source falls back to TEXT")
	assert.True(t, ind.Mappings[0].IsNullable)
	assert.False(t, ind.Mappings[1].IsNullable)
	assert.True(t, ind.Mappings[2].IsNullable)
	for _, m := range ind.Mappings {
		assert.Equal(t, ind.TransformationRule, m.TransformationRule)
	}

	assert.Len(t, store.Rows(mapping.Table), 3)
	lin := store.Rows(lineage.Table)
	require.Len(t, lin, 1)
	assert.Equal(t, "raw_sales, raw_regions", lin[0]["source_table"])
	assert.Equal(t, "indicator", lin[0]["layer"])
	assert.Equal(t, int64(0), lin[0]["rows"])
}

func TestSave_Rejections(t *testing.T) {
	svc, store := newFakeService(t)
	ctx := context.Background()

	_, err := svc.Save(ctx, "  ", salesSpec(t))
	assert.Error(t, err)

	_, err = svc.Save(ctx, "empty", &query.Spec{})
	assert.Error(t, err)

	_, err = svc.Save(ctx, "sales", salesSpec(t))
	require.NoError(t, err)
	_, err = svc.Save(ctx, "Sales", salesSpec(t))
	assert.ErrorContains(t, err, "already exists")

	assert.Len(t, store.Rows(mapping.Table), 2)
}

func TestSave_LineageFailureKeepsMappings(t *testing.T) {
	svc, store := newFakeService(t)
	store.InsertErr[lineage.Table] = errors.New("disk full")

	ind, err := svc.Save(context.Background(), "sales", salesSpec(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lineage was not recorded")
	require.NotNil(t, ind)
	assert.Len(t, store.Rows(mapping.Table), 2)
}

func TestTarget(t *testing.T) {
	svc, _ := newFakeService(t)

	tests := []struct {
		ref  string
		want string
	}{
		{"indicator_sales", "indicator_sales"},
		{"Sales", "indicator_sales"},
		{"Top Regions", "indicator_top_regions"},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := svc.Target(tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadOnly(t *testing.T) {
	tests := []struct {
		rule    string
		want    string
		wantErr bool
	}{
		{rule: "SELECT a FROM t;", want: "SELECT a FROM t"},
		{rule: "select a\nfrom t", want: "select a\nfrom t"},
		{rule: "DELETE FROM t", wantErr: true},
		{rule: "SELECT 1; DROP TABLE t", wantErr: true},
		{rule: "SELECT a FROM t\nWHERE t.a LIKE '%a;b%'", want: "SELECT a FROM t\nWHERE t.a LIKE '%a;b%'"},
		{rule: "SELECT a FROM t WHERE t.a = 'it''s;ok';", want: "SELECT a FROM t WHERE t.a = 'it''s;ok'"},
		{rule: "SELECT a FROM t WHERE t.a = 'x''; DROP TABLE t", wantErr: true},
		{rule: "SELECT a FROM t WHERE t.a = 'x'; DROP TABLE t", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.rule, func(t *testing.T) {
			got, err := readOnly(tt.rule)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIndicators_SQLite(t *testing.T) {
	ctx := context.Background()
	adp := sqlite.New(nil)
	require.NoError(t, adp.Connect(ctx, core.AdapterConfig{Path: ":memory:"}))
	defer func() { _ = adp.Close() }()
	require.NoError(t, migrate.Up(ctx, adp, nil))

	ing := ingest.NewService(adp, adp.Dialect(), ingest.Options{}, nil)
	_, err := ing.Ingest(ctx, ingest.Request{
		Table: "raw_sales",
		Data: &ingest.Dataset{
			Headers: []string{"region", "total"},
			Rows:    [][]string{{"north", "10"}, {"south", "4.5"}, {"o'hare", "1"}},
		},
	})
	require.NoError(t, err)

	svc := NewService(adp, adp.Dialect(), Options{}, testutil.NewTestLogger(t))

	spec, err := query.NewBuilder().
		From("raw_sales").
		Select("raw_sales", "region", "total").
		Where("raw_sales", "region", query.OpEq, "o'hare").
		Build()
	require.NoError(t, err)
	p, err := svc.Preview(ctx, spec, 0)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"o'hare", 1.0}}, p.Result.Rows)

	spec, err = query.NewBuilder().
		From("raw_sales").
		Select("raw_sales", "region", "total").
		OrderBy("raw_sales", "total", query.Desc).
		Build()
	require.NoError(t, err)
	ind, err := svc.Save(ctx, "Top Regions", spec)
	require.NoError(t, err)
	assert.Equal(t, "DOUBLE PRECISION", ind.Mappings[1].DataType)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Top Regions", list[0].Title)

	_, rs, err := svc.Run(ctx, "Top Regions", 2)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"north", 10.0}, {"south", 4.5}}, rs.Rows)

	panels, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	require.Len(t, panels, 1)
	assert.Equal(t, 3, panels[0].Result.Len())

	records, err := lineage.NewRecorder(adp, adp.Dialect(), nil).List(ctx, ind.TargetTable)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, core.LayerIndicator, records[0].Layer)
}

func TestSaveAndRun_SemicolonInLiteral(t *testing.T) {
	ctx := context.Background()
	adp := sqlite.New(nil)
	require.NoError(t, adp.Connect(ctx, core.AdapterConfig{Path: ":memory:"}))
	defer func() { _ = adp.Close() }()
	require.NoError(t, migrate.Up(ctx, adp, nil))

	ing := ingest.NewService(adp, adp.Dialect(), ingest.Options{}, nil)
	_, err := ing.Ingest(ctx, ingest.Request{
		Table: "raw_notes",
		Data: &ingest.Dataset{
			Headers: []string{"body"},
			Rows:    [][]string{{"a;b"}, {"plain"}},
		},
	})
	require.NoError(t, err)

	svc := NewService(adp, adp.Dialect(), Options{}, testutil.NewTestLogger(t))
	spec, err := query.NewBuilder().
		From("raw_notes").
		Select("raw_notes", "body").
		Where("raw_notes", "body", query.OpLike, "a;b").
		Build()
	require.NoError(t, err)

	p, err := svc.Preview(ctx, spec, 0)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"a;b"}}, p.Result.Rows)

	_, err = svc.Save(ctx, "notes", spec)
	require.NoError(t, err)

	_, rs, err := svc.Run(ctx, "notes", 0)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"a;b"}}, rs.Rows)

	panels, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	require.Len(t, panels, 1)
	assert.Equal(t, 1, panels[0].Result.Len())
}

func TestWriteCSV(t *testing.T) {
	var buf strings.Builder
	rs := &core.ResultSet{
		Columns: []string{"region", "total", "note"},
		Rows: [][]any{
			{"north", 10.5, nil},
			{"south", int64(3), "a, b"},
		},
	}
	require.NoError(t, WriteCSV(&buf, rs))
	assert.Equal(t, "region,total,note\nnorth,10.5,\nsouth,3,\"a, b\"\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, "\n", buf.String())
}
