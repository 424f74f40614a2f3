// Package lineage appends and reads the data_lineage audit trail.
//
// Every schema- or data-affecting operation leapmeta performs is recorded
// here: the raw DDL and inserts of an ingest, and the creation of an
// indicator. Records are never updated or deleted. A write failure is
// returned to the caller; a retried call may produce a duplicate record.
package lineage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/dialect"
	"github.com/leapstack-labs/leapmeta/pkg/ident"
)

// Table is the name of the lineage table.
const Table = "data_lineage"

// UploadSource is the source recorded for raw data without a file name.
const UploadSource = "upload"

var columns = []string{"id", "source_table", "target_table", "rows", "layer", "transformation_query", "created_at"}

// Recorder writes lineage records to a store.
type Recorder struct {
	store   core.Store
	dialect *dialect.Dialect
	logger  *slog.Logger
	now     func() time.Time
}

// NewRecorder creates a Recorder. If logger is nil, a discard logger is used.
func NewRecorder(store core.Store, d *dialect.Dialect, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Recorder{store: store, dialect: d, logger: logger, now: time.Now}
}

// Record appends one lineage record and returns it.
func (r *Recorder) Record(ctx context.Context, source, target string, rows int64, layer core.Layer, query string) (core.LineageRecord, error) {
	rec := core.LineageRecord{
		ID:                  ident.NewID(),
		SourceTable:         strings.TrimSpace(source),
		TargetTable:         strings.TrimSpace(target),
		Rows:                rows,
		Layer:               layer,
		TransformationQuery: query,
		CreatedAt:           r.now().UTC(),
	}

	switch {
	case rec.SourceTable == "":
		return rec, core.ErrInput("lineage source cannot be empty")
	case rec.TargetTable == "":
		return rec, core.ErrInput("lineage target cannot be empty")
	case rec.Layer == "":
		return rec, core.ErrInput("lineage layer cannot be empty")
	case rows < 0:
		return rec, core.ErrInput("lineage row count cannot be negative")
	}

	row := []any{rec.ID, rec.SourceTable, rec.TargetTable, rec.Rows, string(rec.Layer), rec.TransformationQuery, rec.CreatedAt}
	if _, err := r.store.InsertRows(ctx, Table, columns, [][]any{row}); err != nil {
		return rec, core.ErrRemote("record lineage", Table, "", err)
	}

	r.logger.Debug("lineage recorded",
		slog.String("source", rec.SourceTable),
		slog.String("target", rec.TargetTable),
		slog.String("layer", string(rec.Layer)),
		slog.Int64("rows", rec.Rows))
	return rec, nil
}

// RecordRaw records a raw-layer operation on target.
func (r *Recorder) RecordRaw(ctx context.Context, source, target string, rows int64, stmt string) (core.LineageRecord, error) {
	if source == "" {
		source = UploadSource
	}
	return r.Record(ctx, source, target, rows, core.LayerRaw, stmt)
}

// RecordIndicator records the creation of an indicator. The source is the
// comma-separated list of its source tables.
func (r *Recorder) RecordIndicator(ctx context.Context, ind core.Indicator) (core.LineageRecord, error) {
	return r.Record(ctx, strings.Join(ind.SourceTables(), ", "), ind.TargetTable, 0, core.LayerIndicator, ind.TransformationRule)
}

// List returns the records for target, oldest first. An empty target lists
// every record.
func (r *Recorder) List(ctx context.Context, target string) ([]core.LineageRecord, error) {
	query := fmt.Sprintf(`SELECT id, source_table, target_table, %s, layer, transformation_query, created_at FROM %s`,
		r.dialect.QuoteIdentifier("rows"), Table)
	var args []any
	if target != "" {
		query += " WHERE target_table = " + r.dialect.FormatPlaceholder(1)
		args = append(args, target)
	}
	query += " ORDER BY created_at, id"

	rs, err := r.store.Query(ctx, query, args...)
	if err != nil {
		return nil, core.ErrRemote("list lineage", Table, query, err)
	}

	records := make([]core.LineageRecord, 0, rs.Len())
	for _, m := range rs.Records() {
		records = append(records, core.LineageRecord{
			ID:                  core.AsString(m["id"]),
			SourceTable:         core.AsString(m["source_table"]),
			TargetTable:         core.AsString(m["target_table"]),
			Rows:                core.AsInt64(m["rows"]),
			Layer:               core.Layer(core.AsString(m["layer"])),
			TransformationQuery: core.AsString(m["transformation_query"]),
			CreatedAt:           core.AsTime(m["created_at"]),
		})
	}
	return records, nil
}
