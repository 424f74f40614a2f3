package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/leapstack-labs/leapmeta/internal/catalog"
	"github.com/leapstack-labs/leapmeta/internal/indicator"
	"github.com/leapstack-labs/leapmeta/internal/ingest"
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/query"
)

// defaultPreviewLimit caps preview rows when the request names no limit.
const defaultPreviewLimit = 100

type queryRequest struct {
	Definition query.Definition `json:"definition"`
	Limit      *int             `json:"limit,omitempty"`
}

type saveRequest struct {
	Name       string           `json:"name"`
	Definition query.Definition `json:"definition"`
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return core.ErrInput("invalid request body: %v", err)
	}
	return nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, core.ErrInput("%s must be a non-negative integer", name)
	}
	return n, nil
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	tables, err := catalog.Tables(r.Context(), s.store, r.URL.Query().Get("prefix"))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func (s *Server) handleColumns(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))

	schemas, err := catalog.Describe(r.Context(), s.store, []string{table}, all)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, schemas[0])
}

// handleIngest accepts a multipart upload with a "file" part and optional
// table, mode, delimiter and encoding fields.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, r, core.ErrInput("invalid upload: %v", err), nil)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, core.ErrInput("missing file part: %v", err), nil)
		return
	}
	defer func() { _ = file.Close() }()

	mode, err := ingest.ParseMode(r.FormValue("mode"))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}

	table := r.FormValue("table")
	if table == "" {
		if table, err = ingest.TableForFile(s.cfg.Ingest.RawPrefix, header.Filename); err != nil {
			s.writeError(w, r, err, nil)
			return
		}
	}

	ropts := ingest.ReadOptions{Encoding: r.FormValue("encoding")}
	if ropts.Format, err = ingest.DetectFormat(header.Filename); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	if d := r.FormValue("delimiter"); d != "" {
		if utf8.RuneCountInString(d) != 1 {
			s.writeError(w, r, core.ErrInput("delimiter must be a single character"), nil)
			return
		}
		ropts.Delimiter, _ = utf8.DecodeRuneInString(d)
	}

	ds, err := ingest.Read(file, ropts)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%s: %w", header.Filename, err), nil)
		return
	}

	res, err := s.ingest.Ingest(r.Context(), ingest.Request{
		Table:  table,
		Mode:   mode,
		Source: header.Filename,
		Data:   ds,
	})
	if err != nil {
		var partial any
		if res != nil && (res.Rows > 0 || len(res.Lineage) > 0) {
			partial = res
		}
		s.writeError(w, r, err, partial)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	spec, err := req.Definition.Build()
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	sql, err := s.indicators.Compose(spec)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sql": sql})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	spec, err := req.Definition.Build()
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	limit := defaultPreviewLimit
	if req.Limit != nil {
		limit = *req.Limit
	}

	p, err := s.indicators.Preview(r.Context(), spec, limit)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleListIndicators(w http.ResponseWriter, r *http.Request) {
	inds, err := s.indicators.List(r.Context())
	if inds == nil && err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"indicators": inds,
		"warnings":   warnings(err),
	})
}

func (s *Server) handleSaveIndicator(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	spec, err := req.Definition.Build()
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}

	ind, err := s.indicators.Save(r.Context(), req.Name, spec)
	if ind == nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"indicator": ind,
		"warnings":  warnings(err),
	})
}

func (s *Server) handleRunIndicator(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	ind, rs, err := s.indicators.Run(r.Context(), chi.URLParam(r, "ref"), limit)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, indicator.Panel{Indicator: ind, Result: rs})
}

func (s *Server) handleExportIndicator(w http.ResponseWriter, r *http.Request) {
	ind, rs, err := s.indicators.Run(r.Context(), chi.URLParam(r, "ref"), 0)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ind.TargetTable+".csv"))
	if err := indicator.WriteCSV(w, rs); err != nil {
		s.logger.Error("export failed", "indicator", ind.TargetTable, "error", err)
	}
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	panels, err := s.indicators.Dashboard(r.Context())
	if panels == nil && err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"panels":   panels,
		"warnings": warnings(err),
	})
}

func (s *Server) handleLineage(w http.ResponseWriter, r *http.Request) {
	records, err := s.lineage.List(r.Context(), r.URL.Query().Get("target"))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}
