package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error    string   `json:"error"`
	Code     string   `json:"code"`
	Warnings []string `json:"warnings,omitempty"`
	Result   any      `json:"result,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// classify maps an error to its HTTP status and error code.
func classify(err error) (int, string) {
	var (
		inputErr    *core.InputError
		conflictErr *core.SchemaConflictError
		consistErr  *core.ConsistencyError
		remoteErr   *core.RemoteExecutionError
	)
	switch {
	case errors.As(err, &inputErr):
		return http.StatusBadRequest, "INPUT_ERROR"
	case errors.As(err, &conflictErr):
		return http.StatusConflict, "SCHEMA_CONFLICT"
	case errors.As(err, &consistErr):
		return http.StatusConflict, "INCONSISTENT_METADATA"
	case errors.As(err, &remoteErr):
		return http.StatusBadGateway, "EXECUTION_ERROR"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, partial any) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Code: code, Result: partial})
}

// warnings splits a joined error into its messages.
func warnings(err error) []string {
	if err == nil {
		return nil
	}
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
