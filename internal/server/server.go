// Package server exposes ingestion, query composition, indicators and
// lineage over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/leapstack-labs/leapmeta/internal/indicator"
	"github.com/leapstack-labs/leapmeta/internal/ingest"
	"github.com/leapstack-labs/leapmeta/internal/lineage"
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/dialect"
	"golang.org/x/sync/errgroup"
)

// maxUploadBytes bounds the size of an uploaded dataset.
const maxUploadBytes = 64 << 20

// Config holds configuration for the API server.
type Config struct {
	Store   core.Store
	Dialect *dialect.Dialect

	Addr        string
	CORSOrigins []string

	// InboxDir, when set, is watched for new data files to ingest.
	InboxDir string

	Ingest    ingest.Options
	Indicator indicator.Options

	Logger *slog.Logger
}

// Server is the HTTP API server.
type Server struct {
	cfg        Config
	store      core.Store
	ingest     *ingest.Service
	indicators *indicator.Service
	lineage    *lineage.Recorder
	logger     *slog.Logger
}

// New creates a Server. If cfg.Logger is nil, a discard logger is used.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	return &Server{
		cfg:        cfg,
		store:      cfg.Store,
		ingest:     ingest.NewService(cfg.Store, cfg.Dialect, cfg.Ingest, logger),
		indicators: indicator.NewService(cfg.Store, cfg.Dialect, cfg.Indicator, logger),
		lineage:    lineage.NewRecorder(cfg.Store, cfg.Dialect, logger),
		logger:     logger,
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		s.requestLogger,
		middleware.Recoverer,
	)
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/tables", s.handleTables)
		r.Get("/tables/{table}/columns", s.handleColumns)
		r.Post("/ingest", s.handleIngest)

		r.Post("/query/compile", s.handleCompile)
		r.Post("/query/preview", s.handlePreview)

		r.Get("/indicators", s.handleListIndicators)
		r.Post("/indicators", s.handleSaveIndicator)
		r.Get("/indicators/{ref}", s.handleRunIndicator)
		r.Get("/indicators/{ref}/export", s.handleExportIndicator)
		r.Get("/dashboard", s.handleDashboard)

		r.Get("/lineage", s.handleLineage)
	})
	return r
}

// Serve starts the server and blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.cfg.InboxDir != "" {
		eg.Go(func() error {
			return s.watchInbox(egctx, s.cfg.InboxDir)
		})
	}

	eg.Go(func() error {
		s.logger.Info("starting API server", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down API server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())))
	})
}
