package commands

import (
	"github.com/leapstack-labs/leapmeta/internal/indicator"
	"github.com/leapstack-labs/leapmeta/internal/ingest"
	"github.com/leapstack-labs/leapmeta/internal/server"
	"github.com/spf13/cobra"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server.

The API exposes table and column listings, file ingest, query composition
and preview, indicators, the dashboard and the lineage log as JSON. When an
inbox directory is configured, data files dropped into it are ingested
into the raw table named after the file.`,
		Example: `  # Serve on the configured address
  leapmeta serve

  # Custom address with a browser frontend on another origin
  leapmeta serve --addr :9000 --cors-origin http://localhost:5173

  # Watch a drop folder
  leapmeta serve --inbox ./inbox`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			cfg := cc.Cfg
			srv := server.New(server.Config{
				Store:       cc.Store,
				Dialect:     cc.Store.Dialect(),
				Addr:        cfg.Server.Addr,
				CORSOrigins: cfg.Server.CORSOrigins,
				InboxDir:    cfg.Server.InboxDir,
				Ingest: ingest.Options{
					RawPrefix: cfg.RawPrefix,
					AuditUser: cfg.AuditUser,
				},
				Indicator: indicator.Options{Prefix: cfg.IndicatorPrefix},
				Logger:    cc.Logger,
			})

			cc.Renderer.Success("Serving API on " + cfg.Server.Addr)
			if cfg.Server.InboxDir != "" {
				cc.Renderer.Muted("Watching inbox " + cfg.Server.InboxDir)
			}
			return srv.Serve(cmd.Context())
		},
	}

	// Bound to server.* config keys in the root command's flag mapping.
	cmd.Flags().String("addr", "", "Listen address (default: server.addr)")
	cmd.Flags().StringSlice("cors-origin", nil, "Allowed CORS origin (repeatable)")
	cmd.Flags().String("inbox", "", "Directory to watch for data files")

	return cmd
}
