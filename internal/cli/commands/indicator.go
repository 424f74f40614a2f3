package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/leapstack-labs/leapmeta/internal/cli/output"
	"github.com/leapstack-labs/leapmeta/internal/indicator"
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/query"
	"github.com/spf13/cobra"
)

// watchDebounce is how long a query file must be quiet before a re-run.
const watchDebounce = 150 * time.Millisecond

// NewIndicatorCommand creates the indicator command and its subcommands.
func NewIndicatorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "indicator",
		Aliases: []string{"ind"},
		Short:   "Compose, save and run indicators",
		Long: `Indicators are saved queries over raw tables. An indicator is described in
a YAML file listing its source tables, selected columns, joins, filters and
sort order. Saving it records one metadata mapping per selected column and
a lineage entry.`,
	}

	cmd.AddCommand(
		newIndicatorPreviewCommand(),
		newIndicatorSaveCommand(),
		newIndicatorListCommand(),
		newIndicatorShowCommand(),
		newIndicatorRunCommand(),
		newIndicatorExportCommand(),
		newIndicatorBuildCommand(),
	)

	return cmd
}

func newIndicatorPreviewCommand() *cobra.Command {
	var limit int
	var watch bool

	cmd := &cobra.Command{
		Use:   "preview <file>",
		Short: "Compose a query file and show its SQL and result",
		Example: `  # Preview the first rows
  leapmeta indicator preview queries/revenue_by_city.yaml

  # Re-run on every save
  leapmeta indicator preview queries/revenue_by_city.yaml --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if !cmd.Flags().Changed("limit") {
				limit = cc.Cfg.PreviewLimit
			}
			svc := cc.indicatorService()
			path := args[0]

			if !watch {
				return previewFile(cmd.Context(), cc.Renderer, svc, path, limit)
			}
			return watchFile(cmd.Context(), cc, path, func() {
				if err := previewFile(cmd.Context(), cc.Renderer, svc, path, limit); err != nil {
					cc.Renderer.Error(err.Error())
				}
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum rows to show (default: preview_limit)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Re-run whenever the file changes")

	return cmd
}

func previewFile(ctx context.Context, r *output.Renderer, svc *indicator.Service, path string, limit int) error {
	spec, err := query.LoadFile(path)
	if err != nil {
		return err
	}
	p, err := svc.Preview(ctx, spec, limit)
	if err != nil {
		return err
	}
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(p)
	}
	if r.EffectiveMode() == output.ModeCSV {
		return r.ResultSet(p.Result)
	}
	r.Header(2, "SQL")
	r.Println(p.SQL)
	r.Println("")
	r.Header(2, "Result")
	return r.ResultSet(p.Result)
}

// watchFile runs fn once and then after every change to path, until ctx
// is cancelled. The parent directory is watched so that editors that
// replace the file on save are picked up.
func watchFile(ctx context.Context, cc *CommandContext, path string, fn func()) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	fn()
	cc.Renderer.Muted(fmt.Sprintf("watching %s (Ctrl+C to stop)", path))

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != abs || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(watchDebounce, func() {
				cc.Logger.Debug("query file changed", "file", path)
				cc.Renderer.Println("")
				fn()
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			cc.Logger.Error("watcher error", "error", err)
		}
	}
}

func newIndicatorSaveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "save <name> <file>",
		Short: "Save a query file as an indicator",
		Long: `Save a query file as the indicator called <name>. The target table is the
indicator prefix followed by the normalized name.`,
		Example: `  leapmeta indicator save "Revenue by City" queries/revenue_by_city.yaml`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := query.LoadFile(args[1])
			if err != nil {
				return err
			}

			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			ind, err := cc.indicatorService().Save(cmd.Context(), args[0], spec)
			if ind == nil {
				return err
			}
			warn(cc.Renderer, err)

			r := cc.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(ind)
			}
			r.Success(fmt.Sprintf("Saved %s as %s", ind.Title, ind.TargetTable))
			for _, m := range ind.Mappings {
				r.StatusLine(m.TargetColumn, "success", "← "+m.SourceTable+"."+m.SourceColumn)
			}
			return nil
		},
	}
}

func newIndicatorListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved indicators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			inds, err := cc.indicatorService().List(cmd.Context())
			if inds == nil && err != nil {
				return err
			}
			warn(cc.Renderer, err)

			r := cc.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				if inds == nil {
					inds = []core.Indicator{}
				}
				return r.JSON(inds)
			}
			r.Header(1, "Indicators")
			if len(inds) == 0 {
				r.Muted("No indicators saved")
				return nil
			}
			rows := make([][]string, len(inds))
			for i, ind := range inds {
				rows[i] = []string{
					ind.TargetTable,
					ind.Title,
					fmt.Sprintf("%d", len(ind.Mappings)),
					fmt.Sprintf("%v", ind.SourceTables()),
				}
			}
			r.Table([]string{"target", "title", "columns", "sources"}, rows)
			return nil
		},
	}
}

func newIndicatorShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <indicator>",
		Short: "Show an indicator's rule and column mappings",
		Example: `  leapmeta indicator show "Revenue by City"
  leapmeta indicator show indicator_revenue_by_city`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			ind, err := cc.indicatorService().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			r := cc.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(ind)
			}
			printIndicator(r, ind)
			return nil
		},
	}
}

func printIndicator(r *output.Renderer, ind core.Indicator) {
	r.Header(1, ind.Title)
	r.KeyValue("Target", ind.TargetTable)
	r.Println("")
	r.Header(2, "Rule")
	r.Println(ind.TransformationRule)
	r.Println("")
	r.Header(2, "Mappings")

	rows := make([][]string, len(ind.Mappings))
	for i, m := range ind.Mappings {
		nullable := "NO"
		if m.IsNullable {
			nullable = "YES"
		}
		rows[i] = []string{m.TargetColumn, m.SourceTable + "." + m.SourceColumn, m.DataType, nullable}
	}
	r.Table([]string{"column", "source", "type", "nullable"}, rows)
}

func newIndicatorRunCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "run <indicator>",
		Short: "Run a saved indicator",
		Example: `  leapmeta indicator run "Revenue by City"
  leapmeta indicator run indicator_revenue_by_city --limit 10 --output csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			_, rs, err := cc.indicatorService().Run(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			return cc.Renderer.ResultSet(rs)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum rows to return (0 = all)")

	return cmd
}

func newIndicatorExportCommand() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export <indicator>",
		Short: "Export an indicator's full result as CSV",
		Example: `  leapmeta indicator export "Revenue by City" --out revenue.csv`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			ind, rs, err := cc.indicatorService().Run(cmd.Context(), args[0], 0)
			if err != nil {
				return err
			}

			if out == "" || out == "-" {
				return indicator.WriteCSV(cmd.OutOrStdout(), rs)
			}
			f, err := os.Create(out) //nolint:gosec // path is chosen by the user
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", out, err)
			}
			if err := indicator.WriteCSV(f, rs); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			cc.Renderer.Success(fmt.Sprintf("Exported %s of %s to %s", output.Count(rs.Len(), "row"), ind.TargetTable, out))
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "Output file (default: stdout)")

	return cmd
}
