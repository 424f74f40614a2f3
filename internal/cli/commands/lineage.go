package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/leapstack-labs/leapmeta/internal/cli/output"
	"github.com/leapstack-labs/leapmeta/internal/lineage"
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/spf13/cobra"
)

// LineageOptions holds options for the lineage command.
type LineageOptions struct {
	Target string
	Layer  string
	Query  bool
}

// NewLineageCommand creates the lineage command.
func NewLineageCommand() *cobra.Command {
	opts := &LineageOptions{}

	cmd := &cobra.Command{
		Use:   "lineage",
		Short: "Show the lineage log",
		Long: `Display the data lineage log: every table creation, schema change, row
load and indicator definition, oldest first.

Output adapts to environment:
  - Terminal: Styled, colored output
  - Piped/Scripted: Markdown format (agent-friendly)

Use --output to override: auto, text, markdown, json`,
		Example: `  # Everything that happened
  leapmeta lineage

  # History of one table, with the recorded statements
  leapmeta lineage --target raw_sales --query

  # Only indicator definitions, as JSON
  leapmeta lineage --layer indicator --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLineage(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Target, "target", "", "Only show records for this target table")
	cmd.Flags().StringVar(&opts.Layer, "layer", "", "Only show records of this layer (raw, indicator)")
	cmd.Flags().BoolVar(&opts.Query, "query", false, "Show the recorded statements")

	return cmd
}

func runLineage(cmd *cobra.Command, opts *LineageOptions) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	rec := lineage.NewRecorder(cc.Store, cc.Store.Dialect(), cc.Logger)
	records, err := rec.List(cmd.Context(), opts.Target)
	if err != nil {
		return err
	}
	if opts.Layer != "" {
		records = filterLayer(records, core.Layer(strings.ToLower(opts.Layer)))
	}

	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(records)
	}

	r.Header(1, "Lineage")
	if opts.Target != "" {
		r.KeyValue("Target", opts.Target)
	}
	if len(records) == 0 {
		r.Muted("No lineage records")
		return nil
	}

	rows := make([][]string, len(records))
	for i, l := range records {
		rows[i] = []string{
			l.CreatedAt.Local().Format(time.DateTime),
			string(l.Layer),
			l.SourceTable,
			l.TargetTable,
			fmt.Sprintf("%d", l.Rows),
		}
	}
	r.Table([]string{"created", "layer", "source", "target", "rows"}, rows)

	if opts.Query {
		for _, l := range records {
			r.Println("")
			r.Header(3, fmt.Sprintf("%s → %s (%s)", l.SourceTable, l.TargetTable, l.ID))
			r.Println(l.TransformationQuery)
		}
	}
	r.Println("")
	r.Muted(output.Count(len(records), "record"))
	return nil
}

func filterLayer(records []core.LineageRecord, layer core.Layer) []core.LineageRecord {
	out := records[:0]
	for _, l := range records {
		if l.Layer == layer {
			out = append(out, l)
		}
	}
	return out
}
