package commands

import (
	"fmt"
	"unicode/utf8"

	"github.com/leapstack-labs/leapmeta/internal/cli/output"
	"github.com/leapstack-labs/leapmeta/internal/ingest"
	"github.com/spf13/cobra"
)

// IngestOptions holds options for the ingest command.
type IngestOptions struct {
	Table     string
	Mode      string
	Format    string
	Delimiter string
	Encoding  string
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand() *cobra.Command {
	opts := &IngestOptions{}

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Load a CSV or JSON file into a raw table",
		Long: `Load a CSV or JSON file into a raw table.

Column names are normalized and column types are inferred from the values.
In create mode the table must not exist yet. In append mode it must exist,
and any columns the file adds are created before the rows are inserted.
Every ingest is recorded in the lineage log.

Output adapts to environment:
  - Terminal: Styled, colored output
  - Piped/Scripted: Markdown format (agent-friendly)

Use --output to override: auto, text, markdown, json`,
		Example: `  # Create raw_sales from sales.csv
  leapmeta ingest sales.csv

  # Append a second month to an existing table
  leapmeta ingest sales_feb.csv --table raw_sales --mode append

  # Semicolon-separated Latin-1 export
  leapmeta ingest export.csv --delimiter ";" --encoding latin1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.Table, "table", "", "Target table (default: raw prefix + file name)")
	cmd.Flags().StringVar(&opts.Mode, "mode", string(ingest.ModeCreate), "Ingest mode: create, append")
	cmd.Flags().StringVar(&opts.Format, "format", "", "File format: csv, json (default: from extension)")
	cmd.Flags().StringVar(&opts.Delimiter, "delimiter", "", "CSV field delimiter (default: , or tab for .tsv)")
	cmd.Flags().StringVar(&opts.Encoding, "encoding", "", "Source encoding, e.g. latin1 (default: utf-8)")

	return cmd
}

func runIngest(cmd *cobra.Command, path string, opts *IngestOptions) error {
	mode, err := ingest.ParseMode(opts.Mode)
	if err != nil {
		return err
	}
	ropts, err := opts.readOptions()
	if err != nil {
		return err
	}

	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	table := opts.Table
	if table == "" {
		if table, err = ingest.TableForFile(cc.Cfg.RawPrefix, path); err != nil {
			return err
		}
	}

	res, err := cc.ingestService().IngestFile(cmd.Context(), path, table, mode, ropts)
	if err != nil && (res == nil || res.Rows == 0) {
		return err
	}
	warn(cc.Renderer, err)

	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(res)
	}
	printIngestResult(r, path, res)
	return nil
}

func (o *IngestOptions) readOptions() (ingest.ReadOptions, error) {
	ropts := ingest.ReadOptions{
		Format:   ingest.Format(o.Format),
		Encoding: o.Encoding,
	}
	if o.Delimiter != "" {
		d, size := utf8.DecodeRuneInString(o.Delimiter)
		if size != len(o.Delimiter) {
			return ropts, fmt.Errorf("delimiter must be a single character, got %q", o.Delimiter)
		}
		ropts.Delimiter = d
	}
	return ropts, nil
}

func printIngestResult(r *output.Renderer, path string, res *ingest.Result) {
	r.Header(1, "Ingest")
	r.KeyValue("File", path)
	r.KeyValue("Table", res.Table)
	r.KeyValue("Mode", string(res.Mode))
	r.KeyValue("Rows", fmt.Sprintf("%d", res.Rows))
	r.Println("")

	r.Header(2, "Columns")
	added := make(map[string]bool, len(res.Diff.MissingColumns))
	for _, c := range res.Diff.MissingColumns {
		added[c.Name] = true
	}
	for _, c := range res.Columns {
		detail := "(" + string(c.Type) + ")"
		if res.Mode == ingest.ModeAppend && added[c.Name] {
			detail += " added"
		}
		r.StatusLine(c.Name, "success", detail)
	}

	r.Println("")
	r.Success(fmt.Sprintf("Loaded %s into %s", output.Count(int(res.Rows), "row"), res.Table))
}
