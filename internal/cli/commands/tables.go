package commands

import (
	"strings"

	"github.com/leapstack-labs/leapmeta/internal/catalog"
	"github.com/leapstack-labs/leapmeta/internal/cli/output"
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/spf13/cobra"
)

// NewTablesCommand creates the tables command.
func NewTablesCommand() *cobra.Command {
	var prefix string
	var raw, indicators bool

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List the tables in the target database",
		Long: `List the user tables of the target database. The lineage and mapping
tables that leapmeta maintains for itself are left out.`,
		Example: `  # All tables
  leapmeta tables

  # Only raw tables
  leapmeta tables --raw

  # Tables with a custom prefix, as JSON
  leapmeta tables --prefix stage_ --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			switch {
			case raw:
				prefix = cc.Cfg.RawPrefix
			case indicators:
				prefix = cc.Cfg.IndicatorPrefix
			}

			tables, err := catalog.Tables(cmd.Context(), cc.Store, prefix)
			if err != nil {
				return err
			}

			r := cc.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(tables)
			}
			r.Header(1, "Tables")
			if len(tables) == 0 {
				r.Muted("No tables found")
				return nil
			}
			for _, t := range tables {
				r.StatusLine(t, "", "")
			}
			r.Println("")
			r.Muted(output.Count(len(tables), "table"))
			return nil
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "Only list tables starting with this prefix")
	cmd.Flags().BoolVar(&raw, "raw", false, "Only list raw tables")
	cmd.Flags().BoolVar(&indicators, "indicators", false, "Only list indicator tables")
	cmd.MarkFlagsMutuallyExclusive("prefix", "raw", "indicators")

	return cmd
}

// NewColumnsCommand creates the columns command.
func NewColumnsCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "columns <table> [table...]",
		Short: "Show the live columns of tables",
		Long: `Show the columns of one or more tables as the database reports them.
The surrogate key and audit columns are hidden unless --all is given.`,
		Example: `  # Columns of one table
  leapmeta columns raw_sales

  # Include key and audit columns
  leapmeta columns raw_sales raw_customers --all`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			schemas, err := catalog.Describe(cmd.Context(), cc.Store, args, all)
			if err != nil {
				return err
			}

			r := cc.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(schemas)
			}
			for i, s := range schemas {
				if i > 0 {
					r.Println("")
				}
				printSchema(r, s)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Include key and audit columns")

	return cmd
}

func printSchema(r *output.Renderer, s core.TableSchema) {
	r.Header(2, s.Name)
	if len(s.Columns) == 0 {
		r.Muted("No columns")
		return
	}
	rows := make([][]string, len(s.Columns))
	for i, c := range s.Columns {
		nullable := "NO"
		if c.Nullable {
			nullable = "YES"
		}
		rows[i] = []string{c.Name, strings.ToUpper(c.DDLType()), string(c.Type), nullable}
	}
	r.Table([]string{"column", "type", "logical", "nullable"}, rows)
}
