package commands

import (
	"github.com/leapstack-labs/leapmeta/internal/cli/output"
	"github.com/leapstack-labs/leapmeta/internal/indicator"
	"github.com/spf13/cobra"
)

// NewDashboardCommand creates the dashboard command.
func NewDashboardCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Run every saved indicator",
		Long: `Run every saved indicator and show its result. Indicators that fail to
run are reported as warnings and the rest are still shown.`,
		Example: `  # All indicators, first 10 rows each
  leapmeta dashboard --limit 10

  # As JSON for a frontend
  leapmeta dashboard --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			panels, err := cc.indicatorService().Dashboard(cmd.Context())
			if panels == nil && err != nil {
				return err
			}
			warn(cc.Renderer, err)

			r := cc.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				if panels == nil {
					panels = []indicator.Panel{}
				}
				return r.JSON(panels)
			}

			r.Header(1, "Dashboard")
			if len(panels) == 0 {
				r.Muted("No indicators saved")
				return nil
			}
			for _, p := range panels {
				r.Println("")
				r.Header(2, p.Indicator.Title)
				r.Muted(p.Indicator.TargetTable)
				if p.Result == nil {
					r.StatusLine(p.Indicator.TargetTable, "error", "failed to run")
					continue
				}
				rs := p.Result
				if limit > 0 && rs.Len() > limit {
					trimmed := *rs
					trimmed.Rows = rs.Rows[:limit]
					rs = &trimmed
				}
				if err := r.ResultSet(rs); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum rows to show per indicator (0 = all)")

	return cmd
}
