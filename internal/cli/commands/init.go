package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/leapmeta/internal/cli/config"
	"github.com/leapstack-labs/leapmeta/internal/cli/output"
	"github.com/spf13/cobra"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool
	var example bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new LeapMeta project",
		Long: `Initialize a new LeapMeta project with default directory structure and configuration.

This creates:
  - leapmeta.yaml configuration file
  - inbox/ directory watched by 'leapmeta serve'
  - queries/ directory for indicator query definitions

Use --example to also add sample CSV uploads and a joined indicator query.`,
		Example: `  # Initialize in current directory
  leapmeta init

  # Initialize with sample data
  leapmeta init --example

  # Initialize in a new directory
  leapmeta init my-project --example

  # Force overwrite existing config
  leapmeta init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			mode := output.Mode(config.DefaultOutput)
			if cfg := config.FromContext(cmd.Context()); cfg != nil {
				mode = output.Mode(cfg.OutputFormat)
			}
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

			template := "minimal"
			if example {
				template = "example"
			}
			return runInit(r, dir, template, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	cmd.Flags().BoolVar(&example, "example", false, "Create an example project with sample uploads and queries")

	return cmd
}

func runInit(r *output.Renderer, dir, template string, force bool) error {
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(dir, "leapmeta.yaml")
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("leapmeta.yaml already exists. Use --force to overwrite")
	}

	if err := copyTemplate(template, dir, force); err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}

	files, _ := listTemplateFiles(template)
	groups := groupTemplateFiles(files)

	sections := []struct{ key, title string }{
		{"config", "Configuration"},
		{"data", "Sample Data"},
		{"queries", "Queries"},
	}
	for i, s := range sections {
		if len(groups[s.key]) == 0 {
			continue
		}
		if i > 0 {
			r.Println("")
		}
		r.Header(2, s.title)
		for _, f := range groups[s.key] {
			r.StatusLine(f, "success", "")
		}
	}

	r.Println("")
	r.Success("LeapMeta project initialized!")
	r.Println("")
	r.Println("Next steps:")
	if template == "example" {
		r.Println("  leapmeta ingest data/raw_customers.csv          Load the sample customers")
		r.Println("  leapmeta ingest data/raw_orders.csv             Load the sample orders")
		r.Println("  leapmeta indicator preview queries/revenue_by_city.yaml")
		r.Println("  leapmeta indicator save \"Revenue by City\" queries/revenue_by_city.yaml")
		return nil
	}
	r.Println("  1. Drop CSV or JSON files into inbox/ or run 'leapmeta ingest <file>'")
	r.Println("  2. Describe an indicator in queries/")
	r.Println("  3. Run 'leapmeta indicator preview <file>' to check it")
	r.Println("  4. Run 'leapmeta serve' to expose the HTTP API")

	return nil
}
