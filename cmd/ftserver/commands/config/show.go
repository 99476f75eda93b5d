package config

import (
	"github.com/marmos91/ftserve/internal/cli/output"
	"github.com/marmos91/ftserve/pkg/config"
	"github.com/spf13/cobra"
)

var showOutput string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	Long: `Display the configuration after defaults, the config file and FTSERVE_*
environment overrides are applied.

By default outputs YAML in the layout of the config file. The table and
JSON formats list one dotted key per entry, as used by FTSERVE_* variables.

Examples:
  # Show as YAML
  ftserver config show

  # Show as a key/value table
  ftserver config show -o table

  # Show a specific config file as JSON
  ftserver config show --config /etc/ftserve/config.yaml -o json`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "Output format (table|json|yaml)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	format, err := output.ParseFormat(showOutput)
	if err != nil {
		return err
	}

	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	printer := output.NewPrinter(cmd.OutOrStdout(), format, false)
	if format == output.FormatYAML {
		return printer.Print(cfg)
	}
	return printer.Print(output.Settings(config.Settings(cfg)))
}
