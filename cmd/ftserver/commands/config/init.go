package config

import (
	"fmt"

	"github.com/marmos91/ftserve/pkg/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample configuration file",
	Long: `Write a sample configuration file holding every setting at its default.

By default the file is created at $XDG_CONFIG_HOME/ftserve/config.yaml.
Use --config to choose another path.

Examples:
  # Initialize at the default location
  ftserver config init

  # Overwrite an existing file
  ftserver config init --force --config /etc/ftserve/config.yaml`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")

	var configPath string
	var err error

	if configFile != "" {
		err = config.InitConfigToPath(configFile, initForce)
		configPath = configFile
	} else {
		configPath, err = config.InitConfig(initForce)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", configPath)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Set server.root_dir to the directory to serve")
	_, _ = fmt.Fprintf(out, "  2. Start the server with: ftserver --config %s <port>\n", configPath)
	return nil
}
