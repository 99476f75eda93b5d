// Package commands implements the ftserver command line.
package commands

import (
	"github.com/marmos91/ftserve/cmd/ftserver/commands/config"
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile  string
	logLevel string
	rootDir  string
)

// rootCmd serves files when given a port and hosts the management
// subcommands otherwise.
var rootCmd = &cobra.Command{
	Use:   "ftserver port",
	Short: "ftserver - two-connection file transfer server",
	Long: `ftserver listens for control connections on the given port. Each request
either lists the served directory (-l) or fetches one file (-g). Results are
delivered on a second connection that the server opens back to the client's
data port.

Examples:
  # Serve the current directory on port 4000
  ftserver 4000

  # Serve /srv/files with debug logging
  ftserver 4000 --root /srv/files --log-level debug

  # Override configuration through the environment
  FTSERVE_SERVER_MAX_WORKERS=20 ftserver 4000`,
	Args:          cobra.ArbitraryArgs,
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/ftserve/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (DEBUG, INFO, WARN, ERROR)")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "directory to serve (overrides server.root_dir)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(config.Cmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
