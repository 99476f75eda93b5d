package commands

import (
	"fmt"

	"github.com/marmos91/ftserve/internal/cli/output"
	"github.com/marmos91/ftserve/internal/logger"
	"github.com/marmos91/ftserve/pkg/config"
	"github.com/spf13/cobra"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// newPrinter returns a printer for cmd's output in the given format.
func newPrinter(cmd *cobra.Command, format string) (*output.Printer, error) {
	f, err := output.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	out := cmd.OutOrStdout()
	return output.NewPrinter(out, f, logger.IsTerminal(out)), nil
}
