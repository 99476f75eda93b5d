package commands

import (
	"fmt"
	"net"
	"strconv"

	"github.com/marmos91/ftserve/internal/cli/health"
	"github.com/marmos91/ftserve/internal/cli/output"
	proto "github.com/marmos91/ftserve/internal/protocol/ft"
	"github.com/marmos91/ftserve/pkg/adapter"
	"github.com/marmos91/ftserve/pkg/apiclient"
	"github.com/marmos91/ftserve/pkg/config"
	"github.com/spf13/cobra"
)

var (
	statusOutput string
	statusAPIURL string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status and workers",
	Long: `Display the status of a running ftserver through its status API.

The API must be enabled (api.enabled). Without --api-url the address is
taken from api.port in the configuration.

Examples:
  # Check the local server
  ftserver status

  # Check another server, as JSON
  ftserver status --api-url http://files.example.com:8090 -o json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAPIURL, "api-url", "", "status API URL (default: http://127.0.0.1:<api.port>)")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	printer, err := newPrinter(cmd, statusOutput)
	if err != nil {
		return err
	}

	url := statusAPIURL
	if url == "" {
		url = defaultAPIURL()
	}

	report := collectStatus(cmd, apiclient.New(url))

	if err := printer.Print(report); err != nil {
		return err
	}
	// JSON and YAML carry the workers inside the report.
	if printer.Format() == output.FormatTable && len(report.Workers) > 0 {
		printer.Println()
		if err := printer.Print(output.Workers(report.Workers)); err != nil {
			return err
		}
	}

	if !report.Healthy {
		return &ExitError{Code: proto.ExitFailure}
	}
	return nil
}

// collectStatus queries the liveness, readiness and workers endpoints.
// Failures are recorded in the report rather than returned.
func collectStatus(cmd *cobra.Command, client *apiclient.Client) health.Report {
	ctx := cmd.Context()
	report := health.Report{
		Server:  client.BaseURL(),
		Status:  health.StatusUnreachable,
		Workers: []adapter.WorkerStatus{},
	}

	live, err := client.Health(ctx)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	report.Status = "healthy"
	report.Healthy = true
	report.Service = live.Service
	report.StartedAt = live.StartedAt
	report.Uptime = live.Uptime

	ready, err := client.Ready(ctx)
	if err != nil {
		report.Status = health.StatusUnknown
		report.Error = err.Error()
		return report
	}
	report.Ready = ready.Ready
	report.ActiveWorkers = ready.ActiveWorkers
	if !ready.Ready {
		report.Error = ready.Reason
		return report
	}

	workers, err := client.Workers(ctx)
	if err != nil {
		report.Error = fmt.Sprintf("list workers: %v", err)
		return report
	}
	report.Workers = workers
	report.ActiveWorkers = len(workers)
	return report
}

func defaultAPIURL() string {
	port := config.DefaultAPIPort
	if cfg, err := config.Load(GetConfigFile()); err == nil {
		port = cfg.API.Port
	}
	return "http://" + net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
}
