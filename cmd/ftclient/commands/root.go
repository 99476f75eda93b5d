// Package commands implements the ftclient command line.
package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/marmos91/ftserve/internal/cli/output"
	"github.com/marmos91/ftserve/internal/logger"
	proto "github.com/marmos91/ftserve/internal/protocol/ft"
	"github.com/marmos91/ftserve/pkg/client"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// UsageLine is printed to stderr on a malformed command line.
const UsageLine = "USAGE: ftclient <server_host> <server_port> (-l | -g <file>) <data_port>"

// ErrUsage marks a malformed command line.
var ErrUsage = errors.New(UsageLine)

var (
	// Version information injected at build time.
	Version = "dev"

	listFlag     bool
	getFile      string
	outputFormat string
	saveDir      string
	timeout      time.Duration
	logLevel     string

	// saveFs receives fetched files. Tests swap in a memory filesystem.
	saveFs afero.Fs = afero.NewOsFs()
)

var rootCmd = &cobra.Command{
	Use:   "ftclient <server_host> <server_port> (-l | -g <file>) <data_port>",
	Short: "ftclient - client for the ftserver file transfer protocol",
	Long: `ftclient sends one request to an ftserver and receives the result on a
local data port that the server connects back to.

Examples:
  # List the server's directory, receiving on port 5001
  ftclient files.example.com 4000 -l 5001

  # Fetch report.txt into the current directory
  ftclient files.example.com 4000 -g report.txt 5001

  # Fetch into /tmp and print the summary as JSON
  ftclient files.example.com 4000 -g report.txt 5001 --dir /tmp -o json`,
	Version:       Version,
	Args:          cobra.ArbitraryArgs,
	RunE:          run,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. This is called by main.main().
func Execute() error {
	rootCmd.Version = Version
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.Flags().BoolVarP(&listFlag, "list", "l", false, "list the server's directory")
	rootCmd.Flags().StringVarP(&getFile, "get", "g", "", "fetch the named file")
	rootCmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table|json|yaml)")
	rootCmd.Flags().StringVar(&saveDir, "dir", ".", "directory fetched files are saved in")
	rootCmd.Flags().DurationVar(&timeout, "timeout", client.DefaultTimeout, "bound on each phase of the exchange")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "WARN", "log level (DEBUG, INFO, WARN, ERROR)")
	rootCmd.MarkFlagsMutuallyExclusive("list", "get")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// listResult is the JSON and YAML form of a listing.
type listResult struct {
	Transfer output.Transfer `json:"transfer" yaml:"transfer"`
	Entries  []string        `json:"entries" yaml:"entries"`
}

func run(cmd *cobra.Command, args []string) error {
	req, serverAddr, err := parseArgs(args)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{Level: logLevel, Format: "text", Output: "stderr"}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	printer := output.NewPrinter(out, format, logger.IsTerminal(out))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := client.New(serverAddr, req.DataPort)
	c.Timeout = timeout

	start := time.Now()
	body, err := c.Do(ctx, req)
	if err != nil {
		return err
	}

	transfer := output.Transfer{
		Server:   serverAddr,
		Command:  req.Command.Name(),
		Filename: req.Filename,
		Bytes:    len(body),
		Duration: time.Since(start).Round(time.Millisecond).String(),
	}

	if req.Command == proto.CommandList {
		entries := proto.ParseListing(body)
		transfer.Entries = len(entries)
		if format != output.FormatTable {
			return printer.Print(listResult{Transfer: transfer, Entries: entries})
		}
		if err := printer.Print(output.Listing(entries)); err != nil {
			return err
		}
		printer.Println()
		return printer.Print(transfer)
	}

	saved, err := saveFetched(req.Filename, body)
	if err != nil {
		return err
	}
	transfer.SavedAs = saved
	if format == output.FormatTable && filepath.Base(saved) != filepath.Base(req.Filename) {
		printer.Warning(fmt.Sprintf("%s exists, saved as %s", filepath.Base(req.Filename), saved))
	}
	return printer.Print(transfer)
}

// parseArgs turns the positional arguments and the -l/-g flags into a
// request and the server's control address.
func parseArgs(args []string) (*proto.Request, string, error) {
	if len(args) != 3 || listFlag == (getFile != "") {
		return nil, "", ErrUsage
	}

	host := args[0]
	serverPort, err := strconv.Atoi(args[1])
	if err != nil || serverPort < 1 || serverPort > proto.MaxPort {
		return nil, "", ErrUsage
	}
	dataPort, err := strconv.Atoi(args[2])
	if err != nil || dataPort < 1 || dataPort > proto.MaxPort {
		return nil, "", ErrUsage
	}

	req := &proto.Request{Command: proto.CommandList, DataPort: dataPort}
	if getFile != "" {
		req.Command = proto.CommandGet
		req.Filename = getFile
	}
	return req, net.JoinHostPort(host, strconv.Itoa(serverPort)), nil
}

// saveFetched writes a fetched file into saveDir without overwriting.
func saveFetched(name string, data []byte) (string, error) {
	fs := saveFs
	if saveDir != "" && saveDir != "." {
		if err := fs.MkdirAll(saveDir, 0o755); err != nil {
			return "", fmt.Errorf("create %s: %w", saveDir, err)
		}
		fs = afero.NewBasePathFs(fs, saveDir)
	}
	saved, err := client.SaveFile(fs, name, data)
	if err != nil {
		return "", err
	}
	return filepath.Join(saveDir, saved), nil
}

// ExitCode returns the process exit status for err: 2 when the server never
// opened the data connection, 1 for any other failure.
func ExitCode(err error) int {
	if err == nil {
		return proto.ExitOK
	}
	if proto.ExitStatus(err) == proto.ExitDataChannel {
		return proto.ExitDataChannel
	}
	return proto.ExitFailure
}

// Report writes err to stderr the way the command line reports it: the
// usage line, the server's status message, or the error.
func Report(err error) {
	var statusErr *client.StatusError
	switch {
	case errors.Is(err, ErrUsage):
		fmt.Fprintln(os.Stderr, UsageLine)
	case errors.As(err, &statusErr):
		fmt.Fprintln(os.Stderr, string(statusErr.Status))
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(os.Stderr, "Interrupted")
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
}
