package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/marmos91/ftserve/cmd/ftserver/commands"
)

// Build-time variables injected via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	err := commands.Execute()
	if err == nil {
		return
	}

	var exitErr *commands.ExitError
	switch {
	case commands.IsUsage(err):
		fmt.Fprintln(os.Stderr, commands.UsageLine)
	case errors.As(err, &exitErr) && exitErr.Err == nil:
		// The command already reported the failure.
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(commands.ExitCode(err))
}
