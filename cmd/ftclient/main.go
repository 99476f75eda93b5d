package main

import (
	"os"

	"github.com/marmos91/ftserve/cmd/ftclient/commands"
)

// Build-time variables injected via ldflags
var version = "dev"

func main() {
	commands.Version = version

	if err := commands.Execute(); err != nil {
		commands.Report(err)
		os.Exit(commands.ExitCode(err))
	}
}
