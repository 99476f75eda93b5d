package commands

import (
	"errors"
	"fmt"

	"github.com/marmos91/ftserve/internal/protocol/ft"
)

// UsageLine is printed to stderr when the port argument is missing or
// invalid.
const UsageLine = "USAGE: ftserver port"

// ErrUsage marks a command line that names no valid port.
var ErrUsage = errors.New(UsageLine)

// ExitError carries the process exit status for an error.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode returns the process exit status for err: the code of an
// *ExitError, the protocol exit status of a classified error, 1 otherwise.
// A non-nil error never maps to 0.
func ExitCode(err error) int {
	if err == nil {
		return ft.ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if code := ft.ExitStatus(err); code != ft.ExitOK {
		return code
	}
	return ft.ExitFailure
}

// IsUsage reports whether err is a command line usage error.
func IsUsage(err error) bool {
	return errors.Is(err, ErrUsage)
}

func usageError() error {
	return &ExitError{Code: ft.ExitFailure, Err: ErrUsage}
}
