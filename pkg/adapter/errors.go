package adapter

import (
	"errors"

	"github.com/marmos91/ftserve/internal/protocol/ft"
)

// ErrRegistryFull is returned by Registry.Spawn when every slot is held by a
// worker that has not been reaped. It matches ft.ForkFailure.
var ErrRegistryFull = ft.NewError(ft.ErrFork, "spawn worker", errors.New("worker registry full"))

// ErrDuplicateWorker is returned by Registry.Spawn when the ID is already
// registered.
var ErrDuplicateWorker = errors.New("duplicate worker id")

// ErrShutdownTimeout is returned by Serve when workers were still running at
// the end of the shutdown timeout and had to be force-closed.
var ErrShutdownTimeout = errors.New("shutdown timeout exceeded")
