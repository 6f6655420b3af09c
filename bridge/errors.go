package bridge

import (
	"errors"
	"fmt"

	"github.com/rack-wine/bridge/protocol"
)

// Sentinel errors for the five error kinds the bridge surfaces. Use
// errors.Is against these; for worker errors, errors.As against
// *WorkerError recovers the originating protocol.Status.
var (
	// ErrTransport is a socket fault, wrong magic, or short payload.
	// The session that produced it must not be used again.
	ErrTransport = errors.New("bridge: transport error")

	// ErrNotInitialized means the plug-in isn't loaded or the session
	// isn't armed yet. The session remains usable.
	ErrNotInitialized = errors.New("bridge: not initialized")

	// ErrInvalidParameter means an index or id was out of range. The
	// session remains usable.
	ErrInvalidParameter = errors.New("bridge: invalid parameter")

	// ErrWorker wraps an opaque Error status from the worker. The
	// session remains usable.
	ErrWorker = errors.New("bridge: worker error")

	// ErrSetup is a construction or arming failure: the worker could
	// not be spawned, no port in range accepted a connection, shared
	// memory could not be created or mapped, or the plug-in path could
	// not be translated. All partial resources are released before
	// this is returned.
	ErrSetup = errors.New("bridge: setup failed")
)

// WorkerError carries the status the worker returned alongside ErrWorker.
type WorkerError struct {
	Status protocol.Status
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("bridge: worker returned %s", e.Status)
}

func (e *WorkerError) Unwrap() error {
	return ErrWorker
}

// statusError maps a response status to the error taxonomy of §7. Ok
// maps to a nil error.
func statusError(status protocol.Status) error {
	switch protocol.NormalizeStatus(status) {
	case protocol.StatusOk:
		return nil
	case protocol.StatusNotLoaded, protocol.StatusNotInitialized:
		return ErrNotInitialized
	case protocol.StatusInvalidParam:
		return ErrInvalidParameter
	default:
		return &WorkerError{Status: status}
	}
}
