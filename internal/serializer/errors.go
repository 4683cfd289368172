package serializer

import (
	"errors"
	"fmt"
)

var (
	// ErrStopped is returned for commands submitted after Stop, and for
	// commands still queued when the worker exits abnormally.
	ErrStopped = errors.New("serializer: stopped")

	// ErrAlreadyStarted is returned by Start when the worker is running or
	// has already run.
	ErrAlreadyStarted = errors.New("serializer: already started")

	// ErrNilCommand is returned by Submit for a nil command.
	ErrNilCommand = errors.New("serializer: nil command")

	// ErrMalformedEntry terminates the worker loop.
	ErrMalformedEntry = errors.New("serializer: malformed queue entry")

	// ErrStopTimeout is returned when the worker does not exit within the
	// Stop timeout.
	ErrStopTimeout = errors.New("serializer: timed out waiting for worker to exit")

	// ErrCommandFailed matches every *CommandError via errors.Is.
	ErrCommandFailed = errors.New("serializer: command failed")

	// ErrCommandPanicked wraps the value recovered from a panicking command.
	ErrCommandPanicked = errors.New("serializer: command panicked")
)

// CommandError carries the failure of one command executed by the worker.
// It matches ErrCommandFailed and unwraps to the command's own error.
type CommandError struct {
	// Seq is the submission sequence number of the command.
	Seq uint64
	Err error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("serializer: command %d failed: %v", e.Seq, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrCommandFailed.
func (e *CommandError) Is(target error) bool {
	return target == ErrCommandFailed
}
