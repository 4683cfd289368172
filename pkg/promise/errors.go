package promise

import "errors"

var (
	// ErrAlreadyFulfilled is the panic value (wrapped) raised when a completed
	// promise is completed again.
	ErrAlreadyFulfilled = errors.New("promise: already fulfilled")

	// ErrTimeout is returned when a reader's timeout or deadline expires
	// before the promise completes.
	ErrTimeout = errors.New("promise: timed out waiting for result")

	// ErrNilError is the panic value raised by Fail(nil).
	ErrNilError = errors.New("promise: cannot fail with a nil error")
)
