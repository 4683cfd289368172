package asyncqueue

import "errors"

var (
	// ErrTimeout is returned when no item arrives before the timeout.
	ErrTimeout = errors.New("asyncqueue: timed out waiting for item")

	// ErrClosed is returned by consumers once the queue is closed and empty.
	ErrClosed = errors.New("asyncqueue: queue closed")
)
