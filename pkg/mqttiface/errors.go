package mqttiface

import (
	"errors"

	"github.com/nerrad567/mqtt-interface/internal/serializer"
)

var (
	// ErrConnectionFailed is returned by Start when the broker cannot be
	// reached or the handshake does not complete in time.
	ErrConnectionFailed = errors.New("mqttiface: connection failed")

	// ErrOperationRejected is returned when a command ran but the broker
	// client reported non-success.
	ErrOperationRejected = errors.New("mqttiface: operation rejected")

	// ErrNotSubscribed is returned when waiting on, or unsubscribing from, a
	// topic that has no queue or callback.
	ErrNotSubscribed = errors.New("mqttiface: topic not subscribed")

	// ErrTimeout matches every wait that expired.
	ErrTimeout = errors.New("mqttiface: timed out")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("mqttiface: already started")

	// ErrNotStarted is returned by HealthCheck before Start.
	ErrNotStarted = errors.New("mqttiface: not started")

	// ErrNotConnected is returned by HealthCheck while the broker
	// connection is down.
	ErrNotConnected = errors.New("mqttiface: not connected to broker")

	// ErrStopped is returned by operations submitted after Stop.
	ErrStopped = serializer.ErrStopped
)
