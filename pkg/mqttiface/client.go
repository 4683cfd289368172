package mqttiface

import (
	"time"

	"github.com/nerrad567/mqtt-interface/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqtt-interface/pkg/asyncqueue"
)

// Message is an inbound broker message.
type Message = mqtt.Message

// MessageQueue is the per-topic queue returned by Subscribe.
type MessageQueue = asyncqueue.Queue[Message]

// Client is the broker client driven by an Interface.
//
// Subscribe, Unsubscribe and Publish are only ever called from the
// serializer worker. They return an error when the call could not be made
// and false when the broker refused it. *mqtt.Client implements Client.
type Client interface {
	SetOnConnect(func())
	SetOnMessage(func(Message))
	Connect(timeout time.Duration) error
	Subscribe(topic string, qos byte) (bool, error)
	Unsubscribe(topic string) (bool, error)
	Publish(topic string, payload []byte, qos byte, retained bool) (bool, error)
	Disconnect()
	IsConnected() bool
}

// connectionLostNotifier is implemented by clients that report dropped
// connections.
type connectionLostNotifier interface {
	SetOnConnectionLost(func(err error))
}

// Logger is the logging interface used by Interface.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
