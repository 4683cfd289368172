package mqttiface

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/mqtt-interface/internal/infrastructure/config"
	"github.com/nerrad567/mqtt-interface/internal/infrastructure/metrics"
	"github.com/nerrad567/mqtt-interface/internal/router"
	"github.com/nerrad567/mqtt-interface/internal/serializer"
	"github.com/nerrad567/mqtt-interface/internal/workers"
	"github.com/nerrad567/mqtt-interface/pkg/promise"
)

type state int

const (
	stateIdle state = iota
	stateRunning
	stateStopped
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateRunning:
		return "running"
	default:
		return "stopped"
	}
}

// Interface coordinates all access to one broker client.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Start and Stop are sequenced: they must not race each other.
type Interface struct {
	cfg    config.InterfaceConfig
	qos    byte
	client Client

	commands *serializer.Serializer
	routes   *router.Router
	pool     *workers.Pool

	logger  Logger
	metrics *metrics.Metrics

	mu    sync.Mutex
	state state

	// handshake is completed by the first OnConnect; read without mu
	// because Start holds mu while waiting on it.
	handshake atomic.Pointer[promise.Promise[struct{}]]

	// delivering gates inbound messages; cleared first on Stop.
	delivering atomic.Bool
	handshakes atomic.Int64
}

// New creates an Interface over client using the interface and QoS
// settings in cfg. It does not connect.
func New(cfg *config.Config, client Client) *Interface {
	return &Interface{
		cfg:      cfg.Interface,
		qos:      byte(cfg.MQTT.QoS),
		client:   client,
		commands: serializer.New(),
		routes:   router.New(),
		pool:     workers.NewPool(cfg.Interface.Workers),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger. Call before Start.
func (i *Interface) SetLogger(logger Logger) {
	i.logger = logger
	i.commands.SetLogger(logger)
}

// SetMetrics sets the metrics sink. Call before Start.
func (i *Interface) SetMetrics(m *metrics.Metrics) {
	i.metrics = m
	i.commands.SetMetrics(m)
	i.routes.SetMetrics(m)
}

// Start connects to the broker, waits for the connection handshake and
// starts the command worker.
//
// Commands submitted before Start are queued and run once it succeeds.
//
// Parameters:
//   - ctx: Bounds the handshake wait together with connect_timeout
//
// Returns:
//   - error: wraps ErrConnectionFailed if the broker is unreachable or the
//     handshake does not complete in time; ErrAlreadyStarted or ErrStopped
//     on a second Start
func (i *Interface) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	switch i.state {
	case stateRunning:
		return ErrAlreadyStarted
	case stateStopped:
		return ErrStopped
	}

	// A late handshake from a failed attempt must not count as the first.
	i.handshakes.Store(0)
	handshake := promise.New[struct{}]()
	i.handshake.Store(handshake)

	i.client.SetOnConnect(i.handleConnect)
	i.client.SetOnMessage(i.handleMessage)
	if n, ok := i.client.(connectionLostNotifier); ok {
		n.SetOnConnectionLost(i.handleConnectionLost)
	}
	i.delivering.Store(true)

	timeout := i.cfg.GetConnectTimeout()
	if err := i.client.Connect(timeout); err != nil {
		i.delivering.Store(false)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err := handshake.Await(waitCtx); err != nil {
		i.delivering.Store(false)
		i.client.Disconnect()
		return fmt.Errorf("%w: waiting for handshake: %w", ErrConnectionFailed, err)
	}

	if err := i.commands.Start(); err != nil {
		i.delivering.Store(false)
		i.client.Disconnect()
		return fmt.Errorf("starting command worker: %w", err)
	}

	i.state = stateRunning
	i.metrics.SetConnected(true)
	i.logger.Info("mqtt interface started", "workers", i.pool.Size())
	return nil
}

// Stop shuts the interface down:
//  1. stops routing inbound messages
//  2. stops the command worker after the commands already queued
//  3. disconnects from the broker
//  4. closes every subscription queue, waking blocked waiters
//  5. waits for delegated waits to finish
//
// Stop is idempotent. It never panics; problems are logged and returned.
//
// Returns:
//   - error: joined errors from the worker (for example a stop timeout)
//     and from draining the worker pool
func (i *Interface) Stop() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.state == stateStopped {
		return nil
	}
	wasRunning := i.state == stateRunning
	i.state = stateStopped

	i.delivering.Store(false)

	timeout := i.cfg.GetShutdownTimeout()
	var errs []error

	if err := i.commands.Stop(timeout); err != nil {
		errs = append(errs, fmt.Errorf("command worker: %w", err))
	}

	if wasRunning {
		i.client.Disconnect()
	}
	i.routes.Close()

	if err := i.pool.Shutdown(timeout); err != nil {
		errs = append(errs, fmt.Errorf("worker pool: %w", err))
	}

	i.metrics.SetConnected(false)

	if err := errors.Join(errs...); err != nil {
		i.logger.Error("mqtt interface stopped with errors", "error", err)
		return fmt.Errorf("stopping mqtt interface: %w", err)
	}

	i.logger.Info("mqtt interface stopped",
		"commands_executed", i.commands.Executed(),
		"commands_failed", i.commands.Failed(),
	)
	return nil
}

// handleConnect runs on the client's goroutine after every handshake.
// The first completes Start; later ones restore subscriptions.
func (i *Interface) handleConnect() {
	n := i.handshakes.Add(1)
	if n == 1 {
		if handshake := i.handshake.Load(); handshake != nil {
			handshake.Fulfill(struct{}{})
		}
		return
	}

	i.metrics.SetConnected(true)
	i.metrics.Reconnected()
	i.resubscribe()
}

// handleConnectionLost runs on the client's goroutine when the connection drops.
func (i *Interface) handleConnectionLost(err error) {
	i.metrics.SetConnected(false)
	i.logger.Warn("broker connection lost", "error", err)
}

// resubscribe queues a subscribe command for every routed topic. The broker
// session is clean, so subscriptions do not survive a reconnect.
func (i *Interface) resubscribe() {
	topics := i.routes.Topics()
	i.logger.Info("broker reconnected, restoring subscriptions", "topics", len(topics))

	for _, topic := range topics {
		i.commands.Submit(func() (any, error) {
			ok, err := i.client.Subscribe(topic, i.qos)
			switch {
			case err != nil:
				i.logger.Warn("restoring subscription failed", "topic", topic, "error", err)
			case !ok:
				i.metrics.OperationRejected(opSubscribe)
				i.logger.Warn("restoring subscription rejected", "topic", topic)
			}
			return ok, err
		})
	}
}

// handleMessage runs on the client's delivery goroutine.
func (i *Interface) handleMessage(msg Message) {
	if !i.delivering.Load() {
		return
	}
	i.routes.Route(msg)
}
