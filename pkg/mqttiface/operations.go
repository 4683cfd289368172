package mqttiface

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nerrad567/mqtt-interface/internal/router"
	"github.com/nerrad567/mqtt-interface/internal/serializer"
	"github.com/nerrad567/mqtt-interface/internal/workers"
	"github.com/nerrad567/mqtt-interface/pkg/asyncqueue"
	"github.com/nerrad567/mqtt-interface/pkg/promise"
)

// Operation names used in errors, logs and metrics.
const (
	opSubscribe   = "subscribe"
	opUnsubscribe = "unsubscribe"
	opPublish     = "publish"
)

// =============================================================================
// Blocking family
// =============================================================================

// Subscribe subscribes to topic and returns the queue its messages are
// pushed to. topic may be an MQTT wildcard filter.
//
// The queue is registered before the subscribe command runs, so no message
// delivered after the broker accepts the subscription is missed. On failure
// the registration is removed; a command still queued or in flight when the
// wait times out is withdrawn, so the broker does not keep the subscription.
//
// Returns:
//   - *MessageQueue: the topic's queue, also read by WaitForMessage
//   - error: router.ErrTopicInUse if topic is already subscribed, a
//     serializer.ErrCommandFailed, ErrOperationRejected or ErrTimeout
func (i *Interface) Subscribe(topic string) (*MessageQueue, error) {
	q, err := i.registerQueue(topic)
	if err != nil {
		return nil, err
	}

	if err := i.subscribe(topic, true, i.commandResult); err != nil {
		i.routes.Unregister(topic)
		return nil, err
	}
	return q, nil
}

// SubscribeWithCallback subscribes to topic and invokes cb for every
// message. cb runs on the client's delivery goroutine: while it runs no
// other message is delivered, and a panic in cb is not recovered here.
//
// An existing callback for topic is replaced.
func (i *Interface) SubscribeWithCallback(topic string, cb func(Message)) error {
	existed := i.routes.Has(topic)
	if err := i.routes.Register(topic, cb); err != nil {
		return i.registrationError(err)
	}

	if err := i.subscribe(topic, !existed, i.commandResult); err != nil {
		if !existed {
			i.routes.Unregister(topic)
		}
		return err
	}
	return nil
}

// Unsubscribe unsubscribes from topic. Once it returns, messages for topic
// are no longer routed and the topic's queue is closed; messages already in
// it can still be read from the queue returned by Subscribe.
//
// The routing entry is removed even if the broker reports a failure.
func (i *Interface) Unsubscribe(topic string) error {
	if err := i.checkSubscribed(topic); err != nil {
		return err
	}

	v, err := i.unsubscribeCommand(topic).Result(i.cfg.GetCommandTimeout())
	i.routes.Unregister(topic)
	return i.outcome(opUnsubscribe, topic, v, err)
}

// Send publishes payload on topic with the configured QoS.
func (i *Interface) Send(topic string, payload []byte) error {
	v, err := i.publishCommand(topic, payload).Result(i.cfg.GetCommandTimeout())
	return i.outcome(opPublish, topic, v, err)
}

// WaitForMessage removes and returns the next message queued for topic,
// waiting up to timeout (message_timeout if zero or less). It does not go
// through the command worker.
//
// Returns:
//   - error: ErrNotSubscribed if topic has no queue, or is unsubscribed
//     while waiting; ErrTimeout if nothing arrived in time
func (i *Interface) WaitForMessage(topic string, timeout time.Duration) (Message, error) {
	q, err := i.queue(topic)
	if err != nil {
		return Message{}, err
	}

	if timeout <= 0 {
		timeout = i.cfg.GetMessageTimeout()
	}

	msg, err := q.Get(timeout)
	if err != nil {
		return Message{}, i.waitError(topic, err)
	}
	return msg, nil
}

// =============================================================================
// Context-aware family
// =============================================================================

// SubscribeContext is Subscribe that waits for the command result until ctx
// is done. Without a ctx deadline the command timeout applies.
func (i *Interface) SubscribeContext(ctx context.Context, topic string) (*MessageQueue, error) {
	q, err := i.registerQueue(topic)
	if err != nil {
		return nil, err
	}

	ctx, cancel := i.commandContext(ctx)
	defer cancel()

	err = i.subscribe(topic, true, func(p *promise.Promise[any]) (any, error) {
		return p.Await(ctx)
	})
	if err != nil {
		i.routes.Unregister(topic)
		return nil, err
	}
	return q, nil
}

// UnsubscribeContext is Unsubscribe that waits for the command result until
// ctx is done. Without a ctx deadline the command timeout applies.
func (i *Interface) UnsubscribeContext(ctx context.Context, topic string) error {
	if err := i.checkSubscribed(topic); err != nil {
		return err
	}

	ctx, cancel := i.commandContext(ctx)
	defer cancel()

	v, err := i.unsubscribeCommand(topic).Await(ctx)
	i.routes.Unregister(topic)
	return i.outcome(opUnsubscribe, topic, v, err)
}

// SendContext is Send that waits for the command result until ctx is done.
// Without a ctx deadline the command timeout applies. An abandoned publish
// still runs.
func (i *Interface) SendContext(ctx context.Context, topic string, payload []byte) error {
	ctx, cancel := i.commandContext(ctx)
	defer cancel()

	v, err := i.publishCommand(topic, payload).Await(ctx)
	return i.outcome(opPublish, topic, v, err)
}

// WaitForMessageContext is WaitForMessage with cancellation. The queue wait
// runs on the worker pool while the caller waits on ctx; a message taken
// after the caller gave up is put back at the head of the queue.
func (i *Interface) WaitForMessageContext(ctx context.Context, topic string, timeout time.Duration) (Message, error) {
	q, err := i.queue(topic)
	if err != nil {
		return Message{}, err
	}

	if timeout <= 0 {
		timeout = i.cfg.GetMessageTimeout()
	}

	msg, err := q.AwaitGet(ctx, timeout)
	if err != nil {
		return Message{}, i.waitError(topic, err)
	}
	return msg, nil
}

// =============================================================================
// Commands
// =============================================================================

// States of a subscribe command whose caller may stop waiting for it.
const (
	subscribePending int32 = iota
	subscribeAbandoned
	subscribeSettled
)

// subscribe queues a subscribe command and waits for it with wait.
//
// If the wait ends before the command does, the command is abandoned: it
// is skipped if it has not started, and when undo is set a subscription it
// completes anyway is removed again inside the same command. The broker is
// therefore never left subscribed to a topic the caller was told failed.
func (i *Interface) subscribe(topic string, undo bool, wait func(*promise.Promise[any]) (any, error)) error {
	var state atomic.Int32

	p := i.submit(opSubscribe, topic, func() (bool, error) {
		if state.Load() == subscribeAbandoned {
			i.logger.Debug("skipping abandoned subscribe", "topic", topic)
			return false, nil
		}
		ok, err := i.client.Subscribe(topic, i.qos)
		if state.CompareAndSwap(subscribePending, subscribeSettled) || !undo || err != nil || !ok {
			return ok, err
		}
		i.undoSubscribe(topic)
		return ok, err
	})

	v, err := wait(p)
	if err != nil && !p.IsDone() && state.CompareAndSwap(subscribePending, subscribeAbandoned) {
		return i.outcome(opSubscribe, topic, v, err)
	}
	if err != nil {
		// The command settled as the wait ended; its result is final.
		v, err = p.Result(0)
	}
	return i.outcome(opSubscribe, topic, v, err)
}

// undoSubscribe runs on the command worker after an abandoned subscribe
// went through.
func (i *Interface) undoSubscribe(topic string) {
	ok, err := i.client.Unsubscribe(topic)
	switch {
	case err != nil:
		i.logger.Warn("removing abandoned subscription failed", "topic", topic, "error", err)
	case !ok:
		i.logger.Warn("removing abandoned subscription rejected", "topic", topic)
	default:
		i.logger.Debug("removed abandoned subscription", "topic", topic)
	}
}

func (i *Interface) commandResult(p *promise.Promise[any]) (any, error) {
	return p.Result(i.cfg.GetCommandTimeout())
}

func (i *Interface) unsubscribeCommand(topic string) *promise.Promise[any] {
	return i.submit(opUnsubscribe, topic, func() (bool, error) {
		return i.client.Unsubscribe(topic)
	})
}

func (i *Interface) publishCommand(topic string, payload []byte) *promise.Promise[any] {
	return i.submit(opPublish, topic, func() (bool, error) {
		return i.client.Publish(topic, payload, i.qos, false)
	})
}

// submit queues one call against the client. The command's value is the
// call's success flag.
func (i *Interface) submit(op, topic string, call func() (bool, error)) *promise.Promise[any] {
	return i.commands.Submit(func() (any, error) {
		ok, err := call()
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", op, topic, err)
		}
		return ok, nil
	})
}

// outcome turns a command result into the caller's error.
func (i *Interface) outcome(op, topic string, v any, err error) error {
	if err != nil {
		if errors.Is(err, promise.ErrTimeout) {
			return fmt.Errorf("%w: %s %s: %w", ErrTimeout, op, topic, err)
		}
		return err
	}

	if ok, _ := v.(bool); !ok {
		i.metrics.OperationRejected(op)
		i.logger.Warn("broker client reported non-success", "operation", op, "topic", topic)
		return fmt.Errorf("%w: %s %s", ErrOperationRejected, op, topic)
	}
	return nil
}

// commandContext applies the command timeout when ctx has no deadline.
func (i *Interface) commandContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, i.cfg.GetCommandTimeout())
}

// =============================================================================
// Routing helpers
// =============================================================================

func (i *Interface) registerQueue(topic string) (*MessageQueue, error) {
	q := asyncqueue.New[Message](asyncqueue.WithExecutor(i.pool))
	if err := i.routes.RegisterQueue(topic, q); err != nil {
		return nil, i.registrationError(err)
	}
	return q, nil
}

func (i *Interface) registrationError(err error) error {
	if errors.Is(err, router.ErrClosed) {
		return ErrStopped
	}
	return err
}

func (i *Interface) stopped() bool {
	return i.commands.State() == serializer.StateStopped
}

func (i *Interface) checkSubscribed(topic string) error {
	if i.stopped() {
		return ErrStopped
	}
	if !i.routes.Has(topic) {
		return fmt.Errorf("%w: %s", ErrNotSubscribed, topic)
	}
	return nil
}

func (i *Interface) queue(topic string) (*MessageQueue, error) {
	if i.stopped() {
		return nil, ErrStopped
	}
	q, ok := i.routes.Queue(topic)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotSubscribed, topic)
	}
	return q, nil
}

// waitError maps queue and promise wait errors to the package's errors.
func (i *Interface) waitError(topic string, err error) error {
	switch {
	case errors.Is(err, asyncqueue.ErrTimeout), errors.Is(err, promise.ErrTimeout):
		return fmt.Errorf("%w: waiting for message on %s: %w", ErrTimeout, topic, err)
	case errors.Is(err, asyncqueue.ErrClosed):
		if i.stopped() {
			return ErrStopped
		}
		return fmt.Errorf("%w: %s was unsubscribed while waiting", ErrNotSubscribed, topic)
	case errors.Is(err, workers.ErrPoolClosed):
		return ErrStopped
	default:
		return err
	}
}
