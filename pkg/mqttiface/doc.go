// Package mqttiface multiplexes many goroutines onto one MQTT client.
//
// An Interface owns a broker client that must only be driven from one
// goroutine. Every subscribe, unsubscribe and publish is turned into a
// command and run by a single serializer worker, in submission order.
// Inbound messages are routed by topic to a callback or to a per-topic
// queue.
//
// Each operation comes in two forms:
//
//   - Blocking: Subscribe, Unsubscribe, Send, SubscribeWithCallback and
//     WaitForMessage park the calling goroutine, bounded by the configured
//     command timeout or the given timeout.
//   - Context-aware: SubscribeContext, UnsubscribeContext, SendContext and
//     WaitForMessageContext return as soon as ctx is done. Queue waits are
//     delegated to a bounded worker pool.
//
// # Errors
//
//   - A command that fails or panics returns an error matching
//     serializer.ErrCommandFailed; later commands are unaffected.
//   - A command the broker refused returns ErrOperationRejected.
//   - An expired wait returns an error matching ErrTimeout.
//   - A failed Start returns an error matching ErrConnectionFailed.
//   - Any operation after Stop returns ErrStopped.
//
// # Usage
//
//	iface := mqttiface.New(cfg, mqtt.New(cfg.MQTT))
//	if err := iface.Start(ctx); err != nil {
//	    return err
//	}
//	defer iface.Stop()
//
//	if _, err := iface.Subscribe("sensors/kitchen"); err != nil {
//	    return err
//	}
//	msg, err := iface.WaitForMessage("sensors/kitchen", 5*time.Second)
package mqttiface
