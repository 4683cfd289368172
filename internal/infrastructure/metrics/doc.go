// Package metrics exposes Prometheus instrumentation for the MQTT interface
// and a small HTTP status server.
//
// Metrics are registered on a private registry, so several interfaces (and
// tests) can live in one process without duplicate-registration panics.
// Every recording method is safe to call on a nil *Metrics, which lets
// components treat instrumentation as optional.
//
// # Exposed series
//
//   - mqttiface_commands_total{outcome}: commands run by the serializer
//   - mqttiface_command_duration_seconds: command execution time
//   - mqttiface_command_queue_depth: commands waiting for the serializer
//   - mqttiface_operations_rejected_total{operation}: non-success reported by the broker client
//   - mqttiface_messages_routed_total{target}: inbound messages delivered
//   - mqttiface_messages_dropped_total: inbound messages with no route
//   - mqttiface_subscriptions: topics currently registered
//   - mqttiface_broker_connected: 1 while the broker connection is up
//   - mqttiface_reconnects_total: reconnect handshakes after the first
//
// # Status server
//
//	srv, err := metrics.NewServer(metrics.ServerDeps{
//	    Config:  cfg.Metrics,
//	    Metrics: m,
//	    Logger:  log,
//	    Health:  iface.HealthCheck,
//	})
//	if err := srv.Start(ctx); err != nil { ... }
//	defer srv.Close()
package metrics
