// Package logging builds the structured logger shared by every layer of the
// MQTT interface.
//
// A Logger is a thin wrapper over log/slog. Each record carries the
// "service" and "version" attributes; components add their own name with
// Component so the serializer, router and broker adapter can be told apart
// in a single stream.
//
// The logging section of the configuration selects level (debug, info,
// warn, error), format (json or text) and destination (stdout or stderr):
//
//	logging:
//	  level: "debug"
//	  format: "text"
//	  output: "stderr"
//
// Wiring a component:
//
//	logger := logging.New(cfg.Logging, version)
//	iface.SetLogger(logger.Component("mqttiface"))
//
// Broker passwords are never logged. Message payloads appear in records only
// when a caller logs them explicitly.
package logging
