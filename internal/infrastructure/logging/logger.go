package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/mqtt-interface/internal/infrastructure/config"
)

// Attribute keys attached to records.
const (
	keyService   = "service"
	keyVersion   = "version"
	keyComponent = "component"

	serviceName = "mqttiface"
)

// Logger is a *slog.Logger that remembers how it was built, so derived
// loggers keep the service and version attributes.
//
// Its Debug/Info/Warn/Error methods satisfy the Logger interfaces of the
// serializer, mqtt and mqttiface packages directly.
type Logger struct {
	*slog.Logger
}

// New returns a logger writing to the destination named by cfg.Output.
func New(cfg config.LoggingConfig, version string) *Logger {
	return NewWithWriter(cfg, version, destination(cfg.Output))
}

// NewWithWriter returns a logger writing to w; cfg.Output is ignored.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	h := handler(cfg.Format, w, &slog.HandlerOptions{Level: levelOf(cfg.Level)})
	return &Logger{
		Logger: slog.New(h).With(
			slog.String(keyService, serviceName),
			slog.String(keyVersion, version),
		),
	}
}

// Default is the logger used until the configuration has been read:
// JSON on stdout at info level.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}

// With returns a derived logger carrying args on every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component returns a derived logger tagged with component=name.
func (l *Logger) Component(name string) *Logger {
	return l.With(keyComponent, name)
}

// destination maps the output setting to a writer. Anything other than
// "stderr" writes to stdout.
func destination(output string) io.Writer {
	if strings.EqualFold(output, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

// handler builds a text handler for format "text" and a JSON handler
// otherwise.
func handler(format string, w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// levelOf maps a level name to a slog level. Unknown names mean info.
func levelOf(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
