// mqttiface connects to an MQTT broker through the coordination layer and
// logs every message received on the requested topics until interrupted.
//
// It is a thin bootstrap around pkg/mqttiface: configuration comes from a
// YAML file (--config or MQTTIFACE_CONFIG), environment overrides and flags.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/nerrad567/mqtt-interface/internal/infrastructure/config"
	"github.com/nerrad567/mqtt-interface/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt-interface/internal/infrastructure/metrics"
	"github.com/nerrad567/mqtt-interface/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqtt-interface/pkg/mqttiface"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// configEnvVar names the environment variable holding the config path.
const configEnvVar = "MQTTIFACE_CONFIG"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options holds parsed command-line flags.
type options struct {
	configPath string
	host       string
	port       int
	topics     []string
	metrics    bool
	logLevel   string
	version    bool
	help       bool
}

func parseFlags(args []string, out io.Writer) (*options, *pflag.FlagSet, error) {
	var opts options

	flagSet := pflag.NewFlagSet("mqttiface", pflag.ContinueOnError)
	flagSet.SetOutput(out)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "path to YAML config file (default: $"+configEnvVar+")")
	flagSet.StringVar(&opts.host, "host", "", "broker host (overrides config)")
	flagSet.IntVar(&opts.port, "port", 0, "broker port (overrides config)")
	flagSet.StringSliceVarP(&opts.topics, "topic", "t", nil, "topic or filter to subscribe to; repeatable")
	flagSet.BoolVar(&opts.metrics, "metrics", false, "serve /metrics, /healthz and /status (overrides config)")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	flagSet.BoolVar(&opts.version, "version", false, "print version and exit")
	flagSet.BoolVarP(&opts.help, "help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			opts.help = true
			return &opts, flagSet, nil
		}
		return nil, nil, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return nil, nil, fmt.Errorf("unexpected argument: %s", rest[0])
	}

	return &opts, flagSet, nil
}

// loadConfig loads the config file (flag, then environment) or falls back
// to defaults, and applies flag overrides.
func loadConfig(opts *options) (*config.Config, string, error) {
	path := opts.configPath
	if path == "" {
		path = os.Getenv(configEnvVar)
	}

	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadEnv()
	}
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}

	if opts.host != "" {
		cfg.MQTT.Broker.Host = opts.host
	}
	if opts.port != 0 {
		cfg.MQTT.Broker.Port = opts.port
	}
	if opts.metrics {
		cfg.Metrics.Enabled = true
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, path, fmt.Errorf("validating flags: %w", err)
	}

	return cfg, path, nil
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command-line arguments without the program name
//   - out: Destination for help and version output
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string, out io.Writer) error {
	opts, flagSet, err := parseFlags(args, out)
	if err != nil {
		return err
	}
	if opts.help {
		fmt.Fprintf(out, "Usage: mqttiface [flags]\n\nFlags:\n%s", flagSet.FlagUsages())
		return nil
	}
	if opts.version {
		fmt.Fprintf(out, "mqttiface %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	log := logging.Default()

	cfg, path, err := loadConfig(opts)
	if err != nil {
		log.Error("failed to load configuration", "config", path, "error", err)
		return err
	}

	log = logging.New(cfg.Logging, version)
	log.Info("starting mqttiface",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", path,
	)

	client := mqtt.New(cfg.MQTT)
	client.SetLogger(log.Component("mqtt"))

	iface := mqttiface.New(cfg, client)
	iface.SetLogger(log.Component("mqttiface"))

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		iface.SetMetrics(m)
	}

	if err := iface.Start(ctx); err != nil {
		return fmt.Errorf("starting interface: %w", err)
	}
	defer func() {
		log.Info("stopping interface")
		if stopErr := iface.Stop(); stopErr != nil {
			log.Error("error stopping interface", "error", stopErr)
		}
	}()
	log.Info("connected to broker",
		"broker", client.Broker(),
		"client_id", client.ClientID(),
	)

	if m != nil {
		srv, err := metrics.NewServer(metrics.ServerDeps{
			Config:  cfg.Metrics,
			Metrics: m,
			Logger:  log.Component("status"),
			Health:  iface.HealthCheck,
			Status:  func() any { return iface.Stats() },
			Version: version,
		})
		if err != nil {
			return fmt.Errorf("creating status server: %w", err)
		}
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting status server: %w", err)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing status server", "error", closeErr)
			}
		}()
	}

	for _, topic := range opts.topics {
		if err := iface.SubscribeWithCallback(topic, logMessage(log)); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
		log.Info("subscribed", "topic", topic)
	}

	<-ctx.Done()
	log.Info("shutdown signal received")
	return nil
}

// logMessage returns a callback that logs each received message.
func logMessage(log *logging.Logger) func(mqttiface.Message) {
	return func(msg mqttiface.Message) {
		log.Info("message received",
			"topic", msg.Topic,
			"qos", msg.QoS,
			"retained", msg.Retained,
			"bytes", len(msg.Payload),
			"payload", msg.String(),
		)
	}
}
