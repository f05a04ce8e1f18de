// Package config loads placeholderd settings from TOML.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	cbus "github.com/next-trace/scg-placeholder-bus/contract/bus"
	berr "github.com/next-trace/scg-placeholder-bus/contract/errors"
)

// EnvPath names the environment variable consulted when no path is given.
const EnvPath = "PLACEHOLDER_CONFIG"

// Transport names.
const (
	TransportMemory   = "memory"
	TransportNATS     = "nats"
	TransportRabbitMQ = "rabbitmq"
	TransportKafka    = "kafka"
)

type Config struct {
	Namespace    string `toml:"namespace"`
	TimeoutTicks int    `toml:"timeout_ticks"`
	Debug        bool   `toml:"debug"`
	Transport    string `toml:"transport"`

	NATS     NATS     `toml:"nats"`
	RabbitMQ RabbitMQ `toml:"rabbitmq"`
	Kafka    Kafka    `toml:"kafka"`
	Metrics  Metrics  `toml:"metrics"`
	Log      Log      `toml:"log"`
}

type NATS struct {
	URL  string `toml:"url"`
	Name string `toml:"name"`
}

type RabbitMQ struct {
	URL         string `toml:"url"`
	Exchange    string `toml:"exchange"`
	ConnTimeout string `toml:"conn_timeout"` // Go duration, e.g. "5s"
}

type Kafka struct {
	Brokers  []string `toml:"brokers"`
	ClientID string   `toml:"client_id"`
}

type Metrics struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

type Log struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text or json
}

// Default returns a configuration that runs everything in-process.
func Default() Config {
	return Config{
		Namespace:    "placeholder_api",
		TimeoutTicks: cbus.TicksPerSecond,
		Transport:    TransportMemory,
		RabbitMQ:     RabbitMQ{Exchange: "placeholder", ConnTimeout: "5s"},
		Kafka:        Kafka{ClientID: "placeholderd"},
		Metrics:      Metrics{Listen: ":9464"},
		Log:          Log{Level: "info", Format: "text"},
	}
}

// Parse decodes TOML on top of Default and validates the result.
func Parse(b []byte) (Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("config parse: %w", errors.Join(berr.ErrInvalidConfig, err))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Load reads path, or the file named by PLACEHOLDER_CONFIG when path is empty.
// With neither set it returns Default.
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(EnvPath)
	}

	if path == "" {
		return Default(), nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config read %s: %w", path, err)
	}

	return Parse(b)
}

func (c Config) Validate() error {
	var errs []error

	if c.Namespace == "" || strings.Contains(c.Namespace, ":") {
		errs = append(errs, fmt.Errorf("namespace %q must be non-empty and contain no ':'", c.Namespace))
	}

	if c.TimeoutTicks <= 0 {
		errs = append(errs, fmt.Errorf("timeout_ticks must be positive, got %d", c.TimeoutTicks))
	}

	switch c.Transport {
	case TransportMemory:
	case TransportNATS:
		if c.NATS.URL == "" {
			errs = append(errs, errors.New("nats.url required"))
		}
	case TransportRabbitMQ:
		if c.RabbitMQ.URL == "" {
			errs = append(errs, errors.New("rabbitmq.url required"))
		}

		if _, err := c.RabbitMQ.Timeout(); err != nil {
			errs = append(errs, err)
		}
	case TransportKafka:
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("kafka.brokers required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Transport))
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, errors.New("metrics.listen required when metrics are enabled"))
	}

	if _, err := c.Log.level(); err != nil {
		errs = append(errs, err)
	}

	if c.Log.Format != "" && c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("config validate: %w", errors.Join(append([]error{berr.ErrInvalidConfig}, errs...)...))
}

// Timeout is the default request timeout.
func (c Config) Timeout() time.Duration { return cbus.Ticks(c.TimeoutTicks) }

// Timeout parses ConnTimeout; an empty value means no explicit timeout.
func (r RabbitMQ) Timeout() (time.Duration, error) {
	if r.ConnTimeout == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(r.ConnTimeout)
	if err != nil {
		return 0, fmt.Errorf("rabbitmq.conn_timeout: %w", err)
	}

	return d, nil
}

func (l Log) level() (slog.Level, error) {
	var lvl slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}

	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}

	return lvl, nil
}

// NewLogger builds a slog logger writing to w according to the log section.
func (l Log) NewLogger(w io.Writer) *slog.Logger {
	lvl, _ := l.level()
	opts := &slog.HandlerOptions{Level: lvl}

	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}
