package gree

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Option configures a protocol operation.
type Option func(*config) error

type config struct {
	port    int
	timeout time.Duration
	logger  zerolog.Logger
}

func defaultConfig() *config {
	return &config{
		port:    DevicePort,
		timeout: 2 * time.Second,
		logger:  zerolog.Nop(),
	}
}

func applyOptions(opts []Option) (*config, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// WithPort sets the UDP port devices are addressed on.
// Default is 7000.
func WithPort(port int) Option {
	return func(c *config) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		c.port = port
		return nil
	}
}

// WithTimeout sets the response window for an exchange, and the
// collection window for discovery. It applies only when the caller's
// context carries no deadline of its own. Default is 2 seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *config) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		c.timeout = d
		return nil
	}
}

// WithLogger sets a structured logger for debug and error logging.
// By default, no logging is performed.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *config) error {
		c.logger = logger
		return nil
	}
}
