package prototype

import (
	"log/slog"
	"time"
)

const (
	// DefaultBaudRate is the prototype's UART speed.
	DefaultBaudRate = 115200

	// DefaultTimeout bounds every wait for a device response except the
	// manual reset wait.
	DefaultTimeout = 2 * time.Second
)

// Config holds the device session configuration.
type Config struct {
	// Timeout is the bounded read timeout for responsive phases
	Timeout time.Duration

	// Logger receives protocol traffic at debug level (optional)
	Logger *slog.Logger
}

func defaultConfig() Config {
	return Config{
		Timeout: DefaultTimeout,
	}
}

// Option is a functional option for configuring a Device.
type Option func(*Config)

// WithTimeout sets the bounded response timeout. Non-positive values are
// ignored.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.Timeout = timeout
		}
	}
}

// WithLogger sets the logger for protocol traffic.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}
