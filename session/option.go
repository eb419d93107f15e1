package session

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/viant/mcpgw/store"
)

const (
	// DefaultPingTimeout is the silence after which a connection is closed.
	DefaultPingTimeout = 65 * time.Second
	// DefaultPingInterval is the keepalive broadcast period.
	DefaultPingInterval = 30 * time.Second
	// DevelopmentPingInterval replaces DefaultPingInterval in development mode.
	DevelopmentPingInterval = 5 * time.Second
	// DefaultCheckInterval is the stale connection sweep period.
	DefaultCheckInterval = 10 * time.Second
	// DefaultTouchInterval is how often a connection refreshes its session record.
	DefaultTouchInterval = 30 * time.Second
)

// Config holds the liveness settings of a connection registry.
type Config struct {
	PingTimeout      time.Duration
	PingInterval     time.Duration
	CheckInterval    time.Duration
	TouchInterval    time.Duration
	ResponseTimeout  time.Duration
	ControlNamespace string
	// DisableControlDelivery stops forwarding control messages to unfiltered
	// OnMessage subscribers.
	DisableControlDelivery bool
}

func (c *Config) init() {
	if c.PingTimeout <= 0 {
		c.PingTimeout = DefaultPingTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = DefaultCheckInterval
	}
	if c.TouchInterval <= 0 {
		c.TouchInterval = DefaultTouchInterval
	}
}

// Option configures Connections.
type Option func(c *Connections)

// WithConfig sets the liveness settings.
func WithConfig(config Config) Option {
	return func(c *Connections) {
		c.config = config
	}
}

// WithClock sets the clock driving tickers and timeouts.
func WithClock(clk clock.Clock) Option {
	return func(c *Connections) {
		c.clock = clk
	}
}

// WithLogger sets the registry logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Connections) {
		c.logger = logger
	}
}

// WithStore sets the session store touched for liveness bookkeeping.
func WithStore(s store.Store) Option {
	return func(c *Connections) {
		c.store = s
	}
}
