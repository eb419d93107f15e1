package mcpgw

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/viant/mcpgw/backend"
	"github.com/viant/mcpgw/broker"
	"github.com/viant/mcpgw/control"
	"github.com/viant/mcpgw/internal/pending"
	"github.com/viant/mcpgw/server"
	"github.com/viant/mcpgw/session"
	"github.com/viant/mcpgw/store"
)

// sessionRecordTTL expires session records nobody touches anymore.
const sessionRecordTTL = 24 * time.Hour

// Gateway holds the wired components of a gateway instance.
type Gateway struct {
	options     *Options
	logger      zerolog.Logger
	clock       clock.Clock
	dial        broker.Dialer
	redis       redis.UniversalClient
	ownsRedis   bool
	kind        atomic.Value
	bus         control.Bus
	store       store.Store
	pool        *broker.Pool
	connections *session.Connections
	server      *server.Server
	httpServer  *http.Server
}

// Option configures a Gateway.
type Option func(g *Gateway)

// WithLogger sets the process logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithDialer replaces the dialer derived from Options.Backend.
func WithDialer(dial broker.Dialer) Option {
	return func(g *Gateway) {
		g.dial = dial
	}
}

// WithRedisClient uses client for the control channel and session store.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(g *Gateway) {
		g.redis = client
	}
}

// WithClock sets the clock driving liveness timers.
func WithClock(clk clock.Clock) Option {
	return func(g *Gateway) {
		g.clock = clk
	}
}

// New wires a gateway from options.
func New(ctx context.Context, options *Options, opts ...Option) (*Gateway, error) {
	if options == nil {
		return nil, fmt.Errorf("options were nil")
	}
	options.Init()
	ret := &Gateway{options: options, logger: zerolog.Nop(), clock: clock.New()}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.dial == nil {
		if err := options.Validate(); err != nil {
			return nil, err
		}
		ret.dial = options.Backend.Dialer()
	}
	ret.SetBackendKind(backend.Kind(options.BackendKind))

	if ret.redis == nil && options.RedisAddr != "" {
		ret.redis = redis.NewClient(&redis.Options{Addr: options.RedisAddr})
		ret.ownsRedis = true
		if err := ret.redis.Ping(ctx).Err(); err != nil {
			_ = ret.redis.Close()
			return nil, fmt.Errorf("failed to connect to redis %v: %w", options.RedisAddr, err)
		}
	}
	if ret.redis != nil {
		ret.bus = control.NewRedisBus(ret.redis)
		ret.store = store.NewRedisStore(ret.redis, options.Namespace, sessionRecordTTL)
	} else {
		ret.bus = control.NewMemoryBus()
		ret.store = store.NewMemoryStore()
	}

	config := options.SessionConfig()
	poolOptions := []broker.Option{
		broker.WithStore(ret.store),
		broker.WithClock(ret.clock),
		broker.WithLogger(ret.logger.With().Str("component", "broker").Logger()),
		broker.WithHistorySize(options.HistorySize),
		broker.WithIdleTimeout(seconds(options.IdleTimeoutSeconds)),
		broker.WithRequestTimeout(config.ResponseTimeout),
	}
	ret.pool = broker.NewPool(ret.dial, poolOptions...)

	factory := &backend.Factory{
		Flag:       ret.BackendKind,
		Engine:     ret.pool,
		Brokers:    ret.pool,
		Correlator: pending.New(ret.clock, config.ResponseTimeout),
		Logger:     ret.logger.With().Str("component", "backend").Logger(),
	}
	ret.connections = session.NewConnections(factory, ret.bus,
		session.WithConfig(config),
		session.WithClock(ret.clock),
		session.WithStore(ret.store),
		session.WithLogger(ret.logger.With().Str("component", "session").Logger()),
	)
	serverOptions := append(options.ServerOptions(), server.WithLogger(ret.logger.With().Str("component", "ingress").Logger()))
	ret.server = server.New(ret.connections, serverOptions...)
	if options.Transport != TransportStdio {
		ret.httpServer = ret.server.HTTP(ctx, "")
	}
	return ret, nil
}

// BackendKind returns the adapter variant new sessions get.
func (g *Gateway) BackendKind() backend.Kind {
	return g.kind.Load().(backend.Kind)
}

// SetBackendKind switches the adapter variant of sessions opened from now on.
func (g *Gateway) SetBackendKind(kind backend.Kind) {
	g.kind.Store(kind)
}

// Connections returns the session connection registry.
func (g *Gateway) Connections() *session.Connections {
	return g.connections
}

// Pool returns the backend run pool.
func (g *Gateway) Pool() *broker.Pool {
	return g.pool
}

// Server returns the client facing ingress.
func (g *Gateway) Server() *server.Server {
	return g.server
}

// Start runs the liveness monitor and the run maintenance until ctx is done.
func (g *Gateway) Start(ctx context.Context) {
	g.connections.Start(ctx)
	g.pool.Start(ctx)
}

// ListenAndServe serves clients on the configured transport until the ingress stops.
func (g *Gateway) ListenAndServe(ctx context.Context) error {
	if g.options.Transport == TransportStdio {
		return g.server.Stdio(ctx).ListenAndServe()
	}
	g.logger.Info().Str("addr", g.httpServer.Addr).Str("transport", g.options.Transport).Msg("gateway listening")
	err := g.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close shuts down the ingress, closes every connection and terminates backend runs.
func (g *Gateway) Close(ctx context.Context) error {
	var errs []error
	if g.httpServer != nil {
		if err := g.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	g.connections.Close(ctx)
	if err := g.pool.Close(); err != nil {
		errs = append(errs, err)
	}
	if g.ownsRedis {
		if err := g.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
