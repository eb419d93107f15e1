package session

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/viant/mcpgw/backend"
	"github.com/viant/mcpgw/control"
	"github.com/viant/mcpgw/internal/collection"
	"github.com/viant/mcpgw/internal/pending"
	"github.com/viant/mcpgw/schema"
	"github.com/viant/mcpgw/store"
)

// AdapterFactory creates the backend adapter of a session.
type AdapterFactory interface {
	New(ctx context.Context, sessionID string, mode schema.ConnectionMode) (backend.Adapter, error)
}

// Connections is the registry of live connections of this process. It also runs
// the liveness monitor: a stale connection sweep and a keepalive ping broadcast.
type Connections struct {
	factory    AdapterFactory
	bus        control.Bus
	store      store.Store
	clock      clock.Clock
	logger     zerolog.Logger
	config     Config
	correlator *pending.Correlator
	items      *collection.SyncMap[string, *Connection]
}

// NewConnections creates a registry opening adapters with factory and control
// channels on bus.
func NewConnections(factory AdapterFactory, bus control.Bus, options ...Option) *Connections {
	ret := &Connections{
		factory: factory,
		bus:     bus,
		clock:   clock.New(),
		logger:  zerolog.Nop(),
		items:   collection.NewSyncMap[string, *Connection](),
	}
	for _, option := range options {
		option(ret)
	}
	ret.config.init()
	ret.correlator = pending.New(ret.clock, ret.config.ResponseTimeout)
	return ret
}

// Open creates and registers the connection of sessionID. An existing live
// connection for the same session is replaced and closed, and the session record
// is marked active again.
func (c *Connections) Open(ctx context.Context, sessionID string, mode schema.ConnectionMode) (*Connection, error) {
	adapter, err := c.factory.New(ctx, sessionID, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend adapter: %w", err)
	}
	logger := c.logger.With().Str("session", sessionID).Logger()
	connCtx, cancel := context.WithCancel(context.Background())
	ret := &Connection{
		id:         sessionID,
		mode:       mode,
		manager:    NewManager(sessionID, adapter),
		registry:   c,
		store:      c.store,
		clock:      c.clock,
		correlator: c.correlator,
		logger:     logger,
		config:     &c.config,
		ctx:        connCtx,
		cancel:     cancel,
		done:       make(chan struct{}),

		closeListeners: make(map[int]func()),
	}
	ret.control = control.New(sessionID, mode, c.bus,
		control.WithNamespace(c.config.ControlNamespace),
		control.WithLogger(logger))
	ret.control.OnClose(func() {
		_ = ret.Close(context.Background())
	})
	ret.control.Connect(ctx)
	ret.touch()

	if prev, ok := c.items.Swap(sessionID, ret); ok && prev != ret {
		logger.Warn().Msg("replacing live connection")
		_ = prev.Close(ctx)
	}
	if c.store != nil {
		if err := c.store.Touch(ctx, sessionID, c.clock.Now()); err != nil {
			logger.Debug().Err(err).Msg("failed to touch session")
		}
		if err := c.store.SetStatus(ctx, sessionID, store.StatusActive); err != nil {
			logger.Debug().Err(err).Msg("failed to mark session active")
		}
		go ret.keepAlive(c.clock.Ticker(c.config.TouchInterval))
	}
	logger.Debug().Str("mode", string(mode)).Msg("connection opened")
	return ret, nil
}

// Get returns the live connection of sessionID.
func (c *Connections) Get(sessionID string) (*Connection, bool) {
	return c.items.Get(sessionID)
}

// Lookup returns the live connection of sessionID or schema.ErrSessionNotFound.
func (c *Connections) Lookup(sessionID string) (*Connection, error) {
	if ret, ok := c.items.Get(sessionID); ok {
		return ret, nil
	}
	return nil, fmt.Errorf("%w: %v", schema.ErrSessionNotFound, sessionID)
}

// Len returns the number of live connections.
func (c *Connections) Len() int {
	return c.items.Len()
}

func (c *Connections) remove(conn *Connection) {
	c.items.DeleteIf(conn.id, func(candidate *Connection) bool { return candidate == conn })
}

// CheckAll closes every connection silent for longer than the ping timeout.
func (c *Connections) CheckAll(ctx context.Context) int {
	closed := 0
	for _, conn := range c.items.Values() {
		if conn.CheckPing(ctx) {
			closed++
		}
	}
	return closed
}

// PingAll publishes a keepalive ping for every connection.
func (c *Connections) PingAll(ctx context.Context) {
	for _, conn := range c.items.Values() {
		if err := conn.SendPing(ctx); err != nil {
			c.logger.Debug().Err(err).Str("session", conn.id).Msg("failed to send ping")
		}
	}
}

// Start runs the liveness monitor until ctx is done.
func (c *Connections) Start(ctx context.Context) {
	checkTicker := c.clock.Ticker(c.config.CheckInterval)
	pingTicker := c.clock.Ticker(c.config.PingInterval)
	go func() {
		defer checkTicker.Stop()
		defer pingTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-checkTicker.C:
				if closed := c.CheckAll(ctx); closed > 0 {
					c.logger.Info().Int("closed", closed).Msg("closed stale connections")
				}
			case <-pingTicker.C:
				c.PingAll(ctx)
			}
		}
	}()
}

// Close closes every live connection.
func (c *Connections) Close(ctx context.Context) {
	for _, conn := range c.items.Values() {
		_ = conn.Close(ctx)
	}
}
