package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/viant/mcpgw/control"
	"github.com/viant/mcpgw/internal/pending"
	"github.com/viant/mcpgw/internal/tracking"
	"github.com/viant/mcpgw/schema"
	"github.com/viant/mcpgw/store"
)

// Connection is the live handle of one session on this process. Ping calls are
// answered over the control channel, everything else goes to the backend through
// the session manager.
type Connection struct {
	id         string
	mode       schema.ConnectionMode
	manager    *Manager
	control    *control.Channel
	registry   *Connections
	store      store.Store
	clock      clock.Clock
	correlator *pending.Correlator
	logger     zerolog.Logger
	config     *Config

	ctx           context.Context
	cancel        context.CancelFunc
	done          chan struct{}
	lastMessageAt int64

	mux            sync.Mutex
	closed         bool
	stopped        bool
	seq            int
	closeListeners map[int]func()
}

// ID returns the session id.
func (c *Connection) ID() string {
	return c.id
}

// Mode returns the connection mode.
func (c *Connection) Mode() schema.ConnectionMode {
	return c.mode
}

// LastMessageAt returns the time of the last outbound send.
func (c *Connection) LastMessageAt() time.Time {
	return time.Unix(0, atomic.LoadInt64(&c.lastMessageAt))
}

func (c *Connection) touch() {
	atomic.StoreInt64(&c.lastMessageAt, c.clock.Now().UnixNano())
}

// SendMessage forwards messages to the backend. Ping requests are answered with
// an empty result published on the control channel; ping notifications and
// messages carrying a keepalive ping id are dropped. Any call resets the
// liveness clock.
func (c *Connection) SendMessage(ctx context.Context, messages ...*schema.Message) ([]*schema.ConnectionMessage, error) {
	if c.isClosed() {
		return nil, schema.ErrConnectionClosed
	}
	c.touch()
	var forward []*schema.Message
	for _, message := range messages {
		if message.IsPingCall() {
			if message.HasID() {
				if err := c.control.Emit(ctx, schema.NewPingResponse(message)); err != nil {
					c.logger.Debug().Err(err).Msg("failed to publish pong")
				}
			}
			continue
		}
		if message.IsSyntheticPing() {
			continue
		}
		forward = append(forward, message)
	}
	if len(forward) == 0 {
		return nil, nil
	}
	sent, err := c.manager.SendMessage(ctx, forward)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to send messages")
		tracking.Capture(err, "session_connection", c.id, nil)
	}
	return sent, err
}

// OnMessage subscribes handler to inbound backend messages matching filter.
// Unless filter restricts ids, send-and-receive connections also deliver control
// channel messages to handler.
func (c *Connection) OnMessage(filter *schema.Filter, handler schema.Handler) func() {
	if c.isClosed() {
		return func() {}
	}
	cancels := []func(){c.manager.OnMessage(c.ctx, filter, handler)}
	if c.mode.Receives() && !c.config.DisableControlDelivery && (filter == nil || len(filter.IDs) == 0) {
		cancels = append(cancels, c.control.OnMessage(handler))
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			for _, cancel := range cancels {
				cancel()
			}
		})
	}
}

// SendMessagesAndWaitForResponse sends messages and waits until every sent
// request got a reply. handler sees each message delivered while waiting. The
// wait fails with schema.ErrResponseTimeout after the response timeout and with
// schema.ErrConnectionClosed when the connection closes first.
func (c *Connection) SendMessagesAndWaitForResponse(ctx context.Context, messages []*schema.Message, handler schema.Handler) error {
	if c.isClosed() {
		return schema.ErrConnectionClosed
	}
	_, err := c.correlator.SendAndWait(ctx,
		func(ctx context.Context) ([]*schema.ConnectionMessage, error) {
			return c.SendMessage(ctx, messages...)
		},
		c.OnMessage,
		handler,
		c.ctx.Done())
	return err
}

// SendPing publishes a keepalive ping request on the control channel.
func (c *Connection) SendPing(ctx context.Context) error {
	if c.isClosed() {
		return nil
	}
	return c.control.Emit(ctx, schema.NewPingRequest(c.id))
}

// CheckPing closes the connection when nothing was sent within the ping timeout.
// It reports whether the connection got closed.
func (c *Connection) CheckPing(ctx context.Context) bool {
	if c.isClosed() {
		return false
	}
	if c.clock.Now().Sub(c.LastMessageAt()) <= c.config.PingTimeout {
		return false
	}
	c.logger.Info().Msg("closing connection after ping timeout")
	_ = c.Close(ctx)
	return true
}

// WaitForClose returns a channel closed once the connection is fully closed.
func (c *Connection) WaitForClose() <-chan struct{} {
	return c.done
}

// OnClose registers fn to run once the connection closes and returns its disposer.
// fn runs immediately when the connection is already closed.
func (c *Connection) OnClose(fn func()) func() {
	c.mux.Lock()
	if c.closed {
		c.mux.Unlock()
		fn()
		return func() {}
	}
	c.seq++
	id := c.seq
	c.closeListeners[id] = fn
	c.mux.Unlock()
	return func() {
		c.mux.Lock()
		defer c.mux.Unlock()
		delete(c.closeListeners, id)
	}
}

// Close tears down the control channel and the backend adapter and removes the
// connection from the registry. Repeated calls are no-ops.
func (c *Connection) Close(ctx context.Context) error {
	c.mux.Lock()
	if c.closed {
		c.mux.Unlock()
		return nil
	}
	c.closed = true
	listeners := c.closeListeners
	c.closeListeners = nil
	c.mux.Unlock()

	if c.registry != nil {
		c.registry.remove(c)
	}
	c.cancel()
	c.control.Close()
	err := c.manager.Close()
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to close backend adapter")
	}
	if c.store != nil {
		if statusErr := c.store.SetStatus(context.WithoutCancel(ctx), c.id, store.StatusClosed); statusErr != nil {
			c.logger.Debug().Err(statusErr).Msg("failed to mark session closed")
		}
	}
	for _, listener := range listeners {
		listener()
	}
	close(c.done)
	c.logger.Debug().Msg("connection closed")
	return err
}

// Stop terminates the backend run, tells other instances holding the session to
// close, then closes the connection. Repeated calls are no-ops.
func (c *Connection) Stop(ctx context.Context) error {
	c.mux.Lock()
	if c.stopped || c.closed {
		c.mux.Unlock()
		return nil
	}
	c.stopped = true
	c.mux.Unlock()

	err := c.manager.Stop(ctx)
	if err != nil {
		tracking.Capture(err, "session_connection", c.id, nil)
	}
	if emitErr := c.control.EmitClose(ctx); emitErr != nil {
		c.logger.Debug().Err(emitErr).Msg("failed to publish close")
	}
	if closeErr := c.Close(ctx); err == nil {
		err = closeErr
	}
	return err
}

func (c *Connection) isClosed() bool {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.closed
}

// keepAlive refreshes the session record until the connection closes.
func (c *Connection) keepAlive(ticker *clock.Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := c.store.Touch(c.ctx, c.id, c.clock.Now()); err != nil {
				c.logger.Debug().Err(err).Msg("failed to touch session")
			}
		}
	}
}
