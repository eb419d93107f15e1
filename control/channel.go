package control

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
	"github.com/viant/mcpgw/internal/tracking"
	"github.com/viant/mcpgw/schema"
)

// DefaultNamespace prefixes control topics.
const DefaultNamespace = "mcpgw:ctl"

// Topic returns the control topic of a session.
func Topic(namespace, sessionID string) string {
	return namespace + ":" + sessionID
}

// Option configures a Channel.
type Option func(c *Channel)

// WithNamespace overrides DefaultNamespace.
func WithNamespace(namespace string) Option {
	return func(c *Channel) {
		if namespace != "" {
			c.namespace = namespace
		}
	}
}

// WithLogger sets the channel logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Channel) {
		c.logger = logger
	}
}

type messageListener struct {
	id      int
	handler schema.Handler
}

type closeListener struct {
	id      int
	handler func()
}

// Channel is the control channel of a single session.
type Channel struct {
	sessionID string
	namespace string
	mode      schema.ConnectionMode
	bus       Bus
	logger    zerolog.Logger

	mux            sync.Mutex
	subscription   Subscription
	connected      bool
	degraded       bool
	closed         bool
	closeFired     bool
	seq            int
	listeners      []messageListener
	closeListeners []closeListener
}

// New creates a control channel for sessionID. Nothing is subscribed until Connect.
func New(sessionID string, mode schema.ConnectionMode, bus Bus, options ...Option) *Channel {
	ret := &Channel{
		sessionID: sessionID,
		namespace: DefaultNamespace,
		mode:      mode,
		bus:       bus,
		logger:    zerolog.Nop(),
	}
	for _, option := range options {
		option(ret)
	}
	ret.logger = ret.logger.With().Str("session", sessionID).Str("component", "control").Logger()
	return ret
}

// Topic returns the pub/sub topic of the channel.
func (c *Channel) Topic() string {
	return Topic(c.namespace, c.sessionID)
}

// Connect opens the subscriber for send-and-receive channels. Send-only channels
// never subscribe. A failed subscribe degrades the channel: it keeps publishing
// but drops inbound control messages. Connect is safe to call more than once.
func (c *Channel) Connect(ctx context.Context) {
	if !c.mode.Receives() {
		return
	}
	c.mux.Lock()
	if c.connected || c.closed {
		c.mux.Unlock()
		return
	}
	c.connected = true
	c.mux.Unlock()

	sub, err := c.bus.Subscribe(ctx, c.Topic())
	if err != nil {
		c.logger.Error().Err(err).Msg("control subscribe failed, liveness signaling disabled")
		tracking.Capture(err, "control_channel", c.sessionID, map[string]interface{}{"topic": c.Topic()})
		c.mux.Lock()
		c.degraded = true
		c.mux.Unlock()
		return
	}
	c.mux.Lock()
	if c.closed {
		c.mux.Unlock()
		_ = sub.Close()
		return
	}
	c.subscription = sub
	c.mux.Unlock()
	go c.listen(sub)
}

// Degraded reports whether the subscriber could not be opened.
func (c *Channel) Degraded() bool {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.degraded
}

// Emit publishes message on the session topic.
func (c *Channel) Emit(ctx context.Context, message *schema.Message) error {
	return c.publish(ctx, Event{Type: EventMessage, Message: message})
}

// EmitClose tells every subscriber of the session that it was closed.
func (c *Channel) EmitClose(ctx context.Context) error {
	return c.publish(ctx, Event{Type: EventClose})
}

func (c *Channel) publish(ctx context.Context, event Event) error {
	if c.isClosed() {
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err = c.bus.Publish(ctx, c.Topic(), data); err != nil {
		c.logger.Warn().Err(err).Str("event", string(event.Type)).Msg("control publish failed")
		tracking.Capture(err, "control_channel", c.sessionID, nil)
		return err
	}
	return nil
}

// OnMessage registers handler for control messages and returns its disposer.
func (c *Channel) OnMessage(handler schema.Handler) func() {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.seq++
	id := c.seq
	c.listeners = append(c.listeners, messageListener{id: id, handler: handler})
	return func() {
		c.mux.Lock()
		defer c.mux.Unlock()
		for i, listener := range c.listeners {
			if listener.id == id {
				c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

// OnClose registers handler for the close event and returns its disposer.
func (c *Channel) OnClose(handler func()) func() {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.seq++
	id := c.seq
	c.closeListeners = append(c.closeListeners, closeListener{id: id, handler: handler})
	return func() {
		c.mux.Lock()
		defer c.mux.Unlock()
		for i, listener := range c.closeListeners {
			if listener.id == id {
				c.closeListeners = append(c.closeListeners[:i:i], c.closeListeners[i+1:]...)
				return
			}
		}
	}
}

// Close emits the local close event, disconnects the subscriber and detaches all
// listeners. Repeated calls are no-ops.
func (c *Channel) Close() {
	c.mux.Lock()
	if c.closed {
		c.mux.Unlock()
		return
	}
	c.closed = true
	sub := c.subscription
	c.subscription = nil
	c.mux.Unlock()

	c.fireClose()
	if sub != nil {
		if err := sub.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("control unsubscribe failed")
		}
	}
	c.mux.Lock()
	c.listeners = nil
	c.closeListeners = nil
	c.mux.Unlock()
}

func (c *Channel) isClosed() bool {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.closed
}

func (c *Channel) listen(sub Subscription) {
	for payload := range sub.Messages() {
		event := &Event{}
		if err := json.Unmarshal(payload, event); err != nil {
			c.logger.Warn().Err(err).Msg("invalid control event")
			continue
		}
		switch event.Type {
		case EventMessage:
			c.dispatch(event.Message)
		case EventClose:
			c.fireClose()
		}
	}
}

func (c *Channel) dispatch(message *schema.Message) {
	c.mux.Lock()
	if c.closed {
		c.mux.Unlock()
		return
	}
	listeners := make([]messageListener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mux.Unlock()
	connectionMessage := schema.NewConnectionMessage(message, "")
	for _, listener := range listeners {
		listener.handler(connectionMessage)
	}
}

func (c *Channel) fireClose() {
	c.mux.Lock()
	if c.closeFired {
		c.mux.Unlock()
		return
	}
	c.closeFired = true
	listeners := make([]closeListener, len(c.closeListeners))
	copy(listeners, c.closeListeners)
	c.mux.Unlock()
	for _, listener := range listeners {
		listener.handler()
	}
}
