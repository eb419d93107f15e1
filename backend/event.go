package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/viant/mcpgw/internal/pending"
	"github.com/viant/mcpgw/internal/tracking"
	"github.com/viant/mcpgw/schema"
)

// EventAdapter forwards session traffic to a Broker run. The broker has no reply
// stream, so the adapter correlates replies to sent requests itself.
type EventAdapter struct {
	sessionID  string
	mode       schema.ConnectionMode
	broker     Broker
	correlator *pending.Correlator
	logger     zerolog.Logger

	mux     sync.Mutex
	closed  bool
	stopped bool
	done    chan struct{}
}

// NewEventAdapter creates an adapter over broker.
func NewEventAdapter(sessionID string, mode schema.ConnectionMode, broker Broker, correlator *pending.Correlator, logger zerolog.Logger) *EventAdapter {
	if correlator == nil {
		correlator = pending.New(nil, 0)
	}
	return &EventAdapter{
		sessionID:  sessionID,
		mode:       mode,
		broker:     broker,
		correlator: correlator,
		logger:     logger.With().Str("session", sessionID).Str("adapter", "event").Logger(),
		done:       make(chan struct{}),
	}
}

func (a *EventAdapter) Mode() schema.ConnectionMode {
	return a.mode
}

// SendMessage forwards messages to the broker. With IncludeResponses set it waits
// until every sent request has a reply, the wait times out or the adapter closes.
func (a *EventAdapter) SendMessage(ctx context.Context, messages []*schema.Message, options *SendOptions) (*SendResult, error) {
	if a.isClosed() {
		return nil, schema.ErrBackendClosed
	}
	if options == nil || !options.IncludeResponses {
		sent, err := a.send(ctx, messages)
		if err != nil {
			return nil, err
		}
		return &SendResult{Messages: sent}, nil
	}

	result := &SendResult{}
	var resultMux sync.Mutex
	sent, err := a.correlator.SendAndWait(ctx,
		func(ctx context.Context) ([]*schema.ConnectionMessage, error) {
			return a.send(ctx, messages)
		},
		a.broker.OnMessage,
		func(message *schema.ConnectionMessage) {
			if message.Type == schema.MessageTypeRequest {
				return
			}
			resultMux.Lock()
			result.Responses = append(result.Responses, message)
			resultMux.Unlock()
			if options.OnResponse != nil {
				options.OnResponse(message)
			}
		},
		a.done)
	resultMux.Lock()
	defer resultMux.Unlock()
	result.Messages = sent
	if err == schema.ErrConnectionClosed {
		err = schema.ErrBackendClosed
	}
	return result, err
}

func (a *EventAdapter) send(ctx context.Context, messages []*schema.Message) ([]*schema.ConnectionMessage, error) {
	sent, err := a.broker.SendMessage(ctx, messages)
	if err != nil {
		tracking.Capture(err, "broker", a.sessionID, nil)
		return nil, fmt.Errorf("failed to send messages: %w", err)
	}
	return sent, nil
}

// OnMessage subscribes handler to broker events; the subscription ends on cancel or Close.
func (a *EventAdapter) OnMessage(_ context.Context, filter *schema.Filter, handler schema.Handler) func() {
	if a.isClosed() {
		return func() {}
	}
	cancel := a.broker.OnMessage(filter, func(message *schema.ConnectionMessage) {
		if a.isClosed() {
			return
		}
		handler(message)
	})
	var once sync.Once
	stop := make(chan struct{})
	ret := func() {
		once.Do(func() {
			close(stop)
			cancel()
		})
	}
	go func() {
		select {
		case <-a.done:
			ret()
		case <-stop:
		}
	}()
	return ret
}

// Close detaches from the broker run without terminating it.
func (a *EventAdapter) Close() error {
	a.mux.Lock()
	if a.closed {
		a.mux.Unlock()
		return nil
	}
	a.closed = true
	close(a.done)
	a.mux.Unlock()
	return a.broker.Close()
}

// Stop terminates the broker run, then closes the adapter.
func (a *EventAdapter) Stop(ctx context.Context) error {
	a.mux.Lock()
	if a.stopped || a.closed {
		a.mux.Unlock()
		return nil
	}
	a.stopped = true
	a.mux.Unlock()
	err := a.broker.Stop(ctx)
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to stop broker run")
		tracking.Capture(err, "broker", a.sessionID, nil)
	}
	if closeErr := a.Close(); err == nil {
		err = closeErr
	}
	return err
}

func (a *EventAdapter) isClosed() bool {
	a.mux.Lock()
	defer a.mux.Unlock()
	return a.closed
}
