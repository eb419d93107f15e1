package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"github.com/viant/mcpgw/internal/tracking"
	"github.com/viant/mcpgw/schema"
)

// StreamingAdapter forwards session traffic to an Engine.
type StreamingAdapter struct {
	sessionID string
	mode      schema.ConnectionMode
	engine    Engine
	logger    zerolog.Logger

	mux     sync.Mutex
	seq     int
	cancels map[int]context.CancelFunc
	closed  bool
}

// NewStreamingAdapter creates an adapter bound to sessionID.
func NewStreamingAdapter(sessionID string, mode schema.ConnectionMode, engine Engine, logger zerolog.Logger) *StreamingAdapter {
	return &StreamingAdapter{
		sessionID: sessionID,
		mode:      mode,
		engine:    engine,
		logger:    logger.With().Str("session", sessionID).Str("adapter", "streaming").Logger(),
		cancels:   make(map[int]context.CancelFunc),
	}
}

func (a *StreamingAdapter) Mode() schema.ConnectionMode {
	return a.mode
}

// SendMessage forwards messages and drains the reply stream. Every reply is
// appended to the result and reported through options.OnResponse as it arrives.
func (a *StreamingAdapter) SendMessage(ctx context.Context, messages []*schema.Message, options *SendOptions) (*SendResult, error) {
	if a.isClosed() {
		return nil, schema.ErrBackendClosed
	}
	if options == nil {
		options = &SendOptions{}
	}
	sent, stream, err := a.engine.SendMessage(ctx, a.sessionID, messages, options.IncludeResponses)
	if err != nil {
		tracking.Capture(err, "engine", a.sessionID, nil)
		return nil, fmt.Errorf("failed to send messages: %w", err)
	}
	result := &SendResult{Messages: sent}
	if stream == nil {
		return result, nil
	}
	defer stream.Close()
	for {
		message, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return result, nil
		}
		if err != nil {
			tracking.Capture(err, "engine", a.sessionID, nil)
			return result, fmt.Errorf("failed to receive response: %w", err)
		}
		result.Responses = append(result.Responses, message)
		if options.OnResponse != nil {
			options.OnResponse(message)
		}
	}
}

// OnMessage opens a push stream filtered by type, ids and replay cursor.
func (a *StreamingAdapter) OnMessage(ctx context.Context, filter *schema.Filter, handler schema.Handler) func() {
	a.mux.Lock()
	if a.closed {
		a.mux.Unlock()
		return func() {}
	}
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.seq++
	id := a.seq
	a.cancels[id] = cancel
	a.mux.Unlock()

	dispose := func() {
		cancel()
		a.mux.Lock()
		delete(a.cancels, id)
		a.mux.Unlock()
	}
	stream, err := a.engine.StreamMessages(streamCtx, a.sessionID, filter)
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to open message stream")
		tracking.Capture(err, "engine", a.sessionID, nil)
		dispose()
		return func() {}
	}
	go func() {
		defer dispose()
		defer stream.Close()
		for {
			message, err := stream.Recv()
			if err != nil {
				if !errors.Is(err, io.EOF) && streamCtx.Err() == nil {
					a.logger.Warn().Err(err).Msg("message stream failed")
					tracking.Capture(err, "engine", a.sessionID, nil)
				}
				return
			}
			if streamCtx.Err() != nil {
				return
			}
			handler(message)
		}
	}()
	return dispose
}

// Close detaches every open stream.
func (a *StreamingAdapter) Close() error {
	a.mux.Lock()
	if a.closed {
		a.mux.Unlock()
		return nil
	}
	a.closed = true
	cancels := a.cancels
	a.cancels = make(map[int]context.CancelFunc)
	a.mux.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	return nil
}

// Stop terminates the session run on the engine and closes the adapter.
func (a *StreamingAdapter) Stop(ctx context.Context) error {
	if a.isClosed() {
		return nil
	}
	err := a.engine.StopSession(ctx, a.sessionID)
	if err != nil {
		tracking.Capture(err, "engine", a.sessionID, nil)
	}
	_ = a.Close()
	return err
}

func (a *StreamingAdapter) isClosed() bool {
	a.mux.Lock()
	defer a.mux.Unlock()
	return a.closed
}
