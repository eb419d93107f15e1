package backend

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/viant/mcpgw/internal/pending"
	"github.com/viant/mcpgw/schema"
)

// Kind selects an adapter implementation.
type Kind string

const (
	KindStreaming Kind = "streaming"
	KindEvent     Kind = "event"
)

// Factory creates the adapter of a session. Flag is read once per New call.
type Factory struct {
	Flag       func() Kind
	Engine     Engine
	Brokers    BrokerProvider
	Correlator *pending.Correlator
	Logger     zerolog.Logger
}

// New creates exactly one adapter variant for sessionID.
func (f *Factory) New(ctx context.Context, sessionID string, mode schema.ConnectionMode) (Adapter, error) {
	kind := KindStreaming
	if f.Flag != nil {
		kind = f.Flag()
	}
	switch kind {
	case KindStreaming, "":
		if f.Engine == nil {
			return nil, fmt.Errorf("streaming adapter requires an engine")
		}
		return NewStreamingAdapter(sessionID, mode, f.Engine, f.Logger), nil
	case KindEvent:
		if f.Brokers == nil {
			return nil, fmt.Errorf("event adapter requires a broker provider")
		}
		broker, err := f.Brokers.Broker(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to attach broker for session %v: %w", sessionID, err)
		}
		return NewEventAdapter(sessionID, mode, broker, f.Correlator, f.Logger), nil
	}
	return nil, fmt.Errorf("unsupported backend kind: %v", kind)
}
