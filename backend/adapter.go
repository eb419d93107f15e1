// Package backend defines the data plane between a session and the execution
// backend running its MCP server. Two interchangeable adapters exist: a streaming
// adapter over an Engine and an event adapter over a Broker. A Factory picks one
// per session.
package backend

import (
	"context"
	"io"

	"github.com/viant/mcpgw/schema"
)

// SendOptions controls how an adapter sends messages.
type SendOptions struct {
	// IncludeResponses makes SendMessage wait for the replies to the sent requests.
	IncludeResponses bool
	// OnResponse is invoked for every reply as soon as it arrives.
	OnResponse schema.Handler
}

// SendResult holds the outcome of SendMessage.
type SendResult struct {
	// Messages are the sent records, each annotated with its type and tracking id.
	Messages []*schema.ConnectionMessage
	// Responses are the replies collected when IncludeResponses was set.
	Responses []*schema.ConnectionMessage
}

// Adapter is the session facing side of an execution backend.
type Adapter interface {
	Mode() schema.ConnectionMode
	SendMessage(ctx context.Context, messages []*schema.Message, options *SendOptions) (*SendResult, error)
	// OnMessage subscribes handler to inbound messages until cancel or Close is called.
	OnMessage(ctx context.Context, filter *schema.Filter, handler schema.Handler) (cancel func())
	Close() error
	// Stop terminates the backend run before closing the adapter.
	Stop(ctx context.Context) error
}

// Stream yields messages pushed by an Engine. Recv returns io.EOF once the stream ends.
type Stream interface {
	Recv() (*schema.ConnectionMessage, error)
	Close() error
}

// Engine is a backend that answers over server initiated streams.
type Engine interface {
	// SendMessage forwards messages and returns their sent records together with a
	// stream of replies. The stream is empty unless includeResponses is set.
	SendMessage(ctx context.Context, sessionID string, messages []*schema.Message, includeResponses bool) ([]*schema.ConnectionMessage, Stream, error)
	// StreamMessages pushes inbound messages matching filter until ctx is done.
	StreamMessages(ctx context.Context, sessionID string, filter *schema.Filter) (Stream, error)
	// StopSession terminates the backend run of the session.
	StopSession(ctx context.Context, sessionID string) error
}

// Broker is a backend run delivering inbound messages as events.
type Broker interface {
	SendMessage(ctx context.Context, messages []*schema.Message) ([]*schema.ConnectionMessage, error)
	OnMessage(filter *schema.Filter, handler schema.Handler) (cancel func())
	Close() error
	Stop(ctx context.Context) error
}

// BrokerProvider attaches to the broker run of a session.
type BrokerProvider interface {
	Broker(ctx context.Context, sessionID string) (Broker, error)
}

// EmptyStream is a Stream that ends immediately.
type EmptyStream struct{}

func (EmptyStream) Recv() (*schema.ConnectionMessage, error) {
	return nil, io.EOF
}

func (EmptyStream) Close() error {
	return nil
}
