package broker

import (
	"context"
	"fmt"
	"net/http"

	"github.com/viant/jsonrpc/transport"
	"github.com/viant/jsonrpc/transport/client/http/sse"
	"github.com/viant/jsonrpc/transport/client/http/streamable"
	"github.com/viant/jsonrpc/transport/client/stdio"
)

// Dialer connects a run to its MCP server. handler receives server initiated
// requests and notifications; ctx is done once the run terminates.
type Dialer func(ctx context.Context, sessionID string, handler transport.Handler) (transport.Transport, error)

// Target describes the MCP server every session run connects to.
type Target struct {
	Type      string   `yaml:"type" json:"type" long:"backend-type" description:"backend transport type, e.g., stdio, sse, streamable" choice:"stdio" choice:"sse" choice:"streamable"`
	Command   string   `yaml:"command,omitempty" json:"command,omitempty" long:"backend-command" description:"backend command (stdio)"`
	Arguments []string `yaml:"arguments,omitempty" json:"arguments,omitempty" long:"backend-arg" description:"backend command arguments (stdio)"`
	URL       string   `yaml:"url,omitempty" json:"url,omitempty" long:"backend-url" description:"backend url (sse, streamable)"`

	HTTPClient *http.Client `yaml:"-" json:"-" toml:"-" no-flag:"true"`
}

// Dialer returns a Dialer creating a fresh client transport per run.
func (t *Target) Dialer() Dialer {
	return func(ctx context.Context, sessionID string, handler transport.Handler) (transport.Transport, error) {
		return t.dial(ctx, handler)
	}
}

func (t *Target) dial(ctx context.Context, handler transport.Handler) (transport.Transport, error) {
	switch t.Type {
	case "stdio":
		if t.Command == "" {
			return nil, fmt.Errorf("command is required for stdio transport")
		}
		ret, err := stdio.New(t.Command,
			stdio.WithHandler(handler),
			stdio.WithArguments(t.Arguments...))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdio transport: %w", err)
		}
		return ret, nil
	case "sse":
		if t.URL == "" {
			return nil, fmt.Errorf("URL is required for sse transport")
		}
		opts := []sse.Option{sse.WithHandler(handler)}
		if t.HTTPClient != nil {
			opts = append(opts, sse.WithHttpClient(t.HTTPClient), sse.WithMessageHttpClient(t.HTTPClient))
		}
		ret, err := sse.New(ctx, t.URL, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create SSE transport: %w", err)
		}
		return ret, nil
	case "streamable":
		if t.URL == "" {
			return nil, fmt.Errorf("URL is required for streamable transport")
		}
		opts := []streamable.Option{streamable.WithHandler(handler)}
		if t.HTTPClient != nil {
			opts = append(opts, streamable.WithHTTPClient(t.HTTPClient))
		}
		ret, err := streamable.New(ctx, t.URL, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create streamable transport: %w", err)
		}
		return ret, nil
	default:
		return nil, fmt.Errorf("no backend transport configured")
	}
}
