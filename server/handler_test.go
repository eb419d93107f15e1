package server

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/jsonrpc"
	"github.com/viant/jsonrpc/transport"
	"github.com/viant/mcpgw/backend"
	"github.com/viant/mcpgw/broker"
	"github.com/viant/mcpgw/control"
	"github.com/viant/mcpgw/schema"
	"github.com/viant/mcpgw/session"
)

const waitTime = 2 * time.Second

// recordingTransport plays the MCP server behind the gateway or the client in front of it.
type recordingTransport struct {
	mux           sync.Mutex
	handler       transport.Handler
	requests      []*jsonrpc.Request
	notifications []*jsonrpc.Notification
	send          func(ctx context.Context, request *jsonrpc.Request) (*jsonrpc.Response, error)
	notified      chan *jsonrpc.Notification
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{notified: make(chan *jsonrpc.Notification, 8)}
}

func (r *recordingTransport) Send(ctx context.Context, request *jsonrpc.Request) (*jsonrpc.Response, error) {
	r.mux.Lock()
	r.requests = append(r.requests, request)
	send := r.send
	r.mux.Unlock()
	if send != nil {
		return send(ctx, request)
	}
	return &jsonrpc.Response{Jsonrpc: jsonrpc.Version, Id: request.Id, Result: json.RawMessage(`{"method":"` + request.Method + `"}`)}, nil
}

func (r *recordingTransport) Notify(_ context.Context, notification *jsonrpc.Notification) error {
	r.mux.Lock()
	r.notifications = append(r.notifications, notification)
	r.mux.Unlock()
	r.notified <- notification
	return nil
}

func (r *recordingTransport) methods() []string {
	r.mux.Lock()
	defer r.mux.Unlock()
	var ret []string
	for _, request := range r.requests {
		ret = append(ret, request.Method)
	}
	return ret
}

type stack struct {
	server      *Server
	connections *session.Connections
	pool        *broker.Pool
	backend     *recordingTransport
}

func newStack(t *testing.T, kind backend.Kind) *stack {
	ret := &stack{backend: newRecordingTransport()}
	ret.pool = broker.NewPool(func(ctx context.Context, sessionID string, handler transport.Handler) (transport.Transport, error) {
		ret.backend.handler = handler
		return ret.backend, nil
	})
	factory := &backend.Factory{
		Flag:    func() backend.Kind { return kind },
		Engine:  ret.pool,
		Brokers: ret.pool,
	}
	ret.connections = session.NewConnections(factory, control.NewMemoryBus())
	ret.server = New(ret.connections, WithIDGenerator(func() string { return "s1" }))
	t.Cleanup(func() {
		ret.connections.Close(context.Background())
		_ = ret.pool.Close()
	})
	return ret
}

var kinds = []backend.Kind{backend.KindEvent, backend.KindStreaming}

func TestHandler_Serve(t *testing.T) {
	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			s := newStack(t, kind)
			ctx := context.Background()
			handler := s.server.newHandler(ctx, newRecordingTransport())
			require.NoError(t, handler.err)
			assert.Equal(t, "s1", handler.SessionID())

			response := &jsonrpc.Response{}
			handler.Serve(ctx, &jsonrpc.Request{Jsonrpc: jsonrpc.Version, Id: 1, Method: "tools/list"}, response)
			require.Nil(t, response.Error)
			assert.EqualValues(t, 1, response.Id)
			assert.JSONEq(t, `{"method":"tools/list"}`, string(response.Result))

			ping := &jsonrpc.Response{}
			handler.Serve(ctx, &jsonrpc.Request{Jsonrpc: jsonrpc.Version, Id: 2, Method: schema.MethodPing}, ping)
			require.Nil(t, ping.Error)
			assert.JSONEq(t, `{}`, string(ping.Result))
			assert.Equal(t, []string{"tools/list"}, s.backend.methods())
		})
	}
}

func TestHandler_BackendError(t *testing.T) {
	s := newStack(t, backend.KindEvent)
	s.backend.send = func(ctx context.Context, request *jsonrpc.Request) (*jsonrpc.Response, error) {
		return &jsonrpc.Response{Jsonrpc: jsonrpc.Version, Id: request.Id, Error: jsonrpc.NewMethodNotFound("method not found", nil)}, nil
	}
	ctx := context.Background()
	handler := s.server.newHandler(ctx, newRecordingTransport())
	response := &jsonrpc.Response{}
	handler.Serve(ctx, &jsonrpc.Request{Jsonrpc: jsonrpc.Version, Id: 1, Method: "prompts/list"}, response)
	require.NotNil(t, response.Error)
	assert.Equal(t, "method not found", response.Error.Message)

	invalid := &jsonrpc.Response{}
	handler.Serve(ctx, &jsonrpc.Request{Jsonrpc: "1.0", Id: 2, Method: "tools/list"}, invalid)
	assert.NotNil(t, invalid.Error)
}

func TestHandler_ServerRequest(t *testing.T) {
	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			s := newStack(t, kind)
			ctx := context.Background()
			client := newRecordingTransport()
			client.send = func(ctx context.Context, request *jsonrpc.Request) (*jsonrpc.Response, error) {
				return &jsonrpc.Response{Jsonrpc: jsonrpc.Version, Id: request.Id, Result: json.RawMessage(`{"action":"accept"}`)}, nil
			}
			handler := s.server.newHandler(ctx, client)
			require.NoError(t, handler.err)
			run, err := s.pool.Run(ctx, "s1")
			require.NoError(t, err)
			require.Eventually(t, func() bool { return run.Subscribers() > 0 }, waitTime, time.Millisecond)

			response := &jsonrpc.Response{}
			s.backend.handler.Serve(ctx, &jsonrpc.Request{Jsonrpc: jsonrpc.Version, Id: 9, Method: "elicitation/create"}, response)
			require.Nil(t, response.Error)
			assert.JSONEq(t, `{"action":"accept"}`, string(response.Result))
			assert.Equal(t, []string{"elicitation/create"}, client.methods())

			s.backend.handler.OnNotification(ctx, &jsonrpc.Notification{Jsonrpc: jsonrpc.Version, Method: "notifications/tools/list_changed"})
			select {
			case notification := <-client.notified:
				assert.Equal(t, "notifications/tools/list_changed", notification.Method)
			case <-time.After(waitTime):
				t.Fatal("notification was not relayed")
			}
		})
	}
}

func TestHandler_Keepalive(t *testing.T) {
	s := newStack(t, backend.KindEvent)
	ctx := context.Background()
	client := newRecordingTransport()
	handler := s.server.newHandler(ctx, client)
	require.NoError(t, handler.err)
	conn, err := s.connections.Lookup("s1")
	require.NoError(t, err)
	before := conn.LastMessageAt()

	time.Sleep(5 * time.Millisecond)
	s.connections.PingAll(ctx)
	require.Eventually(t, func() bool { return len(client.methods()) == 1 }, waitTime, time.Millisecond)
	assert.Equal(t, []string{schema.MethodPing}, client.methods())
	client.mux.Lock()
	assert.True(t, strings.HasPrefix((&schema.Message{Id: client.requests[0].Id}).IDString(), schema.PingIDPrefix))
	client.mux.Unlock()
	require.Eventually(t, func() bool { return conn.LastMessageAt().After(before) }, waitTime, time.Millisecond)
	assert.Empty(t, s.backend.methods())
}

func TestHandler_Cancel(t *testing.T) {
	s := newStack(t, backend.KindEvent)
	release := make(chan struct{})
	defer close(release)
	s.backend.send = func(ctx context.Context, request *jsonrpc.Request) (*jsonrpc.Response, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil, errors.New("backend released")
	}
	ctx := context.Background()
	handler := s.server.newHandler(ctx, newRecordingTransport())
	done := make(chan *jsonrpc.Response, 1)
	go func() {
		response := &jsonrpc.Response{}
		handler.Serve(ctx, &jsonrpc.Request{Jsonrpc: jsonrpc.Version, Id: 4, Method: "tools/call"}, response)
		done <- response
	}()
	require.Eventually(t, func() bool { return len(s.backend.methods()) == 1 }, waitTime, time.Millisecond)
	handler.OnNotification(ctx, &jsonrpc.Notification{
		Jsonrpc: jsonrpc.Version,
		Method:  schema.MethodNotificationCancel,
		Params:  json.RawMessage(`{"requestId":4,"reason":"user"}`),
	})
	select {
	case response := <-done:
		require.NotNil(t, response.Error)
		assert.Equal(t, "request cancelled", response.Error.Message)
	case <-time.After(waitTime):
		t.Fatal("request was not cancelled")
	}
	s.backend.mux.Lock()
	defer s.backend.mux.Unlock()
	require.Len(t, s.backend.notifications, 1)
	assert.Equal(t, schema.MethodNotificationCancel, s.backend.notifications[0].Method)
}
