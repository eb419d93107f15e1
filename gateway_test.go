package mcpgw

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/jsonrpc"
	"github.com/viant/jsonrpc/transport"
	"github.com/viant/mcpgw/backend"
	"github.com/viant/mcpgw/store"
)

type echoTransport struct {
	mux     sync.Mutex
	methods []string
}

func (e *echoTransport) Send(_ context.Context, request *jsonrpc.Request) (*jsonrpc.Response, error) {
	e.mux.Lock()
	e.methods = append(e.methods, request.Method)
	e.mux.Unlock()
	return &jsonrpc.Response{Jsonrpc: jsonrpc.Version, Id: request.Id, Result: json.RawMessage(`{"echo":"` + request.Method + `"}`)}, nil
}

func (e *echoTransport) Notify(context.Context, *jsonrpc.Notification) error {
	return nil
}

type nopClient struct{}

func (nopClient) Send(_ context.Context, request *jsonrpc.Request) (*jsonrpc.Response, error) {
	return &jsonrpc.Response{Jsonrpc: jsonrpc.Version, Id: request.Id, Result: json.RawMessage(`{}`)}, nil
}

func (nopClient) Notify(context.Context, *jsonrpc.Notification) error {
	return nil
}

func newGateway(t *testing.T, options *Options, opts ...Option) (*Gateway, *echoTransport, *int) {
	backendTransport := &echoTransport{}
	dials := 0
	var mux sync.Mutex
	opts = append(opts, WithDialer(func(ctx context.Context, sessionID string, handler transport.Handler) (transport.Transport, error) {
		mux.Lock()
		dials++
		mux.Unlock()
		return backendTransport, nil
	}))
	gateway, err := New(context.Background(), options, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = gateway.Close(context.Background())
	})
	return gateway, backendTransport, &dials
}

func TestGateway_Serve(t *testing.T) {
	for _, kind := range []backend.Kind{backend.KindStreaming, backend.KindEvent} {
		t.Run(string(kind), func(t *testing.T) {
			gateway, backendTransport, dials := newGateway(t, &Options{BackendKind: string(kind)})
			assert.Equal(t, kind, gateway.BackendKind())

			ctx := context.Background()
			handler := gateway.Server().NewHandler(ctx, nopClient{})
			response := &jsonrpc.Response{}
			handler.Serve(ctx, &jsonrpc.Request{Jsonrpc: jsonrpc.Version, Id: 1, Method: "tools/list"}, response)
			require.Nil(t, response.Error)
			assert.JSONEq(t, `{"echo":"tools/list"}`, string(response.Result))
			assert.Equal(t, []string{"tools/list"}, backendTransport.methods)
			assert.Equal(t, 1, *dials)
			assert.Equal(t, 1, gateway.Connections().Len())
			assert.Equal(t, 1, gateway.Pool().Len())
		})
	}
}

func TestGateway_SetBackendKind(t *testing.T) {
	gateway, _, _ := newGateway(t, &Options{})
	assert.Equal(t, backend.KindStreaming, gateway.BackendKind())
	gateway.SetBackendKind(backend.KindEvent)

	ctx := context.Background()
	handler := gateway.Server().NewHandler(ctx, nopClient{})
	response := &jsonrpc.Response{}
	handler.Serve(ctx, &jsonrpc.Request{Jsonrpc: jsonrpc.Version, Id: "a", Method: "resources/list"}, response)
	require.Nil(t, response.Error)
	assert.JSONEq(t, `{"echo":"resources/list"}`, string(response.Result))
}

func TestGateway_Redis(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	gateway, _, _ := newGateway(t, &Options{BackendKind: "event", Namespace: "team"}, WithRedisClient(client))
	ctx := context.Background()
	handler := gateway.Server().NewHandler(ctx, nopClient{})
	response := &jsonrpc.Response{}
	handler.Serve(ctx, &jsonrpc.Request{Jsonrpc: jsonrpc.Version, Id: 1, Method: "tools/list"}, response)
	require.Nil(t, response.Error)

	require.Equal(t, 1, gateway.Connections().Len())
	records := store.NewRedisStore(client, "team", 0)
	var sessionID string
	for _, key := range server.Keys() {
		if id, ok := strings.CutPrefix(key, "team:session:"); ok {
			sessionID = id
		}
	}
	require.NotEmpty(t, sessionID)
	record, ok, err := records.Get(ctx, sessionID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, store.StatusActive, record.Status)
}

func TestNew_InvalidOptions(t *testing.T) {
	_, err := New(context.Background(), &Options{BackendKind: "event"})
	assert.Error(t, err)
	_, err = New(context.Background(), nil)
	assert.Error(t, err)
}
