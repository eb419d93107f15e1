package control

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/mcpgw/schema"
)

const waitTime = 2 * time.Second

func receive(t *testing.T, ch <-chan *schema.ConnectionMessage) *schema.ConnectionMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(waitTime):
		t.Fatal("timed out waiting for control message")
	}
	return nil
}

func TestChannel_Emit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	var testCases = []struct {
		description string
		bus         Bus
	}{
		{description: "memory", bus: NewMemoryBus()},
		{description: "redis", bus: NewRedisBus(client)},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			ctx := context.Background()
			channel := New("s1", schema.ModeSendAndReceive, testCase.bus, WithNamespace("test"))
			defer channel.Close()
			channel.Connect(ctx)
			require.False(t, channel.Degraded())

			received := make(chan *schema.ConnectionMessage, 4)
			channel.OnMessage(func(message *schema.ConnectionMessage) {
				received <- message
			})
			pong := schema.NewPingResponse(&schema.Message{Id: float64(7), Method: schema.MethodPing})
			require.NoError(t, channel.Emit(ctx, pong))

			actual := receive(t, received)
			assert.Equal(t, schema.MessageTypeResponse, actual.Type)
			assert.Equal(t, "7", actual.Message.IDString())
			assert.JSONEq(t, "{}", string(actual.Message.Result))
			assert.Empty(t, actual.TrackingID)
		})
	}
}

func TestChannel_TopicIsolation(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()
	first := New("s1", schema.ModeSendAndReceive, bus)
	second := New("s2", schema.ModeSendAndReceive, bus)
	defer first.Close()
	defer second.Close()
	first.Connect(ctx)
	second.Connect(ctx)

	firstReceived := make(chan *schema.ConnectionMessage, 4)
	secondReceived := make(chan *schema.ConnectionMessage, 4)
	first.OnMessage(func(message *schema.ConnectionMessage) { firstReceived <- message })
	second.OnMessage(func(message *schema.ConnectionMessage) { secondReceived <- message })

	require.NoError(t, first.Emit(ctx, schema.NewPingRequest("s1")))
	require.NoError(t, second.Emit(ctx, schema.NewPingRequest("s2")))

	assert.Contains(t, receive(t, firstReceived).Message.IDString(), "/s1/")
	assert.Contains(t, receive(t, secondReceived).Message.IDString(), "/s2/")
	select {
	case msg := <-firstReceived:
		t.Fatalf("unexpected message on s1: %v", msg.Message.IDString())
	case msg := <-secondReceived:
		t.Fatalf("unexpected message on s2: %v", msg.Message.IDString())
	case <-time.After(50 * time.Millisecond):
	}
}

func TestChannel_SendOnly(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()
	channel := New("s1", schema.ModeSendOnly, bus)
	defer channel.Close()
	channel.Connect(ctx)
	assert.Equal(t, 0, bus.Subscribers(channel.Topic()))
	assert.NoError(t, channel.Emit(ctx, schema.NewPingRequest("s1")))
}

func TestChannel_Close(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()
	channel := New("s1", schema.ModeSendAndReceive, bus)
	channel.Connect(ctx)
	require.Equal(t, 1, bus.Subscribers(channel.Topic()))

	closed := 0
	channel.OnClose(func() { closed++ })
	disposed := 0
	dispose := channel.OnClose(func() { disposed++ })
	dispose()

	channel.Close()
	channel.Close()
	assert.Equal(t, 1, closed)
	assert.Equal(t, 0, disposed)
	assert.Equal(t, 0, bus.Subscribers(channel.Topic()))
	assert.NoError(t, channel.Emit(ctx, schema.NewPingRequest("s1")))
}

func TestChannel_RemoteClose(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()
	local := New("s1", schema.ModeSendAndReceive, bus)
	remote := New("s1", schema.ModeSendOnly, bus)
	defer local.Close()
	defer remote.Close()
	local.Connect(ctx)

	closed := make(chan struct{})
	local.OnClose(func() { close(closed) })
	require.NoError(t, remote.EmitClose(ctx))
	select {
	case <-closed:
	case <-time.After(waitTime):
		t.Fatal("close event was not delivered")
	}
}

type failingBus struct{}

func (failingBus) Publish(context.Context, string, []byte) error {
	return errors.New("publish failed")
}

func (failingBus) Subscribe(context.Context, string) (Subscription, error) {
	return nil, errors.New("connection refused")
}

func TestChannel_Degraded(t *testing.T) {
	ctx := context.Background()
	channel := New("s1", schema.ModeSendAndReceive, failingBus{})
	channel.Connect(ctx)
	assert.True(t, channel.Degraded())
	assert.Error(t, channel.Emit(ctx, schema.NewPingRequest("s1")))
	channel.Close()
}

func TestEvent_JSON(t *testing.T) {
	var testCases = []struct {
		description string
		event       Event
		expect      string
	}{
		{description: "close", event: Event{Type: EventClose}, expect: `["close",null]`},
		{
			description: "message",
			event:       Event{Type: EventMessage, Message: &schema.Message{Jsonrpc: "2.0", Id: "1", Result: []byte(`{}`)}},
			expect:      `["message",{"jsonrpc":"2.0","id":"1","result":{}}]`,
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			data, err := testCase.event.MarshalJSON()
			require.NoError(t, err)
			assert.JSONEq(t, testCase.expect, string(data))
		})
	}

	event := &Event{}
	assert.Error(t, event.UnmarshalJSON([]byte(`["message"]`)))
	assert.Error(t, event.UnmarshalJSON([]byte(`["unknown",null]`)))
}
