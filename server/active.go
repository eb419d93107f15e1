package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/viant/jsonrpc"
	"github.com/viant/mcpgw/internal/collection"
	"github.com/viant/mcpgw/schema"
)

// activeRequests tracks in-flight client requests so a cancellation
// notification can abandon the wait.
type activeRequests struct {
	items *collection.SyncMap[string, context.CancelFunc]
}

func newActiveRequests() *activeRequests {
	return &activeRequests{items: collection.NewSyncMap[string, context.CancelFunc]()}
}

func (a *activeRequests) start(parent context.Context, message *schema.Message) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	key := message.IDString()
	a.items.Put(key, cancel)
	return ctx, func() {
		cancel()
		a.items.Delete(key)
	}
}

func (a *activeRequests) cancel(id string) bool {
	cancel, ok := a.items.Get(id)
	if ok {
		cancel()
		a.items.Delete(id)
	}
	return ok
}

type cancelledParams struct {
	RequestId interface{} `json:"requestId"`
	Reason    string      `json:"reason,omitempty"`
}

// cancelledRequestID extracts the request id of a cancellation notification.
func cancelledRequestID(notification *jsonrpc.Notification) (string, error) {
	params := &cancelledParams{}
	if err := json.Unmarshal(notification.Params, params); err != nil {
		return "", fmt.Errorf("failed to parse notification: %w", err)
	}
	if params.RequestId == nil {
		return "", fmt.Errorf("invalid requestId")
	}
	return (&schema.Message{Id: params.RequestId}).IDString(), nil
}
