package server

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/viant/jsonrpc"
	"github.com/viant/jsonrpc/transport"
	"github.com/viant/mcpgw/internal/tracking"
	"github.com/viant/mcpgw/schema"
	"github.com/viant/mcpgw/session"
)

// Handler serves one client transport session.
type Handler struct {
	ctx       context.Context
	sessionID string
	client    transport.Transport
	conn      *session.Connection
	active    *activeRequests
	logger    zerolog.Logger
	err       error
}

// SessionID returns the gateway session id of the client.
func (h *Handler) SessionID() string {
	return h.sessionID
}

func (h *Handler) subscribe() {
	filter := &schema.Filter{Types: []schema.SessionMessageType{schema.MessageTypeRequest, schema.MessageTypeNotification}}
	h.conn.OnMessage(filter, h.relay)
}

// Serve sends a client request through the session connection and answers with
// the correlated backend reply.
func (h *Handler) Serve(parent context.Context, request *jsonrpc.Request, response *jsonrpc.Response) {
	response.Id = request.Id
	response.Jsonrpc = jsonrpc.Version
	if jsonrpc.Version != request.Jsonrpc {
		response.Error = jsonrpc.NewInvalidRequest("invalid JSON-RPC version", nil)
		return
	}
	if h.err != nil {
		response.Error = jsonrpc.NewInternalError(h.err.Error(), nil)
		return
	}
	message := schema.FromRequest(request)
	if message.IsPingCall() {
		if _, err := h.conn.SendMessage(parent, message); err != nil {
			response.Error = h.asError(request.Method, err)
			return
		}
		response.Result = []byte("{}")
		return
	}

	ctx, done := h.active.start(parent, message)
	defer done()
	var reply *schema.Message
	var mux sync.Mutex
	err := h.conn.SendMessagesAndWaitForResponse(ctx, []*schema.Message{message}, func(inbound *schema.ConnectionMessage) {
		if inbound.Type == schema.MessageTypeRequest {
			return
		}
		mux.Lock()
		reply = inbound.Message
		mux.Unlock()
	})
	mux.Lock()
	defer mux.Unlock()
	switch {
	case err != nil:
		response.Error = h.asError(request.Method, err)
	case reply != nil:
		response.Result = reply.Result
		response.Error = reply.Error
	default:
		response.Error = jsonrpc.NewInternalError("missing backend reply", nil)
	}
}

func (h *Handler) asError(method string, err error) *jsonrpc.Error {
	switch {
	case errors.Is(err, schema.ErrResponseTimeout):
		return schema.NewTimeoutError(method)
	case errors.Is(err, context.Canceled):
		return jsonrpc.NewInternalError("request cancelled", nil)
	}
	tracking.Capture(err, "ingress", h.sessionID, map[string]interface{}{"method": method})
	return schema.NewBackendError(err)
}

// OnNotification forwards a client notification to the backend. A cancellation
// also abandons the local wait of the cancelled request.
func (h *Handler) OnNotification(ctx context.Context, notification *jsonrpc.Notification) {
	if h.err != nil {
		return
	}
	if notification.Method == schema.MethodNotificationCancel {
		id, err := cancelledRequestID(notification)
		if err != nil {
			h.logger.Debug().Err(err).Msg("invalid cancellation")
		} else {
			h.active.cancel(id)
		}
	}
	if _, err := h.conn.SendMessage(ctx, schema.FromNotification(notification)); err != nil {
		h.logger.Debug().Err(err).Str("method", notification.Method).Msg("failed to forward notification")
	}
}

// relay delivers backend requests and notifications, and control channel pings,
// to the client. Replies are consumed by Serve.
func (h *Handler) relay(inbound *schema.ConnectionMessage) {
	message := inbound.Message
	switch inbound.Type {
	case schema.MessageTypeNotification:
		if err := h.client.Notify(h.ctx, message.Notification()); err != nil {
			h.logger.Debug().Err(err).Str("method", message.Method).Msg("failed to relay notification")
		}
	case schema.MessageTypeRequest:
		go h.forward(message)
	}
}

// forward sends a request to the client and routes the client's reply back
// through the connection. Replies to keepalive pings only refresh liveness.
func (h *Handler) forward(message *schema.Message) {
	response, err := h.client.Send(h.ctx, message.Request())
	if err == nil && response == nil {
		err = errors.New("empty client response")
	}
	if err != nil {
		if message.IsSyntheticPing() {
			h.logger.Debug().Err(err).Msg("client did not answer keepalive ping")
			return
		}
		h.logger.Warn().Err(err).Str("method", message.Method).Msg("failed to relay request")
		response = &jsonrpc.Response{Jsonrpc: jsonrpc.Version, Error: jsonrpc.NewInternalError(err.Error(), nil)}
	}
	reply := schema.FromResponse(response)
	reply.Id = message.Id
	if _, err = h.conn.SendMessage(h.ctx, reply); err != nil {
		h.logger.Debug().Err(err).Msg("failed to route client reply")
	}
}
