package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/viant/jsonrpc"
)

// SessionMessageType classifies a message flowing through a session.
type SessionMessageType string

const (
	MessageTypeRequest      SessionMessageType = "request"
	MessageTypeResponse     SessionMessageType = "response"
	MessageTypeNotification SessionMessageType = "notification"
	MessageTypeError        SessionMessageType = "error"
)

// AllMessageTypes lists every session message type.
var AllMessageTypes = []SessionMessageType{MessageTypeError, MessageTypeNotification, MessageTypeResponse, MessageTypeRequest}

// ConnectionMode determines whether a session receives inbound traffic at all.
type ConnectionMode string

const (
	ModeSendOnly       ConnectionMode = "send-only"
	ModeSendAndReceive ConnectionMode = "send-and-receive"
)

// Receives reports whether the mode subscribes to inbound traffic.
func (m ConnectionMode) Receives() bool {
	return m == ModeSendAndReceive
}

// Message is a single JSON-RPC message: request, notification, response or error response.
type Message struct {
	Jsonrpc string          `json:"jsonrpc"`
	Id      any             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpc.Error  `json:"error,omitempty"`
}

// Type returns the session message type of m.
func (m *Message) Type() SessionMessageType {
	switch {
	case m.Method != "" && m.Id != nil:
		return MessageTypeRequest
	case m.Method != "":
		return MessageTypeNotification
	case m.Error != nil:
		return MessageTypeError
	}
	return MessageTypeResponse
}

// HasID reports whether m carries an id.
func (m *Message) HasID() bool {
	return m.Id != nil
}

// IDString returns the string form of the id, or "" when absent.
func (m *Message) IDString() string {
	if m.Id == nil {
		return ""
	}
	switch v := m.Id.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return fmt.Sprintf("%v", m.Id)
}

// IsPingCall reports whether m is a ping request or notification.
func (m *Message) IsPingCall() bool {
	return m.Method == MethodPing
}

// IsSyntheticPing reports whether m carries an id issued for gateway keepalive pings.
func (m *Message) IsSyntheticPing() bool {
	return m.Id != nil && strings.HasPrefix(m.IDString(), PingIDPrefix)
}

// Request converts m into a jsonrpc request.
func (m *Message) Request() *jsonrpc.Request {
	return &jsonrpc.Request{Id: m.Id, Jsonrpc: jsonrpc.Version, Method: m.Method, Params: m.Params}
}

// Notification converts m into a jsonrpc notification.
func (m *Message) Notification() *jsonrpc.Notification {
	return &jsonrpc.Notification{Jsonrpc: jsonrpc.Version, Method: m.Method, Params: m.Params}
}

// FromRequest creates a message from a jsonrpc request
func FromRequest(request *jsonrpc.Request) *Message {
	return &Message{Jsonrpc: jsonrpc.Version, Id: request.Id, Method: request.Method, Params: request.Params}
}

// FromNotification creates a message from a jsonrpc notification
func FromNotification(notification *jsonrpc.Notification) *Message {
	return &Message{Jsonrpc: jsonrpc.Version, Method: notification.Method, Params: notification.Params}
}

// FromResponse creates a message from a jsonrpc response
func FromResponse(response *jsonrpc.Response) *Message {
	return &Message{Jsonrpc: jsonrpc.Version, Id: response.Id, Result: response.Result, Error: response.Error}
}

// NewPingRequest creates a keepalive ping request whose id carries PingIDPrefix.
func NewPingRequest(sessionID string) *Message {
	return &Message{
		Jsonrpc: jsonrpc.Version,
		Id:      PingIDPrefix + sessionID + "/" + uuid.NewString(),
		Method:  MethodPing,
	}
}

// NewPingResponse creates the empty-result response answering ping.
func NewPingResponse(ping *Message) *Message {
	return &Message{Jsonrpc: jsonrpc.Version, Id: ping.Id, Result: json.RawMessage("{}")}
}

// ConnectionMessage is a message annotated with its backend correlation handle.
type ConnectionMessage struct {
	Message    *Message           `json:"message"`
	TrackingID string             `json:"trackingId,omitempty"`
	Type       SessionMessageType `json:"type,omitempty"`
}

// NewConnectionMessage wraps message, deriving its type.
func NewConnectionMessage(message *Message, trackingID string) *ConnectionMessage {
	return &ConnectionMessage{Message: message, TrackingID: trackingID, Type: message.Type()}
}

// Handler receives inbound connection messages.
type Handler func(message *ConnectionMessage)

// Pull describes a replay of stored messages before live delivery starts.
type Pull struct {
	AfterID string               `json:"afterId,omitempty"`
	Types   []SessionMessageType `json:"type,omitempty"`
}

// Filter selects inbound messages.
type Filter struct {
	Types []SessionMessageType `json:"type,omitempty"`
	IDs   []string             `json:"ids,omitempty"`
	Pull  *Pull                `json:"pull,omitempty"`
}

// Matches reports whether message passes the type and id restrictions of f.
func (f *Filter) Matches(message *ConnectionMessage) bool {
	if f == nil {
		return true
	}
	if len(f.Types) > 0 && !containsType(f.Types, message.Type) {
		return false
	}
	if len(f.IDs) > 0 {
		for _, id := range f.IDs {
			if id == message.TrackingID {
				return true
			}
		}
		return false
	}
	return true
}

func containsType(types []SessionMessageType, candidate SessionMessageType) bool {
	for _, t := range types {
		if t == candidate {
			return true
		}
	}
	return false
}
