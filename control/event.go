package control

import (
	"encoding/json"
	"fmt"

	"github.com/viant/mcpgw/schema"
)

// EventType tags a control event.
type EventType string

const (
	EventMessage EventType = "message"
	EventClose   EventType = "close"
)

// Event is the tagged union carried on a control topic.
type Event struct {
	Type    EventType
	Message *schema.Message
}

// MarshalJSON encodes the event as [type, payload].
func (e Event) MarshalJSON() ([]byte, error) {
	var payload interface{}
	if e.Type == EventMessage {
		payload = e.Message
	}
	return json.Marshal([]interface{}{e.Type, payload})
}

// UnmarshalJSON decodes [type, payload].
func (e *Event) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) != 2 {
		return fmt.Errorf("invalid control event: expected 2 elements, got %v", len(parts))
	}
	if err := json.Unmarshal(parts[0], &e.Type); err != nil {
		return err
	}
	switch e.Type {
	case EventMessage:
		e.Message = &schema.Message{}
		return json.Unmarshal(parts[1], e.Message)
	case EventClose:
		return nil
	}
	return fmt.Errorf("unsupported control event type: %v", e.Type)
}
