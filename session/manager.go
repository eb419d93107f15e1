package session

import (
	"context"

	"github.com/viant/mcpgw/backend"
	"github.com/viant/mcpgw/schema"
)

// Manager binds a session to its backend adapter.
type Manager struct {
	sessionID string
	adapter   backend.Adapter
}

// NewManager creates a manager for sessionID.
func NewManager(sessionID string, adapter backend.Adapter) *Manager {
	return &Manager{sessionID: sessionID, adapter: adapter}
}

func (m *Manager) Mode() schema.ConnectionMode {
	return m.adapter.Mode()
}

// SendMessage forwards messages and returns the sent records.
func (m *Manager) SendMessage(ctx context.Context, messages []*schema.Message) ([]*schema.ConnectionMessage, error) {
	result, err := m.Send(ctx, messages, nil)
	if result == nil {
		return nil, err
	}
	return result.Messages, err
}

// Send forwards messages with explicit send options.
func (m *Manager) Send(ctx context.Context, messages []*schema.Message, options *backend.SendOptions) (*backend.SendResult, error) {
	return m.adapter.SendMessage(ctx, messages, options)
}

func (m *Manager) OnMessage(ctx context.Context, filter *schema.Filter, handler schema.Handler) func() {
	return m.adapter.OnMessage(ctx, filter, handler)
}

func (m *Manager) Close() error {
	return m.adapter.Close()
}

func (m *Manager) Stop(ctx context.Context) error {
	return m.adapter.Stop(ctx)
}
