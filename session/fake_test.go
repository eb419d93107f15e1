package session

import (
	"context"
	"errors"
	"sync"

	"github.com/viant/mcpgw/backend"
	"github.com/viant/mcpgw/schema"
)

type subscription struct {
	filter  *schema.Filter
	handler schema.Handler
}

type fakeAdapter struct {
	mux       sync.Mutex
	mode      schema.ConnectionMode
	sendCalls [][]*schema.Message
	seq       int
	handlers  map[int]subscription
	closed    int
	stopped   int
}

func (a *fakeAdapter) Mode() schema.ConnectionMode {
	return a.mode
}

func (a *fakeAdapter) SendMessage(_ context.Context, messages []*schema.Message, _ *backend.SendOptions) (*backend.SendResult, error) {
	a.mux.Lock()
	defer a.mux.Unlock()
	a.sendCalls = append(a.sendCalls, messages)
	result := &backend.SendResult{}
	for _, message := range messages {
		result.Messages = append(result.Messages, schema.NewConnectionMessage(message, message.IDString()))
	}
	return result, nil
}

func (a *fakeAdapter) OnMessage(_ context.Context, filter *schema.Filter, handler schema.Handler) func() {
	a.mux.Lock()
	defer a.mux.Unlock()
	a.seq++
	id := a.seq
	a.handlers[id] = subscription{filter: filter, handler: handler}
	return func() {
		a.mux.Lock()
		defer a.mux.Unlock()
		delete(a.handlers, id)
	}
}

func (a *fakeAdapter) emit(message *schema.ConnectionMessage) {
	a.mux.Lock()
	var matched []schema.Handler
	for _, sub := range a.handlers {
		if sub.filter.Matches(message) {
			matched = append(matched, sub.handler)
		}
	}
	a.mux.Unlock()
	for _, handler := range matched {
		handler(message)
	}
}

func (a *fakeAdapter) subscribers() int {
	a.mux.Lock()
	defer a.mux.Unlock()
	return len(a.handlers)
}

func (a *fakeAdapter) sent() [][]*schema.Message {
	a.mux.Lock()
	defer a.mux.Unlock()
	return a.sendCalls
}

func (a *fakeAdapter) counts() (closed, stopped int) {
	a.mux.Lock()
	defer a.mux.Unlock()
	return a.closed, a.stopped
}

func (a *fakeAdapter) Close() error {
	a.mux.Lock()
	defer a.mux.Unlock()
	a.closed++
	return nil
}

func (a *fakeAdapter) Stop(context.Context) error {
	a.mux.Lock()
	defer a.mux.Unlock()
	a.stopped++
	return nil
}

type fakeFactory struct {
	mux      sync.Mutex
	adapters []*fakeAdapter
	gates    map[string]chan struct{}
	fail     bool
}

// hold makes New for sessionID wait until the returned channel is closed.
func (f *fakeFactory) hold(sessionID string) chan struct{} {
	f.mux.Lock()
	defer f.mux.Unlock()
	if f.gates == nil {
		f.gates = make(map[string]chan struct{})
	}
	gate := make(chan struct{})
	f.gates[sessionID] = gate
	return gate
}

func (f *fakeFactory) New(_ context.Context, sessionID string, mode schema.ConnectionMode) (backend.Adapter, error) {
	f.mux.Lock()
	gate := f.gates[sessionID]
	f.mux.Unlock()
	if gate != nil {
		<-gate
	}
	f.mux.Lock()
	defer f.mux.Unlock()
	if f.fail {
		return nil, errors.New("backend unavailable")
	}
	ret := &fakeAdapter{mode: mode, handlers: make(map[int]subscription)}
	f.adapters = append(f.adapters, ret)
	return ret, nil
}

func (f *fakeFactory) last() *fakeAdapter {
	f.mux.Lock()
	defer f.mux.Unlock()
	return f.adapters[len(f.adapters)-1]
}
