package backend

import (
	"context"
	"io"
	"sync"

	"github.com/viant/mcpgw/schema"
)

type subscription struct {
	filter  *schema.Filter
	handler schema.Handler
}

type fakeBroker struct {
	mux       sync.Mutex
	seq       int
	handlers  map[int]subscription
	sent      [][]*schema.Message
	closed    int
	stopped   int
	sendError error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: make(map[int]subscription)}
}

func trackingID(message *schema.Message) string {
	return "t-" + message.IDString()
}

func (b *fakeBroker) SendMessage(_ context.Context, messages []*schema.Message) ([]*schema.ConnectionMessage, error) {
	b.mux.Lock()
	defer b.mux.Unlock()
	if b.sendError != nil {
		return nil, b.sendError
	}
	b.sent = append(b.sent, messages)
	var ret []*schema.ConnectionMessage
	for _, message := range messages {
		ret = append(ret, schema.NewConnectionMessage(message, trackingID(message)))
	}
	return ret, nil
}

func (b *fakeBroker) OnMessage(filter *schema.Filter, handler schema.Handler) func() {
	b.mux.Lock()
	defer b.mux.Unlock()
	b.seq++
	id := b.seq
	b.handlers[id] = subscription{filter: filter, handler: handler}
	return func() {
		b.mux.Lock()
		defer b.mux.Unlock()
		delete(b.handlers, id)
	}
}

func (b *fakeBroker) emit(message *schema.ConnectionMessage) {
	b.mux.Lock()
	var matched []schema.Handler
	for _, sub := range b.handlers {
		if sub.filter.Matches(message) {
			matched = append(matched, sub.handler)
		}
	}
	b.mux.Unlock()
	for _, handler := range matched {
		handler(message)
	}
}

func (b *fakeBroker) subscribers() int {
	b.mux.Lock()
	defer b.mux.Unlock()
	return len(b.handlers)
}

func (b *fakeBroker) Close() error {
	b.mux.Lock()
	defer b.mux.Unlock()
	b.closed++
	return nil
}

func (b *fakeBroker) Stop(context.Context) error {
	b.mux.Lock()
	defer b.mux.Unlock()
	b.stopped++
	return nil
}

type fakeProvider struct {
	broker *fakeBroker
}

func (p *fakeProvider) Broker(context.Context, string) (Broker, error) {
	return p.broker, nil
}

type sliceStream struct {
	messages []*schema.ConnectionMessage
	blocking chan struct{}
	ctx      context.Context
}

func (s *sliceStream) Recv() (*schema.ConnectionMessage, error) {
	if len(s.messages) > 0 {
		ret := s.messages[0]
		s.messages = s.messages[1:]
		return ret, nil
	}
	if s.blocking != nil {
		select {
		case <-s.blocking:
		case <-s.ctx.Done():
			return nil, s.ctx.Err()
		}
	}
	return nil, io.EOF
}

func (s *sliceStream) Close() error {
	return nil
}

type fakeEngine struct {
	mux       sync.Mutex
	responses []*schema.ConnectionMessage
	pushed    []*schema.ConnectionMessage
	include   []bool
	stopped   []string
	filters   []*schema.Filter
}

func (e *fakeEngine) SendMessage(_ context.Context, _ string, messages []*schema.Message, includeResponses bool) ([]*schema.ConnectionMessage, Stream, error) {
	e.mux.Lock()
	defer e.mux.Unlock()
	e.include = append(e.include, includeResponses)
	var sent []*schema.ConnectionMessage
	for _, message := range messages {
		sent = append(sent, schema.NewConnectionMessage(message, trackingID(message)))
	}
	if !includeResponses {
		return sent, EmptyStream{}, nil
	}
	return sent, &sliceStream{messages: e.responses}, nil
}

func (e *fakeEngine) StreamMessages(ctx context.Context, _ string, filter *schema.Filter) (Stream, error) {
	e.mux.Lock()
	defer e.mux.Unlock()
	e.filters = append(e.filters, filter)
	return &sliceStream{messages: e.pushed, blocking: make(chan struct{}), ctx: ctx}, nil
}

func (e *fakeEngine) StopSession(_ context.Context, sessionID string) error {
	e.mux.Lock()
	defer e.mux.Unlock()
	e.stopped = append(e.stopped, sessionID)
	return nil
}
