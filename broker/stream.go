package broker

import (
	"context"
	"io"
	"sync"

	"github.com/viant/mcpgw/schema"
)

// stream adapts a run subscription to backend.Stream. Pushes are queued without
// bound so the run never waits on a slow reader.
type stream struct {
	ctx    context.Context
	run    *Run
	mux    sync.Mutex
	queue  []*schema.ConnectionMessage
	ended  bool
	ready  chan struct{}
	done   chan struct{}
	once   sync.Once
	cancel func()
}

func newStream(ctx context.Context, run *Run) *stream {
	return &stream{
		ctx:   ctx,
		run:   run,
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

func (s *stream) push(message *schema.ConnectionMessage) {
	s.mux.Lock()
	if s.ended {
		s.mux.Unlock()
		return
	}
	s.queue = append(s.queue, message)
	s.mux.Unlock()
	s.signal()
}

// end marks the last push; Recv reports io.EOF once the queue is drained.
func (s *stream) end() {
	s.mux.Lock()
	s.ended = true
	s.mux.Unlock()
	s.signal()
}

func (s *stream) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

func (s *stream) next() (*schema.ConnectionMessage, bool, bool) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if len(s.queue) > 0 {
		message := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		return message, true, s.ended
	}
	return nil, false, s.ended
}

func (s *stream) Recv() (*schema.ConnectionMessage, error) {
	for {
		message, ok, ended := s.next()
		if ok {
			return message, nil
		}
		if ended {
			return nil, io.EOF
		}
		select {
		case <-s.ready:
		case <-s.ctx.Done():
			return nil, s.ctx.Err()
		case <-s.run.Done():
			return nil, schema.ErrBackendClosed
		case <-s.done:
			return nil, io.EOF
		}
	}
}

func (s *stream) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.mux.Lock()
		s.ended = true
		s.queue = nil
		s.mux.Unlock()
		if s.cancel != nil {
			s.cancel()
		}
	})
	return nil
}
