package control

import (
	"context"
	"sync"
)

// MemoryBus is an in-process Bus for single-instance deployments and tests.
// Publishing still goes through subscriptions, never straight to handlers.
type MemoryBus struct {
	mux    sync.RWMutex
	topics map[string]map[*memorySubscription]struct{}
}

// NewMemoryBus creates an in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{topics: make(map[string]map[*memorySubscription]struct{})}
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mux.RLock()
	subscribers := make([]*memorySubscription, 0, len(b.topics[topic]))
	for sub := range b.topics[topic] {
		subscribers = append(subscribers, sub)
	}
	b.mux.RUnlock()
	for _, sub := range subscribers {
		data := make([]byte, len(payload))
		copy(data, payload)
		if err := sub.deliver(ctx, data); err != nil {
			return err
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, topic string) (Subscription, error) {
	ret := &memorySubscription{
		bus:   b,
		topic: topic,
		in:    make(chan []byte, 64),
		out:   make(chan []byte),
		done:  make(chan struct{}),
	}
	b.mux.Lock()
	subscribers, ok := b.topics[topic]
	if !ok {
		subscribers = make(map[*memorySubscription]struct{})
		b.topics[topic] = subscribers
	}
	subscribers[ret] = struct{}{}
	b.mux.Unlock()
	go ret.pump()
	return ret, nil
}

// Subscribers returns the number of open subscriptions on topic.
func (b *MemoryBus) Subscribers(topic string) int {
	b.mux.RLock()
	defer b.mux.RUnlock()
	return len(b.topics[topic])
}

func (b *MemoryBus) remove(sub *memorySubscription) {
	b.mux.Lock()
	defer b.mux.Unlock()
	if subscribers, ok := b.topics[sub.topic]; ok {
		delete(subscribers, sub)
		if len(subscribers) == 0 {
			delete(b.topics, sub.topic)
		}
	}
}

type memorySubscription struct {
	bus   *MemoryBus
	topic string
	in    chan []byte
	out   chan []byte
	done  chan struct{}
	once  sync.Once
}

func (s *memorySubscription) deliver(ctx context.Context, data []byte) error {
	select {
	case s.in <- data:
		return nil
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *memorySubscription) pump() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case data := <-s.in:
			select {
			case s.out <- data:
			case <-s.done:
				return
			}
		}
	}
}

func (s *memorySubscription) Messages() <-chan []byte {
	return s.out
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.bus.remove(s)
		close(s.done)
	})
	return nil
}
