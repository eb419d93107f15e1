package control

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBus fans control events out through redis pub/sub. Each subscription owns
// its own redis connection.
type RedisBus struct {
	client redis.UniversalClient
}

// NewRedisBus creates a redis backed bus.
func NewRedisBus(client redis.UniversalClient) *RedisBus {
	return &RedisBus{client: client}
}

func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %v: %w", topic, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	pubSub := b.client.Subscribe(ctx, topic)
	if _, err := pubSub.Receive(ctx); err != nil {
		_ = pubSub.Close()
		return nil, fmt.Errorf("failed to subscribe to %v: %w", topic, err)
	}
	ret := &redisSubscription{pubSub: pubSub, messages: make(chan []byte, 64), done: make(chan struct{})}
	go ret.pump(pubSub.Channel())
	return ret, nil
}

type redisSubscription struct {
	pubSub   *redis.PubSub
	messages chan []byte
	done     chan struct{}
	once     sync.Once
}

func (s *redisSubscription) pump(in <-chan *redis.Message) {
	defer close(s.messages)
	for msg := range in {
		select {
		case s.messages <- []byte(msg.Payload):
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) Messages() <-chan []byte {
	return s.messages
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubSub.Close()
	})
	return err
}
