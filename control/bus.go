package control

import "context"

// Bus is the pub/sub fan-out shared by control channels.
type Bus interface {
	// Publish sends payload to every subscriber of topic, including the publisher's own.
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe opens a dedicated subscription on topic.
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

// Subscription delivers payloads published on a topic in publish order.
type Subscription interface {
	// Messages is closed once the subscription is closed.
	Messages() <-chan []byte
	Close() error
}
