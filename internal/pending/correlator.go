package pending

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/viant/mcpgw/schema"
)

// DefaultTimeout bounds how long a correlated wait may take.
const DefaultTimeout = 2 * time.Minute

// SendFunc sends messages and returns the sent records.
type SendFunc func(ctx context.Context) ([]*schema.ConnectionMessage, error)

// SubscribeFunc subscribes handler to inbound messages matching filter until cancel is called.
type SubscribeFunc func(filter *schema.Filter, handler schema.Handler) (cancel func())

// Correlator sends messages and waits until every sent request got a correlated reply.
type Correlator struct {
	Clock   clock.Clock
	Timeout time.Duration
}

// New creates a correlator; a nil clock means wall clock, zero timeout means DefaultTimeout.
func New(clk clock.Clock, timeout time.Duration) *Correlator {
	if clk == nil {
		clk = clock.New()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Correlator{Clock: clk, Timeout: timeout}
}

// SendAndWait sends, collects request tracking ids and waits until each of them is
// satisfied by an inbound non-request message. handler sees every inbound message
// delivered while waiting. The timeout starts before sending. closed, when not nil,
// rejects the wait early with schema.ErrConnectionClosed.
func (c *Correlator) SendAndWait(ctx context.Context, send SendFunc, subscribe SubscribeFunc, handler schema.Handler, closed <-chan struct{}) ([]*schema.ConnectionMessage, error) {
	timer := c.Clock.Timer(c.Timeout)
	defer timer.Stop()

	sent, err := send(ctx)
	if err != nil {
		return nil, err
	}
	set := NewWaitSet(sent)
	if set.Len() == 0 {
		return sent, nil
	}

	var finished int32
	filter := &schema.Filter{Types: schema.AllMessageTypes, IDs: set.IDs()}
	cancel := subscribe(filter, func(message *schema.ConnectionMessage) {
		if atomic.LoadInt32(&finished) == 1 {
			return
		}
		empty := set.Observe(message)
		if handler != nil {
			handler(message)
		}
		if empty {
			set.Complete()
		}
	})
	defer func() {
		atomic.StoreInt32(&finished, 1)
		if cancel != nil {
			cancel()
		}
	}()

	select {
	case <-set.Done():
		return sent, nil
	case <-timer.C:
		return sent, schema.ErrResponseTimeout
	case <-ctx.Done():
		return sent, ctx.Err()
	case <-closed:
		return sent, schema.ErrConnectionClosed
	}
}
