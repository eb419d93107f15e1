package broker

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/viant/jsonrpc"
	"github.com/viant/jsonrpc/transport"
	"github.com/viant/mcpgw/internal/collection"
	"github.com/viant/mcpgw/internal/tracking"
	"github.com/viant/mcpgw/schema"
)

// Run is a live connection to the MCP server of one session. Messages coming
// from the server are fanned out to subscribers and retained for replay.
type Run struct {
	sessionID string
	transport transport.Transport
	clock     clock.Clock
	logger    zerolog.Logger
	timeout   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	mux         sync.Mutex
	seq         int
	subscribers map[int]*subscriber
	history     *history

	inflight     *collection.SyncMap[string, *serverRequest]
	attached     int32
	lastActivity int64
}

type serverRequest struct {
	trackingID string
	reply      chan *schema.Message
}

type subscriber struct {
	filter    *schema.Filter
	handler   schema.Handler
	mux       sync.Mutex
	cancelled int32
}

func (s *subscriber) deliver(messages ...*schema.ConnectionMessage) {
	s.mux.Lock()
	defer s.mux.Unlock()
	for _, message := range messages {
		if atomic.LoadInt32(&s.cancelled) == 1 {
			return
		}
		if s.filter.Matches(message) {
			s.handler(message)
		}
	}
}

func newRun(sessionID string, clk clock.Clock, timeout time.Duration, historySize int, logger zerolog.Logger) *Run {
	ctx, cancel := context.WithCancel(context.Background())
	ret := &Run{
		sessionID:   sessionID,
		clock:       clk,
		timeout:     timeout,
		logger:      logger.With().Str("session", sessionID).Str("component", "run").Logger(),
		ctx:         ctx,
		cancel:      cancel,
		subscribers: make(map[int]*subscriber),
		history:     newHistory(historySize),
		inflight:    collection.NewSyncMap[string, *serverRequest](),
	}
	ret.touch()
	return ret
}

// SessionID returns the session the run belongs to.
func (r *Run) SessionID() string {
	return r.sessionID
}

// Done is closed once the run terminated.
func (r *Run) Done() <-chan struct{} {
	return r.ctx.Done()
}

// LastActivity returns the time of the last message in either direction.
func (r *Run) LastActivity() time.Time {
	return time.Unix(0, atomic.LoadInt64(&r.lastActivity))
}

// Attached returns the number of broker handles bound to the run.
func (r *Run) Attached() int {
	return int(atomic.LoadInt32(&r.attached))
}

// Subscribers returns the number of open subscriptions.
func (r *Run) Subscribers() int {
	r.mux.Lock()
	defer r.mux.Unlock()
	return len(r.subscribers)
}

func (r *Run) touch() {
	atomic.StoreInt64(&r.lastActivity, r.clock.Now().UnixNano())
}

// SendMessage forwards client messages to the server. Every message gets a
// tracking id; replies to requests are published under the request's id once the
// server answers. Responses are routed back to the server request waiting for them.
func (r *Run) SendMessage(ctx context.Context, messages []*schema.Message) ([]*schema.ConnectionMessage, error) {
	if r.ctx.Err() != nil {
		return nil, schema.ErrBackendClosed
	}
	r.touch()
	var sent []*schema.ConnectionMessage
	for _, message := range messages {
		switch message.Type() {
		case schema.MessageTypeRequest:
			record := schema.NewConnectionMessage(message, uuid.NewString())
			sent = append(sent, record)
			go r.call(record)
		case schema.MessageTypeNotification:
			if err := r.transport.Notify(ctx, message.Notification()); err != nil {
				return sent, fmt.Errorf("failed to notify %v: %w", message.Method, err)
			}
			sent = append(sent, schema.NewConnectionMessage(message, uuid.NewString()))
		default:
			sent = append(sent, r.reply(message))
		}
	}
	return sent, nil
}

func (r *Run) call(record *schema.ConnectionMessage) {
	message := record.Message
	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()
	var reply *schema.Message
	response, err := r.transport.Send(ctx, message.Request())
	if err == nil && response == nil {
		err = fmt.Errorf("empty response to %v", message.Method)
	}
	if err != nil {
		if r.ctx.Err() != nil {
			return
		}
		r.logger.Warn().Err(err).Str("method", message.Method).Msg("backend request failed")
		tracking.Capture(err, "broker", r.sessionID, map[string]interface{}{"method": message.Method})
		reply = &schema.Message{Jsonrpc: jsonrpc.Version, Id: message.Id, Error: schema.NewBackendError(err)}
	} else {
		reply = schema.FromResponse(response)
		reply.Id = message.Id
	}
	r.publish(schema.NewConnectionMessage(reply, record.TrackingID))
}

func (r *Run) reply(message *schema.Message) *schema.ConnectionMessage {
	key := message.IDString()
	pending, ok := r.inflight.Get(key)
	if !ok {
		r.logger.Debug().Str("id", key).Msg("dropping response without pending server request")
		return schema.NewConnectionMessage(message, uuid.NewString())
	}
	select {
	case pending.reply <- message:
	default:
	}
	return schema.NewConnectionMessage(message, pending.trackingID)
}

// Serve relays a server initiated request to the subscribers and waits for the
// client's response. Server pings are answered directly.
func (r *Run) Serve(ctx context.Context, request *jsonrpc.Request, response *jsonrpc.Response) {
	response.Id = request.Id
	response.Jsonrpc = jsonrpc.Version
	r.touch()
	if request.Method == schema.MethodPing {
		response.Result = []byte("{}")
		return
	}
	message := schema.FromRequest(request)
	pending := &serverRequest{trackingID: uuid.NewString(), reply: make(chan *schema.Message, 1)}
	key := message.IDString()
	r.inflight.Put(key, pending)
	defer r.inflight.DeleteIf(key, func(candidate *serverRequest) bool { return candidate == pending })
	timer := r.clock.Timer(r.timeout)
	defer timer.Stop()
	r.publish(schema.NewConnectionMessage(message, pending.trackingID))

	select {
	case reply := <-pending.reply:
		response.Result = reply.Result
		response.Error = reply.Error
	case <-timer.C:
		response.Error = schema.NewTimeoutError(request.Method)
	case <-ctx.Done():
		response.Error = jsonrpc.NewInternalError(ctx.Err().Error(), nil)
	case <-r.ctx.Done():
		response.Error = schema.NewBackendError(schema.ErrBackendClosed)
	}
}

// OnNotification publishes a server notification.
func (r *Run) OnNotification(_ context.Context, notification *jsonrpc.Notification) {
	r.touch()
	r.publish(schema.NewConnectionMessage(schema.FromNotification(notification), uuid.NewString()))
}

func (r *Run) publish(message *schema.ConnectionMessage) {
	r.mux.Lock()
	if r.ctx.Err() != nil {
		r.mux.Unlock()
		return
	}
	r.history.append(message)
	subscribers := make([]*subscriber, 0, len(r.subscribers))
	for _, sub := range r.subscribers {
		subscribers = append(subscribers, sub)
	}
	r.mux.Unlock()
	for _, sub := range subscribers {
		sub.deliver(message)
	}
}

// OnMessage subscribes handler to messages matching filter. Retained messages
// selected by the filter's pull cursor or ids are delivered before live ones.
func (r *Run) OnMessage(filter *schema.Filter, handler schema.Handler) func() {
	sub := &subscriber{filter: filter, handler: handler}
	r.mux.Lock()
	if r.ctx.Err() != nil {
		r.mux.Unlock()
		return func() {}
	}
	r.seq++
	id := r.seq
	r.subscribers[id] = sub
	replay := r.history.replay(filter)
	sub.mux.Lock()
	r.mux.Unlock()
	for _, message := range replay {
		if atomic.LoadInt32(&sub.cancelled) == 1 {
			break
		}
		handler(message)
	}
	sub.mux.Unlock()
	return func() {
		atomic.StoreInt32(&sub.cancelled, 1)
		r.mux.Lock()
		delete(r.subscribers, id)
		r.mux.Unlock()
	}
}

// Terminate disconnects from the server and drops every subscription.
func (r *Run) Terminate() error {
	var err error
	r.once.Do(func() {
		r.mux.Lock()
		r.cancel()
		for _, sub := range r.subscribers {
			atomic.StoreInt32(&sub.cancelled, 1)
		}
		r.subscribers = make(map[int]*subscriber)
		r.mux.Unlock()
		if closer, ok := r.transport.(io.Closer); ok {
			err = closer.Close()
		}
		r.logger.Debug().Msg("run terminated")
	})
	return err
}
