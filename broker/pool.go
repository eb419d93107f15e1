package broker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/viant/mcpgw/backend"
	"github.com/viant/mcpgw/internal/collection"
	"github.com/viant/mcpgw/internal/pending"
	"github.com/viant/mcpgw/internal/tracking"
	"github.com/viant/mcpgw/schema"
	"github.com/viant/mcpgw/store"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultIdleTimeout is how long a detached run survives without traffic.
	DefaultIdleTimeout = time.Minute
	// DefaultTouchInterval is how often active runs refresh the session record.
	DefaultTouchInterval = 15 * time.Second
)

// Pool owns the runs of every session served by this process. It implements
// both backend.BrokerProvider and backend.Engine.
type Pool struct {
	dial          Dialer
	store         store.Store
	clock         clock.Clock
	logger        zerolog.Logger
	timeout       time.Duration
	historySize   int
	idleTimeout   time.Duration
	touchInterval time.Duration

	dials singleflight.Group
	runs  *collection.SyncMap[string, *Run]
}

// Option configures a Pool.
type Option func(p *Pool)

// WithStore sets the session store touched by active runs.
func WithStore(s store.Store) Option {
	return func(p *Pool) {
		p.store = s
	}
}

// WithClock sets the pool clock.
func WithClock(clk clock.Clock) Option {
	return func(p *Pool) {
		p.clock = clk
	}
}

// WithLogger sets the pool logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pool) {
		p.logger = logger
	}
}

// WithRequestTimeout bounds backend calls and server initiated requests.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(p *Pool) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// WithHistorySize sets how many messages each run retains for replay.
func WithHistorySize(size int) Option {
	return func(p *Pool) {
		if size > 0 {
			p.historySize = size
		}
	}
}

// WithIdleTimeout sets how long a detached run survives without traffic.
func WithIdleTimeout(timeout time.Duration) Option {
	return func(p *Pool) {
		if timeout > 0 {
			p.idleTimeout = timeout
		}
	}
}

// NewPool creates a pool dialing runs with dial.
func NewPool(dial Dialer, options ...Option) *Pool {
	ret := &Pool{
		dial:          dial,
		clock:         clock.New(),
		logger:        zerolog.Nop(),
		timeout:       pending.DefaultTimeout,
		historySize:   DefaultHistorySize,
		idleTimeout:   DefaultIdleTimeout,
		touchInterval: DefaultTouchInterval,
		runs:          collection.NewSyncMap[string, *Run](),
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Run returns the run of sessionID, dialing the server on first use. Concurrent
// callers for one session share a single dial; ctx only bounds the caller's wait,
// the run itself lives until terminated.
func (p *Pool) Run(ctx context.Context, sessionID string) (*Run, error) {
	if run, ok := p.runs.Get(sessionID); ok {
		return run, nil
	}
	ch := p.dials.DoChan(sessionID, func() (interface{}, error) {
		if run, ok := p.runs.Get(sessionID); ok {
			return run, nil
		}
		return p.start(sessionID)
	})
	select {
	case result := <-ch:
		if result.Err != nil {
			return nil, result.Err
		}
		return result.Val.(*Run), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) start(sessionID string) (*Run, error) {
	run := newRun(sessionID, p.clock, p.timeout, p.historySize, p.logger)
	aTransport, err := p.dial(run.ctx, sessionID, run)
	if err != nil {
		run.cancel()
		tracking.Capture(err, "broker", sessionID, nil)
		return nil, fmt.Errorf("failed to start run for session %v: %w", sessionID, err)
	}
	run.transport = aTransport
	p.runs.Put(sessionID, run)
	p.logger.Info().Str("session", sessionID).Msg("run started")
	return run, nil
}

// Broker attaches a new handle to the run of sessionID.
func (p *Pool) Broker(ctx context.Context, sessionID string) (backend.Broker, error) {
	run, err := p.Run(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	atomic.AddInt32(&run.attached, 1)
	return &Handle{pool: p, run: run, cancels: make(map[int]func())}, nil
}

// SendMessage forwards messages and streams the replies to the sent requests
// when includeResponses is set. The stream ends once every request is answered.
func (p *Pool) SendMessage(ctx context.Context, sessionID string, messages []*schema.Message, includeResponses bool) ([]*schema.ConnectionMessage, backend.Stream, error) {
	run, err := p.Run(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	sent, err := run.SendMessage(ctx, messages)
	if err != nil {
		return sent, nil, err
	}
	set := pending.NewWaitSet(sent)
	if !includeResponses || set.Len() == 0 {
		return sent, backend.EmptyStream{}, nil
	}
	ret := newStream(ctx, run)
	filter := &schema.Filter{Types: schema.AllMessageTypes, IDs: set.IDs()}
	ret.cancel = run.OnMessage(filter, func(message *schema.ConnectionMessage) {
		if message.Type == schema.MessageTypeRequest {
			return
		}
		empty := set.Observe(message)
		ret.push(message)
		if empty {
			ret.end()
		}
	})
	return sent, ret, nil
}

// StreamMessages pushes messages of the session run matching filter until ctx is done.
func (p *Pool) StreamMessages(ctx context.Context, sessionID string, filter *schema.Filter) (backend.Stream, error) {
	run, err := p.Run(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ret := newStream(ctx, run)
	ret.cancel = run.OnMessage(filter, ret.push)
	return ret, nil
}

// StopSession terminates the run of sessionID.
func (p *Pool) StopSession(ctx context.Context, sessionID string) error {
	run, ok := p.runs.Get(sessionID)
	if !ok {
		return nil
	}
	p.runs.DeleteIf(sessionID, func(candidate *Run) bool { return candidate == run })
	err := run.Terminate()
	if p.store != nil {
		if statusErr := p.store.SetStatus(ctx, sessionID, store.StatusStopped); statusErr != nil {
			p.logger.Warn().Err(statusErr).Str("session", sessionID).Msg("failed to mark session stopped")
		}
	}
	p.logger.Info().Str("session", sessionID).Msg("run stopped")
	return err
}

// Len returns the number of live runs.
func (p *Pool) Len() int {
	return p.runs.Len()
}

// Start refreshes the session records of active runs and reaps idle detached
// runs until ctx is done.
func (p *Pool) Start(ctx context.Context) {
	ticker := p.clock.Ticker(p.touchInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Maintain(ctx)
			}
		}
	}()
}

// Maintain runs one touch and reap pass.
func (p *Pool) Maintain(ctx context.Context) {
	now := p.clock.Now()
	p.runs.Range(func(sessionID string, run *Run) bool {
		if run.Subscribers() > 0 || run.Attached() > 0 {
			if p.store != nil {
				if err := p.store.Touch(ctx, sessionID, now); err != nil {
					p.logger.Debug().Err(err).Str("session", sessionID).Msg("failed to touch session")
				}
			}
			return true
		}
		if now.Sub(run.LastActivity()) > p.idleTimeout {
			p.logger.Info().Str("session", sessionID).Msg("reaping idle run")
			_ = p.StopSession(ctx, sessionID)
		}
		return true
	})
}

// Close terminates every run.
func (p *Pool) Close() error {
	for _, run := range p.runs.Values() {
		p.runs.Delete(run.SessionID())
		_ = run.Terminate()
	}
	return nil
}

// Handle is a backend.Broker attachment to a run. Closing a handle detaches it
// while the run keeps going; Stop terminates the run.
type Handle struct {
	pool *Pool
	run  *Run

	mux     sync.Mutex
	seq     int
	cancels map[int]func()
	closed  bool
}

func (h *Handle) SendMessage(ctx context.Context, messages []*schema.Message) ([]*schema.ConnectionMessage, error) {
	if h.isClosed() {
		return nil, schema.ErrBackendClosed
	}
	return h.run.SendMessage(ctx, messages)
}

func (h *Handle) OnMessage(filter *schema.Filter, handler schema.Handler) func() {
	h.mux.Lock()
	if h.closed {
		h.mux.Unlock()
		return func() {}
	}
	h.seq++
	id := h.seq
	h.mux.Unlock()
	cancel := h.run.OnMessage(filter, handler)
	h.mux.Lock()
	if h.closed {
		h.mux.Unlock()
		cancel()
		return func() {}
	}
	h.cancels[id] = cancel
	h.mux.Unlock()
	return func() {
		h.mux.Lock()
		delete(h.cancels, id)
		h.mux.Unlock()
		cancel()
	}
}

func (h *Handle) Close() error {
	h.mux.Lock()
	if h.closed {
		h.mux.Unlock()
		return nil
	}
	h.closed = true
	cancels := h.cancels
	h.cancels = nil
	h.mux.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	atomic.AddInt32(&h.run.attached, -1)
	return nil
}

func (h *Handle) Stop(ctx context.Context) error {
	err := h.pool.StopSession(ctx, h.run.SessionID())
	_ = h.Close()
	return err
}

func (h *Handle) isClosed() bool {
	h.mux.Lock()
	defer h.mux.Unlock()
	return h.closed
}
