package pending

import (
	"sync"

	"github.com/viant/mcpgw/schema"
)

// WaitSet holds the tracking ids of sent requests still awaiting a correlated
// non-request message. One such message satisfies exactly one id.
type WaitSet struct {
	mux  sync.Mutex
	ids  map[string]struct{}
	done chan struct{}
	once sync.Once
}

// NewWaitSet collects the tracking ids of request-typed sent messages.
func NewWaitSet(sent []*schema.ConnectionMessage) *WaitSet {
	ret := &WaitSet{ids: make(map[string]struct{}), done: make(chan struct{})}
	for _, msg := range sent {
		if msg == nil || msg.Type != schema.MessageTypeRequest || msg.TrackingID == "" {
			continue
		}
		ret.ids[msg.TrackingID] = struct{}{}
	}
	if len(ret.ids) == 0 {
		ret.complete()
	}
	return ret
}

// IDs returns the outstanding tracking ids.
func (w *WaitSet) IDs() []string {
	w.mux.Lock()
	defer w.mux.Unlock()
	ret := make([]string, 0, len(w.ids))
	for id := range w.ids {
		ret = append(ret, id)
	}
	return ret
}

// Len returns the number of outstanding ids.
func (w *WaitSet) Len() int {
	w.mux.Lock()
	defer w.mux.Unlock()
	return len(w.ids)
}

// Observe removes the id satisfied by message, if any, and reports whether
// the set is now empty.
func (w *WaitSet) Observe(message *schema.ConnectionMessage) bool {
	w.mux.Lock()
	defer w.mux.Unlock()
	if message.Type != schema.MessageTypeRequest && message.TrackingID != "" {
		delete(w.ids, message.TrackingID)
	}
	return len(w.ids) == 0
}

// Done is closed once the set becomes empty and Complete was called.
func (w *WaitSet) Done() <-chan struct{} {
	return w.done
}

// Complete signals Done if the set is empty.
func (w *WaitSet) Complete() {
	if w.Len() == 0 {
		w.complete()
	}
}

func (w *WaitSet) complete() {
	w.once.Do(func() { close(w.done) })
}
