package broker

import "github.com/viant/mcpgw/schema"

// DefaultHistorySize is the number of messages a run retains for replay.
const DefaultHistorySize = 256

type history struct {
	limit   int
	entries []*schema.ConnectionMessage
}

func newHistory(limit int) *history {
	if limit <= 0 {
		limit = DefaultHistorySize
	}
	return &history{limit: limit, entries: make([]*schema.ConnectionMessage, 0, limit)}
}

func (h *history) append(message *schema.ConnectionMessage) {
	if len(h.entries) < h.limit {
		h.entries = append(h.entries, message)
		return
	}
	copy(h.entries, h.entries[1:])
	h.entries[len(h.entries)-1] = message
}

func (h *history) indexOf(trackingID string) int {
	for i := len(h.entries) - 1; i >= 0; i-- {
		if h.entries[i].TrackingID == trackingID {
			return i
		}
	}
	return -1
}

// replay returns the retained messages a new subscription must see first.
// A pull cursor replays everything after it (everything retained when the cursor
// has been evicted); an id restricted filter replays the matching messages so
// replies published before the subscription are not lost.
func (h *history) replay(filter *schema.Filter) []*schema.ConnectionMessage {
	if filter == nil {
		return nil
	}
	var ret []*schema.ConnectionMessage
	if pull := filter.Pull; pull != nil {
		start := 0
		if pull.AfterID != "" {
			start = h.indexOf(pull.AfterID) + 1
		}
		types := pull.Types
		if len(types) == 0 {
			types = filter.Types
		}
		matcher := &schema.Filter{Types: types, IDs: filter.IDs}
		for _, entry := range h.entries[start:] {
			if matcher.Matches(entry) {
				ret = append(ret, entry)
			}
		}
		return ret
	}
	if len(filter.IDs) == 0 {
		return nil
	}
	for _, entry := range h.entries {
		if filter.Matches(entry) {
			ret = append(ret, entry)
		}
	}
	return ret
}
