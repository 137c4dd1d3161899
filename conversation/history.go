package conversation

import (
	"sync"
	"time"

	"github.com/BaSui01/tripflow/types"
)

// Role identifies who produced a history entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Entry is one line of conversation history.
type Entry struct {
	Role    Role          `json:"role"`
	Text    string        `json:"text"`
	Outcome types.Outcome `json:"outcome,omitempty"`
	At      time.Time     `json:"at"`
}

// History is a bounded, concurrency-safe log; the oldest entries are dropped
// once the limit is reached.
type History struct {
	mu      sync.RWMutex
	limit   int
	entries []Entry
}

// NewHistory creates a history holding at most limit entries.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 100
	}
	return &History{limit: limit, entries: make([]Entry, 0, min(limit, 16))}
}

// Add appends e.
func (h *History) Add(e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, e)
	if over := len(h.entries) - h.limit; over > 0 {
		h.entries = append(h.entries[:0], h.entries[over:]...)
	}
}

// Entries returns a copy, oldest first.
func (h *History) Entries() []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of retained entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}
