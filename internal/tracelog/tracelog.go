// Package tracelog implements XDR's bounded, in-memory trace ring buffer,
// queried by the control plane's GET /_xdr/logs. It is distinct from
// internal/otelsetup: that package's OpenTelemetry spans feed an external
// collector, while this one is the process-local, FIFO-evicted record the
// CLI's `xdr logs` command reads back.
package tracelog

import (
	"sync"
	"time"
)

// EventCategory classifies one sub-event within a request's trace, ported
// from the source runtime's richer per-request event list (supplementing
// spec.md's flat annotation strings without removing them).
type EventCategory string

const (
	CategoryInfo     EventCategory = "info"
	CategoryChaos    EventCategory = "chaos"
	CategoryPayment  EventCategory = "payment"
	CategoryUpstream EventCategory = "upstream"
	CategoryError    EventCategory = "error"
)

// Event is one sub-event inside a request's trace.
type Event struct {
	Category EventCategory `json:"category"`
	Message  string        `json:"message"`
	At       time.Time     `json:"at"`
}

// Entry is one request's complete trace record.
type Entry struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	AgentID      string    `json:"agent_id"`
	Method       string    `json:"method"`
	UpstreamHost string    `json:"upstream_host"`
	Path         string    `json:"path"`
	StatusCode   int       `json:"status_code"`
	DurationMs   int64     `json:"duration_ms"`
	Annotations  []string  `json:"annotations,omitempty"`
	TxHash       string    `json:"tx_hash,omitempty"`
	Events       []Event   `json:"events,omitempty"`
}

// Buffer is a mutex-guarded, fixed-capacity FIFO. Entries past capacity are
// evicted oldest-first; nothing is ever lost under normal (non-overflow)
// operation, matching spec.md §9's retention note.
type Buffer struct {
	mu       sync.Mutex
	entries  []*Entry
	capacity int
}

// New creates a Buffer bounded at capacity entries.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 10000
	}
	return &Buffer{capacity: capacity}
}

// Append records a new entry, evicting the oldest if the buffer is full.
func (b *Buffer) Append(e *Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = append(b.entries, e)
	if len(b.entries) > b.capacity {
		b.entries = b.entries[len(b.entries)-b.capacity:]
	}
}

// Query returns entries newest-first, optionally filtered by agent_id.
// An empty agentID returns every retained entry.
func (b *Buffer) Query(agentID string) []*Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*Entry, 0, len(b.entries))
	for i := len(b.entries) - 1; i >= 0; i-- {
		e := b.entries[i]
		if agentID != "" && e.AgentID != agentID {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Len returns the number of entries currently retained.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
