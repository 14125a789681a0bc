package core

import (
	"context"
	"sync"
	"time"
)

// HistoryStore records conversion attempts.
type HistoryStore interface {
	Record(ctx context.Context, entry HistoryEntry) error
	Recent(ctx context.Context, limit int) ([]HistoryEntry, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// DefaultHistoryCapacity bounds the in-memory history.
const DefaultHistoryCapacity = 500

// MemoryHistory keeps the most recent entries in a ring buffer. It is used
// when no database is configured.
type MemoryHistory struct {
	mu      sync.RWMutex
	entries []HistoryEntry
	next    int
	full    bool
}

// NewMemoryHistory returns a history holding at most capacity entries.
func NewMemoryHistory(capacity int) *MemoryHistory {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &MemoryHistory{entries: make([]HistoryEntry, capacity)}
}

// Record stores entry, evicting the oldest entry when full.
func (h *MemoryHistory) Record(_ context.Context, entry HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries[h.next] = entry
	h.next = (h.next + 1) % len(h.entries)
	if h.next == 0 {
		h.full = true
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (h *MemoryHistory) Recent(_ context.Context, limit int) ([]HistoryEntry, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := h.len()
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]HistoryEntry, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (h.next - i + len(h.entries)) % len(h.entries)
		out = append(out, h.entries[idx])
	}
	return out, nil
}

// PurgeOlderThan drops entries created before cutoff.
func (h *MemoryHistory) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := h.len()
	kept := make([]HistoryEntry, 0, n)
	start := 0
	if h.full {
		start = h.next
	}
	for i := 0; i < n; i++ {
		e := h.entries[(start+i)%len(h.entries)]
		if !e.CreatedAt.Before(cutoff) {
			kept = append(kept, e)
		}
	}

	removed := int64(n - len(kept))
	fresh := make([]HistoryEntry, len(h.entries))
	copy(fresh, kept)
	h.entries = fresh
	h.next = len(kept) % len(fresh)
	h.full = len(kept) == len(fresh)
	return removed, nil
}

func (h *MemoryHistory) len() int {
	if h.full {
		return len(h.entries)
	}
	return h.next
}
