package app

import (
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/mkraev/relay/internal/domain"
)

// HistoryLog keeps a per-room append-only record of published tokens,
// retained only within a trailing TTL window. Filtering happens on every
// read and write, which doubles as the unbounded-growth guard for rooms
// that go quiet.
type HistoryLog struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[domain.RoomID][]domain.HistoryEntry
}

func NewHistoryLog(ttl time.Duration) *HistoryLog {
	return &HistoryLog{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[domain.RoomID][]domain.HistoryEntry),
	}
}

// Record appends one entry stamped now and drops anything that has fallen
// out of the window.
func (h *HistoryLog) Record(id domain.RoomID, token domain.ActionToken) domain.HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.now()
	entry := domain.HistoryEntry{RoomID: id, Token: token, Timestamp: now}
	list := h.withinWindowLocked(id, now)
	h.entries[id] = append(list, entry)
	return entry
}

// List returns the room's entries inside the trailing window, oldest first.
// The stored list is compacted to the filtered result as a side effect.
func (h *HistoryLog) List(id domain.RoomID) []domain.HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	filtered := h.withinWindowLocked(id, h.now())
	if len(filtered) != len(h.entries[id]) {
		h.entries[id] = filtered
	}
	out := make([]domain.HistoryEntry, len(filtered))
	copy(out, filtered)
	return out
}

// ListTokens is the token projection of List.
func (h *HistoryLog) ListTokens(id domain.RoomID) []domain.ActionToken {
	return lo.Map(h.List(id), func(e domain.HistoryEntry, _ int) domain.ActionToken {
		return e.Token
	})
}

// Clear drops the room's record and returns how many entries were removed.
func (h *HistoryLog) Clear(id domain.RoomID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.entries[id])
	delete(h.entries, id)
	return n
}

func (h *HistoryLog) withinWindowLocked(id domain.RoomID, now time.Time) []domain.HistoryEntry {
	cutoff := now.Add(-h.ttl)
	return lo.Filter(h.entries[id], func(e domain.HistoryEntry, _ int) bool {
		return e.Timestamp.After(cutoff)
	})
}
