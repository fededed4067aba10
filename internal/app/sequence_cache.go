package app

import (
	"sync"
	"time"

	"github.com/mkraev/relay/internal/domain"
)

// DefaultCacheTTL bounds how long a cached sequence (and a history entry)
// stays readable. Fixed for the lifetime of the process.
const DefaultCacheTTL = 15 * time.Minute

type seqEntry struct {
	tokens  []domain.ActionToken
	savedAt time.Time
}

// SequenceCache holds the single "last published sequence" slot per room.
// Entries expire lazily: the first read past the TTL deletes the slot, so
// no sweeper is needed and callers never observe stale data.
type SequenceCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[domain.RoomID]seqEntry
}

func NewSequenceCache(ttl time.Duration) *SequenceCache {
	return &SequenceCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[domain.RoomID]seqEntry),
	}
}

// Set overwrites the room's slot unconditionally with a copy of tokens.
// The caller has already validated the sequence.
func (c *SequenceCache) Set(id domain.RoomID, tokens []domain.ActionToken) {
	stored := make([]domain.ActionToken, len(tokens))
	copy(stored, tokens)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = seqEntry{tokens: stored, savedAt: c.now()}
}

// Get returns a copy of the room's last sequence, or nil if there is none
// or it has expired. An expired read deletes the slot.
func (c *SequenceCache) Get(id domain.RoomID) []domain.ActionToken {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return nil
	}
	if !e.savedAt.Add(c.ttl).After(c.now()) {
		delete(c.entries, id)
		return nil
	}
	out := make([]domain.ActionToken, len(e.tokens))
	copy(out, e.tokens)
	return out
}

// Clear removes the slot and reports whether one was present.
func (c *SequenceCache) Clear(id domain.RoomID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[id]
	delete(c.entries, id)
	return ok
}
