package ws

import (
	"sync"
	"time"

	"github.com/mkraev/relay/internal/core"
)

// JoinRateLimiter bounds join attempts per subscriber over a sliding
// window. Keeps a reconnect loop from hammering the admission gate.
type JoinRateLimiter struct {
	mu       sync.Mutex
	history  map[core.SubscriberID][]time.Time
	limit    int
	interval time.Duration
}

func NewJoinRateLimiter(limit int, interval time.Duration) *JoinRateLimiter {
	return &JoinRateLimiter{
		history:  make(map[core.SubscriberID][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *JoinRateLimiter) Allow(sid core.SubscriberID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	fresh := make([]time.Time, 0, len(rl.history[sid]))
	for _, t := range rl.history[sid] {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) >= rl.limit {
		rl.history[sid] = fresh
		return false
	}
	rl.history[sid] = append(fresh, now)
	return true
}
