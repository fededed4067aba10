package app

import (
	"math"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mkraev/relay/internal/core"
	"github.com/mkraev/relay/internal/domain"
)

// Registry tracks which rooms have been explicitly provisioned and owns
// the one-shot expiry timer per room. It is the sole admission authority:
// a room must be provisioned before the transport may admit a join.
type Registry struct {
	mu          sync.Mutex
	provisioned map[domain.RoomID]struct{}
	timers      map[domain.RoomID]*time.Timer
	expiresAt   map[domain.RoomID]time.Time
	// gens identifies the live timer per room. A handler whose generation
	// no longer matches fired before a re-arm (or a teardown) and must
	// abort instead of expiring the room. Monotonic per id, never deleted.
	gens map[domain.RoomID]uint64

	transport core.Transport
	onExpired func(domain.RoomID)
}

func NewRegistry() *Registry {
	return &Registry{
		provisioned: make(map[domain.RoomID]struct{}),
		timers:      make(map[domain.RoomID]*time.Timer),
		expiresAt:   make(map[domain.RoomID]time.Time),
		gens:        make(map[domain.RoomID]uint64),
	}
}

// BindTransport wires the subscriber-owning collaborator. The registry and
// the transport reference each other, so binding happens after construction.
func (r *Registry) BindTransport(t core.Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transport = t
}

// OnExpired registers the purge hook invoked after a room is torn down.
// Expiry clears the room's cached sequence and history through this hook,
// so a re-provisioned id starts a fresh lifecycle with empty caches.
func (r *Registry) OnExpired(fn func(domain.RoomID)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onExpired = fn
}

// Provision marks the room as created. Idempotent: re-provisioning an
// existing room is a no-op.
func (r *Registry) Provision(id domain.RoomID) error {
	if id == "" {
		return domain.ErrInvalidRoomID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.provisioned[id]; ok {
		return nil
	}
	r.provisioned[id] = struct{}{}
	log.Info().Str("module", "app.registry").Str("room", string(id)).Msg("room provisioned")
	return nil
}

// SetTTL arms (or re-arms) the room's expiry. The last caller wins: any
// pending timer is cancelled before the new one is scheduled. Empty ids
// and non-finite or non-positive durations are ignored.
func (r *Registry) SetTTL(id domain.RoomID, ttlSeconds float64) {
	if id == "" || math.IsNaN(ttlSeconds) || math.IsInf(ttlSeconds, 0) || ttlSeconds <= 0 {
		return
	}
	d := time.Duration(ttlSeconds * float64(time.Second))

	r.mu.Lock()
	defer r.mu.Unlock()
	r.armLocked(id, d)
	log.Info().Str("module", "app.registry").Str("room", string(id)).Float64("ttl_sec", ttlSeconds).Msg("room ttl armed")
}

// armLocked cancels any pending timer and schedules a fresh one. Stop on a
// timer that already fired returns false and the orphaned handler is still
// on its way to the mutex, so cancellation alone is not enough: the
// generation bump is what makes that handler a no-op.
func (r *Registry) armLocked(id domain.RoomID, d time.Duration) {
	if prev, ok := r.timers[id]; ok {
		prev.Stop()
	}
	gen := r.gens[id] + 1
	r.gens[id] = gen
	r.expiresAt[id] = time.Now().Add(d)
	r.timers[id] = time.AfterFunc(d, func() {
		// A failure tearing one room down must not crash the process.
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Str("module", "app.registry").Str("room", string(id)).Any("panic", rec).Msg("expiry panic recovered")
			}
		}()
		r.expireFromTimer(id, gen)
	})
}

// expireFromTimer is the timer-driven entry. It tears the room down only if
// its generation is still the live one; a handler superseded by a fresh
// SetTTL aborts here.
func (r *Registry) expireFromTimer(id domain.RoomID, gen uint64) {
	r.mu.Lock()
	if r.gens[id] != gen {
		r.mu.Unlock()
		log.Info().Str("module", "app.registry").Str("room", string(id)).Msg("stale expiry timer ignored")
		return
	}
	r.finishExpireLocked(id)
}

// IsJoinAllowed reports whether a subscriber may attach to the room.
// Only explicitly provisioned rooms are joinable.
func (r *Registry) IsJoinAllowed(id domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.provisioned[id]
	return ok
}

// ExpiresAt returns the recorded absolute expiry for introspection.
func (r *Registry) ExpiresAt(id domain.RoomID) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	at, ok := r.expiresAt[id]
	return at, ok
}

// ActiveRooms is the union of provisioned ids and ids that currently have
// at least one attached subscriber, sorted for stable output. A room that
// exists operationally shows up even if provisioning was bypassed.
func (r *Registry) ActiveRooms() []domain.RoomID {
	r.mu.Lock()
	seen := make(map[domain.RoomID]struct{}, len(r.provisioned))
	for id := range r.provisioned {
		seen[id] = struct{}{}
	}
	transport := r.transport
	r.mu.Unlock()

	if transport != nil {
		for _, id := range transport.RoomsWithSubscribers() {
			seen[id] = struct{}{}
		}
	}
	out := make([]domain.RoomID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Expire tears the room down: subscribers are notified and disconnected,
// provisioning and timer bookkeeping are cleared, then the purge hook runs.
// Idempotent — a timer firing racing a shutdown (or a duplicate call) is a
// no-op after the first successful expiry.
func (r *Registry) Expire(id domain.RoomID) {
	r.mu.Lock()
	r.finishExpireLocked(id)
}

// finishExpireLocked is entered with r.mu held and releases it before
// calling out to the transport.
func (r *Registry) finishExpireLocked(id domain.RoomID) {
	now := time.Now()

	_, wasProvisioned := r.provisioned[id]
	_, hadTimer := r.timers[id]
	if !wasProvisioned && !hadTimer {
		r.mu.Unlock()
		return
	}
	delete(r.provisioned, id)
	if t, ok := r.timers[id]; ok {
		t.Stop()
	}
	delete(r.timers, id)
	delete(r.expiresAt, id)
	// Invalidate any handler still parked on the mutex.
	r.gens[id]++
	transport := r.transport
	onExpired := r.onExpired
	r.mu.Unlock()

	log.Info().Str("module", "app.registry").Str("room", string(id)).Msg("room expired")
	if transport != nil {
		transport.BroadcastExpired(id, now)
		transport.DisconnectAll(id)
	}
	if onExpired != nil {
		onExpired(id)
	}
}

// Close cancels every pending expiry timer. Rooms are not torn down;
// this is process shutdown, not expiry.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
	log.Info().Str("module", "app.registry").Msg("all ttl timers stopped")
}
