package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mkraev/relay/internal/app"
	"github.com/mkraev/relay/internal/core"
	"github.com/mkraev/relay/internal/domain"
)

// Hub owns subscriber connections and room membership. It implements
// core.Transport; the core never touches a socket directly.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[domain.RoomID]map[core.SubscriberID]core.SubscriberConn
	subs   map[core.SubscriberID]domain.RoomID
	policy app.Policy
}

func NewHub(policy app.Policy) *Hub {
	return &Hub{
		rooms:  make(map[domain.RoomID]map[core.SubscriberID]core.SubscriberConn),
		subs:   make(map[core.SubscriberID]domain.RoomID),
		policy: policy,
	}
}

// Attach puts the subscriber into the room, leaving any previous room
// first. Admission has already been checked by the caller.
func (h *Hub) Attach(roomID domain.RoomID, sid core.SubscriberID, conn core.SubscriberConn) {
	h.Detach(sid)
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[roomID]
	if !ok {
		room = make(map[core.SubscriberID]core.SubscriberConn)
		h.rooms[roomID] = room
	}
	room[sid] = conn
	h.subs[sid] = roomID
	log.Info().Str("module", "ws.hub").Str("room", string(roomID)).Str("sid", string(sid)).Msg("subscriber attached")
}

// Detach removes the subscriber from its room without closing the socket.
func (h *Hub) Detach(sid core.SubscriberID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detachLocked(sid)
}

func (h *Hub) detachLocked(sid core.SubscriberID) {
	roomID, ok := h.subs[sid]
	if !ok {
		return
	}
	delete(h.subs, sid)
	if room, ok := h.rooms[roomID]; ok {
		delete(room, sid)
		if len(room) == 0 {
			delete(h.rooms, roomID)
		}
	}
	log.Info().Str("module", "ws.hub").Str("room", string(roomID)).Str("sid", string(sid)).Msg("subscriber detached")
}

// FanOut delivers the event to every current subscriber of the room.
// Best-effort: a full send buffer is handed to the policy, which may kick
// the slow consumer.
func (h *Hub) FanOut(roomID domain.RoomID, ev core.Event) {
	payload, err := json.Marshal(actionsFrame{
		Type:      "actions",
		RoomID:    ev.RoomID,
		Actions:   ev.Tokens,
		Timestamp: ev.Timestamp.UnixMilli(),
	})
	if err != nil {
		log.Error().Err(err).Str("module", "ws.hub").Msg("fanout marshal")
		return
	}

	var kicked []core.SubscriberID
	h.mu.RLock()
	for sid, conn := range h.rooms[roomID] {
		if err := conn.TrySend(payload); err != nil {
			if h.policy != nil && h.policy.OnBackpressure(roomID, sid) == app.KickSubscriber {
				kicked = append(kicked, sid)
			}
		}
	}
	h.mu.RUnlock()

	for _, sid := range kicked {
		log.Warn().Str("module", "ws.hub").Str("room", string(roomID)).Str("sid", string(sid)).Msg("kicking slow subscriber")
		h.closeSubscriber(sid)
	}
}

// SubscriberIDs snapshots the room's current subscriber ids.
func (h *Hub) SubscriberIDs(roomID domain.RoomID) []core.SubscriberID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]core.SubscriberID, 0, len(h.rooms[roomID]))
	for sid := range h.rooms[roomID] {
		out = append(out, sid)
	}
	return out
}

// RoomsWithSubscribers lists every room that has at least one attached
// subscriber, provisioned or not.
func (h *Hub) RoomsWithSubscribers() []domain.RoomID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]domain.RoomID, 0, len(h.rooms))
	for id := range h.rooms {
		out = append(out, id)
	}
	return out
}

// DisconnectAll detaches and closes every subscriber of the room. A failure
// closing one socket never blocks cleanup of the rest.
func (h *Hub) DisconnectAll(roomID domain.RoomID) {
	h.mu.Lock()
	room := h.rooms[roomID]
	conns := make(map[core.SubscriberID]core.SubscriberConn, len(room))
	for sid, conn := range room {
		conns[sid] = conn
		delete(h.subs, sid)
	}
	delete(h.rooms, roomID)
	h.mu.Unlock()

	for sid, conn := range conns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Warn().Str("module", "ws.hub").Str("sid", string(sid)).Msg("disconnect panic swallowed")
				}
			}()
			conn.Close()
		}()
	}
	log.Info().Str("module", "ws.hub").Str("room", string(roomID)).Int("count", len(conns)).Msg("room disconnected")
}

// BroadcastExpired tells the room's subscribers the room is gone. Called by
// the registry right before DisconnectAll, so the frame is written to the
// wire synchronously — queueing it would lose the race against Close.
func (h *Hub) BroadcastExpired(roomID domain.RoomID, expiredAt time.Time) {
	payload, err := json.Marshal(expiredFrame{
		Type:      "roomExpired",
		RoomID:    roomID,
		ExpiredAt: expiredAt.UnixMilli(),
	})
	if err != nil {
		log.Error().Err(err).Str("module", "ws.hub").Msg("expired marshal")
		return
	}
	h.mu.RLock()
	conns := make(map[core.SubscriberID]core.SubscriberConn, len(h.rooms[roomID]))
	for sid, conn := range h.rooms[roomID] {
		conns[sid] = conn
	}
	h.mu.RUnlock()

	for sid, conn := range conns {
		if err := conn.Send(payload); err != nil {
			log.Warn().Err(err).Str("module", "ws.hub").Str("sid", string(sid)).Msg("expired notify failed")
		}
	}
}

func (h *Hub) closeSubscriber(sid core.SubscriberID) {
	h.mu.Lock()
	roomID, ok := h.subs[sid]
	var conn core.SubscriberConn
	if ok {
		conn = h.rooms[roomID][sid]
	}
	h.detachLocked(sid)
	h.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}
