package core

import (
	"time"

	"github.com/mkraev/relay/internal/domain"
)

type SubscriberID string

// Event is the fan-out payload for one publish: the accepted tokens in
// submission order, stamped at publish time.
type Event struct {
	RoomID    domain.RoomID        `json:"roomId"`
	Tokens    []domain.ActionToken `json:"actions"`
	Timestamp time.Time            `json:"timestamp"`
}

// SubscriberConn abstracts one subscriber's messaging transport.
// Owned by the adapter; the adapter must Close() it. TrySend queues and
// never blocks; Send writes synchronously and is for teardown
// notifications that must reach the wire before the socket closes.
type SubscriberConn interface {
	TrySend(payload []byte) error
	Send(payload []byte) error
	Close()
}

// Transport is the collaborator that owns sockets and room membership.
// The core calls out to it; delivery is best-effort and fire-and-forget.
type Transport interface {
	FanOut(roomID domain.RoomID, ev Event)
	SubscriberIDs(roomID domain.RoomID) []SubscriberID
	RoomsWithSubscribers() []domain.RoomID
	DisconnectAll(roomID domain.RoomID)
	BroadcastExpired(roomID domain.RoomID, expiredAt time.Time)
}

// Gate is the admission check the transport consults before letting a
// subscriber attach to a room.
type Gate interface {
	IsJoinAllowed(roomID domain.RoomID) bool
}
