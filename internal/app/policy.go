package app

import (
	"github.com/mkraev/relay/internal/core"
	"github.com/mkraev/relay/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickSubscriber
)

// Policy decides what happens to a subscriber whose send buffer is full
// during fan-out.
type Policy interface {
	OnBackpressure(roomID domain.RoomID, sub core.SubscriberID) BackpressureAction
}

// SimplePolicy kicks slow consumers. A subscriber that cannot drain its
// buffer rejoins and resyncs from the last-sequence cache anyway.
type SimplePolicy struct{}

func (SimplePolicy) OnBackpressure(domain.RoomID, core.SubscriberID) BackpressureAction {
	return KickSubscriber
}
