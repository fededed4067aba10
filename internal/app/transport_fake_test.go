package app

import (
	"sync"
	"time"

	"github.com/mkraev/relay/internal/core"
	"github.com/mkraev/relay/internal/domain"
)

// fakeTransport records the calls the core makes to the collaborator.
type fakeTransport struct {
	mu          sync.Mutex
	events      []core.Event
	subscribers map[domain.RoomID][]core.SubscriberID
	expired     []domain.RoomID
	disconnects []domain.RoomID
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{subscribers: make(map[domain.RoomID][]core.SubscriberID)}
}

func (f *fakeTransport) FanOut(_ domain.RoomID, ev core.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeTransport) SubscriberIDs(roomID domain.RoomID) []core.SubscriberID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribers[roomID]
}

func (f *fakeTransport) RoomsWithSubscribers() []domain.RoomID {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.RoomID, 0, len(f.subscribers))
	for id := range f.subscribers {
		out = append(out, id)
	}
	return out
}

func (f *fakeTransport) DisconnectAll(roomID domain.RoomID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects = append(f.disconnects, roomID)
	delete(f.subscribers, roomID)
}

func (f *fakeTransport) BroadcastExpired(roomID domain.RoomID, _ time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired = append(f.expired, roomID)
}

func (f *fakeTransport) expiredCount(roomID domain.RoomID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range f.expired {
		if id == roomID {
			n++
		}
	}
	return n
}

func (f *fakeTransport) lastEvent() (core.Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return core.Event{}, false
	}
	return f.events[len(f.events)-1], true
}
