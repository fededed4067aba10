package ws

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mkraev/relay/internal/app"
	"github.com/mkraev/relay/internal/core"
	"github.com/mkraev/relay/internal/domain"
)

// fakeConn records sent payloads and can simulate a full send buffer or a
// panicking Close. Queued and synchronous writes are recorded separately
// so tests can tell which path delivered a frame.
type fakeConn struct {
	sent         [][]byte
	sentSync     [][]byte
	failSend     error
	closed       bool
	panicOnClose bool
}

func (c *fakeConn) TrySend(payload []byte) error {
	if c.failSend != nil {
		return c.failSend
	}
	c.sent = append(c.sent, payload)
	return nil
}

func (c *fakeConn) Send(payload []byte) error {
	if c.closed {
		return errors.New("connection closed")
	}
	c.sentSync = append(c.sentSync, payload)
	return nil
}

func (c *fakeConn) Close() {
	if c.panicOnClose {
		panic("broken socket")
	}
	c.closed = true
}

func TestHub_AttachDetach(t *testing.T) {
	h := NewHub(app.SimplePolicy{})
	conn := &fakeConn{}

	h.Attach("r1", "c1", conn)
	require.Equal(t, []core.SubscriberID{"c1"}, h.SubscriberIDs("r1"))
	require.Equal(t, []domain.RoomID{"r1"}, h.RoomsWithSubscribers())

	h.Detach("c1")
	require.Empty(t, h.SubscriberIDs("r1"))
	require.Empty(t, h.RoomsWithSubscribers())
	require.False(t, conn.closed)
}

func TestHub_AttachMovesBetweenRooms(t *testing.T) {
	h := NewHub(app.SimplePolicy{})
	conn := &fakeConn{}

	h.Attach("r1", "c1", conn)
	h.Attach("r2", "c1", conn)

	require.Empty(t, h.SubscriberIDs("r1"))
	require.Equal(t, []core.SubscriberID{"c1"}, h.SubscriberIDs("r2"))
}

func TestHub_FanOutDeliversInOrder(t *testing.T) {
	h := NewHub(app.SimplePolicy{})
	conn := &fakeConn{}
	h.Attach("r1", "c1", conn)
	other := &fakeConn{}
	h.Attach("r2", "c2", other)

	ts := time.Now()
	h.FanOut("r1", core.Event{
		RoomID:    "r1",
		Tokens:    []domain.ActionToken{"forward", "turnRight"},
		Timestamp: ts,
	})

	require.Len(t, conn.sent, 1)
	require.Empty(t, other.sent)

	var frame actionsFrame
	require.NoError(t, json.Unmarshal(conn.sent[0], &frame))
	require.Equal(t, "actions", frame.Type)
	require.Equal(t, domain.RoomID("r1"), frame.RoomID)
	require.Equal(t, []domain.ActionToken{"forward", "turnRight"}, frame.Actions)
	require.Equal(t, ts.UnixMilli(), frame.Timestamp)
}

func TestHub_FanOutKicksSlowSubscriber(t *testing.T) {
	h := NewHub(app.SimplePolicy{})
	slow := &fakeConn{failSend: ErrBackpressure}
	ok := &fakeConn{}
	h.Attach("r1", "slow", slow)
	h.Attach("r1", "ok", ok)

	h.FanOut("r1", core.Event{RoomID: "r1", Tokens: []domain.ActionToken{"forward"}, Timestamp: time.Now()})

	require.True(t, slow.closed)
	require.Equal(t, []core.SubscriberID{"ok"}, h.SubscriberIDs("r1"))
	require.Len(t, ok.sent, 1)
}

func TestHub_DisconnectAll(t *testing.T) {
	h := NewHub(app.SimplePolicy{})
	a := &fakeConn{}
	b := &fakeConn{panicOnClose: true}
	c := &fakeConn{}
	h.Attach("r1", "a", a)
	h.Attach("r1", "b", b)
	h.Attach("r1", "c", c)

	// One broken socket must not block cleanup of the rest.
	h.DisconnectAll("r1")

	require.True(t, a.closed)
	require.True(t, c.closed)
	require.Empty(t, h.SubscriberIDs("r1"))
	require.Empty(t, h.RoomsWithSubscribers())
}

func TestHub_BroadcastExpiredDeliversSynchronously(t *testing.T) {
	h := NewHub(app.SimplePolicy{})
	// A full send buffer must not lose the expired notification:
	// it goes straight to the wire, not through the queue.
	conn := &fakeConn{failSend: ErrBackpressure}
	h.Attach("r1", "c1", conn)

	at := time.Now()
	h.BroadcastExpired("r1", at)

	require.Empty(t, conn.sent)
	require.Len(t, conn.sentSync, 1)
	var frame expiredFrame
	require.NoError(t, json.Unmarshal(conn.sentSync[0], &frame))
	require.Equal(t, "roomExpired", frame.Type)
	require.Equal(t, domain.RoomID("r1"), frame.RoomID)
	require.Equal(t, at.UnixMilli(), frame.ExpiredAt)
}

func TestHub_ExpirySequenceNotifiesBeforeDisconnect(t *testing.T) {
	h := NewHub(app.SimplePolicy{})
	a := &fakeConn{}
	b := &fakeConn{}
	h.Attach("r1", "a", a)
	h.Attach("r1", "b", b)

	// The registry's teardown order: notify, then disconnect. Every
	// subscriber must have the frame on the wire before its socket closes.
	h.BroadcastExpired("r1", time.Now())
	h.DisconnectAll("r1")

	for _, conn := range []*fakeConn{a, b} {
		require.Len(t, conn.sentSync, 1)
		require.True(t, conn.closed)
	}
	require.Empty(t, h.SubscriberIDs("r1"))
}
