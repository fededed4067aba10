package app

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/mkraev/relay/internal/core"
	"github.com/mkraev/relay/internal/domain"
)

// PublishReceipt reports an accepted publish back to the caller.
type PublishReceipt struct {
	RoomID domain.RoomID        `json:"roomId"`
	Tokens []domain.ActionToken `json:"actions"`
}

// CreateReceipt reports a provisioning call. Occupied is informational:
// a room that already has subscribers is still (re-)provisioned.
type CreateReceipt struct {
	RoomID   domain.RoomID `json:"roomId"`
	Occupied bool          `json:"occupied"`
}

// Coordinator is the façade the request surface calls. It validates inbound
// sequences, provisions rooms, updates the caches and asks the transport to
// fan out. It owns no state of its own.
type Coordinator struct {
	Vocab     *domain.Vocabulary
	Registry  *Registry
	Cache     *SequenceCache
	History   *HistoryLog
	Transport core.Transport
}

// Publish validates and distributes one action sequence. On any input error
// no state changes; on success the cache is the canonical room state before
// and independent of delivery.
func (c *Coordinator) Publish(roomID string, tokens []string, ttlSec *float64) (PublishReceipt, error) {
	id := trimID(roomID)
	if id == "" {
		return PublishReceipt{}, domain.ErrMissingRoomID
	}
	if len(tokens) == 0 {
		return PublishReceipt{}, domain.ErrEmptySequence
	}

	seq := lo.Map(tokens, func(t string, _ int) domain.ActionToken {
		return domain.ActionToken(t)
	})
	if invalid := c.Vocab.Validate(seq); len(invalid) > 0 {
		return PublishReceipt{}, &domain.InvalidTokensError{
			Invalid: invalid,
			Allowed: c.Vocab.Tokens(),
		}
	}

	if err := c.Registry.Provision(id); err != nil {
		return PublishReceipt{}, err
	}
	if ttlSec != nil {
		c.Registry.SetTTL(id, *ttlSec)
	}

	c.Cache.Set(id, seq)
	for _, tok := range seq {
		c.History.Record(id, tok)
	}

	ev := core.Event{RoomID: id, Tokens: seq, Timestamp: time.Now()}
	c.Transport.FanOut(id, ev)

	log.Info().Str("module", "app.coordinator").Str("room", string(id)).Int("tokens", len(seq)).Msg("sequence published")
	return PublishReceipt{RoomID: id, Tokens: seq}, nil
}

// CreateRoom provisions the room and optionally arms its TTL. Existing
// subscribers never block provisioning; they are only reported.
func (c *Coordinator) CreateRoom(roomID string, ttlSec *float64) (CreateReceipt, error) {
	id := trimID(roomID)
	if id == "" {
		return CreateReceipt{}, domain.ErrMissingRoomID
	}
	if err := c.Registry.Provision(id); err != nil {
		return CreateReceipt{}, err
	}
	if ttlSec != nil {
		c.Registry.SetTTL(id, *ttlSec)
	}
	occupied := len(c.Transport.SubscriberIDs(id)) > 0
	return CreateReceipt{RoomID: id, Occupied: occupied}, nil
}

// LastSequence returns the room's cached sequence, empty when absent or
// expired. Room ids are trimmed the same way the write side trims them,
// so a publish and its readback always hit the same slot.
func (c *Coordinator) LastSequence(roomID string) []domain.ActionToken {
	return c.Cache.Get(trimID(roomID))
}

func (c *Coordinator) ClearLastSequence(roomID string) bool {
	return c.Cache.Clear(trimID(roomID))
}

func (c *Coordinator) HistoryTokens(roomID string) []domain.ActionToken {
	return c.History.ListTokens(trimID(roomID))
}

func (c *Coordinator) ClearHistory(roomID string) int {
	return c.History.Clear(trimID(roomID))
}

func (c *Coordinator) ActiveRooms() []domain.RoomID {
	return c.Registry.ActiveRooms()
}

func (c *Coordinator) Subscribers(roomID string) []core.SubscriberID {
	return c.Transport.SubscriberIDs(trimID(roomID))
}

func trimID(roomID string) domain.RoomID {
	return domain.RoomID(strings.TrimSpace(roomID))
}
