package ws

import (
	"github.com/mkraev/relay/internal/domain"
)

// Wire frames. Every server-to-subscriber message carries a "type"
// discriminator, mirrored by the envelope the read pump switches on.

type envelope struct {
	Type string `json:"type"`
}

type joinPayload struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type joinedFrame struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
}

type actionsFrame struct {
	Type      string               `json:"type"`
	RoomID    domain.RoomID        `json:"roomId"`
	Actions   []domain.ActionToken `json:"actions"`
	Timestamp int64                `json:"timestamp"`
}

type expiredFrame struct {
	Type      string        `json:"type"`
	RoomID    domain.RoomID `json:"roomId"`
	ExpiredAt int64         `json:"expiredAt"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
