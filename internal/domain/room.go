// Package domain contains entity without logic, just meta-data
package domain

import "time"

// RoomID is an opaque caller-supplied identifier for a broadcast scope.
type RoomID string

// HistoryEntry is one recorded action token for a room.
type HistoryEntry struct {
	RoomID    RoomID      `json:"roomId"`
	Token     ActionToken `json:"action"`
	Timestamp time.Time   `json:"timestamp"`
}
