package models

import (
	"time"

	"github.com/google/uuid"
)

// RoomEventType names a room lifecycle transition.
type RoomEventType string

const (
	RoomCreated RoomEventType = "room_created"
	RoomJoined  RoomEventType = "room_joined"
	RoomLeft    RoomEventType = "room_left"
	RoomStarted RoomEventType = "room_started"
	RoomClosed  RoomEventType = "room_closed"

	// RoomAbandoned is written by the historian, never the lobby, for a room
	// that went quiet without a closing event.
	RoomAbandoned RoomEventType = "room_abandoned"
)

// RoomEvent is one journal entry, published to redis by the lobby and
// persisted by the historian.
type RoomEvent struct {
	ID        uuid.UUID     `json:"id"`
	Type      RoomEventType `json:"type"`
	RoomID    string        `json:"room_id"`
	GameID    int           `json:"game_id"`
	Users     []string      `json:"users"`
	Port      int           `json:"port,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// NewRoomEvent stamps a fresh id and the current time.
func NewRoomEvent(t RoomEventType, roomID string, gameID int, users []string) RoomEvent {
	return RoomEvent{
		ID:        uuid.New(),
		Type:      t,
		RoomID:    roomID,
		GameID:    gameID,
		Users:     users,
		Timestamp: time.Now().UTC(),
	}
}
