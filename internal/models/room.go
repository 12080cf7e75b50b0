// internal/models/room.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Room statuses as stored in rooms.status.
const (
	RoomStatusWaiting   = "waiting"
	RoomStatusPlaying   = "playing"
	RoomStatusFinished  = "finished"
	RoomStatusAbandoned = "abandoned"
)

// Room represents a row in the rooms table.
type Room struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	HostName  string    `json:"host_name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`

	// PasscodeHash is the Argon2id hash new players must match; empty for open rooms.
	PasscodeHash string `json:"-"`

	// CurrentTurn comes from game_states.current_turn; uuid.Nil when no marker was saved.
	CurrentTurn uuid.UUID `json:"current_turn"`
}
