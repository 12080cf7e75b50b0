// internal/models/player.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// PlayerRecord is the durable copy of a seat, one row in the players table.
// Cards and RevealedCards hold card names ("duke", "contessa", ...).
type PlayerRecord struct {
	ID            uuid.UUID `json:"id"`
	RoomID        uuid.UUID `json:"room_id"`
	Name          string    `json:"name"`
	ConnID        string    `json:"-"`
	Cards         []string  `json:"-"`
	RevealedCards []string  `json:"revealed_cards"`
	Coins         int       `json:"coins"`
	IsAlive       bool      `json:"is_alive"`
	IsHost        bool      `json:"is_host"`
	JoinedAt      time.Time `json:"joined_at"`
}
