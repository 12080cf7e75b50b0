// internal/game/ports.go
package game

import (
	"context"

	"github.com/google/uuid"
	"github.com/jason-s-yu/coup/internal/models"
)

// Repository is the durable store for rooms and player records.
// Writes mirror in-memory state on a best-effort basis; the in-memory game stays authoritative.
type Repository interface {
	LoadRoom(ctx context.Context, code string) (*models.Room, error)
	LoadRoomByID(ctx context.Context, roomID uuid.UUID) (*models.Room, error)
	LoadPlayers(ctx context.Context, roomID uuid.UUID) ([]models.PlayerRecord, error)

	SavePlayerCoins(ctx context.Context, playerID uuid.UUID, coins int) error
	SavePlayerCards(ctx context.Context, playerID uuid.UUID, cards []string) error
	SavePlayerAlive(ctx context.Context, playerID uuid.UUID, alive bool) error
	SavePlayerRevealed(ctx context.Context, playerID uuid.UUID, revealed []string) error
	SetRoomStatus(ctx context.Context, roomID uuid.UUID, status string) error
	SaveCurrentTurn(ctx context.Context, roomID uuid.UUID, playerID uuid.UUID) error
}

// Transport delivers events to one connection or to every connection joined to a room.
type Transport interface {
	SendTo(connID string, ev Event)
	BroadcastToRoom(roomCode string, ev Event)
}

// Journal receives every logged action for the historian.
type Journal interface {
	Publish(ctx context.Context, rec models.ActionRecord) error
}
