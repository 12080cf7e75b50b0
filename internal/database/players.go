// internal/database/players.go
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/coup/internal/game"
	"github.com/jason-s-yu/coup/internal/models"
)

// ErrNameTaken is returned when a room already seats a player with the requested name.
var ErrNameTaken = errors.New("name already taken in this room")

const playerColumns = `id, room_id, name, COALESCE(conn_id, ''), cards, revealed_cards, coins, is_alive, is_host, joined_at`

func scanPlayer(row pgx.Row) (*models.PlayerRecord, error) {
	var p models.PlayerRecord
	var cards, revealed []byte
	err := row.Scan(&p.ID, &p.RoomID, &p.Name, &p.ConnID, &cards, &revealed, &p.Coins, &p.IsAlive, &p.IsHost, &p.JoinedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(cards, &p.Cards); err != nil {
		return nil, fmt.Errorf("decode cards of player %s: %w", p.ID, err)
	}
	if err := json.Unmarshal(revealed, &p.RevealedCards); err != nil {
		return nil, fmt.Errorf("decode revealed cards of player %s: %w", p.ID, err)
	}
	return &p, nil
}

func insertPlayerTx(ctx context.Context, tx pgx.Tx, p *models.PlayerRecord) error {
	var taken bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM players WHERE room_id = $1 AND name = $2)`, p.RoomID, p.Name).Scan(&taken); err != nil {
		return err
	}
	if taken {
		return ErrNameTaken
	}
	cards, err := cardsJSON(p.Cards)
	if err != nil {
		return err
	}
	revealed, err := cardsJSON(p.RevealedCards)
	if err != nil {
		return err
	}
	q := `
		INSERT INTO players (id, room_id, name, conn_id, cards, revealed_cards, coins, is_alive, is_host, joined_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10)
	`
	_, err = tx.Exec(ctx, q, p.ID, p.RoomID, p.Name, p.ConnID, cards, revealed, p.Coins, p.IsAlive, p.IsHost, p.JoinedAt)
	return err
}

// cardsJSON encodes a card list for a JSONB column; nil becomes [].
func cardsJSON(cards []string) ([]byte, error) {
	if cards == nil {
		cards = []string{}
	}
	return json.Marshal(cards)
}

// AddPlayer seats a new player in a waiting room, refusing full or started rooms.
func (r *Repository) AddPlayer(ctx context.Context, p *models.PlayerRecord, maxPlayers int) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM rooms WHERE id = $1 FOR UPDATE`, p.RoomID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return game.ErrRoomNotFound
		}
		if err != nil {
			return err
		}
		if status != models.RoomStatusWaiting {
			return game.ErrAlreadyStarted
		}
		var count int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM players WHERE room_id = $1`, p.RoomID).Scan(&count); err != nil {
			return err
		}
		if count >= maxPlayers {
			return game.ErrPlayerCount
		}
		return insertPlayerTx(ctx, tx, p)
	})
}

// FindPlayer fetches one player record.
func (r *Repository) FindPlayer(ctx context.Context, playerID uuid.UUID) (*models.PlayerRecord, error) {
	p, err := scanPlayer(r.pool.QueryRow(ctx, `SELECT `+playerColumns+` FROM players WHERE id = $1`, playerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, game.ErrPlayerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find player %s: %w", playerID, err)
	}
	return p, nil
}

// LoadPlayers returns a room's players in seat (join) order.
func (r *Repository) LoadPlayers(ctx context.Context, roomID uuid.UUID) ([]models.PlayerRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+playerColumns+` FROM players WHERE room_id = $1 ORDER BY joined_at, id`, roomID)
	if err != nil {
		return nil, fmt.Errorf("load players for room %s: %w", roomID, err)
	}
	defer rows.Close()

	var out []models.PlayerRecord
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *Repository) updatePlayer(ctx context.Context, playerID uuid.UUID, q string, arg interface{}) error {
	tag, err := r.pool.Exec(ctx, q, playerID, arg)
	if err != nil {
		return fmt.Errorf("update player %s: %w", playerID, err)
	}
	if tag.RowsAffected() == 0 {
		return game.ErrPlayerNotFound
	}
	return nil
}

func (r *Repository) SavePlayerCoins(ctx context.Context, playerID uuid.UUID, coins int) error {
	return r.updatePlayer(ctx, playerID, `UPDATE players SET coins = $2 WHERE id = $1`, coins)
}

func (r *Repository) SavePlayerCards(ctx context.Context, playerID uuid.UUID, cards []string) error {
	data, err := cardsJSON(cards)
	if err != nil {
		return err
	}
	return r.updatePlayer(ctx, playerID, `UPDATE players SET cards = $2 WHERE id = $1`, data)
}

func (r *Repository) SavePlayerAlive(ctx context.Context, playerID uuid.UUID, alive bool) error {
	return r.updatePlayer(ctx, playerID, `UPDATE players SET is_alive = $2 WHERE id = $1`, alive)
}

func (r *Repository) SavePlayerRevealed(ctx context.Context, playerID uuid.UUID, revealed []string) error {
	data, err := cardsJSON(revealed)
	if err != nil {
		return err
	}
	return r.updatePlayer(ctx, playerID, `UPDATE players SET revealed_cards = $2 WHERE id = $1`, data)
}

// SaveConnID records the player's latest socket; empty clears it.
func (r *Repository) SaveConnID(ctx context.Context, playerID uuid.UUID, connID string) error {
	return r.updatePlayer(ctx, playerID, `UPDATE players SET conn_id = NULLIF($2, '') WHERE id = $1`, connID)
}
