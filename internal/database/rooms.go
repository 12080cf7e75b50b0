// internal/database/rooms.go
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/coup/internal/game"
	"github.com/jason-s-yu/coup/internal/models"
)

// Repository is the Postgres-backed store for rooms, players and the action history.
type Repository struct {
	pool *pgxpool.Pool
}

var _ game.Repository = (*Repository)(nil)

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ErrCodeTaken is returned when a generated room code collides with an existing room.
var ErrCodeTaken = errors.New("room code already in use")

const roomColumns = `
	r.id, r.code, r.host_name, r.status, r.passcode_hash, r.created_at, gs.current_turn
	FROM rooms r
	LEFT JOIN game_states gs ON gs.room_id = r.id
`

func scanRoom(row pgx.Row) (*models.Room, error) {
	var room models.Room
	var turn *uuid.UUID
	err := row.Scan(&room.ID, &room.Code, &room.HostName, &room.Status, &room.PasscodeHash, &room.CreatedAt, &turn)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, game.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	if turn != nil {
		room.CurrentTurn = *turn
	}
	return &room, nil
}

// LoadRoom fetches a room by its join code.
func (r *Repository) LoadRoom(ctx context.Context, code string) (*models.Room, error) {
	room, err := scanRoom(r.pool.QueryRow(ctx, `SELECT`+roomColumns+`WHERE r.code = $1`, code))
	if err != nil && !errors.Is(err, game.ErrRoomNotFound) {
		return nil, fmt.Errorf("load room %s: %w", code, err)
	}
	return room, err
}

// LoadRoomByID fetches a room with its persisted turn marker.
func (r *Repository) LoadRoomByID(ctx context.Context, roomID uuid.UUID) (*models.Room, error) {
	room, err := scanRoom(r.pool.QueryRow(ctx, `SELECT`+roomColumns+`WHERE r.id = $1`, roomID))
	if err != nil && !errors.Is(err, game.ErrRoomNotFound) {
		return nil, fmt.Errorf("load room %s: %w", roomID, err)
	}
	return room, err
}

// CreateRoom inserts a waiting room together with its host player.
func (r *Repository) CreateRoom(ctx context.Context, room *models.Room, host *models.PlayerRecord) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rooms WHERE code = $1)`, room.Code).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrCodeTaken
		}
		q := `
			INSERT INTO rooms (id, code, host_name, status, passcode_hash, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		if _, err := tx.Exec(ctx, q, room.ID, room.Code, room.HostName, room.Status, room.PasscodeHash, room.CreatedAt); err != nil {
			return err
		}
		return insertPlayerTx(ctx, tx, host)
	})
}

// SetRoomStatus moves a room between waiting, playing, finished and abandoned.
func (r *Repository) SetRoomStatus(ctx context.Context, roomID uuid.UUID, status string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE rooms SET status = $2, updated_at = NOW() WHERE id = $1`, roomID, status)
	if err != nil {
		return fmt.Errorf("set room %s status: %w", roomID, err)
	}
	if tag.RowsAffected() == 0 {
		return game.ErrRoomNotFound
	}
	return nil
}

// SaveCurrentTurn upserts the turn marker used when a room is restored.
func (r *Repository) SaveCurrentTurn(ctx context.Context, roomID, playerID uuid.UUID) error {
	q := `
		INSERT INTO game_states (room_id, current_turn, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (room_id)
		DO UPDATE SET current_turn = $2, updated_at = NOW()
	`
	if _, err := r.pool.Exec(ctx, q, roomID, playerID); err != nil {
		return fmt.Errorf("save turn marker for room %s: %w", roomID, err)
	}
	return nil
}

// MarkRoomAbandoned flags a room still marked playing. It reports whether a row changed.
func (r *Repository) MarkRoomAbandoned(ctx context.Context, roomID uuid.UUID) (bool, error) {
	var changed bool
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			UPDATE rooms
			SET status = $2, updated_at = NOW()
			WHERE id = $1 AND status = $3
		`
		tag, err := tx.Exec(ctx, q, roomID, models.RoomStatusAbandoned, models.RoomStatusPlaying)
		changed = tag.RowsAffected() > 0
		return err
	})
	if err != nil {
		return false, fmt.Errorf("mark room %s abandoned: %w", roomID, err)
	}
	return changed, nil
}

// InsertActions writes a historian batch in one transaction. Replayed records are ignored.
func (r *Repository) InsertActions(ctx context.Context, recs []models.ActionRecord) error {
	if len(recs) == 0 {
		return nil
	}
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			INSERT INTO game_actions (
				room_id, action_index, actor_id, action_type, action_payload, created_at
			) VALUES ($1, $2, $3, $4, $5, to_timestamp($6::double precision / 1000))
			ON CONFLICT (room_id, action_index) DO NOTHING
		`
		batch := &pgx.Batch{}
		for _, rec := range recs {
			payload, err := json.Marshal(rec.ActionPayload)
			if err != nil {
				return fmt.Errorf("marshal payload for action %d: %w", rec.ActionIndex, err)
			}
			var actor *uuid.UUID
			if rec.ActorID != uuid.Nil {
				id := rec.ActorID
				actor = &id
			}
			batch.Queue(q, rec.RoomID, rec.ActionIndex, actor, rec.ActionType, payload, rec.Timestamp)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}
