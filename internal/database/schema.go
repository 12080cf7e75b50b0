// internal/database/schema.go
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates every table the server and historian use. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id          UUID PRIMARY KEY,
	code        TEXT NOT NULL UNIQUE,
	host_name   TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'waiting',
	passcode_hash TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS players (
	id             UUID PRIMARY KEY,
	room_id        UUID NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
	name           TEXT NOT NULL,
	conn_id        TEXT,
	cards          JSONB NOT NULL DEFAULT '[]',
	revealed_cards JSONB NOT NULL DEFAULT '[]',
	coins          INT NOT NULL DEFAULT 2,
	is_alive       BOOLEAN NOT NULL DEFAULT TRUE,
	is_host        BOOLEAN NOT NULL DEFAULT FALSE,
	joined_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (room_id, name)
);

CREATE INDEX IF NOT EXISTS players_room_idx ON players (room_id, joined_at);

CREATE TABLE IF NOT EXISTS game_states (
	room_id      UUID PRIMARY KEY REFERENCES rooms(id) ON DELETE CASCADE,
	current_turn UUID,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS game_actions (
	room_id        UUID NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
	action_index   INT NOT NULL,
	actor_id       UUID,
	action_type    TEXT NOT NULL,
	action_payload JSONB NOT NULL DEFAULT '{}',
	created_at     TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (room_id, action_index)
);
`

// Migrate applies Schema in one transaction.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	err := pgx.BeginTxFunc(ctx, pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, Schema)
		return err
	})
	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
