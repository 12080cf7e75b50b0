// internal/game/lifecycle.go
package game

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jason-s-yu/coup/internal/models"
)

// StartGame deals a new game for a waiting room. conns maps player ids to their live connection ids;
// players without one start disconnected. Only the host may start, with 2 to 6 players seated.
func (e *Engine) StartGame(ctx context.Context, roomID, hostID uuid.UUID, conns map[uuid.UUID]string) (*Game, error) {
	e.startMu.Lock()
	defer e.startMu.Unlock()

	if _, live := e.Store.GetGame(roomID); live {
		return nil, reject(ErrAlreadyStarted)
	}
	room, err := e.Repo.LoadRoomByID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("load room %s: %w", roomID, err)
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	if room.Status != models.RoomStatusWaiting {
		return nil, reject(ErrAlreadyStarted)
	}
	records, err := e.Repo.LoadPlayers(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("load players for room %s: %w", room.Code, err)
	}

	isHost := false
	for _, rec := range records {
		if rec.ID == hostID && rec.IsHost {
			isHost = true
			break
		}
	}
	if !isHost {
		return nil, reject(ErrNotHost)
	}
	if len(records) < MinPlayers || len(records) > MaxPlayers {
		return nil, rejectf(ErrPlayerCount, "need %d to %d players, have %d", MinPlayers, MaxPlayers, len(records))
	}

	g := deal(room, records, conns)
	log := e.roomLog(g)
	VerifyDeckIntegrity(g, "deal", log)

	if err := e.Repo.SetRoomStatus(ctx, roomID, models.RoomStatusPlaying); err != nil {
		return nil, fmt.Errorf("mark room %s playing: %w", room.Code, err)
	}
	e.Store.AddGame(g)

	g.Mu.Lock()
	defer g.Mu.Unlock()
	for _, id := range g.Seats {
		p := g.Players[id]
		e.persistCards(g, p)
		e.persistCoins(g, p)
	}
	first := g.Seats[0]
	e.persist(g, "current_turn", func(ctx context.Context) error {
		return e.Repo.SaveCurrentTurn(ctx, roomID, first)
	})

	players := g.PlayerSummaries()
	for _, id := range g.Seats {
		p := g.Players[id]
		e.sendPrivate(g, id, GameStarted{
			YourID:      id,
			YourCards:   append([]Card{}, p.Cards...),
			YourCoins:   p.Coins,
			Players:     players,
			CurrentTurn: first,
		})
	}
	e.record(g, ActionLogEntry{Type: "game_started", PlayerID: hostID}, map[string]interface{}{"players": len(g.Seats)})
	log.WithField("players", len(g.Seats)).Info("game started")
	return g, nil
}

// deal seats players in join order and gives each two cards and the starting coins.
func deal(room *models.Room, records []models.PlayerRecord, conns map[uuid.UUID]string) *Game {
	g := NewGame(room.ID, room.Code)
	g.Deck = NewShuffledDeck()
	for _, rec := range records {
		n := len(g.Deck)
		hand := append([]Card{}, g.Deck[n-CardsPerPlayer:]...)
		g.Deck = g.Deck[:n-CardsPerPlayer]
		connID := conns[rec.ID]
		g.AddPlayer(&Player{
			ID:        rec.ID,
			Name:      rec.Name,
			ConnID:    connID,
			Cards:     hand,
			Coins:     StartingCoins,
			Alive:     true,
			Connected: connID != "",
		})
	}
	return g
}
