// internal/game/recovery.go
package game

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jason-s-yu/coup/internal/models"
	"github.com/sirupsen/logrus"
)

// HandleDisconnect marks the player offline and settles anything the game is waiting on them for,
// so a room never stalls on an absent player. connID guards against a stale socket closing after
// the player already reconnected elsewhere.
func (e *Engine) HandleDisconnect(ctx context.Context, roomID, playerID uuid.UUID, connID string) error {
	return e.withGame(ctx, roomID, "disconnect", false, func(g *Game) error {
		p, err := playerIn(g, playerID)
		if err != nil {
			return err
		}
		if connID != "" && p.ConnID != connID {
			return nil
		}
		p.Connected = false
		p.ConnID = ""
		e.broadcast(g, PlayerConnection{PlayerID: p.ID, PlayerName: p.Name})
		e.roomLog(g).WithField("player", p.Name).Info("player disconnected")

		if !p.Alive {
			return nil
		}
		if w := g.InfluenceWait; w != nil && w.PlayerID == p.ID {
			e.autoLoseInfluence(g, p)
			return nil
		}
		pa := g.Pending
		if pa == nil || g.InfluenceWait != nil {
			return nil
		}
		if pa.DrawnCards != nil {
			if pa.ActorID == p.ID {
				e.completeExchange(g, p, append([]Card(nil), p.Cards...))
			}
			return nil
		}
		if pa.isWaitingFor(p.ID) {
			e.markPassed(g, p, true)
			if len(pa.WaitingFor) == 0 {
				e.closeContest(g)
			}
		}
		return nil
	})
}

// HandleReconnect binds a new connection to the player and sends them a private state sync.
func (e *Engine) HandleReconnect(ctx context.Context, roomID, playerID uuid.UUID, connID string) error {
	return e.withGame(ctx, roomID, "reconnect", true, func(g *Game) error {
		p, err := playerIn(g, playerID)
		if err != nil {
			return err
		}
		p.ConnID = connID
		p.Connected = true

		e.sendPrivate(g, p.ID, g.StateFor(p.ID))
		e.broadcast(g, PlayerConnection{PlayerID: p.ID, PlayerName: p.Name, connected: true})
		e.roomLog(g).WithField("player", p.Name).Info("player reconnected")
		return nil
	})
}

// RestoreFromDurableState rebuilds a room's game from its player records after a restart.
// It returns (nil, nil) when the room is not in play. Any in-flight action is lost; the game
// resumes awaiting a declaration. Records with at most one living player belong to a game that
// already ended, so the room is closed instead of rebuilt.
func (e *Engine) RestoreFromDurableState(ctx context.Context, roomID uuid.UUID) (*Game, error) {
	if e.Repo == nil {
		return nil, nil
	}
	room, err := e.Repo.LoadRoomByID(ctx, roomID)
	if errors.Is(err, ErrRoomNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load room %s: %w", roomID, err)
	}
	if room == nil || room.Status != models.RoomStatusPlaying {
		return nil, nil
	}
	records, err := e.Repo.LoadPlayers(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("load players for room %s: %w", room.Code, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	g := restoreGame(room, records)
	log := e.roomLog(g)

	if len(g.alivePlayers()) <= 1 {
		e.Store.FinishGame(roomID)
		if err := e.Repo.SetRoomStatus(ctx, roomID, models.RoomStatusFinished); err != nil {
			log.WithError(err).Warn("failed to mark ended room finished")
		}
		log.Warn("refusing to restore a game that already ended")
		return nil, reject(ErrGameOver)
	}

	turnSet := false
	if room.CurrentTurn != uuid.Nil {
		for i, id := range g.Seats {
			if id == room.CurrentTurn && g.Players[id].Alive {
				g.CurrentTurn = i
				turnSet = true
				break
			}
		}
	}
	if !turnSet {
		for i, id := range g.Seats {
			if g.Players[id].Alive {
				g.CurrentTurn = i
				break
			}
		}
	}

	VerifyDeckIntegrity(g, "restore", log)
	log.WithFields(logrus.Fields{
		"players": len(g.Seats),
		"deck":    len(g.Deck),
		"turn":    g.playerName(g.Seats[g.CurrentTurn]),
	}).Info("restored game from durable state")
	return g, nil
}

// restoreGame builds the game from records in seat order. The deck is whatever the census
// leaves after hands and revealed cards.
func restoreGame(room *models.Room, records []models.PlayerRecord) *Game {
	g := NewGame(room.ID, room.Code)
	remaining := make(map[Card]int, len(AllCards))
	for _, c := range AllCards {
		remaining[c] = CopiesPerCard
	}

	for _, rec := range records {
		cards := ParseCards(rec.Cards)
		revealed := ParseCards(rec.RevealedCards)
		p := &Player{
			ID:    rec.ID,
			Name:  rec.Name,
			Cards: cards,
			Coins: rec.Coins,
			Alive: rec.IsAlive && len(cards) > 0,
		}
		g.AddPlayer(p)
		if len(revealed) > 0 {
			g.Revealed[p.ID] = revealed
		}
		for _, c := range cards {
			remaining[c]--
		}
		for _, c := range revealed {
			remaining[c]--
		}
	}

	for _, c := range AllCards {
		for i := 0; i < remaining[c]; i++ {
			g.Deck = append(g.Deck, c)
		}
	}
	shuffleCards(g.Deck)
	return g
}

// StateFor is the private view of the game for one player.
func (g *Game) StateFor(playerID uuid.UUID) GameState {
	st := GameState{
		YourID:        playerID,
		Players:       g.PlayerSummaries(),
		Phase:         g.Phase().String(),
		RevealedCards: make(map[uuid.UUID][]Card, len(g.Revealed)),
		Pending:       pendingSummary(g.Pending),
	}
	if p := g.getPlayer(playerID); p != nil {
		st.YourCards = append([]Card{}, p.Cards...)
		st.YourCoins = p.Coins
	}
	if cur := g.CurrentPlayer(); cur != nil {
		st.CurrentTurn = cur.ID
	}
	for id, cards := range g.Revealed {
		st.RevealedCards[id] = append([]Card{}, cards...)
	}
	if w := g.InfluenceWait; w != nil {
		id := w.PlayerID
		st.WaitingOnPlayer = &id
	}
	if pa := g.Pending; pa != nil && pa.DrawnCards != nil && pa.ActorID == playerID {
		st.DrawnCards = append([]Card{}, pa.DrawnCards...)
	}
	return st
}
