// internal/game/engine.go
package game

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/coup/internal/models"
	"github.com/sirupsen/logrus"
)

// Engine runs the action/response state machine for every room held in its store.
// All operations on one room are serialized by that room's Game.Mu, held for the whole
// handle-and-resolve sequence. Different rooms proceed independently.
type Engine struct {
	Store     *GameStore
	Repo      Repository
	Transport Transport
	Journal   Journal // optional
	Logger    *logrus.Logger

	// PersistTimeout bounds each best-effort durable write.
	PersistTimeout time.Duration

	// runAsync executes durable writes off the room lane.
	runAsync func(func())
	writes   *writeQueue

	startMu sync.Mutex
}

// NewEngine wires an engine to its collaborators. Close releases the write queue.
func NewEngine(store *GameStore, repo Repository, transport Transport, journal Journal, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	e := &Engine{
		Store:          store,
		Repo:           repo,
		Transport:      transport,
		Journal:        journal,
		Logger:         logger,
		PersistTimeout: 5 * time.Second,
		writes:         newWriteQueue(1024, logger),
	}
	e.runAsync = e.writes.Submit
	return e
}

// Close stops the durable write queue after draining it.
func (e *Engine) Close() {
	if e.writes != nil {
		e.writes.Close()
	}
}

func (e *Engine) roomLog(g *Game) *logrus.Entry {
	return e.Logger.WithFields(logrus.Fields{"room": g.RoomCode, "room_id": g.RoomID})
}

// withGame runs fn with the room's lock held. When restore is set a missing game is rebuilt from
// durable records first. A panic inside fn is contained to this one operation.
func (e *Engine) withGame(ctx context.Context, roomID uuid.UUID, op string, restore bool, fn func(g *Game) error) (err error) {
	var g *Game
	if restore {
		g, err = e.Store.LoadOrRestore(ctx, roomID, e.RestoreFromDurableState)
		if err != nil {
			return err
		}
	} else {
		var ok bool
		if g, ok = e.Store.GetGame(roomID); !ok {
			return ErrGameNotFound
		}
	}

	g.Mu.Lock()
	defer g.Mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			e.roomLog(g).WithField("op", op).Errorf("panic while handling operation: %v\n%s", r, debug.Stack())
			err = ErrInternal
		}
	}()

	if g.Over {
		return reject(ErrGameOver)
	}
	return fn(g)
}

// playerIn looks up the acting player or rejects the request.
func playerIn(g *Game, playerID uuid.UUID) (*Player, error) {
	p := g.getPlayer(playerID)
	if p == nil {
		return nil, ErrPlayerNotFound
	}
	return p, nil
}

// broadcast sends an event to every connection in the room.
func (e *Engine) broadcast(g *Game, p Payload) {
	if e.Transport == nil {
		return
	}
	e.Transport.BroadcastToRoom(g.RoomCode, NewEvent(p))
}

// sendPrivate sends an event to one player's connection, if they have one.
func (e *Engine) sendPrivate(g *Game, playerID uuid.UUID, p Payload) {
	if e.Transport == nil {
		return
	}
	pl := g.getPlayer(playerID)
	if pl == nil || pl.ConnID == "" {
		return
	}
	e.Transport.SendTo(pl.ConnID, NewEvent(p))
}

// persist schedules a best-effort durable write. Values must be captured by the caller.
func (e *Engine) persist(g *Game, what string, fn func(ctx context.Context) error) {
	if e.Repo == nil {
		return
	}
	log := e.roomLog(g).WithField("write", what)
	timeout := e.PersistTimeout
	e.runAsync(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Warnf("durable write failed: %v", err)
		}
	})
}

func (e *Engine) persistCoins(g *Game, p *Player) {
	id, coins := p.ID, p.Coins
	e.persist(g, "coins", func(ctx context.Context) error {
		return e.Repo.SavePlayerCoins(ctx, id, coins)
	})
}

func (e *Engine) persistCards(g *Game, p *Player) {
	id, cards := p.ID, CardStrings(p.Cards)
	e.persist(g, "cards", func(ctx context.Context) error {
		return e.Repo.SavePlayerCards(ctx, id, cards)
	})
}

// persistLoss mirrors a surrendered card: remaining hand, alive flag and revealed cards.
func (e *Engine) persistLoss(g *Game, p *Player) {
	id, cards, alive := p.ID, CardStrings(p.Cards), p.Alive
	revealed := CardStrings(g.Revealed[p.ID])
	e.persist(g, "influence_loss", func(ctx context.Context) error {
		if err := e.Repo.SavePlayerCards(ctx, id, cards); err != nil {
			return err
		}
		if err := e.Repo.SavePlayerAlive(ctx, id, alive); err != nil {
			return err
		}
		return e.Repo.SavePlayerRevealed(ctx, id, revealed)
	})
}

// record appends to the in-memory log and publishes the action to the historian journal.
func (e *Engine) record(g *Game, entry ActionLogEntry, payload map[string]interface{}) {
	g.appendLog(entry)
	if e.Journal == nil {
		return
	}
	if payload == nil {
		payload = make(map[string]interface{})
	}
	if entry.Action != "" {
		payload["action"] = string(entry.Action)
	}
	if entry.TargetID != uuid.Nil {
		payload["target"] = entry.TargetID.String()
	}
	if entry.Card != "" {
		payload["card"] = string(entry.Card)
	}
	rec := models.ActionRecord{
		RoomID:        g.RoomID,
		ActionIndex:   len(g.ActionLog),
		ActorID:       entry.PlayerID,
		ActionType:    entry.Type,
		ActionPayload: payload,
		Timestamp:     entry.Timestamp.UnixMilli(),
	}
	log := e.roomLog(g)
	timeout := e.PersistTimeout
	e.runAsync(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := e.Journal.Publish(ctx, rec); err != nil {
			log.Warnf("error publishing action %d to journal: %v", rec.ActionIndex, err)
		}
	})
}
