// internal/game/resolve.go
package game

import (
	"context"

	"github.com/google/uuid"
	"github.com/jason-s-yu/coup/internal/models"
	"github.com/sirupsen/logrus"
)

// resolveAction applies the pending action's effect. Lock held.
func (e *Engine) resolveAction(g *Game) {
	pa := g.Pending
	if pa == nil {
		e.nextTurn(g)
		return
	}
	actor := g.getPlayer(pa.ActorID)
	if actor == nil {
		e.roomLog(g).WithField("actor", pa.ActorID).Error("pending action has no actor; dropping it")
		g.Pending = nil
		e.nextTurn(g)
		return
	}
	log := e.roomLog(g).WithFields(logrus.Fields{"player": actor.Name, "action": pa.Action})

	switch pa.Action {
	case ActionIncome:
		actor.Coins++
	case ActionForeignAid:
		actor.Coins += 2
	case ActionTax:
		actor.Coins += 3
	case ActionSteal:
		if target := g.getPlayer(pa.TargetID); target != nil {
			stolen := target.Coins
			if stolen > 2 {
				stolen = 2
			}
			target.Coins -= stolen
			actor.Coins += stolen
			e.persistCoins(g, target)
		}
	case ActionCoup, ActionAssassinate:
		e.resolveInfluenceAttack(g, actor)
		return
	case ActionExchange:
		e.beginExchange(g, actor)
		return
	default:
		log.Error("pending action is not resolvable; dropping it")
		g.Pending = nil
		e.nextTurn(g)
		return
	}

	log.WithField("coins", actor.Coins).Debug("action resolved")
	e.persistCoins(g, actor)
	e.finishResolved(g, actor)
}

// finishResolved announces a resolved action and advances the turn.
func (e *Engine) finishResolved(g *Game, actor *Player) {
	pa := g.Pending
	e.broadcast(g, ActionResolved{Action: pa.Action, Actor: actor.Name, ActorID: actor.ID})
	e.record(g, ActionLogEntry{
		Type:     "resolve",
		PlayerID: actor.ID,
		Action:   pa.Action,
		TargetID: pa.TargetID,
	}, map[string]interface{}{"coins": actor.Coins})
	g.Pending = nil
	e.nextTurn(g)
}

// resolveInfluenceAttack charges the actor and asks the target to give up a card, in one step.
func (e *Engine) resolveInfluenceAttack(g *Game, actor *Player) {
	pa := g.Pending
	cost, reason := CoupCost, ReasonCoup
	if pa.Action == ActionAssassinate {
		cost, reason = AssassinateCost, ReasonAssassination
	}
	actor.Coins -= cost
	if actor.Coins < 0 {
		actor.Coins = 0
	}
	e.persistCoins(g, actor)
	e.broadcast(g, ActionResolved{Action: pa.Action, Actor: actor.Name, ActorID: actor.ID})
	e.record(g, ActionLogEntry{
		Type:     "resolve",
		PlayerID: actor.ID,
		Action:   pa.Action,
		TargetID: pa.TargetID,
	}, map[string]interface{}{"coins": actor.Coins})

	target := g.getPlayer(pa.TargetID)
	if target == nil || !target.Alive || len(target.Cards) == 0 {
		// Target already fell, typically to a failed challenge of this same action.
		g.Pending = nil
		e.nextTurn(g)
		return
	}
	e.loseInfluence(g, target.ID, reason, ResumeAfterResolved)
}

// beginExchange draws two cards into the actor's exchange buffer.
func (e *Engine) beginExchange(g *Game, actor *Player) {
	pa := g.Pending
	n := 2
	if len(g.Deck) < n {
		n = len(g.Deck)
	}
	drawn := make([]Card, n)
	copy(drawn, g.Deck[len(g.Deck)-n:])
	g.Deck = g.Deck[:len(g.Deck)-n]
	pa.DrawnCards = drawn
	VerifyDeckIntegrity(g, "exchange_draw", e.roomLog(g))

	if !actor.Connected {
		e.completeExchange(g, actor, append([]Card(nil), actor.Cards...))
		return
	}
	e.sendPrivate(g, actor.ID, ExchangeCards{
		CurrentCards: append([]Card{}, actor.Cards...),
		DrawnCards:   append([]Card{}, drawn...),
	})
}

// CompleteExchange keeps the chosen cards from the actor's hand plus the drawn pair.
// The actor must keep exactly as many cards as they held before the exchange.
func (e *Engine) CompleteExchange(ctx context.Context, roomID, playerID uuid.UUID, kept []Card) error {
	return e.withGame(ctx, roomID, "complete_exchange", true, func(g *Game) error {
		p, err := playerIn(g, playerID)
		if err != nil {
			return err
		}
		pa := g.Pending
		if pa == nil || pa.DrawnCards == nil {
			return reject(ErrNoExchange)
		}
		if pa.ActorID != p.ID {
			return rejectf(ErrNoExchange, "exchange belongs to another player")
		}
		if len(kept) != len(p.Cards) {
			return rejectf(ErrInvalidExchange, "must keep exactly %d cards", len(p.Cards))
		}
		available := append(append([]Card{}, p.Cards...), pa.DrawnCards...)
		for _, c := range kept {
			idx := indexOfCard(available, c)
			if idx < 0 {
				return rejectf(ErrInvalidExchange, "invalid card selection: %s", c)
			}
			available = removeCardAt(available, idx)
		}
		e.completeExchange(g, p, kept)
		return nil
	})
}

// completeExchange applies a validated selection and returns the rest to the deck.
func (e *Engine) completeExchange(g *Game, p *Player, kept []Card) {
	pa := g.Pending
	available := append(append([]Card{}, p.Cards...), pa.DrawnCards...)
	for _, c := range kept {
		if idx := indexOfCard(available, c); idx >= 0 {
			available = removeCardAt(available, idx)
		}
	}
	p.Cards = append([]Card{}, kept...)
	pa.DrawnCards = nil
	g.Deck = append(g.Deck, available...)
	shuffleCards(g.Deck)
	VerifyDeckIntegrity(g, "exchange_complete", e.roomLog(g))

	e.persistCards(g, p)
	e.sendPrivate(g, p.ID, CardsUpdated{Cards: append([]Card{}, p.Cards...)})
	e.finishResolved(g, p)
}

// loseInfluence pauses the game until playerID surrenders a card. A disconnected player
// surrenders their first card straight away.
func (e *Engine) loseInfluence(g *Game, playerID uuid.UUID, reason LossReason, resume Resume) {
	p := g.getPlayer(playerID)
	if p == nil || !p.Alive || len(p.Cards) == 0 {
		e.dispatchResume(g, resume)
		return
	}
	g.InfluenceWait = &InfluenceLossWait{PlayerID: p.ID, Reason: reason, Resume: resume}
	e.broadcast(g, WaitingForInfluenceLoss{Player: p.Name, PlayerID: p.ID, Reason: reason})

	if !p.Connected {
		e.autoLoseInfluence(g, p)
		return
	}
	e.sendPrivate(g, p.ID, ChooseCardToLose{Cards: append([]Card{}, p.Cards...), Reason: reason})
}

// ChooseCardToLose surrenders the chosen card and resumes whatever the loss interrupted.
func (e *Engine) ChooseCardToLose(ctx context.Context, roomID, playerID uuid.UUID, card Card) error {
	return e.withGame(ctx, roomID, "choose_card_to_lose", true, func(g *Game) error {
		p, err := playerIn(g, playerID)
		if err != nil {
			return err
		}
		wait := g.InfluenceWait
		if wait == nil || wait.PlayerID != p.ID {
			return reject(ErrNotYourInfluenceLoss)
		}
		if indexOfCard(p.Cards, card) < 0 {
			return rejectf(ErrCardNotHeld, "you do not hold %s", card)
		}
		e.surrender(g, p, card, false)
		g.InfluenceWait = nil
		e.dispatchResume(g, wait.Resume)
		return nil
	})
}

// autoLoseInfluence services an owed card for a player who cannot choose.
func (e *Engine) autoLoseInfluence(g *Game, p *Player) {
	wait := g.InfluenceWait
	if wait == nil || wait.PlayerID != p.ID || len(p.Cards) == 0 {
		return
	}
	e.surrender(g, p, p.Cards[0], true)
	g.InfluenceWait = nil
	e.dispatchResume(g, wait.Resume)
}

// surrender turns a concealed card face up. The last card eliminates the player.
func (e *Engine) surrender(g *Game, p *Player, card Card, wasDisconnected bool) {
	idx := indexOfCard(p.Cards, card)
	if idx < 0 {
		return
	}
	p.Cards = removeCardAt(p.Cards, idx)
	g.Revealed[p.ID] = append(g.Revealed[p.ID], card)
	if len(p.Cards) == 0 {
		p.Alive = false
	}
	VerifyDeckIntegrity(g, "influence_loss", e.roomLog(g))

	e.broadcast(g, CardLost{
		Player:          p.Name,
		PlayerID:        p.ID,
		Card:            card,
		CardsRemaining:  len(p.Cards),
		IsAlive:         p.Alive,
		WasDisconnected: wasDisconnected,
	})
	e.record(g, ActionLogEntry{
		Type:     "card_lost",
		PlayerID: p.ID,
		Card:     card,
	}, map[string]interface{}{"alive": p.Alive, "wasDisconnected": wasDisconnected})
	e.persistLoss(g, p)

	if !p.Alive {
		e.roomLog(g).WithField("player", p.Name).Info("player eliminated")
	}
}

func (e *Engine) dispatchResume(g *Game, resume Resume) {
	switch resume {
	case ResumeResolve:
		if g.Pending == nil {
			e.nextTurn(g)
			return
		}
		e.resolveAction(g)
	case ResumeNextTurn, ResumeAfterResolved:
		g.Pending = nil
		e.nextTurn(g)
	default:
		e.roomLog(g).WithField("resume", resume).Error("unknown resume step")
		g.Pending = nil
		e.nextTurn(g)
	}
}

// nextTurn hands the turn to the next living seat, or ends the game when one player is left.
func (e *Engine) nextTurn(g *Game) {
	if g.Over {
		return
	}
	alive := g.alivePlayers()
	if len(alive) <= 1 {
		winner := uuid.Nil
		if len(alive) == 1 {
			winner = alive[0].ID
		}
		e.endGame(g, winner)
		return
	}

	n := len(g.Seats)
	for i := 1; i <= n; i++ {
		idx := (g.CurrentTurn + i) % n
		if p := g.Players[g.Seats[idx]]; p != nil && p.Alive {
			g.CurrentTurn = idx
			break
		}
	}
	cur := g.CurrentPlayer()
	e.broadcast(g, NextTurn{CurrentPlayer: cur.ID, Players: g.PlayerSummaries()})

	roomID, playerID := g.RoomID, cur.ID
	e.persist(g, "current_turn", func(ctx context.Context) error {
		return e.Repo.SaveCurrentTurn(ctx, roomID, playerID)
	})
	e.roomLog(g).WithField("player", cur.Name).Debug("next turn")
}

// endGame announces the winner, marks the room finished and evicts the game.
func (e *Engine) endGame(g *Game, winner uuid.UUID) {
	g.Over = true
	g.Winner = winner
	g.Pending = nil
	g.InfluenceWait = nil

	e.broadcast(g, GameOver{Winner: g.playerName(winner), WinnerID: winner})
	e.record(g, ActionLogEntry{Type: "game_over", PlayerID: winner}, nil)

	roomID := g.RoomID
	e.persist(g, "room_status", func(ctx context.Context) error {
		return e.Repo.SetRoomStatus(ctx, roomID, models.RoomStatusFinished)
	})
	e.Store.FinishGame(g.RoomID)
	e.roomLog(g).WithField("winner", g.playerName(winner)).Info("game over")
}
