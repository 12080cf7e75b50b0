// internal/game/declare.go
package game

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DeclareAction opens a new action for the current player. Uncontestable actions resolve at once;
// everything else waits on the other living players.
func (e *Engine) DeclareAction(ctx context.Context, roomID, playerID uuid.UUID, action Action, targetID uuid.UUID, claimed Card) error {
	return e.withGame(ctx, roomID, "declare_action", true, func(g *Game) error {
		p, err := playerIn(g, playerID)
		if err != nil {
			return err
		}
		if err := validateDeclaration(g, p, action, targetID, claimed); err != nil {
			return err
		}
		if !action.Targeted() {
			targetID = uuid.Nil
		}
		e.declare(g, p, action, targetID, claimed)
		return nil
	})
}

func validateDeclaration(g *Game, p *Player, action Action, targetID uuid.UUID, claimed Card) error {
	if g.InfluenceWait != nil {
		return reject(ErrAwaitingInfluenceLoss)
	}
	if g.Pending != nil {
		return reject(ErrActionInProgress)
	}
	if cur := g.CurrentPlayer(); cur == nil || cur.ID != p.ID {
		return reject(ErrNotYourTurn)
	}
	if !action.Valid() {
		return rejectf(ErrUnknownAction, "unknown action: %s", action)
	}
	if p.Coins >= MustCoupAt && action != ActionCoup {
		return rejectf(ErrMustCoup, "must coup with %d or more coins", MustCoupAt)
	}
	if !CanAfford(p, action) {
		return rejectf(ErrCannotAfford, "not enough coins for %s", action)
	}
	if action.Targeted() {
		target := g.getPlayer(targetID)
		if target == nil || !target.Alive || target.ID == p.ID {
			return reject(ErrInvalidTarget)
		}
	}
	if claimed != "" && !claimed.Valid() {
		return rejectf(ErrInvalidCard, "unknown card: %s", claimed)
	}
	return nil
}

// declare records the pending action and opens the contest window. Lock held, input validated.
func (e *Engine) declare(g *Game, p *Player, action Action, targetID uuid.UUID, claimed Card) {
	now := time.Now()
	pa := &PendingAction{
		ActorID:     p.ID,
		Action:      action,
		TargetID:    targetID,
		ClaimedCard: claimed,
		DeclaredAt:  now,
	}
	g.Pending = pa

	contested := pa.Challengeable() || action.Blockable()
	if contested {
		pa.WaitingFor = g.livingExcept(p.ID)
		pa.Passed = []uuid.UUID{}
	}

	e.record(g, ActionLogEntry{
		Type:      "declare",
		PlayerID:  p.ID,
		Action:    action,
		TargetID:  targetID,
		Card:      claimed,
		Timestamp: now,
	}, nil)

	ev := ActionDeclared{
		Player:       p.Name,
		PlayerID:     p.ID,
		Action:       action,
		ClaimedCard:  claimed,
		CanChallenge: pa.Challengeable(),
		CanBlock:     action.Blockable(),
		WaitingFor:   append([]uuid.UUID{}, pa.WaitingFor...),
	}
	if targetID != uuid.Nil {
		t := targetID
		ev.Target = &t
	}
	e.broadcast(g, ev)
	e.roomLog(g).WithFields(logrus.Fields{
		"player": p.Name,
		"action": action,
		"claim":  claimed,
	}).Debug("action declared")

	if !contested {
		e.resolveAction(g)
		return
	}
	e.passDisconnected(g)
}

// passDisconnected auto-passes every responder who has no live connection, then closes the
// window if nobody is left.
func (e *Engine) passDisconnected(g *Game) {
	pa := g.Pending
	if pa == nil {
		return
	}
	for _, id := range append([]uuid.UUID(nil), pa.WaitingFor...) {
		if p := g.getPlayer(id); p != nil && !p.Connected {
			e.markPassed(g, p, true)
		}
	}
	if len(pa.WaitingFor) == 0 {
		e.closeContest(g)
	}
}
