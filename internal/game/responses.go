// internal/game/responses.go
package game

import (
	"context"

	"github.com/google/uuid"
)

// Pass records that the player lets the pending action (or block) stand.
// Passing twice is a no-op.
func (e *Engine) Pass(ctx context.Context, roomID, playerID uuid.UUID) error {
	return e.withGame(ctx, roomID, "pass", true, func(g *Game) error {
		p, err := playerIn(g, playerID)
		if err != nil {
			return err
		}
		if err := respondable(g); err != nil {
			return err
		}
		pa := g.Pending
		if pa.hasPassed(p.ID) {
			return nil
		}
		if !pa.isWaitingFor(p.ID) {
			return reject(ErrNotWaitingForYou)
		}
		e.markPassed(g, p, false)
		if len(pa.WaitingFor) == 0 {
			e.closeContest(g)
		}
		return nil
	})
}

// Challenge disputes the actor's claimed card.
func (e *Engine) Challenge(ctx context.Context, roomID, playerID uuid.UUID) error {
	return e.withGame(ctx, roomID, "challenge", true, func(g *Game) error {
		challenger, err := playerIn(g, playerID)
		if err != nil {
			return err
		}
		if err := respondable(g); err != nil {
			return err
		}
		pa := g.Pending
		if pa.Block != nil {
			return rejectf(ErrNothingToChallenge, "action is blocked; challenge the block instead")
		}
		if !pa.Challengeable() {
			return rejectf(ErrNothingToChallenge, "%s cannot be challenged", pa.Action)
		}
		if !pa.isWaitingFor(challenger.ID) {
			return reject(ErrNotWaitingForYou)
		}
		e.challengeAction(g, challenger)
		return nil
	})
}

// Block counters the pending action with a claimed card.
func (e *Engine) Block(ctx context.Context, roomID, playerID uuid.UUID, card Card) error {
	return e.withGame(ctx, roomID, "block", true, func(g *Game) error {
		blocker, err := playerIn(g, playerID)
		if err != nil {
			return err
		}
		if err := respondable(g); err != nil {
			return err
		}
		pa := g.Pending
		if pa.Block != nil {
			return reject(ErrAlreadyBlocked)
		}
		if !pa.Action.Blockable() {
			return rejectf(ErrCannotBlock, "%s cannot be blocked", pa.Action)
		}
		if !pa.isWaitingFor(blocker.ID) {
			return reject(ErrNotWaitingForYou)
		}
		if pa.Action.Targeted() && blocker.ID != pa.TargetID {
			return rejectf(ErrCannotBlock, "only the target can block %s", pa.Action)
		}
		if !card.Valid() {
			return rejectf(ErrInvalidCard, "unknown card: %s", card)
		}
		if !CanBlockWith(card, pa.Action) {
			return rejectf(ErrCannotBlock, "%s does not block %s", card, pa.Action)
		}
		e.block(g, blocker, card)
		return nil
	})
}

// ChallengeBlock disputes the blocker's claimed card.
func (e *Engine) ChallengeBlock(ctx context.Context, roomID, playerID uuid.UUID) error {
	return e.withGame(ctx, roomID, "challenge_block", true, func(g *Game) error {
		challenger, err := playerIn(g, playerID)
		if err != nil {
			return err
		}
		if err := respondable(g); err != nil {
			return err
		}
		if g.Pending.Block == nil {
			return rejectf(ErrNothingToChallenge, "there is no block to challenge")
		}
		if !g.Pending.isWaitingFor(challenger.ID) {
			return reject(ErrNotWaitingForYou)
		}
		e.challengeBlock(g, challenger)
		return nil
	})
}

// respondable rejects responses outside an open contest window.
func respondable(g *Game) error {
	if g.InfluenceWait != nil {
		return reject(ErrAwaitingInfluenceLoss)
	}
	if g.Pending == nil {
		return reject(ErrNoPendingAction)
	}
	if g.Pending.DrawnCards != nil {
		return reject(ErrNotWaitingForYou)
	}
	return nil
}

// markPassed moves p out of the waiting set and tells the room.
func (e *Engine) markPassed(g *Game, p *Player, wasDisconnected bool) {
	pa := g.Pending
	pa.markPassed(p.ID)
	e.broadcast(g, PlayerPassed{
		Player:          p.Name,
		PlayerID:        p.ID,
		WaitingFor:      append([]uuid.UUID{}, pa.WaitingFor...),
		WasDisconnected: wasDisconnected,
	})
}

// closeContest runs once every responder has passed: a standing block wins, otherwise the action resolves.
func (e *Engine) closeContest(g *Game) {
	pa := g.Pending
	if pa.Block == nil {
		e.resolveAction(g)
		return
	}
	blk := pa.Block
	e.broadcast(g, ActionBlockedSuccess{
		Blocker:   g.playerName(blk.BlockerID),
		BlockerID: blk.BlockerID,
	})
	e.record(g, ActionLogEntry{
		Type:     "block_success",
		PlayerID: blk.BlockerID,
		Action:   pa.Action,
		Card:     blk.Card,
	}, nil)
	g.Pending = nil
	e.nextTurn(g)
}

func (e *Engine) block(g *Game, blocker *Player, card Card) {
	pa := g.Pending
	pa.Block = &Block{BlockerID: blocker.ID, Card: card}
	pa.WaitingFor = g.livingExcept(blocker.ID)
	pa.Passed = []uuid.UUID{}

	e.record(g, ActionLogEntry{
		Type:     "block",
		PlayerID: blocker.ID,
		Action:   pa.Action,
		Card:     card,
	}, nil)
	e.broadcast(g, ActionBlocked{
		Blocker:           blocker.Name,
		BlockerID:         blocker.ID,
		BlockCard:         card,
		CanChallengeBlock: true,
		WaitingFor:        append([]uuid.UUID{}, pa.WaitingFor...),
	})
	e.passDisconnected(g)
}

func (e *Engine) challengeAction(g *Game, challenger *Player) {
	pa := g.Pending
	actor := g.getPlayer(pa.ActorID)
	claim := pa.ClaimedCard
	truthful := actor != nil && indexOfCard(actor.Cards, claim) >= 0

	pa.WaitingFor = nil
	e.record(g, ActionLogEntry{
		Type:     "challenge",
		PlayerID: challenger.ID,
		Action:   pa.Action,
		TargetID: pa.ActorID,
		Card:     claim,
	}, map[string]interface{}{"success": !truthful})

	if truthful {
		e.broadcast(g, ChallengeResult{
			Success:      false,
			Challenger:   challenger.Name,
			Actor:        actor.Name,
			RevealedCard: claim,
		})
		e.swapRevealed(g, actor, claim, "challenge_swap")
		e.loseInfluence(g, challenger.ID, ReasonChallengeFailed, ResumeResolve)
		return
	}

	e.broadcast(g, ChallengeResult{
		Success:    true,
		Challenger: challenger.Name,
		Actor:      g.playerName(pa.ActorID),
	})
	e.loseInfluence(g, pa.ActorID, ReasonChallengeSucceeded, ResumeNextTurn)
}

func (e *Engine) challengeBlock(g *Game, challenger *Player) {
	pa := g.Pending
	blk := pa.Block
	blocker := g.getPlayer(blk.BlockerID)
	truthful := blocker != nil && indexOfCard(blocker.Cards, blk.Card) >= 0

	pa.WaitingFor = nil
	e.record(g, ActionLogEntry{
		Type:     "challenge_block",
		PlayerID: challenger.ID,
		Action:   pa.Action,
		TargetID: blk.BlockerID,
		Card:     blk.Card,
	}, map[string]interface{}{"success": !truthful})

	if truthful {
		e.broadcast(g, ChallengeBlockResult{
			Success:      false,
			Challenger:   challenger.Name,
			Blocker:      blocker.Name,
			RevealedCard: blk.Card,
		})
		e.swapRevealed(g, blocker, blk.Card, "block_challenge_swap")
		e.loseInfluence(g, challenger.ID, ReasonChallengeFailed, ResumeNextTurn)
		return
	}

	e.broadcast(g, ChallengeBlockResult{
		Success:    true,
		Challenger: challenger.Name,
		Blocker:    g.playerName(blk.BlockerID),
	})
	pa.Block = nil
	e.loseInfluence(g, blk.BlockerID, ReasonChallengeSucceeded, ResumeResolve)
}

// swapRevealed returns a proven card to the deck, reshuffles and deals the holder a replacement.
func (e *Engine) swapRevealed(g *Game, holder *Player, card Card, where string) {
	idx := indexOfCard(holder.Cards, card)
	if idx < 0 {
		return
	}
	holder.Cards = removeCardAt(holder.Cards, idx)
	g.Deck = append(g.Deck, card)
	shuffleCards(g.Deck)
	if n := len(g.Deck); n > 0 {
		holder.Cards = append(holder.Cards, g.Deck[n-1])
		g.Deck = g.Deck[:n-1]
	}
	VerifyDeckIntegrity(g, where, e.roomLog(g))

	e.sendPrivate(g, holder.ID, CardsUpdated{Cards: append([]Card{}, holder.Cards...)})
	e.persistCards(g, holder)
}
