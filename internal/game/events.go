// internal/game/events.go
package game

import (
	"encoding/json"

	"github.com/google/uuid"
)

// EventType names an outbound notification.
type EventType string

const (
	EventActionDeclared          EventType = "action_declared"
	EventActionResolved          EventType = "action_resolved"
	EventPlayerPassed            EventType = "player_passed"
	EventActionBlocked           EventType = "action_blocked"
	EventActionBlockedSuccess    EventType = "action_blocked_success"
	EventChallengeResult         EventType = "challenge_result"
	EventChallengeBlockResult    EventType = "challenge_block_result"
	EventWaitingForInfluenceLoss EventType = "waiting_for_influence_loss"
	EventChooseCardToLose        EventType = "choose_card_to_lose" // private
	EventCardLost                EventType = "card_lost"
	EventExchangeCards           EventType = "exchange_cards" // private
	EventCardsUpdated            EventType = "cards_updated"  // private
	EventNextTurn                EventType = "next_turn"
	EventGameOver                EventType = "game_over"
	EventGameStarted             EventType = "game_started" // private
	EventGameState               EventType = "game_state"   // private, on reconnect
	EventPlayerDisconnected      EventType = "player_disconnected"
	EventPlayerReconnected       EventType = "player_reconnected"
	EventError                   EventType = "error" // private
)

// Payload is implemented by every outbound payload; each payload type maps to exactly one EventType.
type Payload interface {
	EventType() EventType
}

// Event is the envelope written to the transport.
type Event struct {
	Type    EventType `json:"type"`
	Payload Payload   `json:"payload,omitempty"`
}

// NewEvent wraps a payload in its envelope.
func NewEvent(p Payload) Event {
	return Event{Type: p.EventType(), Payload: p}
}

// Bytes marshals the event, falling back to an empty object so a bad payload never crashes a writer.
func (ev Event) Bytes() []byte {
	data, err := json.Marshal(ev)
	if err != nil {
		return []byte("{}")
	}
	return data
}

// PlayerInfo is the public view of a seat.
type PlayerInfo struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Coins       int       `json:"coins"`
	CardCount   int       `json:"cardCount"`
	IsAlive     bool      `json:"isAlive"`
	IsConnected bool      `json:"isConnected"`
}

type ActionDeclared struct {
	Player       string      `json:"player"`
	PlayerID     uuid.UUID   `json:"playerId"`
	Action       Action      `json:"action"`
	Target       *uuid.UUID  `json:"target,omitempty"`
	ClaimedCard  Card        `json:"claimedCard,omitempty"`
	CanChallenge bool        `json:"canChallenge"`
	CanBlock     bool        `json:"canBlock"`
	WaitingFor   []uuid.UUID `json:"waitingFor"`
}

type ActionResolved struct {
	Action  Action    `json:"action"`
	Actor   string    `json:"actor"`
	ActorID uuid.UUID `json:"actorId"`
}

type PlayerPassed struct {
	Player          string      `json:"player"`
	PlayerID        uuid.UUID   `json:"playerId"`
	WaitingFor      []uuid.UUID `json:"waitingFor"`
	WasDisconnected bool        `json:"wasDisconnected,omitempty"`
}

type ActionBlocked struct {
	Blocker           string      `json:"blocker"`
	BlockerID         uuid.UUID   `json:"blockerId"`
	BlockCard         Card        `json:"blockCard"`
	CanChallengeBlock bool        `json:"canChallengeBlock"`
	WaitingFor        []uuid.UUID `json:"waitingFor"`
}

type ActionBlockedSuccess struct {
	Blocker   string    `json:"blocker"`
	BlockerID uuid.UUID `json:"blockerId"`
}

type ChallengeResult struct {
	Success      bool   `json:"success"`
	Challenger   string `json:"challenger"`
	Actor        string `json:"actor"`
	RevealedCard Card   `json:"revealedCard,omitempty"`
}

type ChallengeBlockResult struct {
	Success      bool   `json:"success"`
	Challenger   string `json:"challenger"`
	Blocker      string `json:"blocker"`
	RevealedCard Card   `json:"revealedCard,omitempty"`
}

type WaitingForInfluenceLoss struct {
	Player   string     `json:"player"`
	PlayerID uuid.UUID  `json:"playerId"`
	Reason   LossReason `json:"reason"`
}

type ChooseCardToLose struct {
	Cards  []Card     `json:"cards"`
	Reason LossReason `json:"reason"`
}

type CardLost struct {
	Player          string    `json:"player"`
	PlayerID        uuid.UUID `json:"playerId"`
	Card            Card      `json:"card"`
	CardsRemaining  int       `json:"cardsRemaining"`
	IsAlive         bool      `json:"isAlive"`
	WasDisconnected bool      `json:"wasDisconnected,omitempty"`
}

type ExchangeCards struct {
	CurrentCards []Card `json:"currentCards"`
	DrawnCards   []Card `json:"drawnCards"`
}

type CardsUpdated struct {
	Cards []Card `json:"cards"`
}

type NextTurn struct {
	CurrentPlayer uuid.UUID    `json:"currentPlayer"`
	Players       []PlayerInfo `json:"players"`
}

type GameOver struct {
	Winner   string    `json:"winner"`
	WinnerID uuid.UUID `json:"winnerId"`
}

type GameStarted struct {
	YourID      uuid.UUID    `json:"yourId"`
	YourCards   []Card       `json:"yourCards"`
	YourCoins   int          `json:"yourCoins"`
	Players     []PlayerInfo `json:"players"`
	CurrentTurn uuid.UUID    `json:"currentTurn"`
}

// PendingSummary is the public part of a pending action, used for state sync.
type PendingSummary struct {
	PlayerID    uuid.UUID   `json:"playerId"`
	Action      Action      `json:"action"`
	Target      *uuid.UUID  `json:"target,omitempty"`
	ClaimedCard Card        `json:"claimedCard,omitempty"`
	Blocked     bool        `json:"blocked"`
	BlockerID   *uuid.UUID  `json:"blockerId,omitempty"`
	BlockCard   Card        `json:"blockCard,omitempty"`
	WaitingFor  []uuid.UUID `json:"waitingFor"`
}

type GameState struct {
	YourID          uuid.UUID            `json:"yourId"`
	YourCards       []Card               `json:"yourCards"`
	YourCoins       int                  `json:"yourCoins"`
	Players         []PlayerInfo         `json:"players"`
	CurrentTurn     uuid.UUID            `json:"currentTurn"`
	Phase           string               `json:"phase"`
	RevealedCards   map[uuid.UUID][]Card `json:"revealedCards"`
	Pending         *PendingSummary      `json:"pending,omitempty"`
	WaitingOnPlayer *uuid.UUID           `json:"waitingOnPlayer,omitempty"`
	DrawnCards      []Card               `json:"drawnCards,omitempty"` // only to the exchanging actor
}

type PlayerConnection struct {
	PlayerID   uuid.UUID `json:"playerId"`
	PlayerName string    `json:"playerName"`
	connected  bool
}

type ErrorMessage struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (ActionDeclared) EventType() EventType          { return EventActionDeclared }
func (ActionResolved) EventType() EventType          { return EventActionResolved }
func (PlayerPassed) EventType() EventType            { return EventPlayerPassed }
func (ActionBlocked) EventType() EventType           { return EventActionBlocked }
func (ActionBlockedSuccess) EventType() EventType    { return EventActionBlockedSuccess }
func (ChallengeResult) EventType() EventType         { return EventChallengeResult }
func (ChallengeBlockResult) EventType() EventType    { return EventChallengeBlockResult }
func (WaitingForInfluenceLoss) EventType() EventType { return EventWaitingForInfluenceLoss }
func (ChooseCardToLose) EventType() EventType        { return EventChooseCardToLose }
func (CardLost) EventType() EventType                { return EventCardLost }
func (ExchangeCards) EventType() EventType           { return EventExchangeCards }
func (CardsUpdated) EventType() EventType            { return EventCardsUpdated }
func (NextTurn) EventType() EventType                { return EventNextTurn }
func (GameOver) EventType() EventType                { return EventGameOver }
func (GameStarted) EventType() EventType             { return EventGameStarted }
func (GameState) EventType() EventType               { return EventGameState }
func (ErrorMessage) EventType() EventType            { return EventError }

func (p PlayerConnection) EventType() EventType {
	if p.connected {
		return EventPlayerReconnected
	}
	return EventPlayerDisconnected
}

// pendingSummary builds the public view of pa.
func pendingSummary(pa *PendingAction) *PendingSummary {
	if pa == nil {
		return nil
	}
	s := &PendingSummary{
		PlayerID:    pa.ActorID,
		Action:      pa.Action,
		ClaimedCard: pa.ClaimedCard,
		WaitingFor:  append([]uuid.UUID(nil), pa.WaitingFor...),
	}
	if pa.TargetID != uuid.Nil {
		t := pa.TargetID
		s.Target = &t
	}
	if pa.Block != nil {
		b := pa.Block.BlockerID
		s.Blocked = true
		s.BlockerID = &b
		s.BlockCard = pa.Block.Card
	}
	return s
}
