// internal/game/state.go
package game

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Player is one seat in a running game.
type Player struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	ConnID    string    `json:"-"` // empty while disconnected
	Cards     []Card    `json:"-"`
	Coins     int       `json:"coins"`
	Alive     bool      `json:"isAlive"`
	Connected bool      `json:"isConnected"`
}

// Block records a counter-claim against the pending action.
type Block struct {
	BlockerID uuid.UUID
	Card      Card
}

// PendingAction is the declared action currently open for responses.
// WaitingFor and Passed are disjoint; both keep seat order.
type PendingAction struct {
	ActorID     uuid.UUID
	Action      Action
	TargetID    uuid.UUID // uuid.Nil when untargeted
	ClaimedCard Card      // "" when nothing was claimed
	DeclaredAt  time.Time
	Block       *Block
	DrawnCards  []Card // only set mid-exchange
	WaitingFor  []uuid.UUID
	Passed      []uuid.UUID
}

// Challengeable reports whether the action carries a claim that can be disputed.
func (pa *PendingAction) Challengeable() bool {
	return pa.ClaimedCard != ""
}

func (pa *PendingAction) isWaitingFor(id uuid.UUID) bool {
	return containsID(pa.WaitingFor, id)
}

func (pa *PendingAction) hasPassed(id uuid.UUID) bool {
	return containsID(pa.Passed, id)
}

// markPassed moves id from WaitingFor to Passed.
func (pa *PendingAction) markPassed(id uuid.UUID) {
	pa.WaitingFor = removeID(pa.WaitingFor, id)
	if !pa.hasPassed(id) {
		pa.Passed = append(pa.Passed, id)
	}
}

// LossReason says why a player owes an influence.
type LossReason string

const (
	ReasonChallengeFailed    LossReason = "challenge_failed"
	ReasonChallengeSucceeded LossReason = "challenge_succeeded"
	ReasonAssassination      LossReason = "assassination"
	ReasonCoup               LossReason = "coup"
	ReasonBlockFailed        LossReason = "block_failed"
)

// Resume is what the state machine does once the owed card has been surrendered.
type Resume int

const (
	// ResumeResolve resolves the pending action.
	ResumeResolve Resume = iota
	// ResumeNextTurn drops the pending action unresolved and advances.
	ResumeNextTurn
	// ResumeAfterResolved advances after an action that already took effect (coup, assassinate).
	ResumeAfterResolved
)

func (r Resume) String() string {
	switch r {
	case ResumeResolve:
		return "resolve"
	case ResumeNextTurn:
		return "next_turn"
	case ResumeAfterResolved:
		return "resolve_then_next"
	default:
		return "unknown"
	}
}

// InfluenceLossWait names the single player the game is paused on.
type InfluenceLossWait struct {
	PlayerID uuid.UUID
	Reason   LossReason
	Resume   Resume
}

// ActionLogEntry is one line of the append-only in-memory log.
type ActionLogEntry struct {
	Type      string    `json:"type"`
	PlayerID  uuid.UUID `json:"playerId"`
	Action    Action    `json:"action,omitempty"`
	TargetID  uuid.UUID `json:"target,omitempty"`
	Card      Card      `json:"card,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Phase is the state-machine position derived from which optional parts of the game are set.
type Phase int

const (
	PhaseAwaitingDeclaration Phase = iota
	PhaseAwaitingResponses
	PhaseAwaitingBlockResponses
	PhaseAwaitingExchange
	PhaseAwaitingInfluenceChoice
	PhaseGameOver
)

func (p Phase) String() string {
	return [...]string{
		"awaiting_declaration",
		"awaiting_responses",
		"awaiting_block_responses",
		"awaiting_exchange",
		"awaiting_influence_choice",
		"game_over",
	}[p]
}

// Game is the authoritative state of one room in play.
// Mu must be held for every read or write once the game is shared through the store.
type Game struct {
	RoomID   uuid.UUID
	RoomCode string

	Players map[uuid.UUID]*Player
	// Seats is the fixed turn order. Dead players keep their seat.
	Seats []uuid.UUID
	Deck  []Card

	CurrentTurn   int
	Pending       *PendingAction
	InfluenceWait *InfluenceLossWait
	Revealed      map[uuid.UUID][]Card
	ActionLog     []ActionLogEntry

	Over   bool
	Winner uuid.UUID

	Mu sync.Mutex
}

// NewGame builds an empty game for a room. Players are added with AddPlayer in seat order.
func NewGame(roomID uuid.UUID, roomCode string) *Game {
	return &Game{
		RoomID:   roomID,
		RoomCode: roomCode,
		Players:  make(map[uuid.UUID]*Player),
		Revealed: make(map[uuid.UUID][]Card),
	}
}

// AddPlayer appends p to the seat order.
func (g *Game) AddPlayer(p *Player) {
	if _, exists := g.Players[p.ID]; exists {
		return
	}
	g.Players[p.ID] = p
	g.Seats = append(g.Seats, p.ID)
}

// Phase derives the current state-machine phase.
func (g *Game) Phase() Phase {
	switch {
	case g.Over:
		return PhaseGameOver
	case g.InfluenceWait != nil:
		return PhaseAwaitingInfluenceChoice
	case g.Pending == nil:
		return PhaseAwaitingDeclaration
	case g.Pending.DrawnCards != nil:
		return PhaseAwaitingExchange
	case g.Pending.Block != nil:
		return PhaseAwaitingBlockResponses
	default:
		return PhaseAwaitingResponses
	}
}

// CurrentPlayer returns the player whose turn it is.
func (g *Game) CurrentPlayer() *Player {
	if len(g.Seats) == 0 || g.CurrentTurn < 0 || g.CurrentTurn >= len(g.Seats) {
		return nil
	}
	return g.Players[g.Seats[g.CurrentTurn]]
}

func (g *Game) getPlayer(id uuid.UUID) *Player {
	return g.Players[id]
}

// alivePlayers returns the living players in seat order.
func (g *Game) alivePlayers() []*Player {
	var out []*Player
	for _, id := range g.Seats {
		if p := g.Players[id]; p != nil && p.Alive {
			out = append(out, p)
		}
	}
	return out
}

// livingExcept returns living player ids in seat order, skipping one id.
func (g *Game) livingExcept(skip uuid.UUID) []uuid.UUID {
	var out []uuid.UUID
	for _, p := range g.alivePlayers() {
		if p.ID != skip {
			out = append(out, p.ID)
		}
	}
	return out
}

// playerName is used in event payloads; it tolerates unknown ids.
func (g *Game) playerName(id uuid.UUID) string {
	if p := g.Players[id]; p != nil {
		return p.Name
	}
	return "Unknown"
}

// appendLog records an entry in the in-memory action log.
func (g *Game) appendLog(entry ActionLogEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	g.ActionLog = append(g.ActionLog, entry)
}

// PlayerSummaries returns the public view of every seat.
func (g *Game) PlayerSummaries() []PlayerInfo {
	out := make([]PlayerInfo, 0, len(g.Seats))
	for _, id := range g.Seats {
		p := g.Players[id]
		out = append(out, PlayerInfo{
			ID:          p.ID,
			Name:        p.Name,
			Coins:       p.Coins,
			CardCount:   len(p.Cards),
			IsAlive:     p.Alive,
			IsConnected: p.Connected,
		})
	}
	return out
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func removeID(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}
