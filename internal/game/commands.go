// internal/game/commands.go
package game

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Command is one decoded inbound client message.
type Command interface {
	isCommand()
}

type DeclareCommand struct {
	Action      Action
	Target      uuid.UUID
	ClaimedCard Card
}

type PassCommand struct{}

type ChallengeCommand struct{}

type BlockCommand struct {
	Card Card
}

type ChallengeBlockCommand struct{}

type CompleteExchangeCommand struct {
	Kept []Card
}

type ChooseCardCommand struct {
	Card Card
}

type PingCommand struct{}

func (DeclareCommand) isCommand()          {}
func (PassCommand) isCommand()             {}
func (ChallengeCommand) isCommand()        {}
func (BlockCommand) isCommand()            {}
func (ChallengeBlockCommand) isCommand()   {}
func (CompleteExchangeCommand) isCommand() {}
func (ChooseCardCommand) isCommand()       {}
func (PingCommand) isCommand()             {}

// wireCommand is the JSON shape clients send, e.g. {"type":"declare_action","action":"steal","target":"<id>","claimedCard":"captain"}.
type wireCommand struct {
	Type        string   `json:"type"`
	Action      string   `json:"action,omitempty"`
	Target      string   `json:"target,omitempty"`
	ClaimedCard string   `json:"claimedCard,omitempty"`
	Card        string   `json:"card,omitempty"`
	KeptCards   []string `json:"keptCards,omitempty"`
}

// DecodeCommand parses a client message. Unknown types and malformed fields are validation errors.
func DecodeCommand(data []byte) (Command, error) {
	var w wireCommand
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, rejectf(ErrUnknownAction, "invalid JSON: %v", err)
	}
	switch w.Type {
	case "declare_action":
		cmd := DeclareCommand{Action: Action(w.Action), ClaimedCard: Card(w.ClaimedCard)}
		if w.Target != "" {
			id, err := uuid.Parse(w.Target)
			if err != nil {
				return nil, rejectf(ErrInvalidTarget, "invalid target id: %s", w.Target)
			}
			cmd.Target = id
		}
		return cmd, nil
	case "pass":
		return PassCommand{}, nil
	case "challenge":
		return ChallengeCommand{}, nil
	case "block":
		return BlockCommand{Card: Card(w.Card)}, nil
	case "challenge_block":
		return ChallengeBlockCommand{}, nil
	case "complete_exchange":
		kept := make([]Card, len(w.KeptCards))
		for i, c := range w.KeptCards {
			kept[i] = Card(c)
		}
		return CompleteExchangeCommand{Kept: kept}, nil
	case "choose_card_to_lose":
		return ChooseCardCommand{Card: Card(w.Card)}, nil
	case "ping":
		return PingCommand{}, nil
	default:
		return nil, rejectf(ErrUnknownAction, "unknown message type: %s", w.Type)
	}
}

// Handle routes a decoded command to its operation.
func (e *Engine) Handle(ctx context.Context, roomID, playerID uuid.UUID, cmd Command) error {
	switch c := cmd.(type) {
	case DeclareCommand:
		return e.DeclareAction(ctx, roomID, playerID, c.Action, c.Target, c.ClaimedCard)
	case PassCommand:
		return e.Pass(ctx, roomID, playerID)
	case ChallengeCommand:
		return e.Challenge(ctx, roomID, playerID)
	case BlockCommand:
		return e.Block(ctx, roomID, playerID, c.Card)
	case ChallengeBlockCommand:
		return e.ChallengeBlock(ctx, roomID, playerID)
	case CompleteExchangeCommand:
		return e.CompleteExchange(ctx, roomID, playerID, c.Kept)
	case ChooseCardCommand:
		return e.ChooseCardToLose(ctx, roomID, playerID, c.Card)
	case PingCommand:
		return nil
	default:
		return fmt.Errorf("unhandled command %T", cmd)
	}
}
