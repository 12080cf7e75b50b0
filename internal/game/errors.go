// internal/game/errors.go
package game

import (
	"errors"
	"fmt"
)

// Validation sentinels. A request failing one of these leaves the game untouched.
var (
	ErrNotYourTurn           = errors.New("not your turn")
	ErrMustCoup              = errors.New("must coup")
	ErrCannotAfford          = errors.New("cannot afford action")
	ErrInvalidTarget         = errors.New("invalid target")
	ErrUnknownAction         = errors.New("unknown action")
	ErrInvalidCard           = errors.New("invalid card")
	ErrActionInProgress      = errors.New("an action is already in progress")
	ErrNoPendingAction       = errors.New("no action to respond to")
	ErrNotWaitingForYou      = errors.New("not waiting for your response")
	ErrNothingToChallenge    = errors.New("nothing to challenge")
	ErrCannotBlock           = errors.New("cannot block this action")
	ErrAlreadyBlocked        = errors.New("action already blocked")
	ErrNoExchange            = errors.New("no exchange in progress")
	ErrInvalidExchange       = errors.New("invalid exchange selection")
	ErrNotYourInfluenceLoss  = errors.New("not your turn to lose a card")
	ErrCardNotHeld           = errors.New("card not in hand")
	ErrAwaitingInfluenceLoss = errors.New("waiting for a player to lose influence")
	ErrGameOver              = errors.New("game is over")
	ErrNotHost               = errors.New("only the host can start the game")
	ErrPlayerCount           = errors.New("invalid number of players")
	ErrAlreadyStarted        = errors.New("game already started")
)

// Collaborator and lookup errors.
var (
	ErrGameNotFound   = errors.New("game not found")
	ErrPlayerNotFound = errors.New("player not found in game")
	ErrRoomNotFound   = errors.New("room not found")
	ErrInternal       = errors.New("internal error")
)

// ValidationError is a rejected request. It is reported to the caller only.
type ValidationError struct {
	Kind error
	Msg  string
}

func (e *ValidationError) Error() string {
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return e.Msg
}

func (e *ValidationError) Unwrap() error { return e.Kind }

func reject(kind error) error {
	return &ValidationError{Kind: kind}
}

func rejectf(kind error, format string, args ...interface{}) error {
	return &ValidationError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a rejected request rather than a failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ErrorCode maps an error to the short code sent to clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotYourTurn):
		return "not_your_turn"
	case errors.Is(err, ErrMustCoup):
		return "must_coup"
	case errors.Is(err, ErrCannotAfford):
		return "cannot_afford"
	case errors.Is(err, ErrInvalidTarget):
		return "invalid_target"
	case errors.Is(err, ErrNotWaitingForYou):
		return "not_waiting_for_you"
	case errors.Is(err, ErrInvalidExchange):
		return "invalid_exchange"
	case errors.Is(err, ErrNotYourInfluenceLoss):
		return "not_your_influence_loss"
	case errors.Is(err, ErrGameNotFound), errors.Is(err, ErrRoomNotFound):
		return "not_found"
	case IsValidation(err):
		return "invalid_request"
	default:
		return "internal"
	}
}
