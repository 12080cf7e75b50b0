// internal/game/game_store.go
package game

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// RestoreFunc rebuilds a room's game from durable records. It returns (nil, nil) when the room is not in play.
type RestoreFunc func(ctx context.Context, roomID uuid.UUID) (*Game, error)

// GameStore holds every live game in memory, keyed by room ID. Rooms whose game ended in this
// process are remembered so they are never rebuilt from records that still read "playing".
type GameStore struct {
	mu       sync.Mutex
	games    map[uuid.UUID]*Game
	finished map[uuid.UUID]struct{}

	restoring singleflight.Group
}

func NewGameStore() *GameStore {
	return &GameStore{
		games:    make(map[uuid.UUID]*Game),
		finished: make(map[uuid.UUID]struct{}),
	}
}

func (s *GameStore) AddGame(game *Game) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[game.RoomID] = game
}

func (s *GameStore) GetGame(roomID uuid.UUID) (*Game, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, exists := s.games[roomID]
	return g, exists
}

// FinishGame evicts the room's game and refuses any later restore of it.
func (s *GameStore) FinishGame(roomID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.games, roomID)
	s.finished[roomID] = struct{}{}
}

// IsFinished reports whether the room's game ended in this process.
func (s *GameStore) IsFinished(roomID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, done := s.finished[roomID]
	return done
}

// Len is the number of live games.
func (s *GameStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.games)
}

// LoadOrRestore returns the live game for roomID, rebuilding it with restore when it is missing.
// Concurrent callers for the same room share one restore.
func (s *GameStore) LoadOrRestore(ctx context.Context, roomID uuid.UUID, restore RestoreFunc) (*Game, error) {
	if g, ok := s.GetGame(roomID); ok {
		return g, nil
	}
	v, err, _ := s.restoring.Do(roomID.String(), func() (interface{}, error) {
		if g, ok := s.GetGame(roomID); ok {
			return g, nil
		}
		if s.IsFinished(roomID) {
			return nil, reject(ErrGameOver)
		}
		g, err := restore(ctx, roomID)
		if err != nil {
			return nil, err
		}
		if g == nil {
			return nil, ErrGameNotFound
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, done := s.finished[roomID]; done {
			return nil, reject(ErrGameOver)
		}
		s.games[roomID] = g
		return g, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Game), nil
}
