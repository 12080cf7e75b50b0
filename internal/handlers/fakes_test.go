// internal/handlers/fakes_test.go
package handlers

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/coup/internal/auth"
	"github.com/jason-s-yu/coup/internal/database"
	"github.com/jason-s-yu/coup/internal/game"
	"github.com/jason-s-yu/coup/internal/models"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// memRooms is an in-memory RoomRepository.
type memRooms struct {
	mu      sync.Mutex
	rooms   map[uuid.UUID]*models.Room
	players map[uuid.UUID]*models.PlayerRecord
}

func newMemRooms() *memRooms {
	return &memRooms{
		rooms:   make(map[uuid.UUID]*models.Room),
		players: make(map[uuid.UUID]*models.PlayerRecord),
	}
}

func (m *memRooms) CreateRoom(ctx context.Context, room *models.Room, host *models.PlayerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rooms {
		if r.Code == room.Code {
			return database.ErrCodeTaken
		}
	}
	rc := *room
	hc := *host
	m.rooms[room.ID] = &rc
	m.players[host.ID] = &hc
	return nil
}

func (m *memRooms) AddPlayer(ctx context.Context, p *models.PlayerRecord, maxPlayers int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[p.RoomID]
	if !ok {
		return game.ErrRoomNotFound
	}
	if room.Status != models.RoomStatusWaiting {
		return game.ErrAlreadyStarted
	}
	count := 0
	for _, other := range m.players {
		if other.RoomID != p.RoomID {
			continue
		}
		if other.Name == p.Name {
			return database.ErrNameTaken
		}
		count++
	}
	if count >= maxPlayers {
		return game.ErrPlayerCount
	}
	pc := *p
	m.players[p.ID] = &pc
	return nil
}

func (m *memRooms) FindPlayer(ctx context.Context, playerID uuid.UUID) (*models.PlayerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[playerID]
	if !ok {
		return nil, game.ErrPlayerNotFound
	}
	pc := *p
	return &pc, nil
}

func (m *memRooms) SaveConnID(ctx context.Context, playerID uuid.UUID, connID string) error {
	return m.update(playerID, func(p *models.PlayerRecord) { p.ConnID = connID })
}

func (m *memRooms) LoadRoom(ctx context.Context, code string) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rooms {
		if r.Code == code {
			rc := *r
			return &rc, nil
		}
	}
	return nil, game.ErrRoomNotFound
}

func (m *memRooms) LoadRoomByID(ctx context.Context, roomID uuid.UUID) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, game.ErrRoomNotFound
	}
	rc := *r
	return &rc, nil
}

func (m *memRooms) LoadPlayers(ctx context.Context, roomID uuid.UUID) ([]models.PlayerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PlayerRecord
	for _, p := range m.players {
		if p.RoomID == roomID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (m *memRooms) update(playerID uuid.UUID, fn func(p *models.PlayerRecord)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[playerID]
	if !ok {
		return game.ErrPlayerNotFound
	}
	fn(p)
	return nil
}

func (m *memRooms) SavePlayerCoins(ctx context.Context, playerID uuid.UUID, coins int) error {
	return m.update(playerID, func(p *models.PlayerRecord) { p.Coins = coins })
}

func (m *memRooms) SavePlayerCards(ctx context.Context, playerID uuid.UUID, cards []string) error {
	return m.update(playerID, func(p *models.PlayerRecord) { p.Cards = cards })
}

func (m *memRooms) SavePlayerAlive(ctx context.Context, playerID uuid.UUID, alive bool) error {
	return m.update(playerID, func(p *models.PlayerRecord) { p.IsAlive = alive })
}

func (m *memRooms) SavePlayerRevealed(ctx context.Context, playerID uuid.UUID, revealed []string) error {
	return m.update(playerID, func(p *models.PlayerRecord) { p.RevealedCards = revealed })
}

func (m *memRooms) SetRoomStatus(ctx context.Context, roomID uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return game.ErrRoomNotFound
	}
	r.Status = status
	return nil
}

func (m *memRooms) SaveCurrentTurn(ctx context.Context, roomID, playerID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[roomID]; ok {
		r.CurrentTurn = playerID
	}
	return nil
}

func (m *memRooms) roomStatus(roomID uuid.UUID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rooms[roomID].Status
}

// newTestServer wires a GameServer on in-memory collaborators.
func newTestServer(t *testing.T) (*GameServer, *memRooms) {
	t.Helper()
	require.NoError(t, auth.Init(0))
	logger, _ := test.NewNullLogger()
	rooms := newMemRooms()
	hub := NewHub(logger)
	engine := game.NewEngine(game.NewGameStore(), rooms, hub, nil, logger)
	t.Cleanup(engine.Close)
	return NewGameServer(engine, rooms, hub, logger), rooms
}
