// internal/handlers/game_server.go
package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/jason-s-yu/coup/internal/game"
	"github.com/jason-s-yu/coup/internal/models"
	"github.com/sirupsen/logrus"
)

// RoomRepository is the durable store the HTTP and websocket handlers need on top of the engine's.
type RoomRepository interface {
	game.Repository
	CreateRoom(ctx context.Context, room *models.Room, host *models.PlayerRecord) error
	AddPlayer(ctx context.Context, p *models.PlayerRecord, maxPlayers int) error
	FindPlayer(ctx context.Context, playerID uuid.UUID) (*models.PlayerRecord, error)
	SaveConnID(ctx context.Context, playerID uuid.UUID, connID string) error
}

// GameServer holds everything the handlers share: the engine, its store, the socket hub and the repository.
type GameServer struct {
	Engine *game.Engine
	Rooms  RoomRepository
	Hub    *Hub
	Logger *logrus.Logger
}

func NewGameServer(engine *game.Engine, rooms RoomRepository, hub *Hub, logger *logrus.Logger) *GameServer {
	return &GameServer{
		Engine: engine,
		Rooms:  rooms,
		Hub:    hub,
		Logger: logger,
	}
}

// Routes mounts every endpoint on a new mux.
func (gs *GameServer) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /room/create", CreateRoomHandler(gs))
	mux.HandleFunc("POST /room/join", JoinRoomHandler(gs))
	mux.HandleFunc("POST /room/start", StartGameHandler(gs))
	mux.HandleFunc("GET /room/{code}", GetRoomHandler(gs))
	mux.HandleFunc("GET /game/ws/{code}", GameWSHandler(gs))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "games": gs.Engine.Store.Len()})
	})
	return mux
}

// lobbyPlayer is the public view of a seated player before and during play.
type lobbyPlayer struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Coins       int       `json:"coins"`
	IsAlive     bool      `json:"isAlive"`
	IsHost      bool      `json:"isHost"`
	IsConnected bool      `json:"isConnected"`
}

// roomPlayers lists a room's players; connection state comes from the hub.
func (gs *GameServer) roomPlayers(ctx context.Context, room *models.Room) ([]lobbyPlayer, error) {
	records, err := gs.Rooms.LoadPlayers(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	conns := gs.Hub.ConnsForRoom(room.Code)
	out := make([]lobbyPlayer, 0, len(records))
	for _, rec := range records {
		_, online := conns[rec.ID]
		out = append(out, lobbyPlayer{
			ID:          rec.ID,
			Name:        rec.Name,
			Coins:       rec.Coins,
			IsAlive:     rec.IsAlive,
			IsHost:      rec.IsHost,
			IsConnected: online,
		})
	}
	return out, nil
}

// PlayerJoined is broadcast to a waiting room when a new player takes a seat.
type PlayerJoined struct {
	PlayerID uuid.UUID     `json:"playerId"`
	Name     string        `json:"name"`
	Players  []lobbyPlayer `json:"players"`
}

const EventPlayerJoined game.EventType = "player_joined"

func (PlayerJoined) EventType() game.EventType { return EventPlayerJoined }
