// internal/handlers/room.go
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/coup/internal/auth"
	"github.com/jason-s-yu/coup/internal/database"
	"github.com/jason-s-yu/coup/internal/game"
	"github.com/jason-s-yu/coup/internal/models"
	"github.com/sirupsen/logrus"
)

const maxNameLen = 24

type createRoomRequest struct {
	Name     string `json:"name"`
	Passcode string `json:"passcode,omitempty"`
}

type joinRoomRequest struct {
	RoomCode string `json:"roomCode"`
	Name     string `json:"name"`
	Passcode string `json:"passcode,omitempty"`
}

// roomResponse is returned by create and join. Token authenticates the websocket and /room/start.
type roomResponse struct {
	RoomID   uuid.UUID     `json:"roomId"`
	RoomCode string        `json:"roomCode"`
	Status   string        `json:"status"`
	Private  bool          `json:"private"`
	PlayerID uuid.UUID     `json:"playerId"`
	IsHost   bool          `json:"isHost"`
	Token    string        `json:"token"`
	Players  []lobbyPlayer `json:"players"`
}

func decodeBody(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func cleanName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	return name, name != "" && len(name) <= maxNameLen
}

// CreateRoomHandler opens a waiting room with the caller seated as host.
func CreateRoomHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRoomRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "bad room request payload")
			return
		}
		name, ok := cleanName(req.Name)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_request", "name must be 1 to 24 characters")
			return
		}

		var hash string
		if req.Passcode != "" {
			var err error
			if hash, err = auth.HashPasscode(req.Passcode, auth.Params); err != nil {
				gs.Logger.WithError(err).Error("failed to hash passcode")
				writeError(w, http.StatusInternalServerError, "internal", "could not create room")
				return
			}
		}

		now := time.Now().UTC()
		room := &models.Room{
			ID:           uuid.New(),
			HostName:     name,
			Status:       models.RoomStatusWaiting,
			CreatedAt:    now,
			PasscodeHash: hash,
		}
		host := &models.PlayerRecord{
			ID:       uuid.New(),
			RoomID:   room.ID,
			Name:     name,
			Coins:    game.StartingCoins,
			IsAlive:  true,
			IsHost:   true,
			JoinedAt: now,
		}

		var err error
		for attempt := 0; attempt < 5; attempt++ {
			room.Code = newRoomCode()
			if err = gs.Rooms.CreateRoom(r.Context(), room, host); !errors.Is(err, database.ErrCodeTaken) {
				break
			}
		}
		if err != nil {
			gs.Logger.WithError(err).Error("failed to create room")
			writeError(w, statusFor(err), "internal", "could not create room")
			return
		}

		token, err := auth.CreateJWT(host.ID, room.ID)
		if err != nil {
			gs.Logger.WithError(err).Error("failed to issue token")
			writeError(w, http.StatusInternalServerError, "internal", "could not issue token")
			return
		}
		setAuthCookie(w, token)

		gs.Logger.WithFields(logrus.Fields{"room": room.Code, "host": name}).Info("room created")
		writeJSON(w, http.StatusCreated, roomResponse{
			RoomID:   room.ID,
			RoomCode: room.Code,
			Status:   room.Status,
			Private:  hash != "",
			PlayerID: host.ID,
			IsHost:   true,
			Token:    token,
			Players:  []lobbyPlayer{{ID: host.ID, Name: name, Coins: host.Coins, IsAlive: true, IsHost: true}},
		})
	}
}

// JoinRoomHandler seats a new player, or hands an existing player back their seat when
// the request carries a valid token for this room.
func JoinRoomHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req joinRoomRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "bad join request payload")
			return
		}
		ctx := r.Context()
		room, err := gs.Rooms.LoadRoom(ctx, strings.ToUpper(strings.TrimSpace(req.RoomCode)))
		if err != nil {
			writeError(w, statusFor(err), errorCode(err), "room not found")
			return
		}
		log := gs.Logger.WithField("room", room.Code)

		var player *models.PlayerRecord
		if token := requestToken(r); token != "" {
			playerID, roomID, err := auth.AuthenticateJWT(token)
			if err == nil && roomID == room.ID {
				if p, err := gs.Rooms.FindPlayer(ctx, playerID); err == nil && p.RoomID == room.ID {
					player = p
				}
			}
		}

		rejoined := player != nil
		if !rejoined {
			name, ok := cleanName(req.Name)
			if !ok {
				writeError(w, http.StatusBadRequest, "invalid_request", "name must be 1 to 24 characters")
				return
			}
			ok, err = auth.VerifyPasscode(req.Passcode, room.PasscodeHash)
			if err != nil {
				log.WithError(err).Error("stored passcode hash is unreadable")
				writeError(w, http.StatusInternalServerError, "internal", "could not join room")
				return
			}
			if !ok {
				writeError(w, http.StatusForbidden, "wrong_passcode", "wrong passcode")
				return
			}
			player = &models.PlayerRecord{
				ID:       uuid.New(),
				RoomID:   room.ID,
				Name:     name,
				Coins:    game.StartingCoins,
				IsAlive:  true,
				JoinedAt: time.Now().UTC(),
			}
			if err := gs.Rooms.AddPlayer(ctx, player, game.MaxPlayers); err != nil {
				status := statusFor(err)
				if status == http.StatusInternalServerError {
					log.WithError(err).Error("failed to add player")
				}
				writeError(w, status, errorCode(err), joinErrorMessage(err))
				return
			}
		}

		token, err := auth.CreateJWT(player.ID, room.ID)
		if err != nil {
			log.WithError(err).Error("failed to issue token")
			writeError(w, http.StatusInternalServerError, "internal", "could not issue token")
			return
		}
		setAuthCookie(w, token)

		players, err := gs.roomPlayers(ctx, room)
		if err != nil {
			log.WithError(err).Error("failed to list players")
			writeError(w, http.StatusInternalServerError, "internal", "could not list players")
			return
		}
		if rejoined {
			log.WithField("player", player.Name).Info("player rejoined room")
		} else {
			gs.Hub.BroadcastToRoom(room.Code, game.NewEvent(PlayerJoined{PlayerID: player.ID, Name: player.Name, Players: players}))
			log.WithFields(logrus.Fields{"player": player.Name, "seated": len(players)}).Info("player joined room")
		}

		writeJSON(w, http.StatusOK, roomResponse{
			RoomID:   room.ID,
			RoomCode: room.Code,
			Status:   room.Status,
			Private:  room.PasscodeHash != "",
			PlayerID: player.ID,
			IsHost:   player.IsHost,
			Token:    token,
			Players:  players,
		})
	}
}

func joinErrorMessage(err error) string {
	switch {
	case errors.Is(err, database.ErrNameTaken):
		return "name already taken; reconnect with your token to reclaim the seat"
	case errors.Is(err, game.ErrAlreadyStarted):
		return "game already started"
	case errors.Is(err, game.ErrPlayerCount):
		return "room is full"
	default:
		return "could not join room"
	}
}

// StartGameHandler deals the game for the caller's room. Only the host may start it.
func StartGameHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID, roomID, err := auth.AuthenticateJWT(requestToken(r))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		ctx := r.Context()
		room, err := gs.Rooms.LoadRoomByID(ctx, roomID)
		if err != nil {
			writeError(w, statusFor(err), errorCode(err), "room not found")
			return
		}

		g, err := gs.Engine.StartGame(ctx, roomID, playerID, gs.Hub.ConnsForRoom(room.Code))
		if err != nil {
			status := statusFor(err)
			if status == http.StatusInternalServerError {
				gs.Logger.WithError(err).WithField("room", room.Code).Error("failed to start game")
			}
			writeError(w, status, errorCode(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"roomCode": room.Code,
			"status":   models.RoomStatusPlaying,
			"players":  len(g.Seats),
		})
	}
}

// GetRoomHandler reports a room's status and seated players.
func GetRoomHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		room, err := gs.Rooms.LoadRoom(ctx, strings.ToUpper(r.PathValue("code")))
		if err != nil {
			writeError(w, statusFor(err), errorCode(err), "room not found")
			return
		}
		players, err := gs.roomPlayers(ctx, room)
		if err != nil {
			gs.Logger.WithError(err).WithField("room", room.Code).Error("failed to list players")
			writeError(w, http.StatusInternalServerError, "internal", "could not list players")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"roomId":   room.ID,
			"roomCode": room.Code,
			"status":   room.Status,
			"hostName": room.HostName,
			"private":  room.PasscodeHash != "",
			"players":  players,
		})
	}
}
