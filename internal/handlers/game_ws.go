// internal/handlers/game_ws.go
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/coup/internal/auth"
	"github.com/jason-s-yu/coup/internal/game"
	"github.com/sirupsen/logrus"
)

// GameWSHandler upgrades to a websocket for one room, identified by its code in the path.
// The caller is authenticated by token, registered with the hub, given a private state sync
// when a game is live, and then every inbound message is decoded and handed to the engine.
func GameWSHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := strings.ToUpper(r.PathValue("code"))
		if code == "" {
			http.Error(w, "Missing room code in path (/game/ws/{code})", http.StatusBadRequest)
			return
		}
		playerID, roomID, err := auth.AuthenticateJWT(requestToken(r))
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		room, err := gs.Rooms.LoadRoom(r.Context(), code)
		if err != nil {
			http.Error(w, "Room not found", statusFor(err))
			return
		}
		if room.ID != roomID {
			http.Error(w, "token is not valid for this room", http.StatusForbidden)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"game"},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			gs.Logger.Warnf("WebSocket accept error for room %s: %v", code, err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "Internal server error during handler exit.")

		if c.Subprotocol() != "game" {
			c.Close(BadSubprotocolError, "Client must use the 'game' subprotocol.")
			return
		}

		log := gs.Logger.WithFields(logrus.Fields{"room": code, "player": playerID})
		connID := gs.Hub.Register(code, playerID, c)
		log = log.WithField("conn", connID)
		log.Info("websocket connected")

		ctx := r.Context()
		if err := gs.Rooms.SaveConnID(ctx, playerID, connID); err != nil {
			log.WithError(err).Warn("failed to record connection")
		}
		if err := gs.Engine.HandleReconnect(ctx, roomID, playerID, connID); err != nil && !noLiveGame(err) {
			log.WithError(err).Warn("reconnect failed")
			gs.Hub.Unregister(connID)
			c.Close(InvalidPlayerError, "You are not a player in this game.")
			return
		}

		readGameMessages(ctx, c, gs, roomID, playerID, connID, log)

		// Cleanup runs even when the request context is already gone.
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		gs.Hub.Unregister(connID)
		if err := gs.Engine.HandleDisconnect(cleanupCtx, roomID, playerID, connID); err != nil && !noLiveGame(err) {
			log.WithError(err).Warn("disconnect handling failed")
		}
		log.Info("websocket disconnected")
	}
}

// noLiveGame reports errors meaning the room is still waiting or already finished.
func noLiveGame(err error) bool {
	return errors.Is(err, game.ErrGameNotFound) || errors.Is(err, game.ErrGameOver)
}

const eventPong game.EventType = "pong"

// readGameMessages reads until the socket closes. Rejections go back to this socket only.
func readGameMessages(ctx context.Context, c *websocket.Conn, gs *GameServer, roomID, playerID uuid.UUID, connID string, log *logrus.Entry) {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				log.Debug("websocket closed normally")
			} else if !errors.Is(err, context.Canceled) {
				log.Warnf("error reading from websocket: %v (status %d)", err, status)
			}
			return
		}
		if msgType != websocket.MessageText {
			log.Warnf("ignoring non-text message type %d", msgType)
			continue
		}

		cmd, err := game.DecodeCommand(data)
		if err != nil {
			sendError(gs.Hub, connID, err)
			continue
		}
		if _, ok := cmd.(game.PingCommand); ok {
			gs.Hub.SendTo(connID, game.Event{Type: eventPong})
			continue
		}

		if err := gs.Engine.Handle(ctx, roomID, playerID, cmd); err != nil {
			if !game.IsValidation(err) {
				log.WithError(err).WithField("command", commandName(cmd)).Error("command failed")
			} else {
				log.WithError(err).WithField("command", commandName(cmd)).Debug("command rejected")
			}
			sendError(gs.Hub, connID, err)
		}
	}
}

// sendError queues the error on the hub so it stays ordered behind events already sent.
func sendError(hub *Hub, connID string, err error) {
	msg := err.Error()
	if !game.IsValidation(err) && game.ErrorCode(err) == "internal" {
		msg = "internal server error"
	}
	hub.SendTo(connID, game.NewEvent(game.ErrorMessage{Code: game.ErrorCode(err), Message: msg}))
}

func commandName(cmd game.Command) string {
	return strings.TrimSuffix(strings.TrimPrefix(fmt.Sprintf("%T", cmd), "game."), "Command")
}
