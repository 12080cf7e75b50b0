// internal/handlers/ws_codes.go
package handlers

import "github.com/coder/websocket"

// Custom WebSocket close codes used by the game handler.
// These provide more specific reasons for closure than standard codes.
const (
	BadSubprotocolError websocket.StatusCode = 3000 // Client connected with an unsupported subprotocol.
	InvalidPlayerError  websocket.StatusCode = 3001 // Token holder is not seated in the live game.
	SlowConsumerError   websocket.StatusCode = 3002 // Client fell too far behind on outbound messages.
)
