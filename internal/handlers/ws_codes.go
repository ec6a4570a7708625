// internal/handlers/ws_codes.go
package handlers

import "github.com/coder/websocket"

// Custom WebSocket close codes. These give more specific reasons for closure than the standard codes.
const (
	BadSubprotocolError    websocket.StatusCode = 3000 // Client connected with an unsupported subprotocol.
	InvalidAuthTokenError  websocket.StatusCode = 3001 // Provided guest token was invalid or expired.
	ProtocolViolationError websocket.StatusCode = 3002 // Client sent a frame that could not be decoded.
	UnresponsiveError      websocket.StatusCode = 3003 // Client stopped accepting room broadcasts and was evicted.
)
