// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/tycoon/internal/auth"
	"github.com/jason-s-yu/tycoon/internal/game"
	"github.com/jason-s-yu/tycoon/internal/lobby"
	"github.com/jason-s-yu/tycoon/internal/middleware"
	"github.com/jason-s-yu/tycoon/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var errBadFrame = errors.New("undecodable frame")

// ClientMessage is one inbound websocket frame.
type ClientMessage struct {
	Type string `json:"type"`

	// Name is the room name for create_room and the player name for join_room and join_random.
	Name     string `json:"name,omitempty"`
	Capacity int    `json:"capacity,omitempty"`
	RoomID   string `json:"room_id,omitempty"`
	Msg      string `json:"msg,omitempty"`
}

// WSHandler upgrades the connection, registers the client and runs its read loop.
// Room commands are submitted to the room and answered on the same socket; room
// broadcasts reach the client through the registry.
func (s *Server) WSHandler(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{Subprotocol},
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.WithError(err).Warn("websocket accept error")
		return
	}
	defer c.Close(websocket.StatusInternalError, "handler finished")

	if c.Subprotocol() != Subprotocol {
		c.Close(BadSubprotocolError, "client must speak the tycoon subprotocol")
		return
	}

	var guestName string
	if token := requestToken(r); token != "" {
		_, name, err := auth.ParseGuestToken(token)
		if err != nil {
			c.Close(InvalidAuthTokenError, "invalid guest token")
			return
		}
		guestName = name
	}

	id := s.reg.Register(c)
	if guestName != "" {
		s.reg.SetName(id, guestName)
	}
	middleware.LogWebSocketConnect(s.logger, r.RemoteAddr, id)
	log := s.logger.WithField("client", id)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go s.pingLoop(ctx, c, cancel, log)

	s.send(ctx, id, map[string]interface{}{"type": "connected", "client_id": id})

	err = s.readLoop(ctx, c, id, log)
	s.disconnect(id, log)
	middleware.LogWebSocketDisconnect(s.logger, r.RemoteAddr, id, err)
}

// readLoop handles frames until the connection closes. A nil return means a clean close.
func (s *Server) readLoop(ctx context.Context, c *websocket.Conn, id uuid.UUID, log *logrus.Entry) error {
	limiter := rate.NewLimiter(s.actionRate, s.actionBurst)
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.reg.Touch(id)

		if !limiter.Allow() {
			s.reject(ctx, id, "", game.ProtocolError, "rate limit exceeded")
			continue
		}

		var msg ClientMessage
		if typ == websocket.MessageText {
			err = json.Unmarshal(data, &msg)
		}
		if typ != websocket.MessageText || err != nil || msg.Type == "" {
			log.WithError(err).Warn("Undecodable message, disconnecting")
			s.send(ctx, id, map[string]interface{}{
				"type":    "error",
				"reason":  game.ProtocolError,
				"message": "messages must be JSON objects with a type",
			})
			c.Close(ProtocolViolationError, "invalid message")
			return errBadFrame
		}

		log.WithField("request", msg.Type).Debug("Received message")
		s.dispatch(ctx, id, msg)
	}
}

func (s *Server) dispatch(ctx context.Context, id uuid.UUID, msg ClientMessage) {
	switch msg.Type {
	case "ping":
		s.send(ctx, id, map[string]interface{}{"type": "pong"})

	case "create_room":
		s.enter(ctx, id, msg.Type, "", func(name string) (*game.Room, *game.GameStateView, error) {
			room, err := s.rooms.CreateRoom(msg.Name, msg.Capacity)
			if err != nil {
				return nil, nil, err
			}
			view, err := room.Join(ctx, id, name)
			return room, view, err
		})

	case "join_room":
		roomID, err := uuid.Parse(msg.RoomID)
		if err != nil {
			s.reject(ctx, id, msg.Type, game.RoomNotFound, fmt.Sprintf("invalid room id %q", msg.RoomID))
			return
		}
		s.enter(ctx, id, msg.Type, msg.Name, func(name string) (*game.Room, *game.GameStateView, error) {
			return s.rooms.JoinRoom(ctx, roomID, id, name)
		})

	case "join_random":
		s.enter(ctx, id, msg.Type, msg.Name, func(name string) (*game.Room, *game.GameStateView, error) {
			return s.rooms.JoinRandom(ctx, id, name)
		})

	case "leave_room":
		room, err := s.currentRoom(id)
		if err != nil {
			s.fail(ctx, id, msg.Type, err)
			return
		}
		_, err = room.Leave(ctx, id)
		if err != nil && game.ReasonOf(err) != game.NotInRoom {
			s.fail(ctx, id, msg.Type, err)
			return
		}
		s.reg.SetRoom(id, uuid.Nil)
		s.send(ctx, id, map[string]interface{}{"type": "accepted", "request": msg.Type, "room_id": room.ID})

	case "start_game":
		room, err := s.currentRoom(id)
		if err != nil {
			s.fail(ctx, id, msg.Type, err)
			return
		}
		view, err := room.Start(ctx, id)
		if err != nil {
			s.fail(ctx, id, msg.Type, err)
			return
		}
		s.accepted(ctx, id, msg.Type, room, view)

	case "request_state":
		room, err := s.currentRoom(id)
		if err != nil {
			s.fail(ctx, id, msg.Type, err)
			return
		}
		view, err := room.Snapshot(ctx)
		if err != nil {
			s.fail(ctx, id, msg.Type, err)
			return
		}
		s.send(ctx, id, map[string]interface{}{"type": "state", "snapshot": view})

	case string(models.ActionRoll), string(models.ActionBuy), string(models.ActionEndTurn), string(models.ActionChat):
		room, err := s.currentRoom(id)
		if err != nil {
			s.fail(ctx, id, msg.Type, err)
			return
		}
		action := models.GameAction{ActionType: models.ActionType(msg.Type)}
		if action.ActionType == models.ActionChat {
			action.Payload = map[string]interface{}{"msg": msg.Msg}
		}
		outcome, err := room.Apply(ctx, id, action)
		if err != nil {
			s.fail(ctx, id, msg.Type, err)
			return
		}
		s.send(ctx, id, map[string]interface{}{"type": "action_result", "request": msg.Type, "outcome": outcome})

	default:
		s.reject(ctx, id, msg.Type, game.ProtocolError, fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

// enter runs a create or join for a client that is not yet in a room and records the room it landed in.
func (s *Server) enter(ctx context.Context, id uuid.UUID, request, requestedName string, join func(name string) (*game.Room, *game.GameStateView, error)) {
	sess, ok := s.reg.Session(id)
	if !ok {
		return
	}
	if sess.RoomID != uuid.Nil {
		s.reject(ctx, id, request, game.WrongRoomState, "leave your current room first")
		return
	}

	name := requestedName
	if name == "" {
		name = sess.Name
	}
	if name == "" {
		name = "Player " + id.String()[:4]
	}
	s.reg.SetName(id, name)

	room, view, err := join(name)
	if err != nil {
		s.fail(ctx, id, request, err)
		return
	}
	s.reg.SetRoom(id, room.ID)
	s.accepted(ctx, id, request, room, view)
}

// currentRoom resolves the room the client is in.
func (s *Server) currentRoom(id uuid.UUID) (*game.Room, error) {
	sess, ok := s.reg.Session(id)
	if !ok || sess.RoomID == uuid.Nil {
		return nil, &game.Rejection{Reason: game.NotInRoom, Message: "join a room first"}
	}
	room, ok := s.rooms.GetRoom(sess.RoomID)
	if !ok {
		s.reg.SetRoom(id, uuid.Nil)
		return nil, lobby.ErrRoomNotFound
	}
	return room, nil
}

// disconnect unregisters the client and removes it from its room through the room's queue.
func (s *Server) disconnect(id uuid.UUID, log *logrus.Entry) {
	roomID, ok := s.reg.Unregister(id)
	if !ok {
		return
	}
	room, found := s.rooms.GetRoom(roomID)
	if !found {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()
	if _, err := room.Leave(ctx, id); err != nil && game.ReasonOf(err) != game.NotInRoom {
		log.WithField("room", roomID).WithError(err).Warn("Failed to leave room on disconnect")
	}
}

func (s *Server) pingLoop(ctx context.Context, c *websocket.Conn, cancel context.CancelFunc, log *logrus.Entry) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, pcancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Ping(pctx)
			pcancel()
			if err != nil {
				log.WithError(err).Debug("Ping failed, closing connection")
				cancel()
				return
			}
		}
	}
}

func (s *Server) accepted(ctx context.Context, id uuid.UUID, request string, room *game.Room, view *game.GameStateView) {
	s.send(ctx, id, map[string]interface{}{
		"type":      "accepted",
		"request":   request,
		"room_id":   room.ID,
		"client_id": id,
		"state":     room.Info().State.String(),
		"snapshot":  view,
	})
}

func (s *Server) fail(ctx context.Context, id uuid.UUID, request string, err error) {
	msg := err.Error()
	var rej *game.Rejection
	if errors.As(err, &rej) {
		msg = rej.Message
	}
	s.reject(ctx, id, request, game.ReasonOf(err), msg)
}

func (s *Server) reject(ctx context.Context, id uuid.UUID, request string, reason game.Reason, message string) {
	s.send(ctx, id, map[string]interface{}{
		"type":    "rejected",
		"request": request,
		"reason":  reason,
		"message": message,
	})
}

// send marshals a message and writes it to the client with a timeout.
func (s *Server) send(ctx context.Context, id uuid.UUID, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		s.logger.WithError(err).Error("Error marshaling WebSocket message")
		return
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := s.reg.Send(wctx, id, data); err != nil {
		s.logger.WithField("client", id).WithError(err).Debug("Error writing WebSocket message")
	}
}
