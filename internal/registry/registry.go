// internal/registry/registry.go
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// ErrUnknownClient is returned when sending to a client that is no longer registered.
var ErrUnknownClient = errors.New("unknown client")

// Conn is the part of a websocket connection the registry writes to.
type Conn interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Session is one live client connection.
type Session struct {
	ID         uuid.UUID
	Name       string
	RoomID     uuid.UUID // uuid.Nil when not in a room
	LastActive time.Time

	conn Conn
}

// Registry tracks live sessions. It holds no game logic.
type Registry struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{sessions: make(map[uuid.UUID]*Session)}
}

// Register allocates an id for conn and records it with no room.
func (r *Registry) Register(conn Conn) uuid.UUID {
	id := uuid.New()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = &Session{ID: id, LastActive: time.Now(), conn: conn}
	return id
}

// SetRoom records the room a client is in; uuid.Nil clears it. Unknown ids are ignored.
func (r *Registry) SetRoom(id, roomID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.RoomID = roomID
	}
}

// SetName updates the display name. Unknown ids are ignored.
func (r *Registry) SetName(id uuid.UUID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.Name = name
	}
}

// Touch marks the session active now.
func (r *Registry) Touch(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.LastActive = time.Now()
	}
}

// Session returns a copy of the session record.
func (r *Registry) Session(id uuid.UUID) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Unregister removes the session and returns the room it was in. Calling it
// again for the same id returns uuid.Nil, false.
func (r *Registry) Unregister(id uuid.UUID) (uuid.UUID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return uuid.Nil, false
	}
	delete(r.sessions, id)
	return s.RoomID, s.RoomID != uuid.Nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Send writes a text frame to the client. The lock is not held during the write.
func (r *Registry) Send(ctx context.Context, id uuid.UUID, data []byte) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	var conn Conn
	if ok {
		conn = s.conn
	}
	r.mu.Unlock()
	if !ok || conn == nil {
		return ErrUnknownClient
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// Kick closes the client's connection. Its read loop then runs the normal disconnect path.
func (r *Registry) Kick(id uuid.UUID, code websocket.StatusCode, reason string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok || s.conn == nil {
		return
	}
	_ = s.conn.Close(code, reason)
}
