// internal/handlers/rooms.go
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/jason-s-yu/tycoon/internal/auth"
	"github.com/jason-s-yu/tycoon/internal/game"
	"github.com/jason-s-yu/tycoon/internal/lobby"
	"github.com/sirupsen/logrus"
)

type createRoomRequest struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
}

// CreateRoomHandler creates an empty room. Requires a guest token.
func (s *Server) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	token := requestToken(r)
	if token == "" {
		http.Error(w, "missing auth_token", http.StatusUnauthorized)
		return
	}
	userID, _, err := auth.ParseGuestToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusForbidden)
		return
	}

	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "bad room request payload", http.StatusBadRequest)
		return
	}

	room, err := s.rooms.CreateRoom(req.Name, req.Capacity)
	switch {
	case errors.Is(err, lobby.ErrInvalidCapacity):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, game.ErrRoomClosed):
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	case err != nil:
		s.logger.WithError(err).Error("Failed to create room")
		http.Error(w, "could not create room", http.StatusInternalServerError)
		return
	}

	s.logger.WithFields(logrus.Fields{"room": room.ID, "creator": userID}).Info("Room created over HTTP")
	writeJSON(w, http.StatusCreated, lobby.Summarize(room.Info()))
}

// ListRoomsHandler returns every room in creation order.
func (s *Server) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.rooms.List())
}

// HealthHandler reports liveness with room and client counts.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"rooms":   s.rooms.Len(),
		"clients": s.reg.Len(),
	})
}
