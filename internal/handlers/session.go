// internal/handlers/session.go
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jason-s-yu/tycoon/internal/auth"
)

const maxNameLength = 32

type sessionRequest struct {
	Name string `json:"name"`
}

// CreateSessionHandler issues a guest token. The token's name becomes the
// default display name of websocket connections that present it.
func (s *Server) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "bad session request payload", http.StatusBadRequest)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "Guest"
	}
	if len(name) > maxNameLength {
		http.Error(w, "name too long", http.StatusBadRequest)
		return
	}

	id := uuid.New()
	token, err := auth.CreateGuestToken(id, name)
	if err != nil {
		s.logger.WithError(err).Error("Failed to create guest token")
		http.Error(w, "could not create session", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     authCookie,
		Value:    token,
		HttpOnly: true,
		Path:     "/",
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "token": token, "name": name})
}
