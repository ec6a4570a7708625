// internal/models/room.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// RoomSummary is the listing view of a room, also persisted to the rooms table.
type RoomSummary struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	State     string    `json:"state"`
	Capacity  int       `json:"capacity"`
	Members   int       `json:"members"`
	HostID    uuid.UUID `json:"host_id"`
	CreatedAt time.Time `json:"created_at"`
}
