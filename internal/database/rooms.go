// internal/database/rooms.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jason-s-yu/tycoon/internal/models"
)

// InsertRoom records a newly created room. Re-inserting the same id refreshes its row.
func (s *Store) InsertRoom(ctx context.Context, room models.RoomSummary) error {
	q := `
		INSERT INTO rooms (id, name, capacity, state, host_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id)
		DO UPDATE SET name = $2, capacity = $3, state = $4, host_id = $5, updated_at = NOW()
	`
	_, err := s.pool.Exec(ctx, q, room.ID, room.Name, room.Capacity, room.State, nullableID(room.HostID), room.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert room %v: %w", room.ID, err)
	}
	return nil
}

// UpdateRoomState records a lifecycle transition.
func (s *Store) UpdateRoomState(ctx context.Context, roomID uuid.UUID, state string) error {
	q := `UPDATE rooms SET state = $2, updated_at = NOW() WHERE id = $1`
	if _, err := s.pool.Exec(ctx, q, roomID, state); err != nil {
		return fmt.Errorf("update room %v state: %w", roomID, err)
	}
	return nil
}

// ListRooms returns persisted rooms, newest first.
func (s *Store) ListRooms(ctx context.Context, limit int) ([]models.RoomSummary, error) {
	q := `
		SELECT id, name, capacity, state, host_id, created_at
		FROM rooms
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var out []models.RoomSummary
	for rows.Next() {
		var (
			r    models.RoomSummary
			host *uuid.UUID
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Capacity, &r.State, &host, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		if host != nil {
			r.HostID = *host
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullableID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
