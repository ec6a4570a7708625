package models

import (
	"github.com/google/uuid"
)

// Player is the public view of one room member's game state.
type Player struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Position int       `json:"position"`
	Balance  int       `json:"balance"`
	Owned    []int     `json:"owned"`
	InJail   bool      `json:"in_jail"`
	Bankrupt bool      `json:"bankrupt"`
	IsHost   bool      `json:"is_host"`
	IsTurn   bool      `json:"is_turn"`

	// Doubles is the running count of consecutive doubles rolled.
	Doubles int `json:"doubles"`
}
