// internal/game/sync_state.go
package game

import (
	"sort"

	"github.com/google/uuid"
	"github.com/jason-s-yu/tycoon/internal/models"
)

// GameStateView is a deep copy of a room's state, safe to read and serialize from any goroutine.
type GameStateView struct {
	RoomID     uuid.UUID         `json:"room_id"`
	Name       string            `json:"name"`
	State      string            `json:"state"`
	Capacity   int               `json:"capacity"`
	Round      int               `json:"round"`
	TurnIndex  int               `json:"turn_index"`
	TurnHolder uuid.UUID         `json:"turn_holder"`
	HostID     uuid.UUID         `json:"host_id"`
	Winner     uuid.UUID         `json:"winner"`
	Players    []models.Player   `json:"players"` // join order
	Owners     map[int]uuid.UUID `json:"owners"`
}

// snapshot copies st into a view. Must be called on the room goroutine.
func (st *roomState) snapshot(roomID uuid.UUID, name string) *GameStateView {
	holder := st.turnHolder()
	view := &GameStateView{
		RoomID:     roomID,
		Name:       name,
		State:      st.state.String(),
		Capacity:   st.capacity,
		Round:      st.round,
		TurnHolder: holder,
		HostID:     st.host,
		Winner:     st.winner,
		Players:    make([]models.Player, 0, len(st.members)),
		Owners:     make(map[int]uuid.UUID, len(st.owners)),
	}
	if holder != uuid.Nil {
		view.TurnIndex = st.turn
	}
	for pos, owner := range st.owners {
		view.Owners[pos] = owner
	}
	for _, id := range st.members {
		p := st.players[id]
		owned := make([]int, 0, len(p.Owned))
		for pos := range p.Owned {
			owned = append(owned, pos)
		}
		sort.Ints(owned)
		view.Players = append(view.Players, models.Player{
			ID:       p.ID,
			Name:     p.Name,
			Position: p.Position,
			Balance:  p.Balance,
			Owned:    owned,
			InJail:   p.InJail,
			Bankrupt: p.Bankrupt,
			IsHost:   id == st.host,
			IsTurn:   id == holder,
			Doubles:  p.Doubles,
		})
	}
	return view
}

// Player returns the view of one player, if present.
func (v *GameStateView) Player(id uuid.UUID) (models.Player, bool) {
	for _, p := range v.Players {
		if p.ID == id {
			return p, true
		}
	}
	return models.Player{}, false
}
