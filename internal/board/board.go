// internal/board/board.go
package board

import "fmt"

// TileKind tags the effect a tile has when a token lands on it.
type TileKind string

const (
	KindGo             TileKind = "go"
	KindProperty       TileKind = "property"
	KindRailroad       TileKind = "railroad"
	KindUtility        TileKind = "utility"
	KindTax            TileKind = "tax"
	KindJail           TileKind = "jail"
	KindGoToJail       TileKind = "go_to_jail"
	KindFreeParking    TileKind = "free_parking"
	KindChance         TileKind = "chance"
	KindCommunityChest TileKind = "community_chest"
)

// Tile is a read-only record describing one board position.
// Only the fields relevant to Kind are populated.
type Tile struct {
	Position int      `json:"position"`
	Kind     TileKind `json:"kind"`
	Name     string   `json:"name"`
	Group    string   `json:"group,omitempty"`
	Price    int      `json:"price,omitempty"`

	BaseRent    int   `json:"base_rent,omitempty"`   // property
	Tiers       []int `json:"tiers,omitempty"`       // railroad rent by number owned
	Multipliers []int `json:"multipliers,omitempty"` // utility dice multiplier by number owned
	Amount      int   `json:"amount,omitempty"`      // tax
}

// Purchasable reports whether the tile can be owned by a player.
func (t Tile) Purchasable() bool {
	switch t.Kind {
	case KindProperty, KindRailroad, KindUtility:
		return true
	}
	return false
}

// Board is the narrow view of tile data used by the game core.
type Board interface {
	Size() int
	Tile(pos int) Tile
	// GroupSize returns how many tiles share the given group.
	GroupSize(group string) int
	// JailPosition is where jailed tokens are placed.
	JailPosition() int
}

// StaticBoard is an immutable Board backed by a slice of tiles.
type StaticBoard struct {
	tiles  []Tile
	groups map[string]int
	jail   int
}

// New validates the tile list and builds a StaticBoard. Tile positions are
// taken from slice order.
func New(tiles []Tile) (*StaticBoard, error) {
	if len(tiles) == 0 {
		return nil, fmt.Errorf("board has no tiles")
	}
	b := &StaticBoard{
		tiles:  make([]Tile, len(tiles)),
		groups: make(map[string]int),
		jail:   -1,
	}
	for i, t := range tiles {
		t.Position = i
		if t.Purchasable() && t.Price <= 0 {
			return nil, fmt.Errorf("tile %d (%s) is purchasable but has no price", i, t.Name)
		}
		if t.Kind == KindRailroad && len(t.Tiers) == 0 {
			return nil, fmt.Errorf("railroad %d (%s) has no rent tiers", i, t.Name)
		}
		if t.Kind == KindUtility && len(t.Multipliers) == 0 {
			return nil, fmt.Errorf("utility %d (%s) has no multipliers", i, t.Name)
		}
		if t.Kind == KindJail && b.jail < 0 {
			b.jail = i
		}
		if t.Group != "" {
			b.groups[t.Group]++
		}
		b.tiles[i] = t
	}
	if b.jail < 0 {
		return nil, fmt.Errorf("board has no jail tile")
	}
	return b, nil
}

func (b *StaticBoard) Size() int { return len(b.tiles) }

// Tile wraps pos onto the board, so any integer is a valid position.
func (b *StaticBoard) Tile(pos int) Tile {
	n := len(b.tiles)
	pos = ((pos % n) + n) % n
	return b.tiles[pos]
}

func (b *StaticBoard) GroupSize(group string) int { return b.groups[group] }

func (b *StaticBoard) JailPosition() int { return b.jail }

// Tiles returns a copy of every tile in board order.
func (b *StaticBoard) Tiles() []Tile {
	out := make([]Tile, len(b.tiles))
	copy(out, b.tiles)
	return out
}
