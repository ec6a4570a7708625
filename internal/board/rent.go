// internal/board/rent.go
package board

// RentContext carries the ownership and roll facts needed to price a landing.
type RentContext struct {
	OwnedInGroup int // tiles in the landed tile's group held by its owner, including the landed tile
	GroupSize    int
	DiceSum      int
}

// ComputeRent returns what a visitor owes the owner of tile. Non-purchasable
// tiles return 0; use TaxAmount for tax tiles.
func ComputeRent(t Tile, rc RentContext) int {
	owned := rc.OwnedInGroup
	if owned < 1 {
		owned = 1
	}
	switch t.Kind {
	case KindProperty:
		if rc.GroupSize > 0 && owned >= rc.GroupSize {
			return t.BaseRent * 2
		}
		return t.BaseRent
	case KindRailroad:
		return t.Tiers[clampIndex(owned-1, len(t.Tiers))]
	case KindUtility:
		return t.Multipliers[clampIndex(owned-1, len(t.Multipliers))] * rc.DiceSum
	}
	return 0
}

// TaxAmount returns the amount due to the bank for landing on t.
func TaxAmount(t Tile) int {
	if t.Kind != KindTax {
		return 0
	}
	return t.Amount
}

func clampIndex(i, n int) int {
	if i >= n {
		return n - 1
	}
	if i < 0 {
		return 0
	}
	return i
}
