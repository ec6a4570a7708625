// internal/game/rules.go
package game

import "fmt"

// HouseRules defines the tunable numbers of a room's game.
type HouseRules struct {
	StartingBalance int `json:"startingBalance"` // balance each player starts with
	PassStartBonus  int `json:"passStartBonus"`  // credited when a token wraps past position 0
	MaxDoubles      int `json:"maxDoubles"`      // consecutive doubles that send a player to jail
	JailFine        int `json:"jailFine"`        // paid to leave jail after JailMaxTurns failed attempts
	JailMaxTurns    int `json:"jailMaxTurns"`    // failed doubles attempts allowed while jailed
	MinPlayers      int `json:"minPlayers"`      // members required before a game can start
}

// DefaultHouseRules returns the canonical rule numbers.
func DefaultHouseRules() HouseRules {
	return HouseRules{
		StartingBalance: 1500,
		PassStartBonus:  200,
		MaxDoubles:      3,
		JailFine:        50,
		JailMaxTurns:    3,
		MinPlayers:      2,
	}
}

// Update will update the house rules with the new rules provided.
// If a rule is not set or defined, it will be ignored, and the old value will persist.
func (rules *HouseRules) Update(newRules map[string]interface{}) error {
	assignInt := func(field *int, key string, minVal int) error {
		val, exists := newRules[key]
		if !exists || val == nil {
			return nil
		}
		var n int
		switch v := val.(type) {
		case float64:
			// JSON numbers decode as float64
			n = int(v)
		case int:
			n = v
		default:
			return fmt.Errorf("invalid type for %s", key)
		}
		if n < minVal {
			return fmt.Errorf("%s must be at least %d", key, minVal)
		}
		*field = n
		return nil
	}

	if err := assignInt(&rules.StartingBalance, "startingBalance", 0); err != nil {
		return err
	}
	if err := assignInt(&rules.PassStartBonus, "passStartBonus", 0); err != nil {
		return err
	}
	if err := assignInt(&rules.MaxDoubles, "maxDoubles", 1); err != nil {
		return err
	}
	if err := assignInt(&rules.JailFine, "jailFine", 0); err != nil {
		return err
	}
	if err := assignInt(&rules.JailMaxTurns, "jailMaxTurns", 1); err != nil {
		return err
	}
	if err := assignInt(&rules.MinPlayers, "minPlayers", 2); err != nil {
		return err
	}
	return nil
}

// ParseRules converts a map of rules to a HouseRules struct. It will ensure the types are valid.
func ParseRules(rules map[string]interface{}, current HouseRules) (HouseRules, error) {
	houseRules := current
	err := houseRules.Update(rules)
	return houseRules, err
}
