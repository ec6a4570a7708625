package models

// ActionType names a command a room member can submit while in a room.
type ActionType string

const (
	ActionRoll    ActionType = "roll"
	ActionBuy     ActionType = "buy"
	ActionEndTurn ActionType = "end_turn"
	ActionChat    ActionType = "chat"
)

// ConsumesTurn reports whether only the current turn holder may submit the action.
func (a ActionType) ConsumesTurn() bool {
	return a == ActionRoll || a == ActionBuy || a == ActionEndTurn
}

// GameAction captures a player's in-game move
type GameAction struct {
	ActionType ActionType             `json:"action_type"`
	Payload    map[string]interface{} `json:"payload"`
}
