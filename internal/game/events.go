// internal/game/events.go
package game

import (
	"fmt"

	"github.com/google/uuid"
)

// EventKind tags every message a room broadcasts.
type EventKind string

const (
	EventPlayerJoined   EventKind = "player_joined"
	EventPlayerLeft     EventKind = "player_left"
	EventHostChanged    EventKind = "host_changed"
	EventGameStarted    EventKind = "game_started"
	EventPlayerMoved    EventKind = "player_moved"
	EventPassedStart    EventKind = "passed_start"
	EventPayRent        EventKind = "pay_rent"
	EventPayTax         EventKind = "pay_tax"
	EventPurchasable    EventKind = "purchasable"
	EventSentToJail     EventKind = "sent_to_jail"
	EventStayedInJail   EventKind = "stayed_in_jail"
	EventLeftJail       EventKind = "left_jail"
	EventPaidFine       EventKind = "paid_jail_fine"
	EventPropertyBought EventKind = "property_bought"
	EventTurnEnded      EventKind = "turn_ended"
	EventBankrupt       EventKind = "player_bankrupt"
	EventGameEnded      EventKind = "game_ended"
	EventChat           EventKind = "chat"
	EventStateSync      EventKind = "state_sync"
	EventHeartbeat      EventKind = "heartbeat"
)

// BroadcastMessage is one event fanned out by a room. A zero Target means every member.
type BroadcastMessage struct {
	Kind    EventKind              `json:"type"`
	RoomID  uuid.UUID              `json:"room_id"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	State   *GameStateView         `json:"state,omitempty"`
	Target  uuid.UUID              `json:"-"`
}

// ActionOutcome is the result of one accepted action.
type ActionOutcome struct {
	Kind        EventKind `json:"kind"`
	Actor       uuid.UUID `json:"actor"`
	Description string    `json:"description"`
	Dice        []int     `json:"dice,omitempty"`
	// Changed lists the players whose state the action touched.
	Changed []uuid.UUID    `json:"changed,omitempty"`
	State   *GameStateView `json:"state,omitempty"`

	// Events records every secondary effect in the order it happened,
	// e.g. passing start then paying rent then going bankrupt.
	Events []EventKind `json:"events,omitempty"`

	lines []string
}

func (o *ActionOutcome) describe(format string, args ...interface{}) {
	o.lines = append(o.lines, fmt.Sprintf(format, args...))
}

func (o *ActionOutcome) note(kind EventKind, who ...uuid.UUID) {
	o.Events = append(o.Events, kind)
	for _, id := range who {
		if id == uuid.Nil {
			continue
		}
		seen := false
		for _, c := range o.Changed {
			if c == id {
				seen = true
				break
			}
		}
		if !seen {
			o.Changed = append(o.Changed, id)
		}
	}
}
