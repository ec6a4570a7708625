// internal/game/errors.go
package game

import (
	"errors"
	"fmt"
)

// Reason is a client-visible rejection code.
type Reason string

const (
	RoomFull           Reason = "RoomFull"
	RoomNotFound       Reason = "RoomNotFound"
	WrongRoomState     Reason = "WrongRoomState"
	NotInRoom          Reason = "NotInRoom"
	NotYourTurn        Reason = "NotYourTurn"
	GameNotStarted     Reason = "GameNotStarted"
	AlreadyRolled      Reason = "AlreadyRolled"
	InsufficientFunds  Reason = "InsufficientFunds"
	TileNotPurchasable Reason = "TileNotPurchasable"
	DuplicateClient    Reason = "DuplicateClient"
	NotHost            Reason = "NotHost"
	NotEnoughPlayers   Reason = "NotEnoughPlayers"
	RoomBusy           Reason = "RoomBusy"
	ProtocolError      Reason = "ProtocolError"
)

// Rejection is returned when a request is refused. The room is left unchanged.
type Rejection struct {
	Reason  Reason
	Message string
}

func (r *Rejection) Error() string {
	if r.Message == "" {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Message)
}

func reject(reason Reason, format string, args ...interface{}) *Rejection {
	return &Rejection{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

var (
	// ErrRoomBusy is returned when a room's command queue is full.
	ErrRoomBusy = &Rejection{Reason: RoomBusy, Message: "room is overloaded, try again"}
	// ErrRoomClosed is returned for commands sent to a room that has been retired.
	ErrRoomClosed = errors.New("room closed")
)

// ReasonOf maps any error to the reason reported to a client.
func ReasonOf(err error) Reason {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej.Reason
	}
	if errors.Is(err, ErrRoomClosed) {
		return RoomNotFound
	}
	return ProtocolError
}
