// internal/game/state.go
package game

import (
	"github.com/google/uuid"
	"github.com/jason-s-yu/tycoon/internal/board"
)

// RoomState is a room's lifecycle stage. Transitions only move forward,
// except Waiting may fall back to Empty when the last member leaves before the game starts.
type RoomState int

const (
	StateEmpty RoomState = iota
	StateWaiting
	StatePlaying
	StateEnded
)

func (s RoomState) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateWaiting:
		return "waiting"
	case StatePlaying:
		return "playing"
	case StateEnded:
		return "ended"
	}
	return "unknown"
}

// LeaveResult describes what a member removal did to the room.
type LeaveResult int

const (
	RoomContinues LeaveResult = iota
	RoomNowEmpty
	WinnerDeclared
)

// PlayerState is one member's game state. It is only touched on the room goroutine.
type PlayerState struct {
	ID        uuid.UUID
	Name      string
	Position  int
	Balance   int
	Owned     map[int]struct{}
	Doubles   int
	HasRolled bool
	InJail    bool
	JailTurns int
	Bankrupt  bool
}

// roomState holds membership and game state for one room. It has no locking;
// the owning Room serializes every access through its command loop.
type roomState struct {
	state    RoomState
	capacity int
	members  []uuid.UUID // join order, also turn order
	players  map[uuid.UUID]*PlayerState
	host     uuid.UUID
	turn     int
	round    int
	owners   map[int]uuid.UUID // tile position -> owner
	winner   uuid.UUID
}

func newRoomState(capacity int) *roomState {
	return &roomState{
		state:    StateEmpty,
		capacity: capacity,
		players:  make(map[uuid.UUID]*PlayerState),
		owners:   make(map[int]uuid.UUID),
	}
}

func (s *roomState) isMember(id uuid.UUID) bool {
	_, ok := s.players[id]
	return ok
}

func (s *roomState) indexOf(id uuid.UUID) int {
	for i, m := range s.members {
		if m == id {
			return i
		}
	}
	return -1
}

// turnHolder returns the current turn holder, or uuid.Nil outside of play.
func (s *roomState) turnHolder() uuid.UUID {
	if s.state != StatePlaying || len(s.members) == 0 {
		return uuid.Nil
	}
	return s.members[s.turn]
}

func (s *roomState) activeCount() int {
	n := 0
	for _, id := range s.members {
		if !s.players[id].Bankrupt {
			n++
		}
	}
	return n
}

func (s *roomState) addMember(id uuid.UUID, name string) *Rejection {
	if s.isMember(id) {
		return reject(DuplicateClient, "client %s is already a member", id)
	}
	if s.state == StatePlaying || s.state == StateEnded {
		return reject(WrongRoomState, "room is %s", s.state)
	}
	if len(s.members) >= s.capacity {
		return reject(RoomFull, "room holds at most %d players", s.capacity)
	}
	s.members = append(s.members, id)
	s.players[id] = &PlayerState{ID: id, Name: name, Owned: make(map[int]struct{})}
	if len(s.members) == 1 {
		s.host = id
		s.state = StateWaiting
	}
	return nil
}

// removeMember drops id from the room. When the turn holder leaves mid-game the
// next member in join order inherits the turn.
func (s *roomState) removeMember(id uuid.UUID) (LeaveResult, *Rejection) {
	idx := s.indexOf(id)
	if idx < 0 {
		return RoomContinues, reject(NotInRoom, "client %s is not a member", id)
	}
	heldTurn := s.state == StatePlaying && idx == s.turn

	s.releaseProperties(id)
	delete(s.players, id)
	s.members = append(s.members[:idx], s.members[idx+1:]...)

	if len(s.members) == 0 {
		s.turn = 0
		s.host = uuid.Nil
		switch s.state {
		case StateWaiting:
			s.state = StateEmpty
		case StatePlaying:
			s.endGame(uuid.Nil)
		}
		return RoomNowEmpty, nil
	}

	if s.host == id {
		s.host = s.members[0]
	}

	if s.state != StatePlaying {
		s.turn = 0
		return RoomContinues, nil
	}

	if s.activeCount() <= 1 {
		s.endGame(s.lastActive())
		if s.winner != uuid.Nil {
			return WinnerDeclared, nil
		}
		return RoomContinues, nil
	}

	switch {
	case idx < s.turn:
		s.turn--
	case heldTurn:
		// The member after the leaver slid into idx and inherits the turn.
		s.turn = idx
		if s.turn >= len(s.members) {
			s.turn = 0
			s.round++
		}
		if next := s.players[s.members[s.turn]]; next.Bankrupt {
			s.advanceTurn()
		} else {
			next.HasRolled = false
		}
	}
	s.clampTurn()
	return RoomContinues, nil
}

func (s *roomState) clampTurn() {
	if len(s.members) == 0 {
		s.turn = 0
		return
	}
	s.turn = ((s.turn % len(s.members)) + len(s.members)) % len(s.members)
}

func (s *roomState) lastActive() uuid.UUID {
	for _, id := range s.members {
		if !s.players[id].Bankrupt {
			return id
		}
	}
	return uuid.Nil
}

func (s *roomState) canStart(minPlayers int) bool {
	return s.state == StateWaiting && len(s.members) >= minPlayers
}

func (s *roomState) start(rules HouseRules) *Rejection {
	if s.state != StateWaiting {
		return reject(WrongRoomState, "room is %s", s.state)
	}
	if len(s.members) < rules.MinPlayers {
		return reject(NotEnoughPlayers, "need at least %d players, have %d", rules.MinPlayers, len(s.members))
	}
	s.state = StatePlaying
	s.turn = 0
	s.round = 1
	s.winner = uuid.Nil
	s.owners = make(map[int]uuid.UUID)
	for _, id := range s.members {
		p := s.players[id]
		*p = PlayerState{ID: id, Name: p.Name, Balance: rules.StartingBalance, Owned: make(map[int]struct{})}
	}
	return nil
}

// advanceTurn moves to the next non-bankrupt member in join order. Wrapping to
// index 0 starts a new round.
func (s *roomState) advanceTurn() {
	if s.state != StatePlaying || len(s.members) == 0 {
		return
	}
	for skipped := 0; skipped < len(s.members); skipped++ {
		s.turn = (s.turn + 1) % len(s.members)
		if s.turn == 0 {
			s.round++
		}
		if !s.players[s.members[s.turn]].Bankrupt {
			break
		}
	}
	s.players[s.members[s.turn]].HasRolled = false
}

func (s *roomState) endGame(winner uuid.UUID) {
	s.state = StateEnded
	s.winner = winner
}

// releaseProperties returns every tile owned by id to the bank.
func (s *roomState) releaseProperties(id uuid.UUID) {
	p, ok := s.players[id]
	if !ok {
		return
	}
	for pos := range p.Owned {
		delete(s.owners, pos)
	}
	p.Owned = make(map[int]struct{})
}

// ownedInGroup counts tiles of group held by owner.
func (s *roomState) ownedInGroup(owner uuid.UUID, group string, b board.Board) int {
	n := 0
	for pos := range s.players[owner].Owned {
		if b.Tile(pos).Group == group {
			n++
		}
	}
	return n
}

func (s *roomState) totalMoney() int {
	total := 0
	for _, p := range s.players {
		total += p.Balance
	}
	return total
}
