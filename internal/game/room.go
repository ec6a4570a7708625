// internal/game/room.go
package game

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/tycoon/internal/board"
	"github.com/jason-s-yu/tycoon/internal/cache"
	"github.com/jason-s-yu/tycoon/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	DefaultCapacity         = 4
	DefaultQueueSize        = 64
	DefaultBroadcastTimeout = 3 * time.Second
	DefaultBroadcastBacklog = 256

	evictTimeout = 10 * time.Second
)

// ActionLog receives a record for every accepted command, in room order. Publish must not block.
type ActionLog interface {
	Publish(rec cache.GameActionRecord)
}

// RoomConfig holds a room's collaborators and tunables. Zero fields take defaults.
type RoomConfig struct {
	Name             string
	Capacity         int
	Rules            HouseRules
	Board            board.Board
	Dice             Dice
	Sender           Sender
	BroadcastTimeout time.Duration
	QueueSize        int
	// BroadcastBacklog caps undelivered broadcasts. Past it, heartbeats are dropped and new commands fail with ErrRoomBusy.
	BroadcastBacklog int
	ActionLog        ActionLog
	Logger           *logrus.Logger

	// OnEvict is called after a member was removed because a broadcast to it failed.
	OnEvict func(clientID uuid.UUID)
	// OnStateChange is called on the room goroutine after every lifecycle transition. It must not block.
	OnStateChange func(roomID uuid.UUID, state RoomState)
}

// Info is a summary of a room that can be read without going through its queue.
type Info struct {
	ID         uuid.UUID
	Name       string
	State      RoomState
	Members    int
	Capacity   int
	HostID     uuid.UUID
	CreatedAt  time.Time
	EmptySince time.Time // zero while the room has members
}

// Room owns one game session. All membership and game state is confined to the
// goroutine started by Run; public methods submit commands to it and wait for the result.
type Room struct {
	ID   uuid.UUID
	Name string

	cfg         RoomConfig
	proc        processor
	st          *roomState
	inbox       chan func()
	done        chan struct{}
	broadcaster *Broadcaster
	log         *logrus.Entry

	retired     bool
	actionIndex int
	emptySince  time.Time

	infoMu sync.RWMutex
	info   Info
}

// NewRoom constructs a room in the Empty state. Call Run to start processing commands.
func NewRoom(id uuid.UUID, cfg RoomConfig) (*Room, error) {
	if cfg.Capacity == 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Rules == (HouseRules{}) {
		cfg.Rules = DefaultHouseRules()
	}
	if cfg.Capacity < cfg.Rules.MinPlayers {
		return nil, fmt.Errorf("capacity %d is below the %d player minimum", cfg.Capacity, cfg.Rules.MinPlayers)
	}
	if cfg.Board == nil {
		cfg.Board = board.Classic()
	}
	if cfg.Dice == nil {
		cfg.Dice = NewRandomDice()
	}
	if cfg.BroadcastTimeout <= 0 {
		cfg.BroadcastTimeout = DefaultBroadcastTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.BroadcastBacklog <= 0 {
		cfg.BroadcastBacklog = DefaultBroadcastBacklog
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	now := time.Now()
	r := &Room{
		ID:         id,
		Name:       cfg.Name,
		cfg:        cfg,
		proc:       processor{board: cfg.Board, dice: cfg.Dice, rules: cfg.Rules},
		st:         newRoomState(cfg.Capacity),
		inbox:      make(chan func(), cfg.QueueSize),
		done:       make(chan struct{}),
		log:        cfg.Logger.WithField("room", id),
		emptySince: now,
	}
	r.info = Info{ID: id, Name: cfg.Name, Capacity: cfg.Capacity, CreatedAt: now, EmptySince: now}
	r.broadcaster = NewBroadcaster(cfg.Sender, cfg.BroadcastTimeout, r.evict, r.log)
	r.broadcaster.limit = cfg.BroadcastBacklog
	return r, nil
}

// Run processes commands in arrival order until ctx is cancelled.
func (r *Room) Run(ctx context.Context) {
	defer close(r.done)

	bctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go r.broadcaster.Run(bctx)

	r.log.WithField("capacity", r.cfg.Capacity).Debug("Room started")
	for {
		select {
		case <-ctx.Done():
			r.log.Debug("Room stopped")
			return
		case cmd := <-r.inbox:
			cmd()
		}
	}
}

// Done is closed once Run has returned.
func (r *Room) Done() <-chan struct{} {
	return r.done
}

// Info returns the latest summary published by the room goroutine.
func (r *Room) Info() Info {
	r.infoMu.RLock()
	defer r.infoMu.RUnlock()
	return r.info
}

// Join adds clientID as a member. The first member becomes host.
func (r *Room) Join(ctx context.Context, clientID uuid.UUID, name string) (*GameStateView, error) {
	var view *GameStateView
	err := r.do(ctx, false, func() error {
		if r.retired {
			return ErrRoomClosed
		}
		if rej := r.st.addMember(clientID, name); rej != nil {
			return rej
		}
		r.logAction(clientID, "join", map[string]interface{}{"name": name})
		view = r.snapshot()
		r.publish(BroadcastMessage{
			Kind:    EventPlayerJoined,
			Payload: map[string]interface{}{"client_id": clientID, "name": name},
			State:   view,
		})
		return nil
	})
	return view, err
}

// Leave removes clientID. It waits for queue space rather than failing, so a
// disconnect is never lost under load.
func (r *Room) Leave(ctx context.Context, clientID uuid.UUID) (LeaveResult, error) {
	var res LeaveResult
	err := r.do(ctx, true, func() error {
		p, ok := r.st.players[clientID]
		if !ok {
			return reject(NotInRoom, "client %s is not a member", clientID)
		}
		name := p.Name
		oldHost := r.st.host

		result, rej := r.st.removeMember(clientID)
		if rej != nil {
			return rej
		}
		res = result
		r.logAction(clientID, "leave", nil)

		view := r.snapshot()
		r.publish(BroadcastMessage{
			Kind:    EventPlayerLeft,
			Payload: map[string]interface{}{"client_id": clientID, "name": name},
			State:   view,
		})
		if r.st.host != oldHost && r.st.host != uuid.Nil {
			r.publish(BroadcastMessage{
				Kind:    EventHostChanged,
				Payload: map[string]interface{}{"host_id": r.st.host},
			})
		}
		return nil
	})
	return res, err
}

// CanStart reports whether the room is waiting with enough members to begin.
func (r *Room) CanStart(ctx context.Context) (bool, error) {
	var ok bool
	err := r.do(ctx, false, func() error {
		ok = r.st.canStart(r.cfg.Rules.MinPlayers)
		return nil
	})
	return ok, err
}

// Start begins the game. Only the host may start it.
func (r *Room) Start(ctx context.Context, requesterID uuid.UUID) (*GameStateView, error) {
	var view *GameStateView
	err := r.do(ctx, false, func() error {
		if !r.st.isMember(requesterID) {
			return reject(NotInRoom, "client %s is not a member", requesterID)
		}
		if requesterID != r.st.host {
			return reject(NotHost, "only the host can start the game")
		}
		if rej := r.st.start(r.cfg.Rules); rej != nil {
			return rej
		}
		r.logAction(requesterID, "start_game", map[string]interface{}{"players": len(r.st.members)})
		view = r.snapshot()
		r.publish(BroadcastMessage{Kind: EventGameStarted, State: view})
		return nil
	})
	return view, err
}

// Apply runs one game action for actorID.
func (r *Room) Apply(ctx context.Context, actorID uuid.UUID, action models.GameAction) (ActionOutcome, error) {
	var outcome ActionOutcome
	err := r.do(ctx, false, func() error {
		out, rej := r.proc.process(r.st, actorID, action)
		if rej != nil {
			return rej
		}
		out.State = r.snapshot()
		outcome = out

		payload := map[string]interface{}{
			"actor":       actorID,
			"description": out.Description,
		}
		if len(out.Dice) > 0 {
			payload["dice"] = out.Dice
		}
		if len(out.Events) > 0 {
			payload["events"] = out.Events
		}
		r.logAction(actorID, string(action.ActionType), payload)
		r.publish(BroadcastMessage{Kind: out.Kind, Payload: payload, State: out.State})
		return nil
	})
	return outcome, err
}

// Snapshot returns a deep copy of the room state.
func (r *Room) Snapshot(ctx context.Context) (*GameStateView, error) {
	var view *GameStateView
	err := r.do(ctx, false, func() error {
		view = r.snapshot()
		return nil
	})
	return view, err
}

// Heartbeat queues a full-state broadcast without waiting. It reports false if the queue was full.
func (r *Room) Heartbeat() bool {
	if r.broadcaster.Saturated() {
		return false
	}
	select {
	case r.inbox <- func() {
		if len(r.st.members) == 0 {
			return
		}
		r.publish(BroadcastMessage{Kind: EventHeartbeat, State: r.snapshot()})
	}:
		return true
	default:
		return false
	}
}

// RetireIfIdle marks the room closed when it has had no members for at least grace.
// A retired room rejects joins with ErrRoomClosed.
func (r *Room) RetireIfIdle(ctx context.Context, now time.Time, grace time.Duration) (bool, error) {
	var retired bool
	err := r.do(ctx, false, func() error {
		if len(r.st.members) == 0 && !r.emptySince.IsZero() && now.Sub(r.emptySince) >= grace {
			r.retired = true
		}
		retired = r.retired
		return nil
	})
	return retired, err
}

// do runs fn on the room goroutine and returns its error. When blocking is false
// a full queue fails the request with ErrRoomBusy.
func (r *Room) do(ctx context.Context, blocking bool, fn func() error) error {
	var fnErr error
	finished := make(chan struct{})
	cmd := func() {
		prev := r.st.state
		fnErr = fn()
		r.refresh(prev)
		close(finished)
	}

	if blocking {
		select {
		case r.inbox <- cmd:
		case <-r.done:
			return ErrRoomClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	} else {
		if r.broadcaster.Saturated() {
			r.log.WithField("pending", r.broadcaster.Pending()).Warn("Broadcast backlog full, rejecting command")
			return ErrRoomBusy
		}
		select {
		case r.inbox <- cmd:
		case <-r.done:
			return ErrRoomClosed
		default:
			r.log.Warn("Room queue full, rejecting command")
			return ErrRoomBusy
		}
	}

	select {
	case <-finished:
		return fnErr
	case <-r.done:
		select {
		case <-finished:
			return fnErr
		default:
			return ErrRoomClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// refresh publishes the summary and fires lifecycle hooks after a command.
func (r *Room) refresh(prev RoomState) {
	now := time.Now()
	if len(r.st.members) == 0 {
		if r.emptySince.IsZero() {
			r.emptySince = now
		}
	} else {
		r.emptySince = time.Time{}
	}

	r.infoMu.Lock()
	r.info.State = r.st.state
	r.info.Members = len(r.st.members)
	r.info.HostID = r.st.host
	r.info.EmptySince = r.emptySince
	r.infoMu.Unlock()

	if r.st.state == prev {
		return
	}
	r.log.WithFields(logrus.Fields{"from": prev, "to": r.st.state}).Info("Room state changed")
	if r.st.state == StateEnded {
		r.logAction(uuid.Nil, "game_end", map[string]interface{}{"winner": r.st.winner})
		r.publish(BroadcastMessage{
			Kind:    EventGameEnded,
			Payload: map[string]interface{}{"winner": r.st.winner},
			State:   r.snapshot(),
		})
	}
	if r.cfg.OnStateChange != nil {
		r.cfg.OnStateChange(r.ID, r.st.state)
	}
}

func (r *Room) snapshot() *GameStateView {
	return r.st.snapshot(r.ID, r.Name)
}

func (r *Room) publish(msg BroadcastMessage) {
	msg.RoomID = r.ID
	if msg.Target != uuid.Nil {
		r.broadcaster.Publish(msg, []uuid.UUID{msg.Target})
		return
	}
	r.broadcaster.Publish(msg, r.st.members)
}

// evict removes a member whose connection stopped accepting broadcasts. It goes
// through Leave like any other disconnect.
func (r *Room) evict(clientID uuid.UUID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), evictTimeout)
		defer cancel()
		if _, err := r.Leave(ctx, clientID); err != nil && ReasonOf(err) != NotInRoom {
			r.log.WithField("client", clientID).WithError(err).Warn("Failed to remove unresponsive member")
		}
		if r.cfg.OnEvict != nil {
			r.cfg.OnEvict(clientID)
		}
	}()
}

// logAction numbers every accepted command and hands it to the action log.
func (r *Room) logAction(actorID uuid.UUID, actionType string, payload map[string]interface{}) {
	r.actionIndex++
	if r.cfg.ActionLog == nil {
		return
	}
	if payload == nil {
		payload = make(map[string]interface{})
	}
	r.cfg.ActionLog.Publish(cache.GameActionRecord{
		RoomID:        r.ID,
		ActionIndex:   r.actionIndex,
		ActorID:       actorID,
		ActionType:    actionType,
		ActionPayload: payload,
		Timestamp:     time.Now().UnixMilli(),
	})
}
