// internal/lobby/directory.go
package lobby

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/tycoon/internal/game"
	"github.com/jason-s-yu/tycoon/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	DefaultGrace             = 10 * time.Second
	DefaultSweepInterval     = 5 * time.Second
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultMaxCapacity       = 8

	storeTimeout = 5 * time.Second
)

var (
	// ErrInvalidCapacity is returned by CreateRoom for capacities outside the allowed range.
	ErrInvalidCapacity = errors.New("invalid room capacity")
	// ErrRoomNotFound is returned for ids the directory does not know.
	ErrRoomNotFound = &game.Rejection{Reason: game.RoomNotFound, Message: "no such room"}
)

// RoomStore persists room metadata. Writes are best effort.
type RoomStore interface {
	InsertRoom(ctx context.Context, room models.RoomSummary) error
	UpdateRoomState(ctx context.Context, roomID uuid.UUID, state string) error
	RecordGameResult(ctx context.Context, roomID, winner uuid.UUID, standings []models.Player) error
}

// TickerCreator returns a channel that fires every d.
type TickerCreator interface {
	Create(d time.Duration) <-chan time.Time
}

type realTickerCreator struct{}

func (realTickerCreator) Create(d time.Duration) <-chan time.Time {
	return time.NewTicker(d).C
}

// Config controls room creation and the background loops.
type Config struct {
	Grace             time.Duration // how long a room may sit empty before it is swept
	SweepInterval     time.Duration
	HeartbeatInterval time.Duration
	DefaultCapacity   int
	MaxCapacity       int

	// Room is the template every new room is built from. Name, Capacity and OnStateChange are set per room.
	Room game.RoomConfig

	Store   RoomStore // optional
	Tickers TickerCreator
	Logger  *logrus.Logger
}

type entry struct {
	room   *game.Room
	cancel context.CancelFunc
}

// Directory maps room ids to running rooms. Rooms are kept in creation order,
// which is the order quick-join considers them in.
type Directory struct {
	cfg Config
	log *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	rooms map[uuid.UUID]*entry
	order []uuid.UUID
	seq   int

	writes chan func(ctx context.Context, s RoomStore) error
}

// NewDirectory builds an empty Directory. Rooms run until Close is called.
func NewDirectory(cfg Config) *Directory {
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.MaxCapacity <= 0 {
		cfg.MaxCapacity = DefaultMaxCapacity
	}
	if cfg.DefaultCapacity <= 0 {
		cfg.DefaultCapacity = game.DefaultCapacity
	}
	if cfg.Tickers == nil {
		cfg.Tickers = realTickerCreator{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Room.Logger == nil {
		cfg.Room.Logger = cfg.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Directory{
		cfg:    cfg,
		log:    cfg.Logger.WithField("component", "directory"),
		ctx:    ctx,
		cancel: cancel,
		rooms:  make(map[uuid.UUID]*entry),
	}
	if cfg.Store != nil {
		d.writes = make(chan func(ctx context.Context, s RoomStore) error, 256)
		go d.writeLoop()
	}
	return d
}

// CreateRoom starts a new empty room. A zero capacity takes the default.
func (d *Directory) CreateRoom(name string, capacity int) (*game.Room, error) {
	if capacity == 0 {
		capacity = d.cfg.DefaultCapacity
	}
	if capacity < 2 || capacity > d.cfg.MaxCapacity {
		return nil, fmt.Errorf("%w: %d not in [2, %d]", ErrInvalidCapacity, capacity, d.cfg.MaxCapacity)
	}

	d.mu.Lock()
	if d.ctx.Err() != nil {
		d.mu.Unlock()
		return nil, game.ErrRoomClosed
	}
	d.seq++
	if name == "" {
		name = fmt.Sprintf("Room %d", d.seq)
	}
	d.mu.Unlock()

	cfg := d.cfg.Room
	cfg.Name = name
	cfg.Capacity = capacity
	cfg.OnStateChange = d.onStateChange

	room, err := game.NewRoom(uuid.New(), cfg)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	ctx, cancel := context.WithCancel(d.ctx)
	d.rooms[room.ID] = &entry{room: room, cancel: cancel}
	d.order = append(d.order, room.ID)
	go room.Run(ctx)

	d.log.WithFields(logrus.Fields{"room": room.ID, "name": name, "capacity": capacity}).Info("Room created")
	d.persist(func(ctx context.Context, s RoomStore) error {
		return s.InsertRoom(ctx, Summarize(room.Info()))
	})
	return room, nil
}

// GetRoom looks up a room by id.
func (d *Directory) GetRoom(id uuid.UUID) (*game.Room, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.rooms[id]
	if !ok {
		return nil, false
	}
	return e.room, true
}

// JoinRoom adds clientID to the room with the given id.
func (d *Directory) JoinRoom(ctx context.Context, roomID, clientID uuid.UUID, name string) (*game.Room, *game.GameStateView, error) {
	room, ok := d.GetRoom(roomID)
	if !ok {
		return nil, nil, ErrRoomNotFound
	}
	view, err := room.Join(ctx, clientID, name)
	if err != nil {
		return nil, nil, err
	}
	return room, view, nil
}

// FindAvailableRoom returns the oldest room that is Empty or Waiting with a free seat.
func (d *Directory) FindAvailableRoom() (*game.Room, bool) {
	rooms := d.available()
	if len(rooms) == 0 {
		return nil, false
	}
	return rooms[0], true
}

func (d *Directory) available() []*game.Room {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*game.Room
	for _, id := range d.order {
		room := d.rooms[id].room
		info := room.Info()
		if (info.State == game.StateEmpty || info.State == game.StateWaiting) && info.Members < info.Capacity {
			out = append(out, room)
		}
	}
	return out
}

// JoinRandom places clientID in the first room that accepts it, creating a room when none does.
func (d *Directory) JoinRandom(ctx context.Context, clientID uuid.UUID, name string) (*game.Room, *game.GameStateView, error) {
	for _, room := range d.available() {
		view, err := room.Join(ctx, clientID, name)
		if err == nil {
			return room, view, nil
		}
		switch game.ReasonOf(err) {
		case game.RoomFull, game.WrongRoomState, game.RoomNotFound:
			// Lost a race with another join or the sweeper; try the next room.
			continue
		}
		return nil, nil, err
	}

	room, err := d.CreateRoom("", 0)
	if err != nil {
		return nil, nil, err
	}
	view, err := room.Join(ctx, clientID, name)
	if err != nil {
		return nil, nil, err
	}
	return room, view, nil
}

// SweepEmptyRooms stops and forgets rooms that have been empty for longer than the grace period.
// It returns how many rooms were removed.
func (d *Directory) SweepEmptyRooms(ctx context.Context, now time.Time) int {
	d.mu.Lock()
	candidates := make([]*game.Room, 0)
	for _, id := range d.order {
		room := d.rooms[id].room
		info := room.Info()
		if info.Members == 0 && !info.EmptySince.IsZero() && now.Sub(info.EmptySince) >= d.cfg.Grace {
			candidates = append(candidates, room)
		}
	}
	d.mu.Unlock()

	removed := 0
	for _, room := range candidates {
		// RetireIfIdle re-checks on the room goroutine.
		retired, err := room.RetireIfIdle(ctx, now, d.cfg.Grace)
		if err != nil {
			d.log.WithField("room", room.ID).WithError(err).Warn("Failed to check idle room")
			continue
		}
		if !retired {
			continue
		}
		d.remove(room.ID)
		removed++
	}
	return removed
}

func (d *Directory) remove(id uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.rooms[id]
	if !ok {
		return
	}
	e.cancel()
	delete(d.rooms, id)
	for i, rid := range d.order {
		if rid == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	d.log.WithField("room", id).Info("Room swept")
}

// List returns a summary of every room in creation order.
func (d *Directory) List() []models.RoomSummary {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.RoomSummary, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, Summarize(d.rooms[id].room.Info()))
	}
	return out
}

// Len returns the number of rooms.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rooms)
}

// Run sweeps empty rooms and sends heartbeats until ctx is cancelled, then closes every room.
func (d *Directory) Run(ctx context.Context) error {
	sweep := d.cfg.Tickers.Create(d.cfg.SweepInterval)
	heartbeat := d.cfg.Tickers.Create(d.cfg.HeartbeatInterval)
	defer d.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-sweep:
			if n := d.SweepEmptyRooms(ctx, now); n > 0 {
				d.log.WithField("removed", n).Debug("Swept empty rooms")
			}
		case <-heartbeat:
			d.heartbeat()
		}
	}
}

func (d *Directory) heartbeat() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range d.order {
		room := d.rooms[id].room
		if room.Info().Members == 0 {
			continue
		}
		if !room.Heartbeat() {
			d.log.WithField("room", id).Warn("Room queue full, skipping heartbeat")
		}
	}
}

// Close stops every room and waits for them to exit.
func (d *Directory) Close() {
	d.mu.Lock()
	d.cancel()
	rooms := make([]*game.Room, 0, len(d.rooms))
	for _, e := range d.rooms {
		rooms = append(rooms, e.room)
	}
	d.mu.Unlock()

	for _, room := range rooms {
		<-room.Done()
	}
}

func (d *Directory) onStateChange(roomID uuid.UUID, state game.RoomState) {
	d.persist(func(ctx context.Context, s RoomStore) error {
		return s.UpdateRoomState(ctx, roomID, state.String())
	})
	if state != game.StateEnded {
		return
	}
	d.persist(func(ctx context.Context, s RoomStore) error {
		room, ok := d.GetRoom(roomID)
		if !ok {
			return ErrRoomNotFound
		}
		view, err := room.Snapshot(ctx)
		if err != nil {
			return err
		}
		return s.RecordGameResult(ctx, roomID, view.Winner, view.Players)
	})
}

// persist queues a store write when a store is configured. Writes run in order on one goroutine.
func (d *Directory) persist(write func(ctx context.Context, s RoomStore) error) {
	if d.writes == nil {
		return
	}
	select {
	case d.writes <- write:
	default:
		d.log.Warn("Room store queue full, dropping write")
	}
}

func (d *Directory) writeLoop() {
	for {
		select {
		case <-d.ctx.Done():
			return
		case write := <-d.writes:
			ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			if err := write(ctx, d.cfg.Store); err != nil {
				d.log.WithError(err).Warn("Failed to persist room metadata")
			}
			cancel()
		}
	}
}

// Summarize converts a room summary into its wire form.
func Summarize(info game.Info) models.RoomSummary {
	return models.RoomSummary{
		ID:        info.ID,
		Name:      info.Name,
		State:     info.State.String(),
		Capacity:  info.Capacity,
		Members:   info.Members,
		HostID:    info.HostID,
		CreatedAt: info.CreatedAt,
	}
}
