// internal/lobby/directory_test.go
package lobby

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/tycoon/internal/game"
	"github.com/jason-s-yu/tycoon/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTickerCreator struct {
	mock.Mock
}

func (m *MockTickerCreator) Create(d time.Duration) <-chan time.Time {
	args := m.Called(d)
	return args.Get(0).(chan time.Time)
}

type MockRoomStore struct {
	mock.Mock
	states chan string
}

func (m *MockRoomStore) InsertRoom(ctx context.Context, room models.RoomSummary) error {
	return m.Called(room.Name).Error(0)
}

func (m *MockRoomStore) UpdateRoomState(ctx context.Context, roomID uuid.UUID, state string) error {
	err := m.Called(roomID, state).Error(0)
	m.states <- state
	return err
}

func (m *MockRoomStore) RecordGameResult(ctx context.Context, roomID, winner uuid.UUID, standings []models.Player) error {
	err := m.Called(roomID, winner, len(standings)).Error(0)
	m.states <- "result"
	return err
}

// countingSender counts frames per client.
type countingSender struct {
	mu     sync.Mutex
	frames map[uuid.UUID]int
}

func (s *countingSender) Send(_ context.Context, id uuid.UUID, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames[id]++
	return nil
}

func (s *countingSender) count(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames[id]
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func setupDirectory(t *testing.T, cfg Config) *Directory {
	t.Helper()
	cfg.Logger = quietLogger()
	d := NewDirectory(cfg)
	t.Cleanup(d.Close)
	return d
}

func TestCreateAndGetRoom(t *testing.T) {
	d := setupDirectory(t, Config{})

	room, err := d.CreateRoom("table", 0)
	require.NoError(t, err)
	assert.Equal(t, game.DefaultCapacity, room.Info().Capacity)
	assert.Equal(t, game.StateEmpty, room.Info().State)

	got, ok := d.GetRoom(room.ID)
	require.True(t, ok)
	assert.Same(t, room, got)

	_, ok = d.GetRoom(uuid.New())
	assert.False(t, ok)

	_, err = d.CreateRoom("tiny", 1)
	assert.ErrorIs(t, err, ErrInvalidCapacity)
	_, err = d.CreateRoom("huge", DefaultMaxCapacity+1)
	assert.ErrorIs(t, err, ErrInvalidCapacity)

	unnamed, err := d.CreateRoom("", 2)
	require.NoError(t, err)
	assert.Equal(t, "Room 2", unnamed.Name)

	list := d.List()
	require.Len(t, list, 2)
	assert.Equal(t, "table", list[0].Name)
	assert.Equal(t, "empty", list[0].State)
}

func TestFindAvailableRoomIsFirstFit(t *testing.T) {
	ctx := context.Background()
	d := setupDirectory(t, Config{})

	_, ok := d.FindAvailableRoom()
	assert.False(t, ok)

	first, err := d.CreateRoom("first", 2)
	require.NoError(t, err)
	second, err := d.CreateRoom("second", 2)
	require.NoError(t, err)

	got, ok := d.FindAvailableRoom()
	require.True(t, ok)
	assert.Equal(t, first.ID, got.ID)

	_, err = first.Join(ctx, uuid.New(), "Alice")
	require.NoError(t, err)
	_, err = first.Join(ctx, uuid.New(), "Bob")
	require.NoError(t, err)

	got, ok = d.FindAvailableRoom()
	require.True(t, ok)
	assert.Equal(t, second.ID, got.ID, "full rooms are skipped")
}

func TestJoinRandomCreatesWhenNothingFits(t *testing.T) {
	ctx := context.Background()
	d := setupDirectory(t, Config{DefaultCapacity: 2})

	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	r1, view, err := d.JoinRandom(ctx, alice, "Alice")
	require.NoError(t, err)
	assert.Equal(t, alice, view.HostID)

	r2, _, err := d.JoinRandom(ctx, bob, "Bob")
	require.NoError(t, err)
	assert.Equal(t, r1.ID, r2.ID)

	r3, _, err := d.JoinRandom(ctx, carol, "Carol")
	require.NoError(t, err)
	assert.NotEqual(t, r1.ID, r3.ID, "first room is full")
	assert.Equal(t, 2, d.Len())

	_, _, err = d.JoinRandom(ctx, carol, "Carol")
	require.Error(t, err)
	assert.Equal(t, game.DuplicateClient, game.ReasonOf(err))
}

func TestSweepWaitsForGracePeriod(t *testing.T) {
	ctx := context.Background()
	d := setupDirectory(t, Config{Grace: time.Minute})

	room, err := d.CreateRoom("table", 0)
	require.NoError(t, err)
	occupied, err := d.CreateRoom("busy", 0)
	require.NoError(t, err)
	_, err = occupied.Join(ctx, uuid.New(), "Alice")
	require.NoError(t, err)

	alice := uuid.New()
	_, err = room.Join(ctx, alice, "Alice")
	require.NoError(t, err)
	_, err = room.Leave(ctx, alice)
	require.NoError(t, err)

	assert.Zero(t, d.SweepEmptyRooms(ctx, time.Now()), "never removed right after the last member leaves")
	assert.Equal(t, 2, d.Len())

	assert.Equal(t, 1, d.SweepEmptyRooms(ctx, time.Now().Add(2*time.Minute)))
	_, ok := d.GetRoom(room.ID)
	assert.False(t, ok)
	_, ok = d.GetRoom(occupied.ID)
	assert.True(t, ok)

	select {
	case <-room.Done():
	case <-time.After(time.Second):
		t.Fatal("swept room did not stop")
	}
}

func TestRunDrivesSweepAndHeartbeat(t *testing.T) {
	tickers := &MockTickerCreator{}
	sweep := make(chan time.Time)
	heartbeat := make(chan time.Time)
	tickers.On("Create", DefaultSweepInterval).Return(sweep)
	tickers.On("Create", DefaultHeartbeatInterval).Return(heartbeat)

	sender := &countingSender{frames: make(map[uuid.UUID]int)}
	d := setupDirectory(t, Config{
		Grace:   time.Second,
		Tickers: tickers,
		Room:    game.RoomConfig{Sender: sender},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	empty, err := d.CreateRoom("empty", 0)
	require.NoError(t, err)
	live, err := d.CreateRoom("live", 0)
	require.NoError(t, err)
	alice := uuid.New()
	_, err = live.Join(context.Background(), alice, "Alice")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sender.count(alice) == 1 }, time.Second, 5*time.Millisecond)

	heartbeat <- time.Now()
	require.Eventually(t, func() bool { return sender.count(alice) == 2 }, time.Second, 5*time.Millisecond)

	sweep <- time.Now().Add(time.Hour)
	require.Eventually(t, func() bool { return d.Len() == 1 }, time.Second, 5*time.Millisecond)
	_, ok := d.GetRoom(empty.ID)
	assert.False(t, ok)

	cancel()
	require.NoError(t, <-done)
	<-live.Done()
	tickers.AssertExpectations(t)
}

func TestStoreReceivesLifecycle(t *testing.T) {
	store := &MockRoomStore{states: make(chan string, 8)}
	store.On("InsertRoom", "table").Return(nil)
	store.On("UpdateRoomState", mock.Anything, mock.Anything).Return(nil)

	d := setupDirectory(t, Config{Store: store})
	room, err := d.CreateRoom("table", 0)
	require.NoError(t, err)
	_, err = room.Join(context.Background(), uuid.New(), "Alice")
	require.NoError(t, err)

	select {
	case state := <-store.states:
		assert.Equal(t, "waiting", state)
	case <-time.After(time.Second):
		t.Fatal("state change was not persisted")
	}
	store.AssertCalled(t, "InsertRoom", "table")
	store.AssertCalled(t, "UpdateRoomState", room.ID, "waiting")
}

func TestJoinRoomAndGameResult(t *testing.T) {
	ctx := context.Background()
	store := &MockRoomStore{states: make(chan string, 8)}
	store.On("InsertRoom", mock.Anything).Return(nil)
	store.On("UpdateRoomState", mock.Anything, mock.Anything).Return(nil)

	d := setupDirectory(t, Config{Store: store})

	_, _, err := d.JoinRoom(ctx, uuid.New(), uuid.New(), "Alice")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.Equal(t, game.RoomNotFound, game.ReasonOf(err))

	room, err := d.CreateRoom("table", 2)
	require.NoError(t, err)
	alice, bob := uuid.New(), uuid.New()
	store.On("RecordGameResult", room.ID, alice, 1).Return(nil)

	_, _, err = d.JoinRoom(ctx, room.ID, alice, "Alice")
	require.NoError(t, err)
	_, _, err = d.JoinRoom(ctx, room.ID, bob, "Bob")
	require.NoError(t, err)
	_, err = room.Start(ctx, alice)
	require.NoError(t, err)
	res, err := room.Leave(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, game.WinnerDeclared, res)

	var got []string
	for len(got) < 4 {
		select {
		case state := <-store.states:
			got = append(got, state)
		case <-time.After(time.Second):
			t.Fatalf("only saw %v", got)
		}
	}
	assert.Equal(t, []string{"waiting", "playing", "ended", "result"}, got)
	store.AssertCalled(t, "RecordGameResult", room.ID, alice, 1)
}
