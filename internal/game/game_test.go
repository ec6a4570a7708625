// internal/game/game_test.go
package game

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/tycoon/internal/cache"
	"github.com/jason-s-yu/tycoon/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedDice replays queued rolls, then falls back to a non-double 1+2.
type fixedDice struct {
	mu    sync.Mutex
	rolls [][2]int
}

func (d *fixedDice) push(rolls ...[2]int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rolls = append(d.rolls, rolls...)
}

func (d *fixedDice) Roll() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.rolls) == 0 {
		return 1, 2
	}
	r := d.rolls[0]
	d.rolls = d.rolls[1:]
	return r[0], r[1]
}

// mockSender records delivered messages instead of writing to a socket.
// Clients listed in stalled never complete a write.
type mockSender struct {
	mu      sync.Mutex
	msgs    map[uuid.UUID][]BroadcastMessage
	stalled map[uuid.UUID]bool
}

func newMockSender() *mockSender {
	return &mockSender{
		msgs:    make(map[uuid.UUID][]BroadcastMessage),
		stalled: make(map[uuid.UUID]bool),
	}
}

func (s *mockSender) stall(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stalled[id] = true
}

func (s *mockSender) Send(ctx context.Context, clientID uuid.UUID, data []byte) error {
	s.mu.Lock()
	stalled := s.stalled[clientID]
	s.mu.Unlock()
	if stalled {
		<-ctx.Done()
		return ctx.Err()
	}
	var msg BroadcastMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs[clientID] = append(s.msgs[clientID], msg)
	return nil
}

func (s *mockSender) kinds(id uuid.UUID) []EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventKind, 0, len(s.msgs[id]))
	for _, m := range s.msgs[id] {
		out = append(out, m.Kind)
	}
	return out
}

// mockActionLog collects published action records.
type mockActionLog struct {
	mu   sync.Mutex
	recs []cache.GameActionRecord
}

func (l *mockActionLog) Publish(rec cache.GameActionRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recs = append(l.recs, rec)
}

func (l *mockActionLog) records() []cache.GameActionRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]cache.GameActionRecord, len(l.recs))
	copy(out, l.recs)
	return out
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// setupTestRoom starts a room with a mock sender and stops it when the test ends.
func setupTestRoom(t *testing.T, cfg RoomConfig) (*Room, *mockSender) {
	t.Helper()
	sender := newMockSender()
	cfg.Sender = sender
	if cfg.BroadcastTimeout == 0 {
		cfg.BroadcastTimeout = 50 * time.Millisecond
	}
	if cfg.Dice == nil {
		cfg.Dice = &fixedDice{}
	}
	cfg.Logger = quietLogger()

	r, err := NewRoom(uuid.New(), cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-r.Done()
	})
	return r, sender
}

func joinAll(t *testing.T, r *Room, names ...string) []uuid.UUID {
	t.Helper()
	ids := make([]uuid.UUID, len(names))
	for i, name := range names {
		ids[i] = uuid.New()
		_, err := r.Join(context.Background(), ids[i], name)
		require.NoError(t, err)
	}
	return ids
}

func assertReason(t *testing.T, err error, reason Reason) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, reason, ReasonOf(err), "unexpected error: %v", err)
}

func TestStartThenLateJoinIsRejected(t *testing.T) {
	ctx := context.Background()
	r, _ := setupTestRoom(t, RoomConfig{Capacity: 4})
	ids := joinAll(t, r, "Alice", "Bob")

	view, err := r.Start(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "playing", view.State)
	assert.Equal(t, 0, view.TurnIndex)
	assert.Equal(t, ids[0], view.TurnHolder)
	assert.Equal(t, 1, view.Round)
	for _, p := range view.Players {
		assert.Equal(t, 1500, p.Balance)
		assert.Zero(t, p.Position)
	}

	_, err = r.Join(ctx, uuid.New(), "Carol")
	assertReason(t, err, WrongRoomState)
}

func TestStartNeedsTwoPlayers(t *testing.T) {
	ctx := context.Background()
	r, _ := setupTestRoom(t, RoomConfig{Capacity: 2})
	alice := joinAll(t, r, "Alice")[0]

	ok, err := r.CanStart(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = r.Start(ctx, alice)
	assertReason(t, err, NotEnoughPlayers)

	joinAll(t, r, "Bob")
	ok, err = r.CanStart(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = r.Join(ctx, uuid.New(), "Carol")
	assertReason(t, err, RoomFull)
}

func TestStartIsHostOnly(t *testing.T) {
	ctx := context.Background()
	r, _ := setupTestRoom(t, RoomConfig{})
	ids := joinAll(t, r, "Alice", "Bob")

	_, err := r.Start(ctx, ids[1])
	assertReason(t, err, NotHost)

	_, err = r.Start(ctx, uuid.New())
	assertReason(t, err, NotInRoom)

	_, err = r.Start(ctx, ids[0])
	require.NoError(t, err)

	_, err = r.Start(ctx, ids[0])
	assertReason(t, err, WrongRoomState)
}

func TestDuplicateJoinRejected(t *testing.T) {
	ctx := context.Background()
	r, _ := setupTestRoom(t, RoomConfig{})
	alice := joinAll(t, r, "Alice")[0]

	_, err := r.Join(ctx, alice, "Alice again")
	assertReason(t, err, DuplicateClient)
}

func TestTurnHolderDisconnectMidGame(t *testing.T) {
	ctx := context.Background()
	r, _ := setupTestRoom(t, RoomConfig{Capacity: 4})
	ids := joinAll(t, r, "Alice", "Bob", "Carol", "Dave")
	_, err := r.Start(ctx, ids[0])
	require.NoError(t, err)

	// Alice holds the turn and drops; Bob inherits it with three players left.
	res, err := r.Leave(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, RoomContinues, res)

	view, err := r.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "playing", view.State)
	require.Len(t, view.Players, 3)
	assert.Equal(t, ids[1], view.TurnHolder)
	assert.Equal(t, ids[1], view.HostID, "earliest remaining member becomes host")

	_, err = r.Apply(ctx, ids[1], models.GameAction{ActionType: models.ActionRoll})
	require.NoError(t, err)

	_, err = r.Leave(ctx, ids[2])
	require.NoError(t, err)
	res, err = r.Leave(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, WinnerDeclared, res)

	view, err = r.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ended", view.State)
	assert.Equal(t, ids[3], view.Winner)
}

func TestThirdDoubleSendsToJail(t *testing.T) {
	ctx := context.Background()
	dice := &fixedDice{}
	r, _ := setupTestRoom(t, RoomConfig{Dice: dice})
	ids := joinAll(t, r, "Alice", "Bob")
	_, err := r.Start(ctx, ids[0])
	require.NoError(t, err)

	dice.push([2]int{1, 1}, [2]int{2, 2}, [2]int{3, 3})
	roll := models.GameAction{ActionType: models.ActionRoll}

	out, err := r.Apply(ctx, ids[0], roll)
	require.NoError(t, err)
	alice, _ := out.State.Player(ids[0])
	assert.Equal(t, 2, alice.Position)
	assert.Equal(t, 1, alice.Doubles)

	_, err = r.Apply(ctx, ids[0], roll)
	require.NoError(t, err)

	out, err = r.Apply(ctx, ids[0], roll)
	require.NoError(t, err)
	assert.Equal(t, EventSentToJail, out.Kind)

	alice, _ = out.State.Player(ids[0])
	assert.True(t, alice.InJail)
	assert.Equal(t, 10, alice.Position)
	assert.Zero(t, alice.Doubles)
	assert.Equal(t, ids[1], out.State.TurnHolder, "turn passes even though the last roll was a double")
}

func TestLeaveIsRejectedForNonMembers(t *testing.T) {
	ctx := context.Background()
	r, _ := setupTestRoom(t, RoomConfig{})
	alice := joinAll(t, r, "Alice")[0]

	res, err := r.Leave(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, RoomNowEmpty, res)
	assert.Equal(t, StateEmpty, r.Info().State)

	_, err = r.Leave(ctx, alice)
	assertReason(t, err, NotInRoom)
}

func TestRetireIfIdle(t *testing.T) {
	ctx := context.Background()
	r, _ := setupTestRoom(t, RoomConfig{})
	alice := joinAll(t, r, "Alice")[0]

	retired, err := r.RetireIfIdle(ctx, time.Now().Add(time.Hour), time.Second)
	require.NoError(t, err)
	assert.False(t, retired, "occupied rooms are never retired")

	_, err = r.Leave(ctx, alice)
	require.NoError(t, err)
	emptySince := r.Info().EmptySince
	require.False(t, emptySince.IsZero())

	retired, err = r.RetireIfIdle(ctx, emptySince.Add(500*time.Millisecond), time.Second)
	require.NoError(t, err)
	assert.False(t, retired, "still inside the grace period")

	retired, err = r.RetireIfIdle(ctx, emptySince.Add(2*time.Second), time.Second)
	require.NoError(t, err)
	assert.True(t, retired)

	_, err = r.Join(ctx, uuid.New(), "Bob")
	assert.ErrorIs(t, err, ErrRoomClosed)
	assertReason(t, err, RoomNotFound)
}

func TestFullQueueFailsFast(t *testing.T) {
	r, _ := setupTestRoom(t, RoomConfig{QueueSize: 1})

	release := make(chan struct{})
	defer close(release)
	r.inbox <- func() { <-release }
	require.Eventually(t, func() bool { return len(r.inbox) == 0 }, time.Second, time.Millisecond)
	r.inbox <- func() {}

	_, err := r.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrRoomBusy)
	assertReason(t, err, RoomBusy)
	assert.False(t, r.Heartbeat())
}

func TestBroadcastBacklogFailsFast(t *testing.T) {
	ctx := context.Background()
	r, sender := setupTestRoom(t, RoomConfig{BroadcastBacklog: 2, BroadcastTimeout: 10 * time.Second})

	// The first member never drains, so deliveries pile up behind its join.
	slow := uuid.New()
	sender.stall(slow)
	_, err := r.Join(ctx, slow, "Slow")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return r.broadcaster.Pending() == 0 }, time.Second, time.Millisecond)

	ids := joinAll(t, r, "Bob", "Carol")
	assert.Equal(t, 2, r.broadcaster.Pending())

	_, err = r.Snapshot(ctx)
	assert.ErrorIs(t, err, ErrRoomBusy)
	assertReason(t, err, RoomBusy)
	assert.False(t, r.Heartbeat())

	_, err = r.Leave(ctx, ids[1])
	require.NoError(t, err, "leaving is never refused")
	assert.Equal(t, 3, r.broadcaster.Pending())
}

func TestActionsProcessedInArrivalOrder(t *testing.T) {
	ctx := context.Background()
	actions := &mockActionLog{}
	r, _ := setupTestRoom(t, RoomConfig{ActionLog: actions})
	ids := joinAll(t, r, "Alice", "Bob")
	_, err := r.Start(ctx, ids[0])
	require.NoError(t, err)

	// Hold the room goroutine so both requests queue up behind it.
	release := make(chan struct{})
	r.inbox <- func() { <-release }
	require.Eventually(t, func() bool { return len(r.inbox) == 0 }, time.Second, time.Millisecond)

	var wg sync.WaitGroup
	chat := func(id uuid.UUID, msg string) {
		defer wg.Done()
		_, err := r.Apply(ctx, id, models.GameAction{ActionType: models.ActionChat, Payload: map[string]interface{}{"msg": msg}})
		assert.NoError(t, err)
	}
	wg.Add(2)
	go chat(ids[1], "first")
	require.Eventually(t, func() bool { return len(r.inbox) == 1 }, time.Second, time.Millisecond)
	go chat(ids[0], "second")
	require.Eventually(t, func() bool { return len(r.inbox) == 2 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	var chats []cache.GameActionRecord
	for _, rec := range actions.records() {
		if rec.ActionType == string(models.ActionChat) {
			chats = append(chats, rec)
		}
	}
	require.Len(t, chats, 2)
	assert.Equal(t, ids[1], chats[0].ActorID)
	assert.Equal(t, ids[0], chats[1].ActorID)
	assert.Less(t, chats[0].ActionIndex, chats[1].ActionIndex)
}

func TestUnresponsiveMemberIsRemoved(t *testing.T) {
	ctx := context.Background()
	evicted := make(chan uuid.UUID, 1)
	r, sender := setupTestRoom(t, RoomConfig{
		BroadcastTimeout: 50 * time.Millisecond,
		OnEvict:          func(id uuid.UUID) { evicted <- id },
	})

	carol := uuid.New()
	sender.stall(carol)
	ids := joinAll(t, r, "Alice", "Bob")
	_, err := r.Join(ctx, carol, "Carol")
	require.NoError(t, err)

	select {
	case id := <-evicted:
		assert.Equal(t, carol, id)
	case <-time.After(2 * time.Second):
		t.Fatal("unresponsive member was not evicted")
	}

	view, err := r.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, view.Players, 2)
	assert.Equal(t, ids[0], view.Players[0].ID)
	assert.Equal(t, ids[1], view.Players[1].ID)

	// The two live members saw Carol arrive and leave, in that order.
	require.Eventually(t, func() bool {
		kinds := sender.kinds(ids[1])
		return len(kinds) > 0 && kinds[len(kinds)-1] == EventPlayerLeft
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []EventKind{EventPlayerJoined, EventPlayerJoined, EventPlayerLeft}, sender.kinds(ids[1]))
}

func TestHeartbeatBroadcastsState(t *testing.T) {
	r, sender := setupTestRoom(t, RoomConfig{})
	alice := joinAll(t, r, "Alice")[0]

	require.True(t, r.Heartbeat())
	require.Eventually(t, func() bool {
		kinds := sender.kinds(alice)
		return len(kinds) == 2 && kinds[1] == EventHeartbeat
	}, time.Second, 5*time.Millisecond)
}

func TestGameEndIsLogged(t *testing.T) {
	ctx := context.Background()
	actions := &mockActionLog{}
	changes := make(chan RoomState, 8)
	r, _ := setupTestRoom(t, RoomConfig{
		ActionLog:     actions,
		OnStateChange: func(_ uuid.UUID, s RoomState) { changes <- s },
	})
	ids := joinAll(t, r, "Alice", "Bob")
	_, err := r.Start(ctx, ids[0])
	require.NoError(t, err)
	_, err = r.Leave(ctx, ids[1])
	require.NoError(t, err)

	assert.Equal(t, StateWaiting, <-changes)
	assert.Equal(t, StatePlaying, <-changes)
	assert.Equal(t, StateEnded, <-changes)

	recs := actions.records()
	last := recs[len(recs)-1]
	assert.Equal(t, cache.ActionEndGame, last.ActionType)
	for i, rec := range recs {
		assert.Equal(t, i+1, rec.ActionIndex)
		assert.Equal(t, r.ID, rec.RoomID)
	}
}
