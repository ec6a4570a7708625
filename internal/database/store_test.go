// internal/database/store_test.go
package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/tycoon/internal/cache"
	"github.com/jason-s-yu/tycoon/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupStore connects to DATABASE_URL, skipping when it is not set.
func setupStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func TestRoomLifecycleRows(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	room := models.RoomSummary{
		ID:        uuid.New(),
		Name:      "table",
		State:     "empty",
		Capacity:  4,
		CreatedAt: time.Now().Add(time.Hour), // sorts first
	}
	require.NoError(t, store.InsertRoom(ctx, room))
	require.NoError(t, store.UpdateRoomState(ctx, room.ID, "waiting"))

	rooms, err := store.ListRooms(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, room.ID, rooms[0].ID)
	assert.Equal(t, "waiting", rooms[0].State)
	assert.Equal(t, uuid.Nil, rooms[0].HostID)
}

func TestInsertActionsFinalizesGame(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	roomID, winner := uuid.New(), uuid.New()
	now := time.Now().UnixMilli()
	batch := []cache.GameActionRecord{
		{RoomID: roomID, ActionIndex: 1, ActorID: winner, ActionType: "start_game", Timestamp: now},
		{RoomID: roomID, ActionIndex: 2, ActorID: winner, ActionType: "roll", ActionPayload: map[string]interface{}{"dice": []int{3, 4}}, Timestamp: now},
		{RoomID: roomID, ActionIndex: 3, ActionType: cache.ActionEndGame, ActionPayload: map[string]interface{}{"winner": winner.String()}, Timestamp: now},
	}
	require.NoError(t, store.InsertActions(ctx, batch))
	require.NoError(t, store.InsertActions(ctx, batch), "replayed batches are ignored")

	var (
		status string
		got    uuid.UUID
		count  int
	)
	require.NoError(t, store.pool.QueryRow(ctx, `SELECT status, winner_id FROM games WHERE id = $1`, roomID).Scan(&status, &got))
	assert.Equal(t, "completed", status)
	assert.Equal(t, winner, got)

	require.NoError(t, store.pool.QueryRow(ctx, `SELECT COUNT(*) FROM game_actions WHERE game_id = $1`, roomID).Scan(&count))
	assert.Equal(t, 3, count)

	require.NoError(t, store.MarkAbandoned(ctx, roomID))
	require.NoError(t, store.pool.QueryRow(ctx, `SELECT status FROM games WHERE id = $1`, roomID).Scan(&status))
	assert.Equal(t, "completed", status, "completed games are never abandoned")
}

func TestWinnerOf(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, &id, winnerOf(cache.GameActionRecord{ActionPayload: map[string]interface{}{"winner": id.String()}}))
	assert.Nil(t, winnerOf(cache.GameActionRecord{ActionPayload: map[string]interface{}{"winner": uuid.Nil.String()}}))
	assert.Nil(t, winnerOf(cache.GameActionRecord{}))
}

func TestRecordGameResult(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	roomID, winner, loser := uuid.New(), uuid.New(), uuid.New()
	standings := []models.Player{
		{ID: winner, Name: "Alice", Balance: 2100, Owned: []int{1, 3}},
		{ID: loser, Name: "Bob", Bankrupt: true},
	}
	require.NoError(t, store.RecordGameResult(ctx, roomID, winner, standings))

	var didWin bool
	require.NoError(t, store.pool.QueryRow(ctx,
		`SELECT did_win FROM game_results WHERE game_id = $1 AND player_id = $2`, roomID, loser).Scan(&didWin))
	assert.False(t, didWin)
	require.NoError(t, store.pool.QueryRow(ctx,
		`SELECT did_win FROM game_results WHERE game_id = $1 AND player_id = $2`, roomID, winner).Scan(&didWin))
	assert.True(t, didWin)
}
