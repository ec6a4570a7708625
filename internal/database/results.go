// internal/database/results.go
package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/tycoon/internal/models"
)

// RecordGameResult persists the final outcome of a room's game: the winner (uuid.Nil when
// nobody survived) and every remaining member's final standing.
func (s *Store) RecordGameResult(ctx context.Context, roomID, winner uuid.UUID, standings []models.Player) error {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		upsertGame := `
			INSERT INTO games (id, status, end_time, winner_id)
			VALUES ($1, 'completed', NOW(), $2)
			ON CONFLICT (id) DO UPDATE SET status = 'completed', end_time = NOW(), winner_id = $2
		`
		if _, e := tx.Exec(ctx, upsertGame, roomID, nullableID(winner)); e != nil {
			return e
		}

		for _, pl := range standings {
			owned, e := json.Marshal(pl.Owned)
			if e != nil {
				return e
			}
			q := `
				INSERT INTO game_results (game_id, player_id, name, balance, owned, bankrupt, did_win)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (game_id, player_id)
				DO UPDATE SET balance = $4, owned = $5, bankrupt = $6, did_win = $7
			`
			if _, e := tx.Exec(ctx, q, roomID, pl.ID, pl.Name, pl.Balance, owned, pl.Bankrupt, pl.ID == winner); e != nil {
				return e
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx upsert game or results: %w", err)
	}
	return nil
}
