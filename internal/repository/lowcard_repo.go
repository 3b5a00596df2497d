package repository

import (
	"context"

	"chatgames/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type LowcardRepository struct {
	db *pgxpool.Pool
}

func NewLowcardRepository(db *pgxpool.Pool) *LowcardRepository {
	return &LowcardRepository{db: db}
}

// CreateGame inserts the lowcard_games row at game start (status waiting).
func (r *LowcardRepository) CreateGame(ctx context.Context, g *domain.LowcardGame) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO lowcard_games (room_id, started_by, entry_amount, pot, status, player_count)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		g.RoomID, g.StartedBy, g.EntryAmount, g.Pot, g.Status, g.PlayerCount,
	).Scan(&g.ID, &g.CreatedAt)
}

// FinishGame closes the row with the final numbers.
func (r *LowcardRepository) FinishGame(ctx context.Context, g *domain.LowcardGame) error {
	_, err := r.db.Exec(ctx,
		`UPDATE lowcard_games
		 SET status = $1, pot = $2, winner_id = $3, winnings = $4,
		     house_fee = $5, commission = $6, player_count = $7, finished_at = now()
		 WHERE id = $8`,
		domain.GameStatusFinished, g.Pot, g.WinnerID, g.Winnings,
		g.HouseFee, g.Commission, g.PlayerCount, g.ID,
	)
	return err
}

// CancelOpen closes any still-open rows for the room without a winner.
// Cancel, stop, reset, stale cleanup and restart recovery all route here.
func (r *LowcardRepository) CancelOpen(ctx context.Context, roomID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE lowcard_games
		 SET status = $1, finished_at = now()
		 WHERE room_id = $2 AND status <> $1`,
		domain.GameStatusFinished, roomID,
	)
	return err
}

// InsertHistory appends the lowcard_history summary for a finished game.
func (r *LowcardRepository) InsertHistory(ctx context.Context, h *domain.LowcardHistory) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO lowcard_history
			(game_id, room_id, winner_id, winner_username, pot, winnings,
			 house_fee, commission, player_count, rounds)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at`,
		h.GameID, h.RoomID, h.WinnerID, h.WinnerUsername, h.Pot, h.Winnings,
		h.HouseFee, h.Commission, h.PlayerCount, h.Rounds,
	).Scan(&h.ID, &h.CreatedAt)
}
