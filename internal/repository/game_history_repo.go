package repository

import (
	"context"

	"chatgames/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type GameHistoryRepository struct {
	db *pgxpool.Pool
}

func NewGameHistoryRepository(db *pgxpool.Pool) *GameHistoryRepository {
	return &GameHistoryRepository{db: db}
}

// Create сохраняет запись игры в историю
func (r *GameHistoryRepository) Create(ctx context.Context, gh *domain.GameHistory) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO game_history
			(user_id, username, game_type, room_id, bet_amount, result, reward)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		gh.UserID, gh.Username, gh.GameType, gh.RoomID, gh.BetAmount, gh.Result, gh.Reward,
	).Scan(&gh.ID, &gh.CreatedAt)
}

// CreateWithTx сохраняет запись игры внутри транзакции
func (r *GameHistoryRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, gh *domain.GameHistory) error {
	return tx.QueryRow(ctx,
		`INSERT INTO game_history
			(user_id, username, game_type, room_id, bet_amount, result, reward)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		gh.UserID, gh.Username, gh.GameType, gh.RoomID, gh.BetAmount, gh.Result, gh.Reward,
	).Scan(&gh.ID, &gh.CreatedAt)
}

// GetByUser возвращает историю игр пользователя
func (r *GameHistoryRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*domain.GameHistory, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, username, game_type, room_id, bet_amount, result, reward, created_at
		 FROM game_history
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.GameHistory
	for rows.Next() {
		var gh domain.GameHistory
		if err := rows.Scan(&gh.ID, &gh.UserID, &gh.Username, &gh.GameType,
			&gh.RoomID, &gh.BetAmount, &gh.Result, &gh.Reward, &gh.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &gh)
	}
	return result, rows.Err()
}
