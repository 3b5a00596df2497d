package repository

import (
	"context"

	"chatgames/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CreditLogRepository struct {
	db *pgxpool.Pool
}

func NewCreditLogRepository(db *pgxpool.Pool) *CreditLogRepository {
	return &CreditLogRepository{db: db}
}

// Create appends a transaction record. The log is append-only; rows are
// never updated or deleted.
func (r *CreditLogRepository) Create(ctx context.Context, cl *domain.CreditLog) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO credit_logs (user_id, username, amount, transaction_type, description)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		cl.UserID, cl.Username, cl.Amount, cl.TransactionType, cl.Description,
	).Scan(&cl.ID, &cl.CreatedAt)
}

// CreateWithTx appends a transaction record within an existing transaction.
func (r *CreditLogRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, cl *domain.CreditLog) error {
	return tx.QueryRow(ctx,
		`INSERT INTO credit_logs (user_id, username, amount, transaction_type, description)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		cl.UserID, cl.Username, cl.Amount, cl.TransactionType, cl.Description,
	).Scan(&cl.ID, &cl.CreatedAt)
}

// GetByUserID returns recent transactions for a user, newest first.
func (r *CreditLogRepository) GetByUserID(ctx context.Context, userID int64, limit int) ([]*domain.CreditLog, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, username, amount, transaction_type, description, created_at
		 FROM credit_logs
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.CreditLog
	for rows.Next() {
		var cl domain.CreditLog
		if err := rows.Scan(&cl.ID, &cl.UserID, &cl.Username, &cl.Amount,
			&cl.TransactionType, &cl.Description, &cl.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &cl)
	}
	return result, rows.Err()
}
