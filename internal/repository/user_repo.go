package repository

import (
	"context"
	"errors"

	"chatgames/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrInsufficientFunds = errors.New("insufficient funds")

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, COALESCE(username, ''), COALESCE(role, 'user'), credits, created_at
		 FROM users
		 WHERE id = $1`,
		id,
	)

	var u domain.User
	if err := row.Scan(&u.ID, &u.Username, &u.Role, &u.Credits, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO users (username, role, credits)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		u.Username, u.Role, u.Credits,
	).Scan(&u.ID, &u.CreatedAt)
}

// GetCredits returns the authoritative balance.
func (r *UserRepository) GetCredits(ctx context.Context, userID int64) (int64, error) {
	var credits int64
	err := r.db.QueryRow(ctx, `SELECT credits FROM users WHERE id = $1`, userID).Scan(&credits)
	return credits, err
}

// Debit removes amount from the user's balance only if it fully covers the
// amount. The condition and the update run as one statement, so concurrent
// debits can never drive the balance negative.
func (r *UserRepository) Debit(ctx context.Context, userID, amount int64) (int64, error) {
	var newBalance int64
	err := r.db.QueryRow(ctx,
		`UPDATE users SET credits = credits - $1 WHERE id = $2 AND credits >= $1 RETURNING credits`,
		amount, userID,
	).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrInsufficientFunds
	}
	return newBalance, err
}

// DebitWithTx is Debit inside an existing transaction.
func (r *UserRepository) DebitWithTx(ctx context.Context, tx pgx.Tx, userID, amount int64) (int64, error) {
	var newBalance int64
	err := tx.QueryRow(ctx,
		`UPDATE users SET credits = credits - $1 WHERE id = $2 AND credits >= $1 RETURNING credits`,
		amount, userID,
	).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrInsufficientFunds
	}
	return newBalance, err
}

// Credit adds amount to the user's balance.
func (r *UserRepository) Credit(ctx context.Context, userID, amount int64) (int64, error) {
	var newBalance int64
	err := r.db.QueryRow(ctx,
		`UPDATE users SET credits = credits + $1 WHERE id = $2 RETURNING credits`,
		amount, userID,
	).Scan(&newBalance)
	return newBalance, err
}

// CreditWithTx is Credit inside an existing transaction.
func (r *UserRepository) CreditWithTx(ctx context.Context, tx pgx.Tx, userID, amount int64) (int64, error) {
	var newBalance int64
	err := tx.QueryRow(ctx,
		`UPDATE users SET credits = credits + $1 WHERE id = $2 RETURNING credits`,
		amount, userID,
	).Scan(&newBalance)
	return newBalance, err
}
