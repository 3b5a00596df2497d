package repository

import (
	"context"
	"errors"

	"chatgames/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MerchantRepository struct {
	db *pgxpool.Pool
}

func NewMerchantRepository(db *pgxpool.Pool) *MerchantRepository {
	return &MerchantRepository{db: db}
}

// ActiveTagFor returns the active merchant tag on a user, or nil.
func (r *MerchantRepository) ActiveTagFor(ctx context.Context, taggedUserID int64) (*domain.MerchantTag, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, merchant_id, tagged_user_id, status, created_at
		 FROM merchant_tags
		 WHERE tagged_user_id = $1 AND status = $2
		 ORDER BY created_at DESC
		 LIMIT 1`,
		taggedUserID, domain.MerchantTagActive,
	)

	var tag domain.MerchantTag
	if err := row.Scan(&tag.ID, &tag.MerchantID, &tag.TaggedUserID, &tag.Status, &tag.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &tag, nil
}

// TaggedBalance returns the user's unspent merchant-issued credits.
func (r *MerchantRepository) TaggedBalance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(remaining), 0)
		 FROM merchant_tagged_credits
		 WHERE user_id = $1 AND remaining > 0`,
		userID,
	).Scan(&balance)
	return balance, err
}

// ConsumeForGame spends tagged credits oldest batch first, up to amount.
// Returns how much was actually consumed, which may be less than amount
// when the batches run dry. The spend is recorded per game session.
func (r *MerchantRepository) ConsumeForGame(ctx context.Context, userID int64, game string, amount int64, gameSessionID string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx,
		`SELECT id, remaining
		 FROM merchant_tagged_credits
		 WHERE user_id = $1 AND remaining > 0
		 ORDER BY id
		 FOR UPDATE`,
		userID,
	)
	if err != nil {
		return 0, err
	}

	type batch struct {
		id        int64
		remaining int64
	}
	var batches []batch
	for rows.Next() {
		var b batch
		if err := rows.Scan(&b.id, &b.remaining); err != nil {
			rows.Close()
			return 0, err
		}
		batches = append(batches, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	var used int64
	for _, b := range batches {
		if used >= amount {
			break
		}
		take := amount - used
		if take > b.remaining {
			take = b.remaining
		}
		if _, err := tx.Exec(ctx,
			`UPDATE merchant_tagged_credits SET remaining = remaining - $1 WHERE id = $2`,
			take, b.id,
		); err != nil {
			return 0, err
		}
		used += take
	}

	if used > 0 {
		if _, err := tx.Exec(ctx,
			`INSERT INTO merchant_consumptions (user_id, game, game_session_id, amount)
			 VALUES ($1, $2, $3, $4)`,
			userID, game, gameSessionID, used,
		); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return used, nil
}
