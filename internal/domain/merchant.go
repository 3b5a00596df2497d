package domain

import "time"

// Merchant tag statuses
const (
	MerchantTagActive  = "active"
	MerchantTagRevoked = "revoked"
)

// MerchantTag links a tagged user to the merchant that recruited them.
// While the tag is active the merchant earns commission on house fees
// from games that user starts.
type MerchantTag struct {
	ID           int64     `db:"id" json:"id"`
	MerchantID   int64     `db:"merchant_id" json:"merchant_id"`
	TaggedUserID int64     `db:"tagged_user_id" json:"tagged_user_id"`
	Status       string    `db:"status" json:"status"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// TaggedCreditBatch is a grant of merchant-issued credits. Remaining is
// consumed before regular balance when the tagged user bets.
type TaggedCreditBatch struct {
	ID         int64     `db:"id" json:"id"`
	MerchantID int64     `db:"merchant_id" json:"merchant_id"`
	UserID     int64     `db:"user_id" json:"user_id"`
	Amount     int64     `db:"amount" json:"amount"`
	Remaining  int64     `db:"remaining" json:"remaining"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
