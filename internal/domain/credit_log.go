package domain

import "time"

// Transaction types for credit_logs
const (
	CreditTypeGameBet    = "game_bet"
	CreditTypeGameWin    = "game_win"
	CreditTypeGameRefund = "game_refund"
)

// CreditLog - запись в журнале транзакций (append-only)
type CreditLog struct {
	ID              int64     `db:"id" json:"id"`
	UserID          int64     `db:"user_id" json:"user_id"`
	Username        string    `db:"username" json:"username"`
	Amount          int64     `db:"amount" json:"amount"`
	TransactionType string    `db:"transaction_type" json:"transaction_type"`
	Description     string    `db:"description" json:"description"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}
