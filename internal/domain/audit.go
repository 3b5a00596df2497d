package domain

import "time"

// AuditLog represents an audit log entry for tracking important actions
type AuditLog struct {
	ID        int64                  `db:"id" json:"id"`
	UserID    int64                  `db:"user_id" json:"user_id"`
	Action    string                 `db:"action" json:"action"`
	Category  string                 `db:"category" json:"category"`
	Details   map[string]interface{} `db:"details" json:"details"`
	CreatedAt time.Time              `db:"created_at" json:"created_at"`
}

// Audit action categories
const (
	AuditCategoryGame  = "game"
	AuditCategoryAdmin = "admin"
)

// Audit actions
const (
	AuditActionBotAdd    = "bot_add"
	AuditActionBotRemove = "bot_remove"
	AuditActionGameReset = "game_reset"
	AuditActionGameStop  = "game_stop"
)
