package domain

import (
	"strings"
	"time"
)

type Room struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	OwnerID   int64     `db:"owner_id" json:"owner_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// IsBigGame reports whether the room runs under high-stakes rules:
// a higher minimum entry and no maximum cap.
func (r *Room) IsBigGame() bool {
	return strings.Contains(strings.ToLower(r.Name), "big game")
}
