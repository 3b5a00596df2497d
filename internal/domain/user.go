package domain

import "time"

type User struct {
	ID        int64     `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	Role      string    `db:"role" json:"role"`
	Credits   int64     `db:"credits" json:"credits"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)
