package repository

import (
	"context"
	"errors"

	"chatgames/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RoomRepository struct {
	db *pgxpool.Pool
}

func NewRoomRepository(db *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{db: db}
}

// GetByID returns the room, or nil when it is not registered. Unregistered
// rooms still run games under default limits.
func (r *RoomRepository) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, name, owner_id, created_at FROM rooms WHERE id = $1`, id)

	var room domain.Room
	if err := row.Scan(&room.ID, &room.Name, &room.OwnerID, &room.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &room, nil
}

func (r *RoomRepository) Create(ctx context.Context, room *domain.Room) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO rooms (id, name, owner_id) VALUES ($1, $2, $3) RETURNING created_at`,
		room.ID, room.Name, room.OwnerID,
	).Scan(&room.CreatedAt)
}

// IsAdmin reports whether the user owns the room or is listed in
// room_admins.
func (r *RoomRepository) IsAdmin(ctx context.Context, roomID string, userID int64) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM rooms WHERE id = $1 AND owner_id = $2
			UNION
			SELECT 1 FROM room_admins WHERE room_id = $1 AND user_id = $2
		)`,
		roomID, userID,
	).Scan(&ok)
	return ok, err
}

func (r *RoomRepository) AddAdmin(ctx context.Context, roomID string, userID int64) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO room_admins (room_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		roomID, userID,
	)
	return err
}
