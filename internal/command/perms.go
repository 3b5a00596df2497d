package command

import (
	"context"

	"chatgames/internal/domain"
)

// RoomAdmins answers room ownership/adminship from the rooms tables.
type RoomAdmins interface {
	IsAdmin(ctx context.Context, roomID string, userID int64) (bool, error)
}

// UserRoles resolves a user's global role.
type UserRoles interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

// AdminChecker grants bot management to room owners, room admins and
// system admins.
type AdminChecker struct {
	rooms RoomAdmins
	users UserRoles
}

func NewAdminChecker(rooms RoomAdmins, users UserRoles) *AdminChecker {
	return &AdminChecker{rooms: rooms, users: users}
}

func (a *AdminChecker) IsAdmin(ctx context.Context, roomID string, userID int64) (bool, error) {
	ok, err := a.rooms.IsAdmin(ctx, roomID, userID)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	u, err := a.users.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return u != nil && u.Role == domain.RoleAdmin, nil
}
