package main

import (
	"context"
	"flag"
	"log"
	"os"

	"chatgames/internal/db"
	"chatgames/internal/domain"
	"chatgames/internal/repository"
	"chatgames/internal/service"
)

// Dev helper: creates a user (and optionally a room it owns) and prints
// a JWT usable against /ws.
func main() {
	username := flag.String("username", "testuser", "username to create")
	credits := flag.Int64("credits", 1000, "starting COINS balance")
	role := flag.String("role", domain.RoleUser, "user role (user|admin)")
	roomID := flag.String("room", "", "also create a room with this id, owned by the user")
	flag.Parse()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL not set")
	}

	pool := db.Connect(dsn)
	defer pool.Close()

	ctx := context.Background()
	users := repository.NewUserRepository(pool)

	u := &domain.User{Username: *username, Role: *role, Credits: *credits}
	if err := users.Create(ctx, u); err != nil {
		log.Fatalf("create user failed: %v", err)
	}
	log.Printf("user created id=%d username=%s credits=%d", u.ID, u.Username, u.Credits)

	if *roomID != "" {
		rooms := repository.NewRoomRepository(pool)
		room := &domain.Room{ID: *roomID, Name: *roomID, OwnerID: u.ID}
		if err := rooms.Create(ctx, room); err != nil {
			log.Fatalf("create room failed: %v", err)
		}
		log.Printf("room created id=%s owner=%d", room.ID, room.OwnerID)
	}

	service.InitJWT()
	token, err := service.GenerateJWT(u.ID, u.Username)
	if err != nil {
		log.Fatalf("failed to generate token: %v", err)
	}
	log.Printf("token=%s", token)
}
