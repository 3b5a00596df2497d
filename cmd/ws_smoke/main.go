package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"chatgames/internal/db"
	"chatgames/internal/domain"
	"chatgames/internal/repository"
	"chatgames/internal/service"
)

// Smoke test against a running server: seeds a room owner and a player,
// installs the LowCard bot, opens a game, joins it and cancels it, printing
// every event both sockets receive.
func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL not set")
	}
	if os.Getenv("JWT_SECRET") == "" {
		log.Fatal("JWT_SECRET not set")
	}

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	pool := db.Connect(dsn)
	defer pool.Close()

	ctx := context.Background()
	users := repository.NewUserRepository(pool)
	rooms := repository.NewRoomRepository(pool)

	owner := &domain.User{Username: "smokeOwner", Role: domain.RoleUser, Credits: 1000}
	if err := users.Create(ctx, owner); err != nil {
		log.Fatalf("create owner: %v", err)
	}
	player := &domain.User{Username: "smokePlayer", Role: domain.RoleUser, Credits: 1000}
	if err := users.Create(ctx, player); err != nil {
		log.Fatalf("create player: %v", err)
	}

	roomID := fmt.Sprintf("smoke-%d", time.Now().Unix())
	if err := rooms.Create(ctx, &domain.Room{ID: roomID, Name: "Smoke Lounge", OwnerID: owner.ID}); err != nil {
		log.Fatalf("create room: %v", err)
	}

	service.InitJWT()
	ownerToken, err := service.GenerateJWT(owner.ID, owner.Username)
	if err != nil {
		log.Fatalf("gen owner token: %v", err)
	}
	playerToken, err := service.GenerateJWT(player.ID, player.Username)
	if err != nil {
		log.Fatalf("gen player token: %v", err)
	}

	dialer := websocket.DefaultDialer

	// use 127.0.0.1 to prefer IPv4 (avoid resolving to [::1])
	dial := func(token string) *websocket.Conn {
		url := fmt.Sprintf("ws://127.0.0.1:%s/ws?token=%s&room=%s", port, token, roomID)
		conn, _, err := dialer.Dial(url, nil)
		if err != nil {
			log.Fatalf("dial %s: %v", url, err)
		}
		return conn
	}

	connOwner := dial(ownerToken)
	defer connOwner.Close()
	connPlayer := dial(playerToken)
	defer connPlayer.Close()

	send := func(conn *websocket.Conn, who, line string) {
		log.Printf("%s> %s", who, line)
		if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			log.Fatalf("%s write: %v", who, err)
		}
	}

	drain := func(conn *websocket.Conn, who string, window time.Duration) {
		deadline := time.Now().Add(window)
		for time.Now().Before(deadline) {
			conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				continue
			}
			log.Printf("%s< %s", who, string(msg))
		}
	}

	send(connOwner, "owner", "//bot add lowcard 5")
	drain(connOwner, "owner", time.Second)

	send(connOwner, "owner", "!start 5")
	drain(connOwner, "owner", time.Second)

	send(connPlayer, "player", "!j")
	drain(connPlayer, "player", time.Second)
	drain(connOwner, "owner", time.Second)

	send(connOwner, "owner", "!cancel")
	drain(connOwner, "owner", 2*time.Second)
	drain(connPlayer, "player", time.Second)

	log.Println("smoke test finished")
}
