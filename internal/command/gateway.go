package command

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"chatgames/internal/broadcast"
	"chatgames/internal/kv"
	"chatgames/internal/logger"
	"chatgames/internal/metrics"
	"chatgames/internal/ws"
)

const inboundTimeout = 5 * time.Second

// Gateway sits between the sockets and the command channel. Plain chat is
// relayed to the room; commands pass the per-user rate limit and are
// published to game:command, where every replica's subscriber picks them
// up. Nothing is executed inline on the socket goroutine.
type Gateway struct {
	store  kv.Store
	bc     broadcast.Broadcaster
	limit  int
	window time.Duration
}

func NewGateway(store kv.Store, bc broadcast.Broadcaster, limit int, window time.Duration) *Gateway {
	return &Gateway{store: store, bc: bc, limit: limit, window: window}
}

// HandleInbound is the ws inbound callback.
func (g *Gateway) HandleInbound(in ws.Inbound) {
	ctx, cancel := context.WithTimeout(context.Background(), inboundTimeout)
	defer cancel()

	text := strings.TrimSpace(in.Message)
	if text == "" {
		return
	}

	if !IsCommand(text) {
		g.bc.ToRoom(ctx, in.RoomID, broadcast.EventChatMessage, map[string]any{
			"roomId":  in.RoomID,
			"userId":  in.UserID,
			"sender":  in.Username,
			"message": in.Message,
		})
		return
	}

	if !g.allow(ctx, in.UserID) {
		metrics.CommandsRateLimited.Inc()
		g.bc.ToRoom(ctx, in.RoomID, broadcast.EventChatMessage, map[string]any{
			"roomId":  in.RoomID,
			"userId":  in.UserID,
			"type":    "private",
			"sender":  "GameBot",
			"message": "Slow down.",
		})
		return
	}

	raw, err := json.Marshal(Message{
		RoomID:   in.RoomID,
		UserID:   in.UserID,
		Username: in.Username,
		Message:  text,
		SocketID: in.SocketID,
	})
	if err != nil {
		logger.Error("command marshal failed", "roomId", in.RoomID, "error", err)
		return
	}
	if err := g.store.Publish(ctx, broadcast.ChannelCommand, string(raw)); err != nil {
		logger.Error("command publish failed", "roomId", in.RoomID, "error", err)
	}
}

// allow implements a fixed window per user: INCR, TTL set on the first
// hit. Fails open when the store is unavailable.
func (g *Gateway) allow(ctx context.Context, userID int64) bool {
	if g.limit <= 0 {
		return true
	}
	key := fmt.Sprintf("rl:cmd:%d", userID)
	n, err := g.store.Incr(ctx, key)
	if err != nil {
		logger.Warn("command rate limit unavailable", "userId", userID, "error", err)
		return true
	}
	if n == 1 {
		if err := g.store.Expire(ctx, key, g.window); err != nil {
			logger.Warn("command rate limit expire failed", "userId", userID, "error", err)
		}
	}
	return n <= int64(g.limit)
}
