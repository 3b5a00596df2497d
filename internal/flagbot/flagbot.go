// Package flagbot is the bot-directory facade for the flag-hunt game. The
// hunt itself runs as an external collaborator; this side owns the bot
// record, the active-game binding, and the refund path for the open-bets
// hash the engine keeps under flagbot:room:{R}:bets.
package flagbot

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"chatgames/internal/broadcast"
	"chatgames/internal/domain"
	"chatgames/internal/game"
	"chatgames/internal/gamestate"
	"chatgames/internal/kv"
	"chatgames/internal/logger"
	"chatgames/internal/metrics"
)

// Ledger is the refund surface the facade needs.
type Ledger interface {
	Credit(ctx context.Context, userID, amount int64, username, reason string) (int64, error)
}

// bet is one hash entry: field is the userId, value this JSON.
type bet struct {
	Username string `json:"username"`
	Amount   int64  `json:"amount"`
}

type Facade struct {
	store  kv.Store
	bots   *gamestate.Service
	ledger Ledger
	bc     broadcast.Broadcaster
}

func New(store kv.Store, bots *gamestate.Service, lg Ledger, bc broadcast.Broadcaster) *Facade {
	return &Facade{store: store, bots: bots, ledger: lg, bc: bc}
}

func betsKey(roomID string) string {
	return "flagbot:room:" + roomID + ":bets"
}

func (f *Facade) Type() domain.GameType { return domain.GameTypeFlagbot }

// IsBotActive reports whether the FlagBot is installed in the room.
func (f *Facade) IsBotActive(ctx context.Context, roomID string) (bool, error) {
	return f.bots.IsBotActive(ctx, domain.GameTypeFlagbot, roomID)
}

// AddBot installs the FlagBot. Rooms run one bot at a time.
func (f *Facade) AddBot(ctx context.Context, roomID string, defaultAmount int64) *game.Result {
	for _, other := range []domain.GameType{domain.GameTypeLowcard, domain.GameTypeDicebot} {
		active, err := f.bots.IsBotActive(ctx, other, roomID)
		if err != nil {
			logger.Error("flagbot bot check failed", "roomId", roomID, "game", other, "error", err)
			return game.Busy()
		}
		if active {
			return game.Pvt(other.DisplayName() + " is already active in this room! Remove it first.")
		}
	}

	if err := f.bots.EnableBot(ctx, domain.GameTypeFlagbot, roomID, defaultAmount); err != nil {
		logger.Error("flagbot enable failed", "roomId", roomID, "error", err)
		return game.Busy()
	}
	if err := f.bots.SetActive(ctx, roomID, domain.GameTypeFlagbot); err != nil {
		logger.Error("flagbot active binding failed", "roomId", roomID, "error", err)
	}

	f.chat(ctx, roomID, "FlagBot is here! Type !fg to hunt.")
	return &game.Result{Success: true, Message: "Bot is running", IsPvt: true}
}

// RemoveBot uninstalls the FlagBot, refunding any open bets first.
func (f *Facade) RemoveBot(ctx context.Context, roomID string) *game.Result {
	f.refundBets(ctx, roomID, cancelReason(roomID))

	if err := f.bots.DisableBot(ctx, domain.GameTypeFlagbot, roomID); err != nil {
		logger.Error("flagbot disable failed", "roomId", roomID, "error", err)
		return game.Busy()
	}
	if active, _ := f.bots.Active(ctx, roomID); active == domain.GameTypeFlagbot {
		if err := f.bots.ClearActive(ctx, roomID); err != nil {
			logger.Warn("flagbot active binding clear failed", "roomId", roomID, "error", err)
		}
	}

	f.chat(ctx, roomID, "FlagBot removed.")
	return &game.Result{Success: true, Message: "Bot removed", IsPvt: true}
}

// StopGame refunds every open bet and clears the hash. !stop is tried
// against this facade as well as LowCard, so a room with nothing staked
// must stay silent.
func (f *Facade) StopGame(ctx context.Context, roomID string) *game.Result {
	refunded := f.refundBets(ctx, roomID, stopReason(roomID))
	if refunded == 0 {
		return game.Silent()
	}
	msg := "Flag hunt stopped. Bets refunded."
	f.chat(ctx, roomID, msg)
	return game.Ok(msg)
}

// HandleCommand consumes the hunt play commands (!fg, !b, !lock). Gameplay
// lives in the external engine, which subscribes to the same command
// channel; this side only keeps the commands from leaking into chat errors.
func (f *Facade) HandleCommand(ctx context.Context, roomID string, userID int64, username, text string) *game.Result {
	logger.Debug("flagbot command consumed", "roomId", roomID, "userId", userID, "command", text)
	return game.Silent()
}

// refundBets pays back every bet recorded in the room's hash and deletes
// it. Returns the number of bets refunded. Unreadable entries are logged
// and skipped rather than blocking the remaining refunds.
func (f *Facade) refundBets(ctx context.Context, roomID, reason string) int {
	entries, err := f.store.HGetAll(ctx, betsKey(roomID))
	if err != nil {
		logger.Error("flagbot bets load failed", "roomId", roomID, "error", err)
		return 0
	}
	if len(entries) == 0 {
		return 0
	}

	refunded := 0
	for field, raw := range entries {
		userID, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			logger.Warn("flagbot bet field unreadable", "roomId", roomID, "field", field)
			continue
		}
		var b bet
		if err := json.Unmarshal([]byte(raw), &b); err != nil {
			logger.Warn("flagbot bet value unreadable", "roomId", roomID, "userId", userID, "error", err)
			continue
		}
		if b.Amount <= 0 {
			continue
		}

		balance, err := f.ledger.Credit(ctx, userID, b.Amount, b.Username, reason)
		if err != nil {
			metrics.RefundFailures.WithLabelValues(string(domain.GameTypeFlagbot)).Inc()
			logger.Error("CRITICAL: flagbot refund failed",
				"roomId", roomID, "userId", userID, "amount", b.Amount, "error", err)
			continue
		}
		refunded++
		metrics.Refunds.WithLabelValues(string(domain.GameTypeFlagbot)).Inc()
		f.bc.ToRoom(ctx, roomID, broadcast.EventCreditsUpdated, map[string]any{
			"roomId":  roomID,
			"userId":  userID,
			"balance": balance,
		})
	}

	if err := f.store.Del(ctx, betsKey(roomID)); err != nil {
		logger.Warn("flagbot bets delete failed", "roomId", roomID, "error", err)
	}
	return refunded
}

func (f *Facade) chat(ctx context.Context, roomID, text string) {
	f.bc.ToRoom(ctx, roomID, broadcast.EventChatMessage, map[string]any{
		"roomId":  roomID,
		"sender":  "FlagBot",
		"message": text,
	})
}

func cancelReason(roomID string) string {
	return fmt.Sprintf("FlagBot Refund - Game Cancelled (Room %s)", roomID)
}

func stopReason(roomID string) string {
	return fmt.Sprintf("FlagBot Refund - Game Stopped (Room %s)", roomID)
}
