// Package dicebot is the bot-directory facade for the dice game. The dice
// engine itself runs as an external collaborator; this side owns the bot
// record, the room's active-game binding, and the refund path for the
// snapshot the engine leaves under dicebot:game:{R}.
package dicebot

import (
	"context"
	"encoding/json"
	"fmt"

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

type Facade struct {
	store  kv.Store
	bots   *gamestate.Service
	ledger Ledger
	bc     broadcast.Broadcaster
}

func New(store kv.Store, bots *gamestate.Service, lg Ledger, bc broadcast.Broadcaster) *Facade {
	return &Facade{store: store, bots: bots, ledger: lg, bc: bc}
}

func gameKey(roomID string) string {
	return "dicebot:game:" + roomID
}

func (f *Facade) Type() domain.GameType { return domain.GameTypeDicebot }

// IsBotActive reports whether the DiceBot is installed in the room.
func (f *Facade) IsBotActive(ctx context.Context, roomID string) (bool, error) {
	return f.bots.IsBotActive(ctx, domain.GameTypeDicebot, roomID)
}

// AddBot installs the DiceBot. Rooms run one bot at a time.
func (f *Facade) AddBot(ctx context.Context, roomID string, defaultAmount int64) *game.Result {
	for _, other := range []domain.GameType{domain.GameTypeLowcard, domain.GameTypeFlagbot} {
		active, err := f.bots.IsBotActive(ctx, other, roomID)
		if err != nil {
			logger.Error("dicebot bot check failed", "roomId", roomID, "game", other, "error", err)
			return game.Busy()
		}
		if active {
			return game.Pvt(other.DisplayName() + " is already active in this room! Remove it first.")
		}
	}

	if err := f.bots.EnableBot(ctx, domain.GameTypeDicebot, roomID, defaultAmount); err != nil {
		logger.Error("dicebot enable failed", "roomId", roomID, "error", err)
		return game.Busy()
	}
	if err := f.bots.SetActive(ctx, roomID, domain.GameTypeDicebot); err != nil {
		logger.Error("dicebot active binding failed", "roomId", roomID, "error", err)
	}

	f.chat(ctx, roomID, "DiceBot is here! Type !d to roll.")
	return &game.Result{Success: true, Message: "Bot is running", IsPvt: true}
}

// RemoveBot uninstalls the DiceBot and refunds any game the external engine
// left open in the room.
func (f *Facade) RemoveBot(ctx context.Context, roomID string) *game.Result {
	f.refundOpenGame(ctx, roomID, cancelReason(roomID))

	if err := f.bots.DisableBot(ctx, domain.GameTypeDicebot, roomID); err != nil {
		logger.Error("dicebot disable failed", "roomId", roomID, "error", err)
		return game.Busy()
	}
	if active, _ := f.bots.Active(ctx, roomID); active == domain.GameTypeDicebot {
		if err := f.bots.ClearActive(ctx, roomID); err != nil {
			logger.Warn("dicebot active binding clear failed", "roomId", roomID, "error", err)
		}
	}

	f.chat(ctx, roomID, "DiceBot removed.")
	return &game.Result{Success: true, Message: "Bot removed", IsPvt: true}
}

// HandleCommand consumes the dice play commands (!d, !r, !roll). Gameplay
// lives in the external engine, which subscribes to the same command
// channel; this side only keeps the commands from leaking into chat errors.
func (f *Facade) HandleCommand(ctx context.Context, roomID string, userID int64, username, text string) *game.Result {
	logger.Debug("dicebot command consumed", "roomId", roomID, "userId", userID, "command", text)
	return game.Silent()
}

// refundOpenGame pays back every recorded player of an unfinished dice
// snapshot and deletes it. Missing or finished snapshots are a no-op.
func (f *Facade) refundOpenGame(ctx context.Context, roomID, reason string) {
	raw, err := f.store.Get(ctx, gameKey(roomID))
	if err == kv.ErrNotFound {
		return
	}
	if err != nil {
		logger.Error("dicebot game load failed", "roomId", roomID, "error", err)
		return
	}

	var g domain.Game
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		logger.Warn("dicebot game snapshot unreadable, deleting", "roomId", roomID, "error", err)
		f.deleteGame(ctx, roomID)
		return
	}
	if g.Status == domain.GameStatusFinished {
		f.deleteGame(ctx, roomID)
		return
	}

	for _, p := range g.Players {
		balance, err := f.ledger.Credit(ctx, p.UserID, g.EntryAmount, p.Username, reason)
		if err != nil {
			metrics.RefundFailures.WithLabelValues(string(domain.GameTypeDicebot)).Inc()
			logger.Error("CRITICAL: dicebot refund failed",
				"roomId", roomID, "userId", p.UserID, "amount", g.EntryAmount, "error", err)
			continue
		}
		metrics.Refunds.WithLabelValues(string(domain.GameTypeDicebot)).Inc()
		f.bc.ToRoom(ctx, roomID, broadcast.EventCreditsUpdated, map[string]any{
			"roomId":  roomID,
			"userId":  p.UserID,
			"balance": balance,
		})
	}
	f.deleteGame(ctx, roomID)
	f.chat(ctx, roomID, "Dice game cancelled, credits refunded.")
}

func (f *Facade) deleteGame(ctx context.Context, roomID string) {
	if err := f.store.Del(ctx, gameKey(roomID)); err != nil {
		logger.Warn("dicebot game key delete failed", "roomId", roomID, "error", err)
	}
}

func (f *Facade) chat(ctx context.Context, roomID, text string) {
	f.bc.ToRoom(ctx, roomID, broadcast.EventChatMessage, map[string]any{
		"roomId":  roomID,
		"sender":  "DiceBot",
		"message": text,
	})
}

func cancelReason(roomID string) string {
	return fmt.Sprintf("DiceBot Refund - Game Cancelled (Room %s)", roomID)
}
