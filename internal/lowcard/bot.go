package lowcard

import (
	"context"

	"chatgames/internal/broadcast"
	"chatgames/internal/domain"
	"chatgames/internal/game"
	"chatgames/internal/logger"
)

func (e *Engine) Type() domain.GameType { return domain.GameTypeLowcard }

// IsBotActive reports whether the LowCard bot is installed in the room.
func (e *Engine) IsBotActive(ctx context.Context, roomID string) (bool, error) {
	return e.bots.IsBotActive(ctx, domain.GameTypeLowcard, roomID)
}

// AddBot enables the LowCard bot in a room. defaultAmount <= 0 keeps the
// configured minimum as the default entry.
func (e *Engine) AddBot(ctx context.Context, roomID string, defaultAmount int64) *game.Result {
	for _, other := range []domain.GameType{domain.GameTypeDicebot, domain.GameTypeFlagbot} {
		active, err := e.bots.IsBotActive(ctx, other, roomID)
		if err != nil {
			logger.Error("lowcard bot check failed", "roomId", roomID, "game", other, "error", err)
			return game.Busy()
		}
		if active {
			return game.Pvt(other.DisplayName() + " is already active in this room! Remove it first.")
		}
	}

	if err := e.bots.EnableBot(ctx, domain.GameTypeLowcard, roomID, defaultAmount); err != nil {
		logger.Error("lowcard bot enable failed", "roomId", roomID, "error", err)
		return game.Busy()
	}
	if err := e.bots.SetActive(ctx, roomID, domain.GameTypeLowcard); err != nil {
		logger.Error("lowcard active binding failed", "roomId", roomID, "error", err)
	}

	e.chat(ctx, roomID, "LowCard bot is here! Type !start <amount> to play.")
	return &game.Result{Success: true, Message: "Bot is running", IsPvt: true}
}

// RemoveBot disables the bot and unwinds any game it was running. Players
// still in a game get their entries back.
func (e *Engine) RemoveBot(ctx context.Context, roomID string) *game.Result {
	g, err := e.loadGame(ctx, roomID)
	if err != nil {
		return game.Busy()
	}
	if g != nil && g.Status != domain.GameStatusFinished {
		e.refundAll(ctx, g, cancelReason(roomID))
		e.cleanupAfterAbort(ctx, g, "bot_removed")
		e.bc.ToRoom(ctx, roomID, broadcast.EventGameCancelled, map[string]any{
			"roomId": roomID,
			"reason": "bot_removed",
		})
		e.chat(ctx, roomID, "Game cancelled, credits refunded.")
	}

	if err := e.bots.DisableBot(ctx, domain.GameTypeLowcard, roomID); err != nil {
		logger.Error("lowcard bot disable failed", "roomId", roomID, "error", err)
		return game.Busy()
	}
	if active, _ := e.bots.Active(ctx, roomID); active == domain.GameTypeLowcard {
		if err := e.bots.ClearActive(ctx, roomID); err != nil {
			logger.Warn("lowcard active binding clear failed", "roomId", roomID, "error", err)
		}
	}

	e.chat(ctx, roomID, "LowCard bot removed.")
	return &game.Result{Success: true, Message: "Bot removed", IsPvt: true}
}
