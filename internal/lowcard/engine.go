package lowcard

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"chatgames/internal/broadcast"
	"chatgames/internal/domain"
	"chatgames/internal/game"
	"chatgames/internal/gamestate"
	"chatgames/internal/kv"
	"chatgames/internal/ledger"
	"chatgames/internal/logger"
	"chatgames/internal/metrics"
)

// Ledger is the credit surface the engine spends and refunds through.
type Ledger interface {
	Deduct(ctx context.Context, userID, amount int64, username, gameName, reason, gameSessionID string) (*ledger.DeductResult, error)
	Credit(ctx context.Context, userID, amount int64, username, reason string) (int64, error)
}

// Decks deals persisted per-room decks.
type Decks interface {
	Init(ctx context.Context, roomID string) error
	Draw(ctx context.Context, roomID string) (domain.Card, error)
	Delete(ctx context.Context, roomID string) error
}

// Locks is the cross-replica lock manager.
type Locks interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, attempts int, delay time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) (bool, error)
}

// Rooms resolves room metadata; a nil room means unregistered.
type Rooms interface {
	GetByID(ctx context.Context, id string) (*domain.Room, error)
}

// GameRecords is the durable lowcard_games / lowcard_history surface.
type GameRecords interface {
	CreateGame(ctx context.Context, g *domain.LowcardGame) error
	FinishGame(ctx context.Context, g *domain.LowcardGame) error
	CancelOpen(ctx context.Context, roomID string) error
	InsertHistory(ctx context.Context, h *domain.LowcardHistory) error
}

// HistoryRecords appends per-player game_history rows.
type HistoryRecords interface {
	Create(ctx context.Context, gh *domain.GameHistory) error
}

// Merchants resolves the starter's active merchant for commission.
type Merchants interface {
	ActiveTagFor(ctx context.Context, userID int64) (*domain.MerchantTag, error)
}

// Limits are the entry bounds and fee rate the engine enforces.
type Limits struct {
	MinEntry        int64
	MaxEntry        int64
	BigGameMinEntry int64
	HouseFeePercent int64
}

func creationFailed() *game.Result {
	return game.Pvt("Game creation failed, credits refunded. Try again.")
}

// Engine runs the LowCard elimination game. All state lives in the keyed
// store under room-scoped keys; the engine itself holds no per-game
// memory, so any replica can serve any room.
type Engine struct {
	store     kv.Store
	locks     Locks
	ledger    Ledger
	decks     Decks
	rooms     Rooms
	games     GameRecords
	history   HistoryRecords
	merchants Merchants
	bots      *gamestate.Service
	bc        broadcast.Broadcaster
	limits    Limits
}

func NewEngine(store kv.Store, locks Locks, lg Ledger, decks Decks, rooms Rooms,
	games GameRecords, history HistoryRecords, merchants Merchants,
	bots *gamestate.Service, bc broadcast.Broadcaster, limits Limits) *Engine {
	return &Engine{
		store:     store,
		locks:     locks,
		ledger:    lg,
		decks:     decks,
		rooms:     rooms,
		games:     games,
		history:   history,
		merchants: merchants,
		bots:      bots,
		bc:        bc,
		limits:    limits,
	}
}

// StartGame opens a new game in the room. hasAmount is false when the
// starter typed a bare !start, in which case the room default applies. An
// explicit zero or negative amount is rejected, not defaulted.
func (e *Engine) StartGame(ctx context.Context, roomID string, userID int64, username string, amount int64, hasAmount bool) (res *game.Result) {
	token, acquired, err := e.locks.Acquire(ctx, startLockKey(roomID), startLockTTL)
	if err != nil {
		logger.Error("lowcard start lock failed", "roomId", roomID, "error", err)
		return game.Busy()
	}
	if !acquired {
		return game.Busy()
	}
	defer func() {
		if _, rerr := e.locks.Release(ctx, startLockKey(roomID), token); rerr != nil {
			logger.Warn("lowcard start lock release failed", "roomId", roomID, "error", rerr)
		}
	}()

	sessionID := uuid.NewString()
	deducted := false
	defer func() {
		if r := recover(); r != nil {
			logger.Error("lowcard start panicked", "roomId", roomID, "panic", r)
			if deducted {
				e.refundOne(ctx, userID, amount, username, refundReason(roomID))
			}
			res = creationFailed()
		}
	}()

	e.checkAndCleanupStaleGame(ctx, roomID)

	g, err := e.loadGame(ctx, roomID)
	if err != nil {
		logger.Error("lowcard start load failed", "roomId", roomID, "error", err)
		return creationFailed()
	}
	if g != nil {
		switch {
		case g.Status == domain.GameStatusWaiting && e.isStuck(ctx, g):
			logger.Warn("lowcard stuck game cleaned before start", "roomId", roomID)
			e.refundAll(ctx, g, refundReason(roomID))
			e.cleanupAfterAbort(ctx, g, "stuck")
		case g.Status == domain.GameStatusWaiting || g.Status == domain.GameStatusPlaying:
			return game.Pvt("Game is already in progress!")
		default:
			e.cleanupKeys(ctx, roomID)
		}
	}

	minEntry, maxEntry, bigGame, err := e.roomLimits(ctx, roomID)
	if err != nil {
		logger.Error("lowcard room lookup failed", "roomId", roomID, "error", err)
		return creationFailed()
	}

	if !hasAmount {
		amount = minEntry
		if rec, _ := e.bots.Bot(ctx, domain.GameTypeLowcard, roomID); rec != nil && rec.DefaultAmount > 0 {
			amount = rec.DefaultAmount
		}
	}
	if amount < minEntry {
		return game.Pvt(fmt.Sprintf("Minimal %d COINS!", minEntry))
	}
	if !bigGame && amount > maxEntry {
		return game.Pvt(fmt.Sprintf("Maximal %d COINS!", maxEntry))
	}

	dres, err := e.ledger.Deduct(ctx, userID, amount, username, string(domain.GameTypeLowcard), entryReason(roomID), sessionID)
	if err != nil {
		logger.Error("lowcard start deduct failed", "roomId", roomID, "userId", userID, "error", err)
		return creationFailed()
	}
	if !dres.Success {
		return game.Pvt("Not enough credits.")
	}
	deducted = true

	now := time.Now()
	snap := &domain.Game{
		RoomID:            roomID,
		Status:            domain.GameStatusWaiting,
		EntryAmount:       amount,
		Pot:               amount,
		CurrentRound:      0,
		StartedBy:         userID,
		StartedByUsername: username,
		GameSessionID:     sessionID,
		CreatedAt:         now,
		JoinDeadline:      now.Add(joinWindow).UnixMilli(),
		Players: []*domain.Player{
			{UserID: userID, Username: username},
		},
	}

	row := &domain.LowcardGame{
		RoomID:      roomID,
		StartedBy:   userID,
		EntryAmount: amount,
		Pot:         amount,
		Status:      domain.GameStatusWaiting,
		PlayerCount: 1,
	}
	if err := e.games.CreateGame(ctx, row); err != nil {
		logger.Error("lowcard start db insert failed", "roomId", roomID, "error", err)
		e.refundOne(ctx, userID, amount, username, refundReason(roomID))
		return creationFailed()
	}
	snap.DBGameID = row.ID

	gh := &domain.GameHistory{
		UserID:    userID,
		Username:  username,
		GameType:  domain.GameTypeLowcard,
		RoomID:    roomID,
		BetAmount: amount,
		Result:    domain.GameResultLose,
		Reward:    0,
	}
	if err := e.history.Create(ctx, gh); err != nil {
		logger.Warn("lowcard start history insert failed", "roomId", roomID, "error", err)
	}

	if err := e.saveGame(ctx, snap); err != nil {
		logger.Error("lowcard start snapshot write failed", "roomId", roomID, "error", err)
		e.refundOne(ctx, userID, amount, username, refundReason(roomID))
		return creationFailed()
	}

	// verify the snapshot actually landed before taking more bets
	check, err := e.loadGame(ctx, roomID)
	if err != nil || check == nil || check.StartedBy != userID {
		logger.Error("lowcard start verification failed", "roomId", roomID, "error", err)
		e.refundOne(ctx, userID, amount, username, refundReason(roomID))
		e.cleanupKeys(ctx, roomID)
		return creationFailed()
	}

	if err := e.writeTimer(ctx, roomID, PhaseJoin, snap.JoinDeadline, 0); err != nil {
		logger.Error("lowcard start timer write failed", "roomId", roomID, "error", err)
		e.refundOne(ctx, userID, amount, username, refundReason(roomID))
		e.cleanupKeys(ctx, roomID)
		return creationFailed()
	}

	metrics.GamesStarted.WithLabelValues(string(domain.GameTypeLowcard)).Inc()
	metrics.ActiveGames.Inc()

	e.bc.ToRoom(ctx, roomID, broadcast.EventGameStarted, map[string]any{
		"roomId":       roomID,
		"startedBy":    userID,
		"username":     username,
		"entryAmount":  amount,
		"joinDeadline": snap.JoinDeadline,
	})
	e.creditsUpdated(ctx, roomID, userID, dres.Balance)

	msg := fmt.Sprintf("LowCard started by %s! Entry %d credits. Type !j to join, game starts in %d seconds!",
		username, amount, int(joinWindow.Seconds()))
	e.chat(ctx, roomID, msg)
	return game.Ok(msg)
}

// JoinGame adds a player to a waiting game.
func (e *Engine) JoinGame(ctx context.Context, roomID string, userID int64, username string) *game.Result {
	token, acquired, err := e.locks.AcquireWithRetry(ctx, joinLockKey(roomID), joinLockTTL, 5, 100*time.Millisecond)
	if err != nil || !acquired {
		return game.Busy()
	}
	defer e.release(ctx, joinLockKey(roomID), token)

	g, err := e.loadGame(ctx, roomID)
	if err != nil {
		logger.Error("lowcard join load failed", "roomId", roomID, "error", err)
		return game.Busy()
	}
	if g == nil {
		return game.Silent()
	}
	if g.Status != domain.GameStatusWaiting {
		return game.Pvt("Game has already started!")
	}
	if nowMs() > g.JoinDeadline {
		return game.Pvt("Join time is over!")
	}
	if g.FindPlayer(userID) != nil {
		return game.Pvt("You already joined!")
	}

	dres, err := e.ledger.Deduct(ctx, userID, g.EntryAmount, username, string(domain.GameTypeLowcard), entryReason(roomID), g.GameSessionID)
	if err != nil {
		logger.Error("lowcard join deduct failed", "roomId", roomID, "userId", userID, "error", err)
		return game.Pvt("Join failed, please try again.")
	}
	if !dres.Success {
		return game.Pvt("Not enough credits.")
	}

	g.Players = append(g.Players, &domain.Player{UserID: userID, Username: username})
	g.Pot += g.EntryAmount

	if err := e.saveGame(ctx, g); err != nil {
		logger.Error("lowcard join snapshot write failed", "roomId", roomID, "error", err)
		e.refundOne(ctx, userID, g.EntryAmount, username, refundReason(roomID))
		return game.Pvt("Join failed, credits refunded. Try again.")
	}

	e.bc.ToRoom(ctx, roomID, broadcast.EventPlayerJoined, map[string]any{
		"roomId":      roomID,
		"userId":      userID,
		"username":    username,
		"pot":         g.Pot,
		"playerCount": len(g.Players),
	})
	e.creditsUpdated(ctx, roomID, userID, dres.Balance)

	msg := fmt.Sprintf("%s joined the game! (%d players, pot %d)", username, len(g.Players), g.Pot)
	e.chat(ctx, roomID, msg)
	return game.Ok(msg)
}

// CancelByStarter cancels a waiting game on the starter's request.
func (e *Engine) CancelByStarter(ctx context.Context, roomID string, userID int64) *game.Result {
	g, err := e.loadGame(ctx, roomID)
	if err != nil {
		return game.Busy()
	}
	if g == nil {
		return game.Silent()
	}
	if g.Status != domain.GameStatusWaiting {
		return game.Pvt("Game already started, cannot cancel!")
	}
	if g.StartedBy != userID {
		return game.Pvt("Only the game starter can cancel.")
	}

	e.refundAll(ctx, g, cancelReason(roomID))
	e.cleanupAfterAbort(ctx, g, "starter_cancel")
	e.bc.ToRoom(ctx, roomID, broadcast.EventGameCancelled, map[string]any{
		"roomId": roomID,
		"reason": "cancelled",
	})
	msg := "Game cancelled. Credits refunded."
	e.chat(ctx, roomID, msg)
	return game.Ok(msg)
}

// StopGame stops a waiting game. Permission is the router's problem.
func (e *Engine) StopGame(ctx context.Context, roomID string) *game.Result {
	g, err := e.loadGame(ctx, roomID)
	if err != nil {
		return game.Busy()
	}
	if g == nil {
		return game.Silent()
	}
	if g.Status != domain.GameStatusWaiting {
		return game.Pvt("Game already started, cannot stop!")
	}

	e.refundAll(ctx, g, cancelReason(roomID))
	e.cleanupAfterAbort(ctx, g, "stopped")
	e.bc.ToRoom(ctx, roomID, broadcast.EventGameCancelled, map[string]any{
		"roomId": roomID,
		"reason": "stopped",
	})
	msg := "Game stopped. Credits refunded."
	e.chat(ctx, roomID, msg)
	return game.Ok(msg)
}

// ResetGame wipes the room's game state unconditionally, refunding every
// player still in the running.
func (e *Engine) ResetGame(ctx context.Context, roomID, byUsername string) *game.Result {
	g, err := e.loadGame(ctx, roomID)
	if err != nil {
		return game.Busy()
	}
	if g == nil {
		// nothing to refund, still clear leftovers
		e.cleanupKeys(ctx, roomID)
		return game.Ok("Game state cleared.")
	}

	e.refundAll(ctx, g, resetReason(roomID))
	e.cleanupAfterAbort(ctx, g, "reset")
	e.bc.ToRoom(ctx, roomID, broadcast.EventGameCancelled, map[string]any{
		"roomId": roomID,
		"reason": "reset",
	})
	msg := fmt.Sprintf("Game reset by %s. Credits refunded.", byUsername)
	e.chat(ctx, roomID, msg)
	return game.Ok(msg)
}

// checkAndCleanupStaleGame refunds and deletes a waiting game whose join
// deadline lapsed long ago. Runs at the top of StartGame.
func (e *Engine) checkAndCleanupStaleGame(ctx context.Context, roomID string) {
	g, err := e.loadGame(ctx, roomID)
	if err != nil || g == nil {
		return
	}
	if g.Status != domain.GameStatusWaiting {
		return
	}
	if nowMs() <= g.JoinDeadline+staleAfter.Milliseconds() {
		return
	}

	logger.Warn("lowcard stale game cleaned", "roomId", roomID, "players", len(g.Players))
	e.refundAll(ctx, g, refundReason(roomID))
	e.cleanupAfterAbort(ctx, g, "stale")
	e.chat(ctx, roomID, "Stale game cleaned up. Credits refunded.")
}

// isStuck detects a waiting game that lost its timer and is old enough
// that no begin transition can still be coming.
func (e *Engine) isStuck(ctx context.Context, g *domain.Game) bool {
	t, err := e.readTimer(ctx, g.RoomID)
	if err != nil || t != nil {
		return false
	}
	return time.Since(g.CreatedAt) > stuckAfter
}

// roomLimits resolves entry bounds for the room. Big-game rooms raise the
// minimum and drop the cap entirely.
func (e *Engine) roomLimits(ctx context.Context, roomID string) (minEntry, maxEntry int64, bigGame bool, err error) {
	room, err := e.rooms.GetByID(ctx, roomID)
	if err != nil {
		return 0, 0, false, err
	}
	if room != nil && room.IsBigGame() {
		return e.limits.BigGameMinEntry, 0, true, nil
	}
	return e.limits.MinEntry, e.limits.MaxEntry, false, nil
}

// refundAll pays every non-eliminated player their entry back. Outcomes
// are logged one player at a time so a single failure is traceable.
func (e *Engine) refundAll(ctx context.Context, g *domain.Game, reason string) {
	for _, p := range g.ActivePlayers() {
		e.refundOne(ctx, p.UserID, g.EntryAmount, p.Username, reason)
	}
}

func (e *Engine) refundOne(ctx context.Context, userID, amount int64, username, reason string) {
	balance, err := e.ledger.Credit(ctx, userID, amount, username, reason)
	if err != nil {
		metrics.RefundFailures.WithLabelValues(string(domain.GameTypeLowcard)).Inc()
		logger.Error("CRITICAL: lowcard refund failed",
			"userId", userID, "amount", amount, "reason", reason, "error", err)
		return
	}
	metrics.Refunds.WithLabelValues(string(domain.GameTypeLowcard)).Inc()
	logger.Info("lowcard refund paid", "userId", userID, "amount", amount, "reason", reason)
	e.creditsUpdated(ctx, "", userID, balance)
}

// cleanupAfterAbort clears keys, closes the DB row and rolls the gauge
// back for any game that ends without a winner.
func (e *Engine) cleanupAfterAbort(ctx context.Context, g *domain.Game, cause string) {
	e.cleanupKeys(ctx, g.RoomID)
	if err := e.games.CancelOpen(ctx, g.RoomID); err != nil {
		logger.Warn("lowcard cancel row update failed", "roomId", g.RoomID, "error", err)
	}
	metrics.GamesCancelled.WithLabelValues(string(domain.GameTypeLowcard), cause).Inc()
	metrics.ActiveGames.Dec()
}

func (e *Engine) release(ctx context.Context, key, token string) {
	if _, err := e.locks.Release(ctx, key, token); err != nil {
		logger.Warn("lowcard lock release failed", "key", key, "error", err)
	}
}

func (e *Engine) chat(ctx context.Context, roomID, text string) {
	e.bc.ToRoom(ctx, roomID, broadcast.EventChatMessage, map[string]any{
		"roomId":  roomID,
		"sender":  "LowCardBot",
		"message": text,
	})
}

func (e *Engine) creditsUpdated(ctx context.Context, roomID string, userID, balance int64) {
	e.bc.ToRoom(ctx, roomID, broadcast.EventCreditsUpdated, map[string]any{
		"roomId":  roomID,
		"userId":  userID,
		"balance": balance,
	})
}

func entryReason(roomID string) string {
	return fmt.Sprintf("LowCard Entry - Room %s", roomID)
}

func refundReason(roomID string) string {
	return fmt.Sprintf("LowCard Refund - Room %s", roomID)
}

func cancelReason(roomID string) string {
	return fmt.Sprintf("LowCard Refund - Game Cancelled (Room %s)", roomID)
}

func resetReason(roomID string) string {
	return fmt.Sprintf("LowCard Refund - Game Reset (Room %s)", roomID)
}
