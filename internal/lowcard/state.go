package lowcard

import (
	"context"
	"encoding/json"
	"time"

	"chatgames/internal/domain"
	"chatgames/internal/kv"
	"chatgames/internal/logger"
)

// Key TTLs. The snapshot TTL is refreshed on every mutation, so only an
// abandoned game ever ages out; the timer TTL makes orphaned timers
// self-cleaning.
const (
	gameTTL      = time.Hour
	timerTTL     = 120 * time.Second
	startLockTTL = 30 * time.Second
	joinLockTTL  = 15 * time.Second
	drawLockTTL  = 15 * time.Second
)

// Phase windows.
const (
	joinWindow     = 30 * time.Second
	countdownDelay = 3 * time.Second
	roundWindow    = 20 * time.Second
	stuckAfter     = 40 * time.Second
	staleAfter     = 120 * time.Second
)

// Timer phases.
const (
	PhaseJoin      = "join"
	PhaseCountdown = "countdown"
	PhaseRound     = "round"
)

// TimerState is the per-room timer record the poller watches. Exactly one
// exists per active game; each phase transition overwrites it.
type TimerState struct {
	Phase       string    `json:"phase"`
	ExpiresAt   int64     `json:"expiresAt"` // epoch ms
	RoundNumber int       `json:"roundNumber"`
	CreatedAt   time.Time `json:"createdAt"`
}

func gameKey(roomID string) string      { return "lowcard:game:" + roomID }
func timerKey(roomID string) string     { return "room:" + roomID + ":lowcard:timer" }
func startLockKey(roomID string) string { return "lowcard:lock:" + roomID }
func joinLockKey(roomID string) string  { return "lowcard:joinlock:" + roomID }
func drawLockKey(roomID string) string  { return "lowcard:drawlock:" + roomID }

func nowMs() int64 {
	return time.Now().UnixMilli()
}

// loadGame returns the room's snapshot, or nil when there is none. A
// snapshot that no longer parses is logged and treated as absent.
func (e *Engine) loadGame(ctx context.Context, roomID string) (*domain.Game, error) {
	raw, err := e.store.Get(ctx, gameKey(roomID))
	if err == kv.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var g domain.Game
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		logger.Error("lowcard snapshot corrupt", "roomId", roomID, "error", err)
		return nil, nil
	}
	return &g, nil
}

// saveGame writes the snapshot back, refreshing its TTL.
func (e *Engine) saveGame(ctx context.Context, g *domain.Game) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return err
	}
	return e.store.Set(ctx, gameKey(g.RoomID), string(raw), gameTTL)
}

func (e *Engine) readTimer(ctx context.Context, roomID string) (*TimerState, error) {
	raw, err := e.store.Get(ctx, timerKey(roomID))
	if err == kv.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var t TimerState
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		logger.Error("lowcard timer corrupt", "roomId", roomID, "error", err)
		return nil, nil
	}
	return &t, nil
}

func (e *Engine) writeTimer(ctx context.Context, roomID, phase string, expiresAt int64, round int) error {
	t := TimerState{Phase: phase, ExpiresAt: expiresAt, RoundNumber: round, CreatedAt: time.Now()}
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return e.store.Set(ctx, timerKey(roomID), string(raw), timerTTL)
}

func (e *Engine) clearTimer(ctx context.Context, roomID string) {
	if err := e.store.Del(ctx, timerKey(roomID)); err != nil {
		logger.Warn("lowcard timer delete failed", "roomId", roomID, "error", err)
	}
}

// cleanupKeys removes everything the game left in the keyed store.
func (e *Engine) cleanupKeys(ctx context.Context, roomID string) {
	if err := e.store.Del(ctx, gameKey(roomID), timerKey(roomID)); err != nil {
		logger.Warn("lowcard key cleanup failed", "roomId", roomID, "error", err)
	}
	if err := e.decks.Delete(ctx, roomID); err != nil {
		logger.Warn("lowcard deck cleanup failed", "roomId", roomID, "error", err)
	}
}
