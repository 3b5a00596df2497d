// Package recovery unwinds whatever the last process left behind. On boot
// it sweeps the open-game keys of every engine, refunds each recorded
// player, and deletes the leftovers, so a crash can cost players at most
// one restart's worth of waiting, never their stake.
package recovery

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"chatgames/internal/domain"
	"chatgames/internal/kv"
	"chatgames/internal/logger"
	"chatgames/internal/metrics"
)

// Ledger is the credit surface the sweeper refunds through.
type Ledger interface {
	Credit(ctx context.Context, userID, amount int64, username, reason string) (int64, error)
	InvalidateCache(ctx context.Context, userID int64)
}

// GameRecords closes the durable rows of games that never finished.
type GameRecords interface {
	CancelOpen(ctx context.Context, roomID string) error
}

/// flagBet mirrors the per-user entries of flagbot:room:{R}:bets.
type flagBet struct {
	Username string `json:"username"`
	Amount   int64  `json:"amount"`
}

// Sweeper scans the keyed store for games interrupted by a restart.
// Running it twice is safe: the first pass deletes everything it
// refunds, so the second finds nothing.
type Sweeper struct {
	store  kv.Store
	ledger Ledger
	games  GameRecords
}

func New(store kv.Store, ledger Ledger, games GameRecords) *Sweeper {
	return &Sweeper{store: store, ledger: ledger, games: games}
}

// Run executes the full sweep. Individual refund failures are logged and
// counted but never abort the rest of the sweep; only a broken key scan
// surfaces as an error.
func (s *Sweeper) Run(ctx context.Context) error {
	swept := 0

	n, err := s.sweepSnapshots(ctx, domain.GameTypeLowcard, "lowcard:game:*")
	if err != nil {
		return fmt.Errorf("recovery: lowcard scan: %w", err)
	}
	swept += n

	n, err = s.sweepSnapshots(ctx, domain.GameTypeDicebot, "dicebot:game:*")
	if err != nil {
		return fmt.Errorf("recovery: dicebot scan: %w", err)
	}
	swept += n

	n, err = s.sweepFlagBets(ctx)
	if err != nil {
		return fmt.Errorf("recovery: flagbot scan: %w", err)
	}
	swept += n

	if swept > 0 {
		logger.Info("restart recovery complete", "gamesSwept", swept)
	}
	return nil
}

func (s *Sweeper) sweepSnapshots(ctx context.Context, t domain.GameType, pattern string) (int, error) {
	keys, err := s.store.Keys(ctx, pattern)
	if err != nil {
		return 0, err
	}

	prefix := strings.TrimSuffix(pattern, "*")
	swept := 0
	for _, key := range keys {
		roomID := strings.TrimPrefix(key, prefix)
		if roomID == "" {
			continue
		}

		raw, err := s.store.Get(ctx, key)
		if err == kv.ErrNotFound {
			continue
		}
		if err != nil {
			logger.Error("recovery snapshot load failed", "key", key, "error", err)
			continue
		}

		var g domain.Game
		if err := json.Unmarshal([]byte(raw), &g); err != nil {
			logger.Warn("recovery snapshot unreadable, deleting", "key", key, "error", err)
			s.deleteGameKeys(ctx, t, roomID, key)
			continue
		}
		if g.Status == domain.GameStatusFinished {
			s.deleteGameKeys(ctx, t, roomID, key)
			continue
		}

		reason := restartReason(t, roomID)
		for _, p := range g.Players {
			s.refund(ctx, t, p.UserID, g.EntryAmount, p.Username, reason)
		}
		s.deleteGameKeys(ctx, t, roomID, key)

		if t == domain.GameTypeLowcard && s.games != nil {
			if err := s.games.CancelOpen(ctx, roomID); err != nil {
				logger.Warn("recovery row close failed", "roomId", roomID, "error", err)
			}
		}

		logger.Info("recovery refunded interrupted game",
			"game", t, "roomId", roomID, "players", len(g.Players), "entryAmount", g.EntryAmount)
		swept++
	}
	return swept, nil
}

func (s *Sweeper) sweepFlagBets(ctx context.Context) (int, error) {
	keys, err := s.store.Keys(ctx, "flagbot:room:*:bets")
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, key := range keys {
		roomID := strings.TrimSuffix(strings.TrimPrefix(key, "flagbot:room:"), ":bets")
		if roomID == "" {
			continue
		}

		entries, err := s.store.HGetAll(ctx, key)
		if err != nil {
			logger.Error("recovery bets load failed", "key", key, "error", err)
			continue
		}

		reason := restartReason(domain.GameTypeFlagbot, roomID)
		refunded := 0
		for field, raw := range entries {
			userID, err := strconv.ParseInt(field, 10, 64)
			if err != nil {
				logger.Warn("recovery bet field unreadable", "key", key, "field", field)
				continue
			}
			var b flagBet
			if err := json.Unmarshal([]byte(raw), &b); err != nil {
				logger.Warn("recovery bet value unreadable", "key", key, "userId", userID, "error", err)
				continue
			}
			if b.Amount <= 0 {
				continue
			}
			s.refund(ctx, domain.GameTypeFlagbot, userID, b.Amount, b.Username, reason)
			refunded++
		}

		if err := s.store.Del(ctx, key); err != nil {
			logger.Warn("recovery bets delete failed", "key", key, "error", err)
		}
		if refunded > 0 {
			logger.Info("recovery refunded open bets", "roomId", roomID, "bets", refunded)
			swept++
		}
	}
	return swept, nil
}

func (s *Sweeper) refund(ctx context.Context, t domain.GameType, userID, amount int64, username, reason string) {
	if _, err := s.ledger.Credit(ctx, userID, amount, username, reason); err != nil {
		metrics.RefundFailures.WithLabelValues(string(t)).Inc()
		logger.Error("CRITICAL: recovery refund failed",
			"game", t, "userId", userID, "amount", amount, "error", err)
		return
	}
	metrics.Refunds.WithLabelValues(string(t)).Inc()
	s.ledger.InvalidateCache(ctx, userID)
}

func (s *Sweeper) deleteGameKeys(ctx context.Context, t domain.GameType, roomID, gameKey string) {
	keys := []string{gameKey}
	if t == domain.GameTypeLowcard {
		keys = append(keys, "lowcard:deck:"+roomID, "room:"+roomID+":lowcard:timer")
	}
	if err := s.store.Del(ctx, keys...); err != nil {
		logger.Warn("recovery key cleanup failed", "roomId", roomID, "error", err)
	}
}

func restartReason(t domain.GameType, roomID string) string {
	return fmt.Sprintf("%s Refund - Server Restart (Room %s)", t.DisplayName(), roomID)
}
