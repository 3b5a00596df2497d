package lowcard

import (
	"context"
	"strings"
	"time"

	"chatgames/internal/kv"
	"chatgames/internal/logger"
	"chatgames/internal/metrics"
	"chatgames/internal/serial"
)

// Poller scans the per-room timer keys on an interval and dispatches the
// expired ones onto the room's serial queue. Handlers re-check the timer
// themselves, so a duplicate or stale dispatch is a no-op.
type Poller struct {
	store  kv.Store
	engine *Engine
	runner *serial.Runner
}

func NewPoller(store kv.Store, engine *Engine, runner *serial.Runner) *Poller {
	return &Poller{store: store, engine: engine, runner: runner}
}

func (p *Poller) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	log := logger.Component("poller")
	log.Info("timer poller started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("stopping")
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	keys, err := p.store.Keys(ctx, "room:*:lowcard:timer")
	if err != nil {
		logger.Error("lowcard timer scan failed", "error", err)
		return
	}

	for _, key := range keys {
		roomID := roomFromTimerKey(key)
		if roomID == "" {
			continue
		}
		t, err := p.engine.readTimer(ctx, roomID)
		if err != nil || t == nil || nowMs() < t.ExpiresAt {
			continue
		}

		phase := t.Phase
		metrics.TimerTransitions.WithLabelValues(phase).Inc()
		p.runner.Do(roomID, func() {
			switch phase {
			case PhaseJoin:
				p.engine.BeginGame(ctx, roomID)
			case PhaseCountdown:
				p.engine.StartRound(ctx, roomID)
			case PhaseRound:
				p.engine.HandleRoundTimeout(ctx, roomID)
			default:
				logger.Warn("lowcard unknown timer phase", "roomId", roomID, "phase", phase)
				p.engine.clearTimer(ctx, roomID)
			}
		})
	}
}

func roomFromTimerKey(key string) string {
	rest, ok := strings.CutPrefix(key, "room:")
	if !ok {
		return ""
	}
	roomID, ok := strings.CutSuffix(rest, ":lowcard:timer")
	if !ok {
		return ""
	}
	return roomID
}
