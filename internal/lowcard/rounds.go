package lowcard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chatgames/internal/broadcast"
	"chatgames/internal/domain"
	"chatgames/internal/game"
	"chatgames/internal/logger"
	"chatgames/internal/metrics"
)

// BeginGame closes the join window. Invoked by the poller when the join
// timer expires; re-dispatch is safe because the timer itself is the
// idempotency guard.
func (e *Engine) BeginGame(ctx context.Context, roomID string) {
	token, acquired, err := e.locks.Acquire(ctx, joinLockKey(roomID), joinLockTTL)
	if err != nil || !acquired {
		// a join is in flight, the next tick retries
		return
	}
	defer e.release(ctx, joinLockKey(roomID), token)

	t, err := e.readTimer(ctx, roomID)
	if err != nil || t == nil || t.Phase != PhaseJoin || nowMs() < t.ExpiresAt {
		return
	}

	g, err := e.loadGame(ctx, roomID)
	if err != nil {
		return
	}
	if g == nil || g.Status != domain.GameStatusWaiting {
		e.clearTimer(ctx, roomID)
		return
	}

	if len(g.Players) < 2 {
		for _, p := range g.Players {
			e.refundOne(ctx, p.UserID, g.EntryAmount, p.Username, refundReason(roomID))
		}
		e.cleanupAfterAbort(ctx, g, "not_enough_players")
		e.bc.ToRoom(ctx, roomID, broadcast.EventGameCancelled, map[string]any{
			"roomId": roomID,
			"reason": "not_enough_players",
		})
		e.chat(ctx, roomID, "Not enough players! Game cancelled, credits refunded.")
		return
	}

	if err := e.decks.Init(ctx, roomID); err != nil {
		logger.Error("lowcard deck init failed", "roomId", roomID, "error", err)
		e.refundAll(ctx, g, refundReason(roomID))
		e.cleanupAfterAbort(ctx, g, "deck_init_failed")
		e.chat(ctx, roomID, "Game failed to start, credits refunded.")
		return
	}

	g.Status = domain.GameStatusPlaying
	g.CurrentRound = 1
	g.IsRoundStarted = false
	for _, p := range g.Players {
		p.HasDrawn = false
		p.CurrentCard = nil
	}
	g.CountdownEndsAt = nowMs() + countdownDelay.Milliseconds()
	g.RoundDeadline = g.CountdownEndsAt + roundWindow.Milliseconds()

	if err := e.saveGame(ctx, g); err != nil {
		logger.Error("lowcard begin snapshot write failed", "roomId", roomID, "error", err)
		e.refundAll(ctx, g, refundReason(roomID))
		e.cleanupAfterAbort(ctx, g, "snapshot_write_failed")
		e.chat(ctx, roomID, "Game failed to start, credits refunded.")
		return
	}
	if err := e.writeTimer(ctx, roomID, PhaseCountdown, g.CountdownEndsAt, g.CurrentRound); err != nil {
		logger.Error("lowcard countdown timer write failed", "roomId", roomID, "error", err)
	}

	e.bc.ToRoom(ctx, roomID, broadcast.EventCountdown, map[string]any{
		"roomId":          roomID,
		"playerCount":     len(g.Players),
		"pot":             g.Pot,
		"countdownEndsAt": g.CountdownEndsAt,
	})
	e.chat(ctx, roomID, fmt.Sprintf("Game starting with %d players! Pot: %d credits. Get ready...",
		len(g.Players), g.Pot))
}

// StartRound opens the draw window once the countdown runs out.
func (e *Engine) StartRound(ctx context.Context, roomID string) {
	t, err := e.readTimer(ctx, roomID)
	if err != nil || t == nil || t.Phase != PhaseCountdown || nowMs() < t.ExpiresAt {
		return
	}

	g, err := e.loadGame(ctx, roomID)
	if err != nil {
		return
	}
	if g == nil || g.Status != domain.GameStatusPlaying {
		e.clearTimer(ctx, roomID)
		return
	}
	if g.IsRoundStarted || t.RoundNumber != g.CurrentRound {
		return
	}

	g.IsRoundStarted = true
	g.RoundDeadline = nowMs() + roundWindow.Milliseconds()

	if err := e.saveGame(ctx, g); err != nil {
		logger.Error("lowcard round snapshot write failed", "roomId", roomID, "error", err)
		return
	}
	if err := e.writeTimer(ctx, roomID, PhaseRound, g.RoundDeadline, g.CurrentRound); err != nil {
		logger.Error("lowcard round timer write failed", "roomId", roomID, "error", err)
	}

	e.bc.ToRoom(ctx, roomID, broadcast.EventRoundStarted, map[string]any{
		"roomId":        roomID,
		"round":         g.CurrentRound,
		"isTieBreaker":  g.IsTieBreaker,
		"roundDeadline": g.RoundDeadline,
	})

	if g.IsTieBreaker {
		e.chat(ctx, roomID, fmt.Sprintf("Tie-breaker! %s - draw again! Type !d (%d seconds)",
			playerNames(g.ScopePlayers()), int(roundWindow.Seconds())))
	} else {
		e.chat(ctx, roomID, fmt.Sprintf("Round %d - Draw your cards! Type !d (%d seconds)",
			g.CurrentRound, int(roundWindow.Seconds())))
	}
}

// DrawCardForPlayer handles !d from a player.
func (e *Engine) DrawCardForPlayer(ctx context.Context, roomID string, userID int64, username string) *game.Result {
	token, acquired, err := e.locks.Acquire(ctx, drawLockKey(roomID), drawLockTTL)
	if err != nil {
		logger.Error("lowcard draw lock failed", "roomId", roomID, "error", err)
		return game.Busy()
	}
	if !acquired {
		return game.Busy()
	}
	defer e.release(ctx, drawLockKey(roomID), token)

	g, err := e.loadGame(ctx, roomID)
	if err != nil {
		logger.Error("lowcard draw load failed", "roomId", roomID, "error", err)
		return game.Busy()
	}
	if g == nil || g.Status == domain.GameStatusFinished {
		return game.Silent()
	}
	if g.Status == domain.GameStatusWaiting {
		return game.Pvt("Game hasn't started yet!")
	}
	if !g.IsRoundStarted {
		// countdown still running, draws are simply ignored
		return game.Silent()
	}

	p := g.FindPlayer(userID)
	if p == nil {
		return game.Pvt("You are not in this game!")
	}
	if p.IsEliminated {
		return game.Pvt("You have been eliminated!")
	}
	if g.IsTieBreaker && !p.InTieBreaker {
		return game.Pvt("Only tied players draw in a tie-breaker!")
	}
	if p.HasDrawn {
		return game.Pvt("You already drew a card!")
	}

	card, err := e.decks.Draw(ctx, roomID)
	if err != nil {
		logger.Error("lowcard draw failed", "roomId", roomID, "userId", userID, "error", err)
		return game.Pvt("Draw failed, please try again.")
	}
	p.CurrentCard = &card
	p.HasDrawn = true

	if err := e.saveGame(ctx, g); err != nil {
		logger.Error("lowcard draw snapshot write failed", "roomId", roomID, "error", err)
		return game.Pvt("Draw failed, please try again.")
	}

	e.bc.ToRoom(ctx, roomID, broadcast.EventDraw, map[string]any{
		"roomId":   roomID,
		"userId":   userID,
		"username": username,
		"card":     card,
		"auto":     false,
	})
	msg := fmt.Sprintf("%s draws: [CARD:%s]", username, card.Code)
	e.chat(ctx, roomID, msg)

	if allDrawn(g.ScopePlayers()) {
		e.tallyRound(ctx, g)
	}
	return game.Ok(msg)
}

// HandleRoundTimeout auto-draws for everyone who slept through the round
// and tallies.
func (e *Engine) HandleRoundTimeout(ctx context.Context, roomID string) {
	t, err := e.readTimer(ctx, roomID)
	if err != nil || t == nil || t.Phase != PhaseRound || nowMs() < t.ExpiresAt {
		return
	}

	g, err := e.loadGame(ctx, roomID)
	if err != nil {
		return
	}
	if g == nil || g.Status != domain.GameStatusPlaying {
		e.clearTimer(ctx, roomID)
		return
	}
	if !g.IsRoundStarted || t.RoundNumber != g.CurrentRound {
		return
	}

	for _, p := range g.ScopePlayers() {
		if p.HasDrawn {
			continue
		}
		card, err := e.decks.Draw(ctx, roomID)
		if err != nil {
			logger.Error("lowcard auto-draw failed", "roomId", roomID, "userId", p.UserID, "error", err)
			continue
		}
		p.CurrentCard = &card
		p.HasDrawn = true

		e.bc.ToRoom(ctx, roomID, broadcast.EventDraw, map[string]any{
			"roomId":   roomID,
			"userId":   p.UserID,
			"username": p.Username,
			"card":     card,
			"auto":     true,
		})
		e.chat(ctx, roomID, fmt.Sprintf("Bot draws - %s: [CARD:%s]", p.Username, card.Code))
	}

	if err := e.saveGame(ctx, g); err != nil {
		logger.Error("lowcard timeout snapshot write failed", "roomId", roomID, "error", err)
		return
	}
	e.tallyRound(ctx, g)
}

// tallyRound resolves the round: one lowest card eliminates its holder,
// several lowest cards send their holders into a tie-breaker. Callers hold
// the game in a consistent, fully-drawn state.
func (e *Engine) tallyRound(ctx context.Context, g *domain.Game) {
	scope := g.ScopePlayers()
	lowest := lowestPlayers(scope)
	if len(lowest) == 0 {
		logger.Error("lowcard tally found no cards", "roomId", g.RoomID, "round", g.CurrentRound)
		return
	}

	if len(lowest) > 1 {
		e.startTieBreaker(ctx, g, lowest)
		return
	}

	loser := lowest[0]
	loser.IsEliminated = true

	prefix := ""
	if g.WasTieBreaker {
		prefix = "Tie broken! "
	}
	g.IsTieBreaker = false
	g.WasTieBreaker = false
	for _, p := range g.Players {
		p.InTieBreaker = false
	}

	e.bc.ToRoom(ctx, g.RoomID, broadcast.EventRoundTallied, map[string]any{
		"roomId":       g.RoomID,
		"round":        g.CurrentRound,
		"eliminatedId": loser.UserID,
		"eliminated":   loser.Username,
		"card":         loser.CurrentCard,
		"remaining":    len(g.ActivePlayers()),
	})
	e.chat(ctx, g.RoomID, fmt.Sprintf("%s%s is eliminated with [CARD:%s]!",
		prefix, loser.Username, loser.CurrentCard.Code))

	remaining := g.ActivePlayers()
	if len(remaining) < 2 {
		e.finishGame(ctx, g, remaining[0])
		return
	}

	g.CurrentRound++
	for _, p := range remaining {
		p.HasDrawn = false
		p.CurrentCard = nil
	}
	e.scheduleNextRound(ctx, g)
}

// startTieBreaker narrows the draw scope to the tied players and queues
// another round.
func (e *Engine) startTieBreaker(ctx context.Context, g *domain.Game, tied []*domain.Player) {
	tiedSet := make(map[int64]bool, len(tied))
	for _, p := range tied {
		tiedSet[p.UserID] = true
	}

	g.IsTieBreaker = true
	g.WasTieBreaker = true
	for _, p := range g.Players {
		p.InTieBreaker = !p.IsEliminated && tiedSet[p.UserID]
		if p.InTieBreaker {
			p.HasDrawn = false
			p.CurrentCard = nil
		}
	}

	card := tied[0].CurrentCard
	e.bc.ToRoom(ctx, g.RoomID, broadcast.EventRoundTallied, map[string]any{
		"roomId":      g.RoomID,
		"round":       g.CurrentRound,
		"tie":         true,
		"tiedPlayers": playerNames(tied),
	})
	e.chat(ctx, g.RoomID, fmt.Sprintf("Tie! %s all drew a %d! Tie-breaker round...",
		playerNames(tied), valueOf(card)))

	g.CurrentRound++
	e.scheduleNextRound(ctx, g)
}

// scheduleNextRound resets the countdown phase for the upcoming round.
func (e *Engine) scheduleNextRound(ctx context.Context, g *domain.Game) {
	g.IsRoundStarted = false
	g.CountdownEndsAt = nowMs() + countdownDelay.Milliseconds()
	g.RoundDeadline = g.CountdownEndsAt + roundWindow.Milliseconds()

	if err := e.saveGame(ctx, g); err != nil {
		logger.Error("lowcard next round snapshot write failed", "roomId", g.RoomID, "error", err)
		return
	}
	if err := e.writeTimer(ctx, g.RoomID, PhaseCountdown, g.CountdownEndsAt, g.CurrentRound); err != nil {
		logger.Error("lowcard next round timer write failed", "roomId", g.RoomID, "error", err)
	}
}

// finishGame pays the last player standing and closes the durable records.
// The finished snapshot is written before any payout so a crash in between
// can never trigger a restart refund on top of the win.
func (e *Engine) finishGame(ctx context.Context, g *domain.Game, winner *domain.Player) {
	now := time.Now()
	houseFee := g.Pot * e.limits.HouseFeePercent / 100
	winnings := g.Pot - houseFee

	g.Status = domain.GameStatusFinished
	g.IsRoundStarted = false
	g.WinnerID = winner.UserID
	g.WinnerUsername = winner.Username
	g.Winnings = winnings
	g.HouseFee = houseFee
	g.FinishedAt = &now

	if err := e.saveGame(ctx, g); err != nil {
		logger.Error("lowcard finish snapshot write failed", "roomId", g.RoomID, "error", err)
	}
	e.clearTimer(ctx, g.RoomID)

	balance, err := e.ledger.Credit(ctx, winner.UserID, winnings, winner.Username, winReason(g.RoomID))
	if err != nil {
		logger.Error("CRITICAL: lowcard win payout failed",
			"roomId", g.RoomID, "userId", winner.UserID, "amount", winnings, "error", err)
	} else {
		e.creditsUpdated(ctx, g.RoomID, winner.UserID, balance)
	}

	gh := &domain.GameHistory{
		UserID:    winner.UserID,
		Username:  winner.Username,
		GameType:  domain.GameTypeLowcard,
		RoomID:    g.RoomID,
		BetAmount: g.EntryAmount,
		Result:    domain.GameResultWin,
		Reward:    winnings,
	}
	if err := e.history.Create(ctx, gh); err != nil {
		logger.Warn("lowcard win history insert failed", "roomId", g.RoomID, "error", err)
	}

	commission := e.payMerchantCommission(ctx, g, houseFee)

	row := &domain.LowcardGame{
		ID:          g.DBGameID,
		RoomID:      g.RoomID,
		Status:      domain.GameStatusFinished,
		Pot:         g.Pot,
		WinnerID:    &winner.UserID,
		Winnings:    winnings,
		HouseFee:    houseFee,
		Commission:  commission,
		PlayerCount: len(g.Players),
		FinishedAt:  &now,
	}
	if err := e.games.FinishGame(ctx, row); err != nil {
		logger.Warn("lowcard finish row update failed", "roomId", g.RoomID, "error", err)
	}
	hist := &domain.LowcardHistory{
		GameID:         g.DBGameID,
		RoomID:         g.RoomID,
		WinnerID:       winner.UserID,
		WinnerUsername: winner.Username,
		Pot:            g.Pot,
		Winnings:       winnings,
		HouseFee:       houseFee,
		Commission:     commission,
		PlayerCount:    len(g.Players),
		Rounds:         g.CurrentRound,
	}
	if err := e.games.InsertHistory(ctx, hist); err != nil {
		logger.Warn("lowcard history insert failed", "roomId", g.RoomID, "error", err)
	}

	e.cleanupKeys(ctx, g.RoomID)

	metrics.GamesFinished.WithLabelValues(string(domain.GameTypeLowcard)).Inc()
	metrics.ActiveGames.Dec()

	e.bc.ToRoom(ctx, g.RoomID, broadcast.EventGameFinished, map[string]any{
		"roomId":         g.RoomID,
		"winnerId":       winner.UserID,
		"winnerUsername": winner.Username,
		"pot":            g.Pot,
		"winnings":       winnings,
		"houseFee":       houseFee,
		"rounds":         g.CurrentRound,
	})
	e.chat(ctx, g.RoomID, fmt.Sprintf("%s wins %d credits! (pot %d, house fee %d)",
		winner.Username, winnings, g.Pot, houseFee))
}

// payMerchantCommission pays the starter's active merchant a cut of the
// house fee. Returns the amount paid.
func (e *Engine) payMerchantCommission(ctx context.Context, g *domain.Game, houseFee int64) int64 {
	tag, err := e.merchants.ActiveTagFor(ctx, g.StartedBy)
	if err != nil {
		logger.Warn("lowcard merchant lookup failed", "roomId", g.RoomID, "userId", g.StartedBy, "error", err)
		return 0
	}
	if tag == nil {
		return 0
	}
	commission := houseFee * 10 / 100
	if commission <= 0 {
		return 0
	}
	if _, err := e.ledger.Credit(ctx, tag.MerchantID, commission, "", commissionReason(g.RoomID)); err != nil {
		logger.Error("lowcard commission payout failed",
			"roomId", g.RoomID, "merchantId", tag.MerchantID, "amount", commission, "error", err)
		return 0
	}
	logger.Info("lowcard commission paid",
		"roomId", g.RoomID, "merchantId", tag.MerchantID, "amount", commission)
	return commission
}

func allDrawn(players []*domain.Player) bool {
	for _, p := range players {
		if !p.HasDrawn {
			return false
		}
	}
	return len(players) > 0
}

// lowestPlayers returns every player holding the round's lowest card.
// Suits never break ties.
func lowestPlayers(players []*domain.Player) []*domain.Player {
	low := 0
	var out []*domain.Player
	for _, p := range players {
		if p.CurrentCard == nil {
			continue
		}
		v := p.CurrentCard.Value
		switch {
		case low == 0 || v < low:
			low = v
			out = out[:0]
			out = append(out, p)
		case v == low:
			out = append(out, p)
		}
	}
	return out
}

func playerNames(players []*domain.Player) string {
	names := make([]string, 0, len(players))
	for _, p := range players {
		names = append(names, p.Username)
	}
	return strings.Join(names, ", ")
}

func valueOf(c *domain.Card) int {
	if c == nil {
		return 0
	}
	return c.Value
}

func winReason(roomID string) string {
	return fmt.Sprintf("LowCard Win - Room %s", roomID)
}

func commissionReason(roomID string) string {
	return fmt.Sprintf("LowCard Merchant Commission - Room %s", roomID)
}
