package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	GamesStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "games_started_total",
			Help: "Games successfully started",
		},
		[]string{"game"},
	)
	GamesFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "games_finished_total",
			Help: "Games that ended with a winner",
		},
		[]string{"game"},
	)
	GamesCancelled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "games_cancelled_total",
			Help: "Games cancelled, stopped, reset or cleaned up before finishing",
		},
		[]string{"game", "reason"},
	)
	Refunds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "game_refunds_total",
			Help: "Individual player refunds paid out",
		},
		[]string{"game"},
	)
	RefundFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "game_refund_failures_total",
			Help: "Refund attempts that failed and need manual review",
		},
		[]string{"game"},
	)
	LockContention = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lock_contention_total",
			Help: "Lock acquisitions that failed because another holder was active",
		},
		[]string{"kind"},
	)
	Commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commands_total",
			Help: "Chat commands dispatched, by router bucket",
		},
		[]string{"bucket"},
	)
	CommandsRateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "commands_rate_limited_total",
			Help: "Chat commands dropped by the per-user rate limiter",
		},
	)
	ActiveGames = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_games",
			Help: "Games currently in waiting or playing state",
		},
	)
	TimerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timer_transitions_total",
			Help: "Expired timers dispatched by the poller",
		},
		[]string{"phase"},
	)
)

func init() {
	prometheus.MustRegister(GamesStarted)
	prometheus.MustRegister(GamesFinished)
	prometheus.MustRegister(GamesCancelled)
	prometheus.MustRegister(Refunds)
	prometheus.MustRegister(RefundFailures)
	prometheus.MustRegister(LockContention)
	prometheus.MustRegister(Commands)
	prometheus.MustRegister(CommandsRateLimited)
	prometheus.MustRegister(ActiveGames)
	prometheus.MustRegister(TimerTransitions)
}
