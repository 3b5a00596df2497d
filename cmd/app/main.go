package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatgames/internal/broadcast"
	"chatgames/internal/command"
	"chatgames/internal/config"
	"chatgames/internal/db"
	"chatgames/internal/deck"
	"chatgames/internal/dicebot"
	"chatgames/internal/flagbot"
	"chatgames/internal/gamestate"
	httpServer "chatgames/internal/http"
	"chatgames/internal/kv"
	"chatgames/internal/ledger"
	"chatgames/internal/lock"
	"chatgames/internal/logger"
	"chatgames/internal/lowcard"
	"chatgames/internal/recovery"
	"chatgames/internal/repository"
	"chatgames/internal/serial"
	"chatgames/internal/service"
	"chatgames/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogJSON)
	service.InitJWT()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbPool := db.Connect(cfg.DatabaseURL)
	defer dbPool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("redis unreachable", "addr", cfg.RedisAddr, "error", err)
	}

	store := kv.NewRedis(rdb)

	userRepo := repository.NewUserRepository(dbPool)
	roomRepo := repository.NewRoomRepository(dbPool)
	lowcardRepo := repository.NewLowcardRepository(dbPool)
	historyRepo := repository.NewGameHistoryRepository(dbPool)
	merchantRepo := repository.NewMerchantRepository(dbPool)
	auditRepo := repository.NewAuditRepository(dbPool)

	lg := ledger.New(dbPool, store, merchantRepo)
	locks := lock.NewManager(store)
	decks := deck.New(store)
	bots := gamestate.New(store)

	hub := ws.NewHub()
	bc := broadcast.New(hub, store)

	engine := lowcard.NewEngine(store, locks, lg, decks, roomRepo,
		lowcardRepo, historyRepo, merchantRepo, bots, bc, lowcard.Limits{
			MinEntry:        cfg.MinEntry,
			MaxEntry:        cfg.MaxEntry,
			BigGameMinEntry: cfg.BigGameMinEntry,
			HouseFeePercent: cfg.HouseFeePercent,
		})
	dice := dicebot.New(store, bots, lg, bc)
	flag := flagbot.New(store, bots, lg, bc)

	// Refund games interrupted by the previous shutdown before anything
	// can start new ones.
	if err := recovery.New(store, lg, lowcardRepo).Run(ctx); err != nil {
		logger.Fatal("restart recovery failed", "error", err)
	}

	runner := serial.NewRunner()
	perms := command.NewAdminChecker(roomRepo, userRepo)
	router := command.NewRouter(engine, dice, flag, bots, perms, lg, auditRepo, bc)
	gateway := command.NewGateway(store, bc, cfg.CommandRateLimit, cfg.CommandRateWindow)

	sub := command.NewSubscriber(rdb, runner, router, hub, bc.Origin())
	go sub.Run(ctx)

	poller := lowcard.NewPoller(store, engine, runner)
	go poller.Run(ctx, cfg.TimerPollInterval)

	r := gin.Default()

	// CORS for production (frontend on different domain)
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		}
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	httpServer.RegisterRoutes(r, dbPool, rdb, version, hub, gateway.HandleInbound)

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: r,
	}

	go func() {
		logger.Info("server started", "port", cfg.AppPort, "version", version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel() // stops the poller and the subscriber

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// let in-flight room commands finish before the process exits
	runner.Drain()

	logger.Info("server exited")
}
