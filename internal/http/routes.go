package http

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"chatgames/internal/http/handlers"
	"chatgames/internal/ws"
)

// RegisterRoutes wires the HTTP surface: health probes for the
// orchestrator and the websocket endpoint chat clients attach to.
// The /metrics endpoint is registered by the caller so the game
// binaries can decide whether to expose it.
func RegisterRoutes(r *gin.Engine, db *pgxpool.Pool, rdb *redis.Client, version string, hub *ws.Hub, inbound func(ws.Inbound)) {
	healthHandler := handlers.NewHealthHandler(db, rdb, version)

	// Health checks (no auth)
	r.GET("/health", healthHandler.Health)
	r.GET("/healthz", healthHandler.Liveness)
	r.GET("/readyz", healthHandler.Readiness)

	// WebSocket endpoint for chat rooms
	r.GET("/ws", ws.HandleWS(hub, inbound))
}
