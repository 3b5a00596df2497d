package ws

import (
	"log"
	"net/http"
	"os"

	"chatgames/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// HandleWS upgrades an authenticated connection and attaches it to the
// requested room. Every received line is handed to inbound, which feeds
// the command pipeline.
func HandleWS(hub *Hub, inbound func(Inbound)) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
			return
		}

		userID, username, err := service.ParseJWT(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		roomID := c.Query("room")
		if roomID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "room required"})
			return
		}

		allowedOrigin := os.Getenv("ALLOWED_ORIGIN")
		upgrader := websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Println("ws upgrade error:", err)
			return
		}

		client := NewClient(userID, username, roomID, uuid.NewString(), conn, hub, inbound)
		go client.Run()
	}
}
