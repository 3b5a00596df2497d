package ws

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 25 * time.Second
)

// Inbound is one chat line received from a socket, already attributed to
// its sender and room.
type Inbound struct {
	RoomID   string
	UserID   int64
	Username string
	Message  string
	SocketID string
}

type Client struct {
	UserID   int64
	Username string
	RoomID   string
	SocketID string
	Conn     *websocket.Conn
	Send     chan []byte

	hub     *Hub
	inbound func(Inbound)
}

func NewClient(userID int64, username, roomID, socketID string, conn *websocket.Conn, hub *Hub, inbound func(Inbound)) *Client {
	return &Client{
		UserID:   userID,
		Username: username,
		RoomID:   roomID,
		SocketID: socketID,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		hub:      hub,
		inbound:  inbound,
	}
}

func (c *Client) Run() {
	c.hub.Join(c.RoomID, c)
	go c.writePump()
	c.readPump()
}

//read
func (c *Client) readPump() {
	defer func() {
		c.hub.Leave(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Client.readPump: user=%d read error: %v", c.UserID, err)
			}
			return
		}

		// either {"message": "..."} or a bare text line
		text := string(raw)
		var envelope struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Message != "" {
			text = envelope.Message
		}

		if c.inbound != nil {
			c.inbound(Inbound{
				RoomID:   c.RoomID,
				UserID:   c.UserID,
				Username: c.Username,
				Message:  text,
				SocketID: c.SocketID,
			})
		}
	}
}

//write
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Printf("Client.writePump: user=%d write error: %v", c.UserID, err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
