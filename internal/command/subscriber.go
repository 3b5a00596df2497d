package command

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"chatgames/internal/broadcast"
	"chatgames/internal/logger"
	"chatgames/internal/serial"
	"chatgames/internal/ws"
)

const commandTimeout = 30 * time.Second

// Subscriber consumes the cluster channels. Commands go through the
// per-room serializer into the router; mirrored chat/credit/private
// messages are forwarded to local sockets unless this replica published
// them (matched by origin).
type Subscriber struct {
	rdb    *redis.Client
	runner *serial.Runner
	router *Router
	hub    *ws.Hub
	origin string
}

func NewSubscriber(rdb *redis.Client, runner *serial.Runner, router *Router, hub *ws.Hub, origin string) *Subscriber {
	return &Subscriber{rdb: rdb, runner: runner, router: router, hub: hub, origin: origin}
}

func (s *Subscriber) Run(ctx context.Context) {
	log := logger.Component("subscriber")
	sub := s.rdb.Subscribe(ctx,
		broadcast.ChannelCommand,
		broadcast.ChannelChatMessage,
		broadcast.ChannelCreditsUpdate,
		broadcast.ChannelPrivateMessage,
	)
	defer sub.Close()
	log.Info("cluster channels attached", "origin", s.origin)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			log.Info("stopping")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.handle(msg.Channel, msg.Payload)
		}
	}
}

func (s *Subscriber) handle(channel, payload string) {
	switch channel {
	case broadcast.ChannelCommand:
		s.handleCommand(payload)
	case broadcast.ChannelChatMessage:
		s.handleChat(payload)
	case broadcast.ChannelCreditsUpdate:
		s.handleCredits(payload)
	case broadcast.ChannelPrivateMessage:
		s.handlePrivate(payload)
	}
}

func (s *Subscriber) handleCommand(payload string) {
	var m Message
	if err := json.Unmarshal([]byte(payload), &m); err != nil || m.RoomID == "" {
		logger.Warn("command payload unreadable", "error", err)
		return
	}
	s.runner.Do(m.RoomID, func() {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		s.router.Dispatch(ctx, m)
	})
}

func (s *Subscriber) handleChat(payload string) {
	var env struct {
		RoomID      string         `json:"roomId"`
		Origin      string         `json:"origin"`
		MessageData map[string]any `json:"messageData"`
	}
	if err := json.Unmarshal([]byte(payload), &env); err != nil || env.RoomID == "" {
		return
	}
	if env.Origin == s.origin {
		return
	}
	data, err := broadcast.MarshalEnvelope(broadcast.EventChatMessage, env.RoomID, env.MessageData)
	if err != nil {
		return
	}
	s.hub.SendToRoom(env.RoomID, data)
}

func (s *Subscriber) handleCredits(payload string) {
	var env struct {
		RoomID  string `json:"roomId"`
		Origin  string `json:"origin"`
		UserID  int64  `json:"userId"`
		Balance int64  `json:"balance"`
	}
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return
	}
	if env.Origin == s.origin || env.RoomID == "" {
		return
	}
	data, err := broadcast.MarshalEnvelope(broadcast.EventCreditsUpdated, env.RoomID, map[string]any{
		"roomId":  env.RoomID,
		"userId":  env.UserID,
		"balance": env.Balance,
	})
	if err != nil {
		return
	}
	s.hub.SendToRoom(env.RoomID, data)
}

func (s *Subscriber) handlePrivate(payload string) {
	var env struct {
		RoomID      string         `json:"roomId"`
		Origin      string         `json:"origin"`
		UserID      int64          `json:"userId"`
		MessageData map[string]any `json:"messageData"`
	}
	if err := json.Unmarshal([]byte(payload), &env); err != nil || env.RoomID == "" {
		return
	}
	if env.Origin == s.origin {
		return
	}
	data, err := broadcast.MarshalEnvelope(broadcast.EventChatMessage, env.RoomID, env.MessageData)
	if err != nil {
		return
	}
	s.hub.SendToUser(env.RoomID, env.UserID, data)
}
