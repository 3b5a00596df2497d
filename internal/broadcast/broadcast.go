package broadcast

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"chatgames/internal/kv"
	"chatgames/internal/logger"
	"chatgames/internal/ws"
)

// Domain events emitted by the game engines.
const (
	EventGameStarted    = "game:started"
	EventPlayerJoined   = "game:player:joined"
	EventCountdown      = "game:countdown"
	EventRoundStarted   = "game:round:started"
	EventDraw           = "game:draw"
	EventRoundTallied   = "game:round:tallied"
	EventGameFinished   = "game:finished"
	EventGameCancelled  = "game:cancelled"
	EventChatMessage    = "chat:message"
	EventCreditsUpdated = "credits:updated"
)

// Cross-replica pub/sub channels.
const (
	ChannelCommand        = "game:command"
	ChannelChatMessage    = "game:chat:message"
	ChannelCreditsUpdate  = "game:credits:update"
	ChannelPrivateMessage = "game:private:message"
)

// Broadcaster is the outbound surface the engines talk to. Payloads are
// free-form maps; the engines own their shapes.
type Broadcaster interface {
	ToRoom(ctx context.Context, roomID, event string, payload map[string]any)
	Emit(ctx context.Context, event string, payload map[string]any)
}

type envelope struct {
	Event   string         `json:"event"`
	RoomID  string         `json:"roomId,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// MarshalEnvelope renders the socket wire form. The subscriber uses it to
// forward mirrored messages in the same shape local emits have.
func MarshalEnvelope(event, roomID string, payload map[string]any) ([]byte, error) {
	return json.Marshal(envelope{Event: event, RoomID: roomID, Payload: payload})
}

// Service delivers events to local sockets through the hub and mirrors
// chat, credit and private messages onto the cluster channels so sibling
// replicas can forward them to their own sockets. Mirrored payloads carry
// this replica's origin id so the local subscriber can skip them.
type Service struct {
	hub    *ws.Hub
	store  kv.Store
	origin string
}

func New(hub *ws.Hub, store kv.Store) *Service {
	return &Service{hub: hub, store: store, origin: uuid.NewString()}
}

// Origin identifies this replica on the mirror channels.
func (s *Service) Origin() string { return s.origin }

func (s *Service) ToRoom(ctx context.Context, roomID, event string, payload map[string]any) {
	data, err := json.Marshal(envelope{Event: event, RoomID: roomID, Payload: payload})
	if err != nil {
		logger.Error("broadcast marshal failed", "event", event, "error", err)
		return
	}

	if isPrivate(payload) {
		uid, ok := payloadUserID(payload)
		if ok {
			s.hub.SendToUser(roomID, uid, data)
			s.publish(ctx, ChannelPrivateMessage, map[string]any{
				"roomId":      roomID,
				"userId":      uid,
				"messageData": payload,
				"origin":      s.origin,
			})
			return
		}
	}

	s.hub.SendToRoom(roomID, data)
	s.mirror(ctx, roomID, event, payload)
}

func (s *Service) Emit(ctx context.Context, event string, payload map[string]any) {
	data, err := json.Marshal(envelope{Event: event, Payload: payload})
	if err != nil {
		logger.Error("broadcast marshal failed", "event", event, "error", err)
		return
	}
	s.hub.Broadcast(data)

	roomID, _ := payload["roomId"].(string)
	s.mirror(ctx, roomID, event, payload)
}

func (s *Service) mirror(ctx context.Context, roomID, event string, payload map[string]any) {
	switch event {
	case EventChatMessage:
		s.publish(ctx, ChannelChatMessage, map[string]any{
			"roomId":      roomID,
			"messageData": payload,
			"origin":      s.origin,
		})
	case EventCreditsUpdated:
		uid, _ := payloadUserID(payload)
		s.publish(ctx, ChannelCreditsUpdate, map[string]any{
			"roomId":  roomID,
			"userId":  uid,
			"balance": payload["balance"],
			"origin":  s.origin,
		})
	}
}

func (s *Service) publish(ctx context.Context, channel string, msg map[string]any) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error("broadcast publish marshal failed", "channel", channel, "error", err)
		return
	}
	if err := s.store.Publish(ctx, channel, string(data)); err != nil {
		logger.Error("broadcast publish failed", "channel", channel, "error", err)
	}
}

func isPrivate(payload map[string]any) bool {
	t, _ := payload["type"].(string)
	return t == "private"
}

func payloadUserID(payload map[string]any) (int64, bool) {
	switch v := payload["userId"].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}
