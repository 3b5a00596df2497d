// Package command turns chat lines into game actions. The gateway filters
// and rate-limits raw socket input and publishes commands to the cluster
// channel; the subscriber consumes that channel on every replica and hands
// each command to the per-room serializer; the router decides which engine
// an individual command belongs to.
package command

import "strings"

// Message is one chat command as carried on the game:command channel.
type Message struct {
	RoomID   string `json:"roomId"`
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Message  string `json:"message"`
	SocketID string `json:"socketId,omitempty"`
}

// IsCommand reports whether a chat line addresses the engines rather than
// the room.
func IsCommand(text string) bool {
	text = strings.TrimSpace(text)
	return strings.HasPrefix(text, "!") || strings.HasPrefix(text, "/")
}
