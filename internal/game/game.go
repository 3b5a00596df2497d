// Package game holds the surface shared by every chat game: the result
// shape engine entry points answer commands with, and the per-room bot
// manager contract the command router drives.
package game

import (
	"context"

	"chatgames/internal/domain"
)

// Result is what an engine entry point wants said back to the invoker.
// IsPvt routes the message to the caller only; Silent drops it entirely.
// Public announcements are the engine's own broadcasts, never the Result.
type Result struct {
	Success bool
	Message string
	IsPvt   bool
	Silent  bool
}

// Ok reports a successful operation the engine already announced.
func Ok(msg string) *Result { return &Result{Success: true, Message: msg} }

// Pvt rejects with a message shown privately to the caller.
func Pvt(msg string) *Result { return &Result{Success: false, Message: msg, IsPvt: true} }

// Silent rejects with no chat output at all.
func Silent() *Result { return &Result{Success: false, Silent: true} }

// Busy is the transient lock-contention rejection; the user retries.
func Busy() *Result {
	return &Result{Success: false, Message: "Server busy, please try again.", IsPvt: true}
}

// Bot is the per-room bot manager every chat game exposes. The router uses
// it for the admin /bot commands and to ask "is your bot active?" when a
// lifecycle command arrives in a room with no active game binding.
type Bot interface {
	Type() domain.GameType
	IsBotActive(ctx context.Context, roomID string) (bool, error)
	AddBot(ctx context.Context, roomID string, defaultAmount int64) *Result
	RemoveBot(ctx context.Context, roomID string) *Result
}
