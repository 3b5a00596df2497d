package game

import (
	"context"

	"chatgames/internal/domain"
)

// Bots is the fixed, ordered directory of installed game bots. Order
// matters: it is the polling order when a lifecycle command arrives in a
// room whose active-game binding is empty.
type Bots []Bot

// ByType returns the bot for the game type, or nil.
func (bs Bots) ByType(t domain.GameType) Bot {
	for _, b := range bs {
		if b.Type() == t {
			return b
		}
	}
	return nil
}

// FirstActive returns the first bot installed and active in the room, or
// nil when the room has none. Lookup errors are returned so the caller can
// tell "no bot" from "store down".
func (bs Bots) FirstActive(ctx context.Context, roomID string) (Bot, error) {
	for _, b := range bs {
		active, err := b.IsBotActive(ctx, roomID)
		if err != nil {
			return nil, err
		}
		if active {
			return b, nil
		}
	}
	return nil, nil
}
