package gamestate

import (
	"context"
	"encoding/json"
	"time"

	"chatgames/internal/domain"
	"chatgames/internal/kv"
)

const botTTL = 7 * 24 * time.Hour

// BotRecord marks a game bot as installed in a room. DefaultAmount, when
// set, overrides the configured minimum as the !start default.
type BotRecord struct {
	Active        bool      `json:"active"`
	DefaultAmount int64     `json:"defaultAmount,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Service is the per-room directory of which bots are installed and which
// game currently claims the room's play commands.
type Service struct {
	store kv.Store
}

func New(store kv.Store) *Service {
	return &Service{store: store}
}

func activeKey(roomID string) string {
	return "room:" + roomID + ":activegame"
}

func botKey(game domain.GameType, roomID string) string {
	return string(game) + ":bot:" + roomID
}

// SetActive claims the room's play commands for game.
func (s *Service) SetActive(ctx context.Context, roomID string, game domain.GameType) error {
	return s.store.Set(ctx, activeKey(roomID), string(game), botTTL)
}

// Active returns the room's active game type, or "" when none is set.
func (s *Service) Active(ctx context.Context, roomID string) (domain.GameType, error) {
	val, err := s.store.Get(ctx, activeKey(roomID))
	if err == kv.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return domain.GameType(val), nil
}

// ClearActive releases the room's play commands.
func (s *Service) ClearActive(ctx context.Context, roomID string) error {
	return s.store.Del(ctx, activeKey(roomID))
}

// EnableBot installs a game bot in the room.
func (s *Service) EnableBot(ctx context.Context, game domain.GameType, roomID string, defaultAmount int64) error {
	rec := BotRecord{Active: true, DefaultAmount: defaultAmount, CreatedAt: time.Now()}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, botKey(game, roomID), string(raw), botTTL)
}

// DisableBot removes the bot record.
func (s *Service) DisableBot(ctx context.Context, game domain.GameType, roomID string) error {
	return s.store.Del(ctx, botKey(game, roomID))
}

// Bot returns the bot record, or nil when the bot is not installed.
func (s *Service) Bot(ctx context.Context, game domain.GameType, roomID string) (*BotRecord, error) {
	raw, err := s.store.Get(ctx, botKey(game, roomID))
	if err == kv.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec BotRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// IsBotActive reports whether the bot is installed and active.
func (s *Service) IsBotActive(ctx context.Context, game domain.GameType, roomID string) (bool, error) {
	rec, err := s.Bot(ctx, game, roomID)
	if err != nil {
		return false, err
	}
	return rec != nil && rec.Active, nil
}
