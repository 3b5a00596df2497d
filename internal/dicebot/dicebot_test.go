package dicebot

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"chatgames/internal/broadcast"
	"chatgames/internal/domain"
	"chatgames/internal/gamestate"
	"chatgames/internal/kv"
)

type fakeLedger struct {
	mu      sync.Mutex
	credits map[int64]int64
	err     error
}

func (f *fakeLedger) Credit(_ context.Context, userID, amount int64, _, _ string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	if f.credits == nil {
		f.credits = make(map[int64]int64)
	}
	f.credits[userID] += amount
	return f.credits[userID], nil
}

func (f *fakeLedger) credited(userID int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.credits[userID]
}

func newFacade(t *testing.T) (*Facade, kv.Store, *gamestate.Service, *fakeLedger, *broadcast.Recorder) {
	t.Helper()
	store := kv.NewMemory()
	bots := gamestate.New(store)
	lg := &fakeLedger{}
	rec := broadcast.NewRecorder()
	return New(store, bots, lg, rec), store, bots, lg, rec
}

func seedGame(t *testing.T, store kv.Store, roomID string, status domain.GameStatus, entry int64, players ...*domain.Player) {
	t.Helper()
	raw, err := json.Marshal(&domain.Game{
		RoomID:      roomID,
		Status:      status,
		EntryAmount: entry,
		Players:     players,
	})
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), gameKey(roomID), string(raw), 0))
}

func TestAddBotRefusesWhenAnotherBotOwnsRoom(t *testing.T) {
	f, _, bots, _, _ := newFacade(t)
	ctx := context.Background()

	require.NoError(t, bots.EnableBot(ctx, domain.GameTypeLowcard, "r1", 0))

	res := f.AddBot(ctx, "r1", 0)
	require.False(t, res.Success)
	require.True(t, res.IsPvt)
	require.Contains(t, res.Message, "LowCard is already active")

	active, err := f.IsBotActive(ctx, "r1")
	require.NoError(t, err)
	require.False(t, active)
}

func TestAddBotClaimsRoom(t *testing.T) {
	f, _, bots, _, rec := newFacade(t)
	ctx := context.Background()

	res := f.AddBot(ctx, "r1", 5)
	require.True(t, res.Success)
	require.True(t, res.IsPvt)

	active, err := f.IsBotActive(ctx, "r1")
	require.NoError(t, err)
	require.True(t, active)

	claimed, err := bots.Active(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, domain.GameTypeDicebot, claimed)

	require.NotEmpty(t, rec.ByEvent(broadcast.EventChatMessage))
}

func TestRemoveBotRefundsOpenGame(t *testing.T) {
	f, store, bots, lg, _ := newFacade(t)
	ctx := context.Background()

	require.True(t, f.AddBot(ctx, "r1", 0).Success)
	seedGame(t, store, "r1", domain.GameStatusPlaying, 10,
		&domain.Player{UserID: 7, Username: "ann"},
		&domain.Player{UserID: 9, Username: "bob"},
	)

	res := f.RemoveBot(ctx, "r1")
	require.True(t, res.Success)

	require.Equal(t, int64(10), lg.credited(7))
	require.Equal(t, int64(10), lg.credited(9))

	_, err := store.Get(ctx, gameKey("r1"))
	require.ErrorIs(t, err, kv.ErrNotFound)

	active, err := f.IsBotActive(ctx, "r1")
	require.NoError(t, err)
	require.False(t, active)

	claimed, err := bots.Active(ctx, "r1")
	require.NoError(t, err)
	require.Empty(t, claimed)
}

func TestRemoveBotSkipsFinishedGame(t *testing.T) {
	f, store, _, lg, _ := newFacade(t)
	ctx := context.Background()

	require.True(t, f.AddBot(ctx, "r1", 0).Success)
	seedGame(t, store, "r1", domain.GameStatusFinished, 10,
		&domain.Player{UserID: 7, Username: "ann"},
	)

	require.True(t, f.RemoveBot(ctx, "r1").Success)
	require.Zero(t, lg.credited(7))

	_, err := store.Get(ctx, gameKey("r1"))
	require.ErrorIs(t, err, kv.ErrNotFound)
}

func TestRemoveBotKeepsGoingPastRefundFailure(t *testing.T) {
	f, store, _, lg, _ := newFacade(t)
	ctx := context.Background()

	lg.err = errors.New("ledger down")
	require.True(t, f.AddBot(ctx, "r1", 0).Success)
	seedGame(t, store, "r1", domain.GameStatusWaiting, 10,
		&domain.Player{UserID: 7, Username: "ann"},
	)

	res := f.RemoveBot(ctx, "r1")
	require.True(t, res.Success)

	// snapshot is still cleared so the room is not wedged
	_, err := store.Get(ctx, gameKey("r1"))
	require.ErrorIs(t, err, kv.ErrNotFound)
}

func TestHandleCommandIsSilent(t *testing.T) {
	f, _, _, _, rec := newFacade(t)

	res := f.HandleCommand(context.Background(), "r1", 7, "ann", "!roll")
	require.True(t, res.Silent)
	require.Empty(t, rec.Events())
}
