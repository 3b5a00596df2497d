package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"chatgames/internal/domain"
	"chatgames/internal/kv"
)

type fakeLedger struct {
	mu          sync.Mutex
	credits     map[int64]int64
	invalidated map[int64]int
	failFor     map[int64]error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		credits:     make(map[int64]int64),
		invalidated: make(map[int64]int),
		failFor:     make(map[int64]error),
	}
}

func (f *fakeLedger) Credit(_ context.Context, userID, amount int64, _, _ string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[userID]; err != nil {
		return 0, err
	}
	f.credits[userID] += amount
	return f.credits[userID], nil
}

func (f *fakeLedger) InvalidateCache(_ context.Context, userID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated[userID]++
}

func (f *fakeLedger) credited(userID int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.credits[userID]
}

type fakeGames struct {
	mu        sync.Mutex
	cancelled []string
}

func (f *fakeGames) CancelOpen(_ context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, roomID)
	return nil
}

func seedSnapshot(t *testing.T, store kv.Store, key string, g *domain.Game) {
	t.Helper()
	raw, err := json.Marshal(g)
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), key, string(raw), 0))
}

func waitingGame(roomID string, entry int64, userIDs ...int64) *domain.Game {
	g := &domain.Game{RoomID: roomID, Status: domain.GameStatusWaiting, EntryAmount: entry}
	for _, id := range userIDs {
		g.Players = append(g.Players, &domain.Player{UserID: id, Username: "p"})
	}
	return g
}

func TestSweepRefundsInterruptedLowcardGame(t *testing.T) {
	store := kv.NewMemory()
	lg := newFakeLedger()
	games := &fakeGames{}
	ctx := context.Background()

	seedSnapshot(t, store, "lowcard:game:r1", waitingGame("r1", 10, 7, 9))
	require.NoError(t, store.Set(ctx, "lowcard:deck:r1", "[]", 0))
	require.NoError(t, store.Set(ctx, "room:r1:lowcard:timer", "{}", 0))

	require.NoError(t, New(store, lg, games).Run(ctx))

	require.Equal(t, int64(10), lg.credited(7))
	require.Equal(t, int64(10), lg.credited(9))
	require.Equal(t, 1, lg.invalidated[7])
	require.Equal(t, []string{"r1"}, games.cancelled)

	for _, key := range []string{"lowcard:game:r1", "lowcard:deck:r1", "room:r1:lowcard:timer"} {
		_, err := store.Get(ctx, key)
		require.ErrorIs(t, err, kv.ErrNotFound, key)
	}
}

func TestSweepRefundsEveryRecordedPlayer(t *testing.T) {
	store := kv.NewMemory()
	lg := newFakeLedger()
	ctx := context.Background()

	// mid-game snapshot: one player already eliminated, everyone still
	// gets their stake back because the pot will never pay out
	g := waitingGame("r1", 20, 7, 9, 11)
	g.Status = domain.GameStatusPlaying
	g.Players[0].IsEliminated = true
	seedSnapshot(t, store, "lowcard:game:r1", g)

	require.NoError(t, New(store, lg, &fakeGames{}).Run(ctx))

	for _, id := range []int64{7, 9, 11} {
		require.Equal(t, int64(20), lg.credited(id))
	}
}

func TestSweepSkipsFinishedResidue(t *testing.T) {
	store := kv.NewMemory()
	lg := newFakeLedger()
	ctx := context.Background()

	g := waitingGame("r1", 10, 7)
	g.Status = domain.GameStatusFinished
	seedSnapshot(t, store, "lowcard:game:r1", g)

	require.NoError(t, New(store, lg, &fakeGames{}).Run(ctx))

	require.Zero(t, lg.credited(7))
	_, err := store.Get(ctx, "lowcard:game:r1")
	require.ErrorIs(t, err, kv.ErrNotFound)
}

func TestSweepCoversDicebotSnapshots(t *testing.T) {
	store := kv.NewMemory()
	lg := newFakeLedger()
	ctx := context.Background()

	seedSnapshot(t, store, "dicebot:game:r2", waitingGame("r2", 5, 21))

	require.NoError(t, New(store, lg, &fakeGames{}).Run(ctx))

	require.Equal(t, int64(5), lg.credited(21))
	_, err := store.Get(ctx, "dicebot:game:r2")
	require.ErrorIs(t, err, kv.ErrNotFound)
}

func TestSweepRefundsFlagBets(t *testing.T) {
	store := kv.NewMemory()
	lg := newFakeLedger()
	ctx := context.Background()

	require.NoError(t, store.HSet(ctx, "flagbot:room:r3:bets", "7", `{"username":"ann","amount":25}`))
	require.NoError(t, store.HSet(ctx, "flagbot:room:r3:bets", "9", `{"username":"bob","amount":40}`))

	require.NoError(t, New(store, lg, &fakeGames{}).Run(ctx))

	require.Equal(t, int64(25), lg.credited(7))
	require.Equal(t, int64(40), lg.credited(9))

	entries, err := store.HGetAll(ctx, "flagbot:room:r3:bets")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestSweepDeletesUnreadableSnapshots(t *testing.T) {
	store := kv.NewMemory()
	lg := newFakeLedger()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "lowcard:game:r1", "not json", 0))

	require.NoError(t, New(store, lg, &fakeGames{}).Run(ctx))

	require.Empty(t, lg.credits)
	_, err := store.Get(ctx, "lowcard:game:r1")
	require.ErrorIs(t, err, kv.ErrNotFound)
}

func TestSweepKeepsGoingPastRefundFailure(t *testing.T) {
	store := kv.NewMemory()
	lg := newFakeLedger()
	lg.failFor[7] = errors.New("ledger down")
	ctx := context.Background()

	seedSnapshot(t, store, "lowcard:game:r1", waitingGame("r1", 10, 7, 9))

	require.NoError(t, New(store, lg, &fakeGames{}).Run(ctx))

	require.Zero(t, lg.credited(7))
	require.Equal(t, int64(10), lg.credited(9))
}

func TestSweepIsIdempotent(t *testing.T) {
	store := kv.NewMemory()
	lg := newFakeLedger()
	games := &fakeGames{}
	ctx := context.Background()

	seedSnapshot(t, store, "lowcard:game:r1", waitingGame("r1", 10, 7, 9))
	require.NoError(t, store.HSet(ctx, "flagbot:room:r3:bets", "7", `{"username":"ann","amount":25}`))

	s := New(store, lg, games)
	require.NoError(t, s.Run(ctx))
	require.NoError(t, s.Run(ctx))

	require.Equal(t, int64(35), lg.credited(7))
	require.Equal(t, int64(10), lg.credited(9))
	require.Equal(t, []string{"r1"}, games.cancelled)
}
