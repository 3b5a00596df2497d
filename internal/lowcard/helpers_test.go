package lowcard

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"

	"chatgames/internal/broadcast"
	"chatgames/internal/domain"
	"chatgames/internal/gamestate"
	"chatgames/internal/kv"
	"chatgames/internal/ledger"
	"chatgames/internal/lock"
)

type ledgerCall struct {
	UserID int64
	Amount int64
	Game   string
	Reason string
}

// fakeLedger keeps balances in memory and records every deduct and credit.
type fakeLedger struct {
	mu        sync.Mutex
	balances  map[int64]int64
	deducts   []ledgerCall
	credits   []ledgerCall
	creditErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{balances: make(map[int64]int64)}
}

func (f *fakeLedger) fund(userID, amount int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[userID] = amount
}

func (f *fakeLedger) balance(userID int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[userID]
}

func (f *fakeLedger) creditsFor(userID int64) []ledgerCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ledgerCall
	for _, c := range f.credits {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeLedger) Deduct(_ context.Context, userID, amount int64, _, game, reason, _ string) (*ledger.DeductResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bal := f.balances[userID]
	if bal < amount {
		return &ledger.DeductResult{Success: false, Balance: bal}, nil
	}
	f.balances[userID] = bal - amount
	f.deducts = append(f.deducts, ledgerCall{UserID: userID, Amount: amount, Game: game, Reason: reason})
	return &ledger.DeductResult{Success: true, Balance: bal - amount}, nil
}

func (f *fakeLedger) Credit(_ context.Context, userID, amount int64, _, reason string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.creditErr != nil {
		return 0, f.creditErr
	}
	f.balances[userID] += amount
	f.credits = append(f.credits, ledgerCall{UserID: userID, Amount: amount, Reason: reason})
	return f.balances[userID], nil
}

// fakeDeck deals a scripted sequence of cards.
type fakeDeck struct {
	mu      sync.Mutex
	queue   []domain.Card
	inits   int
	deletes int
}

func (d *fakeDeck) script(cards ...domain.Card) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, cards...)
}

func (d *fakeDeck) Init(context.Context, string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inits++
	return nil
}

func (d *fakeDeck) Draw(context.Context, string) (domain.Card, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return domain.Card{}, errors.New("deck script exhausted")
	}
	c := d.queue[0]
	d.queue = d.queue[1:]
	return c, nil
}

func (d *fakeDeck) Delete(context.Context, string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deletes++
	return nil
}

// fakeGames records the durable game rows.
type fakeGames struct {
	mu       sync.Mutex
	nextID   int64
	created  []domain.LowcardGame
	finished []domain.LowcardGame
	cancels  []string
	history  []domain.LowcardHistory
}

func (f *fakeGames) CreateGame(_ context.Context, g *domain.LowcardGame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	g.ID = f.nextID
	f.created = append(f.created, *g)
	return nil
}

func (f *fakeGames) FinishGame(_ context.Context, g *domain.LowcardGame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, *g)
	return nil
}

func (f *fakeGames) CancelOpen(_ context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, roomID)
	return nil
}

func (f *fakeGames) InsertHistory(_ context.Context, h *domain.LowcardHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, *h)
	return nil
}

type fakeHistory struct {
	mu   sync.Mutex
	rows []domain.GameHistory
}

func (f *fakeHistory) Create(_ context.Context, gh *domain.GameHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, *gh)
	return nil
}

type fakeRooms struct {
	rooms map[string]*domain.Room
}

func (f *fakeRooms) GetByID(_ context.Context, id string) (*domain.Room, error) {
	return f.rooms[id], nil
}

type fakeMerchants struct {
	tags map[int64]*domain.MerchantTag
}

func (f *fakeMerchants) ActiveTagFor(_ context.Context, userID int64) (*domain.MerchantTag, error) {
	return f.tags[userID], nil
}

var testLimits = Limits{
	MinEntry:        1,
	MaxEntry:        999_999_999,
	BigGameMinEntry: 50,
	HouseFeePercent: 10,
}

// fixture wires an Engine against in-memory fakes.
type fixture struct {
	ctx    context.Context
	store  *kv.Memory
	eng    *Engine
	ledger *fakeLedger
	deck   *fakeDeck
	games  *fakeGames
	hist   *fakeHistory
	rooms  *fakeRooms
	merch  *fakeMerchants
	bots   *gamestate.Service
	rec    *broadcast.Recorder
}

func newFixture() *fixture {
	store := kv.NewMemory()
	lg := newFakeLedger()
	deck := &fakeDeck{}
	games := &fakeGames{}
	hist := &fakeHistory{}
	rooms := &fakeRooms{rooms: make(map[string]*domain.Room)}
	merch := &fakeMerchants{tags: make(map[int64]*domain.MerchantTag)}
	bots := gamestate.New(store)
	rec := broadcast.NewRecorder()

	eng := NewEngine(store, lock.NewManager(store), lg, deck, rooms, games, hist, merch, bots, rec, testLimits)

	return &fixture{
		ctx:    context.Background(),
		store:  store,
		eng:    eng,
		ledger: lg,
		deck:   deck,
		games:  games,
		hist:   hist,
		rooms:  rooms,
		merch:  merch,
		bots:   bots,
		rec:    rec,
	}
}

// expireTimer rewrites the room's timer with an already-passed deadline so
// the next transition call fires without waiting.
func (f *fixture) expireTimer(t *testing.T, roomID string) {
	t.Helper()
	tm, err := f.eng.readTimer(f.ctx, roomID)
	if err != nil {
		t.Fatalf("read timer: %v", err)
	}
	if tm == nil {
		t.Fatalf("no timer for room %s", roomID)
	}
	if err := f.eng.writeTimer(f.ctx, roomID, tm.Phase, nowMs()-1000, tm.RoundNumber); err != nil {
		t.Fatalf("rewrite timer: %v", err)
	}
}

// doctorGame loads, mutates and saves the room's snapshot.
func (f *fixture) doctorGame(t *testing.T, roomID string, mod func(*domain.Game)) {
	t.Helper()
	g, err := f.eng.loadGame(f.ctx, roomID)
	if err != nil {
		t.Fatalf("load game: %v", err)
	}
	if g == nil {
		t.Fatalf("no game for room %s", roomID)
	}
	mod(g)
	if err := f.eng.saveGame(f.ctx, g); err != nil {
		t.Fatalf("save game: %v", err)
	}
}

func (f *fixture) game(t *testing.T, roomID string) *domain.Game {
	t.Helper()
	g, err := f.eng.loadGame(f.ctx, roomID)
	if err != nil {
		t.Fatalf("load game: %v", err)
	}
	return g
}

func (f *fixture) chatLines(roomID string) []string {
	var out []string
	for _, e := range f.rec.ByEvent(broadcast.EventChatMessage) {
		if e.RoomID != roomID {
			continue
		}
		if msg, ok := e.Payload["message"].(string); ok {
			out = append(out, msg)
		}
	}
	return out
}

func hasLineContaining(lines []string, substr string) bool {
	for _, l := range lines {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

// startWaiting runs StartGame for the starter and JoinGame for everyone
// else, funding each player first.
func (f *fixture) startWaiting(t *testing.T, roomID string, entry int64, starter int64, joiners ...int64) {
	t.Helper()
	f.ledger.fund(starter, 10_000)
	res := f.eng.StartGame(f.ctx, roomID, starter, username(starter), entry, true)
	if !res.Success {
		t.Fatalf("start game: %+v", res)
	}
	for _, id := range joiners {
		f.ledger.fund(id, 10_000)
		res := f.eng.JoinGame(f.ctx, roomID, id, username(id))
		if !res.Success {
			t.Fatalf("join game user %d: %+v", id, res)
		}
	}
}

// beginPlaying expires the join timer and runs the begin transition.
func (f *fixture) beginPlaying(t *testing.T, roomID string) {
	t.Helper()
	f.expireTimer(t, roomID)
	f.eng.BeginGame(f.ctx, roomID)
	g := f.game(t, roomID)
	if g == nil || g.Status != domain.GameStatusPlaying {
		t.Fatalf("game not playing after begin: %+v", g)
	}
}

// openRound expires the countdown and opens the draw window.
func (f *fixture) openRound(t *testing.T, roomID string) {
	t.Helper()
	f.expireTimer(t, roomID)
	f.eng.StartRound(f.ctx, roomID)
	g := f.game(t, roomID)
	if g == nil || !g.IsRoundStarted {
		t.Fatalf("round not started: %+v", g)
	}
}

func username(id int64) string {
	switch id {
	case 1:
		return "alice"
	case 2:
		return "bob"
	case 3:
		return "carol"
	case 4:
		return "dave"
	}
	return "user" + strconv.FormatInt(id, 10)
}

func card(value int, suit string) domain.Card {
	return domain.NewCard(value, suit)
}
