package command

import (
	"context"
	"sync"

	"chatgames/internal/broadcast"
	"chatgames/internal/domain"
	"chatgames/internal/game"
)

type call struct {
	Method   string
	RoomID   string
	UserID   int64
	Username string
	Amount   int64
	HasAmt   bool
	Text     string
}

// fakeLow records every engine call and answers with configurable results
// (defaulting to success).
type fakeLow struct {
	mu        sync.Mutex
	installed bool
	results   map[string]*game.Result
	calls     []call
}

func (f *fakeLow) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeLow) set(method string, res *game.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.results == nil {
		f.results = make(map[string]*game.Result)
	}
	f.results[method] = res
}

func (f *fakeLow) res(method string, def *game.Result) *game.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.results[method]; ok {
		return r
	}
	return def
}

func (f *fakeLow) callsTo(method string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeLow) Type() domain.GameType { return domain.GameTypeLowcard }

func (f *fakeLow) IsBotActive(context.Context, string) (bool, error) {
	return f.installed, nil
}

func (f *fakeLow) AddBot(_ context.Context, roomID string, amount int64) *game.Result {
	f.record(call{Method: "AddBot", RoomID: roomID, Amount: amount})
	return f.res("AddBot", &game.Result{Success: true, Message: "Bot is running", IsPvt: true})
}

func (f *fakeLow) RemoveBot(_ context.Context, roomID string) *game.Result {
	f.record(call{Method: "RemoveBot", RoomID: roomID})
	return f.res("RemoveBot", &game.Result{Success: true, Message: "Bot removed", IsPvt: true})
}

func (f *fakeLow) StartGame(_ context.Context, roomID string, userID int64, username string, amount int64, hasAmount bool) *game.Result {
	f.record(call{Method: "StartGame", RoomID: roomID, UserID: userID, Username: username, Amount: amount, HasAmt: hasAmount})
	return f.res("StartGame", game.Ok("started"))
}

func (f *fakeLow) JoinGame(_ context.Context, roomID string, userID int64, username string) *game.Result {
	f.record(call{Method: "JoinGame", RoomID: roomID, UserID: userID, Username: username})
	return f.res("JoinGame", game.Ok("joined"))
}

func (f *fakeLow) DrawCardForPlayer(_ context.Context, roomID string, userID int64, username string) *game.Result {
	f.record(call{Method: "DrawCardForPlayer", RoomID: roomID, UserID: userID, Username: username})
	return f.res("DrawCardForPlayer", game.Ok("drew"))
}

func (f *fakeLow) CancelByStarter(_ context.Context, roomID string, userID int64) *game.Result {
	f.record(call{Method: "CancelByStarter", RoomID: roomID, UserID: userID})
	return f.res("CancelByStarter", game.Ok("cancelled"))
}

func (f *fakeLow) StopGame(_ context.Context, roomID string) *game.Result {
	f.record(call{Method: "StopGame", RoomID: roomID})
	return f.res("StopGame", game.Ok("stopped"))
}

func (f *fakeLow) ResetGame(_ context.Context, roomID, byUsername string) *game.Result {
	f.record(call{Method: "ResetGame", RoomID: roomID, Username: byUsername})
	return f.res("ResetGame", game.Ok("reset"))
}

// fakeSibling consumes commands the way the facades do.
type fakeSibling struct {
	mu        sync.Mutex
	typ       domain.GameType
	installed bool
	handled   []call
}

func (f *fakeSibling) Type() domain.GameType { return f.typ }

func (f *fakeSibling) IsBotActive(context.Context, string) (bool, error) {
	return f.installed, nil
}

func (f *fakeSibling) AddBot(_ context.Context, roomID string, amount int64) *game.Result {
	return &game.Result{Success: true, Message: "Bot is running", IsPvt: true}
}

func (f *fakeSibling) RemoveBot(_ context.Context, roomID string) *game.Result {
	return &game.Result{Success: true, Message: "Bot removed", IsPvt: true}
}

func (f *fakeSibling) HandleCommand(_ context.Context, roomID string, userID int64, username, text string) *game.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handled = append(f.handled, call{RoomID: roomID, UserID: userID, Username: username, Text: text})
	return game.Silent()
}

func (f *fakeSibling) handledTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.handled {
		out = append(out, c.Text)
	}
	return out
}

type fakeFlag struct {
	fakeSibling
	stopMu  sync.Mutex
	stops   []string
	stopRes *game.Result
}

func (f *fakeFlag) StopGame(_ context.Context, roomID string) *game.Result {
	f.stopMu.Lock()
	defer f.stopMu.Unlock()
	f.stops = append(f.stops, roomID)
	if f.stopRes != nil {
		return f.stopRes
	}
	return game.Silent()
}

type fakeActive struct {
	t   domain.GameType
	err error
}

func (f *fakeActive) Active(context.Context, string) (domain.GameType, error) {
	return f.t, f.err
}

type fakePerms struct {
	admin bool
	err   error
}

func (f *fakePerms) IsAdmin(context.Context, string, int64) (bool, error) {
	return f.admin, f.err
}

type fakeBalances struct {
	bal int64
	err error
}

func (f *fakeBalances) ReadBalance(context.Context, int64) (int64, error) {
	return f.bal, f.err
}

type fakeAudits struct {
	mu      sync.Mutex
	entries []*domain.AuditLog
	err     error
}

func (f *fakeAudits) Create(_ context.Context, entry *domain.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAudits) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.entries {
		out = append(out, e.Action)
	}
	return out
}

type fixture struct {
	low    *fakeLow
	dice   *fakeSibling
	flag   *fakeFlag
	active *fakeActive
	perms  *fakePerms
	bal    *fakeBalances
	audits *fakeAudits
	rec    *broadcast.Recorder
	router *Router
}

func newFixture() *fixture {
	f := &fixture{
		low:    &fakeLow{},
		dice:   &fakeSibling{typ: domain.GameTypeDicebot},
		flag:   &fakeFlag{fakeSibling: fakeSibling{typ: domain.GameTypeFlagbot}},
		active: &fakeActive{},
		perms:  &fakePerms{admin: true},
		bal:    &fakeBalances{},
		audits: &fakeAudits{},
		rec:    broadcast.NewRecorder(),
	}
	f.router = NewRouter(f.low, f.dice, f.flag, f.active, f.perms, f.bal, f.audits, f.rec)
	return f
}

func (f *fixture) dispatch(text string) {
	f.router.Dispatch(context.Background(), Message{
		RoomID:   "r1",
		UserID:   7,
		Username: "ann",
		Message:  text,
	})
}

// privateReplies returns the messages sent back privately to the caller.
func (f *fixture) privateReplies() []string {
	var out []string
	for _, e := range f.rec.ByEvent(broadcast.EventChatMessage) {
		if t, _ := e.Payload["type"].(string); t != "private" {
			continue
		}
		if msg, ok := e.Payload["message"].(string); ok {
			out = append(out, msg)
		}
	}
	return out
}
