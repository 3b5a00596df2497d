package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"chatgames/internal/broadcast"
	"chatgames/internal/domain"
	"chatgames/internal/game"
	"chatgames/internal/logger"
	"chatgames/internal/metrics"
)

// LowCard is the full engine surface the router drives.
type LowCard interface {
	game.Bot
	StartGame(ctx context.Context, roomID string, userID int64, username string, amount int64, hasAmount bool) *game.Result
	JoinGame(ctx context.Context, roomID string, userID int64, username string) *game.Result
	DrawCardForPlayer(ctx context.Context, roomID string, userID int64, username string) *game.Result
	CancelByStarter(ctx context.Context, roomID string, userID int64) *game.Result
	StopGame(ctx context.Context, roomID string) *game.Result
	ResetGame(ctx context.Context, roomID, byUsername string) *game.Result
}

// Sibling is a game facade that consumes its own play commands.
type Sibling interface {
	game.Bot
	HandleCommand(ctx context.Context, roomID string, userID int64, username, text string) *game.Result
}

// FlagGame adds the stop/refund surface FlagBot carries on top of a
// plain sibling.
type FlagGame interface {
	Sibling
	StopGame(ctx context.Context, roomID string) *game.Result
}

// ActiveGames resolves which game type holds the room's play commands.
type ActiveGames interface {
	Active(ctx context.Context, roomID string) (domain.GameType, error)
}

// Perms answers whether a user may manage bots and kill games in a room.
type Perms interface {
	IsAdmin(ctx context.Context, roomID string, userID int64) (bool, error)
}

// Balances is the read side of the ledger for !bal.
type Balances interface {
	ReadBalance(ctx context.Context, userID int64) (int64, error)
}

// Audits records admin actions. Writes are best-effort.
type Audits interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
}

// Router decides which engine a chat command belongs to. Commands fall
// into buckets: admin bot management, scoped play commands honored only
// under the matching active game, lifecycle commands dispatched to the
// active game (or the first installed bot), and the balance query.
// Unknown commands are consumed without a reply.
type Router struct {
	lowcard  LowCard
	dice     Sibling
	flag     FlagGame
	bots     game.Bots
	active   ActiveGames
	perms    Perms
	balances Balances
	audits   Audits
	bc       broadcast.Broadcaster
}

func NewRouter(lowcard LowCard, dice Sibling, flag FlagGame, active ActiveGames,
	perms Perms, balances Balances, audits Audits, bc broadcast.Broadcaster) *Router {
	return &Router{
		lowcard:  lowcard,
		dice:     dice,
		flag:     flag,
		bots:     game.Bots{lowcard, dice, flag},
		active:   active,
		perms:    perms,
		balances: balances,
		audits:   audits,
		bc:       bc,
	}
}

var scopedWords = map[string]bool{
	"!d": true, "!r": true, "!roll": true, "!fg": true, "!b": true, "!lock": true,
}

var lifecycleWords = map[string]bool{
	"!start": true, "!j": true, "!join": true, "!n": true,
	"!cancel": true, "!stop": true, "!reset": true, "!rezet": true,
}

// Dispatch handles one command. Matching runs on the lowercased line; the
// original text is passed through to the facades untouched.
func (r *Router) Dispatch(ctx context.Context, m Message) {
	norm := strings.ToLower(strings.TrimSpace(m.Message))
	if norm == "" {
		return
	}
	word := firstWord(norm)

	var res *game.Result
	switch {
	case strings.HasPrefix(norm, "/bot") || strings.HasPrefix(norm, "/add bot"):
		metrics.Commands.WithLabelValues("admin").Inc()
		res = r.handleAdmin(ctx, m, norm)
	case word == "!bal" || word == "!balance":
		metrics.Commands.WithLabelValues("balance").Inc()
		res = r.handleBalance(ctx, m)
	case scopedWords[word]:
		metrics.Commands.WithLabelValues("scoped").Inc()
		res = r.handleScoped(ctx, m, word)
	case lifecycleWords[word]:
		metrics.Commands.WithLabelValues("lifecycle").Inc()
		res = r.handleLifecycle(ctx, m, word, norm)
	default:
		metrics.Commands.WithLabelValues("unknown").Inc()
		return
	}
	r.reply(ctx, m, res)
}

// reply delivers validation and private messages back to the sender.
// Public success lines are already broadcast by the engines themselves.
func (r *Router) reply(ctx context.Context, m Message, res *game.Result) {
	if res == nil || res.Silent || res.Message == "" {
		return
	}
	if res.IsPvt || !res.Success {
		r.bc.ToRoom(ctx, m.RoomID, broadcast.EventChatMessage, map[string]any{
			"roomId":  m.RoomID,
			"userId":  m.UserID,
			"type":    "private",
			"sender":  "GameBot",
			"message": res.Message,
		})
	}
}

func (r *Router) handleAdmin(ctx context.Context, m Message, norm string) *game.Result {
	admin, err := r.perms.IsAdmin(ctx, m.RoomID, m.UserID)
	if err != nil {
		logger.Error("command admin check failed", "roomId", m.RoomID, "userId", m.UserID, "error", err)
		return game.Busy()
	}
	if !admin {
		return game.Pvt("You are not an admin in this room!")
	}

	fields := strings.Fields(norm)
	if fields[0] == "/add" {
		// "/add bot <game> [amount]" reads like "/bot <game> add [amount]"
		if len(fields) < 3 {
			return game.Pvt("Usage: /add bot <game> [amount]")
		}
		return r.addBot(ctx, m, fields[2], fields[3:])
	}

	if len(fields) >= 2 && fields[1] == "stop" {
		return r.adminStop(ctx, m)
	}
	if len(fields) < 3 {
		return game.Pvt("Usage: /bot <game> add|remove, /bot stop")
	}

	name, action := fields[1], fields[2]
	switch action {
	case "add":
		return r.addBot(ctx, m, name, fields[3:])
	case "remove":
		return r.removeBot(ctx, m, name)
	}
	return game.Pvt("Usage: /bot <game> add|remove, /bot stop")
}

func (r *Router) addBot(ctx context.Context, m Message, name string, rest []string) *game.Result {
	t, ok := gameTypeFromName(name)
	if !ok {
		return game.Pvt("Unknown game: " + name)
	}
	bot := r.bots.ByType(t)
	if bot == nil {
		return game.Pvt("Unknown game: " + name)
	}

	var amount int64
	if len(rest) > 0 {
		if n, err := strconv.ParseInt(rest[0], 10, 64); err == nil && n > 0 {
			amount = n
		}
	}

	res := bot.AddBot(ctx, m.RoomID, amount)
	if res != nil && res.Success {
		r.audit(ctx, m, domain.AuditActionBotAdd, map[string]any{
			"roomId": m.RoomID, "game": string(t), "defaultAmount": amount,
		})
	}
	return res
}

func (r *Router) removeBot(ctx context.Context, m Message, name string) *game.Result {
	t, ok := gameTypeFromName(name)
	if !ok {
		return game.Pvt("Unknown game: " + name)
	}
	bot := r.bots.ByType(t)
	if bot == nil {
		return game.Pvt("Unknown game: " + name)
	}

	res := bot.RemoveBot(ctx, m.RoomID)
	if res != nil && res.Success {
		r.audit(ctx, m, domain.AuditActionBotRemove, map[string]any{
			"roomId": m.RoomID, "game": string(t),
		})
	}
	return res
}

// adminStop kills whatever is stoppable in the room. Only LowCard and
// FlagBot hold refundable state.
func (r *Router) adminStop(ctx context.Context, m Message) *game.Result {
	res := r.lowcard.StopGame(ctx, m.RoomID)
	if fres := r.flag.StopGame(ctx, m.RoomID); res == nil || res.Silent {
		res = fres
	}
	if res != nil && res.Success {
		r.audit(ctx, m, domain.AuditActionGameStop, map[string]any{"roomId": m.RoomID})
	}
	return res
}

func (r *Router) handleScoped(ctx context.Context, m Message, word string) *game.Result {
	active, err := r.active.Active(ctx, m.RoomID)
	if err != nil {
		logger.Error("command active game lookup failed", "roomId", m.RoomID, "error", err)
		return game.Busy()
	}

	switch word {
	case "!d":
		switch active {
		case domain.GameTypeLowcard:
			return r.lowcard.DrawCardForPlayer(ctx, m.RoomID, m.UserID, m.Username)
		case domain.GameTypeDicebot:
			return r.dice.HandleCommand(ctx, m.RoomID, m.UserID, m.Username, m.Message)
		}
		return game.Silent()
	case "!r", "!roll":
		if active == domain.GameTypeDicebot {
			return r.dice.HandleCommand(ctx, m.RoomID, m.UserID, m.Username, m.Message)
		}
		return game.Silent()
	case "!fg", "!b", "!lock":
		if active == domain.GameTypeFlagbot {
			return r.flag.HandleCommand(ctx, m.RoomID, m.UserID, m.Username, m.Message)
		}
		// flag commands still reach an installed FlagBot when another
		// game holds the room binding
		installed, err := r.flag.IsBotActive(ctx, m.RoomID)
		if err != nil {
			logger.Error("command flagbot check failed", "roomId", m.RoomID, "error", err)
			return game.Busy()
		}
		if installed {
			return r.flag.HandleCommand(ctx, m.RoomID, m.UserID, m.Username, m.Message)
		}
		return game.Silent()
	}
	return game.Silent()
}

func (r *Router) handleLifecycle(ctx context.Context, m Message, word, norm string) *game.Result {
	bot, err := r.targetBot(ctx, m.RoomID)
	if err != nil {
		logger.Error("command lifecycle target lookup failed", "roomId", m.RoomID, "error", err)
		return game.Busy()
	}
	if bot == nil {
		return game.Silent()
	}

	switch bot.Type() {
	case domain.GameTypeLowcard:
		return r.lowcardLifecycle(ctx, m, word, norm)
	case domain.GameTypeFlagbot:
		if word == "!stop" {
			return r.gated(ctx, m, domain.AuditActionGameStop, func(ctx context.Context) *game.Result {
				return r.flag.StopGame(ctx, m.RoomID)
			})
		}
		return r.flag.HandleCommand(ctx, m.RoomID, m.UserID, m.Username, m.Message)
	case domain.GameTypeDicebot:
		return r.dice.HandleCommand(ctx, m.RoomID, m.UserID, m.Username, m.Message)
	}
	return game.Silent()
}

func (r *Router) lowcardLifecycle(ctx context.Context, m Message, word, norm string) *game.Result {
	switch word {
	case "!start":
		amount, hasAmount := parseAmount(norm)
		return r.lowcard.StartGame(ctx, m.RoomID, m.UserID, m.Username, amount, hasAmount)
	case "!j", "!join", "!n":
		return r.lowcard.JoinGame(ctx, m.RoomID, m.UserID, m.Username)
	case "!cancel":
		return r.lowcard.CancelByStarter(ctx, m.RoomID, m.UserID)
	case "!stop":
		return r.gated(ctx, m, domain.AuditActionGameStop, func(ctx context.Context) *game.Result {
			return r.lowcard.StopGame(ctx, m.RoomID)
		})
	case "!reset", "!rezet":
		return r.gated(ctx, m, domain.AuditActionGameReset, func(ctx context.Context) *game.Result {
			return r.lowcard.ResetGame(ctx, m.RoomID, m.Username)
		})
	}
	return game.Silent()
}

// gated runs an admin-only kill action and audits it on success.
func (r *Router) gated(ctx context.Context, m Message, action string, fn func(context.Context) *game.Result) *game.Result {
	admin, err := r.perms.IsAdmin(ctx, m.RoomID, m.UserID)
	if err != nil {
		logger.Error("command admin check failed", "roomId", m.RoomID, "userId", m.UserID, "error", err)
		return game.Busy()
	}
	if !admin {
		return game.Pvt("You are not an admin in this room!")
	}
	res := fn(ctx)
	if res != nil && res.Success {
		r.audit(ctx, m, action, map[string]any{"roomId": m.RoomID})
	}
	return res
}

func (r *Router) handleBalance(ctx context.Context, m Message) *game.Result {
	bal, err := r.balances.ReadBalance(ctx, m.UserID)
	if err != nil {
		logger.Error("command balance read failed", "userId", m.UserID, "error", err)
		return game.Pvt("Balance unavailable, please try again.")
	}
	return &game.Result{Success: true, Message: fmt.Sprintf("Your balance: %d COINS", bal), IsPvt: true}
}

// targetBot resolves the lifecycle target: the room's active binding
// first, then the first installed bot in directory order.
func (r *Router) targetBot(ctx context.Context, roomID string) (game.Bot, error) {
	active, err := r.active.Active(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if active != "" {
		if bot := r.bots.ByType(active); bot != nil {
			return bot, nil
		}
	}
	return r.bots.FirstActive(ctx, roomID)
}

func (r *Router) audit(ctx context.Context, m Message, action string, details map[string]any) {
	entry := &domain.AuditLog{
		UserID:   m.UserID,
		Action:   action,
		Category: domain.AuditCategoryAdmin,
		Details:  details,
	}
	if err := r.audits.Create(ctx, entry); err != nil {
		logger.Warn("audit write failed", "action", action, "userId", m.UserID, "error", err)
	}
}

func gameTypeFromName(name string) (domain.GameType, bool) {
	switch name {
	case "lowcard":
		return domain.GameTypeLowcard, true
	case "dice", "dicebot":
		return domain.GameTypeDicebot, true
	case "flagh", "flag", "flagbot":
		return domain.GameTypeFlagbot, true
	}
	return "", false
}

func firstWord(norm string) string {
	if i := strings.IndexByte(norm, ' '); i >= 0 {
		return norm[:i]
	}
	return norm
}

func parseAmount(norm string) (int64, bool) {
	fields := strings.Fields(norm)
	if len(fields) < 2 {
		return 0, false
	}
	n, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		// junk after !start falls back to the room default
		return 0, false
	}
	return n, true
}
