package ledger

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatgames/internal/domain"
	"chatgames/internal/kv"
	"chatgames/internal/logger"
	"chatgames/internal/repository"
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
)

// balance cache TTL
const balanceTTL = 300 * time.Second

// MerchantHook is the tagged-credit integration. Tagged credits are spent
// before regular balance; the ledger itself stays agnostic of how they are
// granted or accounted.
type MerchantHook interface {
	TaggedBalance(ctx context.Context, userID int64) (int64, error)
	ConsumeForGame(ctx context.Context, userID int64, game string, amount int64, gameSessionID string) (int64, error)
}

// DeductResult tells the caller whether the bet was taken and what the
// balance looks like afterwards.
type DeductResult struct {
	Success           bool
	Balance           int64
	UsedTaggedCredits int64
}

// Ledger is the single authority on COINS movement. Every deduction made
// through it must eventually be matched by a payout, a refund or a house
// fee transfer; engines never touch users.credits directly.
type Ledger struct {
	db    *pgxpool.Pool
	users *repository.UserRepository
	logs  *repository.CreditLogRepository
	store kv.Store
	hook  MerchantHook // nil disables tagged credits
}

func New(db *pgxpool.Pool, store kv.Store, hook MerchantHook) *Ledger {
	return &Ledger{
		db:    db,
		users: repository.NewUserRepository(db),
		logs:  repository.NewCreditLogRepository(db),
		store: store,
		hook:  hook,
	}
}

// Deduct takes amount from the user for a bet. Tagged credits are consumed
// first; any remainder comes off the durable balance with a conditional
// update, so the balance can never go negative. Insufficient funds is a
// normal outcome (Success=false), not an error.
func (l *Ledger) Deduct(ctx context.Context, userID, amount int64, username, game, reason, gameSessionID string) (*DeductResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var used int64
	if l.hook != nil {
		tagged, err := l.hook.TaggedBalance(ctx, userID)
		if err != nil {
			return nil, err
		}
		if tagged > 0 {
			used, err = l.hook.ConsumeForGame(ctx, userID, game, amount, gameSessionID)
			if err != nil {
				return nil, err
			}
		}
	}

	remaining := amount - used
	if remaining <= 0 {
		// bet fully covered by tagged credits, regular balance untouched
		log := &domain.CreditLog{
			UserID:          userID,
			Username:        username,
			Amount:          -amount,
			TransactionType: domain.CreditTypeGameBet,
			Description:     reason + " (Tagged Credits)",
		}
		if err := l.logs.Create(ctx, log); err != nil {
			return nil, err
		}
		balance, err := l.ReadBalance(ctx, userID)
		if err != nil {
			return nil, err
		}
		return &DeductResult{Success: true, Balance: balance, UsedTaggedCredits: used}, nil
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	newBalance, err := l.users.DebitWithTx(ctx, tx, userID, remaining)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientFunds) {
			return &DeductResult{Success: false}, nil
		}
		return nil, err
	}

	log := &domain.CreditLog{
		UserID:          userID,
		Username:        username,
		Amount:          -amount,
		TransactionType: domain.CreditTypeGameBet,
		Description:     reason,
	}
	if err := l.logs.CreateWithTx(ctx, tx, log); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	l.cacheBalance(ctx, userID, newBalance)
	return &DeductResult{Success: true, Balance: newBalance, UsedTaggedCredits: used}, nil
}

// Credit pays amount to the user. The log line is typed game_refund when
// the reason says so, game_win otherwise.
func (l *Ledger) Credit(ctx context.Context, userID, amount int64, username, reason string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	txType := domain.CreditTypeGameWin
	if strings.Contains(reason, "Refund") {
		txType = domain.CreditTypeGameRefund
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	newBalance, err := l.users.CreditWithTx(ctx, tx, userID, amount)
	if err != nil {
		return 0, err
	}

	log := &domain.CreditLog{
		UserID:          userID,
		Username:        username,
		Amount:          amount,
		TransactionType: txType,
		Description:     reason,
	}
	if err := l.logs.CreateWithTx(ctx, tx, log); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}

	l.cacheBalance(ctx, userID, newBalance)
	return newBalance, nil
}

// ReadBalance reads through the cache.
func (l *Ledger) ReadBalance(ctx context.Context, userID int64) (int64, error) {
	key := cacheKey(userID)
	if val, err := l.store.Get(ctx, key); err == nil {
		if balance, perr := strconv.ParseInt(val, 10, 64); perr == nil {
			return balance, nil
		}
	}

	balance, err := l.users.GetCredits(ctx, userID)
	if err != nil {
		return 0, err
	}
	l.cacheBalance(ctx, userID, balance)
	return balance, nil
}

// InvalidateCache drops the cached balance so the next read hits the
// durable store. Restart recovery calls this after refunds.
func (l *Ledger) InvalidateCache(ctx context.Context, userID int64) {
	if err := l.store.Del(ctx, cacheKey(userID)); err != nil {
		logger.Warn("balance cache invalidate failed", "userId", userID, "error", err)
	}
}

func (l *Ledger) cacheBalance(ctx context.Context, userID, balance int64) {
	if err := l.store.Set(ctx, cacheKey(userID), strconv.FormatInt(balance, 10), balanceTTL); err != nil {
		logger.Warn("balance cache write failed", "userId", userID, "error", err)
	}
}

func cacheKey(userID int64) string {
	return "credits:" + strconv.FormatInt(userID, 10)
}
