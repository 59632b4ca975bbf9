package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"skycover/internal/auth"
	"skycover/internal/config"
	"skycover/internal/event"
	"skycover/internal/models"
	"skycover/internal/repository"
)

var (
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInsufficientShares    = errors.New("insufficient shares")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrInvalidBasisPoints    = errors.New("basis points out of range")
	ErrReentrantCall         = errors.New("operation in progress")
)

// FundsAccess is the capability required for premium/payout transfers and
// liability updates. Only the holder of the token granted at wiring time can
// move pool funds; user deposits and withdrawals go through the public ops.
type FundsAccess struct {
	token *struct{}
}

// Ledger owns the shared capital pool: proportional-ownership shares,
// cumulative premium/payout counters and the liability withdrawal gate.
// Public operations serialize on an internal mutex and each runs as one
// database transaction.
type Ledger struct {
	Repo   repository.Repository
	Logger *zap.Logger
	Events *event.Hub

	mu        sync.Mutex
	notifying atomic.Bool
	capToken  *struct{}
	grantOnce sync.Once
}

// GrantFundsAccess issues the capability for registry-only operations. Meant
// to be called once from wiring; repeated calls return the same token.
func (l *Ledger) GrantFundsAccess() FundsAccess {
	l.grantOnce.Do(func() { l.capToken = &struct{}{} })
	return FundsAccess{token: l.capToken}
}

func (l *Ledger) authorize(a FundsAccess) error {
	if l.capToken == nil || a.token != l.capToken {
		return auth.ErrUnauthorized
	}
	return nil
}

func (l *Ledger) guard() error {
	if l.notifying.Load() {
		return ErrReentrantCall
	}
	return nil
}

// LockFunds serializes a caller-owned transaction that moves pool funds with
// the ledger's own Deposit and Withdraw. The transaction owner takes it
// before opening the transaction and before the registry mutex, and releases
// it after commit.
func (l *Ledger) LockFunds(a FundsAccess) (func(), error) {
	if err := l.authorize(a); err != nil {
		return nil, err
	}
	l.mu.Lock()
	return l.mu.Unlock, nil
}

// EnsureDefaults seeds the pool yield rate from configuration on startup.
// A nonzero rate already stored, set through the admin surface, is kept.
func (l *Ledger) EnsureDefaults(ctx context.Context, cfg config.LedgerConfig) error {
	if cfg.YieldBp < 0 || cfg.YieldBp > 10000 {
		return ErrInvalidBasisPoints
	}
	if cfg.YieldBp == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Repo.InTx(ctx, func(tx *gorm.DB) error {
		pool, err := l.Repo.GetPoolStateTx(ctx, tx)
		if err != nil {
			return err
		}
		if pool.YieldBp != 0 {
			return nil
		}
		pool.YieldBp = cfg.YieldBp
		return l.Repo.SavePoolStateTx(ctx, tx, pool)
	})
}

// Deposit credits the provider with freshly minted shares.
func (l *Ledger) Deposit(ctx context.Context, provider string, amount decimal.Decimal) (decimal.Decimal, error) {
	if provider == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	if err := l.guard(); err != nil {
		return decimal.Zero, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var shares decimal.Decimal
	var emitted []models.EngineEvent
	err := l.Repo.InTx(ctx, func(tx *gorm.DB) error {
		pool, err := l.Repo.GetPoolStateTx(ctx, tx)
		if err != nil {
			return err
		}
		shares = MintShares(pool.PoolValue, pool.TotalShares, amount)
		if !shares.IsPositive() {
			return ErrInvalidAmount
		}
		pos, err := l.Repo.GetPositionTx(ctx, tx, provider)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if pos == nil {
			pos = &models.LiquidityPosition{Provider: provider, Shares: decimal.Zero, DepositedAt: now}
		}
		pos.Shares = pos.Shares.Add(shares)
		pos.DepositedAt = now
		pool.PoolValue = pool.PoolValue.Add(amount)
		pool.TotalShares = pool.TotalShares.Add(shares)
		if err := l.Repo.SavePoolStateTx(ctx, tx, pool); err != nil {
			return err
		}
		if err := l.Repo.SavePositionTx(ctx, tx, pos); err != nil {
			return err
		}
		evt, err := l.Events.Record(ctx, tx, models.EventLiquidityDeposited, map[string]any{
			"provider": provider,
			"amount":   amount,
			"shares":   shares,
		})
		if err != nil {
			return err
		}
		emitted = append(emitted, evt)
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	l.broadcast(emitted)
	if l.Logger != nil {
		l.Logger.Info("liquidity deposited",
			zap.String("provider", provider),
			zap.String("amount", amount.String()),
			zap.String("shares", shares.String()),
		)
	}
	return shares, nil
}

// Withdraw burns shares and pays out their current pool value, gated by
// outstanding liability. Fails whole or succeeds whole.
func (l *Ledger) Withdraw(ctx context.Context, provider string, shares decimal.Decimal) (decimal.Decimal, error) {
	if provider == "" || !shares.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	if err := l.guard(); err != nil {
		return decimal.Zero, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var amount decimal.Decimal
	var emitted []models.EngineEvent
	err := l.Repo.InTx(ctx, func(tx *gorm.DB) error {
		pool, err := l.Repo.GetPoolStateTx(ctx, tx)
		if err != nil {
			return err
		}
		pos, err := l.Repo.GetPositionTx(ctx, tx, provider)
		if err != nil {
			return err
		}
		if pos == nil || pos.Shares.LessThan(shares) {
			return ErrInsufficientShares
		}
		amount = RedeemValue(shares, pool.PoolValue, pool.TotalShares)
		if amount.GreaterThan(Available(pool.PoolValue, pool.TotalLiability)) {
			return ErrInsufficientLiquidity
		}
		pos.Shares = pos.Shares.Sub(shares)
		pool.TotalShares = pool.TotalShares.Sub(shares)
		pool.PoolValue = pool.PoolValue.Sub(amount)
		if err := l.Repo.SavePoolStateTx(ctx, tx, pool); err != nil {
			return err
		}
		if err := l.Repo.SavePositionTx(ctx, tx, pos); err != nil {
			return err
		}
		evt, err := l.Events.Record(ctx, tx, models.EventLiquidityWithdrawn, map[string]any{
			"provider": provider,
			"shares":   shares,
			"amount":   amount,
		})
		if err != nil {
			return err
		}
		emitted = append(emitted, evt)
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	l.broadcast(emitted)
	if l.Logger != nil {
		l.Logger.Info("liquidity withdrawn",
			zap.String("provider", provider),
			zap.String("shares", shares.String()),
			zap.String("amount", amount.String()),
		)
	}
	return amount, nil
}

// TransferPremiumTx moves a collected premium into the pool. Runs inside the
// registry's transaction; requires the funds capability.
func (l *Ledger) TransferPremiumTx(ctx context.Context, tx *gorm.DB, a FundsAccess, amount decimal.Decimal) error {
	if err := l.authorize(a); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	pool, err := l.Repo.GetPoolStateTx(ctx, tx)
	if err != nil {
		return err
	}
	pool.PoolValue = pool.PoolValue.Add(amount)
	pool.PremiumsCollected = pool.PremiumsCollected.Add(amount)
	return l.Repo.SavePoolStateTx(ctx, tx, pool)
}

// TransferPayoutTx releases a claim payout from the pool. The surrounding
// transaction rolls the whole settlement back if the pool cannot cover it.
func (l *Ledger) TransferPayoutTx(ctx context.Context, tx *gorm.DB, a FundsAccess, recipient string, amount decimal.Decimal) error {
	if err := l.authorize(a); err != nil {
		return err
	}
	if recipient == "" || !amount.IsPositive() {
		return ErrInvalidAmount
	}
	pool, err := l.Repo.GetPoolStateTx(ctx, tx)
	if err != nil {
		return err
	}
	next := pool.PoolValue.Sub(amount)
	if next.IsNegative() {
		return ErrInsufficientLiquidity
	}
	pool.PoolValue = next
	pool.PayoutsPaid = pool.PayoutsPaid.Add(amount)
	return l.Repo.SavePoolStateTx(ctx, tx, pool)
}

// UpdateLiabilityTx replaces the liability figure used by the withdrawal
// gate. Always a full recompute pushed by the registry, never a delta.
func (l *Ledger) UpdateLiabilityTx(ctx context.Context, tx *gorm.DB, a FundsAccess, liability decimal.Decimal) error {
	if err := l.authorize(a); err != nil {
		return err
	}
	if liability.IsNegative() {
		return ErrInvalidAmount
	}
	pool, err := l.Repo.GetPoolStateTx(ctx, tx)
	if err != nil {
		return err
	}
	pool.TotalLiability = liability
	return l.Repo.SavePoolStateTx(ctx, tx, pool)
}

// CalculateYield reports the provider's share of current net premium income.
func (l *Ledger) CalculateYield(ctx context.Context, provider string) (decimal.Decimal, error) {
	pool, err := l.Repo.GetPoolState(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	pos, err := l.Repo.GetPosition(ctx, provider)
	if err != nil {
		return decimal.Zero, err
	}
	if pool == nil || pos == nil {
		return decimal.Zero, nil
	}
	return YieldAmount(pool.PremiumsCollected, pool.PayoutsPaid, pos.Shares, pool.TotalShares, pool.YieldBp), nil
}

// Position reports the provider's shares and the value they would redeem
// for at the current pool state.
type Position struct {
	Provider    string          `json:"provider"`
	Shares      decimal.Decimal `json:"shares"`
	Value       decimal.Decimal `json:"value"`
	DepositedAt time.Time       `json:"deposited_at"`
}

func (l *Ledger) Position(ctx context.Context, provider string) (Position, error) {
	pool, err := l.Repo.GetPoolState(ctx)
	if err != nil {
		return Position{}, err
	}
	pos, err := l.Repo.GetPosition(ctx, provider)
	if err != nil {
		return Position{}, err
	}
	out := Position{Provider: provider, Shares: decimal.Zero, Value: decimal.Zero}
	if pos == nil {
		return out, nil
	}
	out.Shares = pos.Shares
	out.DepositedAt = pos.DepositedAt
	if pool != nil {
		out.Value = RedeemValue(pos.Shares, pool.PoolValue, pool.TotalShares)
	}
	return out, nil
}

// Positions lists every provider's stake at the current pool state.
func (l *Ledger) Positions(ctx context.Context, limit, offset int) ([]Position, error) {
	pool, err := l.Repo.GetPoolState(ctx)
	if err != nil {
		return nil, err
	}
	stored, err := l.Repo.ListPositions(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]Position, 0, len(stored))
	for _, pos := range stored {
		p := Position{Provider: pos.Provider, Shares: pos.Shares, Value: decimal.Zero, DepositedAt: pos.DepositedAt}
		if pool != nil {
			p.Value = RedeemValue(pos.Shares, pool.PoolValue, pool.TotalShares)
		}
		out = append(out, p)
	}
	return out, nil
}

type PoolStats struct {
	PoolValue         decimal.Decimal `json:"pool_value"`
	TotalShares       decimal.Decimal `json:"total_shares"`
	TotalLiability    decimal.Decimal `json:"total_liability"`
	UtilizationBp     int64           `json:"utilization_bp"`
	PremiumsCollected decimal.Decimal `json:"premiums_collected"`
	PayoutsPaid       decimal.Decimal `json:"payouts_paid"`
	YieldBp           int64           `json:"yield_bp"`
}

func (l *Ledger) PoolStats(ctx context.Context) (PoolStats, error) {
	pool, err := l.Repo.GetPoolState(ctx)
	if err != nil {
		return PoolStats{}, err
	}
	if pool == nil {
		return PoolStats{}, nil
	}
	return PoolStats{
		PoolValue:         pool.PoolValue,
		TotalShares:       pool.TotalShares,
		TotalLiability:    pool.TotalLiability,
		UtilizationBp:     UtilizationBp(pool.TotalLiability, pool.PoolValue),
		PremiumsCollected: pool.PremiumsCollected,
		PayoutsPaid:       pool.PayoutsPaid,
		YieldBp:           pool.YieldBp,
	}, nil
}

// SetYieldBp is the admin setter for the yield rate.
func (l *Ledger) SetYieldBp(ctx context.Context, ident auth.Identity, bp int64) error {
	if !ident.HasRole(auth.RoleAdmin) {
		return auth.ErrUnauthorized
	}
	if bp < 0 || bp > 10000 {
		return ErrInvalidBasisPoints
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var emitted []models.EngineEvent
	err := l.Repo.InTx(ctx, func(tx *gorm.DB) error {
		pool, err := l.Repo.GetPoolStateTx(ctx, tx)
		if err != nil {
			return err
		}
		pool.YieldBp = bp
		if err := l.Repo.SavePoolStateTx(ctx, tx, pool); err != nil {
			return err
		}
		evt, err := l.Events.Record(ctx, tx, models.EventConfigUpdated, map[string]any{
			"setting": "yield_bp",
			"value":   bp,
			"by":      ident.Subject,
		})
		if err != nil {
			return err
		}
		emitted = append(emitted, evt)
		return nil
	})
	if err != nil {
		return err
	}
	l.broadcast(emitted)
	return nil
}

// broadcast fans committed events out while holding the re-entrancy flag so a
// subscriber calling back into the ledger fails fast instead of deadlocking
// the bookkeeping.
func (l *Ledger) broadcast(events []models.EngineEvent) {
	if len(events) == 0 || l.Events == nil {
		return
	}
	l.notifying.Store(true)
	defer l.notifying.Store(false)
	l.Events.Broadcast(events...)
}
