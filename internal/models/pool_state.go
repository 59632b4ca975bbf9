package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PoolState is the singleton capital-pool ledger row (ID is always 1).
// PoolValue and TotalShares move together under the share math; TotalLiability
// is recomputed from scratch by the policy registry, never adjusted in place.
type PoolState struct {
	ID                uint32          `gorm:"primaryKey" json:"-"`
	PoolValue         decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"pool_value"`
	TotalShares       decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"total_shares"`
	TotalLiability    decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"total_liability"`
	PremiumsCollected decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"premiums_collected"`
	PayoutsPaid       decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"payouts_paid"`
	YieldBp           int64           `gorm:"not null;default:0" json:"yield_bp"`
	UpdatedAt         time.Time       `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (PoolState) TableName() string {
	return "pool_state"
}

const PoolStateID uint32 = 1

// LiquidityPosition is a provider's proportional-ownership stake in the pool.
type LiquidityPosition struct {
	Provider    string          `gorm:"primaryKey;type:varchar(128)" json:"provider"`
	Shares      decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"shares"`
	DepositedAt time.Time       `gorm:"type:timestamptz;not null" json:"deposited_at"`
	UpdatedAt   time.Time       `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (LiquidityPosition) TableName() string {
	return "liquidity_positions"
}
