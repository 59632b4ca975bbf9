package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Claim is an append-only settlement record. The unique index on PolicyID is
// the database-level backstop for single-claim idempotency.
type Claim struct {
	ID            uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	PolicyID      uint64          `gorm:"not null;uniqueIndex" json:"policy_id"`
	Holder        string          `gorm:"type:varchar(128);not null;index" json:"holder"`
	PayoutAmount  decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"payout_amount"`
	ObservedValue int64           `gorm:"not null" json:"observed_value"`
	SettledAt     time.Time       `gorm:"type:timestamptz;not null;index" json:"settled_at"`
}

func (Claim) TableName() string {
	return "claims"
}
