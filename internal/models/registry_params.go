package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RegistryParams is the singleton policy-registry configuration row (ID 1).
// Admin setters replace individual fields; reads always see the latest commit.
type RegistryParams struct {
	ID                 uint32          `gorm:"primaryKey" json:"-"`
	BasePremiumRateBp  int64           `gorm:"not null" json:"base_premium_rate_bp"`
	MinPremium         decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"min_premium"`
	MinPayout          decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"min_payout"`
	MaxPayout          decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"max_payout"`
	MinCoverageSeconds int64           `gorm:"not null" json:"min_coverage_seconds"`
	MaxCoverageSeconds int64           `gorm:"not null" json:"max_coverage_seconds"`
	Paused             bool            `gorm:"not null;default:false" json:"paused"`
	UpdatedAt          time.Time       `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (RegistryParams) TableName() string {
	return "registry_params"
}

const RegistryParamsID uint32 = 1

// OracleConfig is the singleton oracle-gateway identity row (ID 1). The
// public key is a hex-encoded DER SubjectPublicKeyInfo (ECDSA P-256).
type OracleConfig struct {
	ID              uint32    `gorm:"primaryKey" json:"-"`
	OracleSubject   string    `gorm:"type:varchar(128);not null" json:"oracle_subject"`
	OraclePublicKey string    `gorm:"type:text;not null" json:"oracle_public_key"`
	UpdatedAt       time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (OracleConfig) TableName() string {
	return "oracle_config"
}

const OracleConfigID uint32 = 1
