package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Policy status values. A policy is created active and moves exactly once to
// claimed or expired; terminal states never change again.
const (
	PolicyStatusActive  = "active"
	PolicyStatusClaimed = "claimed"
	PolicyStatusExpired = "expired"
)

// Weather parameter kinds accepted on a policy.
const (
	ParameterTemperature = "temperature"
	ParameterRainfall    = "rainfall"
	ParameterWind        = "wind"
	ParameterHumidity    = "humidity"
)

// Trigger comparison operators.
const (
	OperatorGreaterThan = "gt"
	OperatorLessThan    = "lt"
	OperatorEqualTo     = "eq"
)

// Policy is a weather-indexed coverage record. All fields except Status are
// immutable after creation.
type Policy struct {
	ID            uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Holder        string          `gorm:"type:varchar(128);not null;index" json:"holder"`
	Location      string          `gorm:"type:varchar(128);not null;index:idx_policies_match" json:"location"`
	Parameter     string          `gorm:"type:varchar(20);not null;index:idx_policies_match" json:"parameter"`
	Operator      string          `gorm:"type:varchar(5);not null" json:"operator"`
	TriggerValue  int64           `gorm:"not null" json:"trigger_value"`
	Premium       decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"premium"`
	PayoutAmount  decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"payout_amount"`
	Status        string          `gorm:"type:varchar(10);not null;index" json:"status"`
	CoverageStart time.Time       `gorm:"type:timestamptz;not null" json:"coverage_start"`
	CoverageEnd   time.Time       `gorm:"type:timestamptz;not null;index" json:"coverage_end"`
	CreatedAt     time.Time       `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
}

func (Policy) TableName() string {
	return "policies"
}

func ValidParameter(p string) bool {
	switch p {
	case ParameterTemperature, ParameterRainfall, ParameterWind, ParameterHumidity:
		return true
	}
	return false
}

func ValidOperator(op string) bool {
	switch op {
	case OperatorGreaterThan, OperatorLessThan, OperatorEqualTo:
		return true
	}
	return false
}
