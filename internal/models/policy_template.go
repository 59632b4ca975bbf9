package models

import "github.com/shopspring/decimal"

// PolicyTemplate is immutable configuration used to pre-fill a policy at
// creation time. Templates are loaded from config at startup and upserted.
type PolicyTemplate struct {
	Name            string          `gorm:"primaryKey;type:varchar(64)" json:"name"`
	Parameter       string          `gorm:"type:varchar(20);not null" json:"parameter"`
	Operator        string          `gorm:"type:varchar(5);not null" json:"operator"`
	TriggerValue    int64           `gorm:"not null" json:"trigger_value"`
	CoverageSeconds int64           `gorm:"not null" json:"coverage_seconds"`
	PayoutAmount    decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"payout_amount"`
}

func (PolicyTemplate) TableName() string {
	return "policy_templates"
}
