package models

import (
	"time"

	"gorm.io/datatypes"
)

// Engine event types observable by API clients.
const (
	EventPolicyCreated        = "policy_created"
	EventPolicyExpired        = "policy_expired"
	EventClaimProcessed       = "claim_processed"
	EventLiquidityDeposited   = "liquidity_deposited"
	EventLiquidityWithdrawn   = "liquidity_withdrawn"
	EventWeatherDataRequested = "weather_data_requested"
	EventWeatherDataFulfilled = "weather_data_fulfilled"
	EventConfigUpdated        = "config_updated"
)

// EngineEvent is the append-only event log. Rows are written in the same
// transaction as the state change they describe.
type EngineEvent struct {
	ID        string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Type      string         `gorm:"type:varchar(40);not null;index" json:"type"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null" json:"payload"`
	CreatedAt time.Time      `gorm:"type:timestamptz;autoCreateTime;index" json:"created_at"`
}

func (EngineEvent) TableName() string {
	return "engine_events"
}
