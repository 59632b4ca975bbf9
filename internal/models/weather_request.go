package models

import "time"

// WeatherRequest is a pending or fulfilled oracle data request. The fulfilled
// flag flips exactly once.
type WeatherRequest struct {
	RequestID   string     `gorm:"primaryKey;type:varchar(64)" json:"request_id"`
	Requester   string     `gorm:"type:varchar(128);not null;index" json:"requester"`
	Location    string     `gorm:"type:varchar(128);not null" json:"location"`
	Parameter   string     `gorm:"type:varchar(20);not null" json:"parameter"`
	Fulfilled   bool       `gorm:"not null;default:false;index" json:"fulfilled"`
	CreatedAt   time.Time  `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	FulfilledAt *time.Time `gorm:"type:timestamptz" json:"fulfilled_at,omitempty"`
}

func (WeatherRequest) TableName() string {
	return "weather_requests"
}
