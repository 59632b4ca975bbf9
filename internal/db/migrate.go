package db

import (
	"skycover/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.PoolState{},
		&models.LiquidityPosition{},
		&models.Policy{},
		&models.Claim{},
		&models.PolicyTemplate{},
		&models.WeatherRequest{},
		&models.RegistryParams{},
		&models.OracleConfig{},
		&models.EngineEvent{},
	)
}
