package database

import (
	"strings"

	"greencoin-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sqlitePrefix = "sqlite://"

// Open opens a GORM DB from DSN. Postgres URLs use the pooler-safe simple protocol;
// "sqlite://<path>" opens a local SQLite file (":memory:" for throwaway runs).
func Open(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	if strings.HasPrefix(dsn, sqlitePrefix) {
		db, err := gorm.Open(sqlite.Open(strings.TrimPrefix(dsn, sqlitePrefix)), cfg)
		if err != nil {
			return nil, err
		}
		// SQLite allows a single writer.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	}
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), cfg)
}

// Models lists every persisted entity in migration order.
func Models() []interface{} {
	return []interface{}{
		&domain.Actor{},
		&domain.ApprovedSensor{},
		&domain.IoTAggregate{},
		&domain.ProductionBatch{},
		&domain.Credit{},
		&domain.MarketplaceListing{},
		&domain.CreditEvent{},
		&domain.PurchaseLog{},
		&domain.SellRequest{},
		&domain.Invoice{},
		&domain.LedgerHead{},
		&domain.LedgerEntry{},
		&domain.SettlementIntent{},
	}
}

// AutoMigrate creates or updates the schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
