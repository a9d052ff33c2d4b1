// Package store keeps balances, payments and essay reviews in a relational
// database. Every money or decision mutation runs in a transaction that takes
// a row lock first and re-checks its precondition under that lock.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"essay-review-bot/config"
	"essay-review-bot/model"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var (
	ErrNotInitialized = errors.New("store: database not initialized")
	ErrNotFound       = errors.New("store: record not found")
	ErrInvalidAmount  = errors.New("store: amount must be positive")
	ErrVoiceAttached  = errors.New("store: voice already attached")
)

// Open connects to the configured database, bounds the pool and migrates the schema.
func Open(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("store: underlying db: %w", err)
	}
	if cfg.Driver == "sqlite" {
		// sqlite has a single writer; one connection serializes transactions.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := db.AutoMigrate(model.All()...); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return db, nil
}

func session(ctx context.Context, db *gorm.DB) (*gorm.DB, error) {
	if db == nil {
		return nil, ErrNotInitialized
	}
	return db.WithContext(ctx), nil
}

// forUpdate adds SELECT ... FOR UPDATE where the dialect has row locks.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func ensureUser(tx *gorm.DB, userID int64) error {
	return tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.User{UserID: userID}).Error
}

func credit(tx *gorm.DB, userID, amount int64) error {
	now := time.Now()
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"balance":    gorm.Expr("balances.balance + excluded.balance"),
			"updated_at": now,
		}),
	}).Create(&model.Balance{UserID: userID, Balance: amount, UpdatedAt: now}).Error
}
