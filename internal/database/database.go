// Package database opens the shared connection pool and prepares the schema.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"nexusstore/internal/auth"
	"nexusstore/internal/config"
	"nexusstore/internal/models"
)

// SlowQueryThreshold is the duration above which statements are logged.
const SlowQueryThreshold = 100 * time.Millisecond

type gormWriter struct{ lg *zap.SugaredLogger }

func (w gormWriter) Printf(format string, args ...interface{}) { w.lg.Warnf(format, args...) }

// NewGormLogger reports slow queries and errors through zap.
func NewGormLogger(lg *zap.SugaredLogger) logger.Interface {
	return logger.New(gormWriter{lg: lg.Named("gorm")}, logger.Config{
		SlowThreshold:             SlowQueryThreshold,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

// Open connects to Postgres and tunes the pool from cfg.
func Open(cfg *config.Config, lg *zap.SugaredLogger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger:         NewGormLogger(lg),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if err := Tune(db, cfg); err != nil {
		return nil, err
	}
	return db, nil
}

// Tune applies the pool ceiling and idle eviction. The acquire wait is not a
// pool setting; request handlers bound their queries by it instead.
func Tune(db *gorm.DB, cfg *config.Config) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("db pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.DBMaxConns)
	sqlDB.SetMaxIdleConns(cfg.DBMaxConns)
	sqlDB.SetConnMaxIdleTime(cfg.DBIdleTimeout)
	return nil
}

// Migrate creates or updates the tables for every entity.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}

// Ping checks that a pooled connection answers within the context deadline.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// SeedAdmin creates the first admin account when email is set and no user
// holds it yet. It reports whether a row was inserted.
func SeedAdmin(ctx context.Context, db *gorm.DB, email, password, name string, lg *zap.SugaredLogger) (bool, error) {
	if email == "" || password == "" {
		return false, nil
	}
	if name == "" {
		name = "Administrator"
	}
	var count int64
	if err := db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, fmt.Errorf("seed admin: %w", err)
	}
	if count > 0 {
		return false, nil
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return false, fmt.Errorf("seed admin: %w", err)
	}
	u := models.User{Email: email, PasswordHash: hash, Name: name, Role: models.RoleAdmin}
	if err := db.WithContext(ctx).Create(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, fmt.Errorf("seed admin: %w", err)
	}
	lg.Infow("seeded admin", "email", email)
	return true, nil
}
