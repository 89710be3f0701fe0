package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/panyam/credauth"
	fsstore "github.com/panyam/credauth/stores/fs"
	gormstore "github.com/panyam/credauth/stores/gorm"
)

// openStore opens and migrates the configured backend. The caller closes it.
func openStore(ctx context.Context, c *Config) (credauth.Store, error) {
	if c.Store == "fs" {
		store, err := fsstore.New(c.FSPath)
		if err != nil {
			return nil, fmt.Errorf("open fs store: %w", err)
		}
		return store, nil
	}

	gormConfig := &gorm.Config{
		TranslateError: true,
		Logger: logger.New(
			log.New(os.Stdout, "", log.LstdFlags),
			logger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  logger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
	}

	var dialector gorm.Dialector
	switch c.Store {
	case "postgres":
		cfg, err := pgx.ParseConfig(c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
		}
		sqlDB := stdlib.OpenDB(*cfg)
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)

		pingCtx, cancel := context.WithTimeout(ctx, 8*time.Second)
		defer cancel()
		if err := sqlDB.PingContext(pingCtx); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		dialector = postgres.New(postgres.Config{Conn: sqlDB})
	default:
		dialector = sqlite.Open(c.SQLitePath)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", c.Store, err)
	}
	store := gormstore.New(db)
	if err := gormstore.AutoMigrate(db); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}
