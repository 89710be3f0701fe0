//go:build !wasm
// +build !wasm

// Package gorm provides a GORM-based implementation of credauth.Store.
// It works with any database GORM supports and is what the server uses for
// PostgreSQL and SQLite deployments.
//
// # Database Schema
//
// AutoMigrate creates the following tables:
//   - accounts: credentials and OAuth accounts, unique by email
//   - verification_tokens: email verification and password reset tokens
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
//	if err := gormstore.AutoMigrate(db); err != nil { ... }
//	store := gormstore.New(db)
//	defer store.Close()
package gorm
