//go:build !wasm
// +build !wasm

package gorm

import (
	"time"

	ca "github.com/panyam/credauth"
)

// AccountModel is the GORM model for accounts
type AccountModel struct {
	ID           string  `gorm:"primaryKey;size:64"`
	Email        string  `gorm:"size:255;uniqueIndex"`
	Name         string  `gorm:"size:100"`
	PasswordHash *string `gorm:"size:255"`
	VerifiedAt   *time.Time
	Role         string    `gorm:"size:16;default:USER"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

func (AccountModel) TableName() string {
	return "accounts"
}

func (m *AccountModel) ToAccount() *ca.Account {
	return &ca.Account{
		ID:           m.ID,
		Email:        m.Email,
		Name:         m.Name,
		PasswordHash: m.PasswordHash,
		VerifiedAt:   m.VerifiedAt,
		Role:         ca.Role(m.Role),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func AccountToModel(a *ca.Account) *AccountModel {
	role := a.Role
	if role == "" {
		role = ca.RoleUser
	}
	return &AccountModel{
		ID:           a.ID,
		Email:        a.Email,
		Name:         a.Name,
		PasswordHash: a.PasswordHash,
		VerifiedAt:   a.VerifiedAt,
		Role:         string(role),
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

// VerificationTokenModel is the GORM model for verification/reset tokens
type VerificationTokenModel struct {
	Token     string    `gorm:"primaryKey;size:128"`
	Kind      string    `gorm:"size:32;index:idx_token_kind_email"`
	Email     string    `gorm:"size:255;index:idx_token_kind_email"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	ExpiresAt time.Time `gorm:"index"`
}

func (VerificationTokenModel) TableName() string {
	return "verification_tokens"
}

func (m *VerificationTokenModel) ToVerificationToken() *ca.VerificationToken {
	return &ca.VerificationToken{
		Kind:      ca.TokenKind(m.Kind),
		Token:     m.Token,
		Email:     m.Email,
		CreatedAt: m.CreatedAt,
		ExpiresAt: m.ExpiresAt,
	}
}

func VerificationTokenToModel(t *ca.VerificationToken) *VerificationTokenModel {
	return &VerificationTokenModel{
		Token:     t.Token,
		Kind:      string(t.Kind),
		Email:     t.Email,
		CreatedAt: t.CreatedAt,
		ExpiresAt: t.ExpiresAt,
	}
}
