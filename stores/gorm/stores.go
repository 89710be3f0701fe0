//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	ca "github.com/panyam/credauth"
)

// AutoMigrate runs database migrations for all credauth tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&AccountModel{},
		&VerificationTokenModel{},
	)
}

// Store implements ca.Store using GORM. Inside RunInTx the Store handed to
// the callback is bound to the transaction.
type Store struct {
	db *gorm.DB
}

var _ ca.Store = (*Store)(nil)

// New creates a Store over db
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Accounts() ca.AccountStore { return &AccountStore{db: s.db} }
func (s *Store) Tokens() ca.TokenStore     { return &TokenStore{db: s.db} }

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx ca.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &Store{db: tx})
	})
}

// Close closes the underlying connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// =============================================================================
// AccountStore
// =============================================================================

// AccountStore implements ca.AccountStore using GORM
type AccountStore struct {
	db *gorm.DB
}

func NewAccountStore(db *gorm.DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) CreateAccount(ctx context.Context, account *ca.Account) error {
	db := s.db.WithContext(ctx)
	err := db.Create(AccountToModel(account)).Error
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ca.ErrEmailTaken
	}
	// without TranslateError the driver's own error comes back
	var count int64
	if cerr := db.Model(&AccountModel{}).Where("email = ?", account.Email).Count(&count).Error; cerr == nil && count > 0 {
		return ca.ErrEmailTaken
	}
	return err
}

func (s *AccountStore) GetAccountByEmail(ctx context.Context, email string) (*ca.Account, error) {
	var model AccountModel
	if err := s.db.WithContext(ctx).First(&model, "email = ?", email).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ca.ErrAccountNotFound
		}
		return nil, err
	}
	return model.ToAccount(), nil
}

func (s *AccountStore) GetAccountByID(ctx context.Context, id string) (*ca.Account, error) {
	var model AccountModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ca.ErrAccountNotFound
		}
		return nil, err
	}
	return model.ToAccount(), nil
}

func (s *AccountStore) MarkVerified(ctx context.Context, email string, at time.Time) error {
	return s.updateByEmail(ctx, email, map[string]any{"verified_at": at})
}

func (s *AccountStore) SetPasswordHash(ctx context.Context, email string, passwordHash string) error {
	return s.updateByEmail(ctx, email, map[string]any{"password_hash": passwordHash})
}

func (s *AccountStore) updateByEmail(ctx context.Context, email string, values map[string]any) error {
	res := s.db.WithContext(ctx).Model(&AccountModel{}).Where("email = ?", email).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ca.ErrAccountNotFound
	}
	return nil
}

// =============================================================================
// TokenStore (for email verification and password reset)
// =============================================================================

// TokenStore implements ca.TokenStore using GORM
type TokenStore struct {
	db *gorm.DB
}

func NewTokenStore(db *gorm.DB) *TokenStore {
	return &TokenStore{db: db}
}

func (s *TokenStore) SaveToken(ctx context.Context, token *ca.VerificationToken) error {
	if err := s.db.WithContext(ctx).Create(VerificationTokenToModel(token)).Error; err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

func (s *TokenStore) GetToken(ctx context.Context, kind ca.TokenKind, token string) (*ca.VerificationToken, error) {
	var model VerificationTokenModel
	if err := s.db.WithContext(ctx).First(&model, "token = ? AND kind = ?", token, string(kind)).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ca.ErrTokenNotFound
		}
		return nil, err
	}
	return model.ToVerificationToken(), nil
}

func (s *TokenStore) DeleteToken(ctx context.Context, kind ca.TokenKind, token string) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&VerificationTokenModel{}, "token = ? AND kind = ?", token, string(kind))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *TokenStore) DeleteTokensForEmail(ctx context.Context, kind ca.TokenKind, email string) error {
	return s.db.WithContext(ctx).Delete(&VerificationTokenModel{}, "kind = ? AND email = ?", string(kind), email).Error
}

func (s *TokenStore) ListTokensForEmail(ctx context.Context, kind ca.TokenKind, email string) ([]*ca.VerificationToken, error) {
	var models []VerificationTokenModel
	if err := s.db.WithContext(ctx).Where("kind = ? AND email = ?", string(kind), email).Order("created_at").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*ca.VerificationToken, 0, len(models))
	for i := range models {
		out = append(out, models[i].ToVerificationToken())
	}
	return out, nil
}
