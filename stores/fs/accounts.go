package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	ca "github.com/panyam/credauth"
)

// AccountStore stores accounts as JSON files named by the sha256 of the
// email, which keeps file names a fixed length.
type AccountStore struct {
	s *Store
}

func (a *AccountStore) accountsDir() string {
	return filepath.Join(a.s.StoragePath, "accounts")
}

func (a *AccountStore) getAccountPath(email string) string {
	sum := sha256.Sum256([]byte(email))
	return filepath.Join(a.accountsDir(), hex.EncodeToString(sum[:])+".json")
}

func (a *AccountStore) CreateAccount(ctx context.Context, account *ca.Account) error {
	return a.s.locked(func() error {
		path := a.getAccountPath(account.Email)
		if _, err := os.Stat(path); err == nil {
			return ca.ErrEmailTaken
		} else if !os.IsNotExist(err) {
			return err
		}
		return a.save(account)
	})
}

func (a *AccountStore) GetAccountByEmail(ctx context.Context, email string) (out *ca.Account, err error) {
	err = a.s.locked(func() error {
		out, err = a.load(a.getAccountPath(email))
		return err
	})
	return
}

func (a *AccountStore) GetAccountByID(ctx context.Context, id string) (out *ca.Account, err error) {
	err = a.s.locked(func() error {
		entries, err := os.ReadDir(a.accountsDir())
		if err != nil {
			if os.IsNotExist(err) {
				return ca.ErrAccountNotFound
			}
			return err
		}
		for _, entry := range entries {
			if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
				continue
			}
			account, err := a.load(filepath.Join(a.accountsDir(), entry.Name()))
			if err != nil {
				continue
			}
			if account.ID == id {
				out = account
				return nil
			}
		}
		return ca.ErrAccountNotFound
	})
	return
}

func (a *AccountStore) MarkVerified(ctx context.Context, email string, at time.Time) error {
	return a.update(email, func(account *ca.Account) {
		account.VerifiedAt = &at
		account.UpdatedAt = at
	})
}

func (a *AccountStore) SetPasswordHash(ctx context.Context, email string, passwordHash string) error {
	return a.update(email, func(account *ca.Account) {
		account.PasswordHash = &passwordHash
		account.UpdatedAt = time.Now()
	})
}

func (a *AccountStore) update(email string, apply func(*ca.Account)) error {
	return a.s.locked(func() error {
		account, err := a.load(a.getAccountPath(email))
		if err != nil {
			return err
		}
		apply(account)
		return a.save(account)
	})
}

func (a *AccountStore) load(path string) (*ca.Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ca.ErrAccountNotFound
		}
		return nil, err
	}
	var account ca.Account
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (a *AccountStore) save(account *ca.Account) error {
	data, err := json.MarshalIndent(account, "", "  ")
	if err != nil {
		return err
	}
	return a.s.write(a.getAccountPath(account.Email), data)
}
