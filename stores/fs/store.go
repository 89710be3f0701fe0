// Package fs implements credauth.Store as JSON files on local disk.
//
// Layout under StoragePath:
//
//	accounts/<hex(sha256(email))>.json
//	tokens/<kind>/<token>.json
//
// A single mutex serializes every operation, and RunInTx holds it for the
// whole callback. Writes made in a transaction are journaled and undone if
// the callback fails. This is meant for development and single-process
// deployments.
package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	ca "github.com/panyam/credauth"
)

// Store is a file-backed ca.Store
type Store struct {
	StoragePath string

	mu      *sync.Mutex
	journal *journal // non-nil inside RunInTx
}

var _ ca.Store = (*Store)(nil)

// New creates a Store rooted at storagePath, creating the directory if needed
func New(storagePath string) (*Store, error) {
	if err := os.MkdirAll(storagePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &Store{StoragePath: storagePath, mu: &sync.Mutex{}}, nil
}

func (s *Store) Accounts() ca.AccountStore { return &AccountStore{s} }
func (s *Store) Tokens() ca.TokenStore     { return &TokenStore{s} }

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx ca.Store) error) error {
	if s.journal != nil {
		// already inside a transaction
		return fn(ctx, s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Store{StoragePath: s.StoragePath, mu: s.mu, journal: &journal{saved: map[string][]byte{}}}
	if err := fn(ctx, tx); err != nil {
		if rerr := tx.journal.rollback(); rerr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rerr)
		}
		return err
	}
	return nil
}

// Close is a no-op; there is nothing to release
func (s *Store) Close() error { return nil }

// locked runs fn under the store mutex unless a transaction already holds it
func (s *Store) locked(fn func() error) error {
	if s.journal == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn()
}

// write stores data at path, journaling the previous content in a transaction
func (s *Store) write(path string, data []byte) error {
	if err := s.remember(path); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return writeAtomicFile(path, data)
}

// remove deletes path and reports whether it existed
func (s *Store) remove(path string) (bool, error) {
	if err := s.remember(path); err != nil {
		return false, err
	}
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) remember(path string) error {
	if s.journal == nil {
		return nil
	}
	return s.journal.remember(path)
}

// journal holds the pre-transaction content of every touched file. A nil
// entry means the file did not exist.
type journal struct {
	saved map[string][]byte
	order []string
}

func (j *journal) remember(path string) error {
	if _, ok := j.saved[path]; ok {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	j.saved[path] = data
	j.order = append(j.order, path)
	return nil
}

func (j *journal) rollback() error {
	var firstErr error
	for i := len(j.order) - 1; i >= 0; i-- {
		path := j.order[i]
		var err error
		if data := j.saved[path]; data == nil {
			if err = os.Remove(path); os.IsNotExist(err) {
				err = nil
			}
		} else {
			err = writeAtomicFile(path, data)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
