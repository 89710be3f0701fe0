package fs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	ca "github.com/panyam/credauth"
)

// TokenStore stores verification and reset tokens as JSON files
type TokenStore struct {
	s *Store
}

func (t *TokenStore) getKindDir(kind ca.TokenKind) string {
	return filepath.Join(t.s.StoragePath, "tokens", string(kind))
}

func (t *TokenStore) getTokenPath(kind ca.TokenKind, token string) string {
	return filepath.Join(t.getKindDir(kind), token+".json")
}

func (t *TokenStore) SaveToken(ctx context.Context, token *ca.VerificationToken) error {
	if !isSafeName(token.Token) || !token.Kind.Valid() {
		return os.ErrInvalid
	}
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	return t.s.locked(func() error {
		return t.s.write(t.getTokenPath(token.Kind, token.Token), data)
	})
}

func (t *TokenStore) GetToken(ctx context.Context, kind ca.TokenKind, token string) (out *ca.VerificationToken, err error) {
	if !isSafeName(token) || !kind.Valid() {
		return nil, ca.ErrTokenNotFound
	}
	err = t.s.locked(func() error {
		out, err = t.load(t.getTokenPath(kind, token))
		return err
	})
	return
}

func (t *TokenStore) DeleteToken(ctx context.Context, kind ca.TokenKind, token string) (removed bool, err error) {
	if !isSafeName(token) || !kind.Valid() {
		return false, nil
	}
	err = t.s.locked(func() error {
		removed, err = t.s.remove(t.getTokenPath(kind, token))
		return err
	})
	return
}

func (t *TokenStore) DeleteTokensForEmail(ctx context.Context, kind ca.TokenKind, email string) error {
	return t.s.locked(func() error {
		tokens, err := t.list(kind, email)
		if err != nil {
			return err
		}
		for _, token := range tokens {
			if _, err := t.s.remove(t.getTokenPath(kind, token.Token)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (t *TokenStore) ListTokensForEmail(ctx context.Context, kind ca.TokenKind, email string) (out []*ca.VerificationToken, err error) {
	err = t.s.locked(func() error {
		out, err = t.list(kind, email)
		return err
	})
	return
}

func (t *TokenStore) list(kind ca.TokenKind, email string) ([]*ca.VerificationToken, error) {
	dir := t.getKindDir(kind)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*ca.VerificationToken{}, nil
		}
		return nil, err
	}

	out := []*ca.VerificationToken{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		token, err := t.load(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		if token.Email == email {
			out = append(out, token)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *TokenStore) load(path string) (*ca.VerificationToken, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ca.ErrTokenNotFound
		}
		return nil, err
	}
	var token ca.VerificationToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, err
	}
	return &token, nil
}
