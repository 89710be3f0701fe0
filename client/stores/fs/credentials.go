// Package fs keeps credauth client credentials in a JSON file, one entry per
// server origin.
package fs

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/panyam/credauth/client"
)

// DefaultAppName names the config directory used when no path is given
const DefaultAppName = "credauth"

// CredentialFile is a client.CredentialStore backed by a single file.
// Changes are held in memory until Save.
type CredentialFile struct {
	mu    sync.RWMutex
	path  string
	creds map[string]*client.ServerCredential
	dirty bool
}

type fileContents struct {
	Servers map[string]*client.ServerCredential `json:"servers"`
}

// Open loads the credential file at path, or starts empty if it does not
// exist yet. An empty path resolves to <user config dir>/<appName>/credentials.json.
func Open(path string, appName string) (*CredentialFile, error) {
	if path == "" {
		var err error
		if path, err = defaultPath(appName); err != nil {
			return nil, err
		}
	}

	f := &CredentialFile{path: path, creds: map[string]*client.ServerCredential{}}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return f, nil
	case err != nil:
		return nil, err
	}

	var contents fileContents
	if err := json.Unmarshal(data, &contents); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file %s: %w", path, err)
	}
	if contents.Servers != nil {
		f.creds = contents.Servers
	}
	return f, nil
}

func defaultPath(appName string) (string, error) {
	if appName == "" {
		appName = DefaultAppName
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return "", fmt.Errorf("could not determine config directory: %w", herr)
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, appName, "credentials.json"), nil
}

// origin reduces a server URL to scheme://host
func origin(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server URL %q: missing host", serverURL)
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	return u.Scheme + "://" + u.Host, nil
}

func (f *CredentialFile) GetCredential(serverURL string) (*client.ServerCredential, error) {
	key, err := origin(serverURL)
	if err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.creds[key], nil
}

func (f *CredentialFile) SetCredential(serverURL string, cred *client.ServerCredential) error {
	key, err := origin(serverURL)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creds[key] = cred
	f.dirty = true
	return nil
}

func (f *CredentialFile) RemoveCredential(serverURL string) error {
	key, err := origin(serverURL)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.creds[key]; ok {
		delete(f.creds, key)
		f.dirty = true
	}
	return nil
}

// Servers lists the origins with a stored credential, sorted
func (f *CredentialFile) Servers() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.creds))
	for k := range f.creds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Save writes pending changes. The file is readable by the owner only.
func (f *CredentialFile) Save() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.dirty {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(fileContents{Servers: f.creds}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize credentials: %w", err)
	}
	if err := writePrivateFile(f.path, data); err != nil {
		return err
	}
	f.dirty = false
	return nil
}

// Path returns the location of the credentials file
func (f *CredentialFile) Path() string {
	return f.path
}

// writePrivateFile replaces path with data through a 0600 temp file
func writePrivateFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".credentials-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}
