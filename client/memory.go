package client

import "sync"

// MemoryCredentialStore keeps credentials for the lifetime of the process
type MemoryCredentialStore struct {
	mu    sync.RWMutex
	creds map[string]*ServerCredential
}

// NewMemoryCredentialStore creates an empty in-memory store
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{creds: map[string]*ServerCredential{}}
}

func (m *MemoryCredentialStore) GetCredential(serverURL string) (*ServerCredential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creds[serverURL], nil
}

func (m *MemoryCredentialStore) SetCredential(serverURL string, cred *ServerCredential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[serverURL] = cred
	return nil
}

func (m *MemoryCredentialStore) RemoveCredential(serverURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.creds, serverURL)
	return nil
}

func (m *MemoryCredentialStore) Save() error { return nil }
