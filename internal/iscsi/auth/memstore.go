package auth

import (
	"context"
	"sync"
)

// MemCredentialStore is an in-memory CredentialStore, used by tests and by
// targets configured without a durable credential backend.
type MemCredentialStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewMemCredentialStore returns an empty in-memory credential store.
func NewMemCredentialStore() *MemCredentialStore {
	return &MemCredentialStore{secrets: make(map[string]string)}
}

func (s *MemCredentialStore) Lookup(ctx context.Context, initiatorName string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	secret, found := s.secrets[initiatorName]
	return secret, found, nil
}

func (s *MemCredentialStore) SetSecret(ctx context.Context, initiatorName, secret string) error {
	if err := validateSecret(secret); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[initiatorName] = secret
	return nil
}

func (s *MemCredentialStore) DeleteSecret(ctx context.Context, initiatorName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.secrets, initiatorName)
	return nil
}
