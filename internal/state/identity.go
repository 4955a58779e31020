package state

import (
	"context"
	"sync"

	"github.com/opconsole/internal/logger"
	"github.com/opconsole/internal/model"
	"github.com/opconsole/internal/storage"
)

// IdentityStore holds the authenticated operator and bearer token for one
// application session. The token is mirrored into the secrets store so it
// survives agent restarts; everything else is transient.
type IdentityStore struct {
	mu      sync.RWMutex
	user    *model.Operator
	token   string
	loading bool

	secrets storage.SecretsStore
}

func NewIdentityStore(secrets storage.SecretsStore) *IdentityStore {
	return &IdentityStore{secrets: secrets}
}

// Restore loads a previously stored token, if any.
func (s *IdentityStore) Restore(ctx context.Context) {
	token, err := s.secrets.GetToken(ctx)
	if err != nil {
		logger.Errorf("identity: restore token: %v", err)
		return
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *IdentityStore) SetUser(u *model.Operator) {
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
}

func (s *IdentityStore) User() *model.Operator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// SetToken stores the token and persists it to secure storage.
func (s *IdentityStore) SetToken(ctx context.Context, token string) error {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	if err := s.secrets.SetToken(ctx, token); err != nil {
		return err
	}
	return nil
}

func (s *IdentityStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *IdentityStore) SetLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

func (s *IdentityStore) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Logout clears the persisted token and resets identity to empty. Storage
// failures are logged, not returned: the in-memory session always ends.
func (s *IdentityStore) Logout(ctx context.Context) {
	if err := s.secrets.DeleteToken(ctx); err != nil {
		logger.Errorf("identity: delete token: %v", err)
	}
	s.mu.Lock()
	s.user = nil
	s.token = ""
	s.loading = false
	s.mu.Unlock()
}
