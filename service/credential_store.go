package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/layer-3/mercuria/core"
	"github.com/layer-3/mercuria/ports"
)

// CredentialStore owns the access credential in memory and the refresh
// credential in a persistent store. The access credential is never persisted.
type CredentialStore struct {
	writeMu    sync.Mutex
	access     atomic.Pointer[string]
	generation atomic.Uint64

	persistent ports.CredentialStore
	key        string
	ttl        time.Duration
}

// NewCredentialStore creates a store writing the refresh credential under key
func NewCredentialStore(persistent ports.CredentialStore, key string, ttl time.Duration) *CredentialStore {
	s := &CredentialStore{
		persistent: persistent,
		key:        key,
		ttl:        ttl,
	}
	empty := ""
	s.access.Store(&empty)
	return s
}

// GetAccess returns the current access credential or ""
func (s *CredentialStore) GetAccess() string {
	return *s.access.Load()
}

// SetAccess replaces the access credential
func (s *CredentialStore) SetAccess(token string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.setAccess(token)
}

func (s *CredentialStore) setAccess(token string) {
	s.access.Store(&token)
	s.generation.Add(1)
}

// GetRefresh reads the persisted refresh credential
func (s *CredentialStore) GetRefresh(ctx context.Context) (string, error) {
	token, err := s.persistent.Get(ctx, s.key)
	if err != nil {
		return "", err
	}
	return token, nil
}

// SetRefresh persists the refresh credential with an explicit validity window
func (s *CredentialStore) SetRefresh(ctx context.Context, token string, ttl time.Duration) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.persistent.Set(ctx, s.key, token, ttl); err != nil {
		return fmt.Errorf("failed to persist refresh credential: %w", err)
	}
	s.generation.Add(1)
	return nil
}

// SetSession stores both credentials. The access credential is only replaced
// once the refresh credential was persisted. An empty refresh keeps the
// current one.
func (s *CredentialStore) SetSession(ctx context.Context, access, refresh string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.setSession(ctx, access, refresh)
}

func (s *CredentialStore) setSession(ctx context.Context, access, refresh string) error {
	if refresh != "" {
		if err := s.persistent.Set(ctx, s.key, refresh, s.ttl); err != nil {
			return fmt.Errorf("failed to persist refresh credential: %w", err)
		}
	}
	s.setAccess(access)
	return nil
}

// CommitIf stores the session only when nothing was written since gen was
// read from Generation. It reports whether the commit happened.
func (s *CredentialStore) CommitIf(ctx context.Context, gen uint64, access, refresh string) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.generation.Load() != gen {
		return false, nil
	}
	if err := s.setSession(ctx, access, refresh); err != nil {
		return false, err
	}
	return true, nil
}

// Clear wipes both credentials. The access credential is dropped even when
// the persistent delete fails.
func (s *CredentialStore) Clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.setAccess("")
	if err := s.persistent.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("failed to delete refresh credential: %w", err)
	}
	return nil
}

// HasRefresh reports whether a refresh credential is stored
func (s *CredentialStore) HasRefresh(ctx context.Context) bool {
	_, err := s.persistent.Get(ctx, s.key)
	return err == nil
}

// Generation is bumped by every write
func (s *CredentialStore) Generation() uint64 {
	return s.generation.Load()
}

func notFound(err error) bool {
	return errors.Is(err, core.ErrCredentialNotFound)
}
