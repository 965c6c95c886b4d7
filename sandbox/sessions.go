package sandbox

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/mercuria/adapters/tokenizer"
	"github.com/layer-3/mercuria/core"
	"github.com/layer-3/mercuria/ports"
)

// Sessions issues access tokens and single-use rotating refresh tokens
type Sessions struct {
	tokenizer *tokenizer.JWTTokenizer
	store     ports.CredentialStore

	accessTTL  time.Duration
	refreshTTL time.Duration

	mu      sync.Mutex
	live    map[string]time.Time // access token id -> expiry
	revoked map[string]time.Time
}

// NewSessions creates a session issuer. store keeps refresh records and
// invalidated refresh families.
func NewSessions(tk *tokenizer.JWTTokenizer, store ports.CredentialStore, accessTTL, refreshTTL time.Duration) *Sessions {
	return &Sessions{
		tokenizer:  tk,
		store:      store,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		live:       map[string]time.Time{},
		revoked:    map[string]time.Time{},
	}
}

func refreshKey(token string) string { return "refresh:" + token }
func familyKey(rid string) string    { return "invalidated:" + rid }

// Issue creates a new token pair for userID
func (s *Sessions) Issue(ctx context.Context, userID string) (string, string, error) {
	rid := uuid.NewString()

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", "", fmt.Errorf("failed to generate refresh token: %w", err)
	}
	refresh := hex.EncodeToString(secret)

	if err := s.store.Set(ctx, refreshKey(refresh), userID+":"+rid, s.refreshTTL); err != nil {
		return "", "", fmt.Errorf("failed to store refresh token: %w", err)
	}

	now := time.Now()
	claims := core.AccessClaims{
		Subject:   userID,
		ID:        uuid.NewString(),
		RefreshID: rid,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.accessTTL),
	}
	access, err := s.tokenizer.SessionToAccessToken(claims)
	if err != nil {
		return "", "", fmt.Errorf("failed to create access token: %w", err)
	}

	s.mu.Lock()
	s.live[claims.ID] = claims.ExpiresAt
	s.mu.Unlock()

	return access, refresh, nil
}

// Refresh rotates a refresh token. A token is accepted once.
func (s *Sessions) Refresh(ctx context.Context, refresh string) (string, string, string, error) {
	s.mu.Lock()
	userID, rid, err := s.consume(ctx, refresh)
	s.mu.Unlock()
	if err != nil {
		return "", "", "", err
	}

	// Access tokens of the rotated family stop working as well
	if err := s.store.Set(ctx, familyKey(rid), "1", s.refreshTTL); err != nil {
		return "", "", "", fmt.Errorf("failed to invalidate old token: %w", err)
	}

	access, newRefresh, err := s.Issue(ctx, userID)
	if err != nil {
		return "", "", "", err
	}
	return userID, access, newRefresh, nil
}

// Logout invalidates a refresh token and its access tokens. Unknown tokens
// are ignored.
func (s *Sessions) Logout(ctx context.Context, refresh string) error {
	s.mu.Lock()
	_, rid, err := s.consume(ctx, refresh)
	s.mu.Unlock()
	if errors.Is(err, ErrTokenInvalidated) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.store.Set(ctx, familyKey(rid), "1", s.refreshTTL); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}
	return nil
}

// consume reads and deletes a refresh record. Caller holds s.mu.
func (s *Sessions) consume(ctx context.Context, refresh string) (string, string, error) {
	value, err := s.store.Get(ctx, refreshKey(refresh))
	if errors.Is(err, core.ErrCredentialNotFound) {
		return "", "", ErrTokenInvalidated
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to read refresh token: %w", err)
	}
	if err := s.store.Delete(ctx, refreshKey(refresh)); err != nil {
		return "", "", fmt.Errorf("failed to delete refresh token: %w", err)
	}

	userID, rid, ok := strings.Cut(value, ":")
	if !ok {
		return "", "", ErrTokenInvalidated
	}
	return userID, rid, nil
}

// ValidateAccessToken verifies an access token and checks it was not revoked
func (s *Sessions) ValidateAccessToken(ctx context.Context, token string) (*core.AccessClaims, error) {
	claims, err := s.tokenizer.AccessTokenToSession(token)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	_, revoked := s.revoked[claims.ID]
	s.mu.Unlock()
	if revoked {
		return nil, ErrTokenRevoked
	}

	if claims.RefreshID != "" {
		_, err := s.store.Get(ctx, familyKey(claims.RefreshID))
		switch {
		case err == nil:
			return nil, ErrTokenInvalidated
		case !errors.Is(err, core.ErrCredentialNotFound):
			return nil, fmt.Errorf("failed to check token invalidation: %w", err)
		}
	}

	return claims, nil
}

// ExpireAccessTokens revokes every access token issued so far
func (s *Sessions) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, exp := range s.live {
		if exp.After(now) {
			s.revoked[id] = exp
		}
		delete(s.live, id)
	}
	for id, exp := range s.revoked {
		if !exp.After(now) {
			delete(s.revoked, id)
		}
	}
}
