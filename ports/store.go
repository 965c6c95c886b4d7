package ports

import (
	"context"
	"time"
)

// CredentialStore persists the refresh credential across process restarts.
// Get returns core.ErrCredentialNotFound when key is absent or expired.
type CredentialStore interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}
