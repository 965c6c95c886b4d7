package store

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/layer-3/mercuria/core"
	"github.com/layer-3/mercuria/ports"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "mercuria_rt"

func setupRedisStore(t *testing.T) (ports.CredentialStore, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, "test"), mr, client
}

func setupCookieStore(t *testing.T, opts CookieOptions) (*CookieStore, http.CookieJar) {
	t.Helper()
	jar, err := NewCookieJar()
	require.NoError(t, err)
	s, err := NewCookieStore(jar, "https://app.mercuria.test", opts)
	require.NoError(t, err)
	return s, jar
}

// Every implementation must satisfy the same contract.
func TestCredentialStores_Contract(t *testing.T) {
	stores := map[string]func(t *testing.T) ports.CredentialStore{
		"memory": func(t *testing.T) ports.CredentialStore { return NewMemoryStore() },
		"redis": func(t *testing.T) ports.CredentialStore {
			s, _, _ := setupRedisStore(t)
			return s
		},
		"cookie": func(t *testing.T) ports.CredentialStore {
			s, _ := setupCookieStore(t, CookieOptions{HTTPOnly: true})
			return s
		},
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			_, err := s.Get(ctx, testKey)
			assert.ErrorIs(t, err, core.ErrCredentialNotFound)

			require.NoError(t, s.Set(ctx, testKey, "rt-1", 7*24*time.Hour))
			got, err := s.Get(ctx, testKey)
			require.NoError(t, err)
			assert.Equal(t, "rt-1", got)

			require.NoError(t, s.Set(ctx, testKey, "rt-2", 7*24*time.Hour))
			got, err = s.Get(ctx, testKey)
			require.NoError(t, err)
			assert.Equal(t, "rt-2", got)

			require.NoError(t, s.Delete(ctx, testKey))
			_, err = s.Get(ctx, testKey)
			assert.ErrorIs(t, err, core.ErrCredentialNotFound)

			// deleting twice is harmless
			assert.NoError(t, s.Delete(ctx, testKey))
		})
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newMemoryStore(func() time.Time { return now })

	require.NoError(t, s.Set(ctx, testKey, "rt", time.Hour))

	now = now.Add(59 * time.Minute)
	got, err := s.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, "rt", got)

	now = now.Add(time.Minute)
	_, err = s.Get(ctx, testKey)
	assert.ErrorIs(t, err, core.ErrCredentialNotFound)
	assert.Empty(t, s.entries)
}

func TestRedisStore_ExpiryAndScope(t *testing.T) {
	ctx := context.Background()
	s, mr, client := setupRedisStore(t)

	require.NoError(t, s.Set(ctx, testKey, "rt", 7*24*time.Hour))
	assert.Equal(t, 7*24*time.Hour, mr.TTL("mercuria:test:"+testKey))

	// other keys are never touched
	require.NoError(t, client.Set(ctx, "unrelated", "v", 0).Err())
	require.NoError(t, s.Delete(ctx, testKey))
	assert.True(t, mr.Exists("unrelated"))

	require.NoError(t, s.Set(ctx, testKey, "rt", time.Hour))
	mr.FastForward(time.Hour + time.Second)
	_, err := s.Get(ctx, testKey)
	assert.ErrorIs(t, err, core.ErrCredentialNotFound)
}

func TestRedisStore_ConnectionFailure(t *testing.T) {
	ctx := context.Background()
	s, mr, _ := setupRedisStore(t)
	mr.Close()

	err := s.Set(ctx, testKey, "rt", time.Hour)
	require.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrCredentialNotFound)

	_, err = s.Get(ctx, testKey)
	require.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrCredentialNotFound)
}

func TestCookieStore_Attributes(t *testing.T) {
	ctx := context.Background()
	var written []*http.Cookie
	s, _ := setupCookieStore(t, CookieOptions{
		HTTPOnly: true,
		OnWrite:  func(c *http.Cookie) { written = append(written, c) },
	})

	require.NoError(t, s.Set(ctx, testKey, "a b/c", 7*24*time.Hour))
	require.NoError(t, s.Delete(ctx, testKey))

	require.Len(t, written, 2)

	set := written[0]
	assert.Equal(t, testKey, set.Name)
	assert.Equal(t, "/", set.Path)
	assert.True(t, set.Secure)
	assert.True(t, set.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, set.SameSite)
	assert.Equal(t, 7*24*60*60, set.MaxAge)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), set.Expires, time.Minute)
	assert.Contains(t, set.String(), "SameSite=Strict")

	del := written[1]
	assert.Equal(t, testKey, del.Name)
	assert.Equal(t, -1, del.MaxAge)
}

func TestCookieStore_RoundTripsEncodedValue(t *testing.T) {
	ctx := context.Background()
	s, _ := setupCookieStore(t, CookieOptions{})

	require.NoError(t, s.Set(ctx, testKey, "a b/c=d", time.Hour))
	got, err := s.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, "a b/c=d", got)
}

func TestCookieStore_RejectsPlainHTTPOrigin(t *testing.T) {
	jar, err := NewCookieJar()
	require.NoError(t, err)

	_, err = NewCookieStore(jar, "http://app.mercuria.test", CookieOptions{})
	assert.Error(t, err)
}
