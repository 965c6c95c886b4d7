package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/layer-3/mercuria/adapters/store"
	"github.com/layer-3/mercuria/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenStore struct{}

func (brokenStore) Set(context.Context, string, string, time.Duration) error {
	return errors.New("disk full")
}
func (brokenStore) Get(context.Context, string) (string, error) { return "", core.ErrCredentialNotFound }
func (brokenStore) Delete(context.Context, string) error      { return errors.New("disk full") }

func TestCredentialStore_SetSession(t *testing.T) {
	ctx := context.Background()
	persistent := store.NewMemoryStore()
	s := NewCredentialStore(persistent, refreshKey, time.Hour)

	assert.Empty(t, s.GetAccess())
	assert.False(t, s.HasRefresh(ctx))

	require.NoError(t, s.SetSession(ctx, "access-1", "refresh-1"))
	assert.Equal(t, "access-1", s.GetAccess())
	assert.True(t, s.HasRefresh(ctx))

	got, err := persistent.Get(ctx, refreshKey)
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", got)

	// an omitted refresh credential keeps the stored one
	require.NoError(t, s.SetSession(ctx, "access-2", ""))
	got, err = s.GetRefresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", got)
	assert.Equal(t, "access-2", s.GetAccess())
}

func TestCredentialStore_PersistFailureKeepsAccess(t *testing.T) {
	ctx := context.Background()
	s := NewCredentialStore(brokenStore{}, refreshKey, time.Hour)
	s.SetAccess("access-1")

	err := s.SetSession(ctx, "access-2", "refresh-2")
	require.Error(t, err)
	assert.Equal(t, "access-1", s.GetAccess())
}

func TestCredentialStore_ClearWipesBoth(t *testing.T) {
	ctx := context.Background()
	s := NewCredentialStore(store.NewMemoryStore(), refreshKey, time.Hour)
	require.NoError(t, s.SetSession(ctx, "access-1", "refresh-1"))

	require.NoError(t, s.Clear(ctx))
	assert.Empty(t, s.GetAccess())
	assert.False(t, s.HasRefresh(ctx))

	_, err := s.GetRefresh(ctx)
	assert.ErrorIs(t, err, core.ErrCredentialNotFound)
}

func TestCredentialStore_ClearDropsAccessWhenDeleteFails(t *testing.T) {
	s := NewCredentialStore(brokenStore{}, refreshKey, time.Hour)
	s.SetAccess("access-1")

	assert.Error(t, s.Clear(context.Background()))
	assert.Empty(t, s.GetAccess())
}

func TestCredentialStore_CommitIf(t *testing.T) {
	ctx := context.Background()
	s := NewCredentialStore(store.NewMemoryStore(), refreshKey, time.Hour)
	require.NoError(t, s.SetSession(ctx, "access-1", "refresh-1"))

	gen := s.Generation()
	ok, err := s.CommitIf(ctx, gen, "access-2", "refresh-2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "access-2", s.GetAccess())

	stale := s.Generation()
	require.NoError(t, s.Clear(ctx))

	ok, err = s.CommitIf(ctx, stale, "access-3", "refresh-3")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, s.GetAccess())
	assert.False(t, s.HasRefresh(ctx))
}
