package sandbox

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyStore_ConcurrentDuplicatesApplyOnce(t *testing.T) {
	s := NewIdempotencyStore(time.Hour)
	fp := Fingerprint(http.MethodPost, "/wallets/w1/withdraw", []byte(`{"amount":"10"}`))

	var (
		mu      sync.Mutex
		applied int
		wg      sync.WaitGroup
	)
	replays := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, body, replayed, err := s.Do("user-1", "key-1", fp, func() (int, []byte) {
				mu.Lock()
				applied++
				mu.Unlock()
				return http.StatusCreated, []byte(`{"ok":true}`)
			})
			assert.NoError(t, err)
			assert.Equal(t, http.StatusCreated, status)
			assert.JSONEq(t, `{"ok":true}`, string(body))
			replays <- replayed
		}()
	}
	wg.Wait()
	close(replays)

	assert.Equal(t, 1, applied)
	fresh := 0
	for r := range replays {
		if !r {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)
}

func TestIdempotencyStore_ScopedPerUser(t *testing.T) {
	s := NewIdempotencyStore(time.Hour)
	apply := func() (int, []byte) { return http.StatusCreated, nil }

	_, _, replayed, err := s.Do("user-1", "key", "fp", apply)
	require.NoError(t, err)
	assert.False(t, replayed)

	_, _, replayed, err = s.Do("user-2", "key", "other", apply)
	require.NoError(t, err)
	assert.False(t, replayed)

	_, _, _, err = s.Do("user-1", "key", "other", apply)
	assert.ErrorIs(t, err, ErrIdempotencyConflict)
	assert.Equal(t, 2, s.Len())
}

func TestIdempotencyStore_FailuresAreNotStored(t *testing.T) {
	s := NewIdempotencyStore(time.Hour)

	status, _, _, err := s.Do("user-1", "key", "fp", func() (int, []byte) { return http.StatusUnprocessableEntity, nil })
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Zero(t, s.Len())

	status, _, replayed, err := s.Do("user-1", "key", "fp", func() (int, []byte) { return http.StatusCreated, nil })
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, status)
	assert.False(t, replayed)
}

func TestIdempotencyStore_Expiry(t *testing.T) {
	s := NewIdempotencyStore(time.Millisecond)
	calls := 0
	apply := func() (int, []byte) { calls++; return http.StatusCreated, nil }

	_, _, _, err := s.Do("user-1", "key", "fp", apply)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	_, _, replayed, err := s.Do("user-1", "key", "fp", apply)
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, 2, calls)
}
