package sandbox

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// IdempotencyRecord is the stored outcome of a keyed write
type IdempotencyRecord struct {
	Key            string
	RequestHash    string
	ResponseStatus int
	ResponseBody   []byte
	CreatedAt      time.Time
}

// IdempotencyStore replays stored outcomes of keyed writes. Records expire
// after ttl.
type IdempotencyStore struct {
	mu       sync.Mutex
	inFlight sync.Mutex
	records  map[string]IdempotencyRecord
	ttl      time.Duration
}

// NewIdempotencyStore creates an in-memory idempotency store
func NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		records: map[string]IdempotencyRecord{},
		ttl:     ttl,
	}
}

// Fingerprint hashes the parts of a request that must match on replay
func Fingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Do runs apply at most once per scope and key. A repeated key with the same
// fingerprint returns the stored outcome; a different fingerprint fails with
// ErrIdempotencyConflict. Only 2xx outcomes are stored so that a rejected
// write can be corrected and sent again.
func (s *IdempotencyStore) Do(scope, key, fingerprint string, apply func() (int, []byte)) (int, []byte, bool, error) {
	s.inFlight.Lock()
	defer s.inFlight.Unlock()

	id := scope + "/" + key
	if rec, ok := s.lookup(id); ok {
		if rec.RequestHash != fingerprint {
			return 0, nil, false, ErrIdempotencyConflict
		}
		return rec.ResponseStatus, rec.ResponseBody, true, nil
	}

	status, body := apply()
	if status >= 200 && status < 300 {
		s.mu.Lock()
		s.records[id] = IdempotencyRecord{
			Key:            key,
			RequestHash:    fingerprint,
			ResponseStatus: status,
			ResponseBody:   body,
			CreatedAt:      time.Now(),
		}
		s.mu.Unlock()
	}
	return status, body, false, nil
}

func (s *IdempotencyStore) lookup(id string) (IdempotencyRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return rec, false
	}
	if time.Since(rec.CreatedAt) > s.ttl {
		delete(s.records, id)
		return rec, false
	}
	return rec, true
}

// Len returns the number of stored records
func (s *IdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
