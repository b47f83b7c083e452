// Package ristretto implements the session tier on an in-process cache with
// native TTL support. It suits single-node deployments where short-term
// context is allowed to die with the process; the sqlite backend covers the
// durable case.
package ristretto

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/meridian-labs/tether/internal/storage"
	"github.com/meridian-labs/tether/pkg/types"
)

var _ storage.SessionStore = (*SessionStore)(nil)

// SessionStore keeps short-term session records in a ristretto cache.
// Records expire automatically; the store never deletes them explicitly.
type SessionStore struct {
	cache *ristretto.Cache
}

// NewSessionStore creates a session store sized for maxSessions concurrent
// sessions.
func NewSessionStore(maxSessions int64) (*SessionStore, error) {
	if maxSessions <= 0 {
		maxSessions = 10_000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxSessions * 10,
		MaxCost:     maxSessions,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("ristretto: create cache: %w", err)
	}
	return &SessionStore{cache: cache}, nil
}

// Get retrieves the session record for sessionID. Expired or evicted records
// read as absent. The returned record is a copy; mutating it does not touch
// the cached value.
func (s *SessionStore) Get(_ context.Context, sessionID string) (*types.ShortTermRecord, error) {
	value, ok := s.cache.Get(sessionID)
	if !ok {
		return nil, storage.ErrNotFound
	}
	cached, ok := value.(*types.ShortTermRecord)
	if !ok {
		return nil, fmt.Errorf("ristretto: unexpected cached type %T for %s", value, sessionID)
	}
	return cloneRecord(cached)
}

// Put stores a copy of the record with the given TTL, sliding the expiry on
// every write. Put waits for the cache to admit the value so a subsequent Get
// in the same pipeline invocation observes it.
func (s *SessionStore) Put(_ context.Context, record *types.ShortTermRecord, ttl time.Duration) error {
	if record == nil || record.SessionID == "" {
		return fmt.Errorf("ristretto: session record requires a session id")
	}
	copied, err := cloneRecord(record)
	if err != nil {
		return err
	}
	if !s.cache.SetWithTTL(record.SessionID, copied, 1, ttl) {
		return fmt.Errorf("ristretto: cache rejected session %s", record.SessionID)
	}
	s.cache.Wait()
	return nil
}

// Close releases the cache.
func (s *SessionStore) Close() error {
	s.cache.Close()
	return nil
}

// cloneRecord deep-copies a record via JSON so callers and the cache never
// share message slices.
func cloneRecord(record *types.ShortTermRecord) (*types.ShortTermRecord, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("ristretto: clone session %s: %w", record.SessionID, err)
	}
	var out types.ShortTermRecord
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("ristretto: clone session %s: %w", record.SessionID, err)
	}
	return &out, nil
}
