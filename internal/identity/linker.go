package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/meridian-labs/tether/internal/storage"
	"github.com/meridian-labs/tether/pkg/types"
)

// Linker maintains the identity map: it attaches (channel, user) links to
// pseudo-identities and answers reverse lookups.
//
// The find-then-update sequence against the store is not atomic, so the
// linker serializes updates per pseudo user id through a keyed mutex.
// Concurrent requests resolving to the same identity therefore cannot
// interleave their read-modify-write cycles.
type Linker struct {
	store  storage.IdentityMapStore
	hasher Hasher
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLinker creates a linker over the given identity map store.
func NewLinker(store storage.IdentityMapStore, hasher Hasher, logger *slog.Logger) *Linker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Linker{
		store:  store,
		hasher: hasher,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// keyLock returns the mutex serializing updates for one pseudo user id.
// Locks are never removed; the map grows with the number of distinct
// identities seen by this process, which is bounded by active traffic.
func (l *Linker) keyLock(pseudoUserID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[pseudoUserID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[pseudoUserID] = lock
	}
	return lock
}

// LinkToMap upserts a (channel, raw user id) link into the entry for
// pseudoUserID. The raw identifier is hashed before it reaches the store.
//
// Invariants maintained here: an existing link's confidence only ever
// increases, a (channel, hashed id) pair lives in at most one entry, and an
// entry's pseudo user id never changes.
func (l *Linker) LinkToMap(ctx context.Context, pseudoUserID string, channel types.Channel, rawUserID string, confidence float64) error {
	if pseudoUserID == "" {
		return fmt.Errorf("identity: link requires a pseudo user id")
	}
	hashed := l.hasher.Hash(rawUserID)

	lock := l.keyLock(pseudoUserID)
	lock.Lock()
	defer lock.Unlock()

	entry, err := l.store.FindByPseudoID(ctx, pseudoUserID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		// Refuse to create a second home for a pair already linked elsewhere.
		if other, lookupErr := l.store.FindByLink(ctx, channel, hashed); lookupErr == nil && other.PseudoUserID != pseudoUserID {
			l.logger.Warn("channel link already owned by another identity, skipping",
				"channel", channel, "pseudo_user_id", pseudoUserID, "owner", other.PseudoUserID)
			return nil
		}
		entry = &types.IdentityMapEntry{
			PseudoUserID:   pseudoUserID,
			LinkedSessions: []types.LinkedSession{{Channel: channel, HashedUserID: hashed, Confidence: confidence}},
			UpdatedAt:      time.Now().UTC(),
		}
		if err := l.store.Insert(ctx, entry); err != nil {
			return fmt.Errorf("identity: insert entry for %s: %w", pseudoUserID, err)
		}
		return nil

	case err != nil:
		return fmt.Errorf("identity: find entry for %s: %w", pseudoUserID, err)
	}

	if idx := entry.FindLink(channel, hashed); idx >= 0 {
		// Confidence is monotonically non-decreasing.
		if confidence <= entry.LinkedSessions[idx].Confidence {
			return nil
		}
		entry.LinkedSessions[idx].Confidence = confidence
	} else {
		if other, lookupErr := l.store.FindByLink(ctx, channel, hashed); lookupErr == nil && other.PseudoUserID != pseudoUserID {
			l.logger.Warn("channel link already owned by another identity, skipping",
				"channel", channel, "pseudo_user_id", pseudoUserID, "owner", other.PseudoUserID)
			return nil
		}
		entry.LinkedSessions = append(entry.LinkedSessions, types.LinkedSession{
			Channel: channel, HashedUserID: hashed, Confidence: confidence,
		})
	}

	entry.UpdatedAt = time.Now().UTC()
	if err := l.store.Update(ctx, entry); err != nil {
		return fmt.Errorf("identity: update entry for %s: %w", pseudoUserID, err)
	}
	return nil
}

// FindPseudoUserID answers the reverse lookup: which pseudo-identity, if any,
// owns the (channel, raw user id) pair. Returns storage.ErrNotFound when the
// pair is unlinked.
func (l *Linker) FindPseudoUserID(ctx context.Context, channel types.Channel, rawUserID string) (string, error) {
	entry, err := l.store.FindByLink(ctx, channel, l.hasher.Hash(rawUserID))
	if err != nil {
		return "", err
	}
	return entry.PseudoUserID, nil
}
