// Package storage provides composable storage interfaces for the Tether
// tri-store memory pipeline.
//
// The layer is split into small, focused interfaces that map onto the three
// independent stores the pipeline orchestrates: the TTL-bounded session tier,
// the recent-turn vector index, and the persistent archive — plus the identity
// map and the durable escalation ticket store. Each can be implemented
// independently and swapped per deployment.
package storage

import (
	"context"
	"time"

	"github.com/meridian-labs/tether/pkg/types"
)

// SessionStore is the key-value session tier of the short-term store.
// Records expire automatically after their TTL; the store never deletes
// them explicitly.
type SessionStore interface {
	// Get retrieves the session record for sessionID.
	// Returns ErrNotFound when the record is absent or has expired.
	// Reads never refresh the TTL; only Put does.
	Get(ctx context.Context, sessionID string) (*types.ShortTermRecord, error)

	// Put stores the record and resets its expiry to now+ttl.
	Put(ctx context.Context, record *types.ShortTermRecord, ttl time.Duration) error

	// Close releases any resources held by the store.
	Close() error
}

// VectorIndex is the nearest-neighbor index over recent turns.
// One point per session id: a later Upsert with the same session id
// supersedes the earlier point rather than merging with it.
type VectorIndex interface {
	// Upsert stores the point, replacing any existing point for its session id.
	Upsert(ctx context.Context, point *types.ShortTermVectorPoint) error

	// Query returns up to topK points nearest to vector by cosine distance,
	// most similar first. An empty index yields an empty slice, not an error.
	Query(ctx context.Context, vector []float32, topK int) ([]types.ShortTermVectorPoint, error)

	// Close releases any resources held by the index.
	Close() error
}

// ArchiveStore is the persistent long-term memory tier.
// It is insert-only: points are never updated in place and never expire.
type ArchiveStore interface {
	// Insert stores a new memory point. Points are keyed by
	// (pseudo_user_id, last_seen); inserting the same pair twice is a no-op.
	Insert(ctx context.Context, point *types.LongTermMemoryPoint) error

	// Query returns up to topK points nearest to vector by cosine distance,
	// most similar first.
	Query(ctx context.Context, vector []float32, topK int) ([]types.LongTermMemoryPoint, error)

	// Close releases any resources held by the store.
	Close() error
}

// IdentityMapStore persists pseudo-identity entries and their channel links.
type IdentityMapStore interface {
	// FindByPseudoID retrieves the entry for a pseudo user id.
	// Returns ErrNotFound when no entry exists.
	FindByPseudoID(ctx context.Context, pseudoUserID string) (*types.IdentityMapEntry, error)

	// FindByLink retrieves the entry containing a link for
	// (channel, hashedUserID). Returns ErrNotFound when no entry links it.
	FindByLink(ctx context.Context, channel types.Channel, hashedUserID string) (*types.IdentityMapEntry, error)

	// Insert creates a new entry. The pseudo user id must not already exist.
	Insert(ctx context.Context, entry *types.IdentityMapEntry) error

	// Update replaces the linked sessions and updated_at of an existing entry.
	// Returns ErrNotFound when the entry does not exist.
	Update(ctx context.Context, entry *types.IdentityMapEntry) error

	// Close releases any resources held by the store.
	Close() error
}

// TicketStore durably persists escalation tickets.
type TicketStore interface {
	// Create stores a new ticket. Failure must propagate to the caller:
	// a silently dropped escalation defeats the point of escalating.
	Create(ctx context.Context, ticket *types.EscalationTicket) error

	// Get retrieves a ticket by id. Returns ErrNotFound when absent.
	Get(ctx context.Context, id string) (*types.EscalationTicket, error)

	// List returns tickets filtered by status, newest first.
	// An empty status returns all tickets.
	List(ctx context.Context, status types.TicketStatus) ([]types.EscalationTicket, error)

	// UpdateStatus transitions a ticket to a new status. The transition must
	// be forward-only per types.IsValidTicketTransition.
	UpdateStatus(ctx context.Context, id string, status types.TicketStatus) error

	// Close releases any resources held by the store.
	Close() error
}
