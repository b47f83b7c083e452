// Package sqlite implements the durable single-node backends for the session
// tier, the identity map, and the escalation ticket store on one SQLite
// database file.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/meridian-labs/tether/internal/storage"
)

// Compile-time interface checks.
var (
	_ storage.SessionStore     = (*SessionStore)(nil)
	_ storage.IdentityMapStore = (*IdentityMapStore)(nil)
	_ storage.TicketStore      = (*TicketStore)(nil)
)

// Schema is the embedded bootstrap schema. All tables use IF NOT EXISTS so
// opening an existing database is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	record     TEXT NOT NULL,
	expires_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);

CREATE TABLE IF NOT EXISTS identity_map (
	pseudo_user_id  TEXT PRIMARY KEY,
	linked_sessions TEXT NOT NULL,
	updated_at      TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS tickets (
	id             TEXT PRIMARY KEY,
	pseudo_user_id TEXT NOT NULL,
	session_id     TEXT NOT NULL,
	category       TEXT NOT NULL,
	priority       TEXT NOT NULL,
	reason         TEXT NOT NULL,
	status         TEXT NOT NULL,
	created_at     TIMESTAMP NOT NULL,
	updated_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status, created_at);
`

// Store owns the database connection. The per-concern stores are views over
// it: each implements one storage interface against the shared connection.
type Store struct {
	db *sql.DB

	// now is swappable for expiry tests.
	now func() time.Time
}

// SessionStore is the sessions view of the store.
type SessionStore struct{ store *Store }

// IdentityMapStore is the identity-map view of the store.
type IdentityMapStore struct{ store *Store }

// TicketStore is the escalation-ticket view of the store.
type TicketStore struct{ store *Store }

// Sessions returns the session-tier view.
func (s *Store) Sessions() *SessionStore { return &SessionStore{store: s} }

// IdentityMap returns the identity-map view.
func (s *Store) IdentityMap() *IdentityMapStore { return &IdentityMapStore{store: s} }

// Tickets returns the ticket view.
func (s *Store) Tickets() *TicketStore { return &TicketStore{store: s} }

// New opens (or creates) the database at dsn, enables WAL mode, and applies
// the bootstrap schema. Use ":memory:" for an ephemeral database.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", dsn, err)
	}

	// modernc/sqlite serializes writes itself; a single connection avoids
	// SQLITE_BUSY under concurrent pipeline invocations.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// DB exposes the underlying connection for maintenance tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Close on a view closes the shared database; callers owning the parent
// Store should close that instead.
func (s *SessionStore) Close() error { return s.store.Close() }

// Close closes the shared database.
func (s *IdentityMapStore) Close() error { return s.store.Close() }

// Close closes the shared database.
func (s *TicketStore) Close() error { return s.store.Close() }
