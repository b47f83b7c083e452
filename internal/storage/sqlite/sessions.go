package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/meridian-labs/tether/internal/storage"
	"github.com/meridian-labs/tether/pkg/types"
)

// Get retrieves the session record for sessionID. A row whose expiry has
// passed is reported as absent; the row itself is left for the next Put to
// overwrite (the store never deletes on read, so retrieval stays idempotent).
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*types.ShortTermRecord, error) {
	var (
		recordJSON string
		expiresAt  time.Time
	)
	err := s.store.db.QueryRowContext(ctx,
		`SELECT record, expires_at FROM sessions WHERE session_id = ?`, sessionID,
	).Scan(&recordJSON, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get session %s: %w", sessionID, err)
	}

	if !expiresAt.After(s.store.now()) {
		return nil, storage.ErrNotFound
	}

	var record types.ShortTermRecord
	if err := json.Unmarshal([]byte(recordJSON), &record); err != nil {
		return nil, fmt.Errorf("sqlite: unmarshal session %s: %w", sessionID, err)
	}
	return &record, nil
}

// Put upserts the session record and slides its expiry to now+ttl.
func (s *SessionStore) Put(ctx context.Context, record *types.ShortTermRecord, ttl time.Duration) error {
	if record == nil || record.SessionID == "" {
		return fmt.Errorf("sqlite: session record requires a session id")
	}

	recordJSON, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("sqlite: marshal session %s: %w", record.SessionID, err)
	}

	now := s.store.now()
	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, record, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			record = excluded.record,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, record.SessionID, string(recordJSON), now.Add(ttl), now)
	if err != nil {
		return fmt.Errorf("sqlite: put session %s: %w", record.SessionID, err)
	}
	return nil
}

// PurgeExpired removes rows whose expiry has passed. It is housekeeping, not
// correctness: Get already treats expired rows as absent.
func (s *SessionStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.store.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, s.store.now())
	if err != nil {
		return 0, fmt.Errorf("sqlite: purge expired sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
