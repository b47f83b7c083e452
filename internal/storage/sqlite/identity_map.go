package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/meridian-labs/tether/internal/storage"
	"github.com/meridian-labs/tether/pkg/types"
)

// FindByPseudoID retrieves the identity entry for a pseudo user id.
func (s *IdentityMapStore) FindByPseudoID(ctx context.Context, pseudoUserID string) (*types.IdentityMapEntry, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT pseudo_user_id, linked_sessions, updated_at FROM identity_map WHERE pseudo_user_id = ?`,
		pseudoUserID,
	)
	return scanIdentityEntry(row)
}

// FindByLink retrieves the entry that links (channel, hashedUserID), using a
// json_each element match over the linked_sessions array.
func (s *IdentityMapStore) FindByLink(ctx context.Context, channel types.Channel, hashedUserID string) (*types.IdentityMapEntry, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT im.pseudo_user_id, im.linked_sessions, im.updated_at
		FROM identity_map im, json_each(im.linked_sessions) link
		WHERE json_extract(link.value, '$.channel') = ?
		  AND json_extract(link.value, '$.hashed_channel_user_id') = ?
		LIMIT 1
	`, string(channel), hashedUserID)
	return scanIdentityEntry(row)
}

// Insert creates a new identity entry.
func (s *IdentityMapStore) Insert(ctx context.Context, entry *types.IdentityMapEntry) error {
	linksJSON, err := json.Marshal(entry.LinkedSessions)
	if err != nil {
		return fmt.Errorf("sqlite: marshal linked sessions: %w", err)
	}
	_, err = s.store.db.ExecContext(ctx,
		`INSERT INTO identity_map (pseudo_user_id, linked_sessions, updated_at) VALUES (?, ?, ?)`,
		entry.PseudoUserID, string(linksJSON), entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert identity %s: %w", entry.PseudoUserID, err)
	}
	return nil
}

// Update replaces an existing entry's linked sessions.
func (s *IdentityMapStore) Update(ctx context.Context, entry *types.IdentityMapEntry) error {
	linksJSON, err := json.Marshal(entry.LinkedSessions)
	if err != nil {
		return fmt.Errorf("sqlite: marshal linked sessions: %w", err)
	}
	res, err := s.store.db.ExecContext(ctx,
		`UPDATE identity_map SET linked_sessions = ?, updated_at = ? WHERE pseudo_user_id = ?`,
		string(linksJSON), entry.UpdatedAt, entry.PseudoUserID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update identity %s: %w", entry.PseudoUserID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanIdentityEntry reads one identity_map row.
func scanIdentityEntry(row *sql.Row) (*types.IdentityMapEntry, error) {
	var entry types.IdentityMapEntry
	var linksJSON string
	err := row.Scan(&entry.PseudoUserID, &linksJSON, &entry.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan identity entry: %w", err)
	}
	if err := json.Unmarshal([]byte(linksJSON), &entry.LinkedSessions); err != nil {
		return nil, fmt.Errorf("sqlite: unmarshal linked sessions: %w", err)
	}
	return &entry, nil
}
