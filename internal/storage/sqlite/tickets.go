package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/meridian-labs/tether/internal/storage"
	"github.com/meridian-labs/tether/pkg/types"
)

// Create durably stores a new escalation ticket.
func (s *TicketStore) Create(ctx context.Context, ticket *types.EscalationTicket) error {
	if ticket.ID == "" {
		return fmt.Errorf("sqlite: ticket requires an id")
	}
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO tickets (id, pseudo_user_id, session_id, category, priority, reason, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ticket.ID, ticket.PseudoUserID, ticket.SessionID, string(ticket.Category),
		string(ticket.Priority), ticket.Reason, string(ticket.Status),
		ticket.CreatedAt, ticket.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: create ticket %s: %w", ticket.ID, err)
	}
	return nil
}

// Get retrieves a ticket by id.
func (s *TicketStore) Get(ctx context.Context, id string) (*types.EscalationTicket, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, pseudo_user_id, session_id, category, priority, reason, status, created_at, updated_at
		FROM tickets WHERE id = ?
	`, id)

	var t types.EscalationTicket
	err := row.Scan(&t.ID, &t.PseudoUserID, &t.SessionID, &t.Category,
		&t.Priority, &t.Reason, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get ticket %s: %w", id, err)
	}
	return &t, nil
}

// List returns tickets, newest first, optionally filtered by status.
func (s *TicketStore) List(ctx context.Context, status types.TicketStatus) ([]types.EscalationTicket, error) {
	query := `
		SELECT id, pseudo_user_id, session_id, category, priority, reason, status, created_at, updated_at
		FROM tickets
	`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list tickets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tickets []types.EscalationTicket
	for rows.Next() {
		var t types.EscalationTicket
		if err := rows.Scan(&t.ID, &t.PseudoUserID, &t.SessionID, &t.Category,
			&t.Priority, &t.Reason, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list tickets rows: %w", err)
	}
	return tickets, nil
}

// UpdateStatus moves a ticket to a new status after validating the
// transition is forward-only.
func (s *TicketStore) UpdateStatus(ctx context.Context, id string, status types.TicketStatus) error {
	if !types.IsValidTicketStatus(status) {
		return fmt.Errorf("sqlite: unknown ticket status %q: %w", status, storage.ErrInvalidTransition)
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !types.IsValidTicketTransition(current.Status, status) {
		return fmt.Errorf("sqlite: ticket %s cannot move %s -> %s: %w",
			id, current.Status, status, storage.ErrInvalidTransition)
	}

	_, err = s.store.db.ExecContext(ctx,
		`UPDATE tickets SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), s.store.now(), id)
	if err != nil {
		return fmt.Errorf("sqlite: update ticket %s: %w", id, err)
	}
	return nil
}
