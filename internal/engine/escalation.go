package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-labs/tether/internal/storage"
	"github.com/meridian-labs/tether/pkg/types"
)

// Escalation trigger thresholds.
const (
	escalateCriticality = 0.7
	escalateOccurrences = 3
)

// EscalationManager decides when a problem needs a human and creates the
// durable ticket. Ticket creation failures propagate: a silently dropped
// escalation defeats the point of escalating.
type EscalationManager struct {
	tickets storage.TicketStore
	logger  *slog.Logger
	now     func() time.Time
}

// NewEscalationManager creates a manager over the given ticket store.
func NewEscalationManager(tickets storage.TicketStore, logger *slog.Logger) *EscalationManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &EscalationManager{
		tickets: tickets,
		logger:  logger,
		now:     time.Now,
	}
}

// ShouldEscalate reports whether the request needs a human: the problem is
// not agent-solvable, its criticality or occurrence count crossed the
// thresholds, or the text explicitly asks for a manager.
func (m *EscalationManager) ShouldEscalate(problem *types.ExtractedProblem, text string) bool {
	if humanRequiredPattern.MatchString(text) {
		return true
	}
	if problem == nil {
		return false
	}
	return !problem.CanAgentSolve ||
		problem.Criticality >= escalateCriticality ||
		problem.Occurrences >= escalateOccurrences
}

// Escalate creates a pending ticket when the request qualifies, returning nil
// when no escalation is needed. The create is synchronous and its failure is
// returned to the caller.
func (m *EscalationManager) Escalate(ctx context.Context, sessionID, pseudoUserID, text string,
	problem *types.ExtractedProblem, urgency types.UrgencyScore) (*types.EscalationTicket, error) {

	if !m.ShouldEscalate(problem, text) {
		return nil, nil
	}

	category := types.CategoryOther
	reason := "customer asked for a human"
	criticality := urgency.Score
	if problem != nil {
		category = problem.Category
		reason = problem.Description
		criticality = problem.Criticality
	}

	now := m.now().UTC()
	ticket := &types.EscalationTicket{
		ID:           uuid.NewString(),
		PseudoUserID: pseudoUserID,
		SessionID:    sessionID,
		Category:     category,
		Priority:     ticketPriority(urgency.Level, criticality),
		Reason:       reason,
		Status:       types.TicketPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.tickets.Create(ctx, ticket); err != nil {
		return nil, fmt.Errorf("engine: create escalation ticket: %w", err)
	}

	m.logger.Info("escalation ticket created",
		"ticket_id", ticket.ID,
		"session_id", sessionID,
		"category", category,
		"priority", ticket.Priority)
	return ticket, nil
}

// ListPending returns pending tickets. Listing is a read: failures degrade to
// an empty list rather than failing the caller.
func (m *EscalationManager) ListPending(ctx context.Context) []types.EscalationTicket {
	tickets, err := m.tickets.List(ctx, types.TicketPending)
	if err != nil {
		m.logger.Warn("listing pending tickets failed, degrading to empty", "error", err)
		return nil
	}
	return tickets
}

// ticketPriority is the fixed urgency-to-priority table.
func ticketPriority(level types.UrgencyLevel, criticality float64) types.TicketPriority {
	switch {
	case level == types.UrgencyCritical || criticality >= 0.9:
		return types.PriorityUrgent
	case level == types.UrgencyHigh || criticality >= 0.7:
		return types.PriorityHigh
	case level == types.UrgencyMedium || criticality >= 0.5:
		return types.PriorityMedium
	default:
		return types.PriorityLow
	}
}
