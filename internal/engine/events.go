package engine

import (
	"time"

	"github.com/meridian-labs/tether/pkg/types"
)

// Event types published by the pipeline.
const (
	EventHighUrgency       = "high_urgency"
	EventEscalationCreated = "escalation_created"
)

// Event is a pipeline notification for operator-facing feeds.
type Event struct {
	Type         string                  `json:"type"`
	SessionID    string                  `json:"session_id"`
	PseudoUserID string                  `json:"pseudo_user_id"`
	Urgency      types.UrgencyLevel      `json:"urgency,omitempty"`
	Ticket       *types.EscalationTicket `json:"ticket,omitempty"`
	Timestamp    time.Time               `json:"timestamp"`
}

// EventSink receives pipeline events. Publish must not block the pipeline;
// implementations drop rather than stall.
type EventSink interface {
	Publish(event Event)
}

// NopSink discards all events.
type NopSink struct{}

// Publish implements EventSink.
func (NopSink) Publish(Event) {}
