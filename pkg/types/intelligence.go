package types

import "time"

// UrgencyLevel buckets an urgency score into operational tiers.
type UrgencyLevel string

// Urgency levels, lowest to highest.
const (
	UrgencyLow      UrgencyLevel = "low"
	UrgencyMedium   UrgencyLevel = "medium"
	UrgencyHigh     UrgencyLevel = "high"
	UrgencyCritical UrgencyLevel = "critical"
)

// urgencyRank orders levels for comparison.
var urgencyRank = map[UrgencyLevel]int{
	UrgencyLow:      0,
	UrgencyMedium:   1,
	UrgencyHigh:     2,
	UrgencyCritical: 3,
}

// AtLeast reports whether l is the same level as other or higher.
func (l UrgencyLevel) AtLeast(other UrgencyLevel) bool {
	return urgencyRank[l] >= urgencyRank[other]
}

// UrgencyScore is the estimator output: the combined score in [0,1], its
// level bucket, and the per-factor breakdown that produced it.
type UrgencyScore struct {
	Score   float64            `json:"score"`
	Level   UrgencyLevel       `json:"level"`
	Factors map[string]float64 `json:"factors"`
}

// ProblemCategory classifies an extracted problem.
type ProblemCategory string

// Problem categories. CategoryOther is the fallback when no keyword matches.
const (
	CategoryDelivery      ProblemCategory = "delivery"
	CategoryBilling       ProblemCategory = "billing"
	CategoryRefund        ProblemCategory = "refund"
	CategoryProductDefect ProblemCategory = "product_defect"
	CategoryAccountAccess ProblemCategory = "account_access"
	CategoryTechnical     ProblemCategory = "technical"
	CategoryOther         ProblemCategory = "other"
)

// ExtractedProblem is the per-request problem artifact. It has no persistence
// lifecycle of its own.
type ExtractedProblem struct {
	Category      ProblemCategory `json:"category"`
	Description   string          `json:"description"`
	Criticality   float64         `json:"criticality"`
	CanAgentSolve bool            `json:"can_agent_solve"`
	Occurrences   int             `json:"occurrences"`
}

// TicketStatus is the escalation ticket lifecycle state.
type TicketStatus string

// Ticket statuses. Transitions are monotonic: pending -> assigned ->
// in_progress -> resolved, with no reverse transitions.
const (
	TicketPending    TicketStatus = "pending"
	TicketAssigned   TicketStatus = "assigned"
	TicketInProgress TicketStatus = "in_progress"
	TicketResolved   TicketStatus = "resolved"
)

// ticketRank orders statuses along the lifecycle.
var ticketRank = map[TicketStatus]int{
	TicketPending:    0,
	TicketAssigned:   1,
	TicketInProgress: 2,
	TicketResolved:   3,
}

// IsValidTicketStatus reports whether s is a known ticket status.
func IsValidTicketStatus(s TicketStatus) bool {
	_, ok := ticketRank[s]
	return ok
}

// IsValidTicketTransition validates a status change. Only strictly forward
// moves along pending -> assigned -> in_progress -> resolved are allowed;
// skipping intermediate statuses is permitted, going back is not.
func IsValidTicketTransition(current, next TicketStatus) bool {
	cur, okCur := ticketRank[current]
	nxt, okNext := ticketRank[next]
	if !okCur || !okNext {
		return false
	}
	return nxt > cur
}

// TicketPriority is the dispatch priority assigned at escalation time.
type TicketPriority string

// Ticket priorities.
const (
	PriorityLow    TicketPriority = "low"
	PriorityMedium TicketPriority = "medium"
	PriorityHigh   TicketPriority = "high"
	PriorityUrgent TicketPriority = "urgent"
)

// EscalationTicket is the only intelligence-layer artifact with durable
// storage. Creation is synchronous with the request that triggered it.
type EscalationTicket struct {
	ID           string          `json:"id"`
	PseudoUserID string          `json:"pseudo_user_id"`
	SessionID    string          `json:"session_id"`
	Category     ProblemCategory `json:"category"`
	Priority     TicketPriority  `json:"priority"`
	Reason       string          `json:"reason"`
	Status       TicketStatus    `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// RecommendedAction is one ranked next step for the agent. Actions that are
// not auto-executable need a manual approval step before execution.
type RecommendedAction struct {
	Type           string  `json:"type"`
	Description    string  `json:"description"`
	Confidence     float64 `json:"confidence"`
	Priority       float64 `json:"priority"`
	AutoExecutable bool    `json:"auto_executable"`
}

// Rank is the sort key for recommended actions, higher first.
func (a RecommendedAction) Rank() float64 {
	return a.Priority*0.6 + a.Confidence*0.4
}
