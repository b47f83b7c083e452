// Package engine orchestrates the tri-store memory pipeline: identity
// resolution, parallel context reads, the rule-based intelligence layer, and
// the cross-store write-back for every inbound message.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/meridian-labs/tether/internal/embedding"
	"github.com/meridian-labs/tether/internal/identity"
	"github.com/meridian-labs/tether/internal/storage"
	"github.com/meridian-labs/tether/pkg/types"
)

// Deps carries the store handles and collaborators the engine orchestrates.
// All fields except Events and Logger are required.
type Deps struct {
	Sessions    storage.SessionStore
	Recent      storage.VectorIndex
	Archive     storage.ArchiveStore
	IdentityMap storage.IdentityMapStore
	Tickets     storage.TicketStore
	Embedder    embedding.Provider
	Hasher      identity.Hasher

	// Events receives pipeline notifications; nil means none are published.
	Events EventSink

	Logger *slog.Logger
}

// Options tunes pipeline behavior.
type Options struct {
	// TopK bounds the nearest-neighbor reads per tier. Defaults to 10.
	TopK int

	// SessionTTL is the sliding expiry applied on every session write.
	// Defaults to types.ShortTermTTL.
	SessionTTL time.Duration

	// ReadBudget, when positive, bounds each context read individually.
	// A read that misses its budget degrades to empty; the request
	// continues. Zero means reads run unbounded.
	ReadBudget time.Duration
}

// Engine is one explicitly constructed pipeline instance. It holds no global
// state; everything it touches is carried in from Deps.
type Engine struct {
	sessions storage.SessionStore
	recent   storage.VectorIndex
	archive  storage.ArchiveStore
	tickets  storage.TicketStore
	embedder embedding.Provider
	hasher   identity.Hasher
	events   EventSink
	logger   *slog.Logger

	resolver    *identity.Resolver
	linker      *identity.Linker
	urgency     *UrgencyEstimator
	problems    *ProblemExtractor
	escalations *EscalationManager
	actions     *ActionRecommender

	topK       int
	sessionTTL time.Duration
	readBudget time.Duration
}

// New creates an engine. Missing required dependencies are an error.
func New(deps Deps, opts Options) (*Engine, error) {
	switch {
	case deps.Sessions == nil:
		return nil, errors.New("engine: session store is required")
	case deps.Recent == nil:
		return nil, errors.New("engine: recent vector index is required")
	case deps.Archive == nil:
		return nil, errors.New("engine: archive store is required")
	case deps.IdentityMap == nil:
		return nil, errors.New("engine: identity map store is required")
	case deps.Tickets == nil:
		return nil, errors.New("engine: ticket store is required")
	case deps.Embedder == nil:
		return nil, errors.New("engine: embedding provider is required")
	case deps.Hasher == nil:
		return nil, errors.New("engine: hasher is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	events := deps.Events
	if events == nil {
		events = NopSink{}
	}
	if opts.TopK <= 0 {
		opts.TopK = 10
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = types.ShortTermTTL
	}

	return &Engine{
		sessions:    deps.Sessions,
		recent:      deps.Recent,
		archive:     deps.Archive,
		tickets:     deps.Tickets,
		embedder:    deps.Embedder,
		hasher:      deps.Hasher,
		events:      events,
		logger:      logger,
		resolver:    identity.NewResolver(logger),
		linker:      identity.NewLinker(deps.IdentityMap, deps.Hasher, logger),
		urgency:     NewUrgencyEstimator(),
		problems:    NewProblemExtractor(),
		escalations: NewEscalationManager(deps.Tickets, logger),
		actions:     NewActionRecommender(),
		topK:        opts.TopK,
		sessionTTL:  opts.SessionTTL,
		readBudget:  opts.ReadBudget,
	}, nil
}

// GetTicket retrieves an escalation ticket by id.
func (e *Engine) GetTicket(ctx context.Context, id string) (*types.EscalationTicket, error) {
	return e.tickets.Get(ctx, id)
}

// ListTickets returns tickets filtered by status, newest first. Listing is a
// read: failures degrade to an empty list.
func (e *Engine) ListTickets(ctx context.Context, status types.TicketStatus) []types.EscalationTicket {
	tickets, err := e.tickets.List(ctx, status)
	if err != nil {
		e.logger.Warn("listing tickets failed, degrading to empty", "status", status, "error", err)
		return nil
	}
	return tickets
}

// UpdateTicket transitions a ticket's status. Transitions are forward-only;
// invalid moves surface storage.ErrInvalidTransition.
func (e *Engine) UpdateTicket(ctx context.Context, id string, status types.TicketStatus) error {
	return e.tickets.UpdateStatus(ctx, id, status)
}
