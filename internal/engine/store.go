package engine

import (
	"context"
	"errors"
	"time"

	"github.com/meridian-labs/tether/internal/embedding"
	"github.com/meridian-labs/tether/internal/identity"
	"github.com/meridian-labs/tether/internal/storage"
	"github.com/meridian-labs/tether/pkg/types"
)

// StoreRequest is one inbound turn. UserID is the raw channel-local
// identifier; the engine hashes it before anything is stored.
type StoreRequest struct {
	Channel   types.Channel
	UserID    string
	Text      string
	Summary   string
	Role      types.Role
	Timestamp time.Time
	Metadata  types.Metadata
}

// StoreResult is the response envelope for a stored turn.
type StoreResult struct {
	SessionID    string                    `json:"session_id"`
	PseudoUserID string                    `json:"pseudo_user_id"`
	Urgency      types.UrgencyScore        `json:"urgency"`
	Problem      *types.ExtractedProblem   `json:"problem,omitempty"`
	Escalated    bool                      `json:"escalated"`
	Ticket       *types.EscalationTicket   `json:"ticket,omitempty"`
	Actions      []types.RecommendedAction `json:"recommended_actions"`
}

// Store runs the full pipeline for one inbound message: envelope, embedding,
// parallel context reads, identity resolution, the intelligence layer, and
// the cross-store write-back.
//
// Failure policy: validation and embedding failures abort before any store is
// touched, reads degrade to empty context, write failures are fatal and carry
// the failing store's name, identity-map link failures are logged and
// swallowed.
func (e *Engine) Store(ctx context.Context, req StoreRequest) (*StoreResult, error) {
	env := e.buildEnvelope(req)
	if err := env.Validate(); err != nil {
		return nil, &PipelineError{Category: FailureValidation, Err: err}
	}
	sessionID := env.SessionID()

	emb, err := embedding.EmbedMessage(ctx, e.embedder, env.Message.Text, env.Message.Summary)
	if err != nil {
		return nil, &PipelineError{Category: FailureEmbedding, Err: err}
	}

	reads := e.readContext(ctx, sessionID, emb.Intent)

	resolution := e.resolveIdentity(ctx, env, emb, reads, req.UserID)
	pseudoID := resolution.PseudoUserID

	history := reads.historyTexts()
	urgency := e.urgency.Estimate(env.Message.Text, emb, history)
	problem := e.problems.Extract(env.Message.Text, urgency, history)
	actions := e.actions.Recommend(problem)

	ticket, err := e.escalations.Escalate(ctx, sessionID, pseudoID, env.Message.Text, problem, urgency)
	if err != nil {
		return nil, &PipelineError{Category: FailureEscalation, Err: err}
	}

	if err := e.writeBack(ctx, env, emb, reads.record, pseudoID, urgency); err != nil {
		return nil, err
	}

	e.publish(sessionID, pseudoID, urgency, ticket)

	return &StoreResult{
		SessionID:    sessionID,
		PseudoUserID: pseudoID,
		Urgency:      urgency,
		Problem:      problem,
		Escalated:    ticket != nil,
		Ticket:       ticket,
		Actions:      actions,
	}, nil
}

// buildEnvelope hashes the raw identifier and stamps the timestamp. The
// envelope is immutable after this point.
func (e *Engine) buildEnvelope(req StoreRequest) *types.SessionEnvelope {
	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	role := req.Role
	if role == "" {
		role = types.RoleUser
	}
	return &types.SessionEnvelope{
		Channel:      req.Channel,
		HashedUserID: e.hasher.Hash(req.UserID),
		Message: types.Message{
			Timestamp: ts,
			Role:      role,
			Text:      req.Text,
			Summary:   req.Summary,
		},
		Metadata: req.Metadata,
	}
}

// resolveIdentity decides which pseudo-identity the turn belongs to and
// updates the identity map. A session whose (channel, user id) pair is
// already linked keeps its identity without re-scoring; everything else is
// scored against the retrieved candidates. Link failures never fail the
// request.
func (e *Engine) resolveIdentity(ctx context.Context, env *types.SessionEnvelope,
	emb *types.MultiVectorEmbedding, reads contextReads, rawUserID string) identity.Resolution {

	if known, err := e.linker.FindPseudoUserID(ctx, env.Channel, rawUserID); err == nil {
		return identity.Resolution{PseudoUserID: known, Matched: true}
	} else if !errors.Is(err, storage.ErrNotFound) {
		e.logger.Warn("identity reverse lookup failed, falling back to scoring", "error", err)
	}

	currentMessages := []types.Message{env.Message}
	if reads.record != nil {
		currentMessages = append(append([]types.Message(nil), reads.record.Messages...), env.Message)
	}

	resolution := e.resolver.Resolve(emb, env.Metadata, currentMessages, e.buildCandidates(ctx, env.SessionID(), reads))

	confidence := 1.0
	if resolution.Matched {
		confidence = resolution.Score.Combined
	}
	if err := e.linker.LinkToMap(ctx, resolution.PseudoUserID, env.Channel, rawUserID, confidence); err != nil {
		e.logger.Warn("identity map link failed, continuing",
			"pseudo_user_id", resolution.PseudoUserID, "error", err)
	}
	return resolution
}

// buildCandidates assembles the scoring candidates from the retrieved
// context: recent-turn points first (already ranked most-similar first),
// then archive points. Recent points carry their stored turn text and
// request metadata; each one's session record is also fetched so behavior
// scoring sees the candidate's message history. Points for the current
// session carry no new identity information and are skipped.
func (e *Engine) buildCandidates(ctx context.Context, sessionID string, reads contextReads) []identity.Candidate {
	var candidates []identity.Candidate
	for _, p := range reads.recent {
		if p.SessionID == sessionID || p.PseudoUserID == "" {
			continue
		}
		candidate := identity.Candidate{
			PseudoUserID: p.PseudoUserID,
			IntentVector: p.Intent,
			Metadata:     p.Metadata,
			Text:         p.Text,
		}
		readCtx, cancel := e.budgeted(ctx)
		record, err := e.sessions.Get(readCtx, p.SessionID)
		cancel()
		if err == nil {
			candidate.Messages = record.Messages
		} else if !errors.Is(err, storage.ErrNotFound) {
			e.logger.Warn("candidate session read failed, scoring without its history",
				"session_id", p.SessionID, "error", err)
		}
		candidates = append(candidates, candidate)
	}
	for _, p := range reads.archive {
		if p.PseudoUserID == "" {
			continue
		}
		candidates = append(candidates, identity.Candidate{
			PseudoUserID: p.PseudoUserID,
			IntentVector: p.Intent,
			Text:         p.Summary,
		})
	}
	return candidates
}

// writeBack persists the turn across the three tiers in order: session
// record, recent vector point, archive point. Each write is fatal on failure
// and the error names the store that failed. The tiers are not transactional;
// a crash mid-sequence leaves a partial update the next read tolerates.
func (e *Engine) writeBack(ctx context.Context, env *types.SessionEnvelope,
	emb *types.MultiVectorEmbedding, record *types.ShortTermRecord,
	pseudoID string, urgency types.UrgencyScore) error {

	sessionID := env.SessionID()

	if record == nil {
		record = &types.ShortTermRecord{SessionID: sessionID}
	}
	record.Append(env.Message)
	record.IntentVector = emb.Intent
	record.FrustrationLevel = urgency.Factors["frustration"]
	if err := e.sessions.Put(ctx, record, e.sessionTTL); err != nil {
		return writeError("sessions", err)
	}

	point := &types.ShortTermVectorPoint{
		SessionID:    sessionID,
		PseudoUserID: pseudoID,
		Channel:      env.Channel,
		Intent:       emb.Intent,
		Frustration:  emb.Frustration,
		Product:      emb.Product,
		Text:         env.Message.Text,
		Metadata:     env.Metadata,
		Timestamp:    env.Message.Timestamp,
	}
	if err := e.recent.Upsert(ctx, point); err != nil {
		return writeError("recent", err)
	}

	summary := env.Message.Summary
	if summary == "" {
		summary = env.Message.Text
	}
	memory := &types.LongTermMemoryPoint{
		PseudoUserID: pseudoID,
		Summary:      summary,
		Intent:       emb.Intent,
		Tone:         emb.Frustration,
		Product:      emb.Product,
		Entities:     identity.ExtractIdentifiers(env.Message.Text),
		LastSeen:     env.Message.Timestamp,
	}
	if err := e.archive.Insert(ctx, memory); err != nil {
		return writeError("archive", err)
	}
	return nil
}

// publish emits events for feeds. High-urgency turns and new escalations are
// the only event-worthy outcomes.
func (e *Engine) publish(sessionID, pseudoID string, urgency types.UrgencyScore, ticket *types.EscalationTicket) {
	now := time.Now().UTC()
	if urgency.Level.AtLeast(types.UrgencyHigh) {
		e.events.Publish(Event{
			Type:         EventHighUrgency,
			SessionID:    sessionID,
			PseudoUserID: pseudoID,
			Urgency:      urgency.Level,
			Timestamp:    now,
		})
	}
	if ticket != nil {
		e.events.Publish(Event{
			Type:         EventEscalationCreated,
			SessionID:    sessionID,
			PseudoUserID: pseudoID,
			Urgency:      urgency.Level,
			Ticket:       ticket,
			Timestamp:    now,
		})
	}
}
