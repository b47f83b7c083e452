package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/meridian-labs/tether/internal/embedding"
	"github.com/meridian-labs/tether/internal/identity"
	"github.com/meridian-labs/tether/internal/storage"
	"github.com/meridian-labs/tether/pkg/types"
)

// In-memory store fakes. Each supports forced failures for the error-path
// tests.

type fakeSessionStore struct {
	mu      sync.Mutex
	records map[string]*types.ShortTermRecord
	failGet error
	failPut error
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{records: make(map[string]*types.ShortTermRecord)}
}

func (f *fakeSessionStore) Get(_ context.Context, sessionID string) (*types.ShortTermRecord, error) {
	if f.failGet != nil {
		return nil, f.failGet
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[sessionID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	data, _ := json.Marshal(record)
	var clone types.ShortTermRecord
	_ = json.Unmarshal(data, &clone)
	return &clone, nil
}

func (f *fakeSessionStore) Put(_ context.Context, record *types.ShortTermRecord, _ time.Duration) error {
	if f.failPut != nil {
		return f.failPut
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, _ := json.Marshal(record)
	var clone types.ShortTermRecord
	_ = json.Unmarshal(data, &clone)
	f.records[record.SessionID] = &clone
	return nil
}

func (f *fakeSessionStore) Close() error { return nil }

type fakeVectorIndex struct {
	mu     sync.Mutex
	points []types.ShortTermVectorPoint
}

func (f *fakeVectorIndex) Upsert(_ context.Context, point *types.ShortTermVectorPoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.points {
		if p.SessionID == point.SessionID {
			f.points[i] = *point
			return nil
		}
	}
	f.points = append(f.points, *point)
	return nil
}

func (f *fakeVectorIndex) Query(_ context.Context, _ []float32, topK int) ([]types.ShortTermVectorPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.points)
	if n > topK {
		n = topK
	}
	return append([]types.ShortTermVectorPoint(nil), f.points[:n]...), nil
}

func (f *fakeVectorIndex) Close() error { return nil }

type fakeArchive struct {
	mu         sync.Mutex
	points     []types.LongTermMemoryPoint
	failInsert error
}

func (f *fakeArchive) Insert(_ context.Context, point *types.LongTermMemoryPoint) error {
	if f.failInsert != nil {
		return f.failInsert
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.points {
		if p.PseudoUserID == point.PseudoUserID && p.LastSeen.Equal(point.LastSeen) {
			return nil
		}
	}
	f.points = append(f.points, *point)
	return nil
}

func (f *fakeArchive) Query(_ context.Context, _ []float32, topK int) ([]types.LongTermMemoryPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.points)
	if n > topK {
		n = topK
	}
	return append([]types.LongTermMemoryPoint(nil), f.points[:n]...), nil
}

func (f *fakeArchive) Close() error { return nil }

type fakeIdentityMap struct {
	mu      sync.Mutex
	entries map[string]*types.IdentityMapEntry
}

func newFakeIdentityMap() *fakeIdentityMap {
	return &fakeIdentityMap{entries: make(map[string]*types.IdentityMapEntry)}
}

func (f *fakeIdentityMap) FindByPseudoID(_ context.Context, id string) (*types.IdentityMapEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.entries[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *entry
	clone.LinkedSessions = append([]types.LinkedSession(nil), entry.LinkedSessions...)
	return &clone, nil
}

func (f *fakeIdentityMap) FindByLink(_ context.Context, channel types.Channel, hashed string) (*types.IdentityMapEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, entry := range f.entries {
		if entry.FindLink(channel, hashed) >= 0 {
			clone := *entry
			clone.LinkedSessions = append([]types.LinkedSession(nil), entry.LinkedSessions...)
			return &clone, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeIdentityMap) Insert(_ context.Context, entry *types.IdentityMapEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *entry
	clone.LinkedSessions = append([]types.LinkedSession(nil), entry.LinkedSessions...)
	f.entries[entry.PseudoUserID] = &clone
	return nil
}

func (f *fakeIdentityMap) Update(_ context.Context, entry *types.IdentityMapEntry) error {
	return f.Insert(context.Background(), entry)
}

func (f *fakeIdentityMap) Close() error { return nil }

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) Publish(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *captureSink) byType(eventType string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type testHarness struct {
	engine     *Engine
	sessions   *fakeSessionStore
	recent     *fakeVectorIndex
	archive    *fakeArchive
	identities *fakeIdentityMap
	tickets    *fakeTicketStore
	events     *captureSink
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	h := &testHarness{
		sessions:   newFakeSessionStore(),
		recent:     &fakeVectorIndex{},
		archive:    &fakeArchive{},
		identities: newFakeIdentityMap(),
		tickets:    newFakeTicketStore(),
		events:     &captureSink{},
	}
	eng, err := New(Deps{
		Sessions:    h.sessions,
		Recent:      h.recent,
		Archive:     h.archive,
		IdentityMap: h.identities,
		Tickets:     h.tickets,
		Embedder:    embedding.NewFakeProvider(8),
		Hasher:      identity.NewSHA256Hasher("test"),
		Events:      h.events,
	}, Options{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	h.engine = eng
	return h
}

func TestStoreEndToEndFirstTime(t *testing.T) {
	h := newTestHarness(t)

	res, err := h.engine.Store(context.Background(), StoreRequest{
		Channel: types.ChannelWeb,
		UserID:  "visitor-42",
		Text:    "My order AB123 is delayed, this is unacceptable, I want my manager",
	})
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	if !identity.IsPseudoUserID(res.PseudoUserID) {
		t.Errorf("expected a freshly minted pseudo id, got %q", res.PseudoUserID)
	}
	if !res.Urgency.Level.AtLeast(types.UrgencyHigh) {
		t.Errorf("urgency level = %s (score %.3f), want at least high",
			res.Urgency.Level, res.Urgency.Score)
	}
	if res.Problem == nil {
		t.Fatal("expected an extracted problem")
	}
	if res.Problem.CanAgentSolve {
		t.Error("manager demand must not be agent-solvable")
	}
	if res.Problem.Category != types.CategoryDelivery {
		t.Errorf("category = %s, want delivery", res.Problem.Category)
	}
	if !res.Escalated || res.Ticket == nil {
		t.Fatal("expected a synchronous escalation ticket")
	}
	if res.Ticket.Priority != types.PriorityUrgent && res.Ticket.Priority != types.PriorityHigh {
		t.Errorf("ticket priority = %s, want urgent or high", res.Ticket.Priority)
	}
	if res.Ticket.Status != types.TicketPending {
		t.Errorf("ticket status = %s, want pending", res.Ticket.Status)
	}
	if len(res.Actions) == 0 {
		t.Error("expected recommended actions")
	}

	// All three tiers received the turn.
	if _, err := h.sessions.Get(context.Background(), res.SessionID); err != nil {
		t.Errorf("session record missing after store: %v", err)
	}
	if len(h.recent.points) != 1 {
		t.Errorf("recent index has %d points, want 1", len(h.recent.points))
	}
	if len(h.archive.points) != 1 {
		t.Errorf("archive has %d points, want 1", len(h.archive.points))
	}
	if got := h.archive.points[0].Entities; len(got) == 0 || got[0] != "ab123" {
		t.Errorf("archive entities = %v, want the order code", got)
	}

	if len(h.events.byType(EventEscalationCreated)) != 1 {
		t.Error("expected one escalation event")
	}
	if len(h.events.byType(EventHighUrgency)) != 1 {
		t.Error("expected one high-urgency event")
	}
}

func TestStoreKeepsIdentityAcrossTurns(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	first, err := h.engine.Store(ctx, StoreRequest{
		Channel: types.ChannelWeb, UserID: "visitor-42",
		Text: "where is my order AB123",
	})
	if err != nil {
		t.Fatalf("first store failed: %v", err)
	}
	second, err := h.engine.Store(ctx, StoreRequest{
		Channel: types.ChannelWeb, UserID: "visitor-42",
		Text: "any update on order AB123",
	})
	if err != nil {
		t.Fatalf("second store failed: %v", err)
	}

	if first.PseudoUserID != second.PseudoUserID {
		t.Errorf("same channel user resolved to different identities: %s vs %s",
			first.PseudoUserID, second.PseudoUserID)
	}

	record, err := h.sessions.Get(ctx, second.SessionID)
	if err != nil {
		t.Fatalf("session read failed: %v", err)
	}
	if len(record.Messages) != 2 {
		t.Errorf("session holds %d messages, want 2", len(record.Messages))
	}
	// The second upsert superseded the first point.
	if len(h.recent.points) != 1 {
		t.Errorf("recent index has %d points, want 1", len(h.recent.points))
	}
}

func TestStoreLinksIdentityAcrossChannels(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	meta := types.Metadata{IP: "198.51.100.7", Geo: "DE", Lang: "de"}

	web, err := h.engine.Store(ctx, StoreRequest{
		Channel: types.ChannelWeb, UserID: "visitor-42",
		Text:     "my order AB123 is arriving late",
		Metadata: meta,
	})
	if err != nil {
		t.Fatalf("web store failed: %v", err)
	}

	// A different channel and raw id has no existing link, so this turn must
	// be recognized by scoring against the recalled web turn: same intent
	// vector, same metadata, same writing style, same order code.
	wa, err := h.engine.Store(ctx, StoreRequest{
		Channel: types.ChannelWhatsApp, UserID: "+4915112345678",
		Text:     "my order AB123 is arriving late",
		Metadata: meta,
	})
	if err != nil {
		t.Fatalf("whatsapp store failed: %v", err)
	}

	if web.PseudoUserID != wa.PseudoUserID {
		t.Fatalf("cross-channel turns resolved to different identities: %s vs %s",
			web.PseudoUserID, wa.PseudoUserID)
	}

	// Both channel pairs now link to the one identity.
	hasher := identity.NewSHA256Hasher("test")
	entry, err := h.identities.FindByLink(ctx, types.ChannelWhatsApp, hasher.Hash("+4915112345678"))
	if err != nil {
		t.Fatalf("whatsapp link missing: %v", err)
	}
	if entry.PseudoUserID != web.PseudoUserID {
		t.Errorf("whatsapp link points at %s, want %s", entry.PseudoUserID, web.PseudoUserID)
	}
	if entry.FindLink(types.ChannelWeb, hasher.Hash("visitor-42")) < 0 {
		t.Error("web link missing from the shared identity entry")
	}

	// A later whatsapp turn short-circuits through the existing link.
	again, err := h.engine.Store(ctx, StoreRequest{
		Channel: types.ChannelWhatsApp, UserID: "+4915112345678",
		Text:     "any update on AB123?",
		Metadata: meta,
	})
	if err != nil {
		t.Fatalf("repeat whatsapp store failed: %v", err)
	}
	if again.PseudoUserID != web.PseudoUserID {
		t.Errorf("repeat turn resolved to %s, want %s", again.PseudoUserID, web.PseudoUserID)
	}
}

func TestStoreValidation(t *testing.T) {
	h := newTestHarness(t)

	_, err := h.engine.Store(context.Background(), StoreRequest{
		Channel: "carrier-pigeon", UserID: "u", Text: "hello",
	})
	var perr *PipelineError
	if !errors.As(err, &perr) || perr.Category != FailureValidation {
		t.Fatalf("expected a validation failure, got %v", err)
	}
	var verr *types.ValidationError
	if !errors.As(err, &verr) || verr.Field != "channel" {
		t.Errorf("expected the violated field to be reported, got %v", err)
	}
}

type failingEmbedder struct{ err error }

func (f *failingEmbedder) Embed(context.Context, string) ([]float32, error) { return nil, f.err }
func (f *failingEmbedder) Dimension() int                                   { return 8 }

func TestStoreEmbeddingFailureFatal(t *testing.T) {
	h := newTestHarness(t)
	h.engine.embedder = &failingEmbedder{err: errors.New("model offline")}

	_, err := h.engine.Store(context.Background(), StoreRequest{
		Channel: types.ChannelWeb, UserID: "u", Text: "hello",
	})
	var perr *PipelineError
	if !errors.As(err, &perr) || perr.Category != FailureEmbedding {
		t.Fatalf("expected an embedding failure, got %v", err)
	}
}

func TestStoreReadFailureDegrades(t *testing.T) {
	h := newTestHarness(t)
	h.sessions.failGet = errors.New("store down")

	res, err := h.engine.Store(context.Background(), StoreRequest{
		Channel: types.ChannelWeb, UserID: "u", Text: "where is my order",
	})
	if err != nil {
		t.Fatalf("read failure must not fail the request: %v", err)
	}
	if !identity.IsPseudoUserID(res.PseudoUserID) {
		t.Errorf("degraded read should still mint an identity, got %q", res.PseudoUserID)
	}
}

func TestStoreWriteFailureTagged(t *testing.T) {
	h := newTestHarness(t)
	h.archive.failInsert = errors.New("disk full")

	_, err := h.engine.Store(context.Background(), StoreRequest{
		Channel: types.ChannelWeb, UserID: "u", Text: "where is my order",
	})
	var perr *PipelineError
	if !errors.As(err, &perr) {
		t.Fatalf("expected a pipeline error, got %v", err)
	}
	if perr.Category != FailureStoreWrite || perr.Store != "archive" {
		t.Errorf("expected a store_write failure tagged archive, got %s/%s",
			perr.Category, perr.Store)
	}
}

func TestRetrieveIdempotent(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	res, err := h.engine.Store(ctx, StoreRequest{
		Channel: types.ChannelWeb, UserID: "visitor-42",
		Text: "where is my order AB123",
	})
	if err != nil {
		t.Fatalf("store failed: %v", err)
	}

	first, err := h.engine.Retrieve(ctx, res.SessionID, "order status")
	if err != nil {
		t.Fatalf("first retrieve failed: %v", err)
	}
	second, err := h.engine.Retrieve(ctx, res.SessionID, "order status")
	if err != nil {
		t.Fatalf("second retrieve failed: %v", err)
	}

	firstJSON, _ := json.Marshal(first)
	secondJSON, _ := json.Marshal(second)
	if string(firstJSON) != string(secondJSON) {
		t.Error("retrieve mutated state: results differ across identical calls")
	}
	if first.MemoryBlock == "" {
		t.Error("expected a non-empty memory block")
	}
	if first.ShortTerm == nil || len(first.ShortTerm.Messages) != 1 {
		t.Error("expected the stored turn in short-term context")
	}
	if len(first.LongTerm) != 1 {
		t.Errorf("expected one archive point, got %d", len(first.LongTerm))
	}
}

func TestRetrieveUnknownSession(t *testing.T) {
	h := newTestHarness(t)

	res, err := h.engine.Retrieve(context.Background(), "web:nobody", "anything")
	if err != nil {
		t.Fatalf("retrieve of unknown session must not fail: %v", err)
	}
	if res.ShortTerm != nil {
		t.Error("expected no short-term record")
	}
	if res.MemoryBlock != "" {
		t.Errorf("expected an empty memory block, got %q", res.MemoryBlock)
	}
}

func TestTicketLifecycleThroughEngine(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	res, err := h.engine.Store(ctx, StoreRequest{
		Channel: types.ChannelWeb, UserID: "visitor-42",
		Text: "My order AB123 is delayed, this is unacceptable, I want my manager",
	})
	if err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if res.Ticket == nil {
		t.Fatal("expected a ticket")
	}

	pending := h.engine.ListTickets(ctx, types.TicketPending)
	if len(pending) != 1 {
		t.Fatalf("expected one pending ticket, got %d", len(pending))
	}

	if err := h.engine.UpdateTicket(ctx, res.Ticket.ID, types.TicketAssigned); err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if err := h.engine.UpdateTicket(ctx, res.Ticket.ID, types.TicketPending); !errors.Is(err, storage.ErrInvalidTransition) {
		t.Errorf("reverse transition should be rejected, got %v", err)
	}

	ticket, err := h.engine.GetTicket(ctx, res.Ticket.ID)
	if err != nil {
		t.Fatalf("get ticket failed: %v", err)
	}
	if ticket.Status != types.TicketAssigned {
		t.Errorf("status = %s, want assigned", ticket.Status)
	}
}
