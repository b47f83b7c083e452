// Package types defines the shared data model for the Tether memory system.
//
// Types here are transport-agnostic: they carry logical field names and their
// invariants, while the storage backends decide how to serialize them.
package types

import (
	"fmt"
	"time"
)

// Channel identifies the messaging surface a turn arrived on.
type Channel string

// Supported channels.
const (
	ChannelWeb      Channel = "web"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelX        Channel = "x"
	ChannelEmail    Channel = "email"
	ChannelPhone    Channel = "phone"
)

// Channels lists all supported channel tags.
var Channels = []Channel{ChannelWeb, ChannelWhatsApp, ChannelX, ChannelEmail, ChannelPhone}

// Valid reports whether c is a known channel tag.
func (c Channel) Valid() bool {
	for _, known := range Channels {
		if c == known {
			return true
		}
	}
	return false
}

// Role identifies the speaker of a message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversation turn.
type Message struct {
	Timestamp time.Time `json:"timestamp"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Summary   string    `json:"summary,omitempty"`
}

// Metadata carries optional request-level signals used for identity matching.
type Metadata struct {
	IP        string `json:"ip,omitempty"`
	Geo       string `json:"geo,omitempty"`
	Lang      string `json:"lang,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// SessionEnvelope is the canonical inbound turn. It is built once per message
// and never mutated afterwards. HashedUserID is a one-way hash of the
// channel-local user identifier; the raw identifier is never stored.
type SessionEnvelope struct {
	Channel      Channel  `json:"channel"`
	HashedUserID string   `json:"hashed_channel_user_id"`
	Message      Message  `json:"message"`
	Metadata     Metadata `json:"metadata"`
}

// SessionID returns the short-term session key for this envelope.
func (e *SessionEnvelope) SessionID() string {
	return string(e.Channel) + ":" + e.HashedUserID
}

// Validate checks the envelope for required fields.
func (e *SessionEnvelope) Validate() error {
	if !e.Channel.Valid() {
		return &ValidationError{Field: "channel", Reason: fmt.Sprintf("unknown channel %q", e.Channel)}
	}
	if e.HashedUserID == "" {
		return &ValidationError{Field: "hashed_channel_user_id", Reason: "must not be empty"}
	}
	if e.Message.Text == "" {
		return &ValidationError{Field: "message.text", Reason: "must not be empty"}
	}
	if e.Message.Role != RoleUser && e.Message.Role != RoleAssistant {
		return &ValidationError{Field: "message.role", Reason: fmt.Sprintf("unknown role %q", e.Message.Role)}
	}
	return nil
}

// ValidationError reports the field that failed envelope validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// MultiVectorEmbedding holds the three fixed-dimension vectors produced for an
// inbound message: what is being asked, emotional tone, and subject matter.
// All three share the same dimensionality within a deployment.
type MultiVectorEmbedding struct {
	Intent      []float32 `json:"intent_vector"`
	Frustration []float32 `json:"frustration_vector"`
	Product     []float32 `json:"product_vector"`
}

// MaxSessionMessages bounds the per-session message window kept in the
// short-term record.
const MaxSessionMessages = 50

// ShortTermTTL is the sliding expiry applied to short-term session records.
const ShortTermTTL = 48 * time.Hour

// ShortTermRecord is the canonical recent-context record for one session.
// It is created on the first message, appended to on every later message in
// the same session, and expires from the store after ShortTermTTL.
type ShortTermRecord struct {
	SessionID        string    `json:"session_id"`
	Messages         []Message `json:"messages"`
	IntentVector     []float32 `json:"intent_vector"`
	FrustrationLevel float64   `json:"frustration_level"`
}

// Append adds a message to the record, keeping at most MaxSessionMessages of
// the most recent turns.
func (r *ShortTermRecord) Append(msg Message) {
	r.Messages = append(r.Messages, msg)
	if len(r.Messages) > MaxSessionMessages {
		r.Messages = r.Messages[len(r.Messages)-MaxSessionMessages:]
	}
}

// Texts returns the raw text of every message in the record.
func (r *ShortTermRecord) Texts() []string {
	out := make([]string, 0, len(r.Messages))
	for _, m := range r.Messages {
		out = append(out, m.Text)
	}
	return out
}

// ShortTermVectorPoint is one stored turn in the recent-tier vector index.
// Later upserts with the same session id supersede earlier points; the point
// exists only for nearest-neighbor recall, not as the canonical record. Text
// and Metadata ride along so a retrieved point can serve as an identity
// candidate without a second store round-trip.
type ShortTermVectorPoint struct {
	SessionID    string    `json:"session_id"`
	PseudoUserID string    `json:"pseudo_user_id"`
	Channel      Channel   `json:"channel"`
	Intent       []float32 `json:"intent_vector"`
	Frustration  []float32 `json:"frustration_vector"`
	Product      []float32 `json:"product_vector"`
	Text         string    `json:"text,omitempty"`
	Metadata     Metadata  `json:"metadata"`
	Timestamp    time.Time `json:"timestamp"`
}

// LongTermMemoryPoint is one persistent interaction summary in the archive.
// Points are insert-only: one per (pseudo_user_id, last_seen) pair, never
// updated in place, never expired.
type LongTermMemoryPoint struct {
	PseudoUserID string    `json:"pseudo_user_id"`
	Summary      string    `json:"summary"`
	Intent       []float32 `json:"intent_vector"`
	Tone         []float32 `json:"tone_vector"`
	Product      []float32 `json:"product_vector"`
	Entities     []string  `json:"entities,omitempty"`
	LastSeen     time.Time `json:"last_seen"`
}

// LinkedSession ties one (channel, hashed user id) pair to a pseudo-identity
// with a confidence score. Confidence only ever increases.
type LinkedSession struct {
	Channel      Channel `json:"channel"`
	HashedUserID string  `json:"hashed_channel_user_id"`
	Confidence   float64 `json:"confidence"`
}

// IdentityMapEntry groups the channel sessions believed to belong to one
// underlying person. PseudoUserID is immutable once assigned, and a
// (channel, hashed user id) pair appears in at most one entry.
type IdentityMapEntry struct {
	PseudoUserID   string          `json:"pseudo_user_id"`
	LinkedSessions []LinkedSession `json:"linked_sessions"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// FindLink returns the index of the link for (channel, hashedUserID), or -1.
func (e *IdentityMapEntry) FindLink(channel Channel, hashedUserID string) int {
	for i, l := range e.LinkedSessions {
		if l.Channel == channel && l.HashedUserID == hashedUserID {
			return i
		}
	}
	return -1
}
