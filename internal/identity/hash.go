// Package identity implements the identity resolution engine: minting
// pseudo-identities, scoring incoming sessions against historical candidates,
// and maintaining the cross-channel identity map.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher turns a raw channel-local identifier into an opaque, deterministic,
// one-way string. Raw identifiers never leave this boundary.
type Hasher interface {
	Hash(raw string) string
}

// SHA256Hasher hashes identifiers with an optional deployment-wide pepper.
type SHA256Hasher struct {
	pepper string
}

var _ Hasher = (*SHA256Hasher)(nil)

// NewSHA256Hasher creates a hasher. The pepper is mixed into every hash so
// identifiers cannot be matched across deployments.
func NewSHA256Hasher(pepper string) *SHA256Hasher {
	return &SHA256Hasher{pepper: pepper}
}

// Hash returns the hex-encoded SHA-256 of pepper+raw.
func (h *SHA256Hasher) Hash(raw string) string {
	sum := sha256.Sum256([]byte(h.pepper + raw))
	return hex.EncodeToString(sum[:])
}
