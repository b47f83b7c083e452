package identity

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// pseudoIDPattern is the canonical shape of a pseudo user id: five
// hyphen-separated uppercase hex groups of lengths 8-4-4-4-12.
var pseudoIDPattern = regexp.MustCompile(`^[0-9A-F]{8}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{12}$`)

// MintPseudoUserID generates a fresh pseudo user id. The id is a
// security-relevant non-reversible token, so it comes from a
// cryptographically strong random source (uuid's crypto/rand backing), never
// a seeded PRNG.
func MintPseudoUserID() string {
	return strings.ToUpper(uuid.NewString())
}

// IsPseudoUserID reports whether s has the canonical pseudo user id shape.
func IsPseudoUserID(s string) bool {
	return pseudoIDPattern.MatchString(s)
}
