package identity

import (
	"math"
	"testing"

	"github.com/meridian-labs/tether/pkg/types"
)

func TestCosineSimilarity_IdenticalVectors(t *testing.T) {
	v := []float32{0.3, -0.2, 0.9}
	if got := CosineSimilarity(v, v); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("identical vectors: expected 1.0, got %f", got)
	}
}

func TestCosineSimilarity_OrthogonalVectors(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}
	if got := CosineSimilarity(a, b); got != 0 {
		t.Errorf("orthogonal vectors: expected 0, got %f", got)
	}
}

func TestCosineSimilarity_ZeroVector(t *testing.T) {
	zero := []float32{0, 0, 0}
	v := []float32{1, 2, 3}
	if got := CosineSimilarity(zero, v); got != 0 {
		t.Errorf("zero vector lhs: expected 0 (not NaN), got %f", got)
	}
	if got := CosineSimilarity(v, zero); got != 0 {
		t.Errorf("zero vector rhs: expected 0 (not NaN), got %f", got)
	}
}

func TestCosineSimilarity_MismatchedLengths(t *testing.T) {
	if got := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}); got != 0 {
		t.Errorf("mismatched lengths: expected 0, got %f", got)
	}
}

func TestMetadataSimilarity(t *testing.T) {
	cases := []struct {
		name     string
		current  types.Metadata
		hist     types.Metadata
		expected float64
	}{
		{
			"all match",
			types.Metadata{IP: "1.2.3.4", Geo: "DE", Lang: "de"},
			types.Metadata{IP: "1.2.3.4", Geo: "DE", Lang: "de"},
			1.0,
		},
		{
			"partial match over comparable fields",
			types.Metadata{IP: "1.2.3.4", Geo: "DE"},
			types.Metadata{IP: "1.2.3.4", Geo: "FR"},
			0.5,
		},
		{
			"missing fields are not comparable",
			types.Metadata{IP: "1.2.3.4"},
			types.Metadata{Geo: "DE"},
			0.0,
		},
		{
			"no comparable fields at all",
			types.Metadata{},
			types.Metadata{},
			0.0,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := metadataSimilarity(tc.current, tc.hist); math.Abs(got-tc.expected) > 1e-9 {
				t.Errorf("expected %f, got %f", tc.expected, got)
			}
		})
	}
}

func TestBehaviorSimilarity_IdenticalStyle(t *testing.T) {
	msgs := []types.Message{
		{Text: "Hello, I need help with my order!"},
		{Text: "It has not arrived yet."},
	}
	if got := behaviorSimilarity(msgs, msgs); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("identical message sets: expected 1.0, got %f", got)
	}
}

func TestBehaviorSimilarity_EmptySide(t *testing.T) {
	msgs := []types.Message{{Text: "hello"}}
	if got := behaviorSimilarity(msgs, nil); got != 0 {
		t.Errorf("empty historical side: expected 0, got %f", got)
	}
	if got := behaviorSimilarity(nil, msgs); got != 0 {
		t.Errorf("empty current side: expected 0, got %f", got)
	}
}

func TestExtractIdentifiers(t *testing.T) {
	text := "Order AB123 and ORD-4567, card 12345678901234, mail me at jo.doe@example.com"
	ids := extractIdentifiers(text)

	for _, want := range []string{"ab123", "ord-4567", "12345678901234", "jo.doe@example.com"} {
		if _, ok := ids[want]; !ok {
			t.Errorf("expected identifier %q to be extracted, got %v", want, ids)
		}
	}
}

func TestIdentifierOverlap(t *testing.T) {
	current := "my order AB123 is missing"

	if got := identifierOverlap(current, []string{"what about AB123 again"}); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("same identifier set: expected 1.0, got %f", got)
	}
	if got := identifierOverlap(current, []string{"no identifiers here"}); got != 0 {
		t.Errorf("no overlap: expected 0, got %f", got)
	}
	if got := identifierOverlap("no identifiers", []string{"AB123"}); got != 0 {
		t.Errorf("no current identifiers: expected 0, got %f", got)
	}

	// Max over historical texts, not the mean.
	got := identifierOverlap(current, []string{"nothing", "AB123 found"})
	if math.Abs(got-1.0) > 1e-9 {
		t.Errorf("expected max over historical texts (1.0), got %f", got)
	}
}
