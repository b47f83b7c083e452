package identity

import (
	"testing"

	"github.com/meridian-labs/tether/pkg/types"
)

func TestMintPseudoUserID_Format(t *testing.T) {
	id := MintPseudoUserID()
	if !IsPseudoUserID(id) {
		t.Errorf("minted id %q does not match the 8-4-4-4-12 uppercase hex pattern", id)
	}
}

func TestMintPseudoUserID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := MintPseudoUserID()
		if seen[id] {
			t.Fatalf("duplicate pseudo user id minted: %s", id)
		}
		seen[id] = true
	}
}

func TestResolve_NoCandidatesMints(t *testing.T) {
	r := NewResolver(nil)
	emb := &types.MultiVectorEmbedding{Intent: []float32{1, 0, 0}}

	first := r.Resolve(emb, types.Metadata{}, nil, nil)
	second := r.Resolve(emb, types.Metadata{}, nil, nil)

	if first.Matched || second.Matched {
		t.Error("resolutions without candidates must not be matches")
	}
	if !IsPseudoUserID(first.PseudoUserID) || !IsPseudoUserID(second.PseudoUserID) {
		t.Error("minted ids must match the canonical pattern")
	}
	if first.PseudoUserID == second.PseudoUserID {
		t.Error("two successive mints returned the same id")
	}
}

func TestResolve_PerfectSignalsMatchFirstCandidate(t *testing.T) {
	r := NewResolver(nil)

	intent := []float32{0.5, 0.5, 0}
	meta := types.Metadata{IP: "9.9.9.9", Geo: "DE", Lang: "de"}
	messages := []types.Message{{Text: "Where is order AB123? Please check."}}

	candidates := []Candidate{
		{
			PseudoUserID: "AAAAAAAA-0000-1111-2222-333333333333",
			IntentVector: intent,
			Metadata:     meta,
			Messages:     messages,
			Text:         "Where is order AB123? Please check.",
		},
	}

	res := r.Resolve(&types.MultiVectorEmbedding{Intent: intent}, meta, messages, candidates)
	if !res.Matched {
		t.Fatalf("expected match, got mint with score %+v", res.Score)
	}
	if res.PseudoUserID != candidates[0].PseudoUserID {
		t.Errorf("expected first candidate's id, got %s", res.PseudoUserID)
	}
	if res.Score.Combined <= MatchThreshold {
		t.Errorf("expected combined score above %v, got %v", MatchThreshold, res.Score.Combined)
	}
}

func TestResolve_ZeroSignalsMint(t *testing.T) {
	r := NewResolver(nil)

	candidates := []Candidate{
		{
			PseudoUserID: "BBBBBBBB-0000-1111-2222-333333333333",
			IntentVector: []float32{0, 1, 0}, // orthogonal to incoming
			Metadata:     types.Metadata{},   // nothing comparable
			Messages:     nil,                // no behavioral signal
			Text:         "",                 // no identifiers
		},
	}

	res := r.Resolve(&types.MultiVectorEmbedding{Intent: []float32{1, 0, 0}},
		types.Metadata{}, []types.Message{{Text: "hello there"}}, candidates)

	if res.Matched {
		t.Fatal("expected mint for all-zero signals")
	}
	if res.Score.Combined != 0 {
		t.Errorf("expected combined score 0.0, got %v", res.Score.Combined)
	}
	if !IsPseudoUserID(res.PseudoUserID) {
		t.Errorf("minted id %q does not match the canonical pattern", res.PseudoUserID)
	}
}

func TestResolve_ScoringFailureFallsBackToMint(t *testing.T) {
	r := NewResolver(nil)

	// A nil embedding with candidates present exercises the defensive paths;
	// resolution must still produce a usable identity.
	res := r.Resolve(nil, types.Metadata{}, nil, []Candidate{{PseudoUserID: "X"}})
	if res.PseudoUserID == "" {
		t.Fatal("resolution must always produce a pseudo user id")
	}
}

func TestResolve_ThresholdIsStrict(t *testing.T) {
	r := NewResolver(nil)

	// Metadata 1.0 (0.25) + vector 1.0 (0.35) + behavior 1.0 (0.20) = 0.80,
	// identifier 0: below the 0.82 threshold, so the resolver must mint.
	intent := []float32{1, 0}
	meta := types.Metadata{IP: "1.1.1.1", Geo: "DE", Lang: "de"}
	messages := []types.Message{{Text: "short message, no codes"}}

	candidates := []Candidate{{
		PseudoUserID: "CCCCCCCC-0000-1111-2222-333333333333",
		IntentVector: intent,
		Metadata:     meta,
		Messages:     messages,
		Text:         "short message, no codes",
	}}

	res := r.Resolve(&types.MultiVectorEmbedding{Intent: intent}, meta, messages, candidates)
	if res.Matched {
		t.Fatalf("score %v must not clear the strict threshold %v", res.Score.Combined, MatchThreshold)
	}
}
