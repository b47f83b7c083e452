package identity

import (
	"log/slog"

	"github.com/meridian-labs/tether/pkg/types"
)

// Signal weights. They sum to 1.0; the combined score lives in [0,1].
const (
	weightVector     = 0.35
	weightMetadata   = 0.25
	weightBehavior   = 0.20
	weightIdentifier = 0.20
)

// MatchThreshold is the decision boundary: a combined score strictly above it
// links the incoming session to the first historical candidate.
const MatchThreshold = 0.82

// Candidate is one historical record under consideration. Callers pass
// candidates pre-ordered by relevance/recency; the resolver does not re-rank.
type Candidate struct {
	PseudoUserID string
	IntentVector []float32
	Metadata     types.Metadata
	Messages     []types.Message
	Text         string
}

// MatchScore is the resolver's scoring breakdown for one resolution.
type MatchScore struct {
	Combined   float64
	Vector     float64
	Metadata   float64
	Behavior   float64
	Identifier float64
}

// Resolution is the resolver output: the pseudo user id, whether it was
// matched to an existing identity or freshly minted, and the score that
// decided it.
type Resolution struct {
	PseudoUserID string
	Matched      bool
	Score        MatchScore
}

// Resolver scores incoming sessions against historical candidates.
// The scoring functions are fixed heuristics today; they sit behind this
// struct so they can be swapped for learned models without touching the
// pipeline.
type Resolver struct {
	logger *slog.Logger
}

// NewResolver creates a resolver.
func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{logger: logger}
}

// Resolve decides which pseudo-identity the incoming turn belongs to.
//
// With no candidates it mints immediately. Otherwise it combines four
// similarity signals with fixed weights and links to the first candidate when
// the combined score strictly exceeds MatchThreshold. Identity linking is
// best-effort, not safety-critical: any internal failure during scoring falls
// back to minting a new identity instead of failing the pipeline.
func (r *Resolver) Resolve(embedding *types.MultiVectorEmbedding, metadata types.Metadata,
	currentMessages []types.Message, candidates []Candidate) (res Resolution) {

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("identity scoring panicked, minting new identity", "panic", rec)
			res = Resolution{PseudoUserID: MintPseudoUserID(), Matched: false}
		}
	}()

	if len(candidates) == 0 {
		return Resolution{PseudoUserID: MintPseudoUserID(), Matched: false}
	}

	score := r.score(embedding, metadata, currentMessages, candidates)
	if score.Combined > MatchThreshold {
		return Resolution{
			PseudoUserID: candidates[0].PseudoUserID,
			Matched:      true,
			Score:        score,
		}
	}
	return Resolution{PseudoUserID: MintPseudoUserID(), Matched: false, Score: score}
}

// score computes the four similarity signals and their weighted combination.
//
// Vector similarity averages over all candidates' intent vectors. Metadata is
// compared against the first (most relevant) candidate. Behavior compares the
// current messages against the union of candidate message histories, and
// identifier overlap takes the best match across candidate texts.
func (r *Resolver) score(embedding *types.MultiVectorEmbedding, metadata types.Metadata,
	currentMessages []types.Message, candidates []Candidate) MatchScore {

	var intent []float32
	if embedding != nil {
		intent = embedding.Intent
	}

	var vectorSum float64
	var historicalMessages []types.Message
	historicalTexts := make([]string, 0, len(candidates))
	for _, c := range candidates {
		vectorSum += CosineSimilarity(intent, c.IntentVector)
		historicalMessages = append(historicalMessages, c.Messages...)
		if c.Text != "" {
			historicalTexts = append(historicalTexts, c.Text)
		}
	}

	score := MatchScore{
		Vector:     vectorSum / float64(len(candidates)),
		Metadata:   metadataSimilarity(metadata, candidates[0].Metadata),
		Behavior:   behaviorSimilarity(currentMessages, historicalMessages),
		Identifier: identifierOverlap(currentText(currentMessages), historicalTexts),
	}
	score.Combined = score.Vector*weightVector +
		score.Metadata*weightMetadata +
		score.Behavior*weightBehavior +
		score.Identifier*weightIdentifier
	return score
}

// currentText concatenates the incoming message texts for identifier
// extraction.
func currentText(messages []types.Message) string {
	text := ""
	for _, m := range messages {
		if text != "" {
			text += " "
		}
		text += m.Text
	}
	return text
}
