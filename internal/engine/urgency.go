package engine

import (
	"math"
	"regexp"

	"github.com/meridian-labs/tether/pkg/types"
)

// Urgency factor weights. They sum to 1.0.
const (
	urgencyWeightFrustration   = 0.35
	urgencyWeightRepetition    = 0.30
	urgencyWeightTimeSensitive = 0.20
	urgencyWeightEscalation    = 0.15
)

// Level cut points on the combined score.
const (
	urgencyCutMedium   = 0.30
	urgencyCutHigh     = 0.60
	urgencyCutCritical = 0.85
)

// repetitionThreshold is the keyword-overlap similarity above which a
// historical text counts as a repeat of the current message.
const repetitionThreshold = 0.30

var timeSensitivePattern = regexp.MustCompile(`(?i)\b(urgent|urgently|immediately|asap|right now|today|deadline|delayed|late|still waiting|running out)\b`)

var escalationPattern = regexp.MustCompile(`(?i)\b(manager|supervisor|complaint|unacceptable|ridiculous|lawyer|legal|sue|escalate|speak to a human)\b`)

// UrgencyEstimator scores how urgently a message needs attention.
// The factors are fixed heuristics behind this struct so they can be replaced
// with learned signals without touching the pipeline.
type UrgencyEstimator struct{}

// NewUrgencyEstimator creates an estimator.
func NewUrgencyEstimator() *UrgencyEstimator {
	return &UrgencyEstimator{}
}

// Estimate combines four factors into one urgency score:
// frustration-vector magnitude, repetition against history, presence of
// time-sensitive keywords, and escalation-keyword count. The combined score
// is clamped to [0,1] and bucketed into a level.
func (u *UrgencyEstimator) Estimate(text string, embedding *types.MultiVectorEmbedding, history []string) types.UrgencyScore {
	factors := map[string]float64{
		"frustration":         frustrationFactor(embedding),
		"repetition":          repetitionFactor(text, history),
		"time_sensitive":      timeSensitiveFactor(text),
		"escalation_keywords": escalationFactor(text),
	}

	score := factors["frustration"]*urgencyWeightFrustration +
		factors["repetition"]*urgencyWeightRepetition +
		factors["time_sensitive"]*urgencyWeightTimeSensitive +
		factors["escalation_keywords"]*urgencyWeightEscalation
	score = clamp01(score)

	return types.UrgencyScore{
		Score:   score,
		Level:   urgencyLevel(score),
		Factors: factors,
	}
}

// frustrationFactor is the magnitude of the frustration vector, clamped.
// Providers that normalize their vectors yield 1.0 here; the factor carries
// signal only for providers whose tone-vector norm scales with intensity.
func frustrationFactor(embedding *types.MultiVectorEmbedding) float64 {
	if embedding == nil || len(embedding.Frustration) == 0 {
		return 0
	}
	var sum float64
	for _, v := range embedding.Frustration {
		sum += float64(v) * float64(v)
	}
	return clamp01(math.Sqrt(sum))
}

// repetitionFactor counts how many historical texts look like repeats of the
// current message. Each repeat contributes 0.5, capped at 1.0.
func repetitionFactor(text string, history []string) float64 {
	repeats := 0
	for _, h := range history {
		if keywordOverlap(text, h) >= repetitionThreshold {
			repeats++
		}
	}
	return math.Min(1, float64(repeats)*0.5)
}

// timeSensitiveFactor is binary: any time-sensitive keyword present scores
// the full factor.
func timeSensitiveFactor(text string) float64 {
	if timeSensitivePattern.MatchString(text) {
		return 1
	}
	return 0
}

// escalationFactor scales with the number of escalation-keyword occurrences,
// 0.25 each, capped at 1.0.
func escalationFactor(text string) float64 {
	matches := escalationPattern.FindAllString(text, -1)
	return math.Min(1, float64(len(matches))*0.25)
}

func urgencyLevel(score float64) types.UrgencyLevel {
	switch {
	case score >= urgencyCutCritical:
		return types.UrgencyCritical
	case score >= urgencyCutHigh:
		return types.UrgencyHigh
	case score >= urgencyCutMedium:
		return types.UrgencyMedium
	default:
		return types.UrgencyLow
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
