package engine

import (
	"regexp"

	"github.com/meridian-labs/tether/pkg/types"
)

// problemIndicatorPattern gates extraction: no indicator, no problem.
var problemIndicatorPattern = regexp.MustCompile(`(?i)\b(problem|issue|broken|not working|doesn't work|failed|failing|error|wrong|missing|delayed|late|damaged|defective|charged|overcharged|refund|cancel|complaint|unacceptable|lost|can't|cannot|unable|stuck|locked)\b`)

// categoryPatterns classify a problem by first match, in this order.
var categoryPatterns = []struct {
	category types.ProblemCategory
	pattern  *regexp.Regexp
}{
	{types.CategoryDelivery, regexp.MustCompile(`(?i)\b(delivery|shipping|shipment|package|parcel|order|delayed|tracking|courier)\b`)},
	{types.CategoryBilling, regexp.MustCompile(`(?i)\b(charge|charged|overcharged|bill|billing|payment|invoice|subscription)\b`)},
	{types.CategoryRefund, regexp.MustCompile(`(?i)\b(refund|money back|reimburse|return)\b`)},
	{types.CategoryProductDefect, regexp.MustCompile(`(?i)\b(broken|defective|damaged|faulty|doesn't work|not working|stopped working)\b`)},
	{types.CategoryAccountAccess, regexp.MustCompile(`(?i)\b(login|log in|sign in|password|locked|account|access|verification)\b`)},
	{types.CategoryTechnical, regexp.MustCompile(`(?i)\b(error|bug|crash|crashes|glitch|website|app|technical)\b`)},
}

// humanRequiredPattern marks problems an automated agent must hand off,
// regardless of any agent-solvable signal.
var humanRequiredPattern = regexp.MustCompile(`(?i)\b(manager|supervisor|human|real person|representative|lawyer|legal|sue)\b`)

// criticalKeywordPattern raises criticality when present.
var criticalKeywordPattern = regexp.MustCompile(`(?i)\b(urgent|critical|emergency|immediately|asap|unacceptable|lawyer|legal)\b`)

// occurrenceThreshold is the keyword-overlap similarity above which a
// historical text counts as an earlier occurrence of the same problem.
const occurrenceThreshold = 0.40

// maxDescriptionLength bounds the problem description carried on tickets.
const maxDescriptionLength = 200

// ProblemExtractor identifies and scores the problem a message describes.
// Classification is keyword-driven; the extractor sits behind this struct so
// the heuristics can be swapped for a learned classifier.
type ProblemExtractor struct{}

// NewProblemExtractor creates an extractor.
func NewProblemExtractor() *ProblemExtractor {
	return &ProblemExtractor{}
}

// Extract returns the problem described by text, or nil when the text carries
// no problem indicator.
//
// Criticality starts from the urgency score, +0.3 when the problem is not
// agent-solvable, +0.2 when similar history exists, +0.2 when critical
// keywords are present, clamped to [0,1]. Occurrences counts the current
// message plus every historical text whose keyword overlap reaches the
// occurrence threshold.
func (x *ProblemExtractor) Extract(text string, urgency types.UrgencyScore, history []string) *types.ExtractedProblem {
	if !problemIndicatorPattern.MatchString(text) {
		return nil
	}

	category := classify(text)
	solvable := canAgentSolve(text, urgency.Level)
	occurrences := 1 + countOccurrences(text, history)

	criticality := urgency.Score
	if !solvable {
		criticality += 0.3
	}
	if occurrences > 1 {
		criticality += 0.2
	}
	if criticalKeywordPattern.MatchString(text) {
		criticality += 0.2
	}

	return &types.ExtractedProblem{
		Category:      category,
		Description:   truncate(text, maxDescriptionLength),
		Criticality:   clamp01(criticality),
		CanAgentSolve: solvable,
		Occurrences:   occurrences,
	}
}

func classify(text string) types.ProblemCategory {
	for _, entry := range categoryPatterns {
		if entry.pattern.MatchString(text) {
			return entry.category
		}
	}
	return types.CategoryOther
}

// canAgentSolve is false when the text demands a human or when urgency has
// already reached high; the human-required pattern overrides everything else.
func canAgentSolve(text string, level types.UrgencyLevel) bool {
	if humanRequiredPattern.MatchString(text) {
		return false
	}
	if level.AtLeast(types.UrgencyHigh) {
		return false
	}
	return true
}

func countOccurrences(text string, history []string) int {
	count := 0
	for _, h := range history {
		if keywordOverlap(text, h) >= occurrenceThreshold {
			count++
		}
	}
	return count
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
