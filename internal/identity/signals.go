package identity

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/meridian-labs/tether/pkg/types"
)

// lengthScale normalizes message-length differences in behavior scoring.
const lengthScale = 100.0

// Identifier extraction patterns: order codes (uppercase letters+digits or
// letters-hyphen-digits), long numeric sequences, and email addresses.
var (
	orderCodePattern  = regexp.MustCompile(`\b[A-Z]{2,}[0-9]{2,}[A-Z0-9]*\b`)
	hyphenCodePattern = regexp.MustCompile(`\b[A-Za-z]{2,}-[0-9]{2,}\b`)
	longNumberPattern = regexp.MustCompile(`\b[0-9]{10,}\b`)
	emailPattern      = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
)

// CosineSimilarity returns the cosine similarity of two vectors, clamped to
// [0,1]. A zero-norm vector on either side yields 0, never NaN.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// metadataSimilarity compares the {ip, geo, lang} fields that are present on
// both sides: matching fields over comparable fields. No comparable field
// means 0.
func metadataSimilarity(current, historical types.Metadata) float64 {
	type pair struct{ a, b string }
	fields := []pair{
		{current.IP, historical.IP},
		{current.Geo, historical.Geo},
		{current.Lang, historical.Lang},
	}

	comparable, matching := 0, 0
	for _, f := range fields {
		if f.a == "" || f.b == "" {
			continue
		}
		comparable++
		if f.a == f.b {
			matching++
		}
	}
	if comparable == 0 {
		return 0
	}
	return float64(matching) / float64(comparable)
}

// styleStats summarizes a speaker's writing style over a message set.
type styleStats struct {
	meanLength  float64 // mean message length in characters
	punctuation float64 // punctuation chars per character, in [0,1]
	capitals    float64 // uppercase letters per letter, in [0,1]
}

// computeStyle derives writing-style statistics for one side.
func computeStyle(messages []types.Message) (styleStats, bool) {
	if len(messages) == 0 {
		return styleStats{}, false
	}

	var totalChars, punctChars, letters, upperLetters int
	for _, msg := range messages {
		for _, r := range msg.Text {
			totalChars++
			if unicode.IsPunct(r) {
				punctChars++
			}
			if unicode.IsLetter(r) {
				letters++
				if unicode.IsUpper(r) {
					upperLetters++
				}
			}
		}
	}

	stats := styleStats{meanLength: float64(totalChars) / float64(len(messages))}
	if totalChars > 0 {
		stats.punctuation = float64(punctChars) / float64(totalChars)
	}
	if letters > 0 {
		stats.capitals = float64(upperLetters) / float64(letters)
	}
	return stats, true
}

// behaviorSimilarity compares writing style between the current and
// historical message sets. Each metric contributes 1 - normalized absolute
// difference; the result is the unweighted mean of the three metrics.
func behaviorSimilarity(current, historical []types.Message) float64 {
	cur, okCur := computeStyle(current)
	hist, okHist := computeStyle(historical)
	if !okCur || !okHist {
		return 0
	}

	lengthSim := 1 - math.Min(1, math.Abs(cur.meanLength-hist.meanLength)/lengthScale)
	punctSim := 1 - math.Abs(cur.punctuation-hist.punctuation)
	capsSim := 1 - math.Abs(cur.capitals-hist.capitals)

	return (lengthSim + punctSim + capsSim) / 3
}

// extractIdentifiers pulls structured identifiers out of text.
func extractIdentifiers(text string) map[string]struct{} {
	ids := make(map[string]struct{})
	for _, pattern := range []*regexp.Regexp{orderCodePattern, hyphenCodePattern, longNumberPattern, emailPattern} {
		for _, match := range pattern.FindAllString(text, -1) {
			ids[strings.ToLower(match)] = struct{}{}
		}
	}
	return ids
}

// ExtractIdentifiers returns the structured identifiers found in text
// (order codes, long numeric sequences, email addresses), lowercased and
// sorted for stable output.
func ExtractIdentifiers(text string) []string {
	ids := extractIdentifiers(text)
	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// jaccard returns |a ∩ b| / |a ∪ b|, or 0 when both sets are empty.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for id := range a {
		if _, ok := b[id]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// identifierOverlap extracts identifiers from the current text and each
// historical text and returns the maximum Jaccard similarity.
func identifierOverlap(currentText string, historicalTexts []string) float64 {
	current := extractIdentifiers(currentText)
	if len(current) == 0 {
		return 0
	}

	best := 0.0
	for _, hist := range historicalTexts {
		if sim := jaccard(current, extractIdentifiers(hist)); sim > best {
			best = sim
		}
	}
	return best
}
