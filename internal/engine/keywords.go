package engine

import "strings"

// keywordOverlap computes Jaccard similarity between the significant words of
// two texts. Words are lowercased and must be at least three characters; a
// pair with no significant words on either side scores 0.
func keywordOverlap(a, b string) float64 {
	wordsA := significantWords(a)
	wordsB := significantWords(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	intersection := 0
	for w := range wordsA {
		if _, ok := wordsB[w]; ok {
			intersection++
		}
	}
	union := len(wordsA) + len(wordsB) - intersection
	return float64(intersection) / float64(union)
}

func significantWords(text string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, field := range strings.Fields(strings.ToLower(text)) {
		word := strings.Trim(field, ".,!?;:'\"()[]")
		if len(word) >= 3 {
			words[word] = struct{}{}
		}
	}
	return words
}
