package deduplication

import (
	"strings"
	"unicode/utf8"
)

// ContainmentRatio is the length ratio above which a title contained in another is
// scored by that ratio instead of by edit distance.
const ContainmentRatio = 0.7

// Similarity scores two strings in [0, 1] after lowercasing and trimming.
//
// Identical strings score 1.0. When one contains the other and their rune-length
// ratio exceeds ContainmentRatio, the ratio is the score. Otherwise the score is
// 1 - levenshtein(a, b) / max(len(a), len(b)).
//
// Similarity is symmetric and returns 1.0 only for strings equal after normalization.
func Similarity(a, b string) float64 {
	a = normalize(a)
	b = normalize(b)
	if a == b {
		return 1.0
	}

	la := utf8.RuneCountInString(a)
	lb := utf8.RuneCountInString(b)
	shorter, longer := la, lb
	if shorter > longer {
		shorter, longer = longer, shorter
	}

	if strings.Contains(a, b) || strings.Contains(b, a) {
		ratio := float64(shorter) / float64(longer)
		if ratio > ContainmentRatio {
			return ratio
		}
	}

	return 1.0 - float64(levenshtein([]rune(a), []rune(b)))/float64(longer)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// levenshtein computes unit-cost edit distance with two rolling rows
func levenshtein(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
