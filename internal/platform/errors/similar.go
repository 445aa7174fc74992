package errors

import "strings"

const (
	similarityThreshold = 0.7
	maxSimilar          = 5
	minLineLength       = 5
)

// SimilarLines returns up to five lines of content whose word sets have a
// Jaccard similarity of at least 0.7 with target. Lines are trimmed.
func SimilarLines(content, target string) []string {
	targetWords := wordSet(target)
	if len(targetWords) == 0 {
		return nil
	}
	var similar []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) < minLineLength {
			continue
		}
		if jaccard(targetWords, wordSet(trimmed)) >= similarityThreshold {
			similar = append(similar, trimmed)
			if len(similar) == maxSimilar {
				break
			}
		}
	}
	return similar
}

func wordSet(s string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
