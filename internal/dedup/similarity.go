package dedup

import "math"

// Jaccard returns the ratio of shared distinct tokens to total distinct
// tokens across the two sequences. Two empty sequences score 0.0 rather
// than dividing by zero.
func Jaccard(tokensA, tokensB []string) float64 {
	setA := distinct(tokensA)
	setB := distinct(tokensB)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for token := range setA {
		if _, ok := setB[token]; ok {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// Cosine returns the cosine similarity between the term-frequency vectors
// of the two sequences over their combined vocabulary. A zero-magnitude
// vector on either side yields 0.0.
func Cosine(tokensA, tokensB []string) float64 {
	freqA := termFrequencies(tokensA)
	freqB := termFrequencies(tokensB)
	if len(freqA) == 0 || len(freqB) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for term, countA := range freqA {
		normA += float64(countA * countA)
		if countB, ok := freqB[term]; ok {
			dot += float64(countA * countB)
		}
	}
	for _, countB := range freqB {
		normB += float64(countB * countB)
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func distinct(tokens []string) map[string]struct{} {
	if len(tokens) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		set[token] = struct{}{}
	}
	return set
}

func termFrequencies(tokens []string) map[string]int {
	if len(tokens) == 0 {
		return nil
	}
	freq := make(map[string]int, len(tokens))
	for _, token := range tokens {
		freq[token]++
	}
	return freq
}
