package tokencount

import "strings"

// Estimate approximates the token count of text without a model tokenizer.
// Counts whitespace-separated words for ASCII text and one token per rune
// for anything beyond ASCII, which overshoots slightly for CJK and keeps
// budget checks on the safe side.
func Estimate(text string) int {
	count := 0
	for _, r := range text {
		if r > 127 {
			count++
		}
	}
	count += len(strings.Fields(text))
	if count == 0 && len(text) > 0 {
		return 1
	}
	return count
}

// EstimateAll sums Estimate over a set of texts.
func EstimateAll(texts []string) int {
	total := 0
	for _, t := range texts {
		total += Estimate(t)
	}
	return total
}
