// Package budget sizes generation prompts in estimated tokens.
//
// Backends tokenize differently, so the estimate is one token per four
// runes, rounded up. It runs high for English prose, which leaves headroom
// for each model's own message framing.
package budget

import "unicode/utf8"

const (
	runesPerToken = 4

	// DefaultMaxContextTokens is the default prompt budget. It fits
	// 8k-context models with room left for the answer.
	DefaultMaxContextTokens = 6000

	// separatorTokens is charged for the separator between two snippets.
	separatorTokens = 2
)

// Estimate returns the estimated token count of s.
func Estimate(s string) int {
	return (utf8.RuneCountInString(s) + runesPerToken - 1) / runesPerToken
}

// FitSnippets reports how many leading snippets fit in maxTokens after
// fixedTokens of prompt framing. The first snippet is always counted so a
// prompt never loses all of its context; callers decide whether an
// oversized framing is worth a warning.
func FitSnippets(fixedTokens int, snippets []string, maxTokens int) int {
	left := maxTokens - fixedTokens
	for i, s := range snippets {
		cost := Estimate(s)
		if i > 0 {
			cost += separatorTokens
			if cost > left {
				return i
			}
		}
		left -= cost
	}
	return len(snippets)
}
