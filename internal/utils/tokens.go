package utils

// Simple token estimation utilities.
// Used when no model tokenizer is configured; see session.HeuristicTokenizer.

// CharsPerToken is the heuristic ratio used by CountTokens.
const CharsPerToken = 4

// CountTokens estimates the number of tokens in the given text.
// We approximate 1 token ~= 4 characters (rough heuristic).
func CountTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	// Ensure at least 1 token for any non-empty text
	tokens := len([]rune(text)) / CharsPerToken
	if tokens == 0 {
		return 1
	}
	return tokens
}

// TokenBreakdown returns a simple breakdown map of labeled sections to token counts.
func TokenBreakdown(sections map[string]string, count func(string) int) map[string]int {
	if count == nil {
		count = CountTokens
	}
	out := make(map[string]int, len(sections))
	for k, v := range sections {
		out[k] = count(v)
	}
	return out
}
