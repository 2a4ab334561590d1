package util

// ApproxTokens estimates the token count of a text span using the 4-chars-per-
// token approximation. Chunk sizes, overlaps, and retrieval token budgets are
// all measured in this unit, so the approximation only has to be consistent,
// not exact.
func ApproxTokens(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + 3) / 4
}

// TokensToChars converts a token count into its character-window equivalent.
func TokensToChars(tokens int) int {
	return tokens * 4
}
