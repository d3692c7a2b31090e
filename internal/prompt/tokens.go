package prompt

// EstimateTokens approximates the token count of text at roughly four
// characters per token. Any non-empty text counts as at least one token.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	tokens := len([]rune(text)) / 4
	if tokens == 0 {
		return 1
	}
	return tokens
}
