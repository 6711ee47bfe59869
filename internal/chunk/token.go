package chunk

import "strings"

// EstimateTokens approximates the token count of text at 1.33 tokens per word
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	tokens := int(float64(words) * 1.33)
	if tokens < 1 && len(strings.TrimSpace(text)) > 0 {
		tokens = 1
	}
	return tokens
}

// MaxWordsForTokens returns the largest word count whose estimate fits in tokens
func MaxWordsForTokens(tokens int) int {
	if tokens <= 0 {
		return 0
	}
	return int(float64(tokens) / 1.33)
}
