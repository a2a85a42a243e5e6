package cleaner

import "unicode/utf8"

// EstimateTokens approximates a token count as runes/3, rounding up to 1
// for non-empty text. It is only used for logging prompt sizes.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	if n < 3 {
		return 1
	}
	return n / 3
}
