package quizengine

import "strings"

// sentenceEnd is punctuation a typed answer may carry at its very end
const sentenceEnd = ".!?;:"

// normalizeAnswer casefolds, collapses whitespace and trims trailing
// sentence punctuation. Signs, decimal points and separators inside the
// answer are kept, so "-40" and "40" stay different.
func normalizeAnswer(s string) string {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	s = strings.TrimRight(s, sentenceEnd)
	return strings.TrimSpace(s)
}

// sameAnswer reports an exact match after normalization
func sameAnswer(a, b string) bool {
	na := normalizeAnswer(a)
	return na != "" && na == normalizeAnswer(b)
}
