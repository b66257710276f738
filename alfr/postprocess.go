package alfr

import (
	"strings"
	"unicode/utf8"
)

// extractCompletion drops the echoed prompt from decoded text by cutting a
// prefix of the prompt's rune length, then cleans the rest. It reports false
// when decoded is not longer than the prompt.
//
// The cut is a length heuristic: if decoding re-normalizes whitespace or
// characters, the boundary can land inside the prompt or the continuation.
func extractCompletion(decoded, prompt string) (string, bool) {
	promptLen := utf8.RuneCountInString(prompt)
	if utf8.RuneCountInString(decoded) <= promptLen {
		return "", false
	}

	rest := []rune(decoded)[promptLen:]
	return CleanJapanese(strings.TrimSpace(string(rest))), true
}

// CleanJapanese removes ASCII spaces and collapses runs of 。 to one.
func CleanJapanese(s string) string {
	s = strings.ReplaceAll(s, " ", "")
	for strings.Contains(s, "。。") {
		s = strings.ReplaceAll(s, "。。", "。")
	}
	return s
}
