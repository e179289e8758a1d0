package utils

import (
	"strings"
	"unicode/utf8"
)

// Telegram limits
const (
	MaxCallbackAnswerLen = 200
	MaxMessageLen        = 4096
)

// Truncate cuts s to at most n runes, marking the cut with an ellipsis
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}

// SplitMessage breaks long text (e.g. stack traces) into chunks Telegram accepts
func SplitMessage(s string, n int) []string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return []string{s}
	}

	var chunks []string
	var current strings.Builder
	count := 0
	for _, line := range strings.SplitAfter(s, "\n") {
		for utf8.RuneCountInString(line) > n {
			if count > 0 {
				chunks = append(chunks, current.String())
				current.Reset()
				count = 0
			}
			runes := []rune(line)
			chunks = append(chunks, string(runes[:n]))
			line = string(runes[n:])
		}
		lineLen := utf8.RuneCountInString(line)
		if count+lineLen > n {
			chunks = append(chunks, current.String())
			current.Reset()
			count = 0
		}
		current.WriteString(line)
		count += lineLen
	}
	if count > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
