package script

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Label derives a short content label from a segment: the first sentence with
// whitespace collapsed, cut to at most max runes with a trailing ellipsis.
func Label(segment string, max int) string {
	collapsed := strings.Join(strings.Fields(segment), " ")
	sentence := firstSentence(collapsed)
	return Truncate(sentence, max)
}

// Truncate shortens s to max runes, marking the cut with "...".
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	if max <= 3 {
		return string(runes[:max])
	}
	return strings.TrimRightFunc(string(runes[:max-3]), unicode.IsSpace) + "..."
}

func firstSentence(s string) string {
	for i, r := range s {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		end := i + utf8.RuneLen(r)
		if end == len(s) || s[end] == ' ' {
			return s[:end]
		}
	}
	return s
}
