package script

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Kind selects how a script is rendered.
type Kind string

const (
	// KindShort produces one portrait artifact per delimited segment.
	KindShort Kind = "short"
	// KindRegular produces exactly one landscape artifact.
	KindRegular Kind = "regular"
)

// ErrEmptyScript is returned when no non-empty segment remains after splitting.
var ErrEmptyScript = errors.New("script contains no content")

// ParseKind normalizes a user supplied video type.
func ParseKind(value string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case KindShort:
		return KindShort, nil
	case KindRegular:
		return KindRegular, nil
	default:
		return "", fmt.Errorf("unknown video type %q", value)
	}
}

// Split returns the ordered, trimmed, non-empty segments of text.
func Split(text, delimiter string, kind Kind) ([]string, error) {
	text = norm.NFC.String(text)
	if kind == KindRegular {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil, ErrEmptyScript
		}
		return []string{trimmed}, nil
	}

	pattern := delimiterPattern(delimiter)
	var parts []string
	if pattern == nil {
		parts = []string{text}
	} else {
		parts = pattern.Split(text, -1)
	}

	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			segments = append(segments, trimmed)
		}
	}
	if len(segments) == 0 {
		return nil, ErrEmptyScript
	}
	return segments, nil
}

// Count reports how many segments Split would produce, or zero on error.
func Count(text, delimiter string, kind Kind) int {
	segments, err := Split(text, delimiter, kind)
	if err != nil {
		return 0
	}
	return len(segments)
}

// delimiterPattern matches the delimiter words separated by any run of
// whitespace. Surrounding whitespace is consumed by the segment trim.
func delimiterPattern(delimiter string) *regexp.Regexp {
	words := strings.Fields(norm.NFC.String(delimiter))
	if len(words) == 0 {
		return nil
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(strings.Join(quoted, `\s+`))
}
