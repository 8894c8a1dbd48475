package triage

import (
	"strings"
	"unicode"
)

// DefaultMaxMessageRunes bounds how much of a message is classified.
const DefaultMaxMessageRunes = 20000

var quoteFolder = strings.NewReplacer(
	"‘", "'", "’", "'", "‛", "'", "′", "'",
	"“", "\"", "”", "\"", "‟", "\"", "″", "\"",
	"«", "\"", "»", "\"",
)

// Normalize lower-cases a message, strips zero-width and control characters,
// folds typographic quotes to ASCII and collapses whitespace. Text beyond
// maxRunes is dropped (maxRunes <= 0 means DefaultMaxMessageRunes).
func Normalize(message string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxMessageRunes
	}
	message = quoteFolder.Replace(message)

	var b strings.Builder
	b.Grow(len(message))
	count := 0
	pendingSpace := false
	for _, r := range message {
		if count >= maxRunes {
			break
		}
		switch {
		case isZeroWidth(r):
			continue
		case unicode.IsSpace(r):
			pendingSpace = b.Len() > 0
			continue
		case unicode.IsControl(r), r == unicode.ReplacementChar:
			continue
		}
		if pendingSpace {
			b.WriteByte(' ')
			count++
			pendingSpace = false
			if count >= maxRunes {
				break
			}
		}
		b.WriteRune(unicode.ToLower(r))
		count++
	}
	return b.String()
}

func isZeroWidth(r rune) bool {
	switch r {
	case '\u200b', '\u200c', '\u200d', '\u2060', '\ufeff', '\u00ad':
		return true
	}
	return false
}
