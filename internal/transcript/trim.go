// Package transcript post-processes recognized text for incremental display.
package transcript

import "strings"

// MaxTailRunes bounds a partial that has no sentence terminator.
const MaxTailRunes = 120

func isTerminator(r rune) bool {
	switch r {
	case '.', '?', '!', '…':
		return true
	}
	return false
}

// TrimPartial reduces text re-recognized from an overlapping window to its
// newest completed sentence, terminator included. Without any terminator it
// keeps the trailing MaxTailRunes runes.
func TrimPartial(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return ""
	}

	// [start, end) of the last sentence that ends in a terminator run.
	start, end := -1, -1
	sentenceStart := 0
	for i := 0; i < len(runes); {
		if !isTerminator(runes[i]) {
			i++
			continue
		}
		j := i
		for j < len(runes) && isTerminator(runes[j]) {
			j++
		}
		start, end = sentenceStart, j
		sentenceStart = j
		i = j
	}

	if end < 0 {
		if len(runes) <= MaxTailRunes {
			return string(runes)
		}
		return string(runes[len(runes)-MaxTailRunes:])
	}
	return strings.TrimSpace(string(runes[start:end]))
}
