package normalize

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minLineRunes = 10
	minHanRatio  = 0.7
)

// FilterLines keeps lines that read like Han prose: at least ten characters,
// some punctuation, and more than 70% Han characters. Order is preserved.
func FilterLines(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if keepLine(line) {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func keepLine(line string) bool {
	total := utf8.RuneCountInString(line)
	if total < minLineRunes {
		return false
	}
	han, punct := 0, false
	for _, r := range line {
		if unicode.Is(unicode.Han, r) {
			han++
		}
		if unicode.IsPunct(r) {
			punct = true
		}
	}
	return punct && float64(han) > minHanRatio*float64(total)
}
