package normalize

import (
	"regexp"
	"strings"
)

const (
	protectOpen  = "\uE000"
	protectClose = "\uE001"
)

var (
	guillemets = strings.NewReplacer("<<", "«", ">>", "»")

	// tagPattern matches one open, close, or self-closing tag on a single line.
	tagPattern = regexp.MustCompile(`<\s*(/?)\s*([A-Za-z][A-Za-z0-9]*)[^<>\n]*?(/?)\s*>`)

	hanParens     = regexp.MustCompile(`（(\p{Han}+)）`)
	innerAside    = regexp.MustCompile(`（[^（）]*）`)
	sectionHeader = regexp.MustCompile(`(?m)^[ \t]*==.+==[ \t]*(?:\n|$)`)

	spaceRun         = regexp.MustCompile(` {2,}`)
	ellipsisRun      = regexp.MustCompile(`\.{3,}|。{3,}`)
	spaceBeforeClose = regexp.MustCompile(` ([,，:：.。)）\]】»》])`)
	spaceAfterOpen   = regexp.MustCompile(`([\[【(（«《]) `)
	symbolOnlyLine   = regexp.MustCompile(`\n[^\p{L}\p{M}\p{N}\p{Pc}]+?\n`)
	commaRun         = regexp.MustCompile(`,{2,}`)
	wideCommaRun     = regexp.MustCompile(`，{2,}`)

	punctuationFixes = strings.NewReplacer(",.", ".", "，。", "。")
)

func mapGuillemets(s string) string {
	return guillemets.Replace(s)
}

type tagToken struct {
	start, end int
	name       string
	closing    bool
	selfClose  bool
}

// stripTags removes matched tag pairs together with their content, and bare
// orphan or self-closing tags. Pairs only match within one line.
func stripTags(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		// Tags nested inside attribute text only surface once the outer tag
		// is gone, so strip until the line settles.
		for {
			next := stripLineTags(line)
			if next == line {
				break
			}
			line = next
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}

func stripLineTags(line string) string {
	locs := tagPattern.FindAllStringSubmatchIndex(line, -1)
	if len(locs) == 0 {
		return line
	}
	tokens := make([]tagToken, 0, len(locs))
	for _, loc := range locs {
		tokens = append(tokens, tagToken{
			start:     loc[0],
			end:       loc[1],
			closing:   loc[3] > loc[2],
			name:      strings.ToLower(line[loc[4]:loc[5]]),
			selfClose: loc[7] > loc[6],
		})
	}

	removed := make([][2]int, 0, len(tokens))
	var open []int
	for idx, tok := range tokens {
		switch {
		case tok.selfClose && !tok.closing:
			removed = append(removed, [2]int{tok.start, tok.end})
		case !tok.closing:
			open = append(open, idx)
		default:
			match := -1
			for j := len(open) - 1; j >= 0; j-- {
				if tokens[open[j]].name == tok.name {
					match = j
					break
				}
			}
			if match < 0 {
				removed = append(removed, [2]int{tok.start, tok.end})
				continue
			}
			removed = append(removed, [2]int{tokens[open[match]].start, tok.end})
			open = open[:match]
		}
	}
	for _, idx := range open {
		removed = append(removed, [2]int{tokens[idx].start, tokens[idx].end})
	}
	return cutRanges(line, removed)
}

// cutRanges drops every [start,end) span from s; spans may overlap.
func cutRanges(s string, spans [][2]int) string {
	drop := make([]bool, len(s))
	for _, span := range spans {
		for i := span[0]; i < span[1]; i++ {
			drop[i] = true
		}
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if !drop[i] {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// stripAsides removes full-width parenthesized asides, keeping spans that
// contain nothing but Han characters.
func stripAsides(s string) string {
	if !strings.Contains(s, "（") {
		return s
	}
	out := hanParens.ReplaceAllString(s, protectOpen+"${1}"+protectClose)
	for {
		next := innerAside.ReplaceAllString(out, "")
		if next == out {
			break
		}
		out = next
	}
	out = strings.ReplaceAll(out, protectOpen, "（")
	return strings.ReplaceAll(out, protectClose, "）")
}

func stripSectionHeaders(s string) string {
	return sectionHeader.ReplaceAllString(s, "")
}

// CleanText normalizes whitespace and punctuation in plain text.
func CleanText(s string) string {
	out := mapGuillemets(s)
	out = strings.ReplaceAll(out, "\t", " ")
	out = spaceRun.ReplaceAllString(out, " ")
	out = ellipsisRun.ReplaceAllString(out, "…")
	out = spaceBeforeClose.ReplaceAllString(out, "$1")
	out = spaceAfterOpen.ReplaceAllString(out, "$1")
	for {
		next := symbolOnlyLine.ReplaceAllString(out, "\n")
		if next == out {
			break
		}
		out = next
	}
	out = commaRun.ReplaceAllString(out, ",")
	out = wideCommaRun.ReplaceAllString(out, "，")
	return punctuationFixes.Replace(out)
}
