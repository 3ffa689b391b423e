// Package normalize turns rendered wiki HTML into cleaned plain text.
//
// Extraction keeps only paragraph text reachable through an allowlist of
// inline elements. The cleanup pass then removes leftover markup, editorial
// asides, and punctuation noise. An optional strict filter keeps only lines
// that look like well-formed Han prose.
package normalize

import "strings"

// Options tunes normalization.
type Options struct {
	// Strict enables the line-level Han prose filter.
	Strict bool
}

// Normalize extracts paragraph text from html and cleans it. An empty result
// means the page has no usable content.
func Normalize(html string, opts Options) string {
	return Clean(extractParagraphs(html), opts)
}

// Clean applies the post-extraction cleanup to plain text until it stops
// changing, so Clean(Clean(x)) == Clean(x). The loop terminates because no
// step lengthens its input and every rewrite is one-directional.
func Clean(text string, opts Options) string {
	out := text
	for {
		next := cleanOnce(out, opts)
		if next == out {
			return out
		}
		out = next
	}
}

func cleanOnce(text string, opts Options) string {
	out := mapGuillemets(text)
	out = stripTags(out)
	out = stripAsides(out)
	out = stripSectionHeaders(out)
	out = CleanText(out)
	if opts.Strict {
		out = FilterLines(out)
	}
	return strings.TrimSpace(out)
}
