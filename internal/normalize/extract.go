package normalize

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

var allowedInline = map[string]bool{
	"a": true,
	"b": true,
	"i": true,
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

// Link targets in these namespaces are navigation chrome, not prose.
var suppressedTargets = []string{"Template:", "File:", "API"}

var articlePathPrefixes = []string{"/index.php/", "/wiki/"}

type inlineFrame struct {
	tag     string
	allowed bool
}

// extractParagraphs walks the token stream and keeps text found inside <p>
// while every open inline element is allowed.
func extractParagraphs(src string) string {
	z := html.NewTokenizer(strings.NewReader(src))
	var (
		out    bytes.Buffer
		inPara bool
		stack  []inlineFrame
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return out.String()
		case html.StartTagToken:
			name, hasAttr := z.TagName()
			tag := string(name)
			if tag == "p" {
				inPara = true
				stack = stack[:0]
				continue
			}
			if !inPara || voidElements[tag] {
				continue
			}
			allowed := allowedInline[tag]
			if tag == "a" && hasAttr && suppressedLink(hrefOf(z)) {
				allowed = false
			}
			stack = append(stack, inlineFrame{tag: tag, allowed: allowed})
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "p" {
				if inPara {
					endParagraph(&out)
				}
				inPara = false
				stack = stack[:0]
				continue
			}
			stack = popTo(stack, tag)
		case html.TextToken:
			if inPara && contextAllowed(stack) {
				out.Write(z.Text())
			}
		}
	}
}

// endParagraph leaves exactly one newline after the paragraph.
func endParagraph(out *bytes.Buffer) {
	trimmed := bytes.TrimRight(out.Bytes(), " \t\r\n")
	out.Truncate(len(trimmed))
	if out.Len() > 0 {
		out.WriteByte('\n')
	}
}

func popTo(stack []inlineFrame, tag string) []inlineFrame {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].tag == tag {
			return stack[:i]
		}
	}
	return stack
}

func contextAllowed(stack []inlineFrame) bool {
	for _, f := range stack {
		if !f.allowed {
			return false
		}
	}
	return true
}

func hrefOf(z *html.Tokenizer) string {
	for {
		key, val, more := z.TagAttr()
		if string(key) == "href" {
			return string(val)
		}
		if !more {
			return ""
		}
	}
}

// suppressedLink reports whether href points at a template, file, or API page.
func suppressedLink(href string) bool {
	if href == "" {
		return false
	}
	u, err := url.Parse(href)
	if err != nil {
		return false
	}
	target := u.Query().Get("title")
	if target == "" {
		for _, prefix := range articlePathPrefixes {
			if strings.HasPrefix(u.Path, prefix) {
				target = strings.TrimPrefix(u.Path, prefix)
				break
			}
		}
	}
	for _, ns := range suppressedTargets {
		if strings.HasPrefix(target, ns) {
			return true
		}
	}
	return false
}
