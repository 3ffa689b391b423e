package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeKeepsParagraphText(t *testing.T) {
	t.Parallel()

	html := `<div class="mw-parser-output">
<table class="infobox"><tr><td>資訊框</td></tr></table>
<p>臺北市是<b>中華民國</b>的首都，位於<a href="/wiki/%E5%8F%B0%E7%81%A3">臺灣</a>北部。
</p>
<h2><span class="mw-headline">歷史</span></h2>
<p>清朝時期設立<i>臺北府</i>。</p>
</div>`

	got := Normalize(html, Options{})
	require.Equal(t, "臺北市是中華民國的首都，位於臺灣北部。\n清朝時期設立臺北府。", got)
}

func TestNormalizeSuppressesTemplateAnchor(t *testing.T) {
	t.Parallel()

	html := `<p>前文<a href="/index.php?title=Template:X">模板</a>後文</p>`
	require.Equal(t, "前文後文", Normalize(html, Options{}))
}

func TestNormalizeSuppressesDisallowedInline(t *testing.T) {
	t.Parallel()

	html := `<p>正文<sup class="reference"><a href="#cite-1">[1]</a></sup>結束<span>隱藏</span>。</p>`
	require.Equal(t, "正文結束。", Normalize(html, Options{}))
}

func TestNormalizeVoidElementsDoNotChangeContext(t *testing.T) {
	t.Parallel()

	html := `<p>第一行<br>第二行<img src="x.png" alt="圖">結束</p>`
	require.Equal(t, "第一行第二行結束", Normalize(html, Options{}))
}

func TestNormalizeParagraphNewlines(t *testing.T) {
	t.Parallel()

	html := "<p>甲\n\n</p><p></p><p>乙</p>\n<p>丙 </p>"
	require.Equal(t, "甲\n乙\n丙", Normalize(html, Options{}))
}

func TestNormalizeIgnoresTextOutsideParagraphs(t *testing.T) {
	t.Parallel()

	require.Empty(t, Normalize(`<ul><li>列表</li></ul><div>區塊</div>`, Options{}))
}

func TestNormalizeUnescapesEntities(t *testing.T) {
	t.Parallel()

	require.Equal(t, "«test»", Normalize(`<p>&lt;&lt;test&gt;&gt;</p>`, Options{}))
}

func TestSuppressedLink(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"/index.php?title=Template:Infobox":   true,
		"/index.php?title=API&action=edit":    true,
		"/index.php/File:Example.jpg":         true,
		"/wiki/File:Example.jpg":              true,
		"/wiki/Template:Citation":             true,
		"/wiki/%E5%8F%B0%E5%8C%97":            false,
		"/index.php?title=%E5%8F%B0%E5%8C%97": false,
		"https://example.org/external":        false,
		"":                                    false,
	}
	for href, want := range cases {
		assert.Equal(t, want, suppressedLink(href), href)
	}
}

func TestCleanScenarios(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "guillemets", in: "<<test>>", want: "«test»"},
		{name: "ascii ellipsis", in: "等等...", want: "等等…"},
		{name: "long ideographic stops", in: "等等。。。。", want: "等等…"},
		{name: "space before close", in: "你好 ，世界 。", want: "你好，世界。"},
		{name: "space after open", in: "《 書名》（ 注", want: "《書名》（注"},
		{name: "tabs and runs", in: "a\t\tb    c", want: "a b c"},
		{name: "doubled commas", in: "甲,,乙，，，丙", want: "甲,乙，丙"},
		{name: "comma then stop", in: "甲,.乙，。", want: "甲.乙。"},
		{name: "symbol-only line", in: "甲\n—*—\n乙", want: "甲\n乙"},
		{name: "paired tags", in: "前<ref name=\"a\">注釋</ref>後", want: "前後"},
		{name: "nested same-name pair", in: "前<span>外<span>內</span>外</span>後", want: "前後"},
		{name: "orphan tags", in: "前</div>中<div class=\"x\">後", want: "前中後"},
		{name: "self-closing", in: "前<ref name=\"b\" />後", want: "前後"},
		{name: "han-only parens kept", in: "北京（北平）是首都", want: "北京（北平）是首都"},
		{name: "mixed parens stripped", in: "北京（Beijing，1949年）是首都", want: "北京是首都"},
		{name: "nested parens stripped", in: "甲（說明（another）附註）乙", want: "甲乙"},
		{name: "section header line", in: "甲\n== 歷史 ==\n乙", want: "甲\n乙"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Clean(tc.in, Options{}))
		})
	}
}

func TestCleanIsIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"<<a>> ,, b ...... c\t\td",
		",.,.,.",
		"甲 （ 乙 ） 丙<b>粗</b>\n==x==\n\n\n。。。\n丁",
		"<a<b>>",
		"前<i>斜（註）</i>後 , ,",
		"臺灣（Taiwan）是島嶼，，位於東亞。。。\n\t\n短句",
		strings.Repeat("<a", 10) + "<b>" + strings.Repeat("c>", 10) + "文字。",
		strings.Repeat("<i", 40) + strings.Repeat(">", 40) + "深層。",
	}
	for _, in := range inputs {
		for _, strict := range []bool{false, true} {
			once := Clean(in, Options{Strict: strict})
			require.Equal(t, once, Clean(once, Options{Strict: strict}), "input %q strict=%v", in, strict)
		}
	}
}

func TestCleanStripsDeeplyNestedTags(t *testing.T) {
	t.Parallel()

	in := strings.Repeat("<a", 10) + "<b>" + strings.Repeat("c>", 10) + "文字。"
	require.Equal(t, "文字。", Clean(in, Options{}))
}

func TestFilterLinesStrict(t *testing.T) {
	t.Parallel()

	text := strings.Join([]string{
		"五個漢字字",
		"  這是一個足夠長的中文句子，包含標點。  ",
		"This line is long enough, but it is not Han.",
		"中文mixed with a lot of English words, sadly.",
	}, "\n")
	require.Equal(t, "這是一個足夠長的中文句子，包含標點。", FilterLines(text))
}

func TestStrictModeDropsShortUnpunctuatedLine(t *testing.T) {
	t.Parallel()

	html := `<p>五個漢字字</p>`
	require.Equal(t, "五個漢字字", Normalize(html, Options{}))
	require.Empty(t, Normalize(html, Options{Strict: true}))
}

func TestNormalizeEmptyInput(t *testing.T) {
	t.Parallel()

	require.Empty(t, Normalize("", Options{}))
	require.Empty(t, Normalize("<p>   </p>", Options{Strict: true}))
}
