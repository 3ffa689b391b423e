package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/wikicorpus/internal/corpus"
	"github.com/JakeFAU/wikicorpus/internal/storage/columnar"
)

const testDump = `<mediawiki xmlns="http://www.mediawiki.org/xml/export-0.10/">
  <page>
    <title>臺北</title>
    <ns>0</ns>
    <id>1</id>
    <revision>
      <id>11</id>
      <timestamp>2023-05-01T12:00:00Z</timestamp>
      <text xml:space="preserve">臺北是首都。</text>
    </revision>
  </page>
  <page>
    <title>Talk:臺北</title>
    <ns>1</ns>
    <id>2</id>
    <revision>
      <id>21</id>
      <timestamp>2023-05-01T12:00:00Z</timestamp>
      <text xml:space="preserve">討論</text>
    </revision>
  </page>
  <page>
    <title>高雄</title>
    <ns>0</ns>
    <id>3</id>
    <revision>
      <id>31</id>
      <timestamp>2023-05-01T12:00:00Z</timestamp>
      <text xml:space="preserve">高雄是港都。</text>
    </revision>
  </page>
</mediawiki>
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeCorpus(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.parquet")
	w, err := columnar.Create(path, columnar.Options{
		Metadata: map[string]string{columnar.MetaRunID: "run-cli"},
	})
	require.NoError(t, err)
	require.NoError(t, w.WriteBatch(context.Background(), []corpus.CleanPage{
		{PageID: 1, RevisionID: 11, Title: "臺北", Content: "臺北是首都。"},
		{PageID: 3, RevisionID: 31, Title: "高雄", Content: "高雄是港都。"},
	}))
	require.NoError(t, w.Close(context.Background()))
	return path
}

func TestCountCommand(t *testing.T) {
	dump := writeFile(t, "dump.xml", testDump)

	code, out, stderr := execute(t, "count", "--dump", dump)
	require.Equal(t, 0, code, stderr)
	require.Equal(t, "3\n", out)
}

func TestCountCommandRequiresDump(t *testing.T) {
	code, _, stderr := execute(t, "count")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "dump.path must be set")
}

func TestLookupCommand(t *testing.T) {
	path := writeCorpus(t)

	code, out, stderr := execute(t, "lookup", "--file", path, "3", "99")
	require.Equal(t, 0, code, stderr)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	var page corpus.CleanPage
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &page))
	require.EqualValues(t, 3, page.PageID)
	require.Equal(t, "高雄是港都。", page.Content)
}

func TestLookupCommandRejectsBadID(t *testing.T) {
	path := writeCorpus(t)

	code, _, stderr := execute(t, "lookup", "--file", path, "abc")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "invalid page id")
}

func TestInspectCommand(t *testing.T) {
	path := writeCorpus(t)

	code, out, stderr := execute(t, "inspect", "--file", path)
	require.Equal(t, 0, code, stderr)

	var info columnar.FileInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	require.EqualValues(t, 2, info.Rows)
	require.Equal(t, 1, info.RowGroups)
	require.Equal(t, "run-cli", info.Metadata[columnar.MetaRunID])
}

func TestBuildCommandEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		body, _ := json.Marshal(map[string]any{
			"parse": map[string]any{
				"text": map[string]string{
					"*": fmt.Sprintf(`<div class="mw-parser-output"><p>%s</p></div>`, html.EscapeString(r.PostForm.Get("text"))),
				},
			},
		})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	dump := writeFile(t, "dump.xml", testDump)
	output := filepath.Join(t.TempDir(), "wikipedia-zh-tw.parquet")
	archive := t.TempDir()

	code, out, stderr := execute(t, "build",
		"--dump", dump,
		"--endpoint", srv.URL+"/w/api.php",
		"--variant", "zh-tw",
		"--output", output,
		"--workers", "2",
		"--local-dir", archive,
	)
	require.Equal(t, 0, code, stderr)

	var result struct {
		RunID   string   `json:"run_id"`
		Written int64    `json:"written"`
		SHA256  string   `json:"sha256"`
		URIs    []string `json:"uris"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.EqualValues(t, 2, result.Written)
	require.Len(t, result.SHA256, 64)
	require.Len(t, result.URIs, 1)
	require.FileExists(t, filepath.Join(archive, result.RunID, "wikipedia-zh-tw.parquet"))

	pages, err := columnar.Read(context.Background(), output, []int64{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, pages, 2)
}

func TestBuildCommandRejectsInvalidConfig(t *testing.T) {
	dump := writeFile(t, "dump.xml", testDump)

	code, _, stderr := execute(t, "build", "--dump", dump, "--workers", "0")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "pipeline.workers must be > 0")
}
