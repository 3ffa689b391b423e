package columnar

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/wikicorpus/internal/corpus"
)

func samplePages(n int) []corpus.CleanPage {
	base := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
	pages := make([]corpus.CleanPage, n)
	for i := range pages {
		id := int64(i + 1)
		pages[i] = corpus.CleanPage{
			PageID:     id,
			RevisionID: id * 100,
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
			Title:      fmt.Sprintf("頁面%d", id),
			Content:    fmt.Sprintf("這是第%d個頁面的內容。", id),
		}
	}
	return pages
}

func writeFile(t *testing.T, opts Options, batches ...[]corpus.CleanPage) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.parquet")
	w, err := Create(path, opts)
	require.NoError(t, err)
	for _, b := range batches {
		require.NoError(t, w.WriteBatch(context.Background(), b))
	}
	require.NoError(t, w.Close(context.Background()))
	return path
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	pages := samplePages(10)
	path := writeFile(t, Options{IncludeTimestamp: true}, pages[:6], pages[6:])

	got, err := Read(context.Background(), path, []int64{2, 7, 10, 999})
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, want := range []corpus.CleanPage{pages[1], pages[6], pages[9]} {
		require.Equal(t, want.PageID, got[i].PageID)
		require.Equal(t, want.RevisionID, got[i].RevisionID)
		require.True(t, want.Timestamp.Equal(got[i].Timestamp))
		require.Equal(t, want.Title, got[i].Title)
		require.Equal(t, want.Content, got[i].Content)
	}
}

func TestZeroTimestampRoundTrip(t *testing.T) {
	t.Parallel()

	page := corpus.CleanPage{PageID: 7, RevisionID: 70, Title: "無時間", Content: "沒有時間戳記的頁面。"}
	path := writeFile(t, Options{IncludeTimestamp: true}, []corpus.CleanPage{page})

	got, err := Read(context.Background(), path, []int64{7})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, got[0].Timestamp.IsZero(), "got %v", got[0].Timestamp)
	require.Equal(t, page, got[0])
}

func TestReadAbsentIDs(t *testing.T) {
	t.Parallel()

	path := writeFile(t, Options{}, samplePages(5))
	got, err := Read(context.Background(), path, []int64{42, -1})
	require.NoError(t, err)
	require.Empty(t, got)

	got, err = Read(context.Background(), path, nil)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestRowGroupPerBatch(t *testing.T) {
	t.Parallel()

	pages := samplePages(2500)
	path := writeFile(t, Options{Compression: "zstd", IncludeTimestamp: true},
		pages[:1000], pages[1000:2000], pages[2000:])

	info, err := Inspect(path)
	require.NoError(t, err)
	require.EqualValues(t, 2500, info.Rows)
	require.Equal(t, 3, info.RowGroups)
	require.Equal(t, []int64{1000, 1000, 500}, info.RowsPerGroup)
	require.True(t, info.HasTimestamp)
}

func TestLeanSchemaHasNoTimestamp(t *testing.T) {
	t.Parallel()

	pages := samplePages(3)
	path := writeFile(t, Options{Compression: "none"}, pages)

	info, err := Inspect(path)
	require.NoError(t, err)
	require.False(t, info.HasTimestamp)

	got, err := Read(context.Background(), path, []int64{3})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, got[0].Timestamp.IsZero())
	require.Equal(t, pages[2].Content, got[0].Content)
}

func TestMetadataIsStored(t *testing.T) {
	t.Parallel()

	path := writeFile(t, Options{
		Compression: "gzip",
		Metadata: map[string]string{
			MetaRunID:   "run-1",
			MetaVariant: "zh-tw",
			MetaStrict:  "false",
		},
	}, samplePages(1))

	info, err := Inspect(path)
	require.NoError(t, err)
	require.Equal(t, "run-1", info.Metadata[MetaRunID])
	require.Equal(t, "zh-tw", info.Metadata[MetaVariant])
	require.Equal(t, "false", info.Metadata[MetaStrict])
	for key := range info.Metadata {
		require.NotContains(t, key, "ARROW:")
	}
}

func TestEmptyBatchWritesNothing(t *testing.T) {
	t.Parallel()

	path := writeFile(t, Options{}, nil, samplePages(2), []corpus.CleanPage{})
	info, err := Inspect(path)
	require.NoError(t, err)
	require.Equal(t, 1, info.RowGroups)
}

func TestCloseTwice(t *testing.T) {
	t.Parallel()

	w, err := Create(filepath.Join(t.TempDir(), "x.parquet"), Options{})
	require.NoError(t, err)
	require.NoError(t, w.WriteBatch(context.Background(), samplePages(1)))
	require.NoError(t, w.Close(context.Background()))
	require.NoError(t, w.Close(context.Background()))
}

func TestCreateErrors(t *testing.T) {
	t.Parallel()

	_, err := Create(filepath.Join(t.TempDir(), "x.parquet"), Options{Compression: "lz77"})
	require.ErrorIs(t, err, corpus.ErrStorage)

	_, err = Create(filepath.Join(t.TempDir(), "missing", "x.parquet"), Options{})
	require.ErrorIs(t, err, corpus.ErrStorage)
}

func TestReadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Read(context.Background(), filepath.Join(t.TempDir(), "nope.parquet"), []int64{1})
	require.ErrorIs(t, err, corpus.ErrStorage)
	_, err = Inspect(filepath.Join(t.TempDir(), "nope.parquet"))
	require.ErrorIs(t, err, corpus.ErrStorage)
}

func TestParseCompression(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"", "snappy", "ZSTD", "gzip", "none"} {
		_, err := ParseCompression(name)
		require.NoError(t, err, name)
	}
	_, err := ParseCompression("brotli-ish")
	require.Error(t, err)
}
