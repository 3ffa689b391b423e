package columnar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/JakeFAU/wikicorpus/internal/corpus"
)

const readBatchRows = 256

// FileInfo summarizes a stored corpus file.
type FileInfo struct {
	Rows         int64             `json:"rows"`
	RowGroups    int               `json:"row_groups"`
	RowsPerGroup []int64           `json:"rows_per_group"`
	HasTimestamp bool              `json:"has_timestamp"`
	Metadata     map[string]string `json:"metadata"`
}

type columnIndexes struct {
	id, revision, timestamp, title, content int
}

// Read scans every row group in storage order and returns the rows whose id
// is in ids. Files without a timestamp column yield zero timestamps.
func Read(ctx context.Context, path string, ids []int64) ([]corpus.CleanPage, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	f, pf, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cols, err := resolveColumns(pf)
	if err != nil {
		return nil, err
	}

	var out []corpus.CleanPage
	buf := make([]parquet.Row, readBatchRows)
	for i, rg := range pf.RowGroups() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("read canceled: %w", err)
		}
		matched, err := scanRowGroup(rg, buf, cols, want)
		if err != nil {
			return nil, fmt.Errorf("%w: row group %d: %w", corpus.ErrStorage, i, err)
		}
		out = append(out, matched...)
	}
	return out, nil
}

func scanRowGroup(rg parquet.RowGroup, buf []parquet.Row, cols columnIndexes, want map[int64]struct{}) ([]corpus.CleanPage, error) {
	rows := rg.Rows()
	defer rows.Close()

	var out []corpus.CleanPage
	for {
		for i := range buf {
			buf[i] = buf[i][:0]
		}
		n, err := rows.ReadRows(buf)
		for _, row := range buf[:n] {
			if page, ok := decodeRow(row, cols, want); ok {
				out = append(out, page)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, err
		}
		if n == 0 {
			return out, nil
		}
	}
}

func decodeRow(row parquet.Row, cols columnIndexes, want map[int64]struct{}) (corpus.CleanPage, bool) {
	var page corpus.CleanPage
	for _, v := range row {
		switch v.Column() {
		case cols.id:
			page.PageID = v.Int64()
			if _, ok := want[page.PageID]; !ok {
				return corpus.CleanPage{}, false
			}
		case cols.revision:
			page.RevisionID = v.Int64()
		case cols.timestamp:
			// 0 is how the writer stores an absent timestamp.
			if ms := v.Int64(); ms != 0 {
				page.Timestamp = time.UnixMilli(ms).UTC()
			}
		case cols.title:
			page.Title = string(v.ByteArray())
		case cols.content:
			page.Content = string(v.ByteArray())
		}
	}
	return page, true
}

// Inspect reports the shape and footer metadata of a stored file.
func Inspect(path string) (FileInfo, error) {
	f, pf, err := open(path)
	if err != nil {
		return FileInfo{}, err
	}
	defer f.Close()

	info := FileInfo{
		Rows:     pf.NumRows(),
		Metadata: make(map[string]string),
	}
	for _, rg := range pf.RowGroups() {
		info.RowsPerGroup = append(info.RowsPerGroup, rg.NumRows())
	}
	info.RowGroups = len(info.RowsPerGroup)
	_, info.HasTimestamp = pf.Schema().Lookup(ColumnTimestamp)
	for _, kv := range pf.Metadata().KeyValueMetadata {
		if strings.HasPrefix(kv.Key, "ARROW:") {
			continue
		}
		info.Metadata[kv.Key] = kv.Value
	}
	return info, nil
}

func open(path string) (*os.File, *parquet.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open %s: %w", corpus.ErrStorage, path, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("%w: stat %s: %w", corpus.ErrStorage, path, err)
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("%w: parse %s: %w", corpus.ErrStorage, path, err)
	}
	return f, pf, nil
}

func resolveColumns(pf *parquet.File) (columnIndexes, error) {
	cols := columnIndexes{timestamp: -1}
	required := map[string]*int{
		ColumnID:         &cols.id,
		ColumnRevisionID: &cols.revision,
		ColumnTitle:      &cols.title,
		ColumnContent:    &cols.content,
	}
	for name, dst := range required {
		leaf, ok := pf.Schema().Lookup(name)
		if !ok {
			return cols, fmt.Errorf("%w: missing column %q", corpus.ErrStorage, name)
		}
		*dst = leaf.ColumnIndex
	}
	if leaf, ok := pf.Schema().Lookup(ColumnTimestamp); ok {
		cols.timestamp = leaf.ColumnIndex
	}
	return cols, nil
}
