// Package columnar persists cleaned pages as Parquet. Files are written with
// apache arrow-go, one row group per batch, and read back with parquet-go.
package columnar

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/JakeFAU/wikicorpus/internal/corpus"
)

// Column names in storage order.
const (
	ColumnID         = "id"
	ColumnRevisionID = "revision_id"
	ColumnTimestamp  = "timestamp"
	ColumnTitle      = "title"
	ColumnContent    = "content"
)

// Metadata keys stamped on every file.
const (
	MetaRunID   = "wikicorpus.run_id"
	MetaVariant = "wikicorpus.variant"
	MetaStrict  = "wikicorpus.strict"
)

// Options configures a Writer.
type Options struct {
	// Compression is one of snappy, zstd, gzip, or none. Empty means snappy.
	Compression string
	// IncludeTimestamp adds the timestamp column between revision_id and title.
	IncludeTimestamp bool
	// Metadata is written to the file footer as key/value pairs.
	Metadata map[string]string
}

// Writer implements corpus.BatchWriter. It is not safe for concurrent use;
// the batcher owns it from a single goroutine.
type Writer struct {
	path   string
	file   *os.File
	fw     *pqarrow.FileWriter
	schema *arrow.Schema
	opts   Options
	pool   memory.Allocator

	closeOnce sync.Once
	closeErr  error
}

// ParseCompression maps a config name to a parquet codec.
func ParseCompression(name string) (compress.Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "snappy":
		return compress.Codecs.Snappy, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "none", "uncompressed":
		return compress.Codecs.Uncompressed, nil
	default:
		return compress.Codecs.Uncompressed, fmt.Errorf("unsupported compression %q", name)
	}
}

// Schema returns the arrow schema for the given layout.
func Schema(includeTimestamp bool, meta map[string]string) *arrow.Schema {
	fields := []arrow.Field{
		{Name: ColumnID, Type: arrow.PrimitiveTypes.Int64},
		{Name: ColumnRevisionID, Type: arrow.PrimitiveTypes.Int64},
	}
	if includeTimestamp {
		fields = append(fields, arrow.Field{Name: ColumnTimestamp, Type: arrow.FixedWidthTypes.Timestamp_ms})
	}
	fields = append(fields,
		arrow.Field{Name: ColumnTitle, Type: arrow.BinaryTypes.String},
		arrow.Field{Name: ColumnContent, Type: arrow.BinaryTypes.String},
	)
	var md *arrow.Metadata
	if len(meta) > 0 {
		keys := make([]string, 0, len(meta))
		for k := range meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		values := make([]string, len(keys))
		for i, k := range keys {
			values[i] = meta[k]
		}
		m := arrow.NewMetadata(keys, values)
		md = &m
	}
	return arrow.NewSchema(fields, md)
}

// Create truncates path and opens a Parquet writer on it.
func Create(path string, opts Options) (*Writer, error) {
	codec, err := ParseCompression(opts.Compression)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", corpus.ErrStorage, err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", corpus.ErrStorage, path, err)
	}
	schema := Schema(opts.IncludeTimestamp, opts.Metadata)
	props := parquet.NewWriterProperties(
		parquet.WithCompression(codec),
		parquet.WithDictionaryDefault(false),
		parquet.WithCreatedBy("wikicorpus"),
	)
	fw, err := pqarrow.NewFileWriter(schema, file, props, pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%w: open parquet writer: %w", corpus.ErrStorage, err)
	}
	return &Writer{
		path:   path,
		file:   file,
		fw:     fw,
		schema: schema,
		opts:   opts,
		pool:   memory.NewGoAllocator(),
	}, nil
}

// Path returns the output file path.
func (w *Writer) Path() string {
	return w.path
}

// WriteBatch appends pages as exactly one row group. An empty batch is a no-op.
func (w *Writer) WriteBatch(ctx context.Context, pages []corpus.CleanPage) error {
	if len(pages) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: write batch: %w", corpus.ErrStorage, err)
	}
	rec := w.buildRecord(pages)
	defer rec.Release()
	if err := w.fw.Write(rec); err != nil {
		return fmt.Errorf("%w: write row group: %w", corpus.ErrStorage, err)
	}
	return nil
}

func (w *Writer) buildRecord(pages []corpus.CleanPage) arrow.Record {
	b := array.NewRecordBuilder(w.pool, w.schema)
	defer b.Release()
	for _, f := range b.Fields() {
		f.Reserve(len(pages))
	}

	col := 0
	ids := b.Field(col).(*array.Int64Builder)
	col++
	revisions := b.Field(col).(*array.Int64Builder)
	col++
	var timestamps *array.TimestampBuilder
	if w.opts.IncludeTimestamp {
		timestamps = b.Field(col).(*array.TimestampBuilder)
		col++
	}
	titles := b.Field(col).(*array.StringBuilder)
	contents := b.Field(col + 1).(*array.StringBuilder)

	for _, p := range pages {
		ids.Append(p.PageID)
		revisions.Append(p.RevisionID)
		if timestamps != nil {
			timestamps.Append(arrow.Timestamp(p.TimestampMillis()))
		}
		titles.Append(p.Title)
		contents.Append(p.Content)
	}
	return b.NewRecord()
}

// Close writes the footer and closes the file. Only the first call has any
// effect; later calls return its result.
func (w *Writer) Close(context.Context) error {
	w.closeOnce.Do(func() {
		var errs []error
		if err := w.fw.Close(); err != nil {
			errs = append(errs, fmt.Errorf("finalize parquet: %w", err))
		}
		// The parquet writer usually closes the file itself.
		if err := w.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			errs = append(errs, fmt.Errorf("close file: %w", err))
		}
		if err := errors.Join(errs...); err != nil {
			w.closeErr = fmt.Errorf("%w: %w", corpus.ErrStorage, err)
		}
	})
	return w.closeErr
}
