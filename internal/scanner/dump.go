package scanner

import (
	"bufio"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const readBufferSize = 1 << 20

type dumpReader struct {
	io.Reader
	closers []io.Closer
}

func (d *dumpReader) Close() error {
	var errs []error
	for _, c := range d.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenDump opens a dump file, decompressing .bz2, .gz, and .zst transparently.
func OpenDump(path string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open dump: %w", err)
	}
	buffered := bufio.NewReaderSize(f, readBufferSize)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".bz2":
		return &dumpReader{Reader: bzip2.NewReader(buffered), closers: []io.Closer{f}}, nil
	case ".gz":
		zr, err := gzip.NewReader(buffered)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("open gzip dump: %w", err)
		}
		return &dumpReader{Reader: zr, closers: []io.Closer{zr, f}}, nil
	case ".zst", ".zstd":
		zr, err := zstd.NewReader(buffered)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("open zstd dump: %w", err)
		}
		rc := zr.IOReadCloser()
		return &dumpReader{Reader: rc, closers: []io.Closer{rc, f}}, nil
	default:
		return &dumpReader{Reader: buffered, closers: []io.Closer{f}}, nil
	}
}
