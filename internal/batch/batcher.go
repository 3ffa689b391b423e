// Package batch serializes cleaned pages from many workers into fixed-size
// row groups. Workers send on a bounded channel and a single goroutine owns
// the accumulating batch and the underlying writer.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/wikicorpus/internal/corpus"
)

// ErrClosed is returned by Add after Close or after the writer failed.
var ErrClosed = errors.New("batcher closed")

const (
	defaultBatchSize  = 1000
	defaultBufferSize = 256
)

// Config controls batching.
//   - BatchSize: records per row group (default 1000).
//   - BufferSize: capacity of the hand-off channel (default 256).
//   - OnFlush: optional hook invoked after each successful row group.
type Config struct {
	BatchSize  int
	BufferSize int
	OnFlush    func(rows int)
	Logger     *zap.Logger
}

// Batcher implements corpus.Appender on top of a corpus.BatchWriter.
type Batcher struct {
	cfg    Config
	writer corpus.BatchWriter
	logger *zap.Logger

	pages  chan corpus.CleanPage
	stopCh chan struct{}
	doneCh chan struct{}

	written   atomic.Int64
	rowGroups atomic.Int64

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
	closeErr  error
}

// New starts the writer goroutine. ctx bounds every WriteBatch call.
func New(ctx context.Context, cfg Config, writer corpus.BatchWriter) *Batcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Batcher{
		cfg:    cfg,
		writer: writer,
		logger: logger.Named("batcher"),
		pages:  make(chan corpus.CleanPage, cfg.BufferSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go b.run(ctx)
	return b
}

// Add hands a page to the writer goroutine, blocking while the channel is
// full. It fails once the batcher is closed or a flush has failed.
func (b *Batcher) Add(ctx context.Context, page corpus.CleanPage) error {
	if err := b.Err(); err != nil {
		return err
	}
	select {
	case <-b.stopCh:
		return ErrClosed
	default:
	}
	select {
	case <-b.stopCh:
		return ErrClosed
	case <-b.doneCh:
		return b.failure()
	case <-ctx.Done():
		return fmt.Errorf("batch add canceled: %w", ctx.Err())
	case b.pages <- page:
		return nil
	}
}

// Close drains pending pages, writes the final partial batch, and closes the
// writer exactly once. Later calls return the first result.
func (b *Batcher) Close(ctx context.Context) error {
	b.closeOnce.Do(func() {
		close(b.stopCh)
		select {
		case <-b.doneCh:
		case <-ctx.Done():
			b.closeErr = fmt.Errorf("batcher close wait: %w", ctx.Err())
			return
		}
		var closeErr error
		if err := b.writer.Close(ctx); err != nil {
			closeErr = fmt.Errorf("close writer: %w", err)
		}
		b.closeErr = errors.Join(b.Err(), closeErr)
	})
	return b.closeErr
}

// Err reports the first flush failure, if any.
func (b *Batcher) Err() error {
	b.errMu.Lock()
	defer b.errMu.Unlock()
	return b.err
}

// Written reports how many pages reached the writer.
func (b *Batcher) Written() int64 {
	return b.written.Load()
}

// RowGroups reports how many batches were flushed.
func (b *Batcher) RowGroups() int64 {
	return b.rowGroups.Load()
}

func (b *Batcher) failure() error {
	if err := b.Err(); err != nil {
		return err
	}
	return ErrClosed
}

func (b *Batcher) run(ctx context.Context) {
	defer close(b.doneCh)
	batch := make([]corpus.CleanPage, 0, b.cfg.BatchSize)
	for {
		select {
		case page := <-b.pages:
			batch = append(batch, page)
			if len(batch) < b.cfg.BatchSize {
				continue
			}
			if !b.flush(ctx, batch) {
				return
			}
			batch = batch[:0]
		case <-b.stopCh:
			b.drain(ctx, batch)
			return
		}
	}
}

// drain empties the channel after Close. Close happens after every Add has
// returned, so nothing new arrives while draining.
func (b *Batcher) drain(ctx context.Context, batch []corpus.CleanPage) {
	for {
		select {
		case page := <-b.pages:
			batch = append(batch, page)
			if len(batch) >= b.cfg.BatchSize {
				if !b.flush(ctx, batch) {
					return
				}
				batch = batch[:0]
			}
		default:
			if len(batch) > 0 {
				b.flush(ctx, batch)
			}
			return
		}
	}
}

func (b *Batcher) flush(ctx context.Context, batch []corpus.CleanPage) bool {
	if err := b.writer.WriteBatch(ctx, batch); err != nil {
		b.errMu.Lock()
		b.err = fmt.Errorf("write row group %d: %w", b.rowGroups.Load(), err)
		b.errMu.Unlock()
		b.logger.Error("row group write failed", zap.Int("rows", len(batch)), zap.Error(err))
		return false
	}
	b.rowGroups.Add(1)
	b.written.Add(int64(len(batch)))
	b.logger.Debug("row group written", zap.Int("rows", len(batch)), zap.Int64("total", b.written.Load()))
	if b.cfg.OnFlush != nil {
		b.cfg.OnFlush(len(batch))
	}
	return true
}
