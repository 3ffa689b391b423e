package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/wikicorpus/internal/corpus"
)

type recordingWriter struct {
	mu       sync.Mutex
	batches  [][]corpus.CleanPage
	closes   int
	failAt   int
	closeErr error
}

func (w *recordingWriter) WriteBatch(_ context.Context, pages []corpus.CleanPage) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failAt > 0 && len(w.batches)+1 == w.failAt {
		return errors.New("disk full")
	}
	w.batches = append(w.batches, append([]corpus.CleanPage(nil), pages...))
	return nil
}

func (w *recordingWriter) Close(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closes++
	return w.closeErr
}

func (w *recordingWriter) sizes() []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]int, 0, len(w.batches))
	for _, b := range w.batches {
		out = append(out, len(b))
	}
	return out
}

func page(id int64) corpus.CleanPage {
	return corpus.CleanPage{PageID: id, RevisionID: id * 10, Title: "t", Content: "c"}
}

func addN(t *testing.T, b *Batcher, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		require.NoError(t, b.Add(context.Background(), page(int64(i))))
	}
}

func TestBatcherFlushesAtThreshold(t *testing.T) {
	t.Parallel()

	w := &recordingWriter{}
	var flushed []int
	b := New(context.Background(), Config{BatchSize: 1000, BufferSize: 8, OnFlush: func(rows int) {
		flushed = append(flushed, rows)
	}}, w)
	addN(t, b, 2500)
	require.NoError(t, b.Close(context.Background()))

	require.Equal(t, []int{1000, 1000, 500}, w.sizes())
	require.Equal(t, []int{1000, 1000, 500}, flushed)
	require.EqualValues(t, 2500, b.Written())
	require.EqualValues(t, 3, b.RowGroups())
	require.Equal(t, 1, w.closes)
}

func TestBatcherExactMultipleHasNoEmptyFlush(t *testing.T) {
	t.Parallel()

	w := &recordingWriter{}
	b := New(context.Background(), Config{BatchSize: 1000}, w)
	addN(t, b, 1000)
	require.NoError(t, b.Close(context.Background()))
	require.Equal(t, []int{1000}, w.sizes())
}

func TestBatcherEmptyRun(t *testing.T) {
	t.Parallel()

	w := &recordingWriter{}
	b := New(context.Background(), Config{}, w)
	require.NoError(t, b.Close(context.Background()))
	require.Empty(t, w.sizes())
	require.Equal(t, 1, w.closes)
}

func TestBatcherConcurrentAdds(t *testing.T) {
	t.Parallel()

	const workers, perWorker = 20, 150
	w := &recordingWriter{}
	b := New(context.Background(), Config{BatchSize: 1000, BufferSize: 4}, w)

	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			for j := 1; j <= perWorker; j++ {
				if err := b.Add(context.Background(), page(int64(offset*perWorker+j))); err != nil {
					t.Errorf("add: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, b.Close(context.Background()))

	require.Equal(t, []int{1000, 1000, 1000}, w.sizes())
	seen := make(map[int64]struct{}, workers*perWorker)
	for _, batch := range w.batches {
		for _, p := range batch {
			_, dup := seen[p.PageID]
			require.False(t, dup, "duplicate page %d", p.PageID)
			seen[p.PageID] = struct{}{}
		}
	}
	require.Len(t, seen, workers*perWorker)
}

func TestBatcherWriterFailure(t *testing.T) {
	t.Parallel()

	w := &recordingWriter{failAt: 1}
	b := New(context.Background(), Config{BatchSize: 2}, w)
	require.NoError(t, b.Add(context.Background(), page(1)))
	require.NoError(t, b.Add(context.Background(), page(2)))

	require.Eventually(t, func() bool { return b.Err() != nil }, time.Second, 5*time.Millisecond)
	require.ErrorContains(t, b.Add(context.Background(), page(3)), "disk full")

	err := b.Close(context.Background())
	require.ErrorContains(t, err, "disk full")
	require.Equal(t, 1, w.closes)
}

func TestBatcherCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	w := &recordingWriter{closeErr: errors.New("footer")}
	b := New(context.Background(), Config{BatchSize: 5}, w)
	addN(t, b, 3)

	first := b.Close(context.Background())
	second := b.Close(context.Background())
	require.ErrorContains(t, first, "footer")
	require.Equal(t, first, second)
	require.Equal(t, 1, w.closes)
	require.Equal(t, []int{3}, w.sizes())
	require.ErrorIs(t, b.Add(context.Background(), page(9)), ErrClosed)
}

func TestBatcherAddCanceled(t *testing.T) {
	t.Parallel()

	w := &blockingWriter{release: make(chan struct{})}
	b := New(context.Background(), Config{BatchSize: 1, BufferSize: 1}, w)
	require.NoError(t, b.Add(context.Background(), page(1)))
	// The writer goroutine is stuck on page 1; page 2 fills the buffer.
	require.NoError(t, b.Add(context.Background(), page(2)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := b.Add(ctx, page(3))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(w.release)
	require.NoError(t, b.Close(context.Background()))
}

type blockingWriter struct {
	release chan struct{}
}

func (w *blockingWriter) WriteBatch(context.Context, []corpus.CleanPage) error {
	<-w.release
	return nil
}

func (w *blockingWriter) Close(context.Context) error { return nil }
