package dispatcher

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/wikicorpus/internal/corpus"
	"github.com/JakeFAU/wikicorpus/internal/progress"
	"github.com/JakeFAU/wikicorpus/internal/queue/memory"
	"github.com/JakeFAU/wikicorpus/internal/worker"
)

type recordingRunner struct {
	mu   sync.Mutex
	seen []int64
	fail error
}

func (r *recordingRunner) Run(ctx context.Context, lane worker.Lane) error {
	for {
		page, err := lane.Dequeue(ctx)
		if errors.Is(err, memory.ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		if r.fail != nil {
			return r.fail
		}
		r.mu.Lock()
		r.seen = append(r.seen, page.PageID)
		r.mu.Unlock()
	}
}

func (r *recordingRunner) ids() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.seen...)
}

func sliceSource(n int) Source {
	return func(ctx context.Context, emit func(corpus.RawPage) error) (corpus.Summary, error) {
		for i := 1; i <= n; i++ {
			if err := emit(corpus.RawPage{PageID: int64(i), RevisionID: 1, Title: "t"}); err != nil {
				return corpus.Summary{}, err
			}
		}
		return corpus.Summary{TotalPages: n, Articles: n}, nil
	}
}

func TestRoundRobinPreservesLaneOrder(t *testing.T) {
	t.Parallel()

	a, b := &recordingRunner{}, &recordingRunner{}
	d := New(Config{Routing: RoutingRoundRobin, QueueDepth: 1}, []Runner{a, b}, nil, nil)

	summary, err := d.Run(context.Background(), sliceSource(6))
	require.NoError(t, err)
	require.Equal(t, 6, summary.Articles)
	require.Equal(t, []int64{1, 3, 5}, a.ids())
	require.Equal(t, []int64{2, 4, 6}, b.ids())
}

func TestSharedQueueDeliversEveryPageOnce(t *testing.T) {
	t.Parallel()

	runners := make([]*recordingRunner, 4)
	pool := make([]Runner, len(runners))
	for i := range runners {
		runners[i] = &recordingRunner{}
		pool[i] = runners[i]
	}
	tracker := progress.NewTracker(nil)
	d := New(Config{}, pool, tracker, nil)

	_, err := d.Run(context.Background(), sliceSource(500))
	require.NoError(t, err)

	var all []int64
	for _, r := range runners {
		all = append(all, r.ids()...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	require.Len(t, all, 500)
	for i, id := range all {
		require.EqualValues(t, i+1, id)
	}
	require.EqualValues(t, 500, tracker.Snapshot().Dispatched)
}

func TestSourceErrorIsReturned(t *testing.T) {
	t.Parallel()

	d := New(Config{}, []Runner{&recordingRunner{}}, nil, nil)
	_, err := d.Run(context.Background(), func(context.Context, func(corpus.RawPage) error) (corpus.Summary, error) {
		return corpus.Summary{}, corpus.ErrMalformedDump
	})
	require.ErrorIs(t, err, corpus.ErrMalformedDump)
}

func TestWorkerErrorCancelsSource(t *testing.T) {
	t.Parallel()

	boom := errors.New("writer failed")
	d := New(Config{QueueDepth: 1}, []Runner{&recordingRunner{fail: boom}}, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := d.Run(context.Background(), sliceSource(1_000_000))
		done <- err
	}()
	select {
	case err := <-done:
		require.ErrorIs(t, err, boom)
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not stop after worker failure")
	}
}

func TestRunWithoutWorkers(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil, nil, nil).Run(context.Background(), sliceSource(1))
	require.Error(t, err)
}

func TestParseRouting(t *testing.T) {
	t.Parallel()

	r, err := ParseRouting("")
	require.NoError(t, err)
	require.Equal(t, RoutingShared, r)
	r, err = ParseRouting("Round_Robin")
	require.NoError(t, err)
	require.Equal(t, RoutingRoundRobin, r)
	_, err = ParseRouting("random")
	require.Error(t, err)
}
