package progress

import (
	"sync/atomic"
	"time"

	"github.com/JakeFAU/wikicorpus/internal/metrics"
)

// Drop reasons recorded by workers.
const (
	DropRender     = "render"
	DropEmpty      = "empty_content"
	DropEmptyTitle = "empty_title"
)

// Snapshot is a point-in-time copy of the tracker counters.
type Snapshot struct {
	StartedAt      time.Time     `json:"started_at"`
	Elapsed        time.Duration `json:"elapsed_ns"`
	Expected       int64         `json:"expected_pages,omitempty"`
	Scanned        int64         `json:"scanned"`
	Articles       int64         `json:"articles"`
	Dispatched     int64         `json:"dispatched"`
	Rendered       int64         `json:"rendered"`
	RenderFailures int64         `json:"render_failures"`
	EmptyDrops     int64         `json:"empty_drops"`
	TitleDrops     int64         `json:"title_drops"`
	Written        int64         `json:"written"`
	RowGroups      int64         `json:"row_groups"`
	Percent        float64       `json:"percent,omitempty"`
}

// Dropped sums every drop reason.
func (s Snapshot) Dropped() int64 {
	return s.RenderFailures + s.EmptyDrops + s.TitleDrops
}

// Tracker accumulates pipeline counters. All methods are safe for concurrent
// use and tolerate a nil receiver.
type Tracker struct {
	now       func() time.Time
	startedAt time.Time

	expected       atomic.Int64
	scanned        atomic.Int64
	articles       atomic.Int64
	dispatched     atomic.Int64
	rendered       atomic.Int64
	renderFailures atomic.Int64
	emptyDrops     atomic.Int64
	titleDrops     atomic.Int64
	written        atomic.Int64
	rowGroups      atomic.Int64
}

// NewTracker starts a tracker. now may be nil, in which case time.Now is used.
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{now: now, startedAt: now()}
}

// SetExpected records the page count from a counting pre-pass.
func (t *Tracker) SetExpected(pages int64) {
	if t == nil {
		return
	}
	t.expected.Store(pages)
}

// PageScanned counts a page read from the dump.
func (t *Tracker) PageScanned(article bool) {
	if t == nil {
		return
	}
	t.scanned.Add(1)
	if article {
		t.articles.Add(1)
	}
	metrics.ObservePageScanned(article)
}

// PageDispatched counts a page handed to a worker.
func (t *Tracker) PageDispatched() {
	if t == nil {
		return
	}
	t.dispatched.Add(1)
	metrics.ObservePageDispatched()
}

// PageRendered counts a page whose body rendered successfully.
func (t *Tracker) PageRendered() {
	if t == nil {
		return
	}
	t.rendered.Add(1)
}

// PageDropped counts a page discarded for reason.
func (t *Tracker) PageDropped(reason string) {
	if t == nil {
		return
	}
	switch reason {
	case DropRender:
		t.renderFailures.Add(1)
	case DropEmptyTitle:
		t.titleDrops.Add(1)
	default:
		t.emptyDrops.Add(1)
	}
	metrics.ObserveDropped(reason)
}

// BatchWritten counts a flushed row group of rows pages.
func (t *Tracker) BatchWritten(rows int) {
	if t == nil {
		return
	}
	t.rowGroups.Add(1)
	t.written.Add(int64(rows))
	metrics.ObserveRowGroup(rows)
}

// Snapshot copies the current counters.
func (t *Tracker) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{}
	}
	s := Snapshot{
		StartedAt:      t.startedAt,
		Elapsed:        t.now().Sub(t.startedAt),
		Expected:       t.expected.Load(),
		Scanned:        t.scanned.Load(),
		Articles:       t.articles.Load(),
		Dispatched:     t.dispatched.Load(),
		Rendered:       t.rendered.Load(),
		RenderFailures: t.renderFailures.Load(),
		EmptyDrops:     t.emptyDrops.Load(),
		TitleDrops:     t.titleDrops.Load(),
		Written:        t.written.Load(),
		RowGroups:      t.rowGroups.Load(),
	}
	if s.Expected > 0 {
		s.Percent = float64(s.Scanned) / float64(s.Expected) * 100
	}
	return s
}
