package progress

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultReportInterval = 30 * time.Second

// Reporter periodically logs tracker snapshots.
type Reporter struct {
	tracker  *Tracker
	interval time.Duration
	logger   *zap.Logger

	stopCh    chan struct{}
	doneCh    chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewReporter builds a Reporter. A non-positive interval uses 30s.
func NewReporter(tracker *Tracker, interval time.Duration, logger *zap.Logger) *Reporter {
	if interval <= 0 {
		interval = defaultReportInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{
		tracker:  tracker,
		interval: interval,
		logger:   logger.Named("progress"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the logging loop. It stops when ctx ends or Stop is called.
func (r *Reporter) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		go r.run(ctx)
	})
}

// Stop ends the loop, logs a final snapshot, and waits for the goroutine.
func (r *Reporter) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	// A reporter that never started has nothing to wait for.
	r.startOnce.Do(func() {
		close(r.doneCh)
	})
	<-r.doneCh
}

func (r *Reporter) run(ctx context.Context) {
	defer close(r.doneCh)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.log("build progress")
		case <-r.stopCh:
			r.log("build finished")
			return
		case <-ctx.Done():
			return
		}
	}
}

func (r *Reporter) log(msg string) {
	s := r.tracker.Snapshot()
	fields := []zap.Field{
		zap.Int64("scanned", s.Scanned),
		zap.Int64("articles", s.Articles),
		zap.Int64("rendered", s.Rendered),
		zap.Int64("dropped", s.Dropped()),
		zap.Int64("written", s.Written),
		zap.Int64("row_groups", s.RowGroups),
		zap.Duration("elapsed", s.Elapsed),
	}
	if s.Expected > 0 {
		fields = append(fields, zap.Float64("percent", s.Percent))
	}
	r.logger.Info(msg, fields...)
}
