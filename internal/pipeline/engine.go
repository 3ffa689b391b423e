// Package pipeline wires the scanner, dispatcher, workers, batcher, and
// Parquet writer into one build run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/wikicorpus/internal/batch"
	"github.com/JakeFAU/wikicorpus/internal/clock/system"
	"github.com/JakeFAU/wikicorpus/internal/corpus"
	"github.com/JakeFAU/wikicorpus/internal/dispatcher"
	"github.com/JakeFAU/wikicorpus/internal/progress"
	"github.com/JakeFAU/wikicorpus/internal/scanner"
	"github.com/JakeFAU/wikicorpus/internal/storage/columnar"
	"github.com/JakeFAU/wikicorpus/internal/worker"
)

const closeTimeout = time.Minute

// Options describes one build run.
type Options struct {
	RunID      string
	Variant    corpus.Variant
	DumpPath   string
	OutputPath string
	CountPages bool

	Workers    int
	QueueDepth int
	BatchSize  int
	Routing    dispatcher.Routing
	Strict     bool
	TwoStage   bool

	Compression      string
	IncludeTimestamp bool
}

// Engine runs builds. It is safe to reuse for sequential runs.
type Engine struct {
	opts     Options
	renderer corpus.Renderer
	tracker  *progress.Tracker
	clock    corpus.Clock
	logger   *zap.Logger
}

// New builds an Engine. tracker, clock, and logger may be nil.
func New(opts Options, renderer corpus.Renderer, tracker *progress.Tracker, clock corpus.Clock, logger *zap.Logger) *Engine {
	if tracker == nil {
		tracker = progress.NewTracker(nil)
	}
	if clock == nil {
		clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		opts:     opts,
		renderer: renderer,
		tracker:  tracker,
		clock:    clock,
		logger:   logger.Named("pipeline").With(zap.String("run_id", opts.RunID)),
	}
}

// Run scans the dump, renders and normalizes every eligible page, and writes
// the Parquet file. The writer is always finalized, even when the run fails,
// so partial output stays readable.
func (e *Engine) Run(ctx context.Context) (corpus.Report, error) {
	report := corpus.Report{
		RunID:      e.opts.RunID,
		Variant:    e.opts.Variant,
		OutputPath: e.opts.OutputPath,
		StartedAt:  e.clock.Now(),
	}
	if e.renderer == nil {
		return report, errors.New("pipeline needs a renderer")
	}

	if e.opts.CountPages {
		if err := e.countPages(ctx); err != nil {
			return report, err
		}
	}

	dump, err := scanner.OpenDump(e.opts.DumpPath)
	if err != nil {
		return report, err
	}
	defer func() {
		if cerr := dump.Close(); cerr != nil {
			e.logger.Warn("close dump failed", zap.Error(cerr))
		}
	}()

	writer, err := columnar.Create(e.opts.OutputPath, columnar.Options{
		Compression:      e.opts.Compression,
		IncludeTimestamp: e.opts.IncludeTimestamp,
		Metadata: map[string]string{
			columnar.MetaRunID:   e.opts.RunID,
			columnar.MetaVariant: string(e.opts.Variant),
			columnar.MetaStrict:  strconv.FormatBool(e.opts.Strict),
		},
	})
	if err != nil {
		return report, err
	}

	batcher := batch.New(ctx, batch.Config{
		BatchSize:  e.opts.BatchSize,
		BufferSize: e.opts.Workers * 2,
		OnFlush:    e.tracker.BatchWritten,
		Logger:     e.logger,
	}, writer)

	workerCfg := worker.Config{TwoStage: e.opts.TwoStage, Strict: e.opts.Strict}
	workers := make([]dispatcher.Runner, 0, e.opts.Workers)
	for i := range max(e.opts.Workers, 1) {
		workers = append(workers, worker.New(i, e.renderer, batcher, e.tracker, workerCfg, e.logger))
	}
	d := dispatcher.New(dispatcher.Config{
		Routing:    e.opts.Routing,
		QueueDepth: e.opts.QueueDepth,
	}, workers, e.tracker, e.logger)

	e.logger.Info("build started",
		zap.String("dump", e.opts.DumpPath),
		zap.String("output", e.opts.OutputPath),
		zap.String("variant", string(e.opts.Variant)),
		zap.Int("workers", len(workers)),
		zap.Int("batch_size", e.opts.BatchSize),
	)

	summary, runErr := d.Run(ctx, func(ctx context.Context, emit func(corpus.RawPage) error) (corpus.Summary, error) {
		s := scanner.New(dump, scanner.Config{
			RequireTimestamp: e.opts.IncludeTimestamp,
			OnPage:           e.tracker.PageScanned,
			Logger:           e.logger,
		})
		return s.Scan(ctx, emit)
	})

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	closeErr := batcher.Close(closeCtx)

	snap := e.tracker.Snapshot()
	report.Scan = summary
	report.Rendered = snap.Rendered
	report.Dropped = snap.Dropped()
	report.Written = batcher.Written()
	report.RowGroups = batcher.RowGroups()
	report.FinishedAt = e.clock.Now()

	if err := errors.Join(runErr, closeErr); err != nil {
		e.logger.Error("build failed", zap.Int64("written", report.Written), zap.Error(err))
		return report, fmt.Errorf("build %s: %w", e.opts.RunID, err)
	}
	e.logger.Info("build finished",
		zap.Int("total_pages", summary.TotalPages),
		zap.Int("articles", summary.Articles),
		zap.Int64("written", report.Written),
		zap.Int64("dropped", report.Dropped),
		zap.Int64("row_groups", report.RowGroups),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

func (e *Engine) countPages(ctx context.Context) error {
	dump, err := scanner.OpenDump(e.opts.DumpPath)
	if err != nil {
		return err
	}
	defer func() { _ = dump.Close() }()
	n, err := scanner.CountPages(ctx, dump)
	if err != nil {
		return fmt.Errorf("count pages: %w", err)
	}
	e.tracker.SetExpected(int64(n))
	e.logger.Info("dump pages counted", zap.Int("pages", n))
	return nil
}
