// Package worker implements the per-page render and normalize loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/wikicorpus/internal/corpus"
	"github.com/JakeFAU/wikicorpus/internal/metrics"
	"github.com/JakeFAU/wikicorpus/internal/normalize"
	"github.com/JakeFAU/wikicorpus/internal/progress"
	"github.com/JakeFAU/wikicorpus/internal/queue/memory"
)

// Render stages used for metrics labels.
const (
	stageTitle = "title"
	stageBody  = "body"
)

// Config controls Worker behavior.
type Config struct {
	// TwoStage renders and normalizes the title before the body and drops
	// pages whose title normalizes to nothing.
	TwoStage bool
	// Strict enables the linguistic line filter on bodies.
	Strict bool
}

// Lane is the queue a worker drains.
type Lane interface {
	Dequeue(ctx context.Context) (corpus.RawPage, error)
}

// Worker consumes raw pages and hands clean pages to the appender.
type Worker struct {
	id       int
	renderer corpus.Renderer
	appender corpus.Appender
	tracker  *progress.Tracker
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Worker. tracker and logger may be nil.
func New(
	id int,
	renderer corpus.Renderer,
	appender corpus.Appender,
	tracker *progress.Tracker,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:       id,
		renderer: renderer,
		appender: appender,
		tracker:  tracker,
		cfg:      cfg,
		logger:   logger.Named("worker").With(zap.Int("worker_id", id)),
	}
}

// Run drains lane until it is closed and empty. It returns nil on a clean
// drain and an error when the context ends or the appender fails.
func (w *Worker) Run(ctx context.Context, lane Lane) error {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	for {
		page, err := lane.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, memory.ErrClosed) {
				return nil
			}
			return fmt.Errorf("worker %d: %w", w.id, err)
		}
		if err := w.Process(ctx, page); err != nil {
			return fmt.Errorf("worker %d: %w", w.id, err)
		}
	}
}

// Process renders, normalizes, and appends one page. With TwoStage the stored
// title is the rendered title, so it carries the variant's script. Render
// failures and empty results drop the page and return nil; only append
// failures and cancellation are returned.
func (w *Worker) Process(ctx context.Context, page corpus.RawPage) error {
	title := strings.TrimSpace(page.Title)
	if w.cfg.TwoStage {
		html, err := w.render(ctx, stageTitle, title)
		if err != nil {
			return w.dropRender(ctx, page, stageTitle, err)
		}
		title = normalize.Normalize(html, normalize.Options{})
		if title == "" {
			w.drop(page, progress.DropEmptyTitle)
			return nil
		}
	}

	html, err := w.render(ctx, stageBody, page.Body)
	if err != nil {
		return w.dropRender(ctx, page, stageBody, err)
	}
	w.tracker.PageRendered()

	content := normalize.Normalize(html, normalize.Options{Strict: w.cfg.Strict})
	if content == "" {
		w.drop(page, progress.DropEmpty)
		return nil
	}

	clean := corpus.CleanPage{
		PageID:     page.PageID,
		RevisionID: page.RevisionID,
		Timestamp:  page.Timestamp,
		Title:      title,
		Content:    content,
	}
	if err := w.appender.Add(ctx, clean); err != nil {
		return fmt.Errorf("append page %d: %w", page.PageID, err)
	}
	return nil
}

func (w *Worker) render(ctx context.Context, stage, markup string) (string, error) {
	start := time.Now()
	html, err := w.renderer.Render(ctx, markup)
	metrics.ObserveRender(stage, err == nil, time.Since(start))
	return html, err
}

func (w *Worker) dropRender(ctx context.Context, page corpus.RawPage, stage string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("render page %d: %w", page.PageID, ctxErr)
	}
	w.logger.Warn("render failed; dropping page",
		zap.Int64("page_id", page.PageID),
		zap.String("title", page.Title),
		zap.String("stage", stage),
		zap.Error(err),
	)
	w.tracker.PageDropped(progress.DropRender)
	return nil
}

func (w *Worker) drop(page corpus.RawPage, reason string) {
	w.logger.Debug("dropping page",
		zap.Int64("page_id", page.PageID),
		zap.String("title", page.Title),
		zap.String("reason", reason),
		zap.Error(corpus.ErrEmptyContent),
	)
	w.tracker.PageDropped(reason)
}
