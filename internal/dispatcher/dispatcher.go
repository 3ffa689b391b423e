// Package dispatcher fans scanned pages out to a fixed pool of workers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/wikicorpus/internal/corpus"
	"github.com/JakeFAU/wikicorpus/internal/progress"
	"github.com/JakeFAU/wikicorpus/internal/queue/memory"
	"github.com/JakeFAU/wikicorpus/internal/worker"
)

// Routing selects how pages are assigned to workers.
type Routing string

const (
	// RoutingShared puts every page on one queue that all workers pull from.
	RoutingShared Routing = "shared"
	// RoutingRoundRobin gives each worker its own queue and assigns pages by
	// emission index. Each lane preserves input order.
	RoutingRoundRobin Routing = "round_robin"
)

const defaultQueueDepth = 16

// ParseRouting validates a routing name. Empty means shared.
func ParseRouting(s string) (Routing, error) {
	switch Routing(strings.ToLower(strings.TrimSpace(s))) {
	case "", RoutingShared:
		return RoutingShared, nil
	case RoutingRoundRobin:
		return RoutingRoundRobin, nil
	default:
		return "", fmt.Errorf("unknown routing %q", s)
	}
}

// Config controls lane layout.
type Config struct {
	Routing    Routing
	QueueDepth int
}

// Runner drains one lane. *worker.Worker implements it.
type Runner interface {
	Run(ctx context.Context, lane worker.Lane) error
}

// Source produces pages by calling emit for each one and returns the scan
// summary once the input is exhausted.
type Source func(ctx context.Context, emit func(corpus.RawPage) error) (corpus.Summary, error)

// Dispatcher owns the lanes between the scanner and the workers.
type Dispatcher struct {
	cfg     Config
	workers []Runner
	tracker *progress.Tracker
	logger  *zap.Logger
}

// New creates a Dispatcher. tracker and logger may be nil.
func New(cfg Config, workers []Runner, tracker *progress.Tracker, logger *zap.Logger) *Dispatcher {
	if cfg.Routing == "" {
		cfg.Routing = RoutingShared
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = defaultQueueDepth
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		cfg:     cfg,
		workers: workers,
		tracker: tracker,
		logger:  logger.Named("dispatcher"),
	}
}

// Run starts the workers, feeds them from source, and blocks until every
// lane is drained. The first fatal error from the source or any worker
// cancels the rest and is returned.
func (d *Dispatcher) Run(ctx context.Context, source Source) (corpus.Summary, error) {
	if len(d.workers) == 0 {
		return corpus.Summary{}, errors.New("dispatcher needs at least one worker")
	}
	lanes := d.newLanes()
	g, gctx := errgroup.WithContext(ctx)

	for i, w := range d.workers {
		lane := lanes[i%len(lanes)]
		g.Go(func() error {
			return w.Run(gctx, lane)
		})
	}

	var summary corpus.Summary
	g.Go(func() error {
		defer closeLanes(lanes)
		var next int
		emit := func(page corpus.RawPage) error {
			lane := lanes[next%len(lanes)]
			next++
			if err := lane.Enqueue(gctx, page); err != nil {
				return err
			}
			d.tracker.PageDispatched()
			return nil
		}
		s, err := source(gctx, emit)
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		summary = s
		d.logger.Info("scan complete",
			zap.Int("total_pages", s.TotalPages),
			zap.Int("articles", s.Articles),
			zap.Int("dispatched", next),
		)
		return nil
	})

	if err := g.Wait(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (d *Dispatcher) newLanes() []*memory.Queue {
	n := 1
	if d.cfg.Routing == RoutingRoundRobin {
		n = len(d.workers)
	}
	lanes := make([]*memory.Queue, n)
	for i := range lanes {
		lanes[i] = memory.NewQueue(d.cfg.QueueDepth)
	}
	return lanes
}

func closeLanes(lanes []*memory.Queue) {
	for _, lane := range lanes {
		lane.Close()
	}
}
