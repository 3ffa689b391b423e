package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/wikicorpus/internal/api"
	"github.com/JakeFAU/wikicorpus/internal/clock/system"
	"github.com/JakeFAU/wikicorpus/internal/config"
	"github.com/JakeFAU/wikicorpus/internal/corpus"
	"github.com/JakeFAU/wikicorpus/internal/dispatcher"
	"github.com/JakeFAU/wikicorpus/internal/hash/sha256"
	"github.com/JakeFAU/wikicorpus/internal/id/uuid"
	"github.com/JakeFAU/wikicorpus/internal/logging"
	"github.com/JakeFAU/wikicorpus/internal/metrics"
	"github.com/JakeFAU/wikicorpus/internal/pipeline"
	"github.com/JakeFAU/wikicorpus/internal/policy/ratelimit"
	"github.com/JakeFAU/wikicorpus/internal/policy/retry"
	"github.com/JakeFAU/wikicorpus/internal/progress"
	"github.com/JakeFAU/wikicorpus/internal/publish"
	pubsubnotifier "github.com/JakeFAU/wikicorpus/internal/publisher/pubsub"
	"github.com/JakeFAU/wikicorpus/internal/render/mediawiki"
	"github.com/JakeFAU/wikicorpus/internal/storage/gcs"
	"github.com/JakeFAU/wikicorpus/internal/storage/local"
	"github.com/JakeFAU/wikicorpus/internal/storage/postgres"
	"github.com/JakeFAU/wikicorpus/internal/telemetry"
	pkgconfig "github.com/JakeFAU/wikicorpus/pkg/config"
)

var buildFlagKeys = pkgconfig.FlagKeys{
	"dump":              "dump.path",
	"count-pages":       "dump.count_pages",
	"output":            "output.path",
	"compression":       "output.compression",
	"include-timestamp": "output.include_timestamp",
	"endpoint":          "render.endpoint",
	"variant":           "render.variant",
	"two-stage":         "render.two_stage",
	"max-attempts":      "render.max_attempts",
	"rate":              "render.rate_per_second",
	"workers":           "pipeline.workers",
	"queue-depth":       "pipeline.queue_depth",
	"batch-size":        "pipeline.batch_size",
	"strict":            "pipeline.strict",
	"routing":           "pipeline.routing",
	"metrics-addr":      "metrics.addr",
	"local-dir":         "publish.local_dir",
	"gcs-bucket":        "publish.gcs_bucket",
	"topic":             "publish.topic",
	"project":           "publish.project_id",
	"manifest-dsn":      "manifest.dsn",
}

// newBuildCmd creates the 'build' subcommand.
func newBuildCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Render a dump into a Parquet corpus",
		Long: `Scans the dump, renders every article namespace page through the configured
MediaWiki endpoint, normalizes the text, and writes row groups of
pipeline.batch_size rows. When publish or manifest settings are present the
finished file is archived, announced, and recorded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.String("dump", "", "path to the XML dump (.xml, .bz2, .gz, .zst)")
	f.Bool("count-pages", false, "count pages first so progress can report a percentage")
	f.String("output", "", "output Parquet path (default wikipedia-<variant>.parquet)")
	f.String("compression", "snappy", "Parquet codec: snappy, zstd, gzip, none")
	f.Bool("include-timestamp", true, "store the revision timestamp column")
	f.String("endpoint", "", "MediaWiki api.php URL")
	f.String("variant", "", "script variant, e.g. zh-tw")
	f.Bool("two-stage", true, "render titles as well as bodies")
	f.Int("max-attempts", 1, "render attempts per call, 1 disables retries")
	f.Float64("rate", 0, "render calls per second, 0 for unlimited")
	f.Int("workers", 20, "render workers")
	f.Int("queue-depth", 16, "per-lane queue capacity")
	f.Int("batch-size", 1000, "rows per row group")
	f.Bool("strict", false, "apply the stricter line filter")
	f.String("routing", string(dispatcher.RoutingShared), "lane routing: shared or round_robin")
	f.String("metrics-addr", "", "serve /healthz, /metrics, and /v1/progress on this address")
	f.String("local-dir", "", "archive the finished file under this directory")
	f.String("gcs-bucket", "", "archive the finished file to this bucket")
	f.String("topic", "", "Pub/Sub topic for the completion notice")
	f.String("project", "", "Google Cloud project for Pub/Sub")
	f.String("manifest-dsn", "", "Postgres DSN for the run manifest")
	return cmd
}

func runBuild(cmd *cobra.Command, opts *rootOptions) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd, opts, buildFlagKeys)
	if err != nil {
		return err
	}
	if cfg.Dump.Path == "" {
		return errors.New("dump.path must be set")
	}

	runID, err := uuid.New().NewID()
	if err != nil {
		return fmt.Errorf("run id: %w", err)
	}
	base, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return err
	}
	defer func() { _ = logging.Flush(base) }()
	logger := logging.ForRun(base, runID, string(cfg.Variant()))
	metrics.Init()

	tp, err := telemetry.InitTracerProvider(ctx, runID)
	if err != nil {
		return err
	}
	defer func() { _ = tp.Shutdown(context.WithoutCancel(ctx)) }()
	ctx, span := telemetry.StartSpan(ctx, "build",
		attribute.String("run_id", runID),
		attribute.String("variant", string(cfg.Variant())),
	)
	defer span.End()

	renderer, err := newRenderer(cfg, logger)
	if err != nil {
		return err
	}

	tracker := progress.NewTracker(time.Now)
	reporter := progress.NewReporter(tracker, cfg.Progress.Interval, logger)
	reporter.Start(ctx)
	defer reporter.Stop()

	if cfg.Metrics.Addr != "" {
		srvCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		server := api.NewServer(tracker, nil, logger)
		go func() {
			if err := server.ListenAndServe(srvCtx, cfg.Metrics.Addr); err != nil {
				logger.Error("ops listener failed", zap.Error(err))
			}
		}()
	}

	routing, err := dispatcher.ParseRouting(cfg.Pipeline.Routing)
	if err != nil {
		return err
	}
	engine := pipeline.New(pipeline.Options{
		RunID:            runID,
		Variant:          cfg.Variant(),
		DumpPath:         cfg.Dump.Path,
		OutputPath:       cfg.Output.Path,
		CountPages:       cfg.Dump.CountPages,
		Workers:          cfg.Pipeline.Workers,
		QueueDepth:       cfg.Pipeline.QueueDepth,
		BatchSize:        cfg.Pipeline.BatchSize,
		Routing:          routing,
		Strict:           cfg.Pipeline.Strict,
		TwoStage:         cfg.Render.TwoStage,
		Compression:      cfg.Output.Compression,
		IncludeTimestamp: cfg.Output.IncludeTimestamp,
	}, renderer, tracker, system.New(), logger)

	report, err := engine.Run(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build failed")
		return err
	}
	span.SetAttributes(attribute.Int64("rows", report.Written))

	pubCtx, pubSpan := telemetry.StartSpan(ctx, "publish")
	result, err := publishReport(pubCtx, cfg, report, logger)
	if err != nil {
		pubSpan.RecordError(err)
		pubSpan.SetStatus(codes.Error, "publish failed")
	}
	pubSpan.End()
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		corpus.Report
		SHA256    string   `json:"sha256,omitempty"`
		URIs      []string `json:"uris,omitempty"`
		MessageID string   `json:"message_id,omitempty"`
	}{report, result.SHA256, result.URIs, result.MessageID})
}

func newRenderer(cfg config.Config, logger *zap.Logger) (*mediawiki.Client, error) {
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Render.RatePerSecond,
		DefaultBurst: cfg.Render.Burst,
	})
	policy := retry.New(retry.Config{
		MaxAttempts: cfg.Render.MaxAttempts,
		BaseDelay:   cfg.Render.BackoffInitial,
		MaxDelay:    cfg.Render.BackoffMax,
	})
	client, err := mediawiki.New(mediawiki.Config{
		Endpoint:  cfg.Render.Endpoint,
		Variant:   cfg.Variant(),
		UserAgent: cfg.Render.UserAgent,
		Timeout:   cfg.Render.Timeout,
	}, limiter, policy, logger)
	if err != nil {
		return nil, fmt.Errorf("init renderer: %w", err)
	}
	return client, nil
}

// publishReport archives, announces, and records a finished build. Steps
// without configuration are skipped; with none configured only the checksum
// is computed.
func publishReport(ctx context.Context, cfg config.Config, report corpus.Report, logger *zap.Logger) (publish.Result, error) {
	deps := publish.Deps{Hasher: sha256.New(), Clock: system.New()}
	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	if cfg.Publish.LocalDir != "" {
		store, err := local.New(local.Config{BaseDir: cfg.Publish.LocalDir})
		if err != nil {
			return publish.Result{}, fmt.Errorf("init local archive: %w", err)
		}
		deps.Stores = append(deps.Stores, store)
	}
	if cfg.Publish.GCSBucket != "" {
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return publish.Result{}, fmt.Errorf("init gcs client: %w", err)
		}
		closers = append(closers, func() { _ = client.Close() })
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.Publish.GCSBucket, Prefix: cfg.Publish.GCSPrefix})
		if err != nil {
			return publish.Result{}, fmt.Errorf("init gcs archive: %w", err)
		}
		deps.Stores = append(deps.Stores, store)
	}
	if cfg.Publish.Topic != "" {
		client, err := pubsub.NewClient(ctx, cfg.Publish.ProjectID)
		if err != nil {
			return publish.Result{}, fmt.Errorf("init pubsub client: %w", err)
		}
		notifier := pubsubnotifier.New(client.Topic(cfg.Publish.Topic))
		closers = append(closers, func() { _ = client.Close() }, notifier.Stop)
		deps.Notifier = notifier
	}
	if cfg.Manifest.DSN != "" {
		runs, err := postgres.NewRunStore(ctx, postgres.RunStoreConfig{DSN: cfg.Manifest.DSN, Table: cfg.Manifest.Table})
		if err != nil {
			return publish.Result{}, fmt.Errorf("init manifest: %w", err)
		}
		closers = append(closers, runs.Close)
		if err := runs.EnsureSchema(ctx); err != nil {
			return publish.Result{}, err
		}
		deps.Recorder = runs
	}

	pub, err := publish.New(deps, logger)
	if err != nil {
		return publish.Result{}, err
	}
	return pub.Publish(ctx, publish.Artifact{Path: report.OutputPath, Report: report})
}
