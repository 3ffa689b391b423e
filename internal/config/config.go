// Package config loads and validates corpus build configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/wikicorpus/internal/corpus"
	"github.com/JakeFAU/wikicorpus/internal/dispatcher"
	"github.com/JakeFAU/wikicorpus/internal/storage/columnar"
)

// EnvPrefix is prepended to every environment override, e.g.
// WIKICORPUS_PIPELINE_WORKERS=40.
const EnvPrefix = "WIKICORPUS"

// Config captures every knob of a build run.
type Config struct {
	Dump     DumpConfig     `mapstructure:"dump"`
	Output   OutputConfig   `mapstructure:"output"`
	Render   RenderConfig   `mapstructure:"render"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Progress ProgressConfig `mapstructure:"progress"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Publish  PublishConfig  `mapstructure:"publish"`
	Manifest ManifestConfig `mapstructure:"manifest"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// DumpConfig locates the input dump.
type DumpConfig struct {
	Path       string `mapstructure:"path"`
	CountPages bool   `mapstructure:"count_pages"`
}

// OutputConfig controls the Parquet file.
type OutputConfig struct {
	Path             string `mapstructure:"path"`
	Compression      string `mapstructure:"compression"`
	IncludeTimestamp bool   `mapstructure:"include_timestamp"`
}

// RenderConfig configures the MediaWiki parse client.
type RenderConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`
	Variant        string        `mapstructure:"variant"`
	TwoStage       bool          `mapstructure:"two_stage"`
	Timeout        time.Duration `mapstructure:"timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BackoffInitial time.Duration `mapstructure:"backoff_initial"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
	Burst          int           `mapstructure:"burst"`
}

// PipelineConfig governs the worker pool and batching.
type PipelineConfig struct {
	Workers    int    `mapstructure:"workers"`
	QueueDepth int    `mapstructure:"queue_depth"`
	BatchSize  int    `mapstructure:"batch_size"`
	Strict     bool   `mapstructure:"strict"`
	Routing    string `mapstructure:"routing"`
}

// ProgressConfig sets the progress log cadence.
type ProgressConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// MetricsConfig enables the ops HTTP listener when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// PublishConfig describes where finished files are archived and announced.
type PublishConfig struct {
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ManifestConfig points at the Postgres run manifest.
type ManifestConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// NewViper returns a Viper instance with defaults and environment binding
// applied, ready for flag binding.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load builds a Config from disk and environment.
func Load(path string) (Config, error) {
	return LoadFrom(NewViper(), path)
}

// LoadFrom reads an optional config file into v and decodes the result.
func LoadFrom(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Output.Path == "" {
		name := cfg.Render.Variant
		if v, err := corpus.ParseVariant(name); err == nil {
			name = string(v)
		}
		cfg.Output.Path = DefaultOutputPath(name)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultOutputPath names the output after the variant, e.g.
// wikipedia-zh-tw.parquet.
func DefaultOutputPath(variant string) string {
	return fmt.Sprintf("wikipedia-%s.parquet", strings.TrimSpace(variant))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dump.path", "")
	v.SetDefault("dump.count_pages", false)
	v.SetDefault("output.path", "")
	v.SetDefault("output.compression", "snappy")
	v.SetDefault("output.include_timestamp", true)
	v.SetDefault("render.endpoint", "http://localhost/w/api.php")
	v.SetDefault("render.variant", string(corpus.VariantTW))
	v.SetDefault("render.two_stage", true)
	v.SetDefault("render.timeout", 30*time.Second)
	v.SetDefault("render.user_agent", "wikicorpus/1.0")
	v.SetDefault("render.max_attempts", 1)
	v.SetDefault("render.backoff_initial", 500*time.Millisecond)
	v.SetDefault("render.backoff_max", 10*time.Second)
	v.SetDefault("render.rate_per_second", 0.0)
	v.SetDefault("render.burst", 1)
	v.SetDefault("pipeline.workers", 20)
	v.SetDefault("pipeline.queue_depth", 16)
	v.SetDefault("pipeline.batch_size", 1000)
	v.SetDefault("pipeline.strict", false)
	v.SetDefault("pipeline.routing", string(dispatcher.RoutingShared))
	v.SetDefault("progress.interval", 30*time.Second)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("publish.local_dir", "")
	v.SetDefault("publish.gcs_bucket", "")
	v.SetDefault("publish.gcs_prefix", "corpora")
	v.SetDefault("publish.project_id", "")
	v.SetDefault("publish.topic", "")
	v.SetDefault("manifest.dsn", "")
	v.SetDefault("manifest.table", "corpus_runs")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if _, err := corpus.ParseVariant(c.Render.Variant); err != nil {
		return fmt.Errorf("render.variant: %w", err)
	}
	if strings.TrimSpace(c.Render.Endpoint) == "" {
		return fmt.Errorf("render.endpoint must be set")
	}
	if c.Render.Timeout <= 0 {
		return fmt.Errorf("render.timeout must be > 0")
	}
	if c.Render.MaxAttempts <= 0 {
		return fmt.Errorf("render.max_attempts must be > 0")
	}
	if c.Render.RatePerSecond < 0 {
		return fmt.Errorf("render.rate_per_second must be >= 0")
	}
	if c.Render.RatePerSecond > 0 && c.Render.Burst <= 0 {
		return fmt.Errorf("render.burst must be > 0 when rate limiting is enabled")
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be > 0")
	}
	if c.Pipeline.QueueDepth <= 0 {
		return fmt.Errorf("pipeline.queue_depth must be > 0")
	}
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline.batch_size must be > 0")
	}
	if _, err := dispatcher.ParseRouting(c.Pipeline.Routing); err != nil {
		return fmt.Errorf("pipeline.routing: %w", err)
	}
	if _, err := columnar.ParseCompression(c.Output.Compression); err != nil {
		return fmt.Errorf("output.compression: %w", err)
	}
	if c.Progress.Interval <= 0 {
		return fmt.Errorf("progress.interval must be > 0")
	}
	if c.Publish.Topic != "" && c.Publish.ProjectID == "" {
		return fmt.Errorf("publish.project_id must be set when publish.topic is set")
	}
	if c.Manifest.DSN != "" && strings.TrimSpace(c.Manifest.Table) == "" {
		return fmt.Errorf("manifest.table must be set when manifest.dsn is set")
	}
	return nil
}

// Variant returns the parsed render variant. Validate guarantees it parses.
func (c Config) Variant() corpus.Variant {
	v, _ := corpus.ParseVariant(c.Render.Variant)
	return v
}
