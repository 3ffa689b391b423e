package corpus

import (
	"context"
	"io"
	"time"
)

// Renderer converts raw wiki markup into HTML.
type Renderer interface {
	Render(ctx context.Context, markup string) (string, error)
}

// BatchWriter persists one batch of pages as a single row group.
// Implementations must not retain the slice after WriteBatch returns.
type BatchWriter interface {
	WriteBatch(ctx context.Context, pages []CleanPage) error
	Close(ctx context.Context) error
}

// Appender accepts cleaned pages from workers.
type Appender interface {
	Add(ctx context.Context, page CleanPage) error
}

// ObjectAttrs describes an archived corpus file.
type ObjectAttrs struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ObjectStore archives finished corpus files and returns a URI.
type ObjectStore interface {
	Upload(ctx context.Context, name string, r io.Reader, attrs ObjectAttrs) (string, error)
}

// Notifier announces a published corpus.
type Notifier interface {
	Notify(ctx context.Context, event PublishedEvent) (string, error)
}

// RunRecorder persists a manifest row per finished run.
type RunRecorder interface {
	RecordRun(ctx context.Context, report Report, uris []string, checksum string) error
}

// Hasher computes content digests.
type Hasher interface {
	HashReader(r io.Reader) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// PublishedEvent is the completion notice sent after a corpus is archived.
type PublishedEvent struct {
	RunID       string          `json:"run_id"`
	Variant     Variant         `json:"variant"`
	URIs        []string        `json:"uris"`
	SHA256      string          `json:"sha256"`
	Rows        int64           `json:"rows"`
	RowGroups   int64           `json:"row_groups"`
	Articles    int             `json:"articles"`
	Variants    VariantCounters `json:"variants"`
	PublishedAt time.Time       `json:"published_at"`
}
