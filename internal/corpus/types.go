// Package corpus defines core types shared across the corpus build pipeline.
package corpus

import "time"

// RawPage is an eligible article page as it appears in the dump.
type RawPage struct {
	PageID     int64
	RevisionID int64
	Timestamp  time.Time
	Title      string
	Body       string
}

// CleanPage is a rendered and normalized page ready to be stored.
type CleanPage struct {
	PageID     int64     `json:"id"`
	RevisionID int64     `json:"revision_id"`
	Timestamp  time.Time `json:"timestamp,omitzero"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
}

// TimestampMillis returns the page timestamp as Unix milliseconds, or 0 when absent.
func (p CleanPage) TimestampMillis() int64 {
	if p.Timestamp.IsZero() {
		return 0
	}
	return p.Timestamp.UnixMilli()
}

// Summary is returned once a dump has been fully scanned.
type Summary struct {
	TotalPages int             `json:"total_pages"`
	Articles   int             `json:"articles"`
	Variants   VariantCounters `json:"variants"`
}

// Report describes a finished build run.
type Report struct {
	RunID      string    `json:"run_id"`
	Variant    Variant   `json:"variant"`
	OutputPath string    `json:"output_path"`
	Scan       Summary   `json:"scan"`
	Rendered   int64     `json:"rendered"`
	Dropped    int64     `json:"dropped"`
	Written    int64     `json:"written"`
	RowGroups  int64     `json:"row_groups"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
