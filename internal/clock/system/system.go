// Package system provides the wall clock used to stamp build reports.
package system

import "time"

// Clock implements corpus.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC, truncated to milliseconds to match
// the precision stored in Parquet and the run manifest.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
