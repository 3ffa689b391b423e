// Package progress tracks how far a corpus build has advanced. Workers and
// the batcher record into a Tracker, which mirrors every counter into
// Prometheus and serves a JSON snapshot to the ops API. A Reporter logs the
// snapshot on a fixed interval for runs without a metrics scraper.
package progress
