// Package publish archives a finished corpus file and announces it.
package publish

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/wikicorpus/internal/corpus"
)

// ContentType is the media type recorded on archived corpus files.
const ContentType = "application/vnd.apache.parquet"

// Artifact is a finished build ready to publish.
type Artifact struct {
	Path   string
	Report corpus.Report
}

// Result describes what Publish did.
type Result struct {
	SHA256    string
	URIs      []string
	MessageID string
}

// Deps are the optional collaborators. Nil members skip their step; Hasher
// and Clock are required.
type Deps struct {
	Hasher   corpus.Hasher
	Clock    corpus.Clock
	Stores   []corpus.ObjectStore
	Notifier corpus.Notifier
	Recorder corpus.RunRecorder
}

// Publisher runs checksum, archive, notify, and manifest steps in order.
type Publisher struct {
	deps   Deps
	logger *zap.Logger
}

// New builds a Publisher.
func New(deps Deps, logger *zap.Logger) (*Publisher, error) {
	if deps.Hasher == nil {
		return nil, fmt.Errorf("hasher is required")
	}
	if deps.Clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{deps: deps, logger: logger.Named("publisher")}, nil
}

// Publish checksums the artifact, uploads it to every store under
// <run_id>/<file name>, sends the completion notice, and records the run.
// The first failing step aborts the rest.
func (p *Publisher) Publish(ctx context.Context, art Artifact) (Result, error) {
	var res Result
	report := art.Report

	sum, err := p.checksum(art.Path)
	if err != nil {
		return res, err
	}
	res.SHA256 = sum

	name := path.Join(report.RunID, filepath.Base(art.Path))
	attrs := corpus.ObjectAttrs{
		ContentType: ContentType,
		Metadata: map[string]string{
			"run_id":     report.RunID,
			"variant":    string(report.Variant),
			"sha256":     sum,
			"rows":       strconv.FormatInt(report.Written, 10),
			"row_groups": strconv.FormatInt(report.RowGroups, 10),
		},
	}
	for _, store := range p.deps.Stores {
		uri, err := p.upload(ctx, store, art.Path, name, attrs)
		if err != nil {
			return res, err
		}
		res.URIs = append(res.URIs, uri)
		p.logger.Info("corpus archived", zap.String("uri", uri))
	}

	if p.deps.Notifier != nil {
		id, err := p.deps.Notifier.Notify(ctx, corpus.PublishedEvent{
			RunID:       report.RunID,
			Variant:     report.Variant,
			URIs:        res.URIs,
			SHA256:      sum,
			Rows:        report.Written,
			RowGroups:   report.RowGroups,
			Articles:    report.Scan.Articles,
			Variants:    report.Scan.Variants,
			PublishedAt: p.deps.Clock.Now(),
		})
		if err != nil {
			return res, fmt.Errorf("notify: %w", err)
		}
		res.MessageID = id
		p.logger.Info("completion notice sent", zap.String("message_id", id))
	}

	if p.deps.Recorder != nil {
		if err := p.deps.Recorder.RecordRun(ctx, report, res.URIs, sum); err != nil {
			return res, fmt.Errorf("record run: %w", err)
		}
		p.logger.Info("run recorded", zap.String("run_id", report.RunID))
	}
	return res, nil
}

func (p *Publisher) checksum(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("%w: open artifact: %w", corpus.ErrStorage, err)
	}
	defer func() { _ = f.Close() }()
	sum, err := p.deps.Hasher.HashReader(f)
	if err != nil {
		return "", fmt.Errorf("checksum: %w", err)
	}
	return sum, nil
}

func (p *Publisher) upload(ctx context.Context, store corpus.ObjectStore, filePath, name string, attrs corpus.ObjectAttrs) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("%w: open artifact: %w", corpus.ErrStorage, err)
	}
	defer func() { _ = f.Close() }()
	uri, err := store.Upload(ctx, name, f, attrs)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	return uri, nil
}
