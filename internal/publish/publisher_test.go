package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/wikicorpus/internal/corpus"
	"github.com/JakeFAU/wikicorpus/internal/hash/sha256"
	"github.com/JakeFAU/wikicorpus/internal/storage/local"
	"github.com/JakeFAU/wikicorpus/internal/storage/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fakeNotifier struct {
	events []corpus.PublishedEvent
	err    error
}

func (n *fakeNotifier) Notify(_ context.Context, event corpus.PublishedEvent) (string, error) {
	if n.err != nil {
		return "", n.err
	}
	n.events = append(n.events, event)
	return "msg-1", nil
}

type fakeRecorder struct {
	reports  []corpus.Report
	uris     []string
	checksum string
}

func (r *fakeRecorder) RecordRun(_ context.Context, report corpus.Report, uris []string, checksum string) error {
	r.reports = append(r.reports, report)
	r.uris = uris
	r.checksum = checksum
	return nil
}

const helloWorld = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

func writeArtifact(t *testing.T) Artifact {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wikipedia-zh-tw.parquet")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o600))
	return Artifact{
		Path: path,
		Report: corpus.Report{
			RunID:     "run-7",
			Variant:   corpus.VariantTW,
			Written:   12,
			RowGroups: 1,
			Scan:      corpus.Summary{Articles: 20, Variants: corpus.VariantCounters{corpus.VariantTW: 2}},
		},
	}
}

func TestPublishRunsEveryStep(t *testing.T) {
	t.Parallel()

	archiveDir := t.TempDir()
	disk, err := local.New(local.Config{BaseDir: archiveDir})
	require.NoError(t, err)
	mem := memory.NewBlobStore()
	notifier := &fakeNotifier{}
	recorder := &fakeRecorder{}
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	pub, err := New(Deps{
		Hasher:   sha256.New(),
		Clock:    fixedClock{now: now},
		Stores:   []corpus.ObjectStore{disk, mem},
		Notifier: notifier,
		Recorder: recorder,
	}, nil)
	require.NoError(t, err)

	art := writeArtifact(t)
	res, err := pub.Publish(context.Background(), art)
	require.NoError(t, err)

	require.Equal(t, helloWorld, res.SHA256)
	require.Len(t, res.URIs, 2)
	require.True(t, strings.HasSuffix(res.URIs[0], filepath.Join("run-7", "wikipedia-zh-tw.parquet")))
	require.Equal(t, "memory://run-7/wikipedia-zh-tw.parquet", res.URIs[1])
	require.Equal(t, "msg-1", res.MessageID)

	copied, err := os.ReadFile(filepath.Join(archiveDir, "run-7", "wikipedia-zh-tw.parquet"))
	require.NoError(t, err)
	require.Equal(t, "hello world", string(copied))
	obj, ok := mem.Get("run-7/wikipedia-zh-tw.parquet")
	require.True(t, ok)
	require.Equal(t, "hello world", string(obj.Data))
	require.Equal(t, ContentType, obj.Attrs.ContentType)
	require.Equal(t, helloWorld, obj.Attrs.Metadata["sha256"])
	require.Equal(t, "12", obj.Attrs.Metadata["rows"])

	require.Len(t, notifier.events, 1)
	require.Equal(t, res.URIs, notifier.events[0].URIs)
	require.Equal(t, now, notifier.events[0].PublishedAt)
	require.Equal(t, 20, notifier.events[0].Articles)

	require.Len(t, recorder.reports, 1)
	require.Equal(t, helloWorld, recorder.checksum)
	require.Equal(t, res.URIs, recorder.uris)
}

func TestPublishChecksumOnly(t *testing.T) {
	t.Parallel()

	pub, err := New(Deps{Hasher: sha256.New(), Clock: fixedClock{}}, nil)
	require.NoError(t, err)
	res, err := pub.Publish(context.Background(), writeArtifact(t))
	require.NoError(t, err)
	require.Equal(t, helloWorld, res.SHA256)
	require.Empty(t, res.URIs)
	require.Empty(t, res.MessageID)
}

func TestPublishStopsOnNotifyFailure(t *testing.T) {
	t.Parallel()

	recorder := &fakeRecorder{}
	pub, err := New(Deps{
		Hasher:   sha256.New(),
		Clock:    fixedClock{},
		Notifier: &fakeNotifier{err: errors.New("topic not found")},
		Recorder: recorder,
	}, nil)
	require.NoError(t, err)

	_, err = pub.Publish(context.Background(), writeArtifact(t))
	require.ErrorContains(t, err, "notify: topic not found")
	require.Empty(t, recorder.reports)
}

func TestPublishMissingArtifact(t *testing.T) {
	t.Parallel()

	pub, err := New(Deps{Hasher: sha256.New(), Clock: fixedClock{}}, nil)
	require.NoError(t, err)
	_, err = pub.Publish(context.Background(), Artifact{Path: filepath.Join(t.TempDir(), "missing.parquet")})
	require.ErrorIs(t, err, corpus.ErrStorage)
}

func TestNewRequiresHasherAndClock(t *testing.T) {
	t.Parallel()

	_, err := New(Deps{Clock: fixedClock{}}, nil)
	require.Error(t, err)
	_, err = New(Deps{Hasher: sha256.New()}, nil)
	require.Error(t, err)
}
