package memory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/JakeFAU/wikicorpus/internal/corpus"
)

func TestBlobStoreUploadCopiesMetadata(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	meta := map[string]string{"run_id": "run-1"}
	uri, err := store.Upload(context.Background(), "run-1/out.parquet", strings.NewReader("content"),
		corpus.ObjectAttrs{ContentType: "application/octet-stream", Metadata: meta})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if uri != "memory://run-1/out.parquet" {
		t.Fatalf("unexpected uri %s", uri)
	}
	meta["run_id"] = "changed"

	obj, ok := store.Get("run-1/out.parquet")
	if !ok {
		t.Fatal("expected object to be stored")
	}
	if string(obj.Data) != "content" {
		t.Fatalf("unexpected data %q", obj.Data)
	}
	if obj.Attrs.Metadata["run_id"] != "run-1" {
		t.Fatalf("expected stored metadata to be a copy, got %v", obj.Attrs.Metadata)
	}
}

func TestBlobStoreNamesSorted(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	for _, name := range []string{"b", "a", "c"} {
		if _, err := store.Upload(context.Background(), name, strings.NewReader(name), corpus.ObjectAttrs{}); err != nil {
			t.Fatalf("Upload(%s) error = %v", name, err)
		}
	}
	got := strings.Join(store.Names(), ",")
	if got != "a,b,c" {
		t.Fatalf("Names() = %s", got)
	}
}

func TestBlobStoreUploadCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewBlobStore().Upload(ctx, "x", strings.NewReader("x"), corpus.ObjectAttrs{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
