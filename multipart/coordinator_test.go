package multipart

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/hafiz-io/hafiz/blobstore"
	"github.com/hafiz-io/hafiz/cmn"
	"github.com/hafiz-io/hafiz/metadata"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	cmn.InitIDGenerator(2)
	dir, err := os.MkdirTemp("", "multipart-test-")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	blobs := blobstore.NewStore(dir)
	if err := blobs.CreateBucket("b1"); err != nil {
		t.Fatal(err)
	}
	meta, err := metadata.OpenBunt(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { meta.Close() })
	if err := meta.CreateBucket(context.Background(), metadata.Bucket{Name: "b1", CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	c := NewCoordinator(blobs, meta)
	c.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return c
}

func TestMultipartLifecycle(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	uploadID, err := c.Initiate(ctx, "b1", "k1", "application/octet-stream", nil, "alice")
	if err != nil {
		t.Fatal(err)
	}

	part1 := bytes.Repeat([]byte("a"), minPartSize)
	part2 := []byte("tail")

	etag1, err := c.UploadPart(ctx, "b1", uploadID, 1, bytes.NewReader(part1))
	if err != nil {
		t.Fatal(err)
	}
	etag2, err := c.UploadPart(ctx, "b1", uploadID, 2, bytes.NewReader(part2))
	if err != nil {
		t.Fatal(err)
	}

	parts, err := c.ListParts(ctx, "b1", uploadID)
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}

	res, err := c.Complete(ctx, "b1", "k1", uploadID, []CompletedPart{
		{PartNumber: 1, ETag: etag1},
		{PartNumber: 2, ETag: etag2},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.VersionID != cmn.NullVersionID {
		t.Fatalf("expected null version id, got %q", res.VersionID)
	}

	v, ok, err := c.Meta.GetLatestVersion(ctx, "b1", "k1")
	if err != nil || !ok {
		t.Fatalf("expected assembled version, ok=%v err=%v", ok, err)
	}
	if v.Size != int64(len(part1)+len(part2)) {
		t.Fatalf("expected size %d, got %d", len(part1)+len(part2), v.Size)
	}

	if _, _, err := c.Blobs.Get("b1", "k1"); err != nil {
		t.Fatalf("expected assembled blob readable, got %v", err)
	}
}

func TestCompleteRejectsSmallNonLastPart(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	uploadID, err := c.Initiate(ctx, "b1", "k1", "", nil, "alice")
	if err != nil {
		t.Fatal(err)
	}
	etag1, err := c.UploadPart(ctx, "b1", uploadID, 1, bytes.NewReader([]byte("short")))
	if err != nil {
		t.Fatal(err)
	}
	etag2, err := c.UploadPart(ctx, "b1", uploadID, 2, bytes.NewReader([]byte("also short")))
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.Complete(ctx, "b1", "k1", uploadID, []CompletedPart{
		{PartNumber: 1, ETag: etag1},
		{PartNumber: 2, ETag: etag2},
	})
	if err == nil {
		t.Fatal("expected EntityTooSmall for a non-last undersized part")
	}
}

func TestAbortRemovesParts(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	uploadID, err := c.Initiate(ctx, "b1", "k1", "", nil, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.UploadPart(ctx, "b1", uploadID, 1, bytes.NewReader([]byte("x"))); err != nil {
		t.Fatal(err)
	}
	if err := c.Abort(ctx, "b1", uploadID); err != nil {
		t.Fatal(err)
	}
	if _, err := c.ListParts(ctx, "b1", uploadID); !cmn.IsNotFound(err) {
		t.Fatalf("expected NoSuchUpload after abort, got %v", err)
	}
}
