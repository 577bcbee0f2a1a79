package objectsvc

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/hafiz-io/hafiz/blobstore"
	"github.com/hafiz-io/hafiz/cmn"
	"github.com/hafiz-io/hafiz/metadata"
)

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	cmn.InitIDGenerator(1)
	dir, err := os.MkdirTemp("", "objectsvc-test-")
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

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := &Service{Blobs: blobs, Meta: meta, Now: func() time.Time { return now }}
	return svc, dir
}

func createBucket(t *testing.T, svc *Service, name string, versioning string, lockEnabled bool) {
	t.Helper()
	if err := svc.Meta.CreateBucket(context.Background(), metadata.Bucket{
		Name: name, Versioning: versioning, ObjectLockEnabled: lockEnabled, CreatedAt: svc.now(),
	}); err != nil {
		t.Fatal(err)
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	createBucket(t, svc, "b1", "", false)

	res, err := svc.Put(context.Background(), "b1", "k1", PutInput{Body: bytes.NewReader([]byte("hello")), ContentType: "text/plain"})
	if err != nil {
		t.Fatal(err)
	}
	if res.VersionID != cmn.NullVersionID {
		t.Fatalf("expected null version id for unversioned bucket, got %q", res.VersionID)
	}

	got, err := svc.Get(context.Background(), "b1", "k1", "", "")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(got.Body)
	got.Body.Close()
	if string(body) != "hello" {
		t.Fatalf("got body %q", body)
	}
	if got.Version.ETag != res.ETag {
		t.Fatalf("etag mismatch: %q vs %q", got.Version.ETag, res.ETag)
	}
}

func TestPutOverwriteUnderEnabledVersioningKeepsBothBodies(t *testing.T) {
	svc, _ := newTestService(t)
	createBucket(t, svc, "b1", "Enabled", false)

	r1, err := svc.Put(context.Background(), "b1", "k1", PutInput{Body: bytes.NewReader([]byte("v1"))})
	if err != nil {
		t.Fatal(err)
	}
	r2, err := svc.Put(context.Background(), "b1", "k1", PutInput{Body: bytes.NewReader([]byte("v2"))})
	if err != nil {
		t.Fatal(err)
	}
	if r1.VersionID == r2.VersionID {
		t.Fatal("expected distinct version ids")
	}

	g1, err := svc.Get(context.Background(), "b1", "k1", r1.VersionID, "")
	if err != nil {
		t.Fatal(err)
	}
	b1, _ := io.ReadAll(g1.Body)
	g1.Body.Close()
	if string(b1) != "v1" {
		t.Fatalf("old version body corrupted: %q", b1)
	}

	g2, err := svc.Get(context.Background(), "b1", "k1", "", "")
	if err != nil {
		t.Fatal(err)
	}
	b2, _ := io.ReadAll(g2.Body)
	g2.Body.Close()
	if string(b2) != "v2" {
		t.Fatalf("latest version body wrong: %q", b2)
	}
}

func TestDeleteUnversionedRemovesBlob(t *testing.T) {
	svc, _ := newTestService(t)
	createBucket(t, svc, "b1", "", false)

	if _, err := svc.Put(context.Background(), "b1", "k1", PutInput{Body: bytes.NewReader([]byte("x"))}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Delete(context.Background(), "b1", "k1", "", false); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(context.Background(), "b1", "k1", "", ""); !cmn.IsNotFound(err) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestDeleteEnabledVersioningCreatesDeleteMarker(t *testing.T) {
	svc, _ := newTestService(t)
	createBucket(t, svc, "b1", "Enabled", false)

	if _, err := svc.Put(context.Background(), "b1", "k1", PutInput{Body: bytes.NewReader([]byte("x"))}); err != nil {
		t.Fatal(err)
	}
	delRes, err := svc.Delete(context.Background(), "b1", "k1", "", false)
	if err != nil {
		t.Fatal(err)
	}
	if !delRes.DeleteMarker {
		t.Fatal("expected a delete marker")
	}

	_, err = svc.Get(context.Background(), "b1", "k1", "", "")
	if !cmn.IsNotFound(err) {
		t.Fatalf("expected NoSuchKey against a delete marker, got %v", err)
	}
}

// TestPutBlockedByComplianceRetention covers the Suspended/Unversioned case,
// where a PUT with the same key targets the locked version's own "null"
// slot and must be blocked.
func TestPutBlockedByComplianceRetention(t *testing.T) {
	svc, _ := newTestService(t)
	createBucket(t, svc, "b1", "Suspended", true)

	r1, err := svc.Put(context.Background(), "b1", "k1", PutInput{Body: bytes.NewReader([]byte("x"))})
	if err != nil {
		t.Fatal(err)
	}
	future := svc.now().Add(24 * time.Hour)
	if err := svc.SetRetention(context.Background(), "b1", "k1", r1.VersionID, "Compliance", future, false); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Put(context.Background(), "b1", "k1", PutInput{Body: bytes.NewReader([]byte("y"))}); err == nil {
		t.Fatal("expected Compliance retention to block overwrite")
	}
}

// TestPutUnderEnabledVersioningNotBlockedByComplianceRetention covers
// spec.md §8 Testable Property 7: in an Enabled bucket, a PUT to the same
// key always creates a brand-new version and never touches the existing
// Compliance-locked version, so it must succeed.
func TestPutUnderEnabledVersioningNotBlockedByComplianceRetention(t *testing.T) {
	svc, _ := newTestService(t)
	createBucket(t, svc, "b1", "Enabled", true)

	r1, err := svc.Put(context.Background(), "b1", "k1", PutInput{Body: bytes.NewReader([]byte("x"))})
	if err != nil {
		t.Fatal(err)
	}
	future := svc.now().Add(24 * time.Hour)
	if err := svc.SetRetention(context.Background(), "b1", "k1", r1.VersionID, "Compliance", future, false); err != nil {
		t.Fatal(err)
	}

	r2, err := svc.Put(context.Background(), "b1", "k1", PutInput{Body: bytes.NewReader([]byte("y"))})
	if err != nil {
		t.Fatalf("expected Enabled-versioning PUT to succeed alongside a locked prior version, got %v", err)
	}
	if r2.VersionID == r1.VersionID {
		t.Fatal("expected a new version id, not the locked version")
	}
}

func TestRetentionShorteningRules(t *testing.T) {
	svc, _ := newTestService(t)
	createBucket(t, svc, "b1", "Enabled", true)

	r1, _ := svc.Put(context.Background(), "b1", "k1", PutInput{Body: bytes.NewReader([]byte("x"))})
	far := svc.now().Add(48 * time.Hour)
	near := svc.now().Add(1 * time.Hour)

	if err := svc.SetRetention(context.Background(), "b1", "k1", r1.VersionID, "Governance", far, false); err != nil {
		t.Fatal(err)
	}
	if err := svc.SetRetention(context.Background(), "b1", "k1", r1.VersionID, "Governance", near, false); err == nil {
		t.Fatal("expected shortening Governance retention without bypass to fail")
	}
	if err := svc.SetRetention(context.Background(), "b1", "k1", r1.VersionID, "Governance", near, true); err != nil {
		t.Fatal(err)
	}
	if err := svc.SetRetention(context.Background(), "b1", "k1", r1.VersionID, "Compliance", far, false); err != nil {
		t.Fatal(err)
	}
	if err := svc.SetRetention(context.Background(), "b1", "k1", r1.VersionID, "Compliance", near, true); err == nil {
		t.Fatal("expected Compliance retention to never allow shortening, even with bypass")
	}
}

func TestCopyPreservesETagAndMetadata(t *testing.T) {
	svc, _ := newTestService(t)
	createBucket(t, svc, "b1", "", false)

	src, err := svc.Put(context.Background(), "b1", "src", PutInput{Body: bytes.NewReader([]byte("payload")), ContentType: "application/octet-stream"})
	if err != nil {
		t.Fatal(err)
	}

	cpRes, err := svc.Copy(context.Background(), "b1", "dst", CopyInput{SrcBucket: "b1", SrcKey: "src"})
	if err != nil {
		t.Fatal(err)
	}
	if cpRes.ETag != src.ETag {
		t.Fatalf("copy etag %q != source etag %q", cpRes.ETag, src.ETag)
	}

	got, err := svc.Get(context.Background(), "b1", "dst", "", "")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(got.Body)
	got.Body.Close()
	if string(body) != "payload" {
		t.Fatalf("copied body corrupted: %q", body)
	}
	if got.Version.ContentType != "application/octet-stream" {
		t.Fatalf("expected carried-forward content type, got %q", got.Version.ContentType)
	}
}

func TestGetRangeRequest(t *testing.T) {
	svc, _ := newTestService(t)
	createBucket(t, svc, "b1", "", false)

	if _, err := svc.Put(context.Background(), "b1", "k1", PutInput{Body: bytes.NewReader([]byte("0123456789"))}); err != nil {
		t.Fatal(err)
	}
	got, err := svc.Get(context.Background(), "b1", "k1", "", "bytes=2-4")
	if err != nil {
		t.Fatal(err)
	}
	defer got.Body.Close()
	body, _ := io.ReadAll(got.Body)
	if string(body) != "234" {
		t.Fatalf("expected range body %q, got %q", "234", body)
	}
}

func TestSetTagsRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	createBucket(t, svc, "b1", "", false)

	if _, err := svc.Put(context.Background(), "b1", "k1", PutInput{Body: bytes.NewReader([]byte("x"))}); err != nil {
		t.Fatal(err)
	}
	if err := svc.SetTags(context.Background(), "b1", "k1", "", map[string]string{"env": "prod"}); err != nil {
		t.Fatal(err)
	}
	tags, err := svc.GetTags(context.Background(), "b1", "k1", "")
	if err != nil {
		t.Fatal(err)
	}
	if tags["env"] != "prod" {
		t.Fatalf("expected tag round trip, got %v", tags)
	}
}
