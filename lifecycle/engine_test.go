package lifecycle

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/hafiz-io/hafiz/blobstore"
	"github.com/hafiz-io/hafiz/cmn"
	"github.com/hafiz-io/hafiz/metadata"
)

func newTestEngine(t *testing.T) (*Engine, time.Time) {
	t.Helper()
	cmn.InitIDGenerator(3)
	dir, err := os.MkdirTemp("", "lifecycle-test-")
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

	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	e := &Engine{Blobs: blobs, Meta: meta, Now: func() time.Time { return now }}
	return e, now
}

// TestExpireCurrentVersionByAge covers spec.md §8 item 9: a rule with a
// Days-based current-version expiration removes an object whose
// last_modified is older than the threshold, and leaves a younger one
// untouched.
func TestExpireCurrentVersionByAge(t *testing.T) {
	e, now := newTestEngine(t)
	ctx := context.Background()

	if err := e.Meta.CreateBucket(ctx, metadata.Bucket{
		Name: "b1", CreatedAt: now,
		Lifecycle: &metadata.LifecycleConfig{Rules: []metadata.LifecycleRule{
			{ID: "expire-old", Status: "Enabled", Filter: metadata.LifecycleFilter{Kind: "All"}, ExpirationDays: 7},
		}},
	}); err != nil {
		t.Fatal(err)
	}

	old := now.Add(-10 * 24 * time.Hour)
	fresh := now.Add(-1 * 24 * time.Hour)

	if _, err := e.Blobs.Put("b1", "old-key", strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}
	if err := e.Meta.InsertVersion(ctx, metadata.Version{
		Bucket: "b1", Key: "old-key", VersionID: cmn.NullVersionID, IsLatest: true, LastModified: old,
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := e.Blobs.Put("b1", "fresh-key", strings.NewReader("y")); err != nil {
		t.Fatal(err)
	}
	if err := e.Meta.InsertVersion(ctx, metadata.Version{
		Bucket: "b1", Key: "fresh-key", VersionID: cmn.NullVersionID, IsLatest: true, LastModified: fresh,
	}); err != nil {
		t.Fatal(err)
	}

	report, err := e.Tick(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.ExpiredCurrent != 1 {
		t.Fatalf("expected 1 expired current version, got %d", report.ExpiredCurrent)
	}

	if _, ok, _ := e.Meta.GetLatestVersion(ctx, "b1", "old-key"); ok {
		t.Fatal("expected old-key's version to be deleted")
	}
	if _, ok, _ := e.Meta.GetLatestVersion(ctx, "b1", "fresh-key"); !ok {
		t.Fatal("expected fresh-key to survive the sweep")
	}
}

// TestExpireCurrentVersionByAgeUnderEnabledVersioningCreatesDeleteMarker
// covers spec.md §4.8 step 4's first bullet: in an Enabled bucket, an aged-
// out current version is tombstoned by appending a delete marker rather
// than being permanently removed, preserving it as a noncurrent version.
func TestExpireCurrentVersionByAgeUnderEnabledVersioningCreatesDeleteMarker(t *testing.T) {
	e, now := newTestEngine(t)
	ctx := context.Background()

	if err := e.Meta.CreateBucket(ctx, metadata.Bucket{
		Name: "b1", CreatedAt: now, Versioning: "Enabled",
		Lifecycle: &metadata.LifecycleConfig{Rules: []metadata.LifecycleRule{
			{ID: "expire-old", Status: "Enabled", Filter: metadata.LifecycleFilter{Kind: "All"}, ExpirationDays: 7},
		}},
	}); err != nil {
		t.Fatal(err)
	}

	old := now.Add(-10 * 24 * time.Hour)
	versionID := cmn.GenVersionID()
	if _, err := e.Blobs.Put("b1", "old-key", strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}
	if err := e.Meta.InsertVersion(ctx, metadata.Version{
		Bucket: "b1", Key: "old-key", VersionID: versionID, IsLatest: true, LastModified: old,
	}); err != nil {
		t.Fatal(err)
	}

	report, err := e.Tick(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.DeleteMarkersAdded != 1 {
		t.Fatalf("expected 1 delete marker added, got report %+v", report)
	}
	if report.ExpiredCurrent != 0 {
		t.Fatalf("expected no permanent removal under Enabled versioning, got report %+v", report)
	}

	latest, ok, err := e.Meta.GetLatestVersion(ctx, "b1", "old-key")
	if err != nil || !ok {
		t.Fatalf("expected a latest version (the delete marker) to remain, ok=%v err=%v", ok, err)
	}
	if !latest.DeleteMarker {
		t.Fatalf("expected the new latest version to be a delete marker, got %+v", latest)
	}

	all, err := e.Meta.ListAllVersions(ctx, "b1")
	if err != nil {
		t.Fatal(err)
	}
	foundOriginal := false
	for _, v := range all {
		if v.VersionID == versionID {
			foundOriginal = true
			if v.IsLatest {
				t.Fatal("expected the original version to be demoted to noncurrent")
			}
		}
	}
	if !foundOriginal {
		t.Fatal("expected the original version to survive as a noncurrent version")
	}
}

// TestExpiredObjectDeleteMarkerRemovedWhenNoOtherVersionsRemain covers
// spec.md §4.8 step 4's third bullet: once a key's only remaining version
// is a delete marker, ExpiredObjectDeleteMarker removes that marker
// permanently rather than stacking another one on top of it.
func TestExpiredObjectDeleteMarkerRemovedWhenNoOtherVersionsRemain(t *testing.T) {
	e, now := newTestEngine(t)
	ctx := context.Background()

	if err := e.Meta.CreateBucket(ctx, metadata.Bucket{
		Name: "b1", CreatedAt: now, Versioning: "Enabled",
		Lifecycle: &metadata.LifecycleConfig{Rules: []metadata.LifecycleRule{
			{ID: "clean-markers", Status: "Enabled", Filter: metadata.LifecycleFilter{Kind: "All"}, ExpiredObjectDeleteMarker: true},
		}},
	}); err != nil {
		t.Fatal(err)
	}

	if err := e.Meta.CreateDeleteMarker(ctx, "b1", "tombstoned-key", metadata.Version{
		Bucket: "b1", Key: "tombstoned-key", VersionID: cmn.GenVersionID(), LastModified: now,
	}); err != nil {
		t.Fatal(err)
	}

	report, err := e.Tick(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.ExpiredCurrent != 1 {
		t.Fatalf("expected the orphaned delete marker to be counted removed, got report %+v", report)
	}
	if report.DeleteMarkersAdded != 0 {
		t.Fatalf("expected no new delete marker to be stacked on top, got report %+v", report)
	}
	if _, ok, _ := e.Meta.GetLatestVersion(ctx, "b1", "tombstoned-key"); ok {
		t.Fatal("expected the delete marker to be gone")
	}
}

func TestLockedVersionSkipped(t *testing.T) {
	e, now := newTestEngine(t)
	ctx := context.Background()

	if err := e.Meta.CreateBucket(ctx, metadata.Bucket{
		Name: "b1", CreatedAt: now, ObjectLockEnabled: true,
		Lifecycle: &metadata.LifecycleConfig{Rules: []metadata.LifecycleRule{
			{ID: "expire-old", Status: "Enabled", Filter: metadata.LifecycleFilter{Kind: "All"}, ExpirationDays: 1},
		}},
	}); err != nil {
		t.Fatal(err)
	}

	old := now.Add(-10 * 24 * time.Hour)
	if _, err := e.Blobs.Put("b1", "locked-key", strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}
	if err := e.Meta.InsertVersion(ctx, metadata.Version{
		Bucket: "b1", Key: "locked-key", VersionID: cmn.NullVersionID, IsLatest: true, LastModified: old,
		Retention: &metadata.Retention{Mode: "Compliance", RetainUntil: now.Add(24 * time.Hour)},
	}); err != nil {
		t.Fatal(err)
	}

	report, err := e.Tick(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.LockedSkipped != 1 {
		t.Fatalf("expected locked version to be skipped, got report %+v", report)
	}
	if _, ok, _ := e.Meta.GetLatestVersion(ctx, "b1", "locked-key"); !ok {
		t.Fatal("expected locked version to survive the sweep")
	}
}
