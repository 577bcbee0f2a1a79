package metadata

import (
	"context"
	"testing"
	"time"
)

func newTestRepo(t *testing.T) *BuntRepository {
	t.Helper()
	r, err := OpenBunt(":memory:")
	if err != nil {
		t.Fatalf("OpenBunt: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestBucketCRUD(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	b := Bucket{Name: "b1", OwnerID: "root", CreatedAt: time.Unix(0, 0)}
	if err := r.CreateBucket(ctx, b); err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}
	if err := r.CreateBucket(ctx, b); err == nil {
		t.Fatalf("CreateBucket did not reject duplicate name")
	}

	got, ok, err := r.GetBucket(ctx, "b1")
	if err != nil || !ok {
		t.Fatalf("GetBucket: got=%v ok=%v err=%v", got, ok, err)
	}

	if err := r.SetVersioning(ctx, "b1", "Enabled"); err != nil {
		t.Fatalf("SetVersioning: %v", err)
	}
	got, _, _ = r.GetBucket(ctx, "b1")
	if !got.EverVersioned() {
		t.Fatalf("bucket not EverVersioned after SetVersioning(Enabled)")
	}

	if err := r.DeleteBucket(ctx, "b1"); err != nil {
		t.Fatalf("DeleteBucket: %v", err)
	}
	if _, ok, _ := r.GetBucket(ctx, "b1"); ok {
		t.Fatalf("bucket still present after delete")
	}
}

// TestVersioningInvariant exercises spec property 4: after any sequence of
// inserts/deletes on a (bucket, key), exactly one version is latest.
func TestVersioningInvariant(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	r.CreateBucket(ctx, Bucket{Name: "b1"})

	mk := func(id string, t0 time.Time) Version {
		return Version{Bucket: "b1", Key: "k", VersionID: id, IsLatest: true, LastModified: t0}
	}

	if err := r.InsertVersion(ctx, mk("v1", time.Unix(1, 0))); err != nil {
		t.Fatalf("insert v1: %v", err)
	}
	if err := r.InsertVersion(ctx, mk("v2", time.Unix(2, 0))); err != nil {
		t.Fatalf("insert v2: %v", err)
	}
	if err := r.InsertVersion(ctx, mk("v3", time.Unix(3, 0))); err != nil {
		t.Fatalf("insert v3: %v", err)
	}

	assertExactlyOneLatest(t, r, ctx, "b1", "k")

	latest, _, _ := r.GetLatestVersion(ctx, "b1", "k")
	if latest.VersionID != "v3" {
		t.Fatalf("latest = %q, want v3", latest.VersionID)
	}

	// Delete latest -> next newest (v2) should be promoted.
	if err := r.DeleteVersion(ctx, "b1", "k", "v3"); err != nil {
		t.Fatalf("delete v3: %v", err)
	}
	assertExactlyOneLatest(t, r, ctx, "b1", "k")
	latest, _, _ = r.GetLatestVersion(ctx, "b1", "k")
	if latest.VersionID != "v2" {
		t.Fatalf("latest after deleting v3 = %q, want v2", latest.VersionID)
	}
}

func assertExactlyOneLatest(t *testing.T, r *BuntRepository, ctx context.Context, bucket, key string) {
	t.Helper()
	all, err := r.ListAllVersions(ctx, bucket)
	if err != nil {
		t.Fatalf("ListAllVersions: %v", err)
	}
	count := 0
	for _, v := range all {
		if v.Key == key && v.IsLatest {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one is_latest version for %q, got %d", key, count)
	}
}

func TestListObjectsDelimiterCollapsesCommonPrefixes(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	r.CreateBucket(ctx, Bucket{Name: "b1"})

	keys := []string{"a.txt", "dir/b.txt", "dir/c.txt", "dir2/d.txt"}
	for i, k := range keys {
		r.InsertVersion(ctx, Version{
			Bucket: "b1", Key: k, VersionID: "null", IsLatest: true,
			LastModified: time.Unix(int64(i), 0),
		})
	}

	res, err := r.ListObjects(ctx, "b1", "", "/", "", 1000)
	if err != nil {
		t.Fatalf("ListObjects: %v", err)
	}
	if len(res.Versions) != 1 || res.Versions[0].Key != "a.txt" {
		t.Fatalf("ListObjects versions = %+v, want just a.txt", res.Versions)
	}
	if len(res.CommonPrefixes) != 2 {
		t.Fatalf("ListObjects common prefixes = %v, want 2", res.CommonPrefixes)
	}
}

func TestMultipartSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	r.CreateBucket(ctx, Bucket{Name: "b1"})

	s := MultipartSession{UploadID: "u1", Bucket: "b1", Key: "k", CreatedAt: time.Unix(0, 0)}
	if err := r.CreateMultipartSession(ctx, s); err != nil {
		t.Fatalf("CreateMultipartSession: %v", err)
	}
	if err := r.PutPart(ctx, "b1", "u1", MultipartPart{PartNumber: 1, Size: 5 << 20, ETag: `"abc"`}); err != nil {
		t.Fatalf("PutPart: %v", err)
	}
	got, ok, err := r.GetMultipartSession(ctx, "b1", "u1")
	if err != nil || !ok {
		t.Fatalf("GetMultipartSession: ok=%v err=%v", ok, err)
	}
	if len(got.Parts) != 1 {
		t.Fatalf("parts = %v, want 1", got.Parts)
	}

	if err := r.DeleteMultipartSession(ctx, "b1", "u1"); err != nil {
		t.Fatalf("DeleteMultipartSession: %v", err)
	}
	if _, ok, _ := r.GetMultipartSession(ctx, "b1", "u1"); ok {
		t.Fatalf("session still present after delete")
	}
}

func TestRetentionLocksVersion(t *testing.T) {
	future := time.Now().Add(time.Hour)
	v := Version{Retention: &Retention{Mode: "Compliance", RetainUntil: future}}
	if !v.LockedNow(time.Now(), false) {
		t.Fatalf("Compliance retention in the future must lock the version")
	}
	v2 := Version{Retention: &Retention{Mode: "Governance", RetainUntil: future}}
	if v2.LockedNow(time.Now(), true) {
		t.Fatalf("Governance retention must unlock with bypass=true")
	}
	if !v2.LockedNow(time.Now(), false) {
		t.Fatalf("Governance retention must lock without bypass")
	}
}
