package bucketsvc

import (
	"context"
	"testing"
	"time"

	"github.com/hafiz-io/hafiz/metadata"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	meta, err := metadata.OpenBunt(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { meta.Close() })
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &Service{Meta: meta, Now: func() time.Time { return now }}
}

func TestCreateListHeadDelete(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	if err := s.Create(ctx, "b1", "owner-1", "us-east-1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Create(ctx, "b1", "owner-1", "us-east-1"); err == nil {
		t.Fatal("expected duplicate bucket creation to fail")
	}
	if err := s.Head(ctx, "b1"); err != nil {
		t.Fatal(err)
	}

	bs, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(bs) != 1 || bs[0].Name != "b1" {
		t.Fatalf("unexpected bucket list: %+v", bs)
	}

	if err := s.Delete(ctx, "b1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Head(ctx, "b1"); err == nil {
		t.Fatal("expected head of a deleted bucket to fail")
	}
}

func TestDeleteRejectsNonEmptyBucket(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	if err := s.Create(ctx, "b1", "owner-1", ""); err != nil {
		t.Fatal(err)
	}
	if err := s.Meta.InsertVersion(ctx, metadata.Version{
		Bucket: "b1", Key: "k1", VersionID: "null", IsLatest: true,
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "b1"); err == nil {
		t.Fatal("expected delete of a non-empty bucket to fail")
	}
}

func TestSetVersioningIsMonotonic(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	if err := s.Create(ctx, "b1", "owner-1", ""); err != nil {
		t.Fatal(err)
	}
	if err := s.SetVersioning(ctx, "b1", "Enabled"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetVersioning(ctx, "b1", "Suspended"); err != nil {
		t.Fatal(err)
	}
	b, err := s.Get(ctx, "b1")
	if err != nil {
		t.Fatal(err)
	}
	if !b.EverVersioned() {
		t.Fatal("expected bucket to remain ever-versioned after suspending")
	}
}

func TestSetObjectLockRequiresEmptyBucket(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	if err := s.Create(ctx, "b1", "owner-1", ""); err != nil {
		t.Fatal(err)
	}
	if err := s.Meta.InsertVersion(ctx, metadata.Version{
		Bucket: "b1", Key: "k1", VersionID: "null", IsLatest: true,
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetObjectLockEnabled(ctx, "b1", true); err == nil {
		t.Fatal("expected object-lock enable on a non-empty bucket to fail")
	}
}
