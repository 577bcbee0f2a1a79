package objectsvc

import (
	"context"
	"io"

	"github.com/hafiz-io/hafiz/cmn"
	"github.com/hafiz-io/hafiz/metadata"
)

// PutInput carries everything a PutObject call needs beyond (bucket, key).
type PutInput struct {
	Body        io.Reader
	ContentType string
	UserMeta    map[string]string
	Principal   string
}

// PutResult is what a successful Put reports back to the HTTP wire
// adapter.
type PutResult struct {
	VersionID string
	ETag      string
}

// Put implements spec.md §4.4's Put object operation: validates the key,
// enforces the versioning state machine, checks WORM against whatever
// version currently occupies the target slot, writes the blob, then
// commits metadata — unlinking the blob if the metadata commit fails.
func (s *Service) Put(ctx context.Context, bucket, key string, in PutInput) (PutResult, error) {
	if perr := cmn.ValidateObjectKey(key); perr != nil {
		return PutResult{}, perr
	}
	b, err := s.loadBucket(ctx, bucket)
	if err != nil {
		return PutResult{}, err
	}

	now := s.now()

	prior, hasPrior, _ := s.Meta.GetLatestVersion(ctx, bucket, key)

	// Compliance retention only blocks this write when it targets the same
	// "null" slot the locked version occupies (Unversioned/Suspended). An
	// Enabled bucket always writes a brand-new version and never touches
	// the locked one, per spec.md §8 Testable Property 7.
	if b.ObjectLockEnabled && b.Versioning != "Enabled" && hasPrior && !prior.DeleteMarker {
		if prior.Retention != nil && prior.Retention.Mode == "Compliance" && prior.Retention.RetainUntil.After(now) {
			return PutResult{}, cmn.ErrAccessDenied("object version is under Compliance retention until %s", prior.Retention.RetainUntil)
		}
	}

	versionID := writeVersionID(b)

	// Enabled versioning keeps every prior body retrievable by version id:
	// retire the blob occupying the content-addressed slot before the new
	// Put overwrites it. Unversioned/Suspended writes always target the
	// same "null" slot, so the new Put's overwrite already does the
	// "replacing any prior null version" spec.md §4.4 calls for.
	if b.Versioning == "Enabled" && hasPrior && !prior.DeleteMarker {
		if err := s.Blobs.RetireCurrent(bucket, key, prior.VersionID); err != nil {
			return PutResult{}, err
		}
	}

	putRes, perr := s.Blobs.Put(bucket, key, in.Body)
	if perr != nil {
		return PutResult{}, perr
	}

	v := metadata.Version{
		Bucket: bucket, Key: key, VersionID: versionID, IsLatest: true,
		Size: putRes.Size, ETag: putRes.ETag, ContentType: in.ContentType,
		UserMetadata: in.UserMeta, LastModified: now,
	}
	if err := s.Meta.InsertVersion(ctx, v); err != nil {
		_ = s.Blobs.Delete(bucket, key)
		return PutResult{}, cmn.AsError(err, cmn.GenRequestID())
	}

	s.notify(CommitEvent{Bucket: bucket, Key: key, VersionID: versionID, EventType: "Put"})
	return PutResult{VersionID: versionID, ETag: putRes.ETag}, nil
}

// writeVersionID implements the versioning state machine from spec.md
// §4.4/§4.5: Unversioned and Suspended writes always land on "null";
// Enabled writes get a fresh, monotonic version id.
func writeVersionID(b metadata.Bucket) string {
	if b.Versioning == "Enabled" {
		return cmn.GenVersionID()
	}
	return cmn.NullVersionID
}
