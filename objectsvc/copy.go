package objectsvc

import (
	"context"
	"io"

	"github.com/hafiz-io/hafiz/cmn"
	"github.com/hafiz-io/hafiz/metadata"
)

// CopyInput carries the destination-side parameters of a CopyObject call.
type CopyInput struct {
	SrcBucket, SrcKey, SrcVersionID string

	ContentType string
	UserMeta    map[string]string
	ReplaceMeta bool // MetadataDirective: REPLACE vs COPY
}

// CopyResult reports the new destination version.
type CopyResult struct {
	VersionID string
	ETag      string
}

// Copy implements spec.md §4.4's server-side copy: read the source version's
// metadata and body, write a new destination version, and carry forward or
// replace content-type/user metadata per the caller's directive. The
// destination ETag equals the source ETag byte-identically, never a
// recomputed digest, since the copied bytes are identical to the source's.
func (s *Service) Copy(ctx context.Context, dstBucket, dstKey string, in CopyInput) (CopyResult, error) {
	if perr := cmn.ValidateObjectKey(dstKey); perr != nil {
		return CopyResult{}, perr
	}
	src, err := s.resolveVersion(ctx, in.SrcBucket, in.SrcKey, in.SrcVersionID)
	if err != nil {
		return CopyResult{}, err
	}
	if src.DeleteMarker {
		return CopyResult{}, cmn.New("NoSuchKey", 404, cmn.KindNotFound,
			"source key %q is deleted (delete marker %s)", in.SrcKey, src.VersionID)
	}

	dstBucketMeta, err := s.loadBucket(ctx, dstBucket)
	if err != nil {
		return CopyResult{}, err
	}

	now := s.now()
	prior, hasPrior, _ := s.Meta.GetLatestVersion(ctx, dstBucket, dstKey)
	// As in Put, Compliance retention only blocks this write when it targets
	// the locked version's own "null" slot; an Enabled destination bucket
	// always lands on a new version.
	if dstBucketMeta.ObjectLockEnabled && dstBucketMeta.Versioning != "Enabled" && hasPrior && !prior.DeleteMarker {
		if prior.Retention != nil && prior.Retention.Mode == "Compliance" && prior.Retention.RetainUntil.After(now) {
			return CopyResult{}, cmn.ErrAccessDenied("destination version is under Compliance retention until %s", prior.Retention.RetainUntil)
		}
	}

	var body io.ReadCloser
	var gerr error
	if src.IsLatest {
		body, _, gerr = s.Blobs.Get(in.SrcBucket, in.SrcKey)
	} else {
		body, _, gerr = s.Blobs.GetVersion(in.SrcBucket, in.SrcKey, src.VersionID)
	}
	if gerr != nil {
		return CopyResult{}, gerr
	}
	defer body.Close()

	versionID := writeVersionID(dstBucketMeta)

	// Enabled versioning keeps every prior body retrievable by version id,
	// same as a plain Put: retire whatever currently occupies the
	// destination's content-addressed slot first.
	if dstBucketMeta.Versioning == "Enabled" && hasPrior && !prior.DeleteMarker {
		if err := s.Blobs.RetireCurrent(dstBucket, dstKey, prior.VersionID); err != nil {
			return CopyResult{}, err
		}
	}

	putRes, perr := s.Blobs.Put(dstBucket, dstKey, body)
	if perr != nil {
		return CopyResult{}, perr
	}

	contentType := src.ContentType
	userMeta := src.UserMetadata
	if in.ReplaceMeta {
		contentType = in.ContentType
		userMeta = in.UserMeta
	}

	v := metadata.Version{
		Bucket: dstBucket, Key: dstKey, VersionID: versionID, IsLatest: true,
		Size: putRes.Size, ETag: src.ETag, ContentType: contentType, UserMetadata: userMeta,
		LastModified: now,
	}
	if err := s.Meta.InsertVersion(ctx, v); err != nil {
		return CopyResult{}, cmn.AsError(err, cmn.GenRequestID())
	}

	s.notify(CommitEvent{Bucket: dstBucket, Key: dstKey, VersionID: versionID, EventType: "Put"})
	return CopyResult{VersionID: versionID, ETag: src.ETag}, nil
}
