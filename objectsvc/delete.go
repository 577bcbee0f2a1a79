package objectsvc

import (
	"context"
	"time"

	"github.com/hafiz-io/hafiz/cmn"
	"github.com/hafiz-io/hafiz/metadata"
)

// DeleteResult reports what Delete did.
type DeleteResult struct {
	VersionID      string
	DeleteMarker   bool
}

// Delete implements spec.md §4.4's Delete object operation and the WORM
// checks of §4.6.
func (s *Service) Delete(ctx context.Context, bucket, key, versionID string, bypassGovernance bool) (DeleteResult, error) {
	b, err := s.loadBucket(ctx, bucket)
	if err != nil {
		return DeleteResult{}, err
	}
	now := s.now()

	if versionID != "" {
		return s.deleteSpecificVersion(ctx, bucket, key, versionID, now, bypassGovernance)
	}

	if !b.EverVersioned() {
		// Unversioned: remove the "null" version and its blob outright.
		if v, ok, _ := s.Meta.GetVersion(ctx, bucket, key, cmn.NullVersionID); ok {
			if locked := v.LockedNow(now, bypassGovernance); locked {
				return DeleteResult{}, cmn.ErrAccessDenied("object is under retention or legal hold")
			}
		}
		if err := s.Meta.DeleteVersion(ctx, bucket, key, cmn.NullVersionID); err != nil && !cmn.IsNotFound(err) {
			return DeleteResult{}, cmn.AsError(err, cmn.GenRequestID())
		}
		_ = s.Blobs.Delete(bucket, key)
		s.notify(CommitEvent{Bucket: bucket, Key: key, VersionID: cmn.NullVersionID, EventType: "Delete"})
		return DeleteResult{VersionID: cmn.NullVersionID}, nil
	}

	// Enabled/Suspended with no explicit version: append a delete marker.
	newID := cmn.GenVersionID()
	marker := metadata.Version{
		Bucket: bucket, Key: key, VersionID: newID,
		DeleteMarker: true, LastModified: now,
	}
	if err := s.Meta.CreateDeleteMarker(ctx, bucket, key, marker); err != nil {
		return DeleteResult{}, cmn.AsError(err, cmn.GenRequestID())
	}
	s.notify(CommitEvent{Bucket: bucket, Key: key, VersionID: newID, EventType: "Delete"})
	return DeleteResult{VersionID: newID, DeleteMarker: true}, nil
}

// deleteSpecificVersion implements the "explicit version_id" branch of
// spec.md §4.4: delete that exact version, promoting the next-newest to
// latest if it was latest, subject to the WORM checks of §4.6.
func (s *Service) deleteSpecificVersion(ctx context.Context, bucket, key, versionID string, now time.Time, bypassGovernance bool) (DeleteResult, error) {
	v, ok, err := s.Meta.GetVersion(ctx, bucket, key, versionID)
	if err != nil {
		return DeleteResult{}, cmn.AsError(err, cmn.GenRequestID())
	}
	if !ok {
		return DeleteResult{}, cmn.ErrNoSuchVersion(bucket, key, versionID)
	}
	if v.LockedNow(now, bypassGovernance) {
		return DeleteResult{}, cmn.ErrAccessDenied("version %q is under retention or legal hold", versionID)
	}

	if err := s.Meta.DeleteVersion(ctx, bucket, key, versionID); err != nil {
		return DeleteResult{}, cmn.AsError(err, cmn.GenRequestID())
	}
	if !v.DeleteMarker {
		// The current-latest version's body lives at the content-addressed
		// "current" slot; every other (retired, noncurrent) version's body
		// lives at its own version-suffixed path.
		if v.IsLatest {
			_ = s.Blobs.Delete(bucket, key)
		} else {
			_ = s.Blobs.DeleteVersion(bucket, key, versionID)
		}
	}
	s.notify(CommitEvent{Bucket: bucket, Key: key, VersionID: versionID, EventType: "Delete"})
	return DeleteResult{VersionID: versionID}, nil
}
