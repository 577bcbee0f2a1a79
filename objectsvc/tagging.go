package objectsvc

import (
	"context"
	"time"

	"github.com/hafiz-io/hafiz/cmn"
	"github.com/hafiz-io/hafiz/metadata"
)

// Head returns a version's metadata without its body, per spec.md §4.4's
// Head operation.
func (s *Service) Head(ctx context.Context, bucket, key, versionID string) (GetResult, error) {
	v, err := s.resolveVersion(ctx, bucket, key, versionID)
	if err != nil {
		return GetResult{}, err
	}
	if v.DeleteMarker {
		return GetResult{Version: v}, cmn.New("NoSuchKey", 404, cmn.KindNotFound,
			"key %q is deleted (delete marker %s)", key, v.VersionID)
	}
	return GetResult{Version: v}, nil
}

// SetTags is a read-modify-write that updates a version's tag set without
// touching its blob, per spec.md §4.4.
func (s *Service) SetTags(ctx context.Context, bucket, key, versionID string, tags map[string]string) error {
	vid, err := s.resolveTargetVersionID(ctx, bucket, key, versionID)
	if err != nil {
		return err
	}
	if err := s.Meta.SetVersionTags(ctx, bucket, key, vid, tags); err != nil {
		return cmn.AsError(err, cmn.GenRequestID())
	}
	s.notify(CommitEvent{Bucket: bucket, Key: key, VersionID: vid, EventType: "TagsUpdate"})
	return nil
}

// GetTags returns a version's current tag set.
func (s *Service) GetTags(ctx context.Context, bucket, key, versionID string) (map[string]string, error) {
	v, err := s.resolveVersion(ctx, bucket, key, versionID)
	if err != nil {
		return nil, err
	}
	return v.Tags, nil
}

// SetLegalHold toggles a version's legal-hold flag, per spec.md §4.6. While
// the hold is on, LockedNow reports the version as locked, so deleting it
// is refused regardless of any retention mode; Put and Copy do not check
// the hold. The flag is independent of Governance/Compliance.
func (s *Service) SetLegalHold(ctx context.Context, bucket, key, versionID string, on bool) error {
	vid, err := s.resolveTargetVersionID(ctx, bucket, key, versionID)
	if err != nil {
		return err
	}
	if err := s.Meta.SetLegalHold(ctx, bucket, key, vid, on); err != nil {
		return cmn.AsError(err, cmn.GenRequestID())
	}
	return nil
}

// SetRetention applies a WORM retention record to a version, per spec.md
// §4.6: extending retain_until is always permitted; shortening it, or
// lowering Compliance to Governance, is permitted only under Governance
// mode with an explicit bypass, and never when the existing mode is
// Compliance.
func (s *Service) SetRetention(ctx context.Context, bucket, key, versionID, mode string, retainUntil time.Time, bypassGovernance bool) error {
	vid, err := s.resolveTargetVersionID(ctx, bucket, key, versionID)
	if err != nil {
		return err
	}
	v, ok, gerr := s.Meta.GetVersion(ctx, bucket, key, vid)
	if gerr != nil {
		return cmn.AsError(gerr, cmn.GenRequestID())
	}
	if !ok {
		return cmn.ErrNoSuchVersion(bucket, key, vid)
	}

	if v.Retention != nil {
		if v.Retention.Mode == "Compliance" && mode != "Compliance" {
			return cmn.ErrAccessDenied("cannot lower a Compliance retention to %s", mode)
		}
		extending := retainUntil.After(v.Retention.RetainUntil)
		if !extending {
			if v.Retention.Mode == "Compliance" {
				return cmn.ErrAccessDenied("cannot shorten a Compliance retention period")
			}
			if !bypassGovernance {
				return cmn.ErrAccessDenied("shortening a Governance retention period requires bypass")
			}
		}
	}

	r := &metadata.Retention{Mode: mode, RetainUntil: retainUntil}
	if err := s.Meta.SetRetention(ctx, bucket, key, vid, r); err != nil {
		return cmn.AsError(err, cmn.GenRequestID())
	}
	s.notify(CommitEvent{Bucket: bucket, Key: key, VersionID: vid, EventType: "RetentionUpdate"})
	return nil
}

// resolveTargetVersionID resolves an explicit or empty version_id to the
// concrete version_id a read-modify-write operation should act on.
func (s *Service) resolveTargetVersionID(ctx context.Context, bucket, key, versionID string) (string, error) {
	v, err := s.resolveVersion(ctx, bucket, key, versionID)
	if err != nil {
		return "", err
	}
	return v.VersionID, nil
}
