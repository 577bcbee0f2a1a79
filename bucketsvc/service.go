// Package bucketsvc implements the bucket-level operations of spec.md §6's
// route table: create/delete/list/head, versioning and lifecycle and
// object-lock configuration, and the listing operations (ListObjectsV2,
// ListObjectVersions). It sits alongside objectsvc the same way the
// teacher's ais/tgts3.go dispatches bucket-scoped and object-scoped S3
// calls through one target but keeps the two concerns in separate files.
package bucketsvc

import (
	"context"
	"time"

	"github.com/hafiz-io/hafiz/cmn"
	"github.com/hafiz-io/hafiz/metadata"
)

type Clock func() time.Time

type Service struct {
	Meta metadata.Repository
	Now  Clock
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Create implements spec.md §6's PUT /{bucket}, rejecting a name already
// taken.
func (s *Service) Create(ctx context.Context, name, ownerID, region string) error {
	if err := cmn.ValidateBucketName(name); err != nil {
		return err
	}
	b := metadata.Bucket{
		Name: name, OwnerID: ownerID, Region: region, CreatedAt: s.now(),
	}
	if err := s.Meta.CreateBucket(ctx, b); err != nil {
		return cmn.AsError(err, cmn.GenRequestID())
	}
	return nil
}

// Head implements HEAD /{bucket}: existence check only.
func (s *Service) Head(ctx context.Context, name string) error {
	_, err := s.get(ctx, name)
	return err
}

func (s *Service) get(ctx context.Context, name string) (metadata.Bucket, error) {
	b, ok, err := s.Meta.GetBucket(ctx, name)
	if err != nil {
		return metadata.Bucket{}, cmn.AsError(err, cmn.GenRequestID())
	}
	if !ok {
		return metadata.Bucket{}, cmn.ErrNoSuchBucket(name)
	}
	return b, nil
}

// Get returns the bucket record, e.g. to answer a versioning/object-lock
// config GET.
func (s *Service) Get(ctx context.Context, name string) (metadata.Bucket, error) {
	return s.get(ctx, name)
}

// List implements GET /.
func (s *Service) List(ctx context.Context) ([]metadata.Bucket, error) {
	bs, err := s.Meta.ListBuckets(ctx)
	if err != nil {
		return nil, cmn.AsError(err, cmn.GenRequestID())
	}
	return bs, nil
}

// Delete implements DELETE /{bucket}, refusing a bucket with any live
// version per spec.md §6's 409 BucketNotEmpty rule.
func (s *Service) Delete(ctx context.Context, name string) error {
	if _, err := s.get(ctx, name); err != nil {
		return err
	}
	versions, err := s.Meta.ListAllVersions(ctx, name)
	if err != nil {
		return cmn.AsError(err, cmn.GenRequestID())
	}
	if len(versions) > 0 {
		return cmn.ErrBucketNotEmpty(name)
	}
	if err := s.Meta.DeleteBucket(ctx, name); err != nil {
		return cmn.AsError(err, cmn.GenRequestID())
	}
	return nil
}

// SetVersioning implements PUT /{bucket}?versioning, enforcing spec.md
// §4.5's monotonic Unversioned -> {Enabled, Suspended} transition (once
// ever-versioned, a bucket can toggle between Enabled and Suspended but
// never back to the unversioned state).
func (s *Service) SetVersioning(ctx context.Context, bucket, status string) error {
	if status != "Enabled" && status != "Suspended" {
		return cmn.ErrInvalidArgument("versioning status must be Enabled or Suspended")
	}
	if _, err := s.get(ctx, bucket); err != nil {
		return err
	}
	if err := s.Meta.SetVersioning(ctx, bucket, status); err != nil {
		return cmn.AsError(err, cmn.GenRequestID())
	}
	return nil
}

// SetLifecycle implements PUT/DELETE /{bucket}?lifecycle. Passing a nil cfg
// clears the configuration (the DELETE case).
func (s *Service) SetLifecycle(ctx context.Context, bucket string, cfg *metadata.LifecycleConfig) error {
	if _, err := s.get(ctx, bucket); err != nil {
		return err
	}
	if cfg != nil && len(cfg.Rules) > 1000 {
		return cmn.ErrInvalidArgument("lifecycle configuration may not exceed 1000 rules")
	}
	if err := s.Meta.SetLifecycle(ctx, bucket, cfg); err != nil {
		return cmn.AsError(err, cmn.GenRequestID())
	}
	return nil
}

// SetObjectLockEnabled implements PUT /{bucket}?object-lock. Per spec.md
// §4.6, object lock can only be enabled at bucket-creation time in real S3;
// this mirrors that by refusing to flip it once a bucket already holds any
// version.
func (s *Service) SetObjectLockEnabled(ctx context.Context, bucket string, enabled bool) error {
	b, err := s.get(ctx, bucket)
	if err != nil {
		return err
	}
	if enabled && !b.ObjectLockEnabled {
		versions, lerr := s.Meta.ListAllVersions(ctx, bucket)
		if lerr != nil {
			return cmn.AsError(lerr, cmn.GenRequestID())
		}
		if len(versions) > 0 {
			return cmn.ErrInvalidArgument("object lock can only be enabled on an empty bucket")
		}
		if !b.EverVersioned() {
			if verr := s.Meta.SetVersioning(ctx, bucket, "Enabled"); verr != nil {
				return cmn.AsError(verr, cmn.GenRequestID())
			}
		}
	}
	if err := s.Meta.SetObjectLockEnabled(ctx, bucket, enabled); err != nil {
		return cmn.AsError(err, cmn.GenRequestID())
	}
	return nil
}

// ListObjects implements GET /{bucket} (list-type=2), per spec.md §4.2.
func (s *Service) ListObjects(ctx context.Context, bucket, prefix, delimiter, continuationToken string, maxKeys int) (metadata.ListObjectsResult, error) {
	if _, err := s.get(ctx, bucket); err != nil {
		return metadata.ListObjectsResult{}, err
	}
	res, err := s.Meta.ListObjects(ctx, bucket, prefix, delimiter, continuationToken, maxKeys)
	if err != nil {
		return metadata.ListObjectsResult{}, cmn.AsError(err, cmn.GenRequestID())
	}
	return res, nil
}

// ListVersions implements GET /{bucket}?versions.
func (s *Service) ListVersions(ctx context.Context, bucket, prefix, keyMarker, versionIDMarker string, maxKeys int) (metadata.ListVersionsResult, error) {
	if _, err := s.get(ctx, bucket); err != nil {
		return metadata.ListVersionsResult{}, err
	}
	res, err := s.Meta.ListVersions(ctx, bucket, prefix, keyMarker, versionIDMarker, maxKeys)
	if err != nil {
		return metadata.ListVersionsResult{}, cmn.AsError(err, cmn.GenRequestID())
	}
	return res, nil
}
