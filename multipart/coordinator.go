// Package multipart implements spec.md §4.7's multipart upload coordinator:
// initiate, upload-part, list-parts, complete, and abort, with per-upload_id
// striped locking and composite-ETag assembly.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package multipart

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/moby/locker"

	"github.com/hafiz-io/hafiz/blobstore"
	"github.com/hafiz-io/hafiz/cmn"
	"github.com/hafiz-io/hafiz/cmn/cos"
	"github.com/hafiz-io/hafiz/metadata"
)

// minPartSize is S3's 5 MiB minimum part size; the last part of an upload is
// exempt, per spec.md §4.7.
const minPartSize = 5 << 20

// Clock lets tests inject deterministic time.
type Clock func() time.Time

// Coordinator orchestrates multipart upload sessions across the blob store
// and the metadata repository.
type Coordinator struct {
	Blobs *blobstore.Store
	Meta  metadata.Repository
	Now   Clock

	OnCommit func(bucket, key, versionID string)

	locks *locker.Locker
}

// NewCoordinator constructs a Coordinator with its named-lock map
// initialized; the zero value is not usable since moby/locker's Locker
// requires its internal map be allocated by locker.New().
func NewCoordinator(blobs *blobstore.Store, meta metadata.Repository) *Coordinator {
	return &Coordinator{Blobs: blobs, Meta: meta, locks: locker.New()}
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Coordinator) lockFor(uploadID string) cmn.NLP {
	if c.locks == nil {
		c.locks = locker.New()
	}
	return newNLP(c.locks, uploadID)
}

// Initiate creates a new multipart upload session, per spec.md §4.7.
func (c *Coordinator) Initiate(ctx context.Context, bucket, key, contentType string, userMeta map[string]string, principal string) (string, error) {
	if perr := cmn.ValidateObjectKey(key); perr != nil {
		return "", perr
	}
	if _, ok, err := c.Meta.GetBucket(ctx, bucket); err != nil {
		return "", cmn.AsError(err, cmn.GenRequestID())
	} else if !ok {
		return "", cmn.ErrNoSuchBucket(bucket)
	}

	uploadID := cmn.GenUploadID()
	sess := metadata.MultipartSession{
		UploadID: uploadID, Bucket: bucket, Key: key,
		ContentType: contentType, UserMetadata: userMeta,
		Initiator: principal, CreatedAt: c.now(),
	}
	if err := c.Meta.CreateMultipartSession(ctx, sess); err != nil {
		return "", cmn.AsError(err, cmn.GenRequestID())
	}
	return uploadID, nil
}

// UploadPart durably writes one part's body and records its size/ETag in
// the session, per spec.md §4.7. Re-uploading a part number replaces it
// atomically: the new blob write and the metadata update both use the part
// number as their sole key, so a retried part number simply overwrites.
func (c *Coordinator) UploadPart(ctx context.Context, bucket, uploadID string, partNumber int, body io.Reader) (string, error) {
	lock := c.lockFor(uploadID)
	lock.Lock()
	defer lock.Unlock()

	if _, ok, err := c.Meta.GetMultipartSession(ctx, bucket, uploadID); err != nil {
		return "", cmn.AsError(err, cmn.GenRequestID())
	} else if !ok {
		return "", cmn.ErrNoSuchUpload(uploadID)
	}

	res, err := c.Blobs.PutPart(bucket, uploadID, partNumber, body)
	if err != nil {
		return "", err
	}
	part := metadata.MultipartPart{PartNumber: partNumber, Size: res.Size, ETag: res.ETag, LastModified: c.now()}
	if err := c.Meta.PutPart(ctx, bucket, uploadID, part); err != nil {
		return "", cmn.AsError(err, cmn.GenRequestID())
	}
	return res.ETag, nil
}

// ListParts returns the parts recorded for an upload, sorted by part
// number.
func (c *Coordinator) ListParts(ctx context.Context, bucket, uploadID string) ([]metadata.MultipartPart, error) {
	sess, ok, err := c.Meta.GetMultipartSession(ctx, bucket, uploadID)
	if err != nil {
		return nil, cmn.AsError(err, cmn.GenRequestID())
	}
	if !ok {
		return nil, cmn.ErrNoSuchUpload(uploadID)
	}
	parts := make([]metadata.MultipartPart, 0, len(sess.Parts))
	for _, p := range sess.Parts {
		parts = append(parts, p)
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })
	return parts, nil
}

// CompletedPart is the caller-supplied (part_number, etag) pair S3's
// CompleteMultipartUpload XML body carries; etag is cross-checked against
// what UploadPart recorded.
type CompletedPart struct {
	PartNumber int
	ETag       string
}

// CompleteResult reports the assembled object's identity.
type CompleteResult struct {
	VersionID string
	ETag      string
}

// Complete validates the supplied part list against the session record,
// enforces the 5 MiB minimum part size on every part but the last, and
// assembles the parts into a new object version, per spec.md §4.7.
func (c *Coordinator) Complete(ctx context.Context, bucket, key, uploadID string, parts []CompletedPart) (CompleteResult, error) {
	lock := c.lockFor(uploadID)
	lock.Lock()
	defer lock.Unlock()

	sess, ok, err := c.Meta.GetMultipartSession(ctx, bucket, uploadID)
	if err != nil {
		return CompleteResult{}, cmn.AsError(err, cmn.GenRequestID())
	}
	if !ok {
		return CompleteResult{}, cmn.ErrNoSuchUpload(uploadID)
	}
	if sess.Key != key {
		return CompleteResult{}, cmn.ErrInvalidArgument("upload %q belongs to key %q, not %q", uploadID, sess.Key, key)
	}
	if len(parts) == 0 {
		return CompleteResult{}, cmn.ErrInvalidArgument("completed upload must list at least one part")
	}

	partNumbers := make([]int, 0, len(parts))
	partMD5s := make([]string, 0, len(parts))
	prevNumber := 0
	for i, cp := range parts {
		if cp.PartNumber <= prevNumber {
			return CompleteResult{}, cmn.ErrInvalidPartOrder()
		}
		prevNumber = cp.PartNumber

		recorded, ok := sess.Parts[cp.PartNumber]
		if !ok {
			return CompleteResult{}, cmn.ErrInvalidPart(cp.PartNumber)
		}
		if recorded.ETag != cp.ETag {
			return CompleteResult{}, cmn.ErrInvalidPart(cp.PartNumber)
		}
		if i < len(parts)-1 && recorded.Size < minPartSize {
			return CompleteResult{}, cmn.ErrEntityTooSmall()
		}
		partNumbers = append(partNumbers, cp.PartNumber)
		partMD5s = append(partMD5s, cos.UnquoteETag(recorded.ETag))
	}

	b, ok, err := c.Meta.GetBucket(ctx, bucket)
	if err != nil {
		return CompleteResult{}, cmn.AsError(err, cmn.GenRequestID())
	}
	if !ok {
		return CompleteResult{}, cmn.ErrNoSuchBucket(bucket)
	}

	now := c.now()
	prior, hasPrior, _ := c.Meta.GetLatestVersion(ctx, bucket, key)
	if b.Versioning == "Enabled" && hasPrior && !prior.DeleteMarker {
		if err := c.Blobs.RetireCurrent(bucket, key, prior.VersionID); err != nil {
			return CompleteResult{}, err
		}
	}

	putRes, perr := c.Blobs.AssembleMultipart(bucket, key, uploadID, partNumbers, partMD5s)
	if perr != nil {
		return CompleteResult{}, perr
	}

	versionID := cmn.NullVersionID
	if b.Versioning == "Enabled" {
		versionID = cmn.GenVersionID()
	}
	v := metadata.Version{
		Bucket: bucket, Key: key, VersionID: versionID, IsLatest: true,
		Size: putRes.Size, ETag: putRes.ETag, ContentType: sess.ContentType,
		UserMetadata: sess.UserMetadata, LastModified: now,
	}
	if err := c.Meta.InsertVersion(ctx, v); err != nil {
		return CompleteResult{}, cmn.AsError(err, cmn.GenRequestID())
	}
	if err := c.Meta.DeleteMultipartSession(ctx, bucket, uploadID); err != nil {
		return CompleteResult{}, cmn.AsError(err, cmn.GenRequestID())
	}

	if c.OnCommit != nil {
		c.OnCommit(bucket, key, versionID)
	}
	return CompleteResult{VersionID: versionID, ETag: putRes.ETag}, nil
}

// Abort discards an in-progress upload's parts and session record, per
// spec.md §4.7.
func (c *Coordinator) Abort(ctx context.Context, bucket, uploadID string) error {
	lock := c.lockFor(uploadID)
	lock.Lock()
	defer lock.Unlock()

	if _, ok, err := c.Meta.GetMultipartSession(ctx, bucket, uploadID); err != nil {
		return cmn.AsError(err, cmn.GenRequestID())
	} else if !ok {
		return cmn.ErrNoSuchUpload(uploadID)
	}
	if err := c.Blobs.AbortMultipart(bucket, uploadID); err != nil {
		return err
	}
	if err := c.Meta.DeleteMultipartSession(ctx, bucket, uploadID); err != nil {
		return cmn.AsError(err, cmn.GenRequestID())
	}
	return nil
}
