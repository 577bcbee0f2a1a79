// Package blobstore implements the content-addressed local filesystem blob
// store: object bodies under a two-character fan-out directory keyed by the
// MD5 of the object key, and multipart upload parts under a per-upload
// directory, per spec.md §4.1.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package blobstore

import (
	"path/filepath"
	"strconv"

	"github.com/hafiz-io/hafiz/cmn/cos"
)

const (
	objectsDir = "objects"
	uploadsDir = "uploads"
)

// bucketDir returns <root>/<bucket>.
func bucketDir(root, bucket string) string {
	return filepath.Join(root, bucket)
}

// objectFQN returns <root>/<bucket>/objects/<hh>/<md5hex_of_key>, the
// content-addressed path for an object key's current body, per spec.md
// §4.1's "fully-qualified name" layout.
func objectFQN(root, bucket, key string) string {
	digest := cos.KeyDigest(key)
	return filepath.Join(root, bucket, objectsDir, cos.FanoutDir(digest), digest)
}

// versionedObjectFQN returns the path for a specific, non-latest version's
// body. Version bodies are retired from the "current" slot into a sibling
// file named by version id so historical GETs and lifecycle cleanup can
// still find them after a newer PUT replaces the current slot.
func versionedObjectFQN(root, bucket, key, versionID string) string {
	digest := cos.KeyDigest(key)
	return filepath.Join(root, bucket, objectsDir, cos.FanoutDir(digest), digest+"."+versionID)
}

// uploadDir returns <root>/<bucket>/uploads/<upload_id>.
func uploadDir(root, bucket, uploadID string) string {
	return filepath.Join(root, bucket, uploadsDir, uploadID)
}

// partFQN returns <root>/<bucket>/uploads/<upload_id>/<part_number>.
func partFQN(root, bucket, uploadID string, partNumber int) string {
	return filepath.Join(uploadDir(root, bucket, uploadID), strconv.Itoa(partNumber))
}
