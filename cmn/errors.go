// Package cmn provides shared types, configuration, and error taxonomy for
// the hafiz object storage server.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Kind partitions errors into the eight buckets spec.md §7 defines; each
// kind has a fixed propagation rule (surface verbatim, retry internally,
// wrap as 500, etc).
type Kind uint8

const (
	KindValidation Kind = iota
	KindAuthentication
	KindNotFound
	KindConflict
	KindQuota
	KindTransientPeer
	KindStorage
	KindUnimplemented
)

// Error is the one error type every component returns. It carries the S3
// error Code (e.g. "NoSuchBucket"), the HTTP status it maps to, the kind
// (for propagation policy), a human message, and an optional wrapped cause
// for logging (never echoed to the client beyond the request id).
type Error struct {
	Code    string
	Status  int
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with the given S3 code/status/kind.
func New(code string, status int, kind Kind, format string, a ...interface{}) *Error {
	return &Error{Code: code, Status: status, Kind: kind, Message: fmt.Sprintf(format, a...)}
}

// Wrap attaches cause (stack-annotated via pkg/errors) to a newly minted
// *Error, for the storage/metadata boundary per spec.md §7.
func Wrap(cause error, code string, status int, kind Kind, format string, a ...interface{}) *Error {
	return &Error{
		Code:    code,
		Status:  status,
		Kind:    kind,
		Message: fmt.Sprintf(format, a...),
		Cause:   errors.WithStack(cause),
	}
}

// Well-known S3 errors. Each constructor pins the Code/Status/Kind triple so
// call sites cannot accidentally drift from the stable mapping spec.md §6
// requires.
func ErrNoSuchBucket(bucket string) *Error {
	return New("NoSuchBucket", http.StatusNotFound, KindNotFound, "bucket %q does not exist", bucket)
}

func ErrNoSuchKey(bucket, key string) *Error {
	return New("NoSuchKey", http.StatusNotFound, KindNotFound, "key %q does not exist in bucket %q", key, bucket)
}

func ErrNoSuchVersion(bucket, key, versionID string) *Error {
	return New("NoSuchVersion", http.StatusNotFound, KindNotFound, "version %q of %q/%q does not exist", versionID, bucket, key)
}

func ErrNoSuchUpload(uploadID string) *Error {
	return New("NoSuchUpload", http.StatusNotFound, KindNotFound, "upload %q does not exist", uploadID)
}

func ErrBucketAlreadyExists(bucket string) *Error {
	return New("BucketAlreadyExists", http.StatusConflict, KindConflict, "bucket %q already exists", bucket)
}

func ErrBucketNotEmpty(bucket string) *Error {
	return New("BucketNotEmpty", http.StatusConflict, KindConflict, "bucket %q is not empty", bucket)
}

func ErrInvalidBucketName(bucket string) *Error {
	return New("InvalidBucketName", http.StatusBadRequest, KindValidation, "bucket name %q is invalid", bucket)
}

func ErrInvalidRequest(format string, a ...interface{}) *Error {
	return New("InvalidRequest", http.StatusBadRequest, KindValidation, format, a...)
}

func ErrInvalidArgument(format string, a ...interface{}) *Error {
	return New("InvalidArgument", http.StatusBadRequest, KindValidation, format, a...)
}

func ErrInvalidRange() *Error {
	return New("InvalidRange", http.StatusRequestedRangeNotSatisfiable, KindValidation, "the requested range is not satisfiable")
}

func ErrInvalidPart(partNumber int) *Error {
	return New("InvalidPart", http.StatusBadRequest, KindValidation, "part %d is invalid or was not uploaded", partNumber)
}

func ErrInvalidPartOrder() *Error {
	return New("InvalidPartOrder", http.StatusBadRequest, KindValidation, "part numbers must increase monotonically")
}

func ErrEntityTooSmall() *Error {
	return New("EntityTooSmall", http.StatusBadRequest, KindQuota, "part is smaller than the 5 MiB minimum")
}

func ErrEntityTooLarge() *Error {
	return New("EntityTooLarge", http.StatusBadRequest, KindQuota, "entity exceeds the maximum allowed size")
}

func ErrTooManyTags() *Error {
	return New("InvalidTag", http.StatusBadRequest, KindQuota, "at most 10 tags are allowed per object version")
}

func ErrMissingHeader(header string) *Error {
	return New("MissingHeader", http.StatusBadRequest, KindAuthentication, "required header %q is missing", header)
}

func ErrSignatureDoesNotMatch() *Error {
	return New("SignatureDoesNotMatch", http.StatusForbidden, KindAuthentication,
		"the request signature does not match the one the server calculated")
}

func ErrInvalidAccessKeyID() *Error {
	return New("InvalidAccessKeyId", http.StatusForbidden, KindAuthentication,
		"the access key id provided does not exist in our records")
}

func ErrRequestTimeTooSkewed() *Error {
	return New("RequestTimeTooSkewed", http.StatusForbidden, KindAuthentication,
		"the difference between the request time and the server's time is too large")
}

func ErrExpiredPresignedRequest() *Error {
	return New("ExpiredPresignedRequest", http.StatusForbidden, KindAuthentication,
		"the presigned request has expired")
}

func ErrAccessDenied(format string, a ...interface{}) *Error {
	return New("AccessDenied", http.StatusForbidden, KindAuthentication, format, a...)
}

func ErrNotImplemented(feature string) *Error {
	return New("NotImplemented", http.StatusNotImplemented, KindUnimplemented, "%s is not implemented", feature)
}

func ErrInternal(cause error, requestID string) *Error {
	return Wrap(cause, "InternalError", http.StatusInternalServerError, KindStorage,
		"an internal error occurred; request id %s", requestID)
}

// AsError unwraps err into an *Error if possible, otherwise wraps it as an
// opaque internal error.
func AsError(err error, requestID string) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal(err, requestID)
}

// IsNotFound reports whether err (or any error in its chain) is a
// not-found-kind Error.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindNotFound
}
