// Package sigv4 implements AWS Signature Version 4 request canonicalization,
// header-based verification, and presigned URL issuance/validation, per
// spec.md §4.3.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package sigv4

import "time"

// CanonicalRequest is everything the signer needs about an inbound (or
// about-to-be-presigned) HTTP request, decoupled from net/http so it can be
// constructed directly in tests against the published AWS test vectors.
type CanonicalRequest struct {
	Method string
	// Path is the unencoded request path, e.g. "/bucket/obj name".
	Path string
	// Query is the raw, already-percent-encoded query string (without the
	// leading '?'), e.g. "list-type=2&prefix=a%2Fb".
	Query string
	// Headers maps lowercased header name -> raw value(s) joined by ", ".
	Headers map[string]string
	// PayloadHash is the hex SHA-256 of the request body, or the literal
	// "UNSIGNED-PAYLOAD" sentinel some S3 clients send.
	PayloadHash string
}

// CredentialScope is the parsed Credential field: access_key/date/region/
// service/aws4_request.
type CredentialScope struct {
	AccessKey string
	Date      string // YYYYMMDD
	Region    string
	Service   string
}

const (
	Algorithm      = "AWS4-HMAC-SHA256"
	terminator     = "aws4_request"
	dateFormat     = "20060102"
	amzDateFormat  = "20060102T150405Z"
	maxClockSkew   = 15 * time.Minute
	minPresignTTL  = 1 * time.Second
	maxPresignTTL  = 7 * 24 * time.Hour // 604800 seconds
)
