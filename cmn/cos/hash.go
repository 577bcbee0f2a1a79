// Package cos provides low-level checksum, file, and encoding helpers shared
// across the hafiz object storage server.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strconv"
)

// Checksum kinds recognized by the blob store and the object service.
const (
	ChecksumNone   = ""
	ChecksumMD5    = "md5"
	ChecksumSHA1   = "sha1"
	ChecksumSHA256 = "sha256"
)

// NewHash returns a fresh hash.Hash for the given checksum kind.
func NewHash(kind string) hash.Hash {
	switch kind {
	case ChecksumSHA1:
		return sha1.New()
	case ChecksumSHA256:
		return sha256.New()
	default:
		return md5.New()
	}
}

// MD5Hex hashes b and returns the lowercase hex digest, as used for
// single-PUT ETags.
func MD5Hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

// MD5Reader streams r through MD5 and returns the hex digest together with
// the number of bytes read.
func MD5Reader(r io.Reader) (digest string, n int64, err error) {
	h := md5.New()
	n, err = io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// SHA256Hex returns the lowercase hex SHA-256 digest of b; used as the
// canonical-request payload hash in SigV4.
func SHA256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HMACSHA256 computes HMAC-SHA256(key, data), the single chain link used to
// derive the SigV4 signing key and the final signature.
func HMACSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// ConstantTimeCompare reports whether two hex-encoded signatures are equal,
// without leaking timing information about where they first differ.
func ConstantTimeCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// CompositeMultipartETag implements the spec's composite-ETag formula:
// hex(md5(concat(rawPartMD5s))) + "-" + partCount, quoted the way S3 quotes
// all ETags on the wire.
func CompositeMultipartETag(partMD5Hex []string) string {
	h := md5.New()
	for _, hexDigest := range partMD5Hex {
		raw, err := hex.DecodeString(hexDigest)
		if err != nil {
			// Caller is expected to have validated each part ETag already;
			// treat corruption as an empty contribution rather than panic.
			continue
		}
		h.Write(raw)
	}
	sum := hex.EncodeToString(h.Sum(nil))
	return fmt.Sprintf(`"%s-%d"`, sum, len(partMD5Hex))
}

// QuoteETag wraps a plain hex digest in the double quotes S3 always emits.
func QuoteETag(digest string) string {
	return `"` + digest + `"`
}

// UnquoteETag strips one layer of surrounding double quotes, if present.
func UnquoteETag(etag string) string {
	if len(etag) >= 2 && etag[0] == '"' && etag[len(etag)-1] == '"' {
		return etag[1 : len(etag)-1]
	}
	return etag
}

// FanoutDir returns the two-character fan-out directory for an MD5 hex
// digest, bounding directory-entry counts per spec.md §4.1.
func FanoutDir(md5hex string) string {
	if len(md5hex) < 2 {
		return "00"
	}
	return md5hex[:2]
}

// KeyDigest returns the content-addressing digest for an object key: the
// hex MD5 of the key string itself (not its body).
func KeyDigest(key string) string {
	return MD5Hex([]byte(key))
}

// B2S formats a byte count the way the teacher's stats package does, used
// only in log lines.
func B2S(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + "B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
