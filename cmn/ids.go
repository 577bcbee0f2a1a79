/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/base64"
	"sync"
	"time"

	"github.com/teris-io/shortid"
)

// alphabet mirrors the teacher's uuidABC: URL-safe, no padding characters
// that would need escaping in a query string.
const idAlphabet = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

var (
	idMu sync.Mutex
	sid  *shortid.Shortid
)

// InitIDGenerator seeds the global id generator; call once at startup.
func InitIDGenerator(seed uint64) {
	idMu.Lock()
	defer idMu.Unlock()
	sid = shortid.MustNew(4, idAlphabet, seed)
}

func genShortID() string {
	idMu.Lock()
	defer idMu.Unlock()
	if sid == nil {
		sid = shortid.MustNew(4, idAlphabet, uint64(time.Now().UnixNano()))
	}
	return sid.MustGenerate()
}

// GenRequestID returns a short opaque id allocated at HTTP ingress and
// echoed in every error body, per spec.md §7.
func GenRequestID() string { return genShortID() }

// GenVersionID returns an object-version id. Version ids must be
// lexicographically non-decreasing over wall time for a given (bucket,
// key) per spec.md §3, so it is timestamp-prefixed (base32, sortable) with
// a short random suffix for uniqueness among concurrent writers.
func GenVersionID() string {
	now := time.Now().UTC()
	// 12 bytes of big-endian, sortable timestamp encoding: 8 bytes of seconds
	// since epoch then 4 bytes of nanosecond remainder, fixed width under
	// base32.
	ts := now.Unix()
	buf := make([]byte, 12)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(ts & 0xff)
		ts >>= 8
	}
	ns := uint32(now.Nanosecond())
	for i := 11; i >= 8; i-- {
		buf[i] = byte(ns & 0xff)
		ns >>= 8
	}
	prefix := base32.HexEncoding.WithPadding(base32.NoPadding).EncodeToString(buf)
	return prefix + genShortID()
}

// GenUploadID returns a random 128-bit, URL-safe-encoded multipart upload
// id, per spec.md §4.7 ("random 128-bit").
func GenUploadID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing is catastrophic; fall back to the short-id
		// generator rather than handing out a colliding upload id.
		return genShortID() + genShortID()
	}
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// GenAccessKey returns a credential access key in the "AKIA" + 16 base36
// upper form spec.md §3 requires.
func GenAccessKey() string {
	const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	var b [16]byte
	_, _ = rand.Read(b[:])
	out := make([]byte, 16)
	for i, v := range b {
		out[i] = alphabet[int(v)%len(alphabet)]
	}
	return "AKIA" + string(out)
}

// GenSecretKey returns a 40-char base64-alphabet secret key.
func GenSecretKey() string {
	var b [30]byte
	_, _ = rand.Read(b[:])
	s := base64.StdEncoding.EncodeToString(b[:])
	if len(s) > 40 {
		s = s[:40]
	}
	return s
}
