package objectsvc

import (
	"strconv"
	"strings"

	"github.com/hafiz-io/hafiz/cmn"
)

// ByteRange is a resolved, inclusive [Start, End] range into a known-size
// object, per spec.md §4.4/§8 property 6.
type ByteRange struct {
	Start, End int64
}

// Len returns the number of bytes the range covers.
func (r ByteRange) Len() int64 { return r.End - r.Start + 1 }

// ParseRange parses an HTTP Range header value of the form "bytes=A-B",
// "bytes=-N" (suffix, last N bytes), or "bytes=A-" (from A to end) against
// a known object size. Returns (nil, nil) when header is empty (no range
// requested — the whole object is served).
func ParseRange(header string, size int64) (*ByteRange, *cmn.Error) {
	if header == "" {
		return nil, nil
	}
	const p = "bytes="
	if !strings.HasPrefix(header, p) {
		return nil, cmn.ErrInvalidRange()
	}
	spec := header[len(p):]
	dash := strings.IndexByte(spec, '-')
	if dash < 0 {
		return nil, cmn.ErrInvalidRange()
	}
	startStr, endStr := spec[:dash], spec[dash+1:]

	var start, end int64
	switch {
	case startStr == "" && endStr != "":
		// suffix range: last N bytes
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return nil, cmn.ErrInvalidRange()
		}
		if n > size {
			n = size
		}
		start = size - n
		end = size - 1
	case startStr != "" && endStr == "":
		s, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil || s < 0 {
			return nil, cmn.ErrInvalidRange()
		}
		start = s
		end = size - 1
	case startStr != "" && endStr != "":
		s, err1 := strconv.ParseInt(startStr, 10, 64)
		e, err2 := strconv.ParseInt(endStr, 10, 64)
		if err1 != nil || err2 != nil || s < 0 || e < s {
			return nil, cmn.ErrInvalidRange()
		}
		start, end = s, e
	default:
		return nil, cmn.ErrInvalidRange()
	}

	if size == 0 || start >= size || start < 0 {
		return nil, cmn.ErrInvalidRange()
	}
	if end >= size {
		end = size - 1
	}
	return &ByteRange{Start: start, End: end}, nil
}
