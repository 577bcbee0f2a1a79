package metadata

import "strings"

// Key layout: every record is a JSON document under a structured string
// key so a single buntdb file can hold every entity class spec.md §4.2
// asks for, with AscendKeys-based range scans standing in for SQL's
// indexed WHERE clauses.
const (
	prefixCredential = "cred:"
	prefixBucket     = "bucket:"
	prefixVersion    = "version:" // version:<bucket>\x00<key>\x00<version_id>
	prefixLatest     = "latest:"  // latest:<bucket>\x00<key> -> version_id
	prefixUpload     = "upload:"  // upload:<bucket>\x00<upload_id>
	prefixPart       = "part:"    // part:<bucket>\x00<upload_id>\x00<part_number, zero-padded>
	prefixNode       = "node:"

	sep = "\x00"
)

func credentialKey(accessKey string) string { return prefixCredential + accessKey }
func bucketKey(name string) string          { return prefixBucket + name }
func nodeKey(nodeID string) string          { return prefixNode + nodeID }

func versionKey(bucket, key, versionID string) string {
	return prefixVersion + bucket + sep + key + sep + versionID
}

func versionScanPrefix(bucket, key string) string {
	return prefixVersion + bucket + sep + key + sep
}

func bucketScanPrefix(bucket string) string {
	return prefixVersion + bucket + sep
}

func latestKey(bucket, key string) string {
	return prefixLatest + bucket + sep + key
}

func uploadKey(bucket, uploadID string) string {
	return prefixUpload + bucket + sep + uploadID
}

func uploadScanPrefix(bucket string) string {
	return prefixUpload + bucket + sep
}

func partKey(bucket, uploadID string, partNumber int) string {
	return prefixPart + bucket + sep + uploadID + sep + zeroPad(partNumber)
}

func partScanPrefix(bucket, uploadID string) string {
	return prefixPart + bucket + sep + uploadID + sep
}

// zeroPad widens part numbers to a fixed 5-digit width (max is 10,000) so
// lexicographic key order matches numeric order for AscendKeys scans.
func zeroPad(n int) string {
	s := itoa(n)
	for len(s) < 5 {
		s = "0" + s
	}
	return s
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b strings.Builder
	var digits [12]byte
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	b.Write(digits[i:])
	return b.String()
}

// splitVersionKey recovers (bucket, key, version_id) from a
// version: scan key.
func splitVersionKey(k string) (bucket, key, versionID string, ok bool) {
	rest := strings.TrimPrefix(k, prefixVersion)
	parts := strings.SplitN(rest, sep, 3)
	if len(parts) != 3 {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}
