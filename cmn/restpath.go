/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import "strings"

// SplitRESTItems splits an HTTP request path into its non-empty segments,
// the way the teacher's checkRESTItems does before dispatch in
// ais/tgts3.go. A leading "/" (and any trailing one) is ignored.
func SplitRESTItems(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// BucketAndKey splits a request path into (bucket, key); key may contain
// further "/" separators and is rejoined as-is.
func BucketAndKey(path string) (bucket, key string) {
	items := SplitRESTItems(path)
	if len(items) == 0 {
		return "", ""
	}
	bucket = items[0]
	if len(items) > 1 {
		key = strings.Join(items[1:], "/")
	}
	return bucket, key
}
