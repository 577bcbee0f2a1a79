package metadata

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/buntdb"

	"github.com/hafiz-io/hafiz/cmn"
)

func (r *BuntRepository) InsertVersion(_ context.Context, v Version) error {
	return r.db.Update(func(tx *buntdb.Tx) error {
		if v.IsLatest {
			if err := demoteLatest(tx, v.Bucket, v.Key, v.LastModified); err != nil {
				return err
			}
		}
		doc, err := marshal(v)
		if err != nil {
			return err
		}
		if _, _, err := tx.Set(versionKey(v.Bucket, v.Key, v.VersionID), doc, nil); err != nil {
			return err
		}
		if v.IsLatest {
			if _, _, err := tx.Set(latestKey(v.Bucket, v.Key), v.VersionID, nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// demoteLatest clears is_latest on whatever version currently holds it for
// (bucket, key) and stamps BecameNoncurrentAt with becameAt (the new
// version's own last_modified, standing in for "now" so this package never
// calls time.Now() itself — every timestamp flows in from the caller),
// per spec.md §4.4's "mark prior latest as noncurrent" rule.
func demoteLatest(tx *buntdb.Tx, bucket, key string, becameAt time.Time) error {
	prevID, err := tx.Get(latestKey(bucket, key))
	if err == buntdb.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	prevKey := versionKey(bucket, key, prevID)
	val, err := tx.Get(prevKey)
	if err == buntdb.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	var prev Version
	if err := metaJSON.UnmarshalFromString(val, &prev); err != nil {
		return err
	}
	prev.IsLatest = false
	prev.BecameNoncurrentAt = becameAt
	doc, err := marshal(prev)
	if err != nil {
		return err
	}
	_, _, err = tx.Set(prevKey, doc, nil)
	return err
}

func (r *BuntRepository) GetLatestVersion(_ context.Context, bucket, key string) (Version, bool, error) {
	var v Version
	found := false
	err := r.db.View(func(tx *buntdb.Tx) error {
		id, err := tx.Get(latestKey(bucket, key))
		if err == buntdb.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		val, err := tx.Get(versionKey(bucket, key, id))
		if err == buntdb.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return metaJSON.UnmarshalFromString(val, &v)
	})
	if err != nil {
		return Version{}, false, cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "get latest version %q/%q", bucket, key)
	}
	return v, found, nil
}

func (r *BuntRepository) GetVersion(_ context.Context, bucket, key, versionID string) (Version, bool, error) {
	var v Version
	found := false
	err := r.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(versionKey(bucket, key, versionID))
		if err == buntdb.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return metaJSON.UnmarshalFromString(val, &v)
	})
	if err != nil {
		return Version{}, false, cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "get version %q/%q/%q", bucket, key, versionID)
	}
	return v, found, nil
}

func (r *BuntRepository) DeleteVersion(_ context.Context, bucket, key, versionID string) error {
	return r.db.Update(func(tx *buntdb.Tx) error {
		k := versionKey(bucket, key, versionID)
		val, err := tx.Get(k)
		if err == buntdb.ErrNotFound {
			return cmn.ErrNoSuchVersion(bucket, key, versionID)
		}
		if err != nil {
			return err
		}
		var v Version
		if err := metaJSON.UnmarshalFromString(val, &v); err != nil {
			return err
		}
		if _, err := tx.Delete(k); err != nil {
			return err
		}
		if v.IsLatest {
			if err := promoteNextNewest(tx, bucket, key); err != nil {
				return err
			}
		}
		return nil
	})
}

// promoteNextNewest finds the remaining version with the lexicographically
// greatest version_id for (bucket, key) and marks it latest, per spec.md
// §3's "next-newest becomes latest" invariant.
func promoteNextNewest(tx *buntdb.Tx, bucket, key string) error {
	var best string
	var bestDoc string
	err := ascendPrefix(tx, versionScanPrefix(bucket, key), func(k, val string) bool {
		_, _, versionID, ok := splitVersionKey(k)
		if !ok {
			return true
		}
		if versionID > best {
			best, bestDoc = versionID, val
		}
		return true
	})
	if err != nil {
		return err
	}
	if best == "" {
		if _, err := tx.Delete(latestKey(bucket, key)); err != nil && err != buntdb.ErrNotFound {
			return err
		}
		return nil
	}
	var v Version
	if err := metaJSON.UnmarshalFromString(bestDoc, &v); err != nil {
		return err
	}
	v.IsLatest = true
	doc, err := marshal(v)
	if err != nil {
		return err
	}
	if _, _, err := tx.Set(versionKey(bucket, key, best), doc, nil); err != nil {
		return err
	}
	_, _, err = tx.Set(latestKey(bucket, key), best, nil)
	return err
}

func (r *BuntRepository) CreateDeleteMarker(_ context.Context, bucket, key string, marker Version) error {
	marker.DeleteMarker = true
	marker.IsLatest = true
	return r.InsertVersion(context.Background(), marker)
}

func (r *BuntRepository) SetVersionTags(_ context.Context, bucket, key, versionID string, tags map[string]string) error {
	return r.mutateVersion(bucket, key, versionID, func(v *Version) error {
		v.Tags = tags
		return nil
	})
}

func (r *BuntRepository) SetRetention(_ context.Context, bucket, key, versionID string, ret *Retention) error {
	return r.mutateVersion(bucket, key, versionID, func(v *Version) error {
		v.Retention = ret
		return nil
	})
}

func (r *BuntRepository) SetLegalHold(_ context.Context, bucket, key, versionID string, hold bool) error {
	return r.mutateVersion(bucket, key, versionID, func(v *Version) error {
		v.LegalHold = hold
		return nil
	})
}

func (r *BuntRepository) mutateVersion(bucket, key, versionID string, mutate func(*Version) error) error {
	return r.db.Update(func(tx *buntdb.Tx) error {
		k := versionKey(bucket, key, versionID)
		val, err := tx.Get(k)
		if err == buntdb.ErrNotFound {
			return cmn.ErrNoSuchVersion(bucket, key, versionID)
		}
		if err != nil {
			return err
		}
		var v Version
		if err := metaJSON.UnmarshalFromString(val, &v); err != nil {
			return err
		}
		if err := mutate(&v); err != nil {
			return err
		}
		doc, err := marshal(v)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(k, doc, nil)
		return err
	})
}

func (r *BuntRepository) ListAllVersions(_ context.Context, bucket string) ([]Version, error) {
	var out []Version
	err := r.db.View(func(tx *buntdb.Tx) error {
		return ascendPrefix(tx, bucketScanPrefix(bucket), func(_, val string) bool {
			var v Version
			if err := metaJSON.UnmarshalFromString(val, &v); err == nil {
				out = append(out, v)
			}
			return true
		})
	})
	if err != nil {
		return nil, cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "list all versions for %q", bucket)
	}
	return out, nil
}

// ListObjects implements ListObjectsV2-style prefix+delimiter listing with
// CommonPrefix collapsing, per spec.md §4.2.
func (r *BuntRepository) ListObjects(_ context.Context, bucket, prefix, delimiter, continuationToken string, maxKeys int) (ListObjectsResult, error) {
	if maxKeys <= 0 || maxKeys > 1000 {
		maxKeys = 1000
	}
	type latestByKey struct {
		key string
		v   Version
	}
	var latest []latestByKey

	err := r.db.View(func(tx *buntdb.Tx) error {
		return ascendPrefix(tx, bucketScanPrefix(bucket), func(k, val string) bool {
			_, key, _, ok := splitVersionKey(k)
			if !ok || !strings.HasPrefix(key, prefix) {
				return true
			}
			var v Version
			if err := metaJSON.UnmarshalFromString(val, &v); err != nil {
				return true
			}
			if !v.IsLatest || v.DeleteMarker {
				return true
			}
			latest = append(latest, latestByKey{key: key, v: v})
			return true
		})
	})
	if err != nil {
		return ListObjectsResult{}, cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "list objects %q", bucket)
	}
	sort.Slice(latest, func(i, j int) bool { return latest[i].key < latest[j].key })

	start := 0
	if continuationToken != "" {
		for i, e := range latest {
			if e.key > continuationToken {
				start = i
				break
			}
			start = i + 1
		}
	}

	var result ListObjectsResult
	seenPrefixes := map[string]bool{}
	count := 0
	i := start
	for ; i < len(latest) && count < maxKeys; i++ {
		e := latest[i]
		if delimiter != "" {
			rest := e.key[len(prefix):]
			if idx := strings.Index(rest, delimiter); idx >= 0 {
				cp := prefix + rest[:idx+len(delimiter)]
				if !seenPrefixes[cp] {
					seenPrefixes[cp] = true
					result.CommonPrefixes = append(result.CommonPrefixes, cp)
					count++
				}
				continue
			}
		}
		result.Versions = append(result.Versions, e.v)
		count++
	}
	if i < len(latest) {
		result.IsTruncated = true
		result.NextToken = latest[i-1].key
	}
	return result, nil
}

// ListVersions implements ListObjectVersions paging by (key_marker,
// version_id_marker), newest-first per key, per spec.md §8 property 4.
func (r *BuntRepository) ListVersions(_ context.Context, bucket, prefix, keyMarker, versionIDMarker string, maxKeys int) (ListVersionsResult, error) {
	if maxKeys <= 0 || maxKeys > 1000 {
		maxKeys = 1000
	}
	var all []Version
	err := r.db.View(func(tx *buntdb.Tx) error {
		return ascendPrefix(tx, bucketScanPrefix(bucket), func(k, val string) bool {
			_, key, _, ok := splitVersionKey(k)
			if !ok || !strings.HasPrefix(key, prefix) {
				return true
			}
			var v Version
			if err := metaJSON.UnmarshalFromString(val, &v); err == nil {
				all = append(all, v)
			}
			return true
		})
	})
	if err != nil {
		return ListVersionsResult{}, cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "list versions %q", bucket)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Key != all[j].Key {
			return all[i].Key < all[j].Key
		}
		// newest-first within a key
		return all[i].VersionID > all[j].VersionID
	})

	start := 0
	if keyMarker != "" {
		start = len(all)
		for i, v := range all {
			if v.Key < keyMarker || (v.Key == keyMarker && v.VersionID >= versionIDMarker) {
				continue
			}
			start = i
			break
		}
	}

	var result ListVersionsResult
	count := 0
	i := start
	for ; i < len(all) && count < maxKeys; i++ {
		result.Versions = append(result.Versions, all[i])
		count++
	}
	if i < len(all) {
		result.IsTruncated = true
		result.NextKeyMarker = all[i-1].Key
		result.NextVersionMarker = all[i-1].VersionID
	}
	return result, nil
}
