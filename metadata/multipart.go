package metadata

import (
	"context"
	"sort"

	"github.com/tidwall/buntdb"

	"github.com/hafiz-io/hafiz/cmn"
)

func (r *BuntRepository) CreateMultipartSession(_ context.Context, s MultipartSession) error {
	return r.db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Get(uploadKey(s.Bucket, s.UploadID)); err == nil {
			return cmn.New("InternalError", 500, cmn.KindConflict, "upload id %q already in use", s.UploadID)
		}
		doc, err := marshal(s)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(uploadKey(s.Bucket, s.UploadID), doc, nil)
		return err
	})
}

func (r *BuntRepository) GetMultipartSession(_ context.Context, bucket, uploadID string) (MultipartSession, bool, error) {
	var s MultipartSession
	found := false
	err := r.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(uploadKey(bucket, uploadID))
		if err == buntdb.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		if err := metaJSON.UnmarshalFromString(val, &s); err != nil {
			return err
		}
		return ascendPrefix(tx, partScanPrefix(bucket, uploadID), func(_, pval string) bool {
			var p MultipartPart
			if err := metaJSON.UnmarshalFromString(pval, &p); err == nil {
				if s.Parts == nil {
					s.Parts = make(map[int]MultipartPart)
				}
				s.Parts[p.PartNumber] = p
			}
			return true
		})
	})
	if err != nil {
		return MultipartSession{}, false, cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "get multipart session %q/%q", bucket, uploadID)
	}
	return s, found, nil
}

func (r *BuntRepository) ListMultipartSessions(_ context.Context, bucket string) ([]MultipartSession, error) {
	var out []MultipartSession
	err := r.db.View(func(tx *buntdb.Tx) error {
		return ascendPrefix(tx, uploadScanPrefix(bucket), func(_, val string) bool {
			var s MultipartSession
			if err := metaJSON.UnmarshalFromString(val, &s); err == nil {
				out = append(out, s)
			}
			return true
		})
	})
	if err != nil {
		return nil, cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "list multipart sessions %q", bucket)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *BuntRepository) PutPart(_ context.Context, bucket, uploadID string, part MultipartPart) error {
	return r.db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Get(uploadKey(bucket, uploadID)); err == buntdb.ErrNotFound {
			return cmn.ErrNoSuchUpload(uploadID)
		} else if err != nil {
			return err
		}
		doc, err := marshal(part)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(partKey(bucket, uploadID, part.PartNumber), doc, nil)
		return err
	})
}

func (r *BuntRepository) DeleteMultipartSession(_ context.Context, bucket, uploadID string) error {
	return r.db.Update(func(tx *buntdb.Tx) error {
		var keys []string
		if err := ascendPrefix(tx, partScanPrefix(bucket, uploadID), func(k, _ string) bool {
			keys = append(keys, k)
			return true
		}); err != nil {
			return err
		}
		for _, k := range keys {
			if _, err := tx.Delete(k); err != nil && err != buntdb.ErrNotFound {
				return err
			}
		}
		if _, err := tx.Delete(uploadKey(bucket, uploadID)); err != nil && err != buntdb.ErrNotFound {
			return err
		}
		return nil
	})
}
