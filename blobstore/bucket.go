package blobstore

import (
	"os"

	"github.com/karrick/godirwalk"

	"github.com/hafiz-io/hafiz/cmn"
)

// IsEmpty reports whether bucket's objects directory contains no blobs.
// Metadata is the authority on "does this bucket have versions"; this is
// strictly a filesystem-level check. Bucket deletion does not call it: only
// the package's tests do.
func (s *Store) IsEmpty(bucket string) (bool, error) {
	dir := bucketDir(s.Root, bucket) + "/" + objectsDir
	empty := true
	err := godirwalk.Walk(dir, &godirwalk.Options{
		Callback: func(_ string, de *godirwalk.Dirent) error {
			if !de.IsDir() {
				empty = false
				return godirwalk.SkipThis
			}
			return nil
		},
		Unsorted: true,
	})
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "walk bucket dir %q", dir)
	}
	return empty, nil
}
