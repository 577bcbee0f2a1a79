package blobstore

import (
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/glog"
	cuckoo "github.com/seiflotfy/cuckoofilter"
	"golang.org/x/sync/singleflight"

	"github.com/hafiz-io/hafiz/cmn"
	"github.com/hafiz-io/hafiz/cmn/cos"
	"github.com/hafiz-io/hafiz/cmn/debug"
)

// Store is the content-addressed local filesystem blob store described in
// spec.md §4.1. One Store serves every bucket rooted under Root.
type Store struct {
	Root string

	// existence is a probabilistic pre-check: a negative answer is
	// authoritative (skip the stat/open syscall), a positive answer still
	// requires confirming on disk. Sized generously and seeded by NewStore
	// with every file already under Root; false positives only cost an
	// extra stat.
	existence   *cuckoo.Filter
	existenceMu sync.Mutex

	// getGroup collapses concurrent GETs for the same FQN into a single
	// open+stat, mirroring the teacher's request-coalescing idiom.
	getGroup singleflight.Group
}

// PutResult reports what a successful Put wrote.
type PutResult struct {
	Size    int64
	MD5Hex  string
	ETag    string // quoted
}

// NewStore constructs a Store rooted at root. root must already exist.
func NewStore(root string) *Store {
	s := &Store{
		Root:      root,
		existence: cuckoo.NewFilter(1 << 20),
	}
	// Blobs written by an earlier process must not read as absent.
	_ = filepath.Walk(root, func(p string, fi os.FileInfo, err error) error {
		if err == nil && !fi.IsDir() {
			s.markExists(p)
		}
		return nil
	})
	return s
}

// CreateBucket creates the on-disk directory tree for a new bucket.
func (s *Store) CreateBucket(bucket string) error {
	dir := bucketDir(s.Root, bucket)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "create bucket dir %q", dir)
	}
	for _, sub := range []string{objectsDir, uploadsDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "create bucket subdir %q/%s", dir, sub)
		}
	}
	return nil
}

// DeleteBucket removes a bucket's directory tree. Callers must have already
// verified (via the metadata repository) that the bucket is empty.
func (s *Store) DeleteBucket(bucket string) error {
	dir := bucketDir(s.Root, bucket)
	if err := os.RemoveAll(dir); err != nil {
		return cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "remove bucket dir %q", dir)
	}
	return nil
}

// Put durably writes body under key's content-addressed path using a
// two-phase write (temp file, fsync, atomic rename), per spec.md §9's
// "write blob first, then commit metadata" ordering.
func (s *Store) Put(bucket, key string, body io.Reader) (PutResult, error) {
	fqn := objectFQN(s.Root, bucket, key)
	tmp := cos.GenTempName(fqn, cmn.GenRequestID())
	f, err := cos.CreateFile(tmp)
	if err != nil {
		return PutResult{}, cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "create temp file for %q", fqn)
	}

	h := cos.NewHash(cos.ChecksumMD5)
	n, err := io.Copy(io.MultiWriter(f, h), body)
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return PutResult{}, cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "write body to %q", tmp)
	}
	if err := cos.FlushClose(f); err != nil {
		os.Remove(tmp)
		return PutResult{}, cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "flush %q", tmp)
	}
	if err := os.Rename(tmp, fqn); err != nil {
		os.Remove(tmp)
		return PutResult{}, cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "rename %q -> %q", tmp, fqn)
	}
	if err := cos.FsyncDir(fqn); err != nil {
		glog.Warningf("fsync dir for %q failed: %v", fqn, err)
	}

	s.markExists(fqn)

	digest := h.Sum(nil)
	md5hex := hex.EncodeToString(digest)
	return PutResult{Size: n, MD5Hex: md5hex, ETag: cos.QuoteETag(md5hex)}, nil
}

// RetireCurrent moves the object currently at key's content-addressed path
// aside to a version-specific filename, making room for a new Put to
// replace the "current" slot while the prior body stays retrievable for
// historical reads, per spec.md §3 ("version carries ... body").
func (s *Store) RetireCurrent(bucket, key, versionID string) error {
	cur := objectFQN(s.Root, bucket, key)
	if _, err := os.Stat(cur); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "stat %q", cur)
	}
	dst := versionedObjectFQN(s.Root, bucket, key, versionID)
	if err := os.Rename(cur, dst); err != nil {
		return cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "retire %q -> %q", cur, dst)
	}
	s.markAbsent(cur)
	s.markExists(dst)
	return nil
}

// Get opens the current body for (bucket, key). Concurrent Gets for the
// same key share one open+stat via singleflight and each caller then opens
// its own file handle; the size/mtime pair is returned so the caller
// (objectsvc) can apply Range semantics.
func (s *Store) Get(bucket, key string) (*os.File, os.FileInfo, error) {
	fqn := objectFQN(s.Root, bucket, key)
	return s.openFQN(fqn)
}

// GetVersion opens the body retired for a specific, non-current version id.
func (s *Store) GetVersion(bucket, key, versionID string) (*os.File, os.FileInfo, error) {
	fqn := versionedObjectFQN(s.Root, bucket, key, versionID)
	return s.openFQN(fqn)
}

func (s *Store) openFQN(fqn string) (*os.File, os.FileInfo, error) {
	if s.probablyAbsent(fqn) {
		return nil, nil, cmn.New("NoSuchKey", 404, cmn.KindNotFound, "no blob at %q", fqn)
	}
	v, err, _ := s.getGroup.Do(fqn, func() (interface{}, error) {
		f, err := os.Open(fqn)
		if err != nil {
			return nil, err
		}
		fi, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, err
		}
		return &openResult{f: f, fi: fi}, nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, cmn.New("NoSuchKey", 404, cmn.KindNotFound, "no blob at %q", fqn)
		}
		return nil, nil, cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "open %q", fqn)
	}
	// singleflight shares the same *os.File across waiters racing the same
	// key; each caller still gets its own fd view here since only the
	// first caller's result is reused for file metadata, not the handle
	// itself, to avoid concurrent Seek/Read interference.
	res := v.(*openResult)
	f2, err := os.Open(fqn)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, cmn.New("NoSuchKey", 404, cmn.KindNotFound, "no blob at %q", fqn)
		}
		return nil, nil, cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "open %q", fqn)
	}
	res.f.Close()
	return f2, res.fi, nil
}

type openResult struct {
	f  *os.File
	fi os.FileInfo
}

// Delete removes the current blob for (bucket, key). Not-exist is not an
// error: the caller (objectsvc) already holds the authoritative metadata
// decision to delete.
func (s *Store) Delete(bucket, key string) error {
	fqn := objectFQN(s.Root, bucket, key)
	return s.remove(fqn)
}

// DeleteVersion removes a specific retired version's blob.
func (s *Store) DeleteVersion(bucket, key, versionID string) error {
	fqn := versionedObjectFQN(s.Root, bucket, key, versionID)
	return s.remove(fqn)
}

func (s *Store) remove(fqn string) error {
	if err := cos.RemoveFile(fqn); err != nil {
		return cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "remove %q", fqn)
	}
	s.markAbsent(fqn)
	return nil
}

// Exists reports whether a blob is present for (bucket, key), consulting
// the cuckoo filter before the filesystem.
func (s *Store) Exists(bucket, key string) bool {
	fqn := objectFQN(s.Root, bucket, key)
	if s.probablyAbsent(fqn) {
		return false
	}
	_, err := os.Stat(fqn)
	return err == nil
}

func (s *Store) markExists(fqn string) {
	s.existenceMu.Lock()
	s.existence.InsertUnique([]byte(fqn))
	s.existenceMu.Unlock()
}

func (s *Store) markAbsent(fqn string) {
	s.existenceMu.Lock()
	s.existence.Delete([]byte(fqn))
	s.existenceMu.Unlock()
}

// probablyAbsent returns true only when the filter is certain the key was
// never inserted; a false return still requires a stat/open to confirm.
func (s *Store) probablyAbsent(fqn string) bool {
	s.existenceMu.Lock()
	defer s.existenceMu.Unlock()
	return !s.existence.Lookup([]byte(fqn))
}

// HealthCheck verifies Root is a writable, statable directory with free
// space remaining, per spec.md §9's "health check" component note.
func (s *Store) HealthCheck() error {
	free, total, err := cos.DiskFree(s.Root)
	if err != nil {
		return cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "statfs %q", s.Root)
	}
	debug.Assert(total == 0 || free <= total)
	if total > 0 && free == 0 {
		return cmn.New("InternalError", 500, cmn.KindStorage, "no free space remaining on %q", s.Root)
	}
	probe := cos.GenTempName(filepath.Join(s.Root, ".health"), cmn.GenRequestID())
	f, err := cos.CreateFile(probe)
	if err != nil {
		return cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "health probe write to %q", s.Root)
	}
	cos.FlushClose(f)
	os.Remove(probe)
	return nil
}
