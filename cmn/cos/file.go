package cos

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// CreateFile creates fqn and any missing parent directories.
func CreateFile(fqn string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(fqn), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(fqn, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
}

// FlushClose fsyncs and closes file, surfacing whichever error came first.
func FlushClose(file *os.File) error {
	errSync := file.Sync()
	errClose := file.Close()
	if errSync != nil {
		return errSync
	}
	return errClose
}

// FsyncDir fsyncs the file at fqn's *directory*, so that a rename or create of
// fqn is itself durable (not just fqn's own contents).
func FsyncDir(fqn string) error {
	dir := filepath.Dir(fqn)
	fd, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer fd.Close()
	return fd.Sync()
}

// DiskFree reports free bytes on the filesystem containing path, used by the
// blob store's capacity and health checks.
func DiskFree(path string) (free, total uint64, err error) {
	var stat unix.Statfs_t
	if err = unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	free = stat.Bavail * uint64(stat.Bsize)
	total = stat.Blocks * uint64(stat.Bsize)
	return free, total, nil
}

// RemoveFile removes fqn, tolerating "already gone".
func RemoveFile(fqn string) error {
	if err := os.Remove(fqn); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// GenTempName returns a sibling temp path for fqn, used by the two-phase
// write: write to GenTempName(fqn), fsync, then rename onto fqn.
func GenTempName(fqn, tieBreaker string) string {
	return fmt.Sprintf("%s.tmp.%s", fqn, tieBreaker)
}
