package blobstore

import (
	"encoding/hex"
	"io"
	"os"

	"github.com/hafiz-io/hafiz/cmn"
	"github.com/hafiz-io/hafiz/cmn/cos"
)

// PutPart durably writes a multipart upload part body, returning its size
// and MD5 hex (the per-part ETag), per spec.md §4.7.
func (s *Store) PutPart(bucket, uploadID string, partNumber int, body io.Reader) (PutResult, error) {
	fqn := partFQN(s.Root, bucket, uploadID, partNumber)
	tmp := cos.GenTempName(fqn, cmn.GenRequestID())
	f, err := cos.CreateFile(tmp)
	if err != nil {
		return PutResult{}, cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "create temp part file %q", fqn)
	}

	h := cos.NewHash(cos.ChecksumMD5)
	n, err := io.Copy(io.MultiWriter(f, h), body)
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return PutResult{}, cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "write part body to %q", tmp)
	}
	if err := cos.FlushClose(f); err != nil {
		os.Remove(tmp)
		return PutResult{}, cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "flush %q", tmp)
	}
	if err := os.Rename(tmp, fqn); err != nil {
		os.Remove(tmp)
		return PutResult{}, cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "rename %q -> %q", tmp, fqn)
	}

	md5hex := hex.EncodeToString(h.Sum(nil))
	return PutResult{Size: n, MD5Hex: md5hex, ETag: cos.QuoteETag(md5hex)}, nil
}

// OpenPart opens a previously written part body for reading during
// CompleteMultipartUpload assembly.
func (s *Store) OpenPart(bucket, uploadID string, partNumber int) (*os.File, error) {
	fqn := partFQN(s.Root, bucket, uploadID, partNumber)
	f, err := os.Open(fqn)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cmn.ErrInvalidPart(partNumber)
		}
		return nil, cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "open part %q", fqn)
	}
	return f, nil
}

// AssembleMultipart concatenates parts (in order) into the object's
// content-addressed path and returns the composite ETag plus total size.
// This is the one operation that straddles blobstore and the multipart
// composite-ETag formula (cmn/cos.CompositeMultipartETag): it needs the
// per-part MD5 hexes the caller already tracked in metadata.
func (s *Store) AssembleMultipart(bucket, key, uploadID string, partNumbers []int, partMD5s []string) (PutResult, error) {
	fqn := objectFQN(s.Root, bucket, key)
	tmp := cos.GenTempName(fqn, cmn.GenRequestID())
	out, err := cos.CreateFile(tmp)
	if err != nil {
		return PutResult{}, cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "create temp file for %q", fqn)
	}

	var total int64
	for _, pn := range partNumbers {
		part, err := s.OpenPart(bucket, uploadID, pn)
		if err != nil {
			out.Close()
			os.Remove(tmp)
			return PutResult{}, err
		}
		n, cerr := io.Copy(out, part)
		part.Close()
		total += n
		if cerr != nil {
			out.Close()
			os.Remove(tmp)
			return PutResult{}, cmn.Wrap(cerr, "InternalError", 500, cmn.KindStorage, "assemble part %d into %q", pn, tmp)
		}
	}
	if err := cos.FlushClose(out); err != nil {
		os.Remove(tmp)
		return PutResult{}, cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "flush %q", tmp)
	}
	if err := os.Rename(tmp, fqn); err != nil {
		os.Remove(tmp)
		return PutResult{}, cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "rename %q -> %q", tmp, fqn)
	}
	s.markExists(fqn)

	etag := cos.CompositeMultipartETag(partMD5s)
	return PutResult{Size: total, ETag: etag}, nil
}

// AbortMultipart removes every part file and the upload's directory.
func (s *Store) AbortMultipart(bucket, uploadID string) error {
	dir := uploadDir(s.Root, bucket, uploadID)
	if err := os.RemoveAll(dir); err != nil {
		return cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "remove upload dir %q", dir)
	}
	return nil
}
