package blobstore

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/hafiz-io/hafiz/cmn"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cmn.InitIDGenerator(1)
	dir, err := os.MkdirTemp("", "blobstore-test-")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	s := NewStore(dir)
	if err := s.CreateBucket("b1"); err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}
	return s
}

func TestPutGetDeleteRoundTrip(t *testing.T) {
	s := newTestStore(t)

	body := []byte("hello world")
	res, err := s.Put("b1", "obj.txt", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if res.Size != int64(len(body)) {
		t.Fatalf("Put size = %d, want %d", res.Size, len(body))
	}
	if !s.Exists("b1", "obj.txt") {
		t.Fatalf("Exists = false after Put")
	}

	f, fi, err := s.Get("b1", "obj.txt")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer f.Close()
	if fi.Size() != int64(len(body)) {
		t.Fatalf("Get file size = %d, want %d", fi.Size(), len(body))
	}
	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("Get body = %q, want %q", got, body)
	}

	if err := s.Delete("b1", "obj.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if s.Exists("b1", "obj.txt") {
		t.Fatalf("Exists = true after Delete")
	}
	if _, _, err := s.Get("b1", "obj.txt"); err == nil {
		t.Fatalf("Get succeeded after Delete")
	}
}

func TestGetMissingKeyReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.Get("b1", "nope.txt")
	if err == nil {
		t.Fatalf("expected error for missing key")
	}
	if !cmn.IsNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestRetireCurrentKeepsOldBodyReadable(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Put("b1", "k", bytes.NewReader([]byte("v1"))); err != nil {
		t.Fatalf("Put v1: %v", err)
	}
	if err := s.RetireCurrent("b1", "k", "v1"); err != nil {
		t.Fatalf("RetireCurrent: %v", err)
	}
	if _, err := s.Put("b1", "k", bytes.NewReader([]byte("v2"))); err != nil {
		t.Fatalf("Put v2: %v", err)
	}

	f1, _, err := s.GetVersion("b1", "k", "v1")
	if err != nil {
		t.Fatalf("GetVersion v1: %v", err)
	}
	b1, _ := io.ReadAll(f1)
	f1.Close()
	if string(b1) != "v1" {
		t.Fatalf("GetVersion v1 body = %q, want v1", b1)
	}

	f2, _, err := s.Get("b1", "k")
	if err != nil {
		t.Fatalf("Get current: %v", err)
	}
	b2, _ := io.ReadAll(f2)
	f2.Close()
	if string(b2) != "v2" {
		t.Fatalf("Get current body = %q, want v2", b2)
	}
}

func TestMultipartAssembly(t *testing.T) {
	s := newTestStore(t)
	uploadID := "up1"

	p1, err := s.PutPart("b1", uploadID, 1, bytes.NewReader([]byte{}))
	if err != nil {
		t.Fatalf("PutPart 1: %v", err)
	}
	p2, err := s.PutPart("b1", uploadID, 2, bytes.NewReader([]byte("data")))
	if err != nil {
		t.Fatalf("PutPart 2: %v", err)
	}

	res, err := s.AssembleMultipart("b1", "multi.bin", uploadID, []int{1, 2}, []string{p1.MD5Hex, p2.MD5Hex})
	if err != nil {
		t.Fatalf("AssembleMultipart: %v", err)
	}
	if res.ETag == "" {
		t.Fatalf("AssembleMultipart returned empty ETag")
	}
	if res.Size != 4 {
		t.Fatalf("AssembleMultipart size = %d, want 4", res.Size)
	}

	if err := s.AbortMultipart("b1", uploadID); err != nil {
		t.Fatalf("AbortMultipart: %v", err)
	}
}

func TestIsEmpty(t *testing.T) {
	s := newTestStore(t)
	empty, err := s.IsEmpty("b1")
	if err != nil {
		t.Fatalf("IsEmpty: %v", err)
	}
	if !empty {
		t.Fatalf("IsEmpty = false on fresh bucket")
	}
	if _, err := s.Put("b1", "k", bytes.NewReader([]byte("x"))); err != nil {
		t.Fatalf("Put: %v", err)
	}
	empty, err = s.IsEmpty("b1")
	if err != nil {
		t.Fatalf("IsEmpty after put: %v", err)
	}
	if empty {
		t.Fatalf("IsEmpty = true after put")
	}
}

func TestHealthCheck(t *testing.T) {
	s := newTestStore(t)
	if err := s.HealthCheck(); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}
