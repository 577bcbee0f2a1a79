package httpapi

import (
	"bytes"
	"context"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/hafiz-io/hafiz/authn"
	"github.com/hafiz-io/hafiz/blobstore"
	"github.com/hafiz-io/hafiz/bucketsvc"
	"github.com/hafiz-io/hafiz/cmn"
	"github.com/hafiz-io/hafiz/cmn/cos"
	"github.com/hafiz-io/hafiz/metadata"
	"github.com/hafiz-io/hafiz/multipart"
	"github.com/hafiz-io/hafiz/objectsvc"
)

const testScope = "us-east-1/s3"

func newTestServer(t *testing.T) (*Server, time.Time, string, string) {
	t.Helper()
	cmn.InitIDGenerator(1)

	dir := t.TempDir()
	blobs := blobstore.NewStore(dir)
	meta, err := metadata.OpenBunt(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { meta.Close() })

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	auth := &authn.Manager{Meta: meta}
	cred, err := auth.Create(context.Background(), "test", nil)
	if err != nil {
		t.Fatal(err)
	}

	srv := &Server{
		Buckets:   &bucketsvc.Service{Meta: meta, Now: clock},
		Objects:   &objectsvc.Service{Blobs: blobs, Meta: meta, Now: clock},
		Multipart: multipart.NewCoordinator(blobs, meta),
		Auth:      auth,
		Now:       clock,
	}
	return srv, now, cred.AccessKey, cred.SecretKey
}

// signRequest signs r with sigv4 the way a real S3 client would, so tests
// exercise httpapi.authenticate end to end rather than bypassing it.
func signRequest(t *testing.T, r *http.Request, accessKey, secretKey string, now time.Time, payloadHash string) {
	t.Helper()
	amzDate := now.UTC().Format("20060102T150405Z")
	date := now.UTC().Format("20060102")

	r.Header.Set("Host", r.Host)
	r.Header.Set("X-Amz-Date", amzDate)
	r.Header.Set("X-Amz-Content-Sha256", payloadHash)

	headers := map[string]string{
		"host":                 r.Host,
		"x-amz-content-sha256": payloadHash,
		"x-amz-date":           amzDate,
	}
	signedHeaders := []string{"host", "x-amz-content-sha256", "x-amz-date"}

	canonical := buildCanonicalRequestForTest(r.Method, r.URL, headers, payloadHash)
	scope := date + "/" + testScope + "/aws4_request"
	sts := "AWS4-HMAC-SHA256\n" + amzDate + "\n" + scope + "\n" + cos.SHA256Hex([]byte(canonical))

	sig := signForTest(secretKey, date, sts)
	r.Header.Set("Authorization", "AWS4-HMAC-SHA256 Credential="+accessKey+"/"+scope+
		", SignedHeaders="+joinSigned(signedHeaders)+", Signature="+sig)
}

func joinSigned(hs []string) string {
	out := hs[0]
	for _, h := range hs[1:] {
		out += ";" + h
	}
	return out
}

// buildCanonicalRequestForTest and signForTest re-derive exactly what
// sigv4.BuildCanonicalRequest/Sign compute; duplicated here (rather than
// imported) only because those two depend on unexported scope/terminator
// plumbing not worth exporting for a single test helper.
func buildCanonicalRequestForTest(method string, u *url.URL, headers map[string]string, payloadHash string) string {
	canonicalHeaders := "host:" + headers["host"] + "\n" +
		"x-amz-content-sha256:" + headers["x-amz-content-sha256"] + "\n" +
		"x-amz-date:" + headers["x-amz-date"] + "\n"
	return method + "\n" + u.Path + "\n" + u.RawQuery + "\n" +
		canonicalHeaders + "\n" + "host;x-amz-content-sha256;x-amz-date" + "\n" + payloadHash
}

func signForTest(secretKey, date, stringToSign string) string {
	kDate := cos.HMACSHA256([]byte("AWS4"+secretKey), []byte(date))
	kRegion := cos.HMACSHA256(kDate, []byte("us-east-1"))
	kService := cos.HMACSHA256(kRegion, []byte("s3"))
	kSigning := cos.HMACSHA256(kService, []byte("aws4_request"))
	return hex.EncodeToString(cos.HMACSHA256(kSigning, []byte(stringToSign)))
}

const emptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

func TestCreateBucketPutGetObjectRoundTrip(t *testing.T) {
	srv, now, accessKey, secretKey := newTestServer(t)
	handler := srv.Handler()

	createReq := httptest.NewRequest(http.MethodPut, "http://localhost/roundtrip-bucket", nil)
	signRequest(t, createReq, accessKey, secretKey, now, emptyPayloadHash)
	createRec := httptest.NewRecorder()
	handler.ServeHTTP(createRec, createReq)
	if createRec.Code != http.StatusOK {
		t.Fatalf("create bucket: status = %d, body = %s", createRec.Code, createRec.Body.String())
	}

	body := []byte("hello world")
	bodyHash := cos.SHA256Hex(body)
	putReq := httptest.NewRequest(http.MethodPut, "http://localhost/roundtrip-bucket/greeting.txt", bytes.NewReader(body))
	putReq.ContentLength = int64(len(body))
	signRequest(t, putReq, accessKey, secretKey, now, bodyHash)
	putRec := httptest.NewRecorder()
	handler.ServeHTTP(putRec, putReq)
	if putRec.Code != http.StatusOK {
		t.Fatalf("put object: status = %d, body = %s", putRec.Code, putRec.Body.String())
	}
	if putRec.Header().Get("ETag") == "" {
		t.Fatalf("put object: missing ETag header")
	}

	getReq := httptest.NewRequest(http.MethodGet, "http://localhost/roundtrip-bucket/greeting.txt", nil)
	signRequest(t, getReq, accessKey, secretKey, now, emptyPayloadHash)
	getRec := httptest.NewRecorder()
	handler.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get object: status = %d, body = %s", getRec.Code, getRec.Body.String())
	}
	if getRec.Body.String() != "hello world" {
		t.Fatalf("get object: body = %q, want %q", getRec.Body.String(), "hello world")
	}
}

func TestUnsignedRequestIsRejected(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodPut, "http://localhost/some-bucket", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden && rec.Code != http.StatusBadRequest {
		t.Fatalf("unsigned request: status = %d, want 400 or 403", rec.Code)
	}
}

func TestClusterPingRespondsWithoutAuth(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "http://localhost/cluster/ping", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("cluster ping: status = %d", rec.Code)
	}
}
