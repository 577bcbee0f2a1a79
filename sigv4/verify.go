package sigv4

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hafiz-io/hafiz/cmn"
	"github.com/hafiz-io/hafiz/cmn/cos"
)

// SecretLookup resolves an access key to its secret key. Implemented by the
// authn package against the metadata repository; kept as a function type
// here so this package stays free of any storage dependency.
type SecretLookup func(accessKey string) (secretKey string, ok bool)

// Request is the subset of an inbound *http.Request the verifier needs,
// pre-extracted by the httpapi adapter so this package never imports
// net/http request bodies directly.
type Request struct {
	Method  string
	URL     *url.URL
	Header  http.Header
	Payload []byte // nil when the caller passed "UNSIGNED-PAYLOAD" or streamed
	// UnsignedPayload, when true, means the client declared
	// "UNSIGNED-PAYLOAD" as its payload hash and Payload is ignored.
	UnsignedPayload bool
	// Now is injected for testability; callers pass time.Now() in production.
	Now time.Time
}

// Identity is what a successful Verify returns: which access key signed the
// request, and the scope it was signed for.
type Identity struct {
	AccessKey string
	Scope     CredentialScope
}

// Verify checks a request's Authorization header against lookup, enforcing
// the ±15 minute clock skew window from spec.md §4.3 and constant-time
// signature comparison.
func Verify(req Request, lookup SecretLookup) (Identity, *cmn.Error) {
	authHeader := req.Header.Get("Authorization")
	if authHeader == "" {
		return Identity{}, cmn.ErrMissingHeader("Authorization")
	}
	parsed, perr := ParseAuthorizationHeader(authHeader)
	if perr != nil {
		return Identity{}, perr
	}

	amzDate := req.Header.Get("X-Amz-Date")
	if amzDate == "" {
		amzDate = req.Header.Get("Date")
	}
	if amzDate == "" {
		return Identity{}, cmn.ErrMissingHeader("X-Amz-Date")
	}
	reqTime, err := time.Parse(amzDateFormat, amzDate)
	if err != nil {
		return Identity{}, cmn.ErrInvalidRequest("malformed X-Amz-Date: %q", amzDate)
	}
	if skew := req.Now.Sub(reqTime); skew > maxClockSkew || skew < -maxClockSkew {
		return Identity{}, cmn.ErrRequestTimeTooSkewed()
	}

	secretKey, ok := lookup(parsed.Scope.AccessKey)
	if !ok {
		return Identity{}, cmn.ErrInvalidAccessKeyID()
	}

	payloadHash := req.Header.Get("X-Amz-Content-Sha256")
	if payloadHash == "" {
		if req.UnsignedPayload {
			payloadHash = "UNSIGNED-PAYLOAD"
		} else {
			payloadHash = cos.SHA256Hex(req.Payload)
		}
	}

	headers := make(map[string]string, len(req.Header))
	for k, v := range req.Header {
		headers[strings.ToLower(k)] = strings.Join(v, ", ")
	}

	canonical := BuildCanonicalRequest(CanonicalRequest{
		Method:      req.Method,
		Path:        req.URL.Path,
		Query:       req.URL.RawQuery,
		Headers:     headers,
		PayloadHash: payloadHash,
	}, parsed.SignedHeaders)

	sts := StringToSign(amzDate, parsed.Scope, canonical)
	expected := Sign(secretKey, parsed.Scope, sts)

	if !cos.ConstantTimeCompare(expected, parsed.Signature) {
		return Identity{}, cmn.ErrSignatureDoesNotMatch()
	}

	return Identity{AccessKey: parsed.Scope.AccessKey, Scope: parsed.Scope}, nil
}

// presigned query parameter names, per spec.md §4.3.
const (
	qpAlgorithm     = "X-Amz-Algorithm"
	qpCredential    = "X-Amz-Credential"
	qpDate          = "X-Amz-Date"
	qpExpires       = "X-Amz-Expires"
	qpSignedHeaders = "X-Amz-SignedHeaders"
	qpSignature     = "X-Amz-Signature"
)

// VerifyPresigned checks a presigned-URL request: the signature lives in
// the query string rather than the Authorization header, and carries its
// own expiry window instead of the fixed ±15 minutes.
func VerifyPresigned(req Request, lookup SecretLookup) (Identity, *cmn.Error) {
	q := req.URL.Query()

	if q.Get(qpAlgorithm) != Algorithm {
		return Identity{}, cmn.ErrInvalidRequest("unsupported presigned algorithm %q", q.Get(qpAlgorithm))
	}
	cred := q.Get(qpCredential)
	if cred == "" {
		return Identity{}, cmn.ErrInvalidRequest("presigned URL missing %s", qpCredential)
	}
	scope, perr := ParseCredentialScope(cred)
	if perr != nil {
		return Identity{}, perr
	}

	amzDate := q.Get(qpDate)
	if amzDate == "" {
		return Identity{}, cmn.ErrInvalidRequest("presigned URL missing %s", qpDate)
	}
	reqTime, err := time.Parse(amzDateFormat, amzDate)
	if err != nil {
		return Identity{}, cmn.ErrInvalidRequest("malformed %s: %q", qpDate, amzDate)
	}

	expiresStr := q.Get(qpExpires)
	expires, err := strconv.Atoi(expiresStr)
	if err != nil {
		return Identity{}, cmn.ErrInvalidRequest("malformed %s: %q", qpExpires, expiresStr)
	}
	ttl := time.Duration(expires) * time.Second
	if ttl < minPresignTTL || ttl > maxPresignTTL {
		return Identity{}, cmn.ErrInvalidRequest("%s must be between %d and %d seconds",
			qpExpires, int(minPresignTTL.Seconds()), int(maxPresignTTL.Seconds()))
	}
	if req.Now.After(reqTime.Add(ttl)) {
		return Identity{}, cmn.ErrExpiredPresignedRequest()
	}

	signedHeadersStr := q.Get(qpSignedHeaders)
	if signedHeadersStr == "" {
		return Identity{}, cmn.ErrInvalidRequest("presigned URL missing %s", qpSignedHeaders)
	}
	signedHeaders := strings.Split(signedHeadersStr, ";")

	signature := q.Get(qpSignature)
	if signature == "" {
		return Identity{}, cmn.ErrInvalidRequest("presigned URL missing %s", qpSignature)
	}

	secretKey, ok := lookup(scope.AccessKey)
	if !ok {
		return Identity{}, cmn.ErrInvalidAccessKeyID()
	}

	// The signature itself is excluded from the canonical query string; every
	// other X-Amz-* parameter participates.
	q.Del(qpSignature)

	headers := make(map[string]string, len(req.Header))
	for k, v := range req.Header {
		headers[strings.ToLower(k)] = strings.Join(v, ", ")
	}

	canonical := BuildCanonicalRequest(CanonicalRequest{
		Method:      req.Method,
		Path:        req.URL.Path,
		Query:       q.Encode(),
		Headers:     headers,
		PayloadHash: "UNSIGNED-PAYLOAD",
	}, signedHeaders)

	sts := StringToSign(amzDate, scope, canonical)
	expected := Sign(secretKey, scope, sts)

	if !cos.ConstantTimeCompare(expected, signature) {
		return Identity{}, cmn.ErrSignatureDoesNotMatch()
	}

	return Identity{AccessKey: scope.AccessKey, Scope: scope}, nil
}

// IssuePresignedURL builds the query string for a presigned GET (or any
// other method), appending it to base. ttl must fall within
// [minPresignTTL, maxPresignTTL].
func IssuePresignedURL(base *url.URL, method, accessKey, secretKey string, scope CredentialScope, signedHeaders []string, headers map[string]string, now time.Time, ttl time.Duration) (*url.URL, *cmn.Error) {
	if ttl < minPresignTTL || ttl > maxPresignTTL {
		return nil, cmn.ErrInvalidRequest("presign ttl must be between %d and %d seconds",
			int(minPresignTTL.Seconds()), int(maxPresignTTL.Seconds()))
	}

	amzDate := now.UTC().Format(amzDateFormat)
	credScope := scope.Date + "/" + scope.Region + "/" + scope.Service + "/" + terminator

	out := *base
	q := out.Query()
	q.Set(qpAlgorithm, Algorithm)
	q.Set(qpCredential, accessKey+"/"+credScope)
	q.Set(qpDate, amzDate)
	q.Set(qpExpires, strconv.Itoa(int(ttl.Seconds())))
	q.Set(qpSignedHeaders, strings.Join(signedHeaders, ";"))

	lowered := make(map[string]string, len(headers))
	for k, v := range headers {
		lowered[strings.ToLower(k)] = v
	}

	canonical := BuildCanonicalRequest(CanonicalRequest{
		Method:      method,
		Path:        out.Path,
		Query:       q.Encode(),
		Headers:     lowered,
		PayloadHash: "UNSIGNED-PAYLOAD",
	}, signedHeaders)

	sts := StringToSign(amzDate, scope, canonical)
	sig := Sign(secretKey, scope, sts)
	q.Set(qpSignature, sig)

	out.RawQuery = q.Encode()
	return &out, nil
}
