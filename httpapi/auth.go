package httpapi

import (
	"net/http"
	"time"

	"github.com/hafiz-io/hafiz/authn"
	"github.com/hafiz-io/hafiz/cmn"
	"github.com/hafiz-io/hafiz/sigv4"
)

// authenticate verifies r against header or presigned-query signing, per
// spec.md §4.3. Clients are expected to send X-Amz-Content-Sha256 (every
// AWS SDK does), so this never needs to buffer the request body to compute
// a payload hash itself; bodies stream straight through to the service
// layer untouched.
func authenticate(r *http.Request, auth *authn.Manager, now func() time.Time) (sigv4.Identity, *cmn.Error) {
	sr := sigv4.Request{
		Method:          r.Method,
		URL:             r.URL,
		Header:          r.Header,
		UnsignedPayload: r.Header.Get("X-Amz-Content-Sha256") == "UNSIGNED-PAYLOAD",
		Now:             now(),
	}

	if r.URL.Query().Get("X-Amz-Signature") != "" {
		return sigv4.VerifyPresigned(sr, auth.Lookup)
	}
	return sigv4.Verify(sr, auth.Lookup)
}
