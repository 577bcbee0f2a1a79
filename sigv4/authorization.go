package sigv4

import (
	"strings"

	"github.com/hafiz-io/hafiz/cmn"
)

// ParsedAuthorization is the decomposed form of an inbound Authorization
// header value.
type ParsedAuthorization struct {
	Scope         CredentialScope
	SignedHeaders []string
	Signature     string
}

// ParseAuthorizationHeader splits
//
//	AWS4-HMAC-SHA256 Credential=<key>/<date>/<region>/<service>/aws4_request, SignedHeaders=<a;b;c>, Signature=<hex>
//
// into its components, per spec.md §4.3. Returns ErrSignatureDoesNotMatch's
// sibling ErrInvalidRequest on any malformed input so the caller can map it
// straight to the wire error.
func ParseAuthorizationHeader(header string) (ParsedAuthorization, *cmn.Error) {
	var out ParsedAuthorization

	fields := strings.Fields(header)
	if len(fields) < 2 || fields[0] != Algorithm {
		return out, cmn.ErrInvalidRequest("malformed Authorization header: unexpected algorithm")
	}
	rest := strings.Join(fields[1:], " ")

	parts := strings.Split(rest, ",")
	values := make(map[string]string, 3)
	for _, p := range parts {
		p = strings.TrimSpace(p)
		idx := strings.IndexByte(p, '=')
		if idx < 0 {
			return out, cmn.ErrInvalidRequest("malformed Authorization header component: %q", p)
		}
		values[p[:idx]] = p[idx+1:]
	}

	cred, ok := values["Credential"]
	if !ok {
		return out, cmn.ErrInvalidRequest("Authorization header missing Credential")
	}
	scope, perr := ParseCredentialScope(cred)
	if perr != nil {
		return out, perr
	}
	out.Scope = scope

	signedHeaders, ok := values["SignedHeaders"]
	if !ok || signedHeaders == "" {
		return out, cmn.ErrInvalidRequest("Authorization header missing SignedHeaders")
	}
	out.SignedHeaders = strings.Split(signedHeaders, ";")

	sig, ok := values["Signature"]
	if !ok || sig == "" {
		return out, cmn.ErrInvalidRequest("Authorization header missing Signature")
	}
	out.Signature = sig

	return out, nil
}

// ParseCredentialScope splits "<access_key>/<date>/<region>/<service>/aws4_request".
// The access key itself may not contain '/', matching real AKIA-style keys.
func ParseCredentialScope(cred string) (CredentialScope, *cmn.Error) {
	parts := strings.Split(cred, "/")
	if len(parts) != 5 || parts[4] != terminator {
		return CredentialScope{}, cmn.ErrInvalidRequest("malformed credential scope: %q", cred)
	}
	return CredentialScope{
		AccessKey: parts[0],
		Date:      parts[1],
		Region:    parts[2],
		Service:   parts[3],
	}, nil
}
