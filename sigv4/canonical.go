package sigv4

import (
	"sort"
	"strings"
)

// unreserved characters per RFC 3986 that SigV4 path-segment encoding must
// leave untouched.
func isUnreserved(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '.' || c == '_' || c == '~':
		return true
	}
	return false
}

func percentEncodeSegment(seg string) string {
	var b strings.Builder
	for i := 0; i < len(seg); i++ {
		c := seg[i]
		if isUnreserved(c) {
			b.WriteByte(c)
		} else {
			b.WriteString("%")
			b.WriteString(strings.ToUpper(hexByte(c)))
		}
	}
	return b.String()
}

const hexDigits = "0123456789ABCDEF"

func hexByte(c byte) string {
	return string([]byte{hexDigits[c>>4], hexDigits[c&0xf]})
}

// CanonicalPath implements spec.md §4.3: split on '/', percent-encode each
// segment against the unreserved set, rejoin with '/'; empty path -> "/".
func CanonicalPath(path string) string {
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		parts[i] = percentEncodeSegment(p)
	}
	joined := strings.Join(parts, "/")
	if joined == "" {
		return "/"
	}
	return joined
}

// CanonicalQuery implements spec.md §4.3: split on '&', drop empty terms,
// split each on the first '=' only, sort pairs by key then value, rejoin
// "k=v" with '&'. Values are assumed already percent-encoded by the client.
func CanonicalQuery(query string) string {
	if query == "" {
		return ""
	}
	terms := strings.Split(query, "&")
	type kv struct{ k, v string }
	pairs := make([]kv, 0, len(terms))
	for _, t := range terms {
		if t == "" {
			continue
		}
		if idx := strings.IndexByte(t, '='); idx >= 0 {
			pairs = append(pairs, kv{t[:idx], t[idx+1:]})
		} else {
			pairs = append(pairs, kv{t, ""})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.k + "=" + p.v
	}
	return strings.Join(out, "&")
}

// trimHeaderValue strips leading/trailing ASCII whitespace and collapses
// internal whitespace runs to a single space, per spec.md §4.3.
func trimHeaderValue(v string) string {
	v = strings.TrimFunc(v, isASCIISpace)
	var b strings.Builder
	inSpace := false
	for i := 0; i < len(v); i++ {
		c := v[i]
		if isASCIISpace(rune(c)) {
			if !inSpace {
				b.WriteByte(' ')
				inSpace = true
			}
			continue
		}
		inSpace = false
		b.WriteByte(c)
	}
	return b.String()
}

func isASCIISpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// CanonicalHeaders emits, in the order given by signedHeaders, each header
// as "lowercase_name:trimmed_value\n".
func CanonicalHeaders(headers map[string]string, signedHeaders []string) string {
	var b strings.Builder
	for _, name := range signedHeaders {
		lname := strings.ToLower(name)
		b.WriteString(lname)
		b.WriteByte(':')
		b.WriteString(trimHeaderValue(headers[lname]))
		b.WriteByte('\n')
	}
	return b.String()
}

// BuildCanonicalRequest assembles the full canonical request string from
// spec.md §4.3:
//
//	method + "\n" + canonical_path + "\n" + canonical_query + "\n" +
//	canonical_headers + "\n" + signed_headers_joined_semicolons + "\n" +
//	payload_hash
func BuildCanonicalRequest(req CanonicalRequest, signedHeaders []string) string {
	lowered := make(map[string]string, len(req.Headers))
	for k, v := range req.Headers {
		lowered[strings.ToLower(k)] = v
	}
	var b strings.Builder
	b.WriteString(req.Method)
	b.WriteByte('\n')
	b.WriteString(CanonicalPath(req.Path))
	b.WriteByte('\n')
	b.WriteString(CanonicalQuery(req.Query))
	b.WriteByte('\n')
	b.WriteString(CanonicalHeaders(lowered, signedHeaders))
	b.WriteByte('\n')
	b.WriteString(strings.Join(lowerAll(signedHeaders), ";"))
	b.WriteByte('\n')
	b.WriteString(req.PayloadHash)
	return b.String()
}

func lowerAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.ToLower(s)
	}
	return out
}
