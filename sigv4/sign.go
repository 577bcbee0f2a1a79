package sigv4

import (
	"encoding/hex"

	"github.com/hafiz-io/hafiz/cmn/cos"
)

// signingKey derives kSigning = HMAC(HMAC(HMAC(HMAC("AWS4"+secret, date),
// region), service), "aws4_request"), the standard SigV4 key chain.
func signingKey(secretKey, date, region, service string) []byte {
	kDate := cos.HMACSHA256([]byte("AWS4"+secretKey), []byte(date))
	kRegion := cos.HMACSHA256(kDate, []byte(region))
	kService := cos.HMACSHA256(kRegion, []byte(service))
	kSigning := cos.HMACSHA256(kService, []byte(terminator))
	return kSigning
}

// StringToSign builds the second of the three SigV4 documents:
//
//	Algorithm + "\n" + amz_date + "\n" + credential_scope + "\n" +
//	hex(sha256(canonical_request))
func StringToSign(amzDate string, scope CredentialScope, canonicalRequest string) string {
	credScope := scope.Date + "/" + scope.Region + "/" + scope.Service + "/" + terminator
	return Algorithm + "\n" + amzDate + "\n" + credScope + "\n" + cos.SHA256Hex([]byte(canonicalRequest))
}

// Sign computes the final hex signature given the caller's secret key, the
// parsed credential scope, the request date, and the string-to-sign.
func Sign(secretKey string, scope CredentialScope, stringToSign string) string {
	key := signingKey(secretKey, scope.Date, scope.Region, scope.Service)
	mac := cos.HMACSHA256(key, []byte(stringToSign))
	return hex.EncodeToString(mac)
}
