// Package httpapi is the minimal HTTP wire adapter for spec.md §6's route
// table: it decodes requests, dispatches to bucketsvc/objectsvc/multipart,
// and encodes S3 XML responses. The HTTP framework/router itself is
// deliberately out of scope (spec.md §1 Non-goals single out "the HTTP
// framework routing shell" and "XML encoding/decoding" as external
// collaborators), so this package is built on stdlib net/http and
// encoding/xml rather than a routing library — matching spec.md's own
// framing of this layer as a thin shell in front of the real core.
package httpapi

import (
	"encoding/xml"
	"net/http"

	"github.com/hafiz-io/hafiz/cmn"
)

// xmlError is the wire shape spec.md §6 requires: root Error element with
// Code/Message/Resource/RequestId children.
type xmlError struct {
	XMLName   xml.Name `xml:"Error"`
	Code      string   `xml:"Code"`
	Message   string   `xml:"Message"`
	Resource  string   `xml:"Resource"`
	RequestID string   `xml:"RequestId"`
}

// writeError renders err as the S3 XML error body and sets the matching
// HTTP status, per spec.md §7's kind -> status mapping.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := cmn.GenRequestID()
	e := cmn.AsError(err, requestID)
	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("x-amz-request-id", requestID)
	w.WriteHeader(e.Status)
	body := xmlError{Code: e.Code, Message: e.Message, Resource: r.URL.Path, RequestID: requestID}
	_ = xml.NewEncoder(w).Encode(body)
}

// writeXML marshals v as the response body with the given status, setting
// the XML content type and request id header every successful response
// also carries per spec.md §7.
func writeXML(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("x-amz-request-id", cmn.GenRequestID())
	w.WriteHeader(status)
	if v != nil {
		_ = xml.NewEncoder(w).Encode(v)
	}
}
