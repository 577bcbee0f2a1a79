package httpapi

import (
	"encoding/xml"
	"net/http"
	"sort"
	"strconv"

	"github.com/hafiz-io/hafiz/authn"
	"github.com/hafiz-io/hafiz/cmn"
	"github.com/hafiz-io/hafiz/multipart"
	"github.com/hafiz-io/hafiz/sigv4"
)

type xmlInitiateMultipartUploadResult struct {
	XMLName  xml.Name `xml:"InitiateMultipartUploadResult"`
	Bucket   string   `xml:"Bucket"`
	Key      string   `xml:"Key"`
	UploadID string   `xml:"UploadId"`
}

func (s *Server) initiateMultipart(w http.ResponseWriter, r *http.Request, bucket, key string, ident sigv4.Identity) {
	uploadID, err := s.Multipart.Initiate(r.Context(), bucket, key, r.Header.Get("Content-Type"), userMetaFromHeaders(r.Header), ident.AccessKey)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeXML(w, http.StatusOK, xmlInitiateMultipartUploadResult{Bucket: bucket, Key: key, UploadID: uploadID})
}

func (s *Server) uploadPart(w http.ResponseWriter, r *http.Request, bucket, key string) {
	uploadID := r.URL.Query().Get("uploadId")
	partNumber, perr := strconv.Atoi(r.URL.Query().Get("partNumber"))
	if perr != nil || partNumber < 1 || partNumber > 10000 {
		writeError(w, r, cmn.ErrInvalidArgument("partNumber must be between 1 and 10000"))
		return
	}
	etag, err := s.Multipart.UploadPart(r.Context(), bucket, uploadID, partNumber, r.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", etag)
	w.WriteHeader(http.StatusOK)
}

type xmlCompleteMultipartUpload struct {
	XMLName xml.Name              `xml:"CompleteMultipartUpload"`
	Parts   []xmlCompletedPart `xml:"Part"`
}

type xmlCompletedPart struct {
	PartNumber int    `xml:"PartNumber"`
	ETag       string `xml:"ETag"`
}

type xmlCompleteMultipartUploadResult struct {
	XMLName xml.Name `xml:"CompleteMultipartUploadResult"`
	Bucket  string   `xml:"Bucket"`
	Key     string   `xml:"Key"`
	ETag    string   `xml:"ETag"`
}

func (s *Server) completeMultipart(w http.ResponseWriter, r *http.Request, bucket, key string) {
	uploadID := r.URL.Query().Get("uploadId")
	var in xmlCompleteMultipartUpload
	if err := xml.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, r, cmn.ErrInvalidRequest("malformed CompleteMultipartUpload: %v", err))
		return
	}
	parts := make([]multipart.CompletedPart, len(in.Parts))
	for i, p := range in.Parts {
		parts[i] = multipart.CompletedPart{PartNumber: p.PartNumber, ETag: p.ETag}
	}
	res, err := s.Multipart.Complete(r.Context(), bucket, key, uploadID, parts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if res.VersionID != cmn.NullVersionID {
		w.Header().Set("x-amz-version-id", res.VersionID)
	}
	writeXML(w, http.StatusOK, xmlCompleteMultipartUploadResult{Bucket: bucket, Key: key, ETag: res.ETag})
}

func (s *Server) abortMultipart(w http.ResponseWriter, r *http.Request, bucket, key string) {
	uploadID := r.URL.Query().Get("uploadId")
	if err := s.Multipart.Abort(r.Context(), bucket, uploadID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type xmlListMultipartUploadsResult struct {
	XMLName xml.Name        `xml:"ListMultipartUploadsResult"`
	Bucket  string          `xml:"Bucket"`
	Uploads []xmlUploadEntry `xml:"Upload"`
}

type xmlUploadEntry struct {
	Key       string `xml:"Key"`
	UploadID  string `xml:"UploadId"`
	Initiated string `xml:"Initiated"`
}

// listMultipartUploads implements the bucket-level "?uploads" GET, per
// spec.md §6. Coordinator exposes no list-uploads method of its own, so this
// reads sessions directly off the metadata repository it wraps.
func (s *Server) listMultipartUploads(w http.ResponseWriter, r *http.Request, bucket string) {
	sessions, err := s.Multipart.Meta.ListMultipartSessions(r.Context(), bucket)
	if err != nil {
		writeError(w, r, cmn.AsError(err, cmn.GenRequestID()))
		return
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].Key != sessions[j].Key {
			return sessions[i].Key < sessions[j].Key
		}
		return sessions[i].UploadID < sessions[j].UploadID
	})
	out := xmlListMultipartUploadsResult{Bucket: bucket}
	for _, sess := range sessions {
		out.Uploads = append(out.Uploads, xmlUploadEntry{
			Key: sess.Key, UploadID: sess.UploadID, Initiated: sess.CreatedAt.Format(timeFormat),
		})
	}
	writeXML(w, http.StatusOK, out)
}

type xmlDelete struct {
	XMLName xml.Name       `xml:"Delete"`
	Objects []xmlDeleteKey `xml:"Object"`
	Quiet   bool           `xml:"Quiet"`
}

type xmlDeleteKey struct {
	Key       string `xml:"Key"`
	VersionID string `xml:"VersionId,omitempty"`
}

type xmlDeleteResult struct {
	XMLName xml.Name         `xml:"DeleteResult"`
	Deleted []xmlDeletedEntry `xml:"Deleted"`
	Errors  []xmlDeleteError `xml:"Error"`
}

type xmlDeletedEntry struct {
	Key          string `xml:"Key"`
	VersionID    string `xml:"VersionId,omitempty"`
	DeleteMarker bool   `xml:"DeleteMarker,omitempty"`
}

type xmlDeleteError struct {
	Key     string `xml:"Key"`
	Code    string `xml:"Code"`
	Message string `xml:"Message"`
}

// bulkDeleteObjects implements the bucket-level "POST ?delete" multi-object
// delete, per spec.md §6. S3 caps a single request at 1000 keys.
func (s *Server) bulkDeleteObjects(w http.ResponseWriter, r *http.Request, bucket string, ident sigv4.Identity) {
	var in xmlDelete
	if err := xml.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, r, cmn.ErrInvalidRequest("malformed Delete: %v", err))
		return
	}
	if len(in.Objects) > 1000 {
		writeError(w, r, cmn.ErrInvalidArgument("delete request must list at most 1000 keys"))
		return
	}

	bypass := bypassGovernance(r) && s.Auth.HasPolicy(r.Context(), ident.AccessKey, authn.BypassGovernanceRetentionPolicy)

	out := xmlDeleteResult{}
	for _, o := range in.Objects {
		res, err := s.Objects.Delete(r.Context(), bucket, o.Key, o.VersionID, bypass)
		if err != nil {
			e := cmn.AsError(err, cmn.GenRequestID())
			out.Errors = append(out.Errors, xmlDeleteError{Key: o.Key, Code: e.Code, Message: e.Message})
			continue
		}
		if !in.Quiet {
			out.Deleted = append(out.Deleted, xmlDeletedEntry{Key: o.Key, VersionID: res.VersionID, DeleteMarker: res.DeleteMarker})
		}
	}
	writeXML(w, http.StatusOK, out)
}
