package httpapi

import (
	"encoding/xml"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hafiz-io/hafiz/authn"
	"github.com/hafiz-io/hafiz/cmn"
	"github.com/hafiz-io/hafiz/cmn/cos"
	"github.com/hafiz-io/hafiz/objectsvc"
	"github.com/hafiz-io/hafiz/sigv4"
)

// handleObject dispatches every "/{bucket}/{key}" route, per spec.md §6.
func (s *Server) handleObject(w http.ResponseWriter, r *http.Request, ident sigv4.Identity, bucket, key string) {
	q := r.URL.Query()

	switch {
	case q.Has("uploadId") && q.Has("partNumber") && r.Method == http.MethodPut:
		s.uploadPart(w, r, bucket, key)
		return
	case q.Has("uploadId") && r.Method == http.MethodPost:
		s.completeMultipart(w, r, bucket, key)
		return
	case q.Has("uploadId") && r.Method == http.MethodDelete:
		s.abortMultipart(w, r, bucket, key)
		return
	case q.Has("uploads") && r.Method == http.MethodPost:
		s.initiateMultipart(w, r, bucket, key, ident)
		return
	case q.Has("tagging"):
		s.objectTagging(w, r, bucket, key)
		return
	case q.Has("retention"):
		s.objectRetention(w, r, bucket, key, ident)
		return
	case q.Has("legal-hold"):
		s.objectLegalHold(w, r, bucket, key)
		return
	}

	if r.Header.Get("x-amz-copy-source") != "" && r.Method == http.MethodPut {
		s.copyObject(w, r, bucket, key)
		return
	}

	switch r.Method {
	case http.MethodPut:
		s.putObject(w, r, bucket, key, ident)
	case http.MethodGet:
		s.getObject(w, r, bucket, key)
	case http.MethodHead:
		s.headObject(w, r, bucket, key)
	case http.MethodDelete:
		s.deleteObject(w, r, bucket, key, ident)
	default:
		writeError(w, r, cmn.ErrInvalidRequest("unsupported method %s for object route", r.Method))
	}
}

func userMetaFromHeaders(h http.Header) map[string]string {
	var out map[string]string
	for k, v := range h {
		if lk := strings.ToLower(k); strings.HasPrefix(lk, "x-amz-meta-") {
			if out == nil {
				out = map[string]string{}
			}
			out[strings.TrimPrefix(lk, "x-amz-meta-")] = v[0]
		}
	}
	return out
}

func (s *Server) putObject(w http.ResponseWriter, r *http.Request, bucket, key string, ident sigv4.Identity) {
	res, err := s.Objects.Put(r.Context(), bucket, key, objectsvc.PutInput{
		Body: r.Body, ContentType: r.Header.Get("Content-Type"),
		UserMeta: userMetaFromHeaders(r.Header), Principal: ident.AccessKey,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", cos.QuoteETag(res.ETag))
	if res.VersionID != cmn.NullVersionID {
		w.Header().Set("x-amz-version-id", res.VersionID)
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) getObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	res, err := s.Objects.Get(r.Context(), bucket, key, r.URL.Query().Get("versionId"), r.Header.Get("Range"))
	if err != nil {
		if res.Version.DeleteMarker {
			w.Header().Set("x-amz-delete-marker", "true")
		}
		writeError(w, r, err)
		return
	}
	defer res.Body.Close()
	writeObjectHeaders(w, res)
	status := http.StatusOK
	if res.Range != nil {
		status = http.StatusPartialContent
	}
	w.WriteHeader(status)
	_, _ = io.Copy(w, res.Body)
}

func (s *Server) headObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	res, err := s.Objects.Head(r.Context(), bucket, key, r.URL.Query().Get("versionId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeObjectHeaders(w, res)
	w.WriteHeader(http.StatusOK)
}

func writeObjectHeaders(w http.ResponseWriter, res objectsvc.GetResult) {
	v := res.Version
	w.Header().Set("ETag", cos.QuoteETag(v.ETag))
	w.Header().Set("Content-Type", v.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(sizeOf(res), 10))
	w.Header().Set("Last-Modified", v.LastModified.Format(http.TimeFormat))
	if v.VersionID != cmn.NullVersionID {
		w.Header().Set("x-amz-version-id", v.VersionID)
	}
	for k, mv := range v.UserMetadata {
		w.Header().Set("x-amz-meta-"+k, mv)
	}
	if res.Range != nil {
		w.Header().Set("Content-Range", "bytes "+strconv.FormatInt(res.Range.Start, 10)+"-"+strconv.FormatInt(res.Range.End, 10)+"/"+strconv.FormatInt(v.Size, 10))
	}
}

func sizeOf(res objectsvc.GetResult) int64 {
	if res.Range != nil {
		return res.Range.Len()
	}
	return res.Version.Size
}

func (s *Server) deleteObject(w http.ResponseWriter, r *http.Request, bucket, key string, ident sigv4.Identity) {
	bypass := bypassGovernance(r) && s.Auth.HasPolicy(r.Context(), ident.AccessKey, authn.BypassGovernanceRetentionPolicy)
	res, err := s.Objects.Delete(r.Context(), bucket, key, r.URL.Query().Get("versionId"), bypass)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if res.DeleteMarker {
		w.Header().Set("x-amz-delete-marker", "true")
	}
	if res.VersionID != cmn.NullVersionID {
		w.Header().Set("x-amz-version-id", res.VersionID)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) copyObject(w http.ResponseWriter, r *http.Request, dstBucket, dstKey string) {
	srcBucket, srcKey, srcVersion := parseCopySource(r.Header.Get("x-amz-copy-source"))
	directive := r.Header.Get("x-amz-metadata-directive")
	res, err := s.Objects.Copy(r.Context(), dstBucket, dstKey, objectsvc.CopyInput{
		SrcBucket: srcBucket, SrcKey: srcKey, SrcVersionID: srcVersion,
		ContentType: r.Header.Get("Content-Type"), UserMeta: userMetaFromHeaders(r.Header),
		ReplaceMeta: strings.EqualFold(directive, "REPLACE"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeXML(w, http.StatusOK, struct {
		XMLName      xml.Name `xml:"CopyObjectResult"`
		ETag         string   `xml:"ETag"`
		LastModified string   `xml:"LastModified"`
	}{ETag: cos.QuoteETag(res.ETag)})
}

// parseCopySource splits "/bucket/key" or "/bucket/key?versionId=..." per
// spec.md §6.
func parseCopySource(src string) (bucket, key, versionID string) {
	src = strings.TrimPrefix(src, "/")
	if idx := strings.IndexByte(src, '?'); idx >= 0 {
		q := src[idx+1:]
		src = src[:idx]
		if strings.HasPrefix(q, "versionId=") {
			versionID = strings.TrimPrefix(q, "versionId=")
		}
	}
	bucket, key = cmn.BucketAndKey("/" + src)
	return bucket, key, versionID
}

type xmlTagging struct {
	XMLName xml.Name    `xml:"Tagging"`
	TagSet  []xmlTagKV `xml:"TagSet>Tag"`
}

type xmlTagKV struct {
	Key   string `xml:"Key"`
	Value string `xml:"Value"`
}

func (s *Server) objectTagging(w http.ResponseWriter, r *http.Request, bucket, key string) {
	versionID := r.URL.Query().Get("versionId")
	switch r.Method {
	case http.MethodGet:
		tags, err := s.Objects.GetTags(r.Context(), bucket, key, versionID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		out := xmlTagging{}
		for k, v := range tags {
			out.TagSet = append(out.TagSet, xmlTagKV{Key: k, Value: v})
		}
		writeXML(w, http.StatusOK, out)
	case http.MethodPut:
		var in xmlTagging
		if err := xml.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, r, cmn.ErrInvalidRequest("malformed Tagging: %v", err))
			return
		}
		if len(in.TagSet) > 10 {
			writeError(w, r, cmn.ErrTooManyTags())
			return
		}
		tags := make(map[string]string, len(in.TagSet))
		for _, t := range in.TagSet {
			tags[t.Key] = t.Value
		}
		if err := s.Objects.SetTags(r.Context(), bucket, key, versionID, tags); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		if err := s.Objects.SetTags(r.Context(), bucket, key, versionID, nil); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, r, cmn.ErrInvalidRequest("unsupported method %s for ?tagging", r.Method))
	}
}

type xmlRetention struct {
	XMLName         xml.Name `xml:"Retention"`
	Mode            string   `xml:"Mode"`
	RetainUntilDate string   `xml:"RetainUntilDate"`
}

func (s *Server) objectRetention(w http.ResponseWriter, r *http.Request, bucket, key string, ident sigv4.Identity) {
	versionID := r.URL.Query().Get("versionId")
	switch r.Method {
	case http.MethodGet:
		res, err := s.Objects.Head(r.Context(), bucket, key, versionID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if res.Version.Retention == nil {
			writeError(w, r, cmn.New("NoSuchObjectLockConfiguration", http.StatusNotFound, cmn.KindNotFound,
				"no retention set on %q/%q", bucket, key))
			return
		}
		writeXML(w, http.StatusOK, xmlRetention{
			Mode: res.Version.Retention.Mode, RetainUntilDate: res.Version.Retention.RetainUntil.Format(timeFormat),
		})
	case http.MethodPut:
		var in xmlRetention
		if err := xml.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, r, cmn.ErrInvalidRequest("malformed Retention: %v", err))
			return
		}
		retainUntil, terr := time.Parse(timeFormat, in.RetainUntilDate)
		if terr != nil {
			writeError(w, r, cmn.ErrInvalidRequest("malformed RetainUntilDate %q", in.RetainUntilDate))
			return
		}
		bypass := bypassGovernance(r) && s.Auth.HasPolicy(r.Context(), ident.AccessKey, authn.BypassGovernanceRetentionPolicy)
		if err := s.Objects.SetRetention(r.Context(), bucket, key, versionID, in.Mode, retainUntil, bypass); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	default:
		writeError(w, r, cmn.ErrInvalidRequest("unsupported method %s for ?retention", r.Method))
	}
}

type xmlLegalHold struct {
	XMLName xml.Name `xml:"LegalHold"`
	Status  string   `xml:"Status"`
}

func (s *Server) objectLegalHold(w http.ResponseWriter, r *http.Request, bucket, key string) {
	versionID := r.URL.Query().Get("versionId")
	switch r.Method {
	case http.MethodGet:
		res, err := s.Objects.Head(r.Context(), bucket, key, versionID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		status := "OFF"
		if res.Version.LegalHold {
			status = "ON"
		}
		writeXML(w, http.StatusOK, xmlLegalHold{Status: status})
	case http.MethodPut:
		var in xmlLegalHold
		if err := xml.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, r, cmn.ErrInvalidRequest("malformed LegalHold: %v", err))
			return
		}
		if err := s.Objects.SetLegalHold(r.Context(), bucket, key, versionID, in.Status == "ON"); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	default:
		writeError(w, r, cmn.ErrInvalidRequest("unsupported method %s for ?legal-hold", r.Method))
	}
}

