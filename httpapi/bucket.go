package httpapi

import (
	"encoding/xml"
	"net/http"
	"strconv"

	"github.com/hafiz-io/hafiz/cmn"
	"github.com/hafiz-io/hafiz/metadata"
	"github.com/hafiz-io/hafiz/sigv4"
)

type xmlListAllMyBucketsResult struct {
	XMLName xml.Name `xml:"ListAllMyBucketsResult"`
	Buckets []xmlBucket `xml:"Buckets>Bucket"`
}

type xmlBucket struct {
	Name         string `xml:"Name"`
	CreationDate string `xml:"CreationDate"`
}

func (s *Server) handleListBuckets(w http.ResponseWriter, r *http.Request) {
	bs, err := s.Buckets.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := xmlListAllMyBucketsResult{}
	for _, b := range bs {
		out.Buckets = append(out.Buckets, xmlBucket{Name: b.Name, CreationDate: b.CreatedAt.Format(timeFormat)})
	}
	writeXML(w, http.StatusOK, out)
}

// handleBucket dispatches every "/{bucket}" route (no object key), keying
// off the method plus the recognized query-string subresources, per
// spec.md §6.
func (s *Server) handleBucket(w http.ResponseWriter, r *http.Request, ident sigv4.Identity, bucket string) {
	q := r.URL.Query()
	ctx := r.Context()

	switch {
	case q.Has("versioning"):
		s.bucketVersioning(w, r, bucket)
		return
	case q.Has("lifecycle"):
		s.bucketLifecycle(w, r, bucket)
		return
	case q.Has("object-lock"):
		s.bucketObjectLock(w, r, bucket)
		return
	case q.Has("versions"):
		s.listObjectVersions(w, r, bucket)
		return
	case q.Has("uploads"):
		s.listMultipartUploads(w, r, bucket)
		return
	case r.Method == http.MethodPost && q.Has("delete"):
		s.bulkDeleteObjects(w, r, bucket, ident)
		return
	}

	switch r.Method {
	case http.MethodPut:
		if err := s.Buckets.Create(ctx, bucket, ident.AccessKey, bucketRegion(r)); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodHead:
		if err := s.Buckets.Head(ctx, bucket); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		if err := s.Buckets.Delete(ctx, bucket); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodGet:
		s.listObjectsV2(w, r, bucket)
	default:
		writeError(w, r, cmn.ErrInvalidRequest("unsupported method %s for bucket route", r.Method))
	}
}

type xmlCreateBucketConfiguration struct {
	XMLName            xml.Name `xml:"CreateBucketConfiguration"`
	LocationConstraint string   `xml:"LocationConstraint"`
}

func bucketRegion(r *http.Request) string {
	if r.ContentLength == 0 {
		return ""
	}
	var cfg xmlCreateBucketConfiguration
	if err := xml.NewDecoder(r.Body).Decode(&cfg); err != nil {
		return ""
	}
	return cfg.LocationConstraint
}

type xmlVersioningConfiguration struct {
	XMLName xml.Name `xml:"VersioningConfiguration"`
	Status  string   `xml:"Status"`
}

func (s *Server) bucketVersioning(w http.ResponseWriter, r *http.Request, bucket string) {
	switch r.Method {
	case http.MethodGet:
		b, err := s.Buckets.Get(r.Context(), bucket)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeXML(w, http.StatusOK, xmlVersioningConfiguration{Status: b.Versioning})
	case http.MethodPut:
		var cfg xmlVersioningConfiguration
		if err := xml.NewDecoder(r.Body).Decode(&cfg); err != nil {
			writeError(w, r, cmn.ErrInvalidRequest("malformed VersioningConfiguration: %v", err))
			return
		}
		if err := s.Buckets.SetVersioning(r.Context(), bucket, cfg.Status); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	default:
		writeError(w, r, cmn.ErrInvalidRequest("unsupported method %s for ?versioning", r.Method))
	}
}

func (s *Server) bucketLifecycle(w http.ResponseWriter, r *http.Request, bucket string) {
	switch r.Method {
	case http.MethodGet:
		b, err := s.Buckets.Get(r.Context(), bucket)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if b.Lifecycle == nil {
			writeError(w, r, cmn.New("NoSuchLifecycleConfiguration", http.StatusNotFound, cmn.KindNotFound,
				"bucket %q has no lifecycle configuration", bucket))
			return
		}
		writeXML(w, http.StatusOK, b.Lifecycle)
	case http.MethodPut:
		var cfg metadata.LifecycleConfig
		if err := xml.NewDecoder(r.Body).Decode(&cfg); err != nil {
			writeError(w, r, cmn.ErrInvalidRequest("malformed LifecycleConfiguration: %v", err))
			return
		}
		if err := s.Buckets.SetLifecycle(r.Context(), bucket, &cfg); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		if err := s.Buckets.SetLifecycle(r.Context(), bucket, nil); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, r, cmn.ErrInvalidRequest("unsupported method %s for ?lifecycle", r.Method))
	}
}

type xmlObjectLockConfiguration struct {
	XMLName           xml.Name `xml:"ObjectLockConfiguration"`
	ObjectLockEnabled string   `xml:"ObjectLockEnabled"`
}

func (s *Server) bucketObjectLock(w http.ResponseWriter, r *http.Request, bucket string) {
	switch r.Method {
	case http.MethodGet:
		b, err := s.Buckets.Get(r.Context(), bucket)
		if err != nil {
			writeError(w, r, err)
			return
		}
		status := "Disabled"
		if b.ObjectLockEnabled {
			status = "Enabled"
		}
		writeXML(w, http.StatusOK, xmlObjectLockConfiguration{ObjectLockEnabled: status})
	case http.MethodPut:
		var cfg xmlObjectLockConfiguration
		if err := xml.NewDecoder(r.Body).Decode(&cfg); err != nil {
			writeError(w, r, cmn.ErrInvalidRequest("malformed ObjectLockConfiguration: %v", err))
			return
		}
		if err := s.Buckets.SetObjectLockEnabled(r.Context(), bucket, cfg.ObjectLockEnabled == "Enabled"); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	default:
		writeError(w, r, cmn.ErrInvalidRequest("unsupported method %s for ?object-lock", r.Method))
	}
}

type xmlListBucketResult struct {
	XMLName               xml.Name         `xml:"ListBucketResult"`
	Name                  string           `xml:"Name"`
	Prefix                string           `xml:"Prefix"`
	Delimiter             string           `xml:"Delimiter,omitempty"`
	MaxKeys               int              `xml:"MaxKeys"`
	IsTruncated           bool             `xml:"IsTruncated"`
	ContinuationToken     string           `xml:"ContinuationToken,omitempty"`
	NextContinuationToken string           `xml:"NextContinuationToken,omitempty"`
	Contents              []xmlObjectEntry `xml:"Contents"`
	CommonPrefixes        []xmlCommonPrefix `xml:"CommonPrefixes"`
}

type xmlObjectEntry struct {
	Key          string `xml:"Key"`
	LastModified string `xml:"LastModified"`
	ETag         string `xml:"ETag"`
	Size         int64  `xml:"Size"`
}

type xmlCommonPrefix struct {
	Prefix string `xml:"Prefix"`
}

func (s *Server) listObjectsV2(w http.ResponseWriter, r *http.Request, bucket string) {
	q := r.URL.Query()
	maxKeys := 1000
	if v := q.Get("max-keys"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxKeys = n
		}
	}
	prefix, delimiter, token := q.Get("prefix"), q.Get("delimiter"), q.Get("continuation-token")

	res, err := s.Buckets.ListObjects(r.Context(), bucket, prefix, delimiter, token, maxKeys)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := xmlListBucketResult{
		Name: bucket, Prefix: prefix, Delimiter: delimiter, MaxKeys: maxKeys,
		IsTruncated: res.IsTruncated, ContinuationToken: token, NextContinuationToken: res.NextToken,
	}
	for _, v := range res.Versions {
		out.Contents = append(out.Contents, xmlObjectEntry{
			Key: v.Key, LastModified: v.LastModified.Format(timeFormat), ETag: v.ETag, Size: v.Size,
		})
	}
	for _, p := range res.CommonPrefixes {
		out.CommonPrefixes = append(out.CommonPrefixes, xmlCommonPrefix{Prefix: p})
	}
	writeXML(w, http.StatusOK, out)
}

type xmlListVersionsResult struct {
	XMLName             xml.Name          `xml:"ListVersionsResult"`
	Name                 string            `xml:"Name"`
	Prefix               string            `xml:"Prefix"`
	KeyMarker            string            `xml:"KeyMarker"`
	VersionIDMarker      string            `xml:"VersionIdMarker"`
	NextKeyMarker        string            `xml:"NextKeyMarker,omitempty"`
	NextVersionIDMarker  string            `xml:"NextVersionIdMarker,omitempty"`
	IsTruncated          bool              `xml:"IsTruncated"`
	Versions             []xmlVersionEntry `xml:"Version"`
	DeleteMarkers        []xmlVersionEntry `xml:"DeleteMarker"`
}

type xmlVersionEntry struct {
	Key          string `xml:"Key"`
	VersionID    string `xml:"VersionId"`
	IsLatest     bool   `xml:"IsLatest"`
	LastModified string `xml:"LastModified"`
	ETag         string `xml:"ETag,omitempty"`
	Size         int64  `xml:"Size,omitempty"`
}

func (s *Server) listObjectVersions(w http.ResponseWriter, r *http.Request, bucket string) {
	q := r.URL.Query()
	maxKeys := 1000
	if v := q.Get("max-keys"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxKeys = n
		}
	}
	res, err := s.Buckets.ListVersions(r.Context(), bucket, q.Get("prefix"), q.Get("key-marker"), q.Get("version-id-marker"), maxKeys)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := xmlListVersionsResult{
		Name: bucket, Prefix: q.Get("prefix"), KeyMarker: q.Get("key-marker"), VersionIDMarker: q.Get("version-id-marker"),
		NextKeyMarker: res.NextKeyMarker, NextVersionIDMarker: res.NextVersionMarker, IsTruncated: res.IsTruncated,
	}
	for _, v := range res.Versions {
		entry := xmlVersionEntry{
			Key: v.Key, VersionID: v.VersionID, IsLatest: v.IsLatest,
			LastModified: v.LastModified.Format(timeFormat), ETag: v.ETag, Size: v.Size,
		}
		if v.DeleteMarker {
			out.DeleteMarkers = append(out.DeleteMarkers, entry)
		} else {
			out.Versions = append(out.Versions, entry)
		}
	}
	writeXML(w, http.StatusOK, out)
}

const timeFormat = "2006-01-02T15:04:05.000Z"
