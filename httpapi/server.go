package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/hafiz-io/hafiz/authn"
	"github.com/hafiz-io/hafiz/bucketsvc"
	"github.com/hafiz-io/hafiz/cluster"
	"github.com/hafiz-io/hafiz/cmn"
	"github.com/hafiz-io/hafiz/multipart"
	"github.com/hafiz-io/hafiz/objectsvc"
	"github.com/hafiz-io/hafiz/stats"
)

// Server wires the route table of spec.md §6 to the component services,
// the way ais/tgts3.go dispatches S3 calls to a target's storage/metadata
// layers.
type Server struct {
	Buckets    *bucketsvc.Service
	Objects    *objectsvc.Service
	Multipart  *multipart.Coordinator
	Auth       *authn.Manager
	Replicator *cluster.Replicator
	Roster     *cluster.Roster
	Transport  cluster.Transport
	Stats      *stats.Registry
	Now        func() time.Time

	mux *http.ServeMux
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Handler builds the stdlib mux once and returns it; call once at startup.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/cluster/ping", s.handleClusterPing)
	mux.HandleFunc("/cluster/message", s.handleClusterMessage)
	mux.HandleFunc("/", s.dispatch)
	s.mux = mux
	return withStats(mux, s.Stats, s.now)
}

// dispatch splits the path into (bucket, key) and routes bucket-scoped vs.
// object-scoped calls, per spec.md §6's route table. Requests under
// /cluster/ are registered separately above and never reach here.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	ident, aerr := authenticate(r, s.Auth, s.now)
	if aerr != nil {
		writeError(w, r, aerr)
		return
	}

	bucket, key := cmn.BucketAndKey(r.URL.Path)
	if bucket == "" {
		if r.Method == http.MethodGet {
			s.handleListBuckets(w, r)
			return
		}
		writeError(w, r, cmn.ErrInvalidRequest("expected a bucket name in the request path"))
		return
	}
	if key == "" {
		s.handleBucket(w, r, ident, bucket)
		return
	}
	s.handleObject(w, r, ident, bucket, key)
}

func bypassGovernance(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("x-amz-bypass-governance-retention"), "true")
}
