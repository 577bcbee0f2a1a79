package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/golang/glog"
	"github.com/pierrec/lz4/v3"

	"github.com/hafiz-io/hafiz/cluster"
	"github.com/hafiz-io/hafiz/cmn"
)

// handleClusterPing answers a peer's liveness probe, per spec.md §6's
// /cluster/ping route. No authentication: peers inside the cluster network
// are trusted the same way the join-token handshake already trusts them.
func (s *Server) handleClusterPing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, cmn.ErrInvalidRequest("unsupported method %s for /cluster/ping", r.Method))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleClusterMessage receives a pushed ReplicationEvent from a peer's
// Replicator, per spec.md §4.9 and §6's /cluster/message route. A replica
// has nothing further to apply in this single-primary-writer build (the
// delivery guarantee comes from the sender's in-memory queue and its
// retries); receipt is acknowledged and logged.
func (s *Server) handleClusterMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, cmn.ErrInvalidRequest("unsupported method %s for /cluster/message", r.Method))
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, cmn.ErrInvalidRequest("read request body: %v", err))
		return
	}
	if r.Header.Get("Content-Encoding") == "lz4" {
		body, err = lz4Decode(body)
		if err != nil {
			writeError(w, r, cmn.ErrInvalidRequest("lz4 decode: %v", err))
			return
		}
	}
	var ev cluster.ReplicationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		writeError(w, r, cmn.ErrInvalidRequest("malformed replication event: %v", err))
		return
	}
	glog.V(3).Infof("received replication event: %s/%s type=%s version=%s", ev.Bucket, ev.Key, ev.EventType, ev.VersionID)
	w.WriteHeader(http.StatusOK)
}

func lz4Decode(b []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(b))
	return io.ReadAll(r)
}
