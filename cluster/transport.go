package cluster

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/pierrec/lz4/v3"

	"github.com/hafiz-io/hafiz/cmn"
	"github.com/hafiz-io/hafiz/metadata"
)

// ReplicationEvent is one committed object mutation queued for replication
// to peers, per spec.md §4.9.
type ReplicationEvent struct {
	Bucket, Key, VersionID string
	EventType              string
}

// Transport sends replication events and pings to peers. The production
// implementation is httpTransport below; tests substitute a fake.
type Transport interface {
	SendEvent(ctx context.Context, peer metadata.ClusterNode, ev ReplicationEvent) error
	Ping(ctx context.Context, peer metadata.ClusterNode) error
}

// httpTransport implements Transport over the cluster's /cluster/message
// and /cluster/ping routes (spec.md §6), optionally LZ4-compressing the
// event payload.
type httpTransport struct {
	client   *http.Client
	compress bool
}

// NewHTTPTransport builds the production Transport, per spec.md §9's
// cluster networking design note.
func NewHTTPTransport(connectTimeout, requestTimeout time.Duration, insecureSkipVerify, compress bool) Transport {
	dialer := &net.Dialer{Timeout: connectTimeout}
	tr := &http.Transport{
		DialContext:     dialer.DialContext,
		TLSClientConfig: &tls.Config{InsecureSkipVerify: insecureSkipVerify},
	}
	return &httpTransport{
		client:   &http.Client{Transport: tr, Timeout: requestTimeout},
		compress: compress,
	}
}

func (t *httpTransport) SendEvent(ctx context.Context, peer metadata.ClusterNode, ev ReplicationEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	encoding := ""
	if t.compress {
		body = lz4Compress(body)
		encoding = "lz4"
	}
	url := fmt.Sprintf("%s/cluster/message", peer.ClusterEndpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return cmn.New("TransientPeerError", 0, cmn.KindTransientPeer, "send to %q: %v", peer.NodeID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return cmn.New("TransientPeerError", resp.StatusCode, cmn.KindTransientPeer, "peer %q returned status %d", peer.NodeID, resp.StatusCode)
	}
	return nil
}

func (t *httpTransport) Ping(ctx context.Context, peer metadata.ClusterNode) error {
	url := fmt.Sprintf("%s/cluster/ping", peer.ClusterEndpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return cmn.New("TransientPeerError", 0, cmn.KindTransientPeer, "ping %q: %v", peer.NodeID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return cmn.New("TransientPeerError", resp.StatusCode, cmn.KindTransientPeer, "peer %q ping returned status %d", peer.NodeID, resp.StatusCode)
	}
	return nil
}

// lz4Compress is used when the operator opts into inter-node payload
// compression for the replication stream (spec.md §9's bandwidth note).
func lz4Compress(b []byte) []byte {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	w.Write(b)
	w.Close()
	return buf.Bytes()
}

// lz4Decompress is the inverse of lz4Compress. No code in this module calls
// it; the /cluster/message handler in httpapi decodes with its own
// lz4Decode.
func lz4Decompress(b []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(b))
	return io.ReadAll(r)
}
