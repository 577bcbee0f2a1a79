package cluster

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hafiz-io/hafiz/cmn"
	"github.com/hafiz-io/hafiz/metadata"
)

// flakyTransport fails a peer's first N sends, then succeeds, letting tests
// exercise the retry-with-backoff path deterministically.
type flakyTransport struct {
	mu        sync.Mutex
	failUntil map[string]int
	received  map[string][]ReplicationEvent
}

func newFlakyTransport() *flakyTransport {
	return &flakyTransport{failUntil: map[string]int{}, received: map[string][]ReplicationEvent{}}
}

func (f *flakyTransport) SendEvent(_ context.Context, peer metadata.ClusterNode, ev ReplicationEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUntil[peer.NodeID] > 0 {
		f.failUntil[peer.NodeID]--
		return cmn.New("TransientPeerError", 0, cmn.KindTransientPeer, "simulated failure")
	}
	f.received[peer.NodeID] = append(f.received[peer.NodeID], ev)
	return nil
}

func (f *flakyTransport) Ping(context.Context, metadata.ClusterNode) error { return nil }

func newTestRoster(t *testing.T) *Roster {
	t.Helper()
	meta, err := metadata.OpenBunt(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { meta.Close() })
	return &Roster{Meta: meta, Cfg: cmn.ClusterConf{StalenessWindow: 20 * time.Second}}
}

// TestReplicationDeliversAtLeastOnceDespiteTransientFailures covers spec.md
// §8 item 10: a peer that fails the first couple of delivery attempts still
// eventually receives the event once the retry/backoff loop succeeds.
func TestReplicationDeliversAtLeastOnceDespiteTransientFailures(t *testing.T) {
	roster := newTestRoster(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := roster.Join(context.Background(), "peer-1", "http://peer-1.local", "Replica", now); err != nil {
		t.Fatal(err)
	}

	transport := newFlakyTransport()
	transport.failUntil["peer-1"] = 2

	r := &Replicator{
		Roster: roster, Transport: transport, SelfID: "self",
		Cfg: cmn.ClusterConf{QueueCapacity: 100, WorkersPerPeer: 2, MaxRetryAttempts: 5},
		Now: func() time.Time { return now },
	}
	r.Start(context.Background())
	defer r.Stop()

	ev := ReplicationEvent{Bucket: "b1", Key: "k1", VersionID: "v1", EventType: "Put"}
	results := make(chan peerResult, 1)
	select {
	case r.queue <- queuedEvent{ev: ev, result: results}:
	case <-time.After(time.Second):
		t.Fatal("could not enqueue event")
	}

	select {
	case res := <-results:
		if res.err != nil {
			t.Fatalf("expected eventual success after retries, got %v", res.err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for replication result")
	}

	transport.mu.Lock()
	defer transport.mu.Unlock()
	if len(transport.received["peer-1"]) != 1 {
		t.Fatalf("expected exactly 1 delivered event, got %d", len(transport.received["peer-1"]))
	}
}

func TestEnqueueDropsWhenQueueFull(t *testing.T) {
	roster := newTestRoster(t)
	r := &Replicator{Roster: roster, Transport: newFlakyTransport(), Cfg: cmn.ClusterConf{QueueCapacity: 1}}
	r.queue = make(chan queuedEvent, 1)

	ev := ReplicationEvent{Bucket: "b1", Key: "k1"}
	if !r.Enqueue(ev) {
		t.Fatal("expected first enqueue to succeed")
	}
	if r.Enqueue(ev) {
		t.Fatal("expected second enqueue to be dropped once the queue is full")
	}
}

func TestJoinTokenRoundTrip(t *testing.T) {
	secret := []byte("test-cluster-secret")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tok, err := IssueJoinToken(secret, "prod", "node-2", time.Minute, now)
	if err != nil {
		t.Fatal(err)
	}
	nodeID, err := VerifyJoinToken(secret, tok, "prod")
	if err != nil {
		t.Fatal(err)
	}
	if nodeID != "node-2" {
		t.Fatalf("expected node-2, got %q", nodeID)
	}
	if _, err := VerifyJoinToken(secret, tok, "staging"); err == nil {
		t.Fatal("expected cluster name mismatch to be rejected")
	}
}
