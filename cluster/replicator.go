package cluster

import (
	"context"
	"time"

	"github.com/OneOfOne/xxhash"
	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"github.com/hafiz-io/hafiz/cmn"
	"github.com/hafiz-io/hafiz/metadata"
)

// ConsistencyLevel governs how many peer acknowledgements Replicate waits
// for before returning, per spec.md §4.9.
type ConsistencyLevel int

const (
	// One returns as soon as the event has been enqueued; no replica ack is
	// awaited.
	One ConsistencyLevel = iota
	// Quorum waits for acks from a majority of peers.
	Quorum
	// All waits for acks from every peer.
	All
)

// queuedEvent pairs a ReplicationEvent with the channel its submitter is
// waiting on for a per-peer completion count, when the caller asked for
// Quorum/All.
type queuedEvent struct {
	ev     ReplicationEvent
	result chan<- peerResult
}

type peerResult struct {
	peerID string
	err    error
}

// Replicator fans a bounded queue of committed-object events out to every
// live peer. The drain loop processes one queued event at a time and waits
// for that event's fan-out to finish before pulling the next, so delivery
// to any one peer stays in commit order, per spec.md §4.9's ordering note.
type Replicator struct {
	Roster    *Roster
	Transport Transport
	Cfg       cmn.ClusterConf
	SelfID    string
	Now       func() time.Time

	queue  chan queuedEvent
	cancel context.CancelFunc
	done   chan struct{}
}

// Start launches the queue-drain loop; the loop hands each event to fanOut,
// which delivers it to the peers. Call Stop to drain and shut down.
func (r *Replicator) Start(ctx context.Context) {
	cap := r.Cfg.QueueCapacity
	if cap <= 0 {
		cap = 10_000
	}
	r.queue = make(chan queuedEvent, cap)
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.drain(ctx)
}

// Stop cancels the drain loop and waits for it to exit.
func (r *Replicator) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.done != nil {
		<-r.done
	}
}

// Enqueue submits ev for replication at consistency level One, dropping it
// if the queue is full rather than blocking the caller's commit path, per
// spec.md §4.9's backpressure rule. Returns false if the event was dropped.
func (r *Replicator) Enqueue(ev ReplicationEvent) bool {
	select {
	case r.queue <- queuedEvent{ev: ev}:
		return true
	default:
		glog.Warningf("replication queue full, dropping event for %s/%s", ev.Bucket, ev.Key)
		return false
	}
}

// Replicate submits ev and blocks until the requested consistency level is
// satisfied or ctx is done.
func (r *Replicator) Replicate(ctx context.Context, ev ReplicationEvent, level ConsistencyLevel) error {
	if level == One {
		r.Enqueue(ev)
		return nil
	}

	peers, err := r.Roster.Peers(context.Background(), r.SelfID, r.now())
	if err != nil {
		return err
	}
	if len(peers) == 0 {
		return nil
	}
	need := len(peers)
	if level == Quorum {
		need = len(peers)/2 + 1
	}

	results := make(chan peerResult, len(peers))
	select {
	case r.queue <- queuedEvent{ev: ev, result: results}:
	default:
		return cmn.New("QueueFull", 503, cmn.KindQuota, "replication queue is full")
	}

	acked := 0
	for acked < need {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res := <-results:
			if res.err == nil {
				acked++
			}
		}
	}
	return nil
}

func (r *Replicator) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// drain reads the queue and fans each event out to every current peer
// concurrently, retrying each peer independently with exponential backoff.
func (r *Replicator) drain(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return
		case qe := <-r.queue:
			r.fanOut(ctx, qe)
		}
	}
}

func (r *Replicator) fanOut(ctx context.Context, qe queuedEvent) {
	peers, err := r.Roster.Peers(ctx, r.SelfID, r.now())
	if err != nil {
		glog.Warningf("replicator: list peers: %v", err)
		return
	}

	workersPerPeer := r.Cfg.WorkersPerPeer
	if workersPerPeer <= 0 {
		workersPerPeer = 4
	}
	maxAttempts := r.Cfg.MaxRetryAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	var g errgroup.Group
	g.SetLimit(workersPerPeer * len(peers))
	for _, peer := range peers {
		peer := peer
		g.Go(func() error {
			err := r.sendWithRetry(ctx, peer, qe.ev, maxAttempts)
			if qe.result != nil {
				qe.result <- peerResult{peerID: peer.NodeID, err: err}
			}
			return nil
		})
	}
	_ = g.Wait()
}

// sendWithRetry retries Transport.SendEvent with exponential backoff
// starting at 100ms and doubling, per spec.md §4.9.
func (r *Replicator) sendWithRetry(ctx context.Context, peer metadata.ClusterNode, ev ReplicationEvent, maxAttempts int) error {
	backoff := 100 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		if err := r.Transport.SendEvent(ctx, peer, ev); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

// shardKey returns the xxhash of (bucket, key). No code in this module
// calls it.
func shardKey(bucket, key string) uint64 {
	h := xxhash.New64()
	h.Write([]byte(bucket))
	h.Write([]byte("/"))
	h.Write([]byte(key))
	return h.Sum64()
}
