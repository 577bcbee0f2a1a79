package stats

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveRequestIncrementsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.ObserveRequest("PutObject", "2xx", 5*time.Millisecond)
	r.ObserveRequest("PutObject", "2xx", 7*time.Millisecond)

	if got := testutil.ToFloat64(r.RequestCount.WithLabelValues("PutObject", "2xx")); got != 2 {
		t.Fatalf("expected request count 2, got %v", got)
	}
}

func TestObserveErrorByCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.ObserveError("NoSuchKey")
	r.ObserveError("NoSuchKey")
	r.ObserveError("AccessDenied")

	if got := testutil.ToFloat64(r.ErrCount.WithLabelValues("NoSuchKey")); got != 2 {
		t.Fatalf("expected 2 NoSuchKey errors, got %v", got)
	}
	if got := testutil.ToFloat64(r.ErrCount.WithLabelValues("AccessDenied")); got != 1 {
		t.Fatalf("expected 1 AccessDenied error, got %v", got)
	}
}

func TestObserveLifecycleTick(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.ObserveLifecycleTick(3, 5, 1)

	if got := testutil.ToFloat64(r.LifecycleExpiredCurrent); got != 3 {
		t.Fatalf("expected 3 expired current, got %v", got)
	}
	if got := testutil.ToFloat64(r.LifecycleExpiredNoncurrent); got != 5 {
		t.Fatalf("expected 5 expired noncurrent, got %v", got)
	}
	if got := testutil.ToFloat64(r.LifecycleAbortedUploads); got != 1 {
		t.Fatalf("expected 1 aborted upload, got %v", got)
	}
}
