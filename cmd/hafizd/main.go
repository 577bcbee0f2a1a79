// Command hafizd is the hafiz object storage server process: it loads
// configuration, wires the blob store, metadata repository, and every
// request-handling component together, and serves spec.md §6's S3-style
// HTTP API until told to shut down.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hafiz-io/hafiz/authn"
	"github.com/hafiz-io/hafiz/blobstore"
	"github.com/hafiz-io/hafiz/bucketsvc"
	"github.com/hafiz-io/hafiz/cluster"
	"github.com/hafiz-io/hafiz/cmn"
	"github.com/hafiz-io/hafiz/httpapi"
	"github.com/hafiz-io/hafiz/lifecycle"
	"github.com/hafiz-io/hafiz/metadata"
	"github.com/hafiz-io/hafiz/multipart"
	"github.com/hafiz-io/hafiz/objectsvc"
	"github.com/hafiz-io/hafiz/stats"
)

var (
	configPath = flag.String("config", "", "path to the hafizd JSON configuration file")
	envPrefix  = flag.String("env_prefix", "HAFIZ", "prefix for environment variable configuration overrides")
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()
	defer glog.Flush()

	cfg, err := cmn.LoadConfig(*configPath, *envPrefix)
	if err != nil {
		glog.Errorf("load config: %v", err)
		return 1
	}

	if err := os.MkdirAll(cfg.DataRoot, 0o755); err != nil {
		glog.Errorf("create data root %q: %v", cfg.DataRoot, err)
		return 1
	}

	meta, err := openMetadata(cfg.MetadataURL)
	if err != nil {
		glog.Errorf("open metadata repository: %v", err)
		return 1
	}
	defer meta.Close()

	blobs := blobstore.NewStore(cfg.DataRoot)

	auth := &authn.Manager{Meta: meta}
	if err := bootstrapRootCredential(auth, cfg); err != nil {
		glog.Errorf("bootstrap root credential: %v", err)
		return 1
	}

	reg := stats.NewRegistry(prometheus.DefaultRegisterer)

	roster := &cluster.Roster{Meta: meta, Cfg: cfg.Cluster}
	transport := cluster.NewHTTPTransport(cfg.Cluster.ConnectTimeout, cfg.Cluster.RequestTimeout,
		cfg.Cluster.AllowInsecureSkipVerify, true /* compress */)
	replicator := &cluster.Replicator{
		Roster: roster, Transport: transport, Cfg: cfg.Cluster, SelfID: cfg.Cluster.NodeID,
	}

	objects := &objectsvc.Service{Blobs: blobs, Meta: meta}
	objects.OnCommit = func(ev objectsvc.CommitEvent) {
		replicator.Enqueue(cluster.ReplicationEvent{Bucket: ev.Bucket, Key: ev.Key, VersionID: ev.VersionID, EventType: ev.EventType})
	}

	buckets := &bucketsvc.Service{Meta: meta}
	mpu := multipart.NewCoordinator(blobs, meta)
	mpu.OnCommit = func(bucket, key, versionID string) {
		replicator.Enqueue(cluster.ReplicationEvent{Bucket: bucket, Key: key, VersionID: versionID, EventType: "Put"})
	}

	lc := &lifecycle.Engine{Blobs: blobs, Meta: meta, TickInterval: cfg.Lifecycle.TickInterval}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	replicator.Start(ctx)
	defer replicator.Stop()

	startLifecycleTicker(ctx, lc, reg)

	srv := &httpapi.Server{
		Buckets: buckets, Objects: objects, Multipart: mpu,
		Auth: auth, Replicator: replicator, Roster: roster, Transport: transport,
		Stats: reg,
	}

	httpSrv := &http.Server{
		Addr:    cfg.BindAddress + ":" + strconv.Itoa(cfg.Port),
		Handler: srv.Handler(),
	}
	if cfg.TLS.Enabled {
		httpSrv.TLSConfig = tlsConfigFrom(cfg.TLS)
	}

	errCh := make(chan error, 1)
	go func() {
		glog.Infof("hafizd listening on %s", httpSrv.Addr)
		var serveErr error
		if cfg.TLS.Enabled {
			serveErr = httpSrv.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			serveErr = httpSrv.ListenAndServe()
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			errCh <- serveErr
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		glog.Infof("received %s, draining", sig)
	case err := <-errCh:
		glog.Errorf("listener failed: %v", err)
		return 1
	}

	return shutdown(httpSrv, lc, roster, cfg)
}

// shutdown implements spec.md §9's drain sequence: stop accepting new
// connections, wait up to ShutdownDrainTimeout for in-flight requests to
// finish, remove this node from the local cluster roster (no message is
// sent to peers), then return.
func shutdown(httpSrv *http.Server, lc *lifecycle.Engine, roster *cluster.Roster, cfg *cmn.Config) int {
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownDrainTimeout)
	defer cancel()

	lc.Stop()

	if err := httpSrv.Shutdown(drainCtx); err != nil {
		glog.Errorf("graceful shutdown did not complete within %s: %v", cfg.ShutdownDrainTimeout, err)
	}

	if cfg.Cluster.NodeID != "" {
		if err := roster.Leave(context.Background(), cfg.Cluster.NodeID); err != nil {
			glog.Warningf("roster leave failed: %v", err)
		}
	}
	return 0
}

// startLifecycleTicker runs Engine.Tick on its configured interval in a
// goroutine, feeding each sweep's counts into reg. Engine.Start (the
// package's own ticker loop) has no hook for observing results, so hafizd
// drives the ticker itself instead.
func startLifecycleTicker(ctx context.Context, lc *lifecycle.Engine, reg *stats.Registry) {
	interval := lc.TickInterval
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				report, err := lc.Tick(ctx)
				if err != nil {
					glog.Errorf("lifecycle tick failed: %v", err)
					continue
				}
				reg.ObserveLifecycleTick(report.ExpiredCurrent, report.ExpiredNoncurrent, report.AbortedUploads)
			}
		}
	}()
}

// openMetadata dispatches cfg.MetadataURL's scheme to a concrete
// metadata.Repository. "embedded" (BuntDB, a pure-Go embedded store) is the
// only backend this build ships; spec.md §9 leaves room for others behind
// the same interface.
func openMetadata(metadataURL string) (metadata.Repository, error) {
	const embeddedScheme = "embedded://"
	if !strings.HasPrefix(metadataURL, embeddedScheme) {
		return nil, cmn.ErrInvalidArgument("unsupported metadata_url scheme in %q (only embedded:// is supported)", metadataURL)
	}
	return metadata.OpenBunt(strings.TrimPrefix(metadataURL, embeddedScheme))
}

// bootstrapRootCredential ensures the operator-supplied root access/secret
// key pair from config (or HAFIZ_ACCESS_KEY/HAFIZ_SECRET_KEY) exists as an
// enabled, unrestricted credential, per spec.md §4.1's bootstrap note.
func bootstrapRootCredential(auth *authn.Manager, cfg *cmn.Config) error {
	if cfg.RootAccessKey == "" || cfg.RootSecretKey == "" {
		return nil
	}
	ctx := context.Background()
	if _, err := auth.Get(ctx, cfg.RootAccessKey); err == nil {
		return nil
	}
	return auth.Meta.CreateCredential(ctx, metadataRootCredential(cfg))
}

func metadataRootCredential(cfg *cmn.Config) metadata.Credential {
	return metadata.Credential{
		AccessKey: cfg.RootAccessKey,
		SecretKey: cfg.RootSecretKey,
		Name:      "root",
		Enabled:   true,
		Policies:  []string{authn.BypassGovernanceRetentionPolicy},
	}
}

func tlsConfigFrom(t cmn.TLSConf) *tls.Config {
	c := &tls.Config{}
	if t.MinVersion == "TLS1.3" {
		c.MinVersion = tls.VersionTLS13
	} else {
		c.MinVersion = tls.VersionTLS12
	}
	if t.RequireClientCert {
		c.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return c
}
