// Package cluster implements spec.md §4.9's optional replication layer:
// peer membership/heartbeat, a bounded replication event queue with
// per-peer worker pools, retry with exponential backoff, and
// consistency-level completion counting.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cluster

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/hafiz-io/hafiz/cmn"
	"github.com/hafiz-io/hafiz/metadata"
)

// Roster wraps the metadata repository's cluster-node CRUD with the
// Join/Leave protocol spec.md §4.9 describes, mirroring the teacher's
// Sowner/Smap split between membership storage and the in-memory view.
type Roster struct {
	Meta metadata.Repository
	Cfg  cmn.ClusterConf
}

// joinClaims is the payload of the bootstrap token a joining node presents,
// signed with the cluster's shared secret.
type joinClaims struct {
	jwt.RegisteredClaims
	ClusterName string `json:"cluster_name"`
	NodeID      string `json:"node_id"`
}

// IssueJoinToken mints a short-lived bootstrap token a new node presents to
// the primary when joining, per spec.md §4.9's Join protocol.
func IssueJoinToken(secret []byte, clusterName, nodeID string, ttl time.Duration, now time.Time) (string, error) {
	claims := joinClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		ClusterName: clusterName,
		NodeID:      nodeID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// VerifyJoinToken validates a bootstrap token presented to the primary.
func VerifyJoinToken(secret []byte, tokenStr, clusterName string) (nodeID string, err error) {
	var claims joinClaims
	_, err = jwt.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return "", err
	}
	if claims.ClusterName != clusterName {
		return "", cmn.ErrAccessDenied("join token is for cluster %q, not %q", claims.ClusterName, clusterName)
	}
	return claims.NodeID, nil
}

// Join registers a node in the roster as healthy, per spec.md §4.9.
func (r *Roster) Join(ctx context.Context, nodeID, endpoint, role string, now time.Time) error {
	return r.Meta.UpsertClusterNode(ctx, metadata.ClusterNode{
		NodeID: nodeID, ClusterEndpoint: endpoint, Role: role,
		Status: "healthy", LastHeartbeat: now,
	})
}

// Leave removes a node from the local roster. It sends no message to
// peers, so their rosters still list the node.
func (r *Roster) Leave(ctx context.Context, nodeID string) error {
	return r.Meta.RemoveClusterNode(ctx, nodeID)
}

// Heartbeat refreshes a node's liveness timestamp.
func (r *Roster) Heartbeat(ctx context.Context, nodeID string, now time.Time) error {
	n, ok, err := r.Meta.GetClusterNode(ctx, nodeID)
	if err != nil {
		return err
	}
	if !ok {
		return cmn.New("NoSuchNode", 404, cmn.KindNotFound, "node %q is not a roster member", nodeID)
	}
	n.LastHeartbeat = now
	n.Status = "healthy"
	return r.Meta.UpsertClusterNode(ctx, n)
}

// Peers returns every roster member other than self. It does not filter by
// health: Status and LastHeartbeat are not consulted and now is unused, so
// unhealthy peers are returned too (Healthy checks a single node).
func (r *Roster) Peers(ctx context.Context, selfNodeID string, now time.Time) ([]metadata.ClusterNode, error) {
	all, err := r.Meta.ListClusterNodes(ctx)
	if err != nil {
		return nil, err
	}
	var peers []metadata.ClusterNode
	for _, n := range all {
		if n.NodeID == selfNodeID {
			continue
		}
		peers = append(peers, n)
	}
	return peers, nil
}

// Healthy reports whether n is within the roster's staleness window.
func (r *Roster) Healthy(n metadata.ClusterNode, now time.Time) bool {
	staleness := r.Cfg.StalenessWindow
	if staleness <= 0 {
		staleness = 20 * time.Second
	}
	return n.Healthy(now, staleness)
}
