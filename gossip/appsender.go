// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package gossip defines the cluster's peer-to-peer transport
// boundary: the AppSender a Broadcast Stage pushes shreds through, and
// the cluster-vote tracker Tower consults for its stake-weighted
// threshold checks (spec.md §4.8 "Thresholds").
package gossip

import (
	"context"

	"github.com/luxfi/cadence/types"
	"github.com/luxfi/cadence/utils/set"
)

// AppSender pushes application-level messages to cluster peers. Its
// shape is transport-agnostic: a production binary wires this to a
// real p2p stack, while tests wire it to an in-memory fake.
type AppSender interface {
	// SendShred pushes a single shred to nodeIDs, the Broadcast
	// Stage's primary egress path (spec.md §4.4).
	SendShred(ctx context.Context, nodeIDs set.Set[types.NodeID], shred []byte) error

	// SendRepairRequest asks nodeID to resend a shred this node is
	// missing, identified by (slot, index).
	SendRepairRequest(ctx context.Context, nodeID types.NodeID, slot uint64, index uint32) error

	// SendVote gossips a Tower vote transaction to nodeIDs.
	SendVote(ctx context.Context, nodeIDs set.Set[types.NodeID], voteTx []byte) error
}

// NoOpAppSender discards every message; useful as a default before a
// real transport is wired, and in tests that don't exercise gossip.
type NoOpAppSender struct{}

func (NoOpAppSender) SendShred(context.Context, set.Set[types.NodeID], []byte) error { return nil }

func (NoOpAppSender) SendRepairRequest(context.Context, types.NodeID, uint64, uint32) error {
	return nil
}

func (NoOpAppSender) SendVote(context.Context, set.Set[types.NodeID], []byte) error { return nil }

// RecordingAppSender captures every call for assertions in tests.
type RecordingAppSender struct {
	Shreds        [][]byte
	RepairRequests []RepairRequest
	Votes         [][]byte
}

// RepairRequest is one captured SendRepairRequest call.
type RepairRequest struct {
	NodeID types.NodeID
	Slot   uint64
	Index  uint32
}

func (r *RecordingAppSender) SendShred(_ context.Context, _ set.Set[types.NodeID], shred []byte) error {
	r.Shreds = append(r.Shreds, shred)
	return nil
}

func (r *RecordingAppSender) SendRepairRequest(_ context.Context, nodeID types.NodeID, slot uint64, index uint32) error {
	r.RepairRequests = append(r.RepairRequests, RepairRequest{NodeID: nodeID, Slot: slot, Index: index})
	return nil
}

func (r *RecordingAppSender) SendVote(_ context.Context, _ set.Set[types.NodeID], voteTx []byte) error {
	r.Votes = append(r.Votes, voteTx)
	return nil
}
