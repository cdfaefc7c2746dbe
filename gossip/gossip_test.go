// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package gossip

import (
	"context"
	"testing"

	"github.com/luxfi/cadence/types"
	"github.com/luxfi/cadence/utils/set"
	"github.com/stretchr/testify/require"
)

func TestVoteTrackerObserveAndQuery(t *testing.T) {
	vt := NewVoteTracker()
	a := types.HashBytes([]byte("a"))
	b := types.HashBytes([]byte("b"))

	vt.Observe(5, a)
	vt.Observe(5, b)
	vt.Observe(6, a)

	votesAt5 := vt.VotesAt(5)
	require.Len(t, votesAt5, 2)
	require.Len(t, vt.VotesAt(6), 1)
	require.Empty(t, vt.VotesAt(7))
}

func TestVoteTrackerObserveIsIdempotent(t *testing.T) {
	vt := NewVoteTracker()
	a := types.HashBytes([]byte("a"))
	vt.Observe(1, a)
	vt.Observe(1, a)
	require.Len(t, vt.VotesAt(1), 1)
}

func TestVoteTrackerRetransmitCountTracksDuplicates(t *testing.T) {
	vt := NewVoteTracker()
	a := types.HashBytes([]byte("a"))

	require.Equal(t, 0, vt.RetransmitCount(1, a))
	vt.Observe(1, a)
	vt.Observe(1, a)
	vt.Observe(1, a)
	require.Equal(t, 3, vt.RetransmitCount(1, a))
	require.Len(t, vt.VotesAt(1), 1)
}

func TestVoteTrackerPruneDropsSlotsBelowRoot(t *testing.T) {
	vt := NewVoteTracker()
	a := types.HashBytes([]byte("a"))
	vt.Observe(1, a)
	vt.Observe(5, a)
	vt.Observe(10, a)

	vt.Prune(5)

	require.Empty(t, vt.VotesAt(1))
	require.Len(t, vt.VotesAt(5), 1)
	require.Len(t, vt.VotesAt(10), 1)
}

func TestRecordingAppSenderCapturesCalls(t *testing.T) {
	sender := &RecordingAppSender{}
	nodeA := types.NodeIDFromPubkey(types.HashBytes([]byte("a")))
	peers := set.Of(nodeA)

	require.NoError(t, sender.SendShred(context.Background(), peers, []byte("shred")))
	require.NoError(t, sender.SendRepairRequest(context.Background(), nodeA, 7, 2))
	require.NoError(t, sender.SendVote(context.Background(), peers, []byte("vote")))

	require.Equal(t, [][]byte{[]byte("shred")}, sender.Shreds)
	require.Equal(t, []RepairRequest{{NodeID: nodeA, Slot: 7, Index: 2}}, sender.RepairRequests)
	require.Equal(t, [][]byte{[]byte("vote")}, sender.Votes)
}

func TestNoOpAppSenderNeverFails(t *testing.T) {
	var sender AppSender = NoOpAppSender{}
	require.NoError(t, sender.SendShred(context.Background(), set.Set[types.NodeID]{}, nil))
	require.NoError(t, sender.SendRepairRequest(context.Background(), types.NodeID{}, 0, 0))
	require.NoError(t, sender.SendVote(context.Background(), set.Set[types.NodeID]{}, nil))
}
