// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package gossip

import (
	"sync"

	"github.com/luxfi/cadence/tower"
	"github.com/luxfi/cadence/types"
	"github.com/luxfi/cadence/utils/bag"
)

// VoteTracker records the vote pubkeys observed gossiping a lockout
// for each slot, and exposes them the way tower.ClusterVotes expects:
// the set of validators with a slot locked into their vote stack, so
// MeetsThreshold can sum stake over that set. Each slot's voters are
// kept in a bag rather than a plain set so a retransmitted copy of the
// same vote (common once gossip fan-out duplicates a message) is
// counted as repeat evidence rather than silently discarded.
type VoteTracker struct {
	mu     sync.RWMutex
	bySlot map[uint64]bag.Bag[types.Pubkey]
}

// NewVoteTracker returns an empty tracker.
func NewVoteTracker() *VoteTracker {
	return &VoteTracker{bySlot: make(map[uint64]bag.Bag[types.Pubkey])}
}

// Observe records that voter has a lockout on slot. Called whenever a
// vote transaction for slot arrives over gossip or repair.
func (vt *VoteTracker) Observe(slot uint64, voter types.Pubkey) {
	vt.mu.Lock()
	defer vt.mu.Unlock()
	voters, ok := vt.bySlot[slot]
	if !ok {
		voters = bag.New[types.Pubkey]()
	}
	voters.Add(voter)
	vt.bySlot[slot] = voters
}

// RetransmitCount reports how many times voter's lockout on slot has
// been observed, the signal a duplicate-retransmit monitor would use.
func (vt *VoteTracker) RetransmitCount(slot uint64, voter types.Pubkey) int {
	vt.mu.RLock()
	defer vt.mu.RUnlock()
	voters, ok := vt.bySlot[slot]
	if !ok {
		return 0
	}
	return voters.Count(voter)
}

// VotesAt implements tower.ClusterVotes.
func (vt *VoteTracker) VotesAt(slot uint64) []types.Pubkey {
	vt.mu.RLock()
	defer vt.mu.RUnlock()
	voters, ok := vt.bySlot[slot]
	if !ok {
		return nil
	}
	return voters.List()
}

// Prune discards every tracked slot below root, called as BankForks
// advances its root and older forks become unreachable.
func (vt *VoteTracker) Prune(root uint64) {
	vt.mu.Lock()
	defer vt.mu.Unlock()
	for slot := range vt.bySlot {
		if slot < root {
			delete(vt.bySlot, slot)
		}
	}
}

var _ tower.ClusterVotes = (*VoteTracker)(nil).VotesAt
