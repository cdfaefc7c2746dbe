// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package validators holds the cluster's active stake table: the
// weighted validator set that the leader schedule, Tower's threshold
// checks and the RPC facade's getVoteAccounts all read from.
package validators

import (
	"errors"
	"math/rand"
	"sync"

	"github.com/luxfi/cadence/types"
)

// ErrUnknownValidator is returned when a query names a pubkey absent
// from the set.
var ErrUnknownValidator = errors.New("validators: unknown validator")

// Validator is one cluster member's identity and active stake.
type Validator struct {
	NodeID types.NodeID
	Vote   types.Pubkey
	Stake  uint64
}

// Set is the active, stake-weighted validator table for one epoch.
type Set struct {
	mu    sync.RWMutex
	byKey map[types.Pubkey]Validator
}

// NewSet builds a Set from a vote-pubkey -> stake snapshot, the shape
// bank.Bank.Stakes returns.
func NewSet(nodeOf func(types.Pubkey) types.NodeID, stakes map[types.Pubkey]uint64) *Set {
	s := &Set{}
	s.Update(nodeOf, stakes)
	return s
}

// Update replaces the set's contents wholesale, called once per epoch
// boundary when the stake table is resnapshotted from a frozen Bank.
func (s *Set) Update(nodeOf func(types.Pubkey) types.NodeID, stakes map[types.Pubkey]uint64) {
	byKey := make(map[types.Pubkey]Validator, len(stakes))
	for vote, stake := range stakes {
		if stake == 0 {
			continue
		}
		byKey[vote] = Validator{NodeID: nodeOf(vote), Vote: vote, Stake: stake}
	}
	s.mu.Lock()
	s.byKey = byKey
	s.mu.Unlock()
}

// Has reports whether vote names a tracked validator.
func (s *Set) Has(vote types.Pubkey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byKey[vote]
	return ok
}

// Get returns the Validator for vote.
func (s *Set) Get(vote types.Pubkey) (Validator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.byKey[vote]
	if !ok {
		return Validator{}, ErrUnknownValidator
	}
	return v, nil
}

// Len returns the number of tracked validators.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKey)
}

// List returns every tracked Validator in unspecified order.
func (s *Set) List() []Validator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Validator, 0, len(s.byKey))
	for _, v := range s.byKey {
		out = append(out, v)
	}
	return out
}

// TotalStake sums the active stake of every tracked validator, the
// denominator for Tower's threshold checks and epoch finality.
func (s *Set) TotalStake() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total uint64
	for _, v := range s.byKey {
		total += v.Stake
	}
	return total
}

// StakeOf implements tower.StakeLookup.
func (s *Set) StakeOf(vote types.Pubkey) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byKey[vote].Stake
}

// Sample draws size distinct validators without replacement, weighted
// by stake, the fanout a gossip layer would pick for shred repair
// requests. If size exceeds the set's length, every validator is
// returned.
func (s *Set) Sample(size int, seed int64) []Validator {
	s.mu.RLock()
	all := make([]Validator, 0, len(s.byKey))
	for _, v := range s.byKey {
		all = append(all, v)
	}
	s.mu.RUnlock()

	if size >= len(all) {
		return all
	}

	r := rand.New(rand.NewSource(seed))
	remaining := all
	var totalWeight uint64
	for _, v := range remaining {
		totalWeight += v.Stake
	}

	out := make([]Validator, 0, size)
	for len(out) < size && len(remaining) > 0 && totalWeight > 0 {
		draw := uint64(r.Int63n(int64(totalWeight))) + 1
		var cumulative uint64
		pick := 0
		for i, v := range remaining {
			cumulative += v.Stake
			if draw <= cumulative {
				pick = i
				break
			}
		}
		out = append(out, remaining[pick])
		totalWeight -= remaining[pick].Stake
		remaining = append(remaining[:pick], remaining[pick+1:]...)
	}
	return out
}
