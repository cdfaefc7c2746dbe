// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package leader computes the stake-weighted slot→leader schedule for
// an epoch (spec.md §4.2), deterministically seeded so every replaying
// node derives the identical mapping from the same stake snapshot.
package leader

import (
	"encoding/binary"
	"errors"
	"math/rand"
	"sort"

	"github.com/luxfi/cadence/config"
	"github.com/luxfi/cadence/types"
)

// ErrNoStake is returned when a schedule is requested from a stake
// snapshot with zero total stake.
var ErrNoStake = errors.New("leader: stake snapshot has zero total stake")

// StakeEntry is one validator's voting weight as of the epoch's stake
// snapshot, keyed by its identity Pubkey (not its vote account).
type StakeEntry struct {
	Pubkey types.Pubkey
	Stake  uint64
}

// Schedule is the computed slot→leader mapping for one epoch.
type Schedule struct {
	Epoch   uint64
	Leaders []types.Pubkey // index i is the leader of EpochStartSlot(Epoch)+i
}

// LeaderForSlot returns the scheduled leader for the given absolute
// slot, or false if slot falls outside this Schedule's epoch.
func (s *Schedule) LeaderForSlot(p config.Parameters, slot uint64) (types.Pubkey, bool) {
	start := p.EpochStartSlot(s.Epoch)
	length := p.EpochLength(s.Epoch)
	if slot < start || slot >= start+length {
		return types.Pubkey{}, false
	}
	return s.Leaders[slot-start], true
}

// Compute derives the leader schedule for epoch from a stake
// snapshot: a stake-weighted shuffle (without replacement, repeating
// once exhausted) seeded deterministically by the epoch number, so
// every node that replays the same stake snapshot computes the
// identical mapping (spec.md §4.2).
//
// The schedule for epoch E is computable LeaderScheduleSlotOffset
// slots ahead of epoch_start(E), which the caller is responsible for
// respecting; Compute itself is a pure function of (epoch, stakes).
func Compute(p config.Parameters, epoch uint64, stakes []StakeEntry) (*Schedule, error) {
	entries := make([]StakeEntry, len(stakes))
	copy(entries, stakes)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Pubkey.String() < entries[j].Pubkey.String()
	})

	var total uint64
	for _, e := range entries {
		total += e.Stake
	}
	if total == 0 {
		return nil, ErrNoStake
	}

	shuffled := weightedShuffle(entries, total, epochSeed(epoch))

	length := p.EpochLength(epoch)
	leaders := make([]types.Pubkey, length)
	for i := range leaders {
		leaders[i] = shuffled[i%len(shuffled)]
	}
	return &Schedule{Epoch: epoch, Leaders: leaders}, nil
}

// epochSeed derives a deterministic PRNG seed from the epoch number,
// the "seeded by the epoch number" requirement of spec.md §4.2.
func epochSeed(epoch uint64) int64 {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], epoch)
	h := types.HashBytes(b[:])
	return int64(binary.BigEndian.Uint64(h[:8]))
}

// weightedShuffle repeatedly draws without replacement, weighted by
// stake, until every entry has been drawn exactly once, producing a
// full permutation biased toward higher-stake validators appearing
// earlier (and, once slots exceed len(entries), more often per lap).
func weightedShuffle(entries []StakeEntry, total uint64, seed int64) []types.Pubkey {
	rng := rand.New(rand.NewSource(seed))
	remaining := make([]StakeEntry, len(entries))
	copy(remaining, entries)
	remainingTotal := total

	out := make([]types.Pubkey, 0, len(entries))
	for len(remaining) > 0 {
		target := uint64(rng.Int63n(int64(remainingTotal)))
		var cumulative uint64
		pick := len(remaining) - 1
		for i, e := range remaining {
			cumulative += e.Stake
			if target < cumulative {
				pick = i
				break
			}
		}
		out = append(out, remaining[pick].Pubkey)
		remainingTotal -= remaining[pick].Stake
		remaining = append(remaining[:pick], remaining[pick+1:]...)
	}
	return out
}
