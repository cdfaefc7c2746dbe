// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package tower implements the lockout-stack fork-selection algorithm:
// the vote-commitment ladder that doubles a slot's lockout on each
// consecutive vote and exposes the stake-weighted threshold checks a
// voter consults before submitting another vote (spec.md §4.8).
package tower

import (
	"errors"

	"github.com/luxfi/cadence/config"
	"github.com/luxfi/cadence/types"
)

// ErrNotAncestor is returned by ProposeVote when a lockout still on
// the stack names a slot that is not an ancestor of the candidate
// vote slot on the replayed fork tree — voting would be slashable.
var ErrNotAncestor = errors.New("tower: lockout slot is not an ancestor of the proposed vote")

// ErrThresholdNotMet is returned when the voter's threshold-depth
// policy is enabled and the stake-weighted agreement check fails;
// the caller should skip voting this slot rather than submit.
var ErrThresholdNotMet = errors.New("tower: threshold-depth stake requirement not met")

// Lockout is one vote commitment: the voted slot and how many times
// it has survived a subsequent vote without expiring (spec.md §3).
type Lockout struct {
	Slot              uint64
	ConfirmationCount uint32
}

// ExpirationSlot is the slot at which this Lockout's constraint lifts.
func (l Lockout) ExpirationSlot() uint64 {
	return config.ExpirationSlot(l.Slot, l.ConfirmationCount)
}

// IsLockedOutAt reports whether slot still falls within l's lockout
// range, i.e. l has not yet expired as of slot.
func (l Lockout) IsLockedOutAt(slot uint64) bool {
	return l.ExpirationSlot() >= slot
}

// AncestorOf reports whether slot is an ancestor of candidate on
// ancestors, the replayed-fork membership set Replay Stage supplies
// (every slot's proper ancestors, inclusive of itself).
type AncestorOf func(slot, candidate uint64) bool

// Tower is one voter's ordered lockout stack, deepest (oldest) first,
// bounded to MaxLockoutHistory entries (spec.md §4.8).
type Tower struct {
	params config.Parameters
	votes  []Lockout // index 0 = bottom (oldest), last = top (most recent)
	root   uint64
	hasRoot bool
}

// New returns an empty Tower.
func New(params config.Parameters) *Tower {
	return &Tower{params: params}
}

// Votes returns a copy of the current lockout stack, top-most last.
func (t *Tower) Votes() []Lockout {
	out := make([]Lockout, len(t.votes))
	copy(out, t.votes)
	return out
}

// Root returns the slot that has dequeued off the bottom of the
// stack, if any.
func (t *Tower) Root() (uint64, bool) {
	return t.root, t.hasRoot
}

// ProposeVote runs the four-step rule of spec.md §4.8 for a candidate
// vote at newSlot: expire stale lockouts, check ancestry of every
// surviving lockout, push the new vote and double eligible lockouts'
// confirmation counts, then dequeue the bottom if the stack overflows.
// It mutates t only on success; on ErrNotAncestor the stack is left
// untouched, since ProposeVote is a query the caller may decide not to
// act on. The caller is expected to have already checked threshold
// policy via MeetsThreshold before calling ProposeVote, matching
// spec.md's "voters may also withhold to observe multiple forks".
func (t *Tower) ProposeVote(newSlot uint64, isAncestor AncestorOf) error {
	// Step 1: expire step (rollback). A vote anywhere in the stack
	// whose lockout has elapsed invalidates itself and every vote
	// stacked on top of it, since those survived only by nesting
	// inside a lockout that has now lapsed. Scanning from the bottom
	// (oldest) finds the first such break and truncates there.
	survivors := append([]Lockout{}, t.votes...)
	for i, v := range survivors {
		if v.ExpirationSlot() < newSlot {
			survivors = survivors[:i]
			break
		}
	}

	// Step 2: ancestry check on every surviving lockout.
	for _, v := range survivors {
		if !isAncestor(v.Slot, newSlot) {
			return ErrNotAncestor
		}
	}

	// Step 3: push the new vote, then double every lockout that has
	// not yet seen more confirmations than its current exponent
	// accounts for (stack_depth > index + confirmation_count).
	survivors = append(survivors, Lockout{Slot: newSlot, ConfirmationCount: 1})
	depth := len(survivors)
	for i := range survivors {
		if depth > i+int(survivors[i].ConfirmationCount) {
			survivors[i].ConfirmationCount++
		}
	}

	// Step 4: dequeue if over MaxLockoutHistory.
	if len(survivors) > t.params.MaxLockoutHistory {
		t.root = survivors[0].Slot
		t.hasRoot = true
		survivors = survivors[1:]
	}

	t.votes = survivors
	return nil
}

// StakeLookup resolves a validator Pubkey's active stake as of the
// bank snapshot the threshold check is evaluated against.
type StakeLookup func(types.Pubkey) uint64

// ClusterVotes reports, for a given slot, the set of validators whose
// own Tower currently has a vote for that slot (or a descendant)
// locked in — the agreement set MeetsThreshold sums stake over.
type ClusterVotes func(slot uint64) []types.Pubkey

// MeetsThreshold implements the optional threshold-depth voter policy
// (spec.md §4.8): the vote at stack depth ThresholdDepth (counting
// from the top) must already be agreed on by at least ThresholdSize of
// active cluster stake, or the voter should skip voting this slot.
func (t *Tower) MeetsThreshold(stakeOf StakeLookup, votesAt ClusterVotes, totalStake uint64) bool {
	depth := t.params.ThresholdDepth
	if len(t.votes) <= depth {
		// Not enough history yet to evaluate the policy; permit voting.
		return true
	}
	target := t.votes[len(t.votes)-1-depth]

	var agreeing uint64
	for _, voter := range votesAt(target.Slot) {
		agreeing += stakeOf(voter)
	}
	if totalStake == 0 {
		return false
	}
	return float64(agreeing)/float64(totalStake) >= t.params.ThresholdSize
}

// ForkChoice picks, among candidate fork tips, the one maximizing
// aggregate stake-weighted lockout at the contended ancestor,
// tie-breaking by the higher slot number (spec.md §4.8 "Fork choice").
// weight(tipSlot) is the caller-supplied stake-weighted lockout score
// for the fork ending at tipSlot.
func ForkChoice(tips []uint64, weight func(tipSlot uint64) uint64) uint64 {
	var best uint64
	var bestWeight uint64
	first := true
	for _, tip := range tips {
		w := weight(tip)
		if first || w > bestWeight || (w == bestWeight && tip > best) {
			best, bestWeight, first = tip, w, false
		}
	}
	return best
}
