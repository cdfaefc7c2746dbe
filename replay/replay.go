// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package replay implements the Replay Stage: the driver loop that
// pulls newly-full slots out of Blocktree, replays their entries
// through a child Bank, tracks the resulting fork in BankForks, and
// drives Tower's vote decision over the result (spec.md §4.7).
package replay

import (
	"errors"
	"time"

	"github.com/luxfi/cadence/bank"
	"github.com/luxfi/cadence/bankforks"
	"github.com/luxfi/cadence/blocktree"
	"github.com/luxfi/cadence/choices"
	"github.com/luxfi/cadence/poh"
	"github.com/luxfi/cadence/tower"
)

// ErrSlotDeadlineExceeded is returned when a slot's entries were not
// observed full before its replay deadline lapsed; Replay Stage marks
// the slot dead rather than waiting indefinitely (spec.md §4.7).
var ErrSlotDeadlineExceeded = errors.New("replay: slot deadline exceeded before entries were full")

// ErrNoShredsForSlot is returned by DefaultEntriesForSlot when
// Blocktree has no stored shreds for the requested slot.
var ErrNoShredsForSlot = errors.New("replay: no shreds stored for slot")

// EntriesForSlot resolves a full slot's shreds into its ordered PoH
// entry stream. The shred->entry framing (Reed-Solomon reconstruction
// plus deserialization) lives with the caller's wire codec; Replay
// Stage only needs the result.
type EntriesForSlot func(tree *blocktree.Blocktree, slot uint64) ([]poh.Entry, error)

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// DefaultEntriesForSlot is the fast-path EntriesForSlot: it reads
// every shred Blocktree has stored for slot directly, in index order,
// and decodes their concatenated payloads with poh.DecodeEntries. It
// does not attempt Reed-Solomon reconstruction, so it only succeeds
// once the full data-shred run for the slot has arrived; a caller that
// wants to replay atop a partially repaired slot must supply its own
// EntriesForSlot built on shred.Reconstruct instead.
func DefaultEntriesForSlot(tree *blocktree.Blocktree, slot uint64) ([]poh.Entry, error) {
	shreds, err := tree.ShredsForSlot(slot)
	if err != nil {
		return nil, err
	}
	if len(shreds) == 0 {
		return nil, ErrNoShredsForSlot
	}
	raw := make([]byte, 0, len(shreds)*len(shreds[0].Payload))
	for _, sh := range shreds {
		raw = append(raw, sh.Payload...)
	}
	return poh.DecodeEntries(raw)
}

// Stage ties Blocktree, Bank/BankForks, and Tower into the replay
// loop. One Stage instance runs on one validator.
type Stage struct {
	tree    *blocktree.Blocktree
	forks   *bankforks.BankForks
	tower   *tower.Tower
	decode  func([]byte) (*bank.SanitizedTransaction, error)
	entries EntriesForSlot
	now     Clock

	deadAfter time.Duration
	deadlines map[uint64]time.Time
	status    map[uint64]choices.Status
}

// New returns a Stage driving forks atop tree, voting through tow.
// deadAfter bounds how long a not-yet-full slot is tolerated before
// it is marked dead. now may be nil to use time.Now.
func New(tree *blocktree.Blocktree, forks *bankforks.BankForks, tow *tower.Tower, decode func([]byte) (*bank.SanitizedTransaction, error), entries EntriesForSlot, deadAfter time.Duration, now Clock) *Stage {
	if now == nil {
		now = time.Now
	}
	return &Stage{
		tree:      tree,
		forks:     forks,
		tower:     tow,
		decode:    decode,
		entries:   entries,
		now:       now,
		deadAfter: deadAfter,
		deadlines: make(map[uint64]time.Time),
		status:    make(map[uint64]choices.Status),
	}
}

// Status reports slot's replay lifecycle state: Unknown before it is
// first attempted, Processing once a child Bank is being (or has been)
// replayed atop it without yet being rooted, Rejected once replay or
// the deadline check has ruled it out, Accepted once Accept marks it
// finalized.
func (s *Stage) Status(slot uint64) choices.Status {
	return s.status[slot]
}

// IsDead reports whether slot has been marked dead (Rejected) by a
// prior ReplayFrontier pass (verification failure or deadline
// exceeded).
func (s *Stage) IsDead(slot uint64) bool {
	return s.status[slot] == choices.Rejected
}

// MarkDead flags slot as unplayable. No Bank will ever be inserted
// atop it, so every descendant is implicitly unreachable too.
func (s *Stage) MarkDead(slot uint64) {
	s.status[slot] = choices.Rejected
}

// Accept marks slot Accepted, the caller's signal that BankForks
// rooted a descendant of slot and the fork choice covering it is
// final. Rejected slots cannot be accepted.
func (s *Stage) Accept(slot uint64) {
	if s.status[slot] == choices.Rejected {
		return
	}
	s.status[slot] = choices.Accepted
}

// ReplayFrontier attempts to advance every working-tip Bank in forks
// by one generation: for each frontier tip whose child slot is full in
// Blocktree, it allocates a child Bank, replays the child's entries,
// freezes it, and inserts it into forks. childOf names the next slot
// to attempt atop a given parent (the leader schedule's next slot for
// this fork). Returns the slots successfully replayed this pass.
func (s *Stage) ReplayFrontier(childOf func(parentSlot uint64) (childSlot uint64, ok bool)) ([]uint64, error) {
	var advanced []uint64
	for _, tip := range s.forks.Frontier() {
		childSlot, ok := childOf(tip.Slot)
		if !ok {
			continue
		}
		if s.status[childSlot] == choices.Rejected {
			continue
		}

		meta, err := s.tree.GetSlotMeta(childSlot)
		if err != nil || !meta.IsFull {
			if dlErr := s.checkDeadline(childSlot); dlErr != nil {
				s.MarkDead(childSlot)
			}
			continue
		}
		if meta.IsDuplicate {
			s.markDeadRecursive(meta)
			continue
		}
		delete(s.deadlines, childSlot)

		ents, err := s.entries(s.tree, childSlot)
		if err != nil {
			s.MarkDead(childSlot)
			continue
		}

		child, err := s.ReplayEntries(tip, childSlot, ents)
		if err != nil {
			continue
		}
		advanced = append(advanced, child.Slot)
	}
	return advanced, nil
}

// markDeadRecursive marks meta's slot dead and walks every slot it
// ever recorded as a next_slots child, marking each of those dead too,
// regardless of whether that descendant chained off the duplicate
// shred version or an honest one detected later (spec.md §8: "the safe
// behavior is to mark all descendants dead").
func (s *Stage) markDeadRecursive(meta *blocktree.SlotMeta) {
	s.MarkDead(meta.Slot)
	for _, next := range meta.NextSlots {
		if s.status[next] == choices.Rejected {
			continue
		}
		childMeta, err := s.tree.GetSlotMeta(next)
		if err != nil {
			s.MarkDead(next)
			continue
		}
		s.markDeadRecursive(childMeta)
	}
}

// checkDeadline starts (or checks) a deadline timer for slot, the
// slot-not-yet-full case. Returns ErrSlotDeadlineExceeded once
// deadAfter has elapsed since the slot first entered this state.
func (s *Stage) checkDeadline(slot uint64) error {
	start, ok := s.deadlines[slot]
	if !ok {
		s.deadlines[slot] = s.now()
		return nil
	}
	if s.now().Sub(start) > s.deadAfter {
		return ErrSlotDeadlineExceeded
	}
	return nil
}

// ReplayEntries allocates childSlot atop parent, replays entries
// through it, and on success inserts the frozen child into forks. A
// replay failure marks childSlot dead and also returns the error;
// errors allocating the child or inserting it into BankForks (parent
// unfrozen, parent missing) are returned without marking the slot
// dead.
func (s *Stage) ReplayEntries(parent *bank.Bank, childSlot uint64, entries []poh.Entry) (*bank.Bank, error) {
	s.status[childSlot] = choices.Processing
	child, err := bank.NewFromParent(parent, childSlot, parent.Leader)
	if err != nil {
		return nil, err
	}
	if err := child.ProcessEntries(entries, s.decode); err != nil {
		s.MarkDead(childSlot)
		return nil, err
	}
	child.Freeze()
	if err := s.forks.Insert(child); err != nil {
		return nil, err
	}
	return child, nil
}

// VoteOn runs the Tower vote decision for slot: checks the optional
// threshold-depth policy, and if it passes, proposes the vote
// in-memory and returns the updated lockout stack the caller should
// sign into a vote transaction and hand to a gossip sender. If the
// threshold policy rejects the slot, VoteOn returns
// tower.ErrThresholdNotMet and leaves the Tower untouched — the voter
// skips this slot, matching spec.md §4.8.
func (s *Stage) VoteOn(slot uint64, isAncestor tower.AncestorOf, stakeOf tower.StakeLookup, votesAt tower.ClusterVotes, totalStake uint64) ([]tower.Lockout, error) {
	if !s.tower.MeetsThreshold(stakeOf, votesAt, totalStake) {
		return nil, tower.ErrThresholdNotMet
	}
	if err := s.tower.ProposeVote(slot, isAncestor); err != nil {
		return nil, err
	}
	return s.tower.Votes(), nil
}

// ChooseTip applies tower.ForkChoice across forks' current frontier,
// weighting each tip by its stake-weighted lockout score.
func (s *Stage) ChooseTip(weight func(tipSlot uint64) uint64) (uint64, bool) {
	tips := s.forks.Frontier()
	if len(tips) == 0 {
		return 0, false
	}
	slots := make([]uint64, len(tips))
	for i, b := range tips {
		slots[i] = b.Slot
	}
	return tower.ForkChoice(slots, weight), true
}
