// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tower

import (
	"testing"

	"github.com/luxfi/cadence/config"
	"github.com/stretchr/testify/require"
)

// alwaysAncestor treats every slot as an ancestor of every other,
// since these scenarios test the lockout arithmetic in isolation from
// any particular fork shape.
func alwaysAncestor(slot, candidate uint64) bool { return true }

func withVotes(votes []Lockout) *Tower {
	t := New(config.DefaultParams())
	t.votes = votes
	return t
}

// TestScenario1 encodes spec.md §8 end-to-end scenario 1: stack
// [(4,1),(3,2),(2,3),(1,4)] expiring [6,7,10,17], new vote at 9
// yields [(9,1),(2,3),(1,4)] expiring [11,10,17].
func TestScenario1(t *testing.T) {
	tower := withVotes([]Lockout{
		{Slot: 1, ConfirmationCount: 4},
		{Slot: 2, ConfirmationCount: 3},
		{Slot: 3, ConfirmationCount: 2},
		{Slot: 4, ConfirmationCount: 1},
	})

	require.NoError(t, tower.ProposeVote(9, alwaysAncestor))

	got := tower.Votes()
	require.Equal(t, []Lockout{
		{Slot: 1, ConfirmationCount: 4},
		{Slot: 2, ConfirmationCount: 3},
		{Slot: 9, ConfirmationCount: 1},
	}, got)

	expirations := make([]uint64, len(got))
	for i, v := range got {
		expirations[i] = v.ExpirationSlot()
	}
	require.Equal(t, []uint64{17, 10, 11}, expirations)
}

// TestScenario2 continues scenario 1: a new vote at slot 10 yields
// [(10,1),(9,2),(2,3),(1,4)] expiring [12,13,10,17].
func TestScenario2(t *testing.T) {
	tower := withVotes([]Lockout{
		{Slot: 1, ConfirmationCount: 4},
		{Slot: 2, ConfirmationCount: 3},
		{Slot: 9, ConfirmationCount: 1},
	})

	require.NoError(t, tower.ProposeVote(10, alwaysAncestor))

	got := tower.Votes()
	require.Equal(t, []Lockout{
		{Slot: 1, ConfirmationCount: 4},
		{Slot: 2, ConfirmationCount: 3},
		{Slot: 9, ConfirmationCount: 2},
		{Slot: 10, ConfirmationCount: 1},
	}, got)
}

// TestScenario3 continues scenario 2: a new vote at slot 11 finds
// slot 2 expired (expiration 10 < 11); it and everything above pop,
// leaving [(11,1),(1,4)] expiring [13,17].
func TestScenario3(t *testing.T) {
	tower := withVotes([]Lockout{
		{Slot: 1, ConfirmationCount: 4},
		{Slot: 2, ConfirmationCount: 3},
		{Slot: 9, ConfirmationCount: 2},
		{Slot: 10, ConfirmationCount: 1},
	})

	require.NoError(t, tower.ProposeVote(11, alwaysAncestor))

	got := tower.Votes()
	require.Equal(t, []Lockout{
		{Slot: 1, ConfirmationCount: 4},
		{Slot: 11, ConfirmationCount: 1},
	}, got)
}

func TestProposeVoteRejectsNonAncestor(t *testing.T) {
	tower := withVotes([]Lockout{{Slot: 5, ConfirmationCount: 1}})
	err := tower.ProposeVote(6, func(slot, candidate uint64) bool { return false })
	require.ErrorIs(t, err, ErrNotAncestor)
	require.Len(t, tower.Votes(), 1, "rejected proposal must not mutate the stack")
}

func TestDequeueAdvancesRootByOne(t *testing.T) {
	tower := New(config.DefaultParams())
	for slot := uint64(0); slot < uint64(tower.params.MaxLockoutHistory); slot++ {
		require.NoError(t, tower.ProposeVote(slot, alwaysAncestor))
	}
	require.Len(t, tower.Votes(), tower.params.MaxLockoutHistory)
	_, hasRoot := tower.Root()
	require.False(t, hasRoot)

	require.NoError(t, tower.ProposeVote(uint64(tower.params.MaxLockoutHistory), alwaysAncestor))
	require.Len(t, tower.Votes(), tower.params.MaxLockoutHistory)
	root, hasRoot := tower.Root()
	require.True(t, hasRoot)
	require.Equal(t, uint64(0), root)
}

func TestForkChoicePicksMaxWeightTieBreakHigherSlot(t *testing.T) {
	weights := map[uint64]uint64{10: 5, 20: 5, 30: 4}
	best := ForkChoice([]uint64{10, 20, 30}, func(slot uint64) uint64 { return weights[slot] })
	require.Equal(t, uint64(20), best, "tie between 10 and 20 breaks toward the higher slot")
}
