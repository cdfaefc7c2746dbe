// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bankforks

import (
	"testing"

	"github.com/luxfi/cadence/bank"
	"github.com/luxfi/cadence/config"
	"github.com/luxfi/cadence/types"
	"github.com/stretchr/testify/require"
)

func newGenesis(t *testing.T) *bank.Bank {
	t.Helper()
	b := bank.NewGenesisBank(config.TestParams(), types.HashBytes([]byte("genesis")), nil)
	b.Freeze()
	return b
}

func TestInsertRequiresFrozenParent(t *testing.T) {
	genesis := newGenesis(t)
	f := New(genesis)

	child, err := bank.NewFromParent(genesis, 1, types.Pubkey{})
	require.NoError(t, err)
	require.NoError(t, f.Insert(child))

	// bank.NewFromParent refuses an unfrozen parent, so the grandchild
	// is built directly to exercise Insert's own frozen-parent check.
	grandchild := &bank.Bank{Slot: 2, Parent: child}
	err = f.Insert(grandchild)
	require.ErrorIs(t, err, ErrParentNotFrozen)

	child.Freeze()
	require.NoError(t, f.Insert(grandchild))
}

func TestFrontierTracksTips(t *testing.T) {
	genesis := newGenesis(t)
	f := New(genesis)

	child, _ := bank.NewFromParent(genesis, 1, types.Pubkey{})
	require.NoError(t, f.Insert(child))

	tips := f.Frontier()
	require.Len(t, tips, 1)
	require.Equal(t, uint64(1), tips[0].Slot)
}

func TestSetRootPrunesNonAncestors(t *testing.T) {
	genesis := newGenesis(t)
	f := New(genesis)

	childA, _ := bank.NewFromParent(genesis, 1, types.Pubkey{})
	require.NoError(t, f.Insert(childA))
	childA.Freeze()

	childB, _ := bank.NewFromParent(genesis, 2, types.Pubkey{})
	require.NoError(t, f.Insert(childB))

	require.NoError(t, f.SetRoot(1, childA))

	_, ok := f.Get(2)
	require.False(t, ok, "sibling fork must be pruned")
	require.Equal(t, uint64(1), f.Root())
}

func TestSetRootRejectsNonAncestor(t *testing.T) {
	genesis := newGenesis(t)
	f := New(genesis)

	childA, _ := bank.NewFromParent(genesis, 1, types.Pubkey{})
	require.NoError(t, f.Insert(childA))
	childA.Freeze()

	childB, _ := bank.NewFromParent(genesis, 2, types.Pubkey{})
	require.NoError(t, f.Insert(childB))
	childB.Freeze()

	err := f.SetRoot(2, childA)
	require.ErrorIs(t, err, ErrNotAncestor)
}
