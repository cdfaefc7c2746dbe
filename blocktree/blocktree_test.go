// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package blocktree

import (
	"testing"

	"github.com/luxfi/cadence/metrics"
	"github.com/luxfi/cadence/shred"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func openTestTree(t *testing.T) *Blocktree {
	t.Helper()
	bt, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = bt.Close() })
	return bt
}

func TestInsertAndFetchShred(t *testing.T) {
	bt := openTestTree(t)

	s := &shred.Shred{Slot: 5, IndexWithinSlot: 2, Payload: []byte("data"), Flags: shred.FlagLastInSlot}
	proof, err := bt.InsertShred(s)
	require.NoError(t, err)
	require.Nil(t, proof)

	got, err := bt.GetShred(5, 2)
	require.NoError(t, err)
	require.Equal(t, s.Payload, got.Payload)

	meta, err := bt.GetSlotMeta(5)
	require.NoError(t, err)
	require.NotNil(t, meta.LastIndex)
	require.Equal(t, uint64(2), *meta.LastIndex)
	// Indices 0 and 1 were never inserted, so the slot cannot be full
	// even though the last shred carries FlagLastInSlot.
	require.False(t, meta.IsFull)
}

func TestInsertShredAdvancesConsumedContiguousAndMarksFull(t *testing.T) {
	bt := openTestTree(t)

	for i := uint32(0); i < 3; i++ {
		flags := byte(0)
		if i == 2 {
			flags = shred.FlagLastInSlot
		}
		_, err := bt.InsertShred(&shred.Shred{Slot: 4, IndexWithinSlot: i, Payload: []byte{byte(i)}, Flags: flags})
		require.NoError(t, err)
	}

	meta, err := bt.GetSlotMeta(4)
	require.NoError(t, err)
	require.Equal(t, uint64(3), meta.ConsumedContiguous)
	require.True(t, meta.IsFull)
}

func TestInsertShredOutOfOrderDoesNotAdvanceContiguousPastGap(t *testing.T) {
	bt := openTestTree(t)

	_, err := bt.InsertShred(&shred.Shred{Slot: 6, IndexWithinSlot: 0, Payload: []byte("a")})
	require.NoError(t, err)
	_, err = bt.InsertShred(&shred.Shred{Slot: 6, IndexWithinSlot: 2, Payload: []byte("c"), Flags: shred.FlagLastInSlot})
	require.NoError(t, err)

	meta, err := bt.GetSlotMeta(6)
	require.NoError(t, err)
	require.Equal(t, uint64(1), meta.ConsumedContiguous)
	require.False(t, meta.IsFull)

	_, err = bt.InsertShred(&shred.Shred{Slot: 6, IndexWithinSlot: 1, Payload: []byte("b")})
	require.NoError(t, err)
	meta, err = bt.GetSlotMeta(6)
	require.NoError(t, err)
	require.Equal(t, uint64(3), meta.ConsumedContiguous)
	require.True(t, meta.IsFull)
}

func TestShredsForSlotOrdered(t *testing.T) {
	bt := openTestTree(t)
	for i := uint32(0); i < 4; i++ {
		_, err := bt.InsertShred(&shred.Shred{Slot: 9, IndexWithinSlot: i, Payload: []byte{byte(i)}})
		require.NoError(t, err)
	}
	shreds, err := bt.ShredsForSlot(9)
	require.NoError(t, err)
	require.Len(t, shreds, 4)
	for i, s := range shreds {
		require.Equal(t, uint32(i), s.IndexWithinSlot)
	}
}

func TestSlotMetaValidation(t *testing.T) {
	last := uint64(3)
	meta := &SlotMeta{Slot: 1, ReceivedHighest: 3, ConsumedContiguous: 4, LastIndex: &last, IsFull: true}
	require.NoError(t, meta.Valid())

	bad := &SlotMeta{Slot: 1, ConsumedContiguous: 10, ReceivedHighest: 2}
	require.Error(t, bad.Valid())
}

func TestInsertShredDetectsDuplicatePayload(t *testing.T) {
	bt := openTestTree(t)

	a := &shred.Shred{Slot: 7, IndexWithinSlot: 1, Payload: []byte("version-a")}
	proof, err := bt.InsertShred(a)
	require.NoError(t, err)
	require.Nil(t, proof)

	b := &shred.Shred{Slot: 7, IndexWithinSlot: 1, Payload: []byte("version-b")}
	proof, err = bt.InsertShred(b)
	require.NoError(t, err)
	require.NotNil(t, proof)
	require.Equal(t, uint64(7), proof.Slot)
	require.Equal(t, uint32(1), proof.Index)
	require.Equal(t, []byte("version-a"), proof.A.Payload)
	require.Equal(t, []byte("version-b"), proof.B.Payload)

	meta, err := bt.GetSlotMeta(7)
	require.NoError(t, err)
	require.True(t, meta.IsDuplicate)

	proofs, err := bt.DuplicateProofsForSlot(7)
	require.NoError(t, err)
	require.Len(t, proofs, 1)

	// Re-inserting the same payload is not a new duplicate.
	again := &shred.Shred{Slot: 7, IndexWithinSlot: 1, Payload: []byte("version-b")}
	proof, err = bt.InsertShred(again)
	require.NoError(t, err)
	require.Nil(t, proof)
}

func TestInsertShredLinksParentAndChild(t *testing.T) {
	bt := openTestTree(t)

	_, err := bt.InsertShred(&shred.Shred{Slot: 10, IndexWithinSlot: 0, ParentOffset: 2, Payload: []byte("x")})
	require.NoError(t, err)

	child, err := bt.GetSlotMeta(10)
	require.NoError(t, err)
	require.Equal(t, uint64(8), child.ParentSlot)

	parent, err := bt.GetSlotMeta(8)
	require.NoError(t, err)
	require.Equal(t, []uint64{10}, parent.NextSlots)

	// A second shred in the same slot does not duplicate the link.
	_, err = bt.InsertShred(&shred.Shred{Slot: 10, IndexWithinSlot: 1, ParentOffset: 2, Payload: []byte("y")})
	require.NoError(t, err)
	parent, err = bt.GetSlotMeta(8)
	require.NoError(t, err)
	require.Equal(t, []uint64{10}, parent.NextSlots)
}

func TestInsertShredReportsMetrics(t *testing.T) {
	bt := openTestTree(t)
	reg := prometheus.NewPedanticRegistry()
	m, err := metrics.NewBlocktreeMetrics("cadence_test", reg)
	require.NoError(t, err)
	bt.WithMetrics(m)

	_, err = bt.InsertShred(&shred.Shred{Slot: 20, IndexWithinSlot: 0, Payload: []byte("a")})
	require.NoError(t, err)
	_, err = bt.InsertShred(&shred.Shred{Slot: 20, IndexWithinSlot: 0, Payload: []byte("b")})
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, fam := range families {
		values[fam.GetName()] = fam.GetMetric()[0].GetCounter().GetValue()
	}
	require.Equal(t, float64(2), values["cadence_test_blocktree_shreds_inserted_total"])
	require.Equal(t, float64(1), values["cadence_test_blocktree_duplicate_proofs_total"])
}

func TestMarkRoot(t *testing.T) {
	bt := openTestTree(t)
	ok, err := bt.IsRoot(3)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, bt.MarkRoot(3))
	ok, err = bt.IsRoot(3)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMarkRootPrunesSiblingSubtrees(t *testing.T) {
	bt := openTestTree(t)

	// slot 0 forks into 1 (the winner) and 2 (the abandoned sibling);
	// slot 2 has its own child, slot 3.
	_, err := bt.InsertShred(&shred.Shred{Slot: 1, IndexWithinSlot: 0, ParentOffset: 1, Payload: []byte("a")})
	require.NoError(t, err)
	_, err = bt.InsertShred(&shred.Shred{Slot: 2, IndexWithinSlot: 0, ParentOffset: 2, Payload: []byte("b")})
	require.NoError(t, err)
	_, err = bt.InsertShred(&shred.Shred{Slot: 3, IndexWithinSlot: 0, ParentOffset: 1, Payload: []byte("c")})
	require.NoError(t, err)

	parent, err := bt.GetSlotMeta(0)
	require.NoError(t, err)
	require.ElementsMatch(t, []uint64{1, 2}, parent.NextSlots)

	require.NoError(t, bt.MarkRoot(1))

	parent, err = bt.GetSlotMeta(0)
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, parent.NextSlots)

	_, err = bt.GetShred(2, 0)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = bt.GetSlotMeta(2)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = bt.GetShred(3, 0)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = bt.GetSlotMeta(3)
	require.ErrorIs(t, err, ErrNotFound)

	// The winning sibling and its own ledger rows survive.
	_, err = bt.GetShred(1, 0)
	require.NoError(t, err)
}
