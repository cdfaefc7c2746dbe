// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package shred

import (
	"bytes"
	"testing"

	"github.com/luxfi/cadence/crypto"
	"github.com/stretchr/testify/require"
)

func TestSplitAndReconstruct(t *testing.T) {
	const payloadSize = 64
	const dataShreds = 4
	const parityShreds = 2

	data := bytes.Repeat([]byte{0xAB}, payloadSize*dataShreds)
	set, err := Split(7, 0, data, payloadSize, dataShreds, parityShreds, true)
	require.NoError(t, err)
	require.Len(t, set.DataShreds, dataShreds)
	require.Len(t, set.ParityShreds, parityShreds)
	require.Equal(t, FlagLastInSlot, set.DataShreds[dataShreds-1].Flags&FlagLastInSlot)

	all := append(append([]*Shred{}, set.DataShreds...), set.ParityShreds...)
	all[0] = nil
	all[1] = nil

	recovered, err := Reconstruct(all, dataShreds, parityShreds, payloadSize)
	require.NoError(t, err)
	for i, shred := range set.DataShreds {
		require.Equal(t, shred.Payload, recovered[i])
	}
}

func TestReconstructFailsBelowThreshold(t *testing.T) {
	const payloadSize = 32
	const dataShreds = 4
	const parityShreds = 2

	all := make([]*Shred, dataShreds+parityShreds)
	_, err := Reconstruct(all, dataShreds, parityShreds, payloadSize)
	require.ErrorIs(t, err, ErrInsufficientShreds)
}

func TestShredSignatureVerification(t *testing.T) {
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	s := &Shred{Slot: 1, IndexWithinSlot: 0, Payload: []byte("entry batch")}
	s.Sign(kp)
	require.True(t, s.Verify(kp.Pubkey()))

	other, _ := crypto.GenerateKeypair()
	require.False(t, s.Verify(other.Pubkey()))
}
