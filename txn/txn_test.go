// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txn

import (
	"testing"

	"github.com/luxfi/cadence/crypto"
	"github.com/luxfi/cadence/types"
	"github.com/stretchr/testify/require"
)

func TestShortvecRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 127, 128, 16383, 16384, 1<<21 - 1} {
		buf, err := putShortvec(nil, n)
		require.NoError(t, err)
		got, consumed, err := readShortvec(buf)
		require.NoError(t, err)
		require.Equal(t, n, got)
		require.Equal(t, len(buf), consumed)
	}
}

func TestShortvecOverflow(t *testing.T) {
	_, err := putShortvec(nil, 1<<21)
	require.ErrorIs(t, err, ErrShortvecOverflow)
}

func TestTransactionMarshalRoundTrip(t *testing.T) {
	payer, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	other, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	program, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	msg := Message{
		Header: Header{
			NumRequiredSignatures:       1,
			NumReadonlySignedAccounts:   0,
			NumReadonlyUnsignedAccounts: 1,
		},
		AccountKeys:     []types.Pubkey{payer.Pubkey(), other.Pubkey(), program.Pubkey()},
		RecentBlockhash: types.HashBytes(program.Public),
		Instructions: []Instruction{
			{ProgramIDIndex: 2, AccountIndices: []uint8{0, 1}, Data: []byte{1, 2, 3}},
		},
	}

	tx := &Transaction{Message: msg}
	signBytes, err := tx.SigningMessage()
	require.NoError(t, err)
	tx.Signatures = []types.Signature{payer.Sign(signBytes)}

	raw, err := tx.Marshal()
	require.NoError(t, err)
	require.LessOrEqual(t, len(raw), MaxPacketSize)

	decoded, err := UnmarshalTransaction(raw)
	require.NoError(t, err)
	require.Equal(t, tx.Signatures, decoded.Signatures)
	require.Equal(t, tx.Message, decoded.Message)
	require.NoError(t, decoded.Message.Validate())

	require.True(t, decoded.Message.IsSigner(0))
	require.False(t, decoded.Message.IsSigner(1))
	require.True(t, decoded.Message.IsWritable(1))
	require.False(t, decoded.Message.IsWritable(2))
}

func TestMessageValidateRejectsOOBIndices(t *testing.T) {
	msg := Message{
		AccountKeys:  make([]types.Pubkey, 2),
		Instructions: []Instruction{{ProgramIDIndex: 5}},
	}
	require.ErrorIs(t, msg.Validate(), ErrProgramIndexOOB)
}
