// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bank

import (
	"encoding/binary"
	"testing"

	"github.com/luxfi/cadence/config"
	"github.com/luxfi/cadence/crypto"
	"github.com/luxfi/cadence/poh"
	"github.com/luxfi/cadence/txn"
	"github.com/luxfi/cadence/types"
	"github.com/stretchr/testify/require"
)

func genesisWithFundedAccount(t *testing.T) (*Bank, *crypto.Keypair, types.Hash) {
	t.Helper()
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	genesisHash := types.HashBytes([]byte("genesis"))
	accounts := map[types.Pubkey]*Account{
		kp.Pubkey(): {Lamports: 1_000_000, Owner: SystemProgramID},
	}
	b := NewGenesisBank(config.TestParams(), genesisHash, accounts)
	return b, kp, genesisHash
}

func transferTx(t *testing.T, payer *crypto.Keypair, to types.Pubkey, amount uint64, blockhash types.Hash) *txn.Transaction {
	t.Helper()
	data := make([]byte, 9)
	data[0] = SystemTransfer
	binary.LittleEndian.PutUint64(data[1:9], amount)

	msg := txn.Message{
		Header: txn.Header{NumRequiredSignatures: 1, NumReadonlyUnsignedAccounts: 1},
		AccountKeys: []types.Pubkey{
			payer.Pubkey(), to, SystemProgramID,
		},
		RecentBlockhash: blockhash,
		Instructions: []txn.Instruction{
			{ProgramIDIndex: 2, AccountIndices: []uint8{0, 1}, Data: data},
		},
	}
	tx := &txn.Transaction{Message: msg}
	signBytes, err := tx.SigningMessage()
	require.NoError(t, err)
	tx.Signatures = []types.Signature{payer.Sign(signBytes)}
	return tx
}

func entriesFor(t *testing.T, params config.Parameters, seed types.Hash, rawTxs [][]byte) []poh.Entry {
	t.Helper()
	rec := poh.NewRecorder(params, seed)
	_, rejected, err := rec.Record(rawTxs)
	require.NoError(t, err)
	require.Empty(t, rejected)
	return rec.Drain()
}

func TestProcessEntriesTransfer(t *testing.T) {
	b, payer, genesisHash := genesisWithFundedAccount(t)
	toKp, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	tx := transferTx(t, payer, toKp.Pubkey(), 1000, genesisHash)
	raw, err := tx.Marshal()
	require.NoError(t, err)

	entries := entriesFor(t, b.params, genesisHash, [][]byte{raw})
	require.NoError(t, b.ProcessEntries(entries, DecodeTransaction))

	toAcct := b.GetAccount(toKp.Pubkey())
	require.NotNil(t, toAcct)
	require.Equal(t, uint64(1000), toAcct.Lamports)

	payerAcct := b.GetAccount(payer.Pubkey())
	require.Equal(t, uint64(1_000_000-1000-transactionFee), payerAcct.Lamports)
}

func TestProcessEntriesRejectsDuplicateSignature(t *testing.T) {
	b, payer, genesisHash := genesisWithFundedAccount(t)
	toKp, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	tx := transferTx(t, payer, toKp.Pubkey(), 500, genesisHash)
	raw, err := tx.Marshal()
	require.NoError(t, err)

	entries := entriesFor(t, b.params, genesisHash, [][]byte{raw})
	require.NoError(t, b.ProcessEntries(entries, DecodeTransaction))
	before := b.GetAccount(toKp.Pubkey()).Lamports

	entries2 := entriesFor(t, b.params, b.currentTickHash, [][]byte{raw})
	require.NoError(t, b.ProcessEntries(entries2, DecodeTransaction))
	after := b.GetAccount(toKp.Pubkey()).Lamports

	require.Equal(t, before, after, "replayed signature must not double-apply")
}

func TestFreezeIsImmutable(t *testing.T) {
	b, _, _ := genesisWithFundedAccount(t)
	b.Freeze()
	require.True(t, b.IsFrozen())
	require.ErrorIs(t, b.ProcessEntries(nil, DecodeTransaction), ErrAlreadyFrozen)
}

func TestNewFromParentRequiresFrozenParent(t *testing.T) {
	b, _, _ := genesisWithFundedAccount(t)
	_, err := NewFromParent(b, 1, types.Pubkey{})
	require.ErrorIs(t, err, ErrParentNotFrozen)

	b.Freeze()
	child, err := NewFromParent(b, 1, types.Pubkey{})
	require.NoError(t, err)
	require.Equal(t, uint64(1), child.Slot)
}

func TestProcessEntriesRejectsFeePayerBelowFee(t *testing.T) {
	b, payer, genesisHash := genesisWithFundedAccount(t)
	toKp, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	poor := b.GetAccount(payer.Pubkey()).Clone()
	poor.Lamports = transactionFee - 1
	b.accountsDelta[payer.Pubkey()] = poor

	tx := transferTx(t, payer, toKp.Pubkey(), 1, genesisHash)
	raw, err := tx.Marshal()
	require.NoError(t, err)

	entries := entriesFor(t, b.params, genesisHash, [][]byte{raw})
	require.NoError(t, b.ProcessEntries(entries, DecodeTransaction))

	require.Equal(t, uint64(transactionFee-1), b.GetAccount(payer.Pubkey()).Lamports, "fee must not be debited")
	require.Nil(t, b.GetAccount(toKp.Pubkey()), "transfer must not apply")
	_, seen := b.statusCache[tx.Signatures[0]]
	require.False(t, seen, "an unfunded attempt is not a processed signature")
}

func TestSquashCollapsesAncestors(t *testing.T) {
	b, payer, _ := genesisWithFundedAccount(t)
	b.Freeze()

	child, err := NewFromParent(b, 1, types.Pubkey{})
	require.NoError(t, err)
	child.Freeze()

	child.Squash()
	require.Nil(t, child.Parent)
	require.NotNil(t, child.GetAccount(payer.Pubkey()))
}
