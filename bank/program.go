// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bank

import (
	"encoding/binary"
	"errors"

	"github.com/luxfi/cadence/types"
	safemath "github.com/luxfi/cadence/utils/math"
)

// Well-known program IDs for the built-in programs every Bank ships
// with, the SPEC_FULL.md extension that gives the Bank.stakes field
// and the getVoteAccounts RPC method a concrete writer.
var (
	SystemProgramID = types.HashBytes([]byte("system_program"))
	VoteProgramID   = types.HashBytes([]byte("vote_program"))
	StakeProgramID  = types.HashBytes([]byte("stake_program"))
)

// System program instruction tags.
const (
	SystemTransfer byte = iota
	SystemCreateAccount
)

// Vote program instruction tags.
const (
	VoteInitialize byte = iota
	VoteVote
)

// Stake program instruction tags.
const (
	StakeDelegate byte = iota
	StakeDeactivate
)

// ErrInvalidInstructionData is returned when a built-in program cannot
// parse an instruction's Data payload.
var ErrInvalidInstructionData = errors.New("bank: invalid instruction data")

// execContext is the state a program instruction executes against:
// the accounts it was invoked with, resolved to their pre-state, and
// indexed positionally to match Instruction.AccountIndices.
type execContext struct {
	bank     *Bank
	accounts []*Account // positional, parallel to resolved pubkeys
	pubkeys  []types.Pubkey
}

// program is a built-in program's instruction handler.
type program func(ctx *execContext, data []byte) error

var builtins = map[types.Pubkey]program{
	SystemProgramID: executeSystem,
	VoteProgramID:   executeVote,
	StakeProgramID:  executeStake,
}

// executeSystem implements SystemTransfer (move lamports between two
// accounts the caller controls) and SystemCreateAccount (fund a new
// account owned by a target program).
func executeSystem(ctx *execContext, data []byte) error {
	if len(data) < 1 {
		return ErrInvalidInstructionData
	}
	switch data[0] {
	case SystemTransfer:
		if len(ctx.accounts) < 2 || len(data) < 9 {
			return ErrInvalidInstructionData
		}
		amount := binary.LittleEndian.Uint64(data[1:9])
		from, to := ctx.accounts[0], ctx.accounts[1]
		fromRemaining, err := safemath.Sub64(from.Lamports, amount)
		if err != nil {
			return ErrInsufficientFunds
		}
		toTotal, err := safemath.Add64(to.Lamports, amount)
		if err != nil {
			return ErrInsufficientFunds
		}
		from.Lamports = fromRemaining
		to.Lamports = toTotal
		return nil
	case SystemCreateAccount:
		if len(ctx.accounts) < 2 || len(data) < 9 {
			return ErrInvalidInstructionData
		}
		amount := binary.LittleEndian.Uint64(data[1:9])
		from, newAcct := ctx.accounts[0], ctx.accounts[1]
		fromRemaining, err := safemath.Sub64(from.Lamports, amount)
		if err != nil {
			return ErrInsufficientFunds
		}
		newTotal, err := safemath.Add64(newAcct.Lamports, amount)
		if err != nil {
			return ErrInsufficientFunds
		}
		from.Lamports = fromRemaining
		newAcct.Lamports = newTotal
		if len(data) >= 9+32 {
			copy(newAcct.Owner[:], data[9:41])
		}
		return nil
	}
	return ErrInvalidInstructionData
}

// Stake records the delegation a staking account holds against a vote
// account (spec.md §3 Bank.stakes).
type Stake struct {
	VoteAccount types.Pubkey
	Amount      uint64
	Active      bool
}

// executeStake implements StakeDelegate/StakeDeactivate by writing a
// serialized Stake into the stake account's Data, and mirroring the
// delegation into Bank.stakes so the leader schedule and Tower's
// stake-weighted checks see it without re-parsing account data.
func executeStake(ctx *execContext, data []byte) error {
	if len(data) < 1 || len(ctx.accounts) < 2 {
		return ErrInvalidInstructionData
	}
	stakeAcct, voteAcct := ctx.accounts[0], ctx.accounts[1]
	switch data[0] {
	case StakeDelegate:
		if len(data) < 9 {
			return ErrInvalidInstructionData
		}
		amount := binary.LittleEndian.Uint64(data[1:9])
		s := Stake{VoteAccount: ctx.pubkeys[1], Amount: amount, Active: true}
		stakeAcct.Data = marshalStake(s)
		ctx.bank.stakes[ctx.pubkeys[0]] = s
		_ = voteAcct
		return nil
	case StakeDeactivate:
		s, err := unmarshalStake(stakeAcct.Data)
		if err != nil {
			return err
		}
		s.Active = false
		stakeAcct.Data = marshalStake(s)
		ctx.bank.stakes[ctx.pubkeys[0]] = s
		return nil
	}
	return ErrInvalidInstructionData
}

func marshalStake(s Stake) []byte {
	buf := make([]byte, 32+8+1)
	copy(buf[0:32], s.VoteAccount[:])
	binary.LittleEndian.PutUint64(buf[32:40], s.Amount)
	if s.Active {
		buf[40] = 1
	}
	return buf
}

func unmarshalStake(data []byte) (Stake, error) {
	if len(data) < 41 {
		return Stake{}, ErrInvalidInstructionData
	}
	var s Stake
	copy(s.VoteAccount[:], data[0:32])
	s.Amount = binary.LittleEndian.Uint64(data[32:40])
	s.Active = data[40] == 1
	return s, nil
}

// VoteState is the Tower-visible content of a vote account: the
// node's identity and its most recent submitted slot, enough for the
// getVoteAccounts RPC method (spec.md §6).
type VoteState struct {
	NodeID   types.Pubkey
	LastVote uint64
}

// executeVote implements VoteInitialize and VoteVote, writing a
// serialized VoteState into the vote account's Data.
func executeVote(ctx *execContext, data []byte) error {
	if len(data) < 1 || len(ctx.accounts) < 1 {
		return ErrInvalidInstructionData
	}
	voteAcct := ctx.accounts[0]
	switch data[0] {
	case VoteInitialize:
		if len(data) < 33 {
			return ErrInvalidInstructionData
		}
		var vs VoteState
		copy(vs.NodeID[:], data[1:33])
		voteAcct.Data = marshalVoteState(vs)
		return nil
	case VoteVote:
		if len(data) < 9 {
			return ErrInvalidInstructionData
		}
		vs, err := unmarshalVoteState(voteAcct.Data)
		if err != nil {
			return err
		}
		vs.LastVote = binary.LittleEndian.Uint64(data[1:9])
		voteAcct.Data = marshalVoteState(vs)
		return nil
	}
	return ErrInvalidInstructionData
}

func marshalVoteState(vs VoteState) []byte {
	buf := make([]byte, 32+8)
	copy(buf[0:32], vs.NodeID[:])
	binary.LittleEndian.PutUint64(buf[32:40], vs.LastVote)
	return buf
}

func unmarshalVoteState(data []byte) (VoteState, error) {
	if len(data) < 40 {
		return VoteState{}, ErrInvalidInstructionData
	}
	var vs VoteState
	copy(vs.NodeID[:], data[0:32])
	vs.LastVote = binary.LittleEndian.Uint64(data[32:40])
	return vs, nil
}
