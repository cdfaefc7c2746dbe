// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bank

import "errors"

var (
	// ErrAlreadyFrozen is returned by any mutation attempted on a Bank
	// past Freeze; frozen Banks are immutable (spec.md §4.5).
	ErrAlreadyFrozen = errors.New("bank: bank is frozen")
	// ErrBlockhashNotFound is returned when a transaction's
	// recent_blockhash is outside the MaxRecentBlockhashes window.
	ErrBlockhashNotFound = errors.New("bank: recent_blockhash not found in queue")
	// ErrInsufficientFundsForFee names the case of a fee payer that
	// cannot cover the transaction fee. ProcessEntries drops such a
	// transaction without debiting it or recording a status, so no code
	// path in this package returns this error.
	ErrInsufficientFundsForFee = errors.New("bank: fee payer has insufficient funds")
	// ErrInsufficientFunds is returned when a System program transfer
	// or account creation exceeds the source account's balance.
	ErrInsufficientFunds = errors.New("bank: insufficient lamports")
	// ErrDuplicateSignature names a transaction whose signature already
	// appears in status_cache (a replay of an already-processed
	// transaction). ProcessEntries skips such a transaction without
	// recording anything, so no code path in this package returns it.
	ErrDuplicateSignature = errors.New("bank: duplicate transaction signature")
	// ErrWriteConflictOnReadonly is recorded in status_cache when, after
	// a transaction's instructions execute, an account not marked
	// writable (other than the fee payer) has changed.
	ErrWriteConflictOnReadonly = errors.New("bank: instruction writes a readonly account")
	// ErrUnknownProgram is returned when an instruction's program_id
	// does not resolve to a known, executable program account.
	ErrUnknownProgram = errors.New("bank: unknown or non-executable program")
	// ErrAccountNotOwned names a program mutating data or debiting
	// lamports on an account it does not own. Instruction execution
	// does not check account ownership, so no code path in this package
	// returns it.
	ErrAccountNotOwned = errors.New("bank: program does not own account")
	// ErrLamportBalanceViolated is returned when instruction execution
	// would change the sum of lamports across a transaction's account
	// set by anything other than the fee burned.
	ErrLamportBalanceViolated = errors.New("bank: instruction execution changed total lamports")
	// ErrParentNotFrozen is returned by NewFromParent when the parent
	// Bank has not yet been frozen.
	ErrParentNotFrozen = errors.New("bank: parent bank is not frozen")
	// ErrPoHLinkInvalid is returned when an Entry's hash does not chain
	// from the bank's current tick hash.
	ErrPoHLinkInvalid = errors.New("bank: entry does not extend PoH chain")
)
