// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package bank implements the single-fork in-memory account-state
// machine: copy-on-write account deltas, transaction sanitization and
// execution, rent collection, and the built-in System/Vote/Stake
// programs (spec.md §4.5).
package bank

import "github.com/luxfi/cadence/types"

// Account is the on-chain state of one Pubkey (spec.md §3 "Account").
// Owner names the program that owns the account. Bank does not check
// Owner when a built-in program writes Data or moves Lamports.
type Account struct {
	Lamports   uint64
	Owner      types.Pubkey
	Data       []byte
	Executable bool
	RentEpoch  uint64
}

// Clone returns a deep copy, used whenever a transaction's working set
// is loaded into a fresh delta so reverts cannot observe partial writes.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	data := make([]byte, len(a.Data))
	copy(data, a.Data)
	return &Account{Lamports: a.Lamports, Owner: a.Owner, Data: data, Executable: a.Executable, RentEpoch: a.RentEpoch}
}
