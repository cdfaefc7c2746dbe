// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package bankforks maintains the tree of Banks indexed by slot, with
// a single monotonically advancing root (spec.md §4.6).
package bankforks

import (
	"errors"
	"sync"

	"github.com/luxfi/cadence/bank"
)

var (
	// ErrParentNotFound is returned by Insert when the child's parent
	// slot has no corresponding Bank in the tree.
	ErrParentNotFound = errors.New("bankforks: parent slot not present")
	// ErrParentNotFrozen is returned by Insert when the parent Bank has
	// not yet been frozen.
	ErrParentNotFrozen = errors.New("bankforks: parent bank is not frozen")
	// ErrNotAncestor is returned by SetRoot when the candidate slot is
	// not an ancestor of the tracked heaviest fork.
	ErrNotAncestor = errors.New("bankforks: candidate root is not an ancestor of the tracked fork")
	// ErrSlotNotFound is returned when a query names an untracked slot.
	ErrSlotNotFound = errors.New("bankforks: slot not present")
)

// BankForks is the tree of in-flight Banks. Concurrent readers see a
// consistent snapshot of any one Bank; writers to a Bank hold that
// Bank's own lock, never BankForks' lock, once inserted.
type BankForks struct {
	mu    sync.RWMutex
	banks map[uint64]*bank.Bank
	root  uint64
}

// New seeds a BankForks from genesis, the slot-0 root Bank.
func New(genesis *bank.Bank) *BankForks {
	return &BankForks{
		banks: map[uint64]*bank.Bank{genesis.Slot: genesis},
		root:  genesis.Slot,
	}
}

// Insert adds a child Bank to the tree. The child's Parent must
// already be tracked and frozen (spec.md §4.6).
func (f *BankForks) Insert(b *bank.Bank) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if b.Parent == nil {
		return ErrParentNotFound
	}
	if _, ok := f.banks[b.Parent.Slot]; !ok {
		return ErrParentNotFound
	}
	if !b.Parent.IsFrozen() {
		return ErrParentNotFrozen
	}
	f.banks[b.Slot] = b
	return nil
}

// Get returns the tracked Bank for slot, if any.
func (f *BankForks) Get(slot uint64) (*bank.Bank, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	b, ok := f.banks[slot]
	return b, ok
}

// Root returns the current root slot.
func (f *BankForks) Root() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.root
}

// Frontier returns every tracked Bank that has no tracked child,
// the set of working tips Replay Stage may extend.
func (f *BankForks) Frontier() []*bank.Bank {
	f.mu.RLock()
	defer f.mu.RUnlock()
	hasChild := make(map[uint64]bool, len(f.banks))
	for _, b := range f.banks {
		if b.Parent != nil {
			hasChild[b.Parent.Slot] = true
		}
	}
	var out []*bank.Bank
	for slot, b := range f.banks {
		if !hasChild[slot] {
			out = append(out, b)
		}
	}
	return out
}

// SetRoot advances the root to slot: slot must name a tracked Bank
// that is an ancestor of tip (the caller's chosen heaviest fork tip).
// It squashes that Bank and drops every tracked Bank not a descendant
// of the new root (spec.md §4.6).
func (f *BankForks) SetRoot(slot uint64, tip *bank.Bank) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	newRoot, ok := f.banks[slot]
	if !ok {
		return ErrSlotNotFound
	}
	if !isAncestor(newRoot, tip) {
		return ErrNotAncestor
	}

	newRoot.Squash()

	kept := make(map[uint64]*bank.Bank)
	for s, b := range f.banks {
		if s == slot || descendsFrom(b, slot) {
			kept[s] = b
		}
	}
	f.banks = kept
	f.root = slot
	return nil
}

func isAncestor(candidate, tip *bank.Bank) bool {
	for b := tip; b != nil; b = b.Parent {
		if b.Slot == candidate.Slot {
			return true
		}
	}
	return false
}

func descendsFrom(b *bank.Bank, rootSlot uint64) bool {
	for cur := b; cur != nil; cur = cur.Parent {
		if cur.Slot == rootSlot {
			return true
		}
	}
	return false
}
