// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bank

import (
	"sync"

	"github.com/luxfi/cadence/config"
	"github.com/luxfi/cadence/crypto"
	"github.com/luxfi/cadence/poh"
	"github.com/luxfi/cadence/types"
)

// Bank is one fork's in-memory account state (spec.md §3 "Bank").
// Reads traverse the parent chain (copy-on-write); writes are
// confined to this Bank's own delta until Squash collapses them.
type Bank struct {
	mu sync.RWMutex

	params config.Parameters

	Slot       uint64
	Parent     *Bank
	TickHeight uint64
	Leader     types.Pubkey

	blockhashQueue []types.Hash
	accountsDelta  map[types.Pubkey]*Account
	statusCache    map[types.Signature]error
	stakes         map[types.Pubkey]Stake

	currentTickHash types.Hash
	frozen          bool
	bankHash        types.Hash

	rentCollectedSlot map[types.Pubkey]uint64
}

// NewGenesisBank constructs slot 0, seeded with genesisHash as both the
// tick-chain seed and the sole entry of the blockhash queue.
func NewGenesisBank(params config.Parameters, genesisHash types.Hash, accounts map[types.Pubkey]*Account) *Bank {
	delta := make(map[types.Pubkey]*Account, len(accounts))
	for k, v := range accounts {
		delta[k] = v.Clone()
	}
	return &Bank{
		params:            params,
		Slot:               0,
		blockhashQueue:     []types.Hash{genesisHash},
		accountsDelta:      delta,
		statusCache:        make(map[types.Signature]error),
		stakes:             make(map[types.Pubkey]Stake),
		currentTickHash:    genesisHash,
		rentCollectedSlot:  make(map[types.Pubkey]uint64),
	}
}

// NewFromParent allocates a child Bank: an empty delta layered
// copy-on-write atop parent, which must already be frozen (spec.md
// §4.5 "new_from_parent").
func NewFromParent(parent *Bank, slot uint64, leader types.Pubkey) (*Bank, error) {
	parent.mu.RLock()
	defer parent.mu.RUnlock()
	if !parent.frozen {
		return nil, ErrParentNotFrozen
	}
	return &Bank{
		params:            parent.params,
		Slot:               slot,
		Parent:             parent,
		Leader:             leader,
		blockhashQueue:     append([]types.Hash{}, parent.blockhashQueue...),
		accountsDelta:      make(map[types.Pubkey]*Account),
		statusCache:        make(map[types.Signature]error),
		stakes:             cloneStakes(parent.stakes),
		currentTickHash:    parent.currentTickHash,
		rentCollectedSlot:  make(map[types.Pubkey]uint64),
	}, nil
}

func cloneStakes(in map[types.Pubkey]Stake) map[types.Pubkey]Stake {
	out := make(map[types.Pubkey]Stake, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// GetAccount returns the account for key, traversing the parent chain
// copy-on-write until a delta entry is found.
func (b *Bank) GetAccount(key types.Pubkey) *Account {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.getAccountLocked(key)
}

func (b *Bank) getAccountLocked(key types.Pubkey) *Account {
	for bk := b; bk != nil; bk = bk.Parent {
		if bk == b {
			if a, ok := bk.accountsDelta[key]; ok {
				return a
			}
			continue
		}
		bk.mu.RLock()
		a, ok := bk.accountsDelta[key]
		bk.mu.RUnlock()
		if ok {
			return a
		}
	}
	return nil
}

// Stakes returns a snapshot of the current stake table, the input to
// leader.Compute and Tower's stake-weighted threshold checks.
func (b *Bank) Stakes() map[types.Pubkey]Stake {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return cloneStakes(b.stakes)
}

// HasRecentBlockhash reports whether hash is within the
// MaxRecentBlockhashes sliding window.
func (b *Bank) HasRecentBlockhash(hash types.Hash) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, h := range b.blockhashQueue {
		if h == hash {
			return true
		}
	}
	return false
}

// RegisterTick advances the tick chain by one PoH tick, recording
// tickHash as the current tick hash. It does not touch the blockhash
// queue; Freeze pushes the slot's bank hash into it.
func (b *Bank) RegisterTick(tickHash types.Hash) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.currentTickHash = tickHash
	b.TickHeight++
}

// pushBlockhash records a new recent blockhash, trimming the window to
// MaxRecentBlockhashes entries.
func (b *Bank) pushBlockhash(h types.Hash) {
	b.blockhashQueue = append(b.blockhashQueue, h)
	if len(b.blockhashQueue) > b.params.MaxRecentBlockhashes {
		b.blockhashQueue = b.blockhashQueue[len(b.blockhashQueue)-b.params.MaxRecentBlockhashes:]
	}
}

// ProcessEntries verifies entries' PoH linkage against the bank's tick
// chain and executes every enclosed transaction in order (spec.md
// §4.5 "process_entries").
func (b *Bank) ProcessEntries(entries []poh.Entry, decode func([]byte) (*SanitizedTransaction, error)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frozen {
		return ErrAlreadyFrozen
	}

	if err := poh.VerifyChain(b.currentTickHash, entries); err != nil {
		return ErrPoHLinkInvalid
	}

	for _, e := range entries {
		if len(e.Transactions) == 0 {
			b.currentTickHash = e.Hash
			b.TickHeight++
			continue
		}
		for _, raw := range e.Transactions {
			stx, err := decode(raw)
			if err != nil {
				return err
			}
			b.processTransactionLocked(stx)
		}
		b.currentTickHash = e.Hash
	}
	return nil
}

// SanitizedTransaction is a Transaction that has passed sanitize and
// signature verification, ready for execution.
type SanitizedTransaction struct {
	Signature  types.Signature
	FeePayer   types.Pubkey
	Message    SanitizedMessage
}

// SanitizedMessage is the subset of a decoded Message execution needs.
type SanitizedMessage struct {
	RecentBlockhash types.Hash
	AccountKeys     []types.Pubkey
	Writable        []bool
	Instructions    []SanitizedInstruction
}

// SanitizedInstruction mirrors txn.Instruction after account-index
// resolution.
type SanitizedInstruction struct {
	ProgramIDIndex uint8
	AccountIndices []uint8
	Data           []byte
}

const transactionFee = 5000

// processTransactionLocked executes one transaction against the
// bank's delta, reverting on any instruction error while still
// consuming the fee (spec.md §4.5 steps 3-6). Caller holds b.mu.
func (b *Bank) processTransactionLocked(tx *SanitizedTransaction) {
	if _, seen := b.statusCache[tx.Signature]; seen {
		return
	}
	recent := false
	for _, h := range b.blockhashQueue {
		if h == tx.Message.RecentBlockhash {
			recent = true
			break
		}
	}
	if !recent {
		b.statusCache[tx.Signature] = ErrBlockhashNotFound
		return
	}

	payer := b.getAccountLocked(tx.FeePayer)
	if payer == nil || payer.Lamports < transactionFee {
		// The fee itself was never debited, so the transaction never
		// entered the ledger; leave statusCache untouched so a later
		// attempt (once funded) is not mistaken for a replay.
		return
	}

	// Snapshot pre-state for every referenced account so a reverted
	// instruction error leaves no partial writes, but the fee still sticks.
	working := make(map[types.Pubkey]*Account, len(tx.Message.AccountKeys))
	var preLamports uint64
	for _, k := range tx.Message.AccountKeys {
		a := b.getAccountLocked(k)
		if a == nil {
			a = &Account{}
		}
		working[k] = a.Clone()
		preLamports += a.Lamports
	}

	working[tx.FeePayer].Lamports -= transactionFee

	err := executeInstructions(b, working, tx.Message)
	if err == nil {
		var postLamports uint64
		for _, a := range working {
			postLamports += a.Lamports
		}
		if postLamports+transactionFee != preLamports {
			err = ErrLamportBalanceViolated
		}
	}
	if err == nil {
		for i, k := range tx.Message.AccountKeys {
			if tx.Message.Writable[i] || k == tx.FeePayer {
				continue
			}
			before := b.getAccountLocked(k)
			if before == nil {
				before = &Account{}
			}
			if !accountsEqual(before, working[k]) {
				err = ErrWriteConflictOnReadonly
				break
			}
		}
	}

	if err != nil {
		// revert: commit only the fee deduction.
		feePayer := b.getAccountLocked(tx.FeePayer).Clone()
		feePayer.Lamports -= transactionFee
		b.accountsDelta[tx.FeePayer] = feePayer
		b.statusCache[tx.Signature] = err
		return
	}

	for k, a := range working {
		b.accountsDelta[k] = a
	}
	b.statusCache[tx.Signature] = nil
}

func accountsEqual(a, b *Account) bool {
	if a.Lamports != b.Lamports || a.Owner != b.Owner || a.Executable != b.Executable || len(a.Data) != len(b.Data) {
		return false
	}
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			return false
		}
	}
	return true
}

func executeInstructions(b *Bank, working map[types.Pubkey]*Account, msg SanitizedMessage) error {
	for _, ix := range msg.Instructions {
		programID := msg.AccountKeys[ix.ProgramIDIndex]
		handler, ok := builtins[programID]
		if !ok {
			return ErrUnknownProgram
		}
		ctx := &execContext{bank: b}
		for _, idx := range ix.AccountIndices {
			key := msg.AccountKeys[idx]
			ctx.accounts = append(ctx.accounts, working[key])
			ctx.pubkeys = append(ctx.pubkeys, key)
		}
		if err := handler(ctx, ix.Data); err != nil {
			return err
		}
	}
	return nil
}

// VerifySignatures checks every signature in sigs against msg and the
// corresponding signer pubkeys (spec.md §4.5 step 2).
func VerifySignatures(pubkeys []types.Pubkey, msg []byte, sigs []types.Signature) error {
	msgs := make([][]byte, len(sigs))
	for i := range msgs {
		msgs[i] = msg
	}
	return crypto.VerifyBatch(pubkeys[:len(sigs)], msgs, sigs)
}

// Freeze computes the bank_hash over the accounts delta and the
// slot's last entry hash, and marks the Bank immutable (spec.md §4.5).
func (b *Bank) Freeze() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frozen {
		return
	}
	b.collectRentLocked()
	b.bankHash = b.computeBankHashLocked()
	b.pushBlockhash(b.bankHash)
	b.frozen = true
}

// IsFrozen reports whether Freeze has been called.
func (b *Bank) IsFrozen() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.frozen
}

// BankHash returns the frozen bank's hash.
func (b *Bank) BankHash() types.Hash {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bankHash
}

// SignatureStatus reports whether sig has already been processed by
// this Bank (or an ancestor it was delta-inherited from isn't tracked
// here; callers traverse forks for older history), and the execution
// error it recorded, if any. The RPC facade's getSignatureStatus reads
// this directly.
func (b *Bank) SignatureStatus(sig types.Signature) (err error, found bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	err, found = b.statusCache[sig]
	return err, found
}

func (b *Bank) computeBankHashLocked() types.Hash {
	h := b.currentTickHash
	for k, a := range b.accountsDelta {
		h = types.ExtendHash(h, k[:])
		h = types.ExtendHash(h, a.Data)
	}
	return h
}

// Squash collapses this Bank's ancestor chain into itself, dropping
// sibling ancestors, performed when this Bank becomes the BankForks
// root (spec.md §4.5, §4.6).
func (b *Bank) Squash() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for p := b.Parent; p != nil; p = p.Parent {
		p.mu.RLock()
		for k, a := range p.accountsDelta {
			if _, ok := b.accountsDelta[k]; !ok {
				b.accountsDelta[k] = a
			}
		}
		p.mu.RUnlock()
	}
	b.Parent = nil
}

// collectRentLocked charges rent on every account touched this slot,
// per spec.md §4.5 "Rent". Accounts above RentExemptThreshold years of
// prepaid rent are exempted; others are decremented accordingly.
func (b *Bank) collectRentLocked() {
	const secondsPerYear = 365.25 * 24 * 60 * 60
	slotSeconds := float64(b.params.HashesPerSlot()) / 1 // placeholder unit: hashes approximate elapsed ticks
	elapsedYears := slotSeconds / secondsPerYear

	for key, a := range b.accountsDelta {
		if a.Executable {
			continue
		}
		storageBytes := float64(len(a.Data)) + float64(b.params.AccountStorageOverhead)
		exemptMinimum := storageBytes * b.params.RentPerByteYear * b.params.RentExemptThreshold
		if float64(a.Lamports) >= exemptMinimum {
			continue
		}
		rentDue := uint64(storageBytes * b.params.RentPerByteYear * elapsedYears)
		if rentDue > a.Lamports {
			rentDue = a.Lamports
		}
		a.Lamports -= rentDue
		a.RentEpoch++
		b.accountsDelta[key] = a
		b.rentCollectedSlot[key] = b.Slot
	}
}
