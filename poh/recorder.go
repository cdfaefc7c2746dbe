// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package poh implements the Proof-of-History recorder: the
// verifiable-delay hash chain that orders and times every Entry in a
// slot (spec.md §4.1).
package poh

import (
	"errors"
	"sync"
	"time"

	"github.com/luxfi/cadence/config"
	"github.com/luxfi/cadence/metrics"
	"github.com/luxfi/cadence/types"
)

// ErrMaxHeightReached is returned by Record when the recorder's slot
// has already expired; the caller's transactions are returned
// unexecuted for retry against the next leader slot.
var ErrMaxHeightReached = errors.New("poh: max height reached for this slot")

// ErrTruncatedEntryBatch is returned by DecodeEntries when raw is
// shorter than its own length header claims, the shape a partially
// repaired slot's shred payload takes.
var ErrTruncatedEntryBatch = errors.New("poh: truncated entry batch")

// Entry is one PoH output: either a Tick Entry (Transactions empty) or
// a record Entry folding a transaction batch's Merkle root into the
// hash chain.
type Entry struct {
	NumHashes    uint64
	Hash         types.Hash
	Transactions [][]byte // opaque serialized Transactions, for the Merkle root
}

// Recorder maintains (current_hash, hashes_since_last_record,
// tick_count) and emits the Entry stream for the slot it currently
// holds leadership over.
type Recorder struct {
	mu sync.Mutex

	params config.Parameters

	currentHash          types.Hash
	hashesSinceLastEntry uint64
	tickCount            uint64
	slotExpired          bool

	entries []Entry

	// metrics is nil until WithMetrics attaches a collector set; every
	// call site below nil-checks it first, the same guard the corpus's
	// averager uses for its optional prometheus fields.
	metrics *metrics.PoHMetrics
}

// NewRecorder starts a recorder chained from seed, the hash of the
// parent slot's final tick (or the genesis hash, for slot 0).
func NewRecorder(params config.Parameters, seed types.Hash) *Recorder {
	return &Recorder{params: params, currentHash: seed}
}

// WithMetrics attaches m to the recorder; Tick and Record report into
// it from that point on. Returns the recorder for chaining. Passing no
// metrics (the default for every unit test) leaves Tick/Record
// fully functional, just unobserved.
func (r *Recorder) WithMetrics(m *metrics.PoHMetrics) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = m
	return r
}

// Reset hard-sets the clock to (toHash, toTick), performed when this
// node becomes leader atop a (possibly different) parent fork.
func (r *Recorder) Reset(toHash types.Hash, toTick uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentHash = toHash
	r.tickCount = toTick
	r.hashesSinceLastEntry = 0
	r.slotExpired = false
	r.entries = nil
}

// Tick executes one hash step. When hashesSinceLastEntry reaches
// HashesPerTick, it emits a Tick Entry and increments tickCount. Once
// tickCount reaches TicksPerSlot the recorder's slot is expired and
// further Record calls fail.
func (r *Recorder) Tick() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hash()
	r.hashesSinceLastEntry++
	if r.metrics != nil {
		r.metrics.HashesSinceRecord.Set(float64(r.hashesSinceLastEntry))
	}
	if r.hashesSinceLastEntry < r.params.HashesPerTick {
		return
	}
	r.entries = append(r.entries, Entry{NumHashes: r.hashesSinceLastEntry, Hash: r.currentHash})
	r.hashesSinceLastEntry = 0
	r.tickCount++
	if r.metrics != nil {
		r.metrics.TicksProduced.Inc()
		r.metrics.HashesSinceRecord.Set(0)
	}
	if r.tickCount >= r.params.TicksPerSlot {
		r.slotExpired = true
	}
}

// Record folds a Merkle root of txs into the current hash (one extra
// hash beyond the per-tick schedule) and emits a non-tick Entry
// carrying the accumulated hash count. It accepts at most
// MaxTransactionsPerEntry transactions, returning the overflow to the
// caller for retry next tick.
func (r *Recorder) Record(txs [][]byte) (accepted, rejected [][]byte, err error) {
	start := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	defer func() {
		if r.metrics != nil {
			r.metrics.RecordLatency.Observe(time.Since(start).Seconds())
		}
	}()

	if r.slotExpired {
		return nil, txs, ErrMaxHeightReached
	}

	max := r.params.MaxTransactionsPerEntry
	if len(txs) > max {
		accepted, rejected = txs[:max], txs[max:]
	} else {
		accepted, rejected = txs, nil
	}

	root := merkleRoot(accepted)
	r.currentHash = types.ExtendHash(r.currentHash, root[:])
	r.hashesSinceLastEntry++

	r.entries = append(r.entries, Entry{
		NumHashes:    r.hashesSinceLastEntry,
		Hash:         r.currentHash,
		Transactions: accepted,
	})
	r.hashesSinceLastEntry = 0
	if r.metrics != nil {
		r.metrics.HashesSinceRecord.Set(0)
	}
	return accepted, rejected, nil
}

// Drain returns and clears the Entry stream accumulated since the last
// Drain or Reset, handing it to the banking pipeline for shredding.
func (r *Recorder) Drain() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.entries
	r.entries = nil
	return out
}

// CurrentHash returns the recorder's current hash without advancing it.
func (r *Recorder) CurrentHash() types.Hash {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentHash
}

func (r *Recorder) hash() {
	r.currentHash = types.IterateHash(r.currentHash, 1)
}

// merkleRoot computes a simple balanced binary Merkle root over txs,
// hashing the empty-batch case to the zero hash.
func merkleRoot(txs [][]byte) types.Hash {
	if len(txs) == 0 {
		return types.Hash{}
	}
	level := make([]types.Hash, len(txs))
	for i, tx := range txs {
		level[i] = types.HashBytes(tx)
	}
	for len(level) > 1 {
		next := make([]types.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, types.ExtendHash(level[i], level[i+1][:]))
			} else {
				next = append(next, level[i])
			}
		}
		level = next
	}
	return level[0]
}

// VerifyChain checks that entries form a complete, dense PoH sequence
// starting from seed: each entry's hash equals iterating the chain by
// its NumHashes (for a tick entry) or NumHashes-1 ticks plus one
// transaction-batch fold (for a record entry).
func VerifyChain(seed types.Hash, entries []Entry) error {
	cur := seed
	for _, e := range entries {
		if len(e.Transactions) == 0 {
			cur = types.IterateHash(cur, e.NumHashes)
		} else {
			if e.NumHashes == 0 {
				return errInvalidChain
			}
			cur = types.IterateHash(cur, e.NumHashes-1)
			root := merkleRoot(e.Transactions)
			cur = types.ExtendHash(cur, root[:])
		}
		if cur != e.Hash {
			return errInvalidChain
		}
	}
	return nil
}

var errInvalidChain = errors.New("poh: hash chain does not verify")
