// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config defines the tunable cluster parameters consumed by
// every stage of the replicated state machine: the PoH clock, the
// epoch/leader schedule, Tower's lockout stack, and Bank's fee and
// rent schedule.
package config

import (
	"math"
	"time"
)

// Error variables for parameter validation.
var (
	ErrHashesPerTickZero    = newErr("hashes per tick must be >= 1")
	ErrTicksPerSlotZero     = newErr("ticks per slot must be >= 1")
	ErrMaxLockoutHistory    = newErr("max lockout history must be >= 1")
	ErrThresholdDepth       = newErr("threshold depth must be < max lockout history")
	ErrThresholdSizeInvalid = newErr("threshold size must be in (0, 1]")
	ErrEpochFinalityInvalid = newErr("epoch finality stake must be in (0.5, 1]")
	ErrMinimumSlotsPerEpoch = newErr("minimum slots per epoch must be >= 1")
)

type paramError string

func (e paramError) Error() string { return string(e) }

func newErr(s string) error { return paramError(s) }

// Parameters defines the tunables of one cluster instance. Field names
// follow spec.md verbatim (HASHES_PER_TICK, TICKS_PER_SLOT, ...).
type Parameters struct {
	// PoH / slot timing (spec.md §3, §4.1).
	HashesPerTick uint64
	TicksPerSlot  uint64

	// Transaction/packet bounds (spec.md §3, §6).
	PacketDataSize           int
	MaxTransactionsPerEntry  int
	MaxRecentBlockhashes     int

	// Leader schedule (spec.md §4.2).
	LeaderScheduleSlotOffset uint64
	MinimumSlotsPerEpoch     uint64
	SlotsPerEpoch            uint64
	FirstNormalEpoch         uint64

	// Shred codec (spec.md §4.3, §6).
	ShredPayloadSize int
	DataShreds       int
	ParityShreds     int

	// Tower (spec.md §4.8).
	MaxLockoutHistory int
	ThresholdDepth    int
	ThresholdSize     float64

	// Rent (spec.md §4.5).
	RentPerByteYear      float64
	RentExemptThreshold  float64
	AccountStorageOverhead uint64

	// EpochFinalityStake is the cluster-wide fraction of stake for
	// epoch-boundary finality, distinct from Tower's MaxLockoutHistory.
	// Left a tunable per spec.md §9 Open Questions. Valid checks its
	// range; no other code reads it, and RPC "max" commitment answers
	// from the BankForks root without consulting it.
	EpochFinalityStake float64

	// LeaderSlotGraceTicks is an extra time allowance, expressed as a
	// tick count, past a slot's nominal end. DefaultParams sets it; no
	// other code reads it.
	LeaderSlotGraceTicks uint64

	// RecordTimeout is the wall-clock time the leader production loop
	// in cmd/validator spreads one tick's HashesPerTick hashes over: it
	// paces each hash at RecordTimeout/HashesPerTick.
	RecordTimeout time.Duration
}

// DefaultParams returns the parameters used by the reference cluster,
// with 12,500 hashes per tick. TestParams lowers HashesPerTick so
// tests run fast.
func DefaultParams() Parameters {
	return Parameters{
		HashesPerTick:            12_500,
		TicksPerSlot:             64,
		PacketDataSize:           1232,
		MaxTransactionsPerEntry:  64,
		MaxRecentBlockhashes:     300,
		LeaderScheduleSlotOffset: 432_000,
		MinimumSlotsPerEpoch:     32,
		SlotsPerEpoch:            432_000,
		FirstNormalEpoch:         14,
		ShredPayloadSize:         1203,
		DataShreds:               32,
		ParityShreds:             32,
		MaxLockoutHistory:        32,
		ThresholdDepth:           8,
		ThresholdSize:            2.0 / 3.0,
		RentPerByteYear:          3.56,
		RentExemptThreshold:      2.0,
		AccountStorageOverhead:   128,
		EpochFinalityStake:       2.0 / 3.0,
		LeaderSlotGraceTicks:     64,
		RecordTimeout:            500 * time.Millisecond,
	}
}

// TestParams returns parameters tuned for fast-running unit tests:
// few hashes per tick, a short slot, and a small Tower history.
func TestParams() Parameters {
	p := DefaultParams()
	p.HashesPerTick = 4
	p.TicksPerSlot = 4
	p.MinimumSlotsPerEpoch = 4
	p.SlotsPerEpoch = 32
	p.FirstNormalEpoch = 2
	p.MaxLockoutHistory = 32
	p.ThresholdDepth = 8
	return p
}

// Valid reports whether p satisfies the structural invariants spec.md
// assumes of every parameter set.
func (p Parameters) Valid() error {
	switch {
	case p.HashesPerTick == 0:
		return ErrHashesPerTickZero
	case p.TicksPerSlot == 0:
		return ErrTicksPerSlotZero
	case p.MaxLockoutHistory < 1:
		return ErrMaxLockoutHistory
	case p.ThresholdDepth >= p.MaxLockoutHistory:
		return ErrThresholdDepth
	case p.ThresholdSize <= 0 || p.ThresholdSize > 1:
		return ErrThresholdSizeInvalid
	case p.EpochFinalityStake <= 0.5 || p.EpochFinalityStake > 1:
		return ErrEpochFinalityInvalid
	case p.MinimumSlotsPerEpoch == 0:
		return ErrMinimumSlotsPerEpoch
	}
	return nil
}

// HashesPerSlot is the total PoH hash count a complete slot must
// contain: HASHES_PER_TICK * TICKS_PER_SLOT (spec.md §3).
func (p Parameters) HashesPerSlot() uint64 {
	return p.HashesPerTick * p.TicksPerSlot
}

// EpochLength returns the number of slots in epoch e, applying the
// warmup rule of spec.md §4.2: MINIMUM_SLOTS_PER_EPOCH * 2^epoch,
// capping at SlotsPerEpoch once e reaches FirstNormalEpoch.
func (p Parameters) EpochLength(epoch uint64) uint64 {
	if epoch >= p.FirstNormalEpoch {
		return p.SlotsPerEpoch
	}
	length := p.MinimumSlotsPerEpoch * (uint64(1) << epoch)
	if length > p.SlotsPerEpoch {
		return p.SlotsPerEpoch
	}
	return length
}

// EpochStartSlot returns the first slot of epoch e, the sum of the
// lengths of every prior epoch.
func (p Parameters) EpochStartSlot(epoch uint64) uint64 {
	var start uint64
	for e := uint64(0); e < epoch; e++ {
		start += p.EpochLength(e)
	}
	return start
}

// SlotToEpoch returns the epoch that owns slot s, and the slot's
// offset within that epoch.
func (p Parameters) SlotToEpoch(s uint64) (epoch, offset uint64) {
	var cursor uint64
	for {
		length := p.EpochLength(epoch)
		if s < cursor+length {
			return epoch, s - cursor
		}
		cursor += length
		epoch++
	}
}

// ExpirationSlot returns the slot at which a Lockout confirmed at
// `slot` with `confirmationCount` expires: slot + 2^confirmationCount
// (spec.md §3 "Lockout").
func ExpirationSlot(slot uint64, confirmationCount uint32) uint64 {
	return slot + uint64(math.Pow(2, float64(confirmationCount)))
}
