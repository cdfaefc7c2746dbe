// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package shred implements the on-wire ledger fragment format: fixed
// size data shreds, Reed-Solomon parity shreds, and leader-signature
// verification (spec.md §4.3).
package shred

import (
	"encoding/binary"
	"errors"

	"github.com/klauspost/reedsolomon"
	"github.com/luxfi/cadence/crypto"
	"github.com/luxfi/cadence/types"
)

// Flag bits carried in a Shred's Flags byte.
const (
	FlagLastInSlot byte = 1 << iota
)

var (
	// ErrBadSignature names a shred whose leader signature does not
	// verify against the scheduled leader's public key. Shred.Verify
	// reports that case as false; no function in this package returns
	// this error.
	ErrBadSignature = errors.New("shred: signature does not match scheduled leader")
	// ErrInsufficientShreds is returned when fewer than DataShreds of a
	// FEC set are available for reconstruction.
	ErrInsufficientShreds = errors.New("shred: insufficient shreds for reconstruction")
	// ErrPayloadTooLarge is returned by Split when an encoded entry
	// batch does not fit in the data shreds of one FEC set.
	ErrPayloadTooLarge = errors.New("shred: payload exceeds shred size")
)

// Shred is a fixed-size fragment of one slot's entry stream
// (spec.md §3 "Shred").
type Shred struct {
	Slot              uint64
	IndexWithinSlot    uint32
	ParentOffset      uint16
	Flags             byte
	Payload           []byte
	LeaderSignature   types.Signature
}

// SigningBytes returns the bytes the leader signs: everything but the
// signature itself.
func (s *Shred) SigningBytes() []byte {
	buf := make([]byte, 0, 8+4+2+1+len(s.Payload))
	var slotBytes [8]byte
	binary.BigEndian.PutUint64(slotBytes[:], s.Slot)
	buf = append(buf, slotBytes[:]...)
	var idxBytes [4]byte
	binary.BigEndian.PutUint32(idxBytes[:], s.IndexWithinSlot)
	buf = append(buf, idxBytes[:]...)
	var offBytes [2]byte
	binary.BigEndian.PutUint16(offBytes[:], s.ParentOffset)
	buf = append(buf, offBytes[:]...)
	buf = append(buf, s.Flags)
	buf = append(buf, s.Payload...)
	return buf
}

// Sign signs the shred with the scheduled leader's keypair.
func (s *Shred) Sign(kp *crypto.Keypair) {
	s.LeaderSignature = kp.Sign(s.SigningBytes())
}

// Verify reports whether the shred's signature matches leader.
func (s *Shred) Verify(leader types.Pubkey) bool {
	return crypto.Verify(leader, s.SigningBytes(), s.LeaderSignature)
}

// FECSet is one forward-error-correction group: DataShreds data
// shreds and their ParityShreds parity shreds. Any DataShreds of the
// total suffice to reconstruct every data shred.
type FECSet struct {
	Slot         uint64
	StartIndex   uint32
	DataShreds   []*Shred
	ParityShreds []*Shred
}

// Split splits a slot's serialized entry batch into fixed-size data
// shreds of payloadSize bytes and produces parity shreds using
// Reed-Solomon erasure coding, per spec.md §4.3 and SPEC_FULL.md's
// domain-stack wiring of klauspost/reedsolomon. lastInSlot marks the
// final FECSet of the slot, fixing SlotMeta.last_index.
func Split(slot uint64, startIndex uint32, data []byte, payloadSize, dataShredCount, parityShredCount int, lastInSlot bool) (*FECSet, error) {
	if len(data) > payloadSize*dataShredCount {
		return nil, ErrPayloadTooLarge
	}
	chunks := chunk(data, payloadSize, dataShredCount)

	enc, err := reedsolomon.New(dataShredCount, parityShredCount)
	if err != nil {
		return nil, err
	}
	shards := make([][]byte, dataShredCount+parityShredCount)
	for i, c := range chunks {
		shards[i] = c
	}
	for i := dataShredCount; i < len(shards); i++ {
		shards[i] = make([]byte, payloadSize)
	}
	if err := enc.Encode(shards); err != nil {
		return nil, err
	}

	set := &FECSet{Slot: slot, StartIndex: startIndex}
	for i := 0; i < dataShredCount; i++ {
		flags := byte(0)
		if lastInSlot && i == dataShredCount-1 {
			flags |= FlagLastInSlot
		}
		set.DataShreds = append(set.DataShreds, &Shred{
			Slot:            slot,
			IndexWithinSlot: startIndex + uint32(i),
			Payload:         shards[i],
			Flags:           flags,
		})
	}
	for i := 0; i < parityShredCount; i++ {
		set.ParityShreds = append(set.ParityShreds, &Shred{
			Slot:            slot,
			IndexWithinSlot: startIndex + uint32(dataShredCount+i),
			Payload:         shards[dataShredCount+i],
		})
	}
	return set, nil
}

func chunk(data []byte, size, count int) [][]byte {
	out := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		start := i * size
		if start >= len(data) {
			out = append(out, make([]byte, size))
			continue
		}
		end := start + size
		c := make([]byte, size)
		if end > len(data) {
			copy(c, data[start:])
		} else {
			copy(c, data[start:end])
		}
		out = append(out, c)
	}
	return out
}

// Reconstruct rebuilds every data shred of the FEC set given at least
// dataShredCount of the set's shreds (data or parity, in any mix);
// missing entries in shreds must be nil.
func Reconstruct(shreds []*Shred, dataShredCount, parityShredCount, payloadSize int) ([][]byte, error) {
	present := 0
	shards := make([][]byte, dataShredCount+parityShredCount)
	for i, s := range shreds {
		if s != nil {
			shards[i] = s.Payload
			present++
		}
	}
	if present < dataShredCount {
		return nil, ErrInsufficientShreds
	}

	enc, err := reedsolomon.New(dataShredCount, parityShredCount)
	if err != nil {
		return nil, err
	}
	if err := enc.Reconstruct(shards); err != nil {
		return nil, err
	}
	return shards[:dataShredCount], nil
}
