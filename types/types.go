// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package types defines the scalar domain types shared by every stage
// of the replicated state machine: hashes, public keys, signatures and
// the Slot/Tick/Lamport counters that index the ledger.
package types

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"github.com/luxfi/ids"
)

// Hash is a 32-byte opaque digest. It is modeled on ids.ID so that
// every hash in the system is directly comparable and map-keyable.
type Hash = ids.ID

// Pubkey is a 32-byte Ed25519 public key.
type Pubkey = ids.ID

// Signature is a 64-byte Ed25519 signature.
type Signature [64]byte

// Slot is the monotonic index of a leader time-slice.
type Slot uint64

// Tick counts PoH hash emissions within a slot.
type Tick uint64

// Lamport is the smallest unit of the native token.
type Lamport uint64

var ErrWrongLength = errors.New("types: wrong byte length")

// HashBytes returns the SHA-256 digest of b as a Hash.
func HashBytes(b []byte) Hash {
	return Hash(sha256.Sum256(b))
}

// ExtendHash returns H(prev || suffix), the basic PoH/entry mixing step.
func ExtendHash(prev Hash, suffix []byte) Hash {
	h := sha256.New()
	h.Write(prev[:])
	h.Write(suffix)
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// IterateHash applies SHA-256 to prev n times in sequence, the PoH
// tick primitive: H^n(prev).
func IterateHash(prev Hash, n uint64) Hash {
	cur := prev
	for i := uint64(0); i < n; i++ {
		cur = sha256.Sum256(cur[:])
	}
	return cur
}

// PubkeyFromBytes parses a 32-byte Ed25519 public key.
func PubkeyFromBytes(b []byte) (Pubkey, error) {
	if len(b) != 32 {
		return Pubkey{}, ErrWrongLength
	}
	return ids.ToID(b)
}

// SignatureFromBytes parses a 64-byte Ed25519 signature.
func SignatureFromBytes(b []byte) (Signature, error) {
	var sig Signature
	if len(b) != len(sig) {
		return sig, ErrWrongLength
	}
	copy(sig[:], b)
	return sig, nil
}

// Bytes returns the big-endian encoding of the slot, used as a sort
// key for column-family storage (so a byte-lexicographic scan equals
// a numeric scan).
func (s Slot) Bytes() []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(s))
	return b[:]
}

// NodeID identifies a cluster member's networking/consensus identity,
// distinct from any of its role-specific Pubkeys (identity vs. vote
// key), matching the corpus's NodeID-is-derived-from-key convention.
type NodeID = ids.NodeID

// NodeIDFromPubkey derives a NodeID from a raw Pubkey, the same way
// the corpus derives a 20-byte NodeID from a staking certificate.
func NodeIDFromPubkey(pk Pubkey) NodeID {
	digest := sha256.Sum256(pk[:])
	nodeID, _ := ids.ToNodeID(digest[:20])
	return nodeID
}
