// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package crypto implements the Ed25519 signing primitives used to
// authenticate transactions, vote messages and leader-signed shreds.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"

	"github.com/luxfi/cadence/types"
)

var (
	// ErrInvalidSignature is returned when a signature fails to verify
	// against the claimed public key and message.
	ErrInvalidSignature = errors.New("crypto: invalid signature")
	// ErrInvalidPublicKey is returned when a byte slice cannot be
	// interpreted as an Ed25519 public key, and by KeypairFromSeed for
	// a seed that is not 32 bytes long.
	ErrInvalidPublicKey = errors.New("crypto: invalid public key length")
)

// Keypair holds an Ed25519 identity: the signing key plus its derived
// public key, the validator's on-chain Pubkey.
type Keypair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateKeypair creates a new random identity, the Go analogue of
// the corpus's staking-certificate generation step.
func GenerateKeypair() (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Keypair{Public: pub, Private: priv}, nil
}

// KeypairFromSeed derives a deterministic Keypair from a 32-byte
// Ed25519 seed, the path a validator's persisted identity file is
// loaded through at startup.
func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, ErrInvalidPublicKey
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Keypair{Public: priv.Public().(ed25519.PublicKey), Private: priv}, nil
}

// Pubkey returns the keypair's public key as the domain's Pubkey type.
func (k *Keypair) Pubkey() types.Pubkey {
	pk, _ := types.PubkeyFromBytes(k.Public)
	return pk
}

// Sign signs msg, returning the domain Signature type.
func (k *Keypair) Sign(msg []byte) types.Signature {
	raw := ed25519.Sign(k.Private, msg)
	var sig types.Signature
	copy(sig[:], raw)
	return sig
}

// Verify reports whether sig is a valid Ed25519 signature of msg under
// pubkey. This is the single chokepoint Bank's sanitize step and the
// shred codec's leader-signature check both go through.
func Verify(pubkey types.Pubkey, msg []byte, sig types.Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(pubkey[:]), msg, sig[:])
}

// VerifyBatch verifies every (pubkey, msg, sig) triple, short-circuiting
// on the first failure. bank.VerifySignatures calls this once per
// transaction, covering all of that transaction's signatures.
func VerifyBatch(pubkeys []types.Pubkey, msgs [][]byte, sigs []types.Signature) error {
	if len(pubkeys) != len(msgs) || len(msgs) != len(sigs) {
		return errors.New("crypto: mismatched batch lengths")
	}
	for i := range pubkeys {
		if !Verify(pubkeys[i], msgs[i], sigs[i]) {
			return ErrInvalidSignature
		}
	}
	return nil
}
