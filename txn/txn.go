// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txn

import (
	"errors"

	"github.com/luxfi/cadence/types"
)

// MaxPacketSize is PACKET_DATA_SIZE, the largest a serialized
// Transaction may be (spec.md §3, §6).
const MaxPacketSize = 1232

var (
	// ErrPacketTooLarge is returned when a serialized transaction
	// exceeds MaxPacketSize.
	ErrPacketTooLarge = errors.New("txn: serialized transaction exceeds packet size")
	// ErrNoSignatures is returned when a transaction carries zero
	// signatures; every transaction must be signed by at least its fee payer.
	ErrNoSignatures = errors.New("txn: transaction has no signatures")
	// ErrAccountIndexOOB is returned when an instruction references an
	// account_keys index outside the message's account table.
	ErrAccountIndexOOB = errors.New("txn: instruction account index out of bounds")
	// ErrProgramIndexOOB is returned when an instruction's program_id_index
	// is outside the message's account table.
	ErrProgramIndexOOB = errors.New("txn: instruction program index out of bounds")
)

// Header partitions Message.AccountKeys into four zones: writable
// signers, read-only signers, writable non-signers, and read-only
// non-signers (spec.md §3 "Transaction").
type Header struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// Instruction references one program invocation within a Message: the
// program to invoke, the accounts it may touch, and opaque call data.
type Instruction struct {
	ProgramIDIndex uint8
	AccountIndices []uint8
	Data           []byte
}

// Message is the unsigned body of a Transaction: the account table,
// the anti-replay blockhash, and the ordered instruction list.
type Message struct {
	Header          Header
	AccountKeys     []types.Pubkey
	RecentBlockhash types.Hash
	Instructions    []Instruction
}

// Transaction is a signed Message: one signature per entry in
// AccountKeys[0:Header.NumRequiredSignatures], ordered to match.
type Transaction struct {
	Signatures []types.Signature
	Message    Message
}

// IsWritable reports whether the account at index i of m.AccountKeys
// may be mutated by this transaction's instructions.
func (m *Message) IsWritable(i int) bool {
	numSigned := int(m.Header.NumRequiredSignatures)
	numAccounts := len(m.AccountKeys)
	if i < numSigned {
		return i < numSigned-int(m.Header.NumReadonlySignedAccounts)
	}
	return i < numAccounts-int(m.Header.NumReadonlyUnsignedAccounts)
}

// IsSigner reports whether the account at index i must supply a
// signature verified against Transaction.Signatures[i].
func (m *Message) IsSigner(i int) bool {
	return i < int(m.Header.NumRequiredSignatures)
}

// FeePayer is the account responsible for this transaction's fee: by
// convention, account_keys[0].
func (m *Message) FeePayer() types.Pubkey {
	if len(m.AccountKeys) == 0 {
		return types.Pubkey{}
	}
	return m.AccountKeys[0]
}

// Validate checks the structural invariants of a Message independent
// of any Bank state: every instruction's program and account indices
// must resolve within AccountKeys.
func (m *Message) Validate() error {
	n := len(m.AccountKeys)
	for _, ix := range m.Instructions {
		if int(ix.ProgramIDIndex) >= n {
			return ErrProgramIndexOOB
		}
		for _, a := range ix.AccountIndices {
			if int(a) >= n {
				return ErrAccountIndexOOB
			}
		}
	}
	return nil
}

// Marshal serializes t into the wire format: shortvec signature count,
// raw signatures, then the serialized Message (spec.md §6).
func (t *Transaction) Marshal() ([]byte, error) {
	if len(t.Signatures) == 0 {
		return nil, ErrNoSignatures
	}
	buf := make([]byte, 0, 128)
	var err error
	buf, err = putShortvec(buf, len(t.Signatures))
	if err != nil {
		return nil, err
	}
	for _, sig := range t.Signatures {
		buf = append(buf, sig[:]...)
	}
	msgBytes, err := t.Message.Marshal()
	if err != nil {
		return nil, err
	}
	buf = append(buf, msgBytes...)
	if len(buf) > MaxPacketSize {
		return nil, ErrPacketTooLarge
	}
	return buf, nil
}

// Marshal serializes the message body: header, account key table,
// recent blockhash, then the instruction list.
func (m *Message) Marshal() ([]byte, error) {
	buf := make([]byte, 0, 128)
	buf = append(buf, m.Header.NumRequiredSignatures, m.Header.NumReadonlySignedAccounts, m.Header.NumReadonlyUnsignedAccounts)

	var err error
	buf, err = putShortvec(buf, len(m.AccountKeys))
	if err != nil {
		return nil, err
	}
	for _, k := range m.AccountKeys {
		buf = append(buf, k[:]...)
	}

	buf = append(buf, m.RecentBlockhash[:]...)

	buf, err = putShortvec(buf, len(m.Instructions))
	if err != nil {
		return nil, err
	}
	for _, ix := range m.Instructions {
		buf = append(buf, ix.ProgramIDIndex)
		buf, err = putShortvec(buf, len(ix.AccountIndices))
		if err != nil {
			return nil, err
		}
		buf = append(buf, ix.AccountIndices...)
		buf, err = putShortvec(buf, len(ix.Data))
		if err != nil {
			return nil, err
		}
		buf = append(buf, ix.Data...)
	}
	return buf, nil
}

// UnmarshalTransaction decodes the wire format produced by
// Transaction.Marshal.
func UnmarshalTransaction(buf []byte) (*Transaction, error) {
	numSigs, n, err := readShortvec(buf)
	if err != nil {
		return nil, err
	}
	buf = buf[n:]
	if numSigs == 0 {
		return nil, ErrNoSignatures
	}

	sigs := make([]types.Signature, numSigs)
	for i := range sigs {
		if len(buf) < 64 {
			return nil, ErrTruncated
		}
		copy(sigs[i][:], buf[:64])
		buf = buf[64:]
	}

	msg, _, err := unmarshalMessage(buf)
	if err != nil {
		return nil, err
	}
	return &Transaction{Signatures: sigs, Message: *msg}, nil
}

func unmarshalMessage(buf []byte) (*Message, int, error) {
	orig := len(buf)
	if len(buf) < 3 {
		return nil, 0, ErrTruncated
	}
	hdr := Header{
		NumRequiredSignatures:       buf[0],
		NumReadonlySignedAccounts:   buf[1],
		NumReadonlyUnsignedAccounts: buf[2],
	}
	buf = buf[3:]

	numKeys, n, err := readShortvec(buf)
	if err != nil {
		return nil, 0, err
	}
	buf = buf[n:]

	keys := make([]types.Pubkey, numKeys)
	for i := range keys {
		if len(buf) < 32 {
			return nil, 0, ErrTruncated
		}
		copy(keys[i][:], buf[:32])
		buf = buf[32:]
	}

	if len(buf) < 32 {
		return nil, 0, ErrTruncated
	}
	var blockhash types.Hash
	copy(blockhash[:], buf[:32])
	buf = buf[32:]

	numIx, n, err := readShortvec(buf)
	if err != nil {
		return nil, 0, err
	}
	buf = buf[n:]

	instructions := make([]Instruction, numIx)
	for i := range instructions {
		if len(buf) < 1 {
			return nil, 0, ErrTruncated
		}
		programIdx := buf[0]
		buf = buf[1:]

		numAccounts, n, err := readShortvec(buf)
		if err != nil {
			return nil, 0, err
		}
		buf = buf[n:]
		if len(buf) < numAccounts {
			return nil, 0, ErrTruncated
		}
		accounts := make([]uint8, numAccounts)
		copy(accounts, buf[:numAccounts])
		buf = buf[numAccounts:]

		dataLen, n, err := readShortvec(buf)
		if err != nil {
			return nil, 0, err
		}
		buf = buf[n:]
		if len(buf) < dataLen {
			return nil, 0, ErrTruncated
		}
		data := make([]byte, dataLen)
		copy(data, buf[:dataLen])
		buf = buf[dataLen:]

		instructions[i] = Instruction{ProgramIDIndex: programIdx, AccountIndices: accounts, Data: data}
	}

	msg := &Message{Header: hdr, AccountKeys: keys, RecentBlockhash: blockhash, Instructions: instructions}
	return msg, orig - len(buf), nil
}

// SigningMessage returns the bytes a signer must sign: the serialized
// Message, unprefixed by any signature count (spec.md §6).
func (t *Transaction) SigningMessage() ([]byte, error) {
	return t.Message.Marshal()
}
