// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bank

import (
	"github.com/luxfi/cadence/txn"
)

// DecodeTransaction sanitizes and signature-verifies a wire-format
// transaction, the concrete step 1-2 implementation of spec.md §4.5
// "process_entries": structural checks (sizes, signature count,
// account/program index bounds) followed by Ed25519 verification of
// every signature. Writes to read-only accounts are detected later, by
// ProcessEntries after the instructions execute.
func DecodeTransaction(raw []byte) (*SanitizedTransaction, error) {
	tx, err := txn.UnmarshalTransaction(raw)
	if err != nil {
		return nil, err
	}
	if err := tx.Message.Validate(); err != nil {
		return nil, err
	}
	if int(tx.Message.Header.NumRequiredSignatures) != len(tx.Signatures) {
		return nil, txn.ErrNoSignatures
	}

	signBytes, err := tx.SigningMessage()
	if err != nil {
		return nil, err
	}
	signers := tx.Message.AccountKeys[:len(tx.Signatures)]
	if err := VerifySignatures(signers, signBytes, tx.Signatures); err != nil {
		return nil, err
	}

	writable := make([]bool, len(tx.Message.AccountKeys))
	for i := range tx.Message.AccountKeys {
		writable[i] = tx.Message.IsWritable(i)
	}

	instructions := make([]SanitizedInstruction, len(tx.Message.Instructions))
	for i, ix := range tx.Message.Instructions {
		instructions[i] = SanitizedInstruction{
			ProgramIDIndex: ix.ProgramIDIndex,
			AccountIndices: ix.AccountIndices,
			Data:           ix.Data,
		}
	}

	return &SanitizedTransaction{
		Signature: tx.Signatures[0],
		FeePayer:  tx.Message.FeePayer(),
		Message: SanitizedMessage{
			RecentBlockhash: tx.Message.RecentBlockhash,
			AccountKeys:     tx.Message.AccountKeys,
			Writable:        writable,
			Instructions:    instructions,
		},
	}, nil
}
