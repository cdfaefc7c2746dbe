// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package poh

import (
	"encoding/binary"

	"github.com/luxfi/cadence/codec"
)

// EncodeEntries serializes a slot's entry stream into the payload the
// shred codec splits into data shreds: a 4-byte big-endian length
// header (so Decode can discard a data shred's zero-padding after
// Reed-Solomon reconstruction) followed by the codec-encoded entries.
func EncodeEntries(entries []Entry) ([]byte, error) {
	body, err := codec.Codec.Marshal(codec.CurrentVersion, entries)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(out[:4], uint32(len(body)))
	copy(out[4:], body)
	return out, nil
}

// DecodeEntries reverses EncodeEntries given the reassembled,
// zero-padded shred payload stream for a slot.
func DecodeEntries(raw []byte) ([]Entry, error) {
	if len(raw) < 4 {
		return nil, ErrTruncatedEntryBatch
	}
	n := binary.BigEndian.Uint32(raw[:4])
	if uint32(len(raw)-4) < n {
		return nil, ErrTruncatedEntryBatch
	}
	var entries []Entry
	if _, err := codec.Codec.Unmarshal(raw[4:4+n], &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
