// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package txn implements the wire-format codec for transactions and
// their enclosed messages: shortvec length prefixes, the instruction
// list, and the header partitioning of account_keys (spec.md §6).
package txn

import (
	"errors"
)

// ErrShortvecOverflow is returned when a shortvec-encoded length would
// not fit in the 1-3 byte / 21-bit range the wire format allows.
var ErrShortvecOverflow = errors.New("txn: shortvec length exceeds 21 bits")

// ErrTruncated is returned when a buffer ends before a shortvec or a
// fixed-size field it introduces has been fully read.
var ErrTruncated = errors.New("txn: buffer truncated")

// putShortvec appends the shortvec encoding of n to dst and returns the
// extended slice. Each byte carries 7 bits of n in its low bits; the
// high bit signals that another byte follows.
func putShortvec(dst []byte, n int) ([]byte, error) {
	if n < 0 || n > 1<<21-1 {
		return nil, ErrShortvecOverflow
	}
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n != 0 {
			dst = append(dst, b|0x80)
		} else {
			dst = append(dst, b)
			return dst, nil
		}
	}
}

// readShortvec decodes a shortvec length prefix from buf, returning the
// decoded value and the number of bytes consumed.
func readShortvec(buf []byte) (n int, consumed int, err error) {
	var shift uint
	for {
		if consumed >= len(buf) {
			return 0, 0, ErrTruncated
		}
		b := buf[consumed]
		consumed++
		n |= int(b&0x7f) << shift
		if b&0x80 == 0 {
			return n, consumed, nil
		}
		shift += 7
		if shift >= 21 {
			return 0, 0, ErrShortvecOverflow
		}
	}
}
