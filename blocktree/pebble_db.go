// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package blocktree

import (
	"github.com/cockroachdb/pebble"
)

// pebbleDB adapts *pebble.DB to the Database interface, the concrete
// column-family-over-LSM engine SPEC_FULL.md's domain stack wires in
// for Blocktree's on-disk representation.
type pebbleDB struct {
	db *pebble.DB
}

// OpenPebble opens (creating if absent) a pebble-backed Database
// rooted at dir.
func OpenPebble(dir string) (Database, error) {
	opts := &pebble.Options{}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, err
	}
	return &pebbleDB{db: db}, nil
}

func (p *pebbleDB) Has(key []byte) (bool, error) {
	v, closer, err := p.db.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	closer.Close()
	_ = v
	return true, nil
}

func (p *pebbleDB) Get(key []byte) ([]byte, error) {
	v, closer, err := p.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(v))
	copy(out, v)
	closer.Close()
	return out, nil
}

func (p *pebbleDB) Put(key, value []byte) error {
	return p.db.Set(key, value, pebble.Sync)
}

func (p *pebbleDB) Delete(key []byte) error {
	return p.db.Delete(key, pebble.Sync)
}

func (p *pebbleDB) NewBatch() Batch {
	return &pebbleBatch{batch: p.db.NewBatch(), db: p.db}
}

func (p *pebbleDB) Close() error {
	return p.db.Close()
}

// iterate scans every key in [lower, upper), invoking fn with the full
// stored key and its value. fn returning false stops the scan early.
func (p *pebbleDB) iterate(lower, upper []byte, fn func(key, value []byte) bool) error {
	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return err
	}
	defer iter.Close()
	for valid := iter.First(); valid; valid = iter.Next() {
		if !fn(iter.Key(), iter.Value()) {
			break
		}
	}
	return iter.Error()
}

// deleteRange removes every key in [lower, upper), the bulk op
// set_root's sibling-subtree pruning uses instead of one Delete per
// shred row.
func (p *pebbleDB) deleteRange(lower, upper []byte) error {
	return p.db.DeleteRange(lower, upper, pebble.Sync)
}

type pebbleBatch struct {
	batch *pebble.Batch
	db    *pebble.DB
}

func (b *pebbleBatch) Put(key, value []byte) error { return b.batch.Set(key, value, nil) }
func (b *pebbleBatch) Delete(key []byte) error      { return b.batch.Delete(key, nil) }
func (b *pebbleBatch) Size() int                    { return b.batch.Len() }
func (b *pebbleBatch) Write() error                 { return b.batch.Commit(pebble.Sync) }
func (b *pebbleBatch) Reset()                       { b.batch.Reset() }

func (b *pebbleBatch) Replay(w Writer) error {
	reader := b.batch.Reader()
	for {
		kind, key, value, ok, err := reader.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch kind {
		case pebble.InternalKeyKindDelete:
			if err := w.Delete(key); err != nil {
				return err
			}
		default:
			if err := w.Put(key, value); err != nil {
				return err
			}
		}
	}
}
