// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package blocktree

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"sync"

	"github.com/luxfi/cadence/metrics"
	"github.com/luxfi/cadence/shred"
	"github.com/luxfi/cadence/types"
)

// Column family prefixes. pebble has no native column-family concept,
// so Blocktree emulates one by prefixing every key, matching the way
// the corpus's single-engine stores partition logical tables.
const (
	cfShred byte = iota
	cfMeta
	cfRoot
	cfDuplicate
)

// ErrNotFound is returned when a lookup key is absent from the store.
var ErrNotFound = errors.New("blocktree: key not found")

// SlotMeta tracks one slot's shred-receipt progress (spec.md §3
// "SlotMeta").
type SlotMeta struct {
	Slot               uint64
	ParentSlot         uint64
	NumBlocks          uint64
	ReceivedHighest    uint64
	ConsumedContiguous uint64
	NextSlots          []uint64
	LastIndex          *uint64
	IsRooted           bool
	IsFull             bool

	// IsDuplicate is set once InsertShred observes two differently
	// -payloaded shreds at the same (slot, index), both signed by the
	// slot leader (spec.md §8 scenario 5). Replay Stage treats a
	// duplicate slot, and every slot chained off it, as dead.
	IsDuplicate bool
}

// Valid checks SlotMeta's structural invariants (spec.md §3):
// consumed_contiguous <= received_highest+1, and is_full iff last_index
// is set and consumed_contiguous == last_index+1.
func (m *SlotMeta) Valid() error {
	if m.ConsumedContiguous > m.ReceivedHighest+1 {
		return errors.New("blocktree: consumed_contiguous exceeds received_highest+1")
	}
	full := m.LastIndex != nil && m.ConsumedContiguous == *m.LastIndex+1
	if m.IsFull != full {
		return errors.New("blocktree: is_full inconsistent with last_index/consumed_contiguous")
	}
	return nil
}

// DuplicateProof is the evidence Blocktree records once it observes
// two shreds at the same (slot, index) with different payloads, both
// purportedly signed by that slot's leader (spec.md §8 scenario 5).
// Both shreds are kept in the store; the proof lets a caller (gossip,
// an RPC method) surface the conflict without re-deriving it from the
// raw shred log.
type DuplicateProof struct {
	Slot  uint64
	Index uint32
	A     *shred.Shred
	B     *shred.Shred
}

func duplicateKey(slot uint64, index uint32) []byte {
	key := make([]byte, 1+8+4)
	key[0] = cfDuplicate
	binary.BigEndian.PutUint64(key[1:9], slot)
	binary.BigEndian.PutUint32(key[9:13], index)
	return key
}

func duplicatePrefix(slot uint64) (lower, upper []byte) {
	lower = make([]byte, 9)
	lower[0] = cfDuplicate
	binary.BigEndian.PutUint64(lower[1:9], slot)
	upper = make([]byte, 9)
	upper[0] = cfDuplicate
	binary.BigEndian.PutUint64(upper[1:9], slot+1)
	return lower, upper
}

// Blocktree is the fork-aware ledger store: shreds and SlotMeta keyed
// by slot, fsynced at slot boundaries.
type Blocktree struct {
	mu sync.Mutex
	db Database

	metrics *metrics.BlocktreeMetrics
}

// Open opens the Blocktree rooted at dir.
func Open(dir string) (*Blocktree, error) {
	db, err := OpenPebble(dir)
	if err != nil {
		return nil, err
	}
	return &Blocktree{db: db}, nil
}

// WithMetrics attaches m to b; InsertShred reports into it from that
// point on. Returns b for chaining.
func (b *Blocktree) WithMetrics(m *metrics.BlocktreeMetrics) *Blocktree {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics = m
	return b
}

// Close closes the underlying store.
func (b *Blocktree) Close() error { return b.db.Close() }

func shredKey(slot uint64, index uint32) []byte {
	key := make([]byte, 1+8+4)
	key[0] = cfShred
	binary.BigEndian.PutUint64(key[1:9], slot)
	binary.BigEndian.PutUint32(key[9:13], index)
	return key
}

func shredPrefix(slot uint64) (lower, upper []byte) {
	lower = make([]byte, 9)
	lower[0] = cfShred
	binary.BigEndian.PutUint64(lower[1:9], slot)
	upper = make([]byte, 9)
	upper[0] = cfShred
	binary.BigEndian.PutUint64(upper[1:9], slot+1)
	return lower, upper
}

func metaKey(slot uint64) []byte {
	key := make([]byte, 9)
	key[0] = cfMeta
	binary.BigEndian.PutUint64(key[1:9], slot)
	return key
}

func rootKey(slot uint64) []byte {
	key := make([]byte, 9)
	key[0] = cfRoot
	binary.BigEndian.PutUint64(key[1:9], slot)
	return key
}

// InsertShred persists one shred under its slot. The caller is
// responsible for signature verification before insertion; Blocktree
// itself only indexes.
//
// If a shred already occupies (slot, index) with a different payload,
// both shreds are kept (spec.md §8 scenario 5: "insert both"), the
// slot's SlotMeta is marked IsDuplicate, and InsertShred returns the
// DuplicateProof pairing the two conflicting shreds alongside a nil
// error — a duplicate is evidence to record, not a failure to insert.
func (b *Blocktree) InsertShred(s *shred.Shred) (*DuplicateProof, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := shredKey(s.Slot, s.IndexWithinSlot)
	var proof *DuplicateProof
	if existingRaw, err := b.db.Get(key); err == nil {
		existing, uerr := unmarshalShred(existingRaw)
		if uerr != nil {
			return nil, uerr
		}
		if !bytes.Equal(existing.Payload, s.Payload) {
			proof = &DuplicateProof{Slot: s.Slot, Index: s.IndexWithinSlot, A: existing, B: s}
			praw, perr := json.Marshal(proof)
			if perr != nil {
				return nil, perr
			}
			if err := b.db.Put(duplicateKey(s.Slot, s.IndexWithinSlot), praw); err != nil {
				return nil, err
			}
		}
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	raw, err := marshalShred(s)
	if err != nil {
		return nil, err
	}
	if err := b.db.Put(key, raw); err != nil {
		return nil, err
	}
	if b.metrics != nil {
		b.metrics.ShredsInserted.Inc()
		if proof != nil {
			b.metrics.DuplicateProofs.Inc()
		}
	}

	meta, err := b.getOrCreateMetaLocked(s.Slot)
	if err != nil {
		return nil, err
	}
	if uint64(s.IndexWithinSlot) > meta.ReceivedHighest || (meta.ReceivedHighest == 0 && s.IndexWithinSlot == 0) {
		meta.ReceivedHighest = uint64(s.IndexWithinSlot)
	}
	if s.Flags&shred.FlagLastInSlot != 0 {
		last := uint64(s.IndexWithinSlot)
		meta.LastIndex = &last
	}
	if err := b.advanceConsumedContiguousLocked(meta); err != nil {
		return nil, err
	}
	meta.IsFull = meta.LastIndex != nil && meta.ConsumedContiguous == *meta.LastIndex+1
	if proof != nil {
		meta.IsDuplicate = true
	}
	if s.ParentOffset > 0 && meta.ParentSlot == 0 {
		parentSlot := s.Slot - uint64(s.ParentOffset)
		meta.ParentSlot = parentSlot
		if err := b.linkChildLocked(parentSlot, s.Slot); err != nil {
			return nil, err
		}
	}
	if err := b.putMetaLocked(meta); err != nil {
		return nil, err
	}
	return proof, nil
}

// advanceConsumedContiguousLocked walks meta.ConsumedContiguous
// forward past every index for which a shred is already stored,
// starting from the index it had last reached (spec.md §3:
// consumed_contiguous tracks the dense run of received indices from
// zero). Called with b.mu already held, after the triggering shred's
// own row has been written.
func (b *Blocktree) advanceConsumedContiguousLocked(meta *SlotMeta) error {
	for {
		has, err := b.db.Has(shredKey(meta.Slot, uint32(meta.ConsumedContiguous)))
		if err != nil {
			return err
		}
		if !has {
			return nil
		}
		meta.ConsumedContiguous++
	}
}

// linkChildLocked adds childSlot to parentSlot's next_slots, the
// forward edge spec.md §3 requires Blocktree to maintain once a shred
// declares its parent_offset. Called with b.mu already held.
func (b *Blocktree) linkChildLocked(parentSlot, childSlot uint64) error {
	parent, err := b.getOrCreateMetaLocked(parentSlot)
	if err != nil {
		return err
	}
	for _, next := range parent.NextSlots {
		if next == childSlot {
			return nil
		}
	}
	parent.NextSlots = append(parent.NextSlots, childSlot)
	return b.putMetaLocked(parent)
}

// DuplicateProofsForSlot returns every duplicate-shred proof recorded
// for slot, in index order.
func (b *Blocktree) DuplicateProofsForSlot(slot uint64) ([]*DuplicateProof, error) {
	lower, upper := duplicatePrefix(slot)
	var out []*DuplicateProof
	pdb := b.db.(*pebbleDB)
	err := pdb.iterate(lower, upper, func(_, value []byte) bool {
		var proof DuplicateProof
		if err := json.Unmarshal(value, &proof); err != nil {
			return false
		}
		out = append(out, &proof)
		return true
	})
	return out, err
}

// GetShred returns the shred at (slot, index).
func (b *Blocktree) GetShred(slot uint64, index uint32) (*shred.Shred, error) {
	raw, err := b.db.Get(shredKey(slot, index))
	if err != nil {
		return nil, err
	}
	return unmarshalShred(raw)
}

// ShredsForSlot returns every shred stored for slot, ordered by index.
func (b *Blocktree) ShredsForSlot(slot uint64) ([]*shred.Shred, error) {
	lower, upper := shredPrefix(slot)
	var out []*shred.Shred
	pdb := b.db.(*pebbleDB)
	err := pdb.iterate(lower, upper, func(_, value []byte) bool {
		s, err := unmarshalShred(value)
		if err != nil {
			return false
		}
		out = append(out, s)
		return true
	})
	return out, err
}

// PutSlotMeta persists meta after validating its invariants.
func (b *Blocktree) PutSlotMeta(meta *SlotMeta) error {
	if err := meta.Valid(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.putMetaLocked(meta)
}

// GetSlotMeta returns the SlotMeta for slot.
func (b *Blocktree) GetSlotMeta(slot uint64) (*SlotMeta, error) {
	raw, err := b.db.Get(metaKey(slot))
	if err != nil {
		return nil, err
	}
	var meta SlotMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (b *Blocktree) getOrCreateMetaLocked(slot uint64) (*SlotMeta, error) {
	raw, err := b.db.Get(metaKey(slot))
	if errors.Is(err, ErrNotFound) {
		return &SlotMeta{Slot: slot}, nil
	}
	if err != nil {
		return nil, err
	}
	var meta SlotMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (b *Blocktree) putMetaLocked(meta *SlotMeta) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return b.db.Put(metaKey(meta.Slot), raw)
}

// MarkRoot records that slot has become the new Blocktree root, the
// fsync-at-slot-boundary durability point spec.md §6 requires of the
// on-disk roots column family, and prunes every sibling subtree that
// chained off the same parent but can no longer be selected (spec.md
// §4.4 set_root), mirroring bankforks.SetRoot's keep-by-descent
// filter over the shred/meta column families instead of an in-memory
// Bank tree.
func (b *Blocktree) MarkRoot(slot uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	meta, err := b.getOrCreateMetaLocked(slot)
	if err != nil {
		return err
	}
	meta.IsRooted = true

	if err := b.pruneSiblingsLocked(slot, meta.ParentSlot); err != nil {
		return err
	}

	if err := b.putMetaLocked(meta); err != nil {
		return err
	}
	return b.db.Put(rootKey(slot), []byte{1})
}

// pruneSiblingsLocked drops every subtree parentSlot's next_slots
// still names besides slot itself: slots that chained off the same
// parent but did not become part of the new root's ancestry, and so
// can never be selected again. A parent link that getOrCreateMetaLocked
// can't resolve, or that never actually recorded slot as a child
// (ParentSlot's zero value when no shred has linked one yet), means
// there is nothing recorded to prune.
func (b *Blocktree) pruneSiblingsLocked(slot, parentSlot uint64) error {
	parent, err := b.getOrCreateMetaLocked(parentSlot)
	if err != nil {
		return err
	}
	linked := false
	for _, c := range parent.NextSlots {
		if c == slot {
			linked = true
			break
		}
	}
	if !linked {
		return nil
	}

	kept := parent.NextSlots[:0]
	for _, sibling := range parent.NextSlots {
		if sibling == slot {
			kept = append(kept, sibling)
			continue
		}
		if err := b.pruneSubtreeLocked(sibling); err != nil {
			return err
		}
	}
	parent.NextSlots = kept
	return b.putMetaLocked(parent)
}

// pruneSubtreeLocked deletes every shred, SlotMeta, and duplicate
// -proof row belonging to slot, then recurses into every slot it ever
// recorded as a next_slots child. Called with b.mu already held.
func (b *Blocktree) pruneSubtreeLocked(slot uint64) error {
	meta, err := b.getOrCreateMetaLocked(slot)
	if err != nil {
		return err
	}
	for _, child := range meta.NextSlots {
		if err := b.pruneSubtreeLocked(child); err != nil {
			return err
		}
	}

	pdb := b.db.(*pebbleDB)
	lower, upper := shredPrefix(slot)
	if err := pdb.deleteRange(lower, upper); err != nil {
		return err
	}
	dlower, dupper := duplicatePrefix(slot)
	if err := pdb.deleteRange(dlower, dupper); err != nil {
		return err
	}
	return b.db.Delete(metaKey(slot))
}

// IsRoot reports whether slot has been marked as a Blocktree root.
func (b *Blocktree) IsRoot(slot uint64) (bool, error) {
	ok, err := b.db.Has(rootKey(slot))
	if err != nil {
		return false, err
	}
	return ok, nil
}

func marshalShred(s *shred.Shred) ([]byte, error) {
	return json.Marshal(struct {
		Slot            uint64
		IndexWithinSlot uint32
		ParentOffset    uint16
		Flags           byte
		Payload         []byte
		LeaderSignature types.Signature
	}{s.Slot, s.IndexWithinSlot, s.ParentOffset, s.Flags, s.Payload, s.LeaderSignature})
}

func unmarshalShred(raw []byte) (*shred.Shred, error) {
	var aux struct {
		Slot            uint64
		IndexWithinSlot uint32
		ParentOffset    uint16
		Flags           byte
		Payload         []byte
		LeaderSignature types.Signature
	}
	if err := json.Unmarshal(raw, &aux); err != nil {
		return nil, err
	}
	return &shred.Shred{
		Slot:            aux.Slot,
		IndexWithinSlot: aux.IndexWithinSlot,
		ParentOffset:    aux.ParentOffset,
		Flags:           aux.Flags,
		Payload:         aux.Payload,
		LeaderSignature: aux.LeaderSignature,
	}, nil
}
