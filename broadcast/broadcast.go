// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package broadcast implements the Broadcast Stage: the leader-side
// fan-out of a slot's shreds to the cluster once PoH has produced them
// (spec.md §4.4). It is a thin policy layer over gossip.AppSender —
// the transport itself is out of scope here.
package broadcast

import (
	"context"
	"errors"
	"sort"

	"github.com/luxfi/cadence/gossip"
	"github.com/luxfi/cadence/metrics"
	"github.com/luxfi/cadence/shred"
	"github.com/luxfi/cadence/types"
	"github.com/luxfi/cadence/utils/sampler"
	"github.com/luxfi/cadence/utils/set"
	"github.com/luxfi/cadence/validators"
)

// ErrNoValidators is returned when Send is called against an empty
// validator set; there is no one to fan out to.
var ErrNoValidators = errors.New("broadcast: validator set is empty")

// PickRepairTarget chooses one validator uniformly at random from set,
// unweighted by stake: a lagging node's repair request for a missing
// shred names any known peer, not specifically a high-stake one, so
// this deliberately skips the stake-weighted Sample path Send uses.
func PickRepairTarget(vset *validators.Set, seed int64) (validators.Validator, bool) {
	all := vset.List()
	if len(all) == 0 {
		return validators.Validator{}, false
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Vote.String() < all[j].Vote.String() })
	u := sampler.NewDeterministicUniform(seed)
	if err := u.Initialize(len(all)); err != nil {
		return validators.Validator{}, false
	}
	idx, ok := u.Sample(1)
	if !ok {
		return validators.Validator{}, false
	}
	return all[idx[0]], true
}

// Stage fans a leader's produced shreds out to the cluster, weighting
// its direct-send fanout by stake the way the corpus's gossip sampler
// weights peer selection.
type Stage struct {
	sender  gossip.AppSender
	set     *validators.Set
	fanout  int
	seed    int64

	metrics *metrics.BroadcastMetrics
}

// New returns a Stage that sends through sender to a stake-weighted
// sample of size fanout drawn from set, seeded by seed for
// determinism across retransmits of the same slot.
func New(sender gossip.AppSender, vset *validators.Set, fanout int, seed int64) *Stage {
	return &Stage{sender: sender, set: vset, fanout: fanout, seed: seed}
}

// WithMetrics attaches m to s; Send reports into it from that point
// on. Returns s for chaining.
func (s *Stage) WithMetrics(m *metrics.BroadcastMetrics) *Stage {
	s.metrics = m
	return s
}

// Send pushes one shred's wire bytes to this Stage's fanout sample.
// The self-node's own retransmission to the rest of the cluster is the
// sample's responsibility, not this node's — matching the corpus's
// turbine-style "send once, let receivers retransmit" fanout model
// referenced in spec.md §4.4.
func (s *Stage) Send(ctx context.Context, sh *shred.Shred, raw []byte) error {
	if s.set.Len() == 0 {
		return ErrNoValidators
	}
	targets := s.set.Sample(s.fanout, s.seed+int64(sh.Slot)+int64(sh.IndexWithinSlot))
	nodeIDs := set.NewSet[types.NodeID](len(targets))
	for _, v := range targets {
		nodeIDs.Add(v.NodeID)
	}
	if err := s.sender.SendShred(ctx, nodeIDs, raw); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.ShredsSent.Inc()
	}
	return nil
}

// SendAll pushes every shred in a slot's FEC set in index order.
func (s *Stage) SendAll(ctx context.Context, fec *shred.FECSet, raw func(*shred.Shred) []byte) error {
	for _, sh := range fec.DataShreds {
		if err := s.Send(ctx, sh, raw(sh)); err != nil {
			return err
		}
	}
	for _, sh := range fec.ParityShreds {
		if err := s.Send(ctx, sh, raw(sh)); err != nil {
			return err
		}
	}
	return nil
}
