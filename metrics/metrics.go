// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metrics registers each stage's Prometheus collectors into a
// node.Context's Registerer (SPEC_FULL.md §2 "metrics"), following the
// corpus's api/metrics.NewMetrics idiom: one constructor per stage,
// taking a namespace and a prometheus.Registerer, returning a struct
// of already-registered collectors.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// PoHMetrics instruments one poh.Recorder: a counter of ticks
// produced, a histogram of Record call latency, and a gauge of the
// current hashes_since_last_record, exactly as SPEC_FULL.md §4.1
// prescribes.
type PoHMetrics struct {
	TicksProduced     prometheus.Counter
	RecordLatency     prometheus.Histogram
	HashesSinceRecord prometheus.Gauge
}

// NewPoHMetrics constructs and registers a Recorder's collectors under
// namespace into reg.
func NewPoHMetrics(namespace string, reg prometheus.Registerer) (*PoHMetrics, error) {
	m := &PoHMetrics{
		TicksProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poh_ticks_produced_total",
			Help:      "Number of PoH ticks produced by this recorder.",
		}),
		RecordLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poh_record_latency_seconds",
			Help:      "Wall-clock latency of Recorder.Record calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		HashesSinceRecord: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "poh_hashes_since_last_record",
			Help:      "Hashes produced since the last tick or record entry was emitted.",
		}),
	}
	if err := reg.Register(m.TicksProduced); err != nil {
		return nil, err
	}
	if err := reg.Register(m.RecordLatency); err != nil {
		return nil, err
	}
	if err := reg.Register(m.HashesSinceRecord); err != nil {
		return nil, err
	}
	return m, nil
}

// BlocktreeMetrics instruments one Blocktree: shreds inserted and
// duplicate-slot proofs detected.
type BlocktreeMetrics struct {
	ShredsInserted  prometheus.Counter
	DuplicateProofs prometheus.Counter
}

// NewBlocktreeMetrics constructs and registers a Blocktree's
// collectors under namespace into reg.
func NewBlocktreeMetrics(namespace string, reg prometheus.Registerer) (*BlocktreeMetrics, error) {
	m := &BlocktreeMetrics{
		ShredsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocktree_shreds_inserted_total",
			Help:      "Number of shreds persisted into Blocktree.",
		}),
		DuplicateProofs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocktree_duplicate_proofs_total",
			Help:      "Number of duplicate-slot proofs recorded.",
		}),
	}
	if err := reg.Register(m.ShredsInserted); err != nil {
		return nil, err
	}
	if err := reg.Register(m.DuplicateProofs); err != nil {
		return nil, err
	}
	return m, nil
}

// ReplayMetrics instruments one replay.Stage: slots successfully
// replayed and slots marked dead.
type ReplayMetrics struct {
	SlotsReplayed prometheus.Counter
	SlotsDead     prometheus.Counter
}

// NewReplayMetrics constructs and registers a Replay Stage's
// collectors under namespace into reg.
func NewReplayMetrics(namespace string, reg prometheus.Registerer) (*ReplayMetrics, error) {
	m := &ReplayMetrics{
		SlotsReplayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replay_slots_replayed_total",
			Help:      "Number of slots successfully replayed into BankForks.",
		}),
		SlotsDead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replay_slots_dead_total",
			Help:      "Number of slots marked dead (deadline exceeded, verification failure, or duplicate proof).",
		}),
	}
	if err := reg.Register(m.SlotsReplayed); err != nil {
		return nil, err
	}
	if err := reg.Register(m.SlotsDead); err != nil {
		return nil, err
	}
	return m, nil
}

// BroadcastMetrics instruments one broadcast.Stage: shreds sent to the
// cluster.
type BroadcastMetrics struct {
	ShredsSent prometheus.Counter
}

// NewBroadcastMetrics constructs and registers a Broadcast Stage's
// collectors under namespace into reg.
func NewBroadcastMetrics(namespace string, reg prometheus.Registerer) (*BroadcastMetrics, error) {
	m := &BroadcastMetrics{
		ShredsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_shreds_sent_total",
			Help:      "Number of shreds handed to the AppSender.",
		}),
	}
	if err := reg.Register(m.ShredsSent); err != nil {
		return nil, err
	}
	return m, nil
}
