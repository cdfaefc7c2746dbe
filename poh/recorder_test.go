// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package poh

import (
	"testing"

	"github.com/luxfi/cadence/config"
	"github.com/luxfi/cadence/metrics"
	"github.com/luxfi/cadence/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestTickEmitsEntryAtHashesPerTick(t *testing.T) {
	p := config.TestParams() // HashesPerTick=4, TicksPerSlot=4
	r := NewRecorder(p, types.Hash{})

	for i := uint64(0); i < p.HashesPerTick-1; i++ {
		r.Tick()
	}
	require.Empty(t, r.Drain())

	r.Tick()
	entries := r.Drain()
	require.Len(t, entries, 1)
	require.Equal(t, p.HashesPerTick, entries[0].NumHashes)
}

func TestSlotExpiresAfterTicksPerSlot(t *testing.T) {
	p := config.TestParams()
	r := NewRecorder(p, types.Hash{})

	for tick := uint64(0); tick < p.TicksPerSlot; tick++ {
		for h := uint64(0); h < p.HashesPerTick; h++ {
			r.Tick()
		}
	}

	_, _, err := r.Record([][]byte{[]byte("late")})
	require.ErrorIs(t, err, ErrMaxHeightReached)
}

func TestRecordRejectsOverflowTransactions(t *testing.T) {
	p := config.TestParams()
	p.MaxTransactionsPerEntry = 2
	r := NewRecorder(p, types.Hash{})

	txs := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	accepted, rejected, err := r.Record(txs)
	require.NoError(t, err)
	require.Len(t, accepted, 2)
	require.Len(t, rejected, 1)
}

func TestVerifyChainRoundTrip(t *testing.T) {
	p := config.TestParams()
	seed := types.HashBytes([]byte("genesis"))
	r := NewRecorder(p, seed)

	r.Tick()
	r.Tick()
	_, _, err := r.Record([][]byte{[]byte("tx1")})
	require.NoError(t, err)
	r.Tick()
	r.Tick()
	r.Tick()
	r.Tick()

	entries := r.Drain()
	require.NoError(t, VerifyChain(seed, entries))

	entries[0].Hash = types.HashBytes([]byte("tampered"))
	require.Error(t, VerifyChain(seed, entries))
}

func TestWithMetricsObservesTicksAndRecords(t *testing.T) {
	p := config.TestParams()
	reg := prometheus.NewPedanticRegistry()
	m, err := metrics.NewPoHMetrics("cadence_test", reg)
	require.NoError(t, err)

	r := NewRecorder(p, types.Hash{}).WithMetrics(m)
	for h := uint64(0); h < p.HashesPerTick; h++ {
		r.Tick()
	}
	require.Equal(t, float64(1), testutilGather(t, reg, "cadence_test_poh_ticks_produced_total"))

	_, _, err = r.Record([][]byte{[]byte("tx")})
	require.NoError(t, err)
	require.Equal(t, float64(0), testutilGather(t, reg, "cadence_test_poh_hashes_since_last_record"))
}

func testutilGather(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		metric := fam.GetMetric()[0]
		if metric.GetCounter() != nil {
			return metric.GetCounter().GetValue()
		}
		return metric.GetGauge().GetValue()
	}
	t.Fatalf("metric %s not found", name)
	return 0
}
