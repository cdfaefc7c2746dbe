// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNewPoHMetricsRegistersCollectors(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	m, err := NewPoHMetrics("cadence", reg)
	require.NoError(t, err)

	m.TicksProduced.Inc()
	m.HashesSinceRecord.Set(3)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 3)
}

func TestNewPoHMetricsRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	_, err := NewPoHMetrics("cadence", reg)
	require.NoError(t, err)

	_, err = NewPoHMetrics("cadence", reg)
	require.Error(t, err)
}

func TestNewBlocktreeMetricsRegistersCollectors(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	m, err := NewBlocktreeMetrics("cadence", reg)
	require.NoError(t, err)

	m.ShredsInserted.Inc()
	m.DuplicateProofs.Inc()

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 2)
}

func TestNewReplayMetricsRegistersCollectors(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	m, err := NewReplayMetrics("cadence", reg)
	require.NoError(t, err)

	m.SlotsReplayed.Inc()
	m.SlotsDead.Inc()

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 2)
}

func TestNewBroadcastMetricsRegistersCollectors(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	m, err := NewBroadcastMetrics("cadence", reg)
	require.NoError(t, err)

	m.ShredsSent.Inc()

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
}
