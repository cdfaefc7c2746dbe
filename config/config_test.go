// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultParamsValid(t *testing.T) {
	require.NoError(t, DefaultParams().Valid())
	require.NoError(t, TestParams().Valid())
}

func TestValidRejectsBadParams(t *testing.T) {
	p := DefaultParams()
	p.HashesPerTick = 0
	require.ErrorIs(t, p.Valid(), ErrHashesPerTickZero)

	p = DefaultParams()
	p.ThresholdDepth = p.MaxLockoutHistory
	require.ErrorIs(t, p.Valid(), ErrThresholdDepth)

	p = DefaultParams()
	p.EpochFinalityStake = 0.4
	require.ErrorIs(t, p.Valid(), ErrEpochFinalityInvalid)
}

func TestHashesPerSlot(t *testing.T) {
	p := TestParams()
	require.Equal(t, p.HashesPerTick*p.TicksPerSlot, p.HashesPerSlot())
}

func TestEpochWarmup(t *testing.T) {
	p := TestParams() // MinimumSlotsPerEpoch=4, SlotsPerEpoch=32, FirstNormalEpoch=2
	require.Equal(t, uint64(4), p.EpochLength(0))
	require.Equal(t, uint64(8), p.EpochLength(1))
	require.Equal(t, uint64(32), p.EpochLength(2)) // capped at normal length
	require.Equal(t, uint64(32), p.EpochLength(3))

	require.Equal(t, uint64(0), p.EpochStartSlot(0))
	require.Equal(t, uint64(4), p.EpochStartSlot(1))
	require.Equal(t, uint64(12), p.EpochStartSlot(2))

	epoch, offset := p.SlotToEpoch(5)
	require.Equal(t, uint64(1), epoch)
	require.Equal(t, uint64(1), offset)
}

func TestExpirationSlot(t *testing.T) {
	require.Equal(t, uint64(6), ExpirationSlot(4, 1))
	require.Equal(t, uint64(7), ExpirationSlot(3, 2))
	require.Equal(t, uint64(10), ExpirationSlot(2, 3))
	require.Equal(t, uint64(17), ExpirationSlot(1, 4))
}
