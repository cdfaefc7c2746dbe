// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sampler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUniformSampleIsWithinRange(t *testing.T) {
	u := NewDeterministicUniform(1)
	require.NoError(t, u.Initialize(5))

	indices, ok := u.Sample(3)
	require.True(t, ok)
	require.Len(t, indices, 3)

	seen := make(map[int]bool)
	for _, idx := range indices {
		require.GreaterOrEqual(t, idx, 0)
		require.Less(t, idx, 5)
		require.False(t, seen[idx])
		seen[idx] = true
	}
}

func TestUniformSampleFailsWhenSizeExceedsCount(t *testing.T) {
	u := NewDeterministicUniform(1)
	require.NoError(t, u.Initialize(2))

	_, ok := u.Sample(3)
	require.False(t, ok)
}

func TestUniformSampleIsDeterministicForSameSeed(t *testing.T) {
	a := NewDeterministicUniform(99)
	require.NoError(t, a.Initialize(10))
	b := NewDeterministicUniform(99)
	require.NoError(t, b.Initialize(10))

	first, ok := a.Sample(4)
	require.True(t, ok)
	second, ok := b.Sample(4)
	require.True(t, ok)
	require.Equal(t, first, second)
}
