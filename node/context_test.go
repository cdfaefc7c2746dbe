// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package node

import (
	"testing"

	"github.com/luxfi/cadence/types"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"
)

func TestNewContextPopulatesFields(t *testing.T) {
	ident := types.HashBytes([]byte("ident"))
	nodeID := types.NodeIDFromPubkey(ident)

	ctx := NewContext(nodeID, ident, log.NewNoOpLogger(), t.TempDir())

	require.Equal(t, nodeID, ctx.NodeID)
	require.Equal(t, ident, ctx.Ident)
	require.NotNil(t, ctx.Registerer)
	require.NotEmpty(t, ctx.LedgerDir)
	require.False(t, ctx.Ready())
}

func TestContextMarkReadyFlipsReady(t *testing.T) {
	ctx := NewContext(types.NodeID{}, types.Pubkey{}, log.NewNoOpLogger(), t.TempDir())
	require.False(t, ctx.Ready())
	ctx.MarkReady()
	require.True(t, ctx.Ready())
}
