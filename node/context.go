// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package node wires one validator's stages together: Blocktree,
// BankForks, Tower, Replay Stage, Broadcast Stage and the RPC facade
// all hang off a single Context, the way a running binary threads
// shared identity, logging, and metrics registration through its
// components (spec.md §9 "Validator process").
package node

import (
	"sync"

	"github.com/luxfi/cadence/types"
	"github.com/luxfi/cadence/utils"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
)

// Context is the shared, read-mostly state every stage is constructed
// with: this node's identity, its logger, and the metrics registry
// its components register gauges and counters into.
type Context struct {
	NodeID types.NodeID
	Ident  types.Pubkey

	Log log.Logger

	// Registerer is where stages register their Prometheus collectors.
	// A production binary passes prometheus.NewRegistry(); tests pass
	// prometheus.NewPedanticRegistry() or reuse one across stages.
	Registerer prometheus.Registerer

	// Lock guards cross-stage state that isn't already owned by a
	// single component (e.g. the validator's current root slot as
	// observed by both Replay Stage and the RPC facade). Stages that
	// own their own data structure (Bank, Blocktree) use their own
	// locks instead, matching the corpus's "deprecated coarse lock,
	// prefer granular ones" convention.
	Lock sync.RWMutex

	LedgerDir string

	// ready flips once this node's startup sequence (ledger opened,
	// genesis loaded, RPC mounted) has finished; the RPC facade's
	// readiness probe reads it without taking Lock.
	ready *utils.AtomicBool
}

// Ready reports whether MarkReady has been called.
func (c *Context) Ready() bool {
	return c.ready.Get()
}

// MarkReady flips this Context's readiness flag. Called once by
// cmd/validator after every stage has been constructed and the RPC
// server is about to start listening.
func (c *Context) MarkReady() {
	c.ready.Set(true)
}

// NewContext constructs a Context with a concrete NodeID/Ident and a
// fresh metrics registry. logger may be log.NewNoOpLogger() when no
// sink is configured.
func NewContext(nodeID types.NodeID, ident types.Pubkey, logger log.Logger, ledgerDir string) *Context {
	return &Context{
		NodeID:     nodeID,
		Ident:      ident,
		Log:        logger,
		Registerer: prometheus.NewRegistry(),
		LedgerDir:  ledgerDir,
		ready:      utils.NewAtomicBool(false),
	}
}
