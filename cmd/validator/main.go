// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command validator runs one node of the cluster: it opens its
// Blocktree ledger, replays slots through Bank/BankForks, votes
// through Tower, and serves the JSON-RPC facade (spec.md §9).
package main

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/luxfi/cadence/api/health"
	"github.com/luxfi/cadence/bank"
	"github.com/luxfi/cadence/bankforks"
	"github.com/luxfi/cadence/blocktree"
	"github.com/luxfi/cadence/broadcast"
	"github.com/luxfi/cadence/config"
	"github.com/luxfi/cadence/crypto"
	"github.com/luxfi/cadence/gossip"
	"github.com/luxfi/cadence/leader"
	cadencelog "github.com/luxfi/cadence/log"
	"github.com/luxfi/cadence/metrics"
	"github.com/luxfi/cadence/node"
	"github.com/luxfi/cadence/poh"
	"github.com/luxfi/cadence/replay"
	"github.com/luxfi/cadence/rpc"
	"github.com/luxfi/cadence/shred"
	"github.com/luxfi/cadence/tower"
	"github.com/luxfi/cadence/types"
	"github.com/luxfi/cadence/utils/version"
	"github.com/luxfi/cadence/utils/wrappers"
	"github.com/luxfi/cadence/validators"
	"github.com/luxfi/log"
)

// leaderFanout is the number of peers the Broadcast Stage direct-sends
// each produced shred to, matching the corpus's small fixed fanout for
// a turbine-style "send once, let receivers retransmit" tree.
const leaderFanout = 8

var appVersion = version.Application{
	Name:    "cadence-validator",
	Version: version.Semantic{Major: 0, Minor: 1, Patch: 0},
}

type flags struct {
	ledgerDir        string
	identityPath     string
	entrypoint       string
	gossipPort       int
	rpcPort          int
	noVoting         bool
	dynamicPortRange string
	initCompleteFile string
	logLevel         string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:     "validator",
		Short:   "Run a cluster validator node",
		Version: appVersion.Version.String(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(f)
		},
	}
	cmd.Flags().StringVar(&f.ledgerDir, "ledger", "ledger", "ledger/Blocktree directory")
	cmd.Flags().StringVar(&f.identityPath, "identity", "", "path to the validator's identity keypair seed")
	cmd.Flags().StringVar(&f.entrypoint, "entrypoint", "", "gossip entrypoint of an existing cluster member")
	cmd.Flags().IntVar(&f.gossipPort, "gossip-port", 8001, "UDP port for the gossip service")
	cmd.Flags().IntVar(&f.rpcPort, "rpc-port", 8899, "TCP port for the JSON-RPC facade")
	cmd.Flags().BoolVar(&f.noVoting, "no-voting", false, "run without submitting Tower votes")
	cmd.Flags().StringVar(&f.dynamicPortRange, "dynamic-port-range", "8000-8020", "port range for dynamically bound services")
	cmd.Flags().StringVar(&f.initCompleteFile, "init-complete-file", "", "file touched once startup finishes, for readiness probes")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "off", "log level (off, debug, info, warn, error); off leaves the validator silent")
	return cmd
}

// resolveLogger attaches a real log.NewLogger sink at the requested
// level, or the no-op sink when level is "off" (the default), so a
// process-fatal diagnostic actually has somewhere to surface (spec.md
// §7).
func resolveLogger(level string) log.Logger {
	if strings.EqualFold(level, "") || strings.EqualFold(level, "off") {
		return cadencelog.NewNoOpLogger()
	}
	logger := log.NewLogger("validator")
	if lvl, ok := parseLogLevel(level); ok {
		logger.SetLevel(lvl)
	}
	return logger
}

func parseLogLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return 0, false
	}
}

func run(f *flags) error {
	logger := resolveLogger(f.logLevel)
	params := config.DefaultParams()
	if err := params.Valid(); err != nil {
		return fmt.Errorf("invalid cluster parameters: %w", err)
	}

	identity, err := loadOrGenerateIdentity(f.identityPath)
	if err != nil {
		return fmt.Errorf("loading identity: %w", err)
	}
	nodeID := types.NodeIDFromPubkey(identity.Pubkey())
	nctx := node.NewContext(nodeID, identity.Pubkey(), logger, f.ledgerDir)
	nctx.Log.Info(fmt.Sprintf("starting %s as %s", appVersion, nodeID))

	tree, err := blocktree.Open(f.ledgerDir)
	if err != nil {
		return fmt.Errorf("opening blocktree at %s: %w", f.ledgerDir, err)
	}
	defer tree.Close()

	genesisHash := types.HashBytes([]byte("cadence-genesis"))
	genesis := bank.NewGenesisBank(params, genesisHash, map[types.Pubkey]*bank.Account{
		identity.Pubkey(): {Lamports: 0, Owner: bank.SystemProgramID},
	})
	genesis.Freeze()
	forks := bankforks.New(genesis)

	tow := tower.New(params)
	vset := validators.NewSet(types.NodeIDFromPubkey, activeStakes(genesis))

	blocktreeMetrics, err := metrics.NewBlocktreeMetrics("cadence_blocktree", nctx.Registerer)
	if err != nil {
		return fmt.Errorf("registering blocktree metrics: %w", err)
	}
	tree.WithMetrics(blocktreeMetrics)

	schedule, err := leader.Compute(params, 0, stakeEntries(genesis))
	if err != nil && err != leader.ErrNoStake {
		return fmt.Errorf("computing leader schedule: %w", err)
	}
	if schedule != nil {
		stage := replay.New(tree, forks, tow, bank.DecodeTransaction, replay.DefaultEntriesForSlot, 30*time.Second, nil)
		replayTicker := time.NewTicker(400 * time.Millisecond)
		defer replayTicker.Stop()
		go func() {
			for range replayTicker.C {
				advanced, err := stage.ReplayFrontier(func(parentSlot uint64) (uint64, bool) {
					return parentSlot + 1, parentSlot+1 < uint64(len(schedule.Leaders))
				})
				if err != nil {
					nctx.Log.Error(fmt.Sprintf("replay frontier: %v", err))
					continue
				}
				for _, slot := range advanced {
					nctx.Log.Debug(fmt.Sprintf("replayed slot %d", slot))
				}
			}
		}()

		pohMetrics, err := metrics.NewPoHMetrics("cadence_poh", nctx.Registerer)
		if err != nil {
			return fmt.Errorf("registering PoH metrics: %w", err)
		}
		broadcastMetrics, err := metrics.NewBroadcastMetrics("cadence_broadcast", nctx.Registerer)
		if err != nil {
			return fmt.Errorf("registering broadcast metrics: %w", err)
		}
		recorder := poh.NewRecorder(params, genesisHash).WithMetrics(pohMetrics)
		bcast := broadcast.New(gossip.NoOpAppSender{}, vset, leaderFanout, identitySeed(identity)).WithMetrics(broadcastMetrics)
		go runLeaderProduction(nctx, params, recorder, tree, bcast, identity, schedule, genesisHash)
	} else {
		nctx.Log.Info("no active stake yet, replay loop idle until a stake snapshot exists")
	}

	svc := &rpc.Service{
		Forks:       forks,
		Tree:        tree,
		Tower:       tow,
		Validators:  vset,
		Params:      params,
		GenesisHash: genesisHash,
		StartedAt:   time.Now(),
	}
	mux, err := rpc.NewServer(svc, readinessChecker{forks: forks, nctx: nctx})
	if err != nil {
		return fmt.Errorf("mounting RPC server: %w", err)
	}

	server := &http.Server{Addr: fmt.Sprintf(":%d", f.rpcPort), Handler: mux}

	nctx.MarkReady()
	if f.initCompleteFile != "" {
		if err := os.WriteFile(f.initCompleteFile, []byte("ready\n"), 0o644); err != nil {
			return fmt.Errorf("writing init-complete-file: %w", err)
		}
	}
	if f.noVoting {
		nctx.Log.Info("running without a voting Tower")
	}

	shutdown := &wrappers.Errs{}
	shutdown.Add(server.ListenAndServe())
	if err := shutdown.Err(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func activeStakes(b *bank.Bank) map[types.Pubkey]uint64 {
	out := make(map[types.Pubkey]uint64)
	for pk, stake := range b.Stakes() {
		if stake.Active {
			out[pk] = stake.Amount
		}
	}
	return out
}

// stakeEntries adapts a Bank's active stake snapshot into leader's
// input shape for schedule computation.
func stakeEntries(b *bank.Bank) []leader.StakeEntry {
	stakes := b.Stakes()
	out := make([]leader.StakeEntry, 0, len(stakes))
	for pk, stake := range stakes {
		if stake.Active {
			out = append(out, leader.StakeEntry{Pubkey: pk, Stake: stake.Amount})
		}
	}
	return out
}

// runLeaderProduction drives this node's own PoH clock: whenever the
// leader schedule names this node's identity for the current slot, it
// ticks the recorder for a full slot's worth of hashes, drains the
// resulting Entry stream, splits it into a FEC set of data and parity
// shreds (spec.md §4.3), signs and inserts the data shreds into this
// node's own Blocktree, and fans the whole FEC set out through the
// Broadcast Stage (spec.md §2 "when this node is leader"). Only the
// data shreds are inserted locally: a leader already holds the full
// slot, so reconstruction via the parity shreds is a repair path for
// lagging peers, not something the producer itself needs.
func runLeaderProduction(nctx *node.Context, params config.Parameters, recorder *poh.Recorder, tree *blocktree.Blocktree, bcast *broadcast.Stage, identity *crypto.Keypair, schedule *leader.Schedule, genesisHash types.Hash) {
	interval := params.RecordTimeout / time.Duration(params.HashesPerTick)
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	self := identity.Pubkey()
	parentHash := genesisHash
	var slot uint64
	for range ticker.C {
		leaderPK, ok := schedule.LeaderForSlot(params, slot)
		if !ok || leaderPK != self {
			slot++
			continue
		}

		recorder.Reset(parentHash, 0)
		for h := uint64(0); h < params.HashesPerSlot(); h++ {
			recorder.Tick()
		}
		entries := recorder.Drain()
		if len(entries) == 0 {
			slot++
			continue
		}
		parentHash = entries[len(entries)-1].Hash

		raw, err := poh.EncodeEntries(entries)
		if err != nil {
			nctx.Log.Error(fmt.Sprintf("encoding slot %d entries: %v", slot, err))
			slot++
			continue
		}
		fec, err := shred.Split(slot, 0, raw, params.ShredPayloadSize, params.DataShreds, params.ParityShreds, true)
		if err != nil {
			nctx.Log.Error(fmt.Sprintf("splitting slot %d into shreds: %v", slot, err))
			slot++
			continue
		}

		if slot > 0 {
			for _, sh := range fec.DataShreds {
				sh.ParentOffset = 1
			}
			for _, sh := range fec.ParityShreds {
				sh.ParentOffset = 1
			}
		}
		for _, sh := range fec.DataShreds {
			sh.Sign(identity)
			if _, err := tree.InsertShred(sh); err != nil {
				nctx.Log.Error(fmt.Sprintf("inserting produced shred slot=%d index=%d: %v", slot, sh.IndexWithinSlot, err))
			}
		}
		for _, sh := range fec.ParityShreds {
			sh.Sign(identity)
		}

		if err := bcast.SendAll(context.Background(), fec, marshalShredForWire); err != nil {
			nctx.Log.Error(fmt.Sprintf("broadcasting slot %d: %v", slot, err))
		}
		nctx.Log.Debug(fmt.Sprintf("produced slot %d as leader (%d data, %d parity shreds)", slot, len(fec.DataShreds), len(fec.ParityShreds)))
		slot++
	}
}

// marshalShredForWire is the Broadcast Stage's wire encoding for a
// produced shred: plain JSON, the same encoding Blocktree already uses
// for its own duplicate-proof records.
func marshalShredForWire(sh *shred.Shred) []byte {
	raw, err := json.Marshal(sh)
	if err != nil {
		return nil
	}
	return raw
}

// identitySeed derives a broadcast-sampler seed from this node's own
// public key, so repeated runs of the same identity draw the same
// deterministic fanout sample.
func identitySeed(identity *crypto.Keypair) int64 {
	pk := identity.Pubkey()
	return int64(binary.BigEndian.Uint64(pk[:8]))
}

func loadOrGenerateIdentity(path string) (*crypto.Keypair, error) {
	if path == "" {
		return crypto.GenerateKeypair()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return crypto.KeypairFromSeed(raw)
}

// readinessChecker reports healthy once startup has finished and
// BankForks has at least one tracked working tip.
type readinessChecker struct {
	forks *bankforks.BankForks
	nctx  *node.Context
}

var _ health.Checker = readinessChecker{}

func (r readinessChecker) HealthCheck(_ context.Context) (interface{}, error) {
	tips := r.forks.Frontier()
	return health.Report{Healthy: r.nctx.Ready() && len(tips) > 0}, nil
}
