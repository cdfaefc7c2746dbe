// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rpc implements the validator's JSON-RPC facade (spec.md
// §6), mounted over gorilla/rpc the way the corpus mounts its JSON-RPC
// services: one Go method per RPC method, reflected into a handler by
// the codec.
package rpc

import (
	"errors"
	"net/http"
	"time"

	gorillarpc "github.com/gorilla/rpc"
	"github.com/gorilla/rpc/json"

	"github.com/luxfi/cadence/api"
	"github.com/luxfi/cadence/api/health"
	"github.com/luxfi/cadence/bank"
	"github.com/luxfi/cadence/bankforks"
	"github.com/luxfi/cadence/blocktree"
	"github.com/luxfi/cadence/config"
	"github.com/luxfi/cadence/leader"
	"github.com/luxfi/cadence/tower"
	"github.com/luxfi/cadence/types"
	"github.com/luxfi/cadence/utils/formatting"
	"github.com/luxfi/cadence/utils/version"
	"github.com/luxfi/cadence/validators"
)

// Commitment is the confidence level a query is evaluated at (spec.md
// §6 "Commitment levels").
type Commitment string

const (
	// CommitmentRecent returns the state of the current working tip.
	CommitmentRecent Commitment = "recent"
	// CommitmentMax returns the state of the BankForks root bank.
	// EpochFinalityStake is not consulted.
	CommitmentMax Commitment = "max"
)

var (
	// ErrUnknownCommitment is returned when a request names a
	// commitment level other than "recent" or "max".
	ErrUnknownCommitment = errors.New("rpc: unknown commitment level")
	// ErrAccountNotFound mirrors the cluster's null-result convention
	// for getAccountInfo/getBalance on an absent pubkey.
	ErrAccountNotFound = errors.New("rpc: account not found")
)

// AppVersion identifies the binary serving getVersion.
var AppVersion = version.Application{
	Name:    "cadence-validator",
	Version: version.Semantic{Major: 0, Minor: 1, Patch: 0},
}

// Service implements the exported RPC surface. Every method follows
// gorilla/rpc's convention: func(r *http.Request, args *Args, reply
// *Reply) error.
type Service struct {
	Forks      *bankforks.BankForks
	Tree       *blocktree.Blocktree
	Tower      *tower.Tower
	Validators *validators.Set
	Params     config.Parameters
	GenesisHash types.Hash
	StartedAt  time.Time
}

// NewServer mounts Service behind gorilla/rpc's JSON-RPC 1.0 codec
// (gorilla/rpc/json) at "/", and the health checker at "/health".
func NewServer(svc *Service, checker health.Checker) (*http.ServeMux, error) {
	server := gorillarpc.NewServer()
	server.RegisterCodec(json.NewCodec(), "application/json")
	if err := server.RegisterService(svc, ""); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/", server)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		report, err := checker.HealthCheck(r.Context())
		if err != nil {
			_ = api.WriteError(w, http.StatusServiceUnavailable, err)
			return
		}
		_ = api.WriteSuccess(w, report)
	})
	return mux, nil
}

func (s *Service) bankAt(commitment Commitment) (*bank.Bank, error) {
	switch commitment {
	case "", CommitmentRecent:
		tips := s.Forks.Frontier()
		if len(tips) == 0 {
			return nil, ErrAccountNotFound
		}
		best := tips[0]
		for _, b := range tips[1:] {
			if b.Slot > best.Slot {
				best = b
			}
		}
		return best, nil
	case CommitmentMax:
		b, ok := s.Forks.Get(s.Forks.Root())
		if !ok {
			return nil, ErrAccountNotFound
		}
		return b, nil
	default:
		return nil, ErrUnknownCommitment
	}
}

// GetSlotArgs names the commitment level; getSlot reports the slot of
// the bank at that level (the working tip when empty or "recent").
type GetSlotArgs struct {
	Commitment Commitment `json:"commitment"`
}

// GetSlotReply carries the resolved slot.
type GetSlotReply struct {
	Slot uint64 `json:"slot"`
}

// GetSlot implements getSlot.
func (s *Service) GetSlot(r *http.Request, args *GetSlotArgs, reply *GetSlotReply) error {
	b, err := s.bankAt(args.Commitment)
	if err != nil {
		return err
	}
	reply.Slot = b.Slot
	return nil
}

// GetBalanceArgs names the account to query.
type GetBalanceArgs struct {
	Pubkey     string     `json:"pubkey"`
	Commitment Commitment `json:"commitment"`
}

// GetBalanceReply carries the account's lamport balance.
type GetBalanceReply struct {
	Value uint64 `json:"value"`
}

// GetBalance implements getBalance.
func (s *Service) GetBalance(r *http.Request, args *GetBalanceArgs, reply *GetBalanceReply) error {
	pk, err := decodePubkey(args.Pubkey)
	if err != nil {
		return err
	}
	b, err := s.bankAt(args.Commitment)
	if err != nil {
		return err
	}
	acct := b.GetAccount(pk)
	if acct == nil {
		reply.Value = 0
		return nil
	}
	reply.Value = acct.Lamports
	return nil
}

// GetAccountInfoArgs names the account to query.
type GetAccountInfoArgs struct {
	Pubkey     string     `json:"pubkey"`
	Commitment Commitment `json:"commitment"`
}

// AccountInfo is the wire shape of one queried account.
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Data       []byte `json:"data"`
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rentEpoch"`
}

// GetAccountInfoReply carries the account, or a nil Value if absent.
type GetAccountInfoReply struct {
	Value *AccountInfo `json:"value"`
}

// GetAccountInfo implements getAccountInfo.
func (s *Service) GetAccountInfo(r *http.Request, args *GetAccountInfoArgs, reply *GetAccountInfoReply) error {
	pk, err := decodePubkey(args.Pubkey)
	if err != nil {
		return err
	}
	b, err := s.bankAt(args.Commitment)
	if err != nil {
		return err
	}
	acct := b.GetAccount(pk)
	if acct == nil {
		reply.Value = nil
		return nil
	}
	owner, err := formatting.Encode(formatting.Base58, acct.Owner[:])
	if err != nil {
		return err
	}
	reply.Value = &AccountInfo{
		Lamports:   acct.Lamports,
		Owner:      owner,
		Data:       acct.Data,
		Executable: acct.Executable,
		RentEpoch:  acct.RentEpoch,
	}
	return nil
}

// GetRecentBlockhashArgs is empty.
type GetRecentBlockhashArgs struct{}

// GetRecentBlockhashReply carries the tip's freshest blockhash.
type GetRecentBlockhashReply struct {
	Blockhash string `json:"blockhash"`
}

// GetRecentBlockhash implements getRecentBlockhash.
func (s *Service) GetRecentBlockhash(r *http.Request, args *GetRecentBlockhashArgs, reply *GetRecentBlockhashReply) error {
	b, err := s.bankAt(CommitmentRecent)
	if err != nil {
		return err
	}
	bankHash := b.BankHash()
	hash, err := formatting.Encode(formatting.Base58, bankHash[:])
	if err != nil {
		return err
	}
	reply.Blockhash = hash
	return nil
}

// GetTransactionCountArgs names the commitment level to read at.
type GetTransactionCountArgs struct {
	Commitment Commitment `json:"commitment"`
}

// GetTransactionCountReply carries the tip slot, used as a liveness
// proxy since Bank does not track a running transaction counter
// separate from its status cache.
type GetTransactionCountReply struct {
	Value uint64 `json:"value"`
}

// GetTransactionCount implements getTransactionCount.
func (s *Service) GetTransactionCount(r *http.Request, args *GetTransactionCountArgs, reply *GetTransactionCountReply) error {
	b, err := s.bankAt(args.Commitment)
	if err != nil {
		return err
	}
	reply.Value = b.Slot
	return nil
}

// GetEpochInfoArgs names the commitment level to read at.
type GetEpochInfoArgs struct {
	Commitment Commitment `json:"commitment"`
}

// GetEpochInfoReply describes the current epoch progress.
type GetEpochInfoReply struct {
	Epoch        uint64 `json:"epoch"`
	SlotIndex    uint64 `json:"slotIndex"`
	SlotsInEpoch uint64 `json:"slotsInEpoch"`
	AbsoluteSlot uint64 `json:"absoluteSlot"`
}

// GetEpochInfo implements getEpochInfo.
func (s *Service) GetEpochInfo(r *http.Request, args *GetEpochInfoArgs, reply *GetEpochInfoReply) error {
	b, err := s.bankAt(args.Commitment)
	if err != nil {
		return err
	}
	epoch, offset := s.Params.SlotToEpoch(b.Slot)
	reply.Epoch = epoch
	reply.SlotIndex = offset
	reply.SlotsInEpoch = s.Params.EpochLength(epoch)
	reply.AbsoluteSlot = b.Slot
	return nil
}

// GetEpochScheduleArgs is empty.
type GetEpochScheduleArgs struct{}

// GetEpochScheduleReply mirrors config.Parameters' epoch warmup knobs.
type GetEpochScheduleReply struct {
	SlotsPerEpoch            uint64 `json:"slotsPerEpoch"`
	MinimumSlotsPerEpoch     uint64 `json:"minimumSlotsPerEpoch"`
	FirstNormalEpoch         uint64 `json:"firstNormalEpoch"`
	LeaderScheduleSlotOffset uint64 `json:"leaderScheduleSlotOffset"`
}

// GetEpochSchedule implements getEpochSchedule.
func (s *Service) GetEpochSchedule(r *http.Request, args *GetEpochScheduleArgs, reply *GetEpochScheduleReply) error {
	reply.SlotsPerEpoch = s.Params.SlotsPerEpoch
	reply.MinimumSlotsPerEpoch = s.Params.MinimumSlotsPerEpoch
	reply.FirstNormalEpoch = s.Params.FirstNormalEpoch
	reply.LeaderScheduleSlotOffset = s.Params.LeaderScheduleSlotOffset
	return nil
}

// GetGenesisHashArgs is empty.
type GetGenesisHashArgs struct{}

// GetGenesisHashReply carries the cluster's genesis hash.
type GetGenesisHashReply struct {
	Value string `json:"value"`
}

// GetGenesisHash implements getGenesisHash.
func (s *Service) GetGenesisHash(r *http.Request, args *GetGenesisHashArgs, reply *GetGenesisHashReply) error {
	hash, err := formatting.Encode(formatting.Base58, s.GenesisHash[:])
	if err != nil {
		return err
	}
	reply.Value = hash
	return nil
}

// GetVersionArgs is empty.
type GetVersionArgs struct{}

// GetVersionReply carries the validator binary's semantic version.
type GetVersionReply struct {
	Value string `json:"solana-core"`
}

// GetVersion implements getVersion.
func (s *Service) GetVersion(r *http.Request, args *GetVersionArgs, reply *GetVersionReply) error {
	reply.Value = AppVersion.Version.String()
	return nil
}

// GetVoteAccountsArgs is empty.
type GetVoteAccountsArgs struct{}

// VoteAccountInfo is one validator's vote-account stake snapshot.
type VoteAccountInfo struct {
	VotePubkey string `json:"votePubkey"`
	NodePubkey string `json:"nodePubkey"`
	ActivatedStake uint64 `json:"activatedStake"`
}

// GetVoteAccountsReply separates current (above-threshold) from
// delinquent validators; this implementation reports every tracked
// validator as current since delinquency tracking is out of scope.
type GetVoteAccountsReply struct {
	Current    []VoteAccountInfo `json:"current"`
	Delinquent []VoteAccountInfo `json:"delinquent"`
}

// GetVoteAccounts implements getVoteAccounts.
func (s *Service) GetVoteAccounts(r *http.Request, args *GetVoteAccountsArgs, reply *GetVoteAccountsReply) error {
	for _, v := range s.Validators.List() {
		vote, err := formatting.Encode(formatting.Base58, v.Vote[:])
		if err != nil {
			return err
		}
		node, err := formatting.Encode(formatting.Base58, v.NodeID[:])
		if err != nil {
			return err
		}
		reply.Current = append(reply.Current, VoteAccountInfo{
			VotePubkey:     vote,
			NodePubkey:     node,
			ActivatedStake: v.Stake,
		})
	}
	return nil
}

// GetLeaderScheduleArgs optionally names the epoch to query; when
// Epoch is absent (nil), the epoch of the current tip is used.
type GetLeaderScheduleArgs struct {
	Epoch *uint64 `json:"epoch"`
}

// GetLeaderScheduleReply maps each base58 leader pubkey to the slot
// offsets (within the epoch) it leads.
type GetLeaderScheduleReply struct {
	Value map[string][]uint64 `json:"value"`
}

// GetLeaderSchedule implements getLeaderSchedule.
func (s *Service) GetLeaderSchedule(r *http.Request, args *GetLeaderScheduleArgs, reply *GetLeaderScheduleReply) error {
	epoch := uint64(0)
	if args.Epoch != nil {
		epoch = *args.Epoch
	} else {
		b, err := s.bankAt(CommitmentRecent)
		if err != nil {
			return err
		}
		epoch, _ = s.Params.SlotToEpoch(b.Slot)
	}

	entries := make([]leader.StakeEntry, 0, s.Validators.Len())
	for _, v := range s.Validators.List() {
		entries = append(entries, leader.StakeEntry{Pubkey: v.Vote, Stake: v.Stake})
	}
	schedule, err := leader.Compute(s.Params, epoch, entries)
	if err != nil {
		return err
	}

	out := make(map[string][]uint64, len(schedule.Leaders))
	for i, pk := range schedule.Leaders {
		key, err := formatting.Encode(formatting.Base58, pk[:])
		if err != nil {
			return err
		}
		out[key] = append(out[key], uint64(i))
	}
	reply.Value = out
	return nil
}

// GetSlotLeaderArgs is empty.
type GetSlotLeaderArgs struct{}

// GetSlotLeaderReply carries the current slot's scheduled leader.
type GetSlotLeaderReply struct {
	Value string `json:"value"`
}

// GetSlotLeader implements getSlotLeader.
func (s *Service) GetSlotLeader(r *http.Request, args *GetSlotLeaderArgs, reply *GetSlotLeaderReply) error {
	b, err := s.bankAt(CommitmentRecent)
	if err != nil {
		return err
	}
	leaderPk, err := formatting.Encode(formatting.Base58, b.Leader[:])
	if err != nil {
		return err
	}
	reply.Value = leaderPk
	return nil
}

// GetSignatureStatusArgs names the signature to look up.
type GetSignatureStatusArgs struct {
	Signature string `json:"signature"`
}

// GetSignatureStatusReply reports whether the signature has been
// processed, and any execution error it produced.
type GetSignatureStatusReply struct {
	Found bool   `json:"found"`
	Err   string `json:"err,omitempty"`
}

// GetSignatureStatus implements getSignatureStatus.
func (s *Service) GetSignatureStatus(r *http.Request, args *GetSignatureStatusArgs, reply *GetSignatureStatusReply) error {
	raw, err := formatting.Decode(formatting.Base58, args.Signature)
	if err != nil {
		return err
	}
	sig, err := types.SignatureFromBytes(raw)
	if err != nil {
		return err
	}
	b, err := s.bankAt(CommitmentRecent)
	if err != nil {
		return err
	}
	txErr, found := b.SignatureStatus(sig)
	reply.Found = found
	if txErr != nil {
		reply.Err = txErr.Error()
	}
	return nil
}

// GetMinimumBalanceForRentExemptionArgs carries the account's data
// size in bytes.
type GetMinimumBalanceForRentExemptionArgs struct {
	DataLen uint64 `json:"dataLen"`
}

// GetMinimumBalanceForRentExemptionReply carries the minimum balance.
type GetMinimumBalanceForRentExemptionReply struct {
	Value uint64 `json:"value"`
}

// GetMinimumBalanceForRentExemption implements
// getMinimumBalanceForRentExemption.
func (s *Service) GetMinimumBalanceForRentExemption(r *http.Request, args *GetMinimumBalanceForRentExemptionArgs, reply *GetMinimumBalanceForRentExemptionReply) error {
	bytesTotal := float64(args.DataLen + s.Params.AccountStorageOverhead)
	reply.Value = uint64(bytesTotal * s.Params.RentPerByteYear * s.Params.RentExemptThreshold)
	return nil
}

// SendTransactionArgs carries a base58-encoded signed wire
// transaction.
type SendTransactionArgs struct {
	Transaction string `json:"transaction"`
}

// SendTransactionReply carries the submitted signature.
type SendTransactionReply struct {
	Signature string `json:"signature"`
}

// SendTransaction implements sendTransaction: it decodes, sanitizes
// and signature-verifies the transaction and returns its signature.
// The transaction is not queued or forwarded anywhere, so it does not
// enter a produced slot.
func (s *Service) SendTransaction(r *http.Request, args *SendTransactionArgs, reply *SendTransactionReply) error {
	raw, err := formatting.Decode(formatting.Base58, args.Transaction)
	if err != nil {
		return err
	}
	tx, err := bank.DecodeTransaction(raw)
	if err != nil {
		return err
	}
	sig, err := formatting.Encode(formatting.Base58, tx.Signature[:])
	if err != nil {
		return err
	}
	reply.Signature = sig
	return nil
}

func decodePubkey(s string) (types.Pubkey, error) {
	raw, err := formatting.Decode(formatting.Base58, s)
	if err != nil {
		return types.Pubkey{}, err
	}
	return types.PubkeyFromBytes(raw)
}
