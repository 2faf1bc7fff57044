// Copyright 2025 Certen Protocol
//
// ABCI Application wiring pkg/ledger into CometBFT consensus.

package consensus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"os"

	abcitypes "github.com/cometbft/cometbft/abci/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ovrchain/ovrd/pkg/ledger"
	"github.com/ovrchain/ovrd/pkg/wstate"
)

var blocksFinalized = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "overeality_blocks_finalized_total",
	Help: "Total number of blocks this node has finalized.",
})

func init() {
	prometheus.MustRegister(blocksFinalized)
}

// Application implements abcitypes.Application on top of pkg/ledger,
// folding CometBFT's Begin/Deliver/EndBlock sequence into FinalizeBlock the
// way the engine this node plugs into expects from ABCI 0.38.
type Application struct {
	logger *log.Logger
	ledger *ledger.Ledger
}

// NewApplication binds an Application to l.
func NewApplication(l *ledger.Ledger) *Application {
	return &Application{
		logger: log.New(os.Stdout, "[overeality] ", log.LstdFlags),
		ledger: l,
	}
}

var _ abcitypes.Application = (*Application)(nil)

// genesisDoc is the JSON shape expected in RequestInitChain.AppStateBytes.
type genesisDoc struct {
	ChainName     string            `json:"chain_name"`
	ChainVersion  string            `json:"chain_version"`
	BlockGasLimit uint64            `json:"block_gas_limit"`
	Balances      map[string]string `json:"balances"`
}

// Info reports the last committed height and app hash so CometBFT can
// resume from where this node left off.
func (a *Application) Info(ctx context.Context, req *abcitypes.RequestInfo) (*abcitypes.ResponseInfo, error) {
	height, appHash := a.ledger.Info()
	a.logger.Printf("info: height=%d appHash=%x", height, appHash)
	return &abcitypes.ResponseInfo{
		Data:             "overeality",
		Version:          "1.0.0",
		AppVersion:       1,
		LastBlockHeight:  int64(height),
		LastBlockAppHash: appHash,
	}, nil
}

// InitChain seeds chain identity and genesis balances from
// req.AppStateBytes.
func (a *Application) InitChain(ctx context.Context, req *abcitypes.RequestInitChain) (*abcitypes.ResponseInitChain, error) {
	var doc genesisDoc
	if len(req.AppStateBytes) > 0 {
		if err := json.Unmarshal(req.AppStateBytes, &doc); err != nil {
			return nil, fmt.Errorf("consensus: decode genesis app state: %w", err)
		}
	}

	chainID, ok := new(big.Int).SetString(req.ChainId, 10)
	if !ok {
		// Chain ids that aren't base-10 integers (e.g. a network name) fall
		// back to the length of the chain-id string as the numeric id.
		chainID = big.NewInt(int64(len(req.ChainId)))
	}

	balances := make(map[common.Address]*uint256.Int, len(doc.Balances))
	for addrHex, amountDec := range doc.Balances {
		amount, ok := new(uint256.Int).SetFromDecimal(amountDec)
		if !ok {
			return nil, fmt.Errorf("consensus: genesis balance %q for %s is not a valid decimal", amountDec, addrHex)
		}
		balances[common.HexToAddress(addrHex)] = amount
	}

	err := a.ledger.InitChain(ledger.Genesis{
		ChainID:       chainID.Uint64(),
		ChainName:     doc.ChainName,
		ChainVersion:  doc.ChainVersion,
		BlockGasLimit: doc.BlockGasLimit,
		Balances:      balances,
	})
	if err != nil {
		return nil, err
	}

	a.logger.Printf("init chain: id=%s accounts=%d", req.ChainId, len(balances))
	return &abcitypes.ResponseInitChain{}, nil
}

// CheckTx validates a transaction against CheckTxBranch without mutating
// any state CometBFT's consensus sequence depends on.
func (a *Application) CheckTx(ctx context.Context, req *abcitypes.RequestCheckTx) (*abcitypes.ResponseCheckTx, error) {
	if err := a.ledger.CheckTx(req.Tx); err != nil {
		return &abcitypes.ResponseCheckTx{Code: 1, Log: err.Error()}, nil
	}
	return &abcitypes.ResponseCheckTx{Code: 0}, nil
}

// FinalizeBlock drives BeginBlock, one DeliverTx per transaction and
// EndBlock, then reports Commit's resulting app hash eagerly the way ABCI
// 0.38 expects (FinalizeBlock carries the block's AppHash; Commit only
// persists it).
func (a *Application) FinalizeBlock(ctx context.Context, req *abcitypes.RequestFinalizeBlock) (*abcitypes.ResponseFinalizeBlock, error) {
	if err := a.ledger.BeginBlock(uint64(req.Height), req.ProposerAddress, uint64(req.Time.Unix())); err != nil {
		return nil, err
	}

	results := make([]*abcitypes.ExecTxResult, len(req.Txs))
	for i, tx := range req.Txs {
		receipt, err := a.ledger.DeliverTx(tx)
		if err != nil {
			results[i] = &abcitypes.ExecTxResult{Code: 1, Log: err.Error()}
			continue
		}
		code := uint32(0)
		if !receipt.StatusCode {
			code = 1
		}
		results[i] = &abcitypes.ExecTxResult{
			Code:    code,
			Data:    receipt.TxHash.Bytes(),
			GasUsed: int64(receipt.TxGasUsed),
			Events:  receiptEvents(receipt),
		}
	}

	if err := a.ledger.EndBlock(); err != nil {
		return nil, err
	}
	appHash, err := a.ledger.Commit()
	if err != nil {
		return nil, err
	}

	blocksFinalized.Inc()
	a.logger.Printf("finalize block %d: %d txs, appHash=%x", req.Height, len(req.Txs), appHash)
	return &abcitypes.ResponseFinalizeBlock{
		TxResults: results,
		AppHash:   appHash,
	}, nil
}

// Commit acknowledges the block FinalizeBlock already committed to the
// ledger; pkg/ledger has no separate commit-phase work left to do by the
// time this RPC arrives.
func (a *Application) Commit(ctx context.Context, req *abcitypes.RequestCommit) (*abcitypes.ResponseCommit, error) {
	return &abcitypes.ResponseCommit{}, nil
}

// receiptEvents turns a receipt's EVM logs into ABCI events so log-based
// subscriptions (CometBFT's tx search/websocket) can filter by address.
func receiptEvents(r *wstate.Receipt) []abcitypes.Event {
	if len(r.Logs) == 0 {
		return nil
	}
	events := make([]abcitypes.Event, len(r.Logs))
	for i, l := range r.Logs {
		events[i] = abcitypes.Event{
			Type: "evm_log",
			Attributes: []abcitypes.EventAttribute{
				{Key: "address", Value: l.Address.Hex(), Index: true},
				{Key: "tx_hash", Value: l.TxHash.Hex(), Index: true},
			},
		}
	}
	return events
}

// Query answers a small set of read paths directly against Main; anything
// richer (eth_call-shaped contract reads) belongs to pkg/web3 instead.
func (a *Application) Query(ctx context.Context, req *abcitypes.RequestQuery) (*abcitypes.ResponseQuery, error) {
	switch req.Path {
	case "/height":
		height, _ := a.ledger.Info()
		return &abcitypes.ResponseQuery{Code: 0, Value: []byte(fmt.Sprintf("%d", height))}, nil
	default:
		return &abcitypes.ResponseQuery{Code: 1, Log: "unknown query path: " + req.Path}, nil
	}
}

// PrepareProposal passes transactions through unmodified; this node does
// not reorder or inject transactions at proposal time.
func (a *Application) PrepareProposal(ctx context.Context, req *abcitypes.RequestPrepareProposal) (*abcitypes.ResponsePrepareProposal, error) {
	return &abcitypes.ResponsePrepareProposal{Txs: req.Txs}, nil
}

// ProcessProposal accepts any proposal; CheckTx already screens
// transactions before they reach a proposer.
func (a *Application) ProcessProposal(ctx context.Context, req *abcitypes.RequestProcessProposal) (*abcitypes.ResponseProcessProposal, error) {
	return &abcitypes.ResponseProcessProposal{Status: abcitypes.ResponseProcessProposal_ACCEPT}, nil
}

// ExtendVote is a no-op; this node does not use vote extensions.
func (a *Application) ExtendVote(ctx context.Context, req *abcitypes.RequestExtendVote) (*abcitypes.ResponseExtendVote, error) {
	return &abcitypes.ResponseExtendVote{}, nil
}

// VerifyVoteExtension accepts the empty extension ExtendVote always produces.
func (a *Application) VerifyVoteExtension(ctx context.Context, req *abcitypes.RequestVerifyVoteExtension) (*abcitypes.ResponseVerifyVoteExtension, error) {
	return &abcitypes.ResponseVerifyVoteExtension{Status: abcitypes.ResponseVerifyVoteExtension_ACCEPT}, nil
}

// ListSnapshots reports none; state sync is not supported yet.
func (a *Application) ListSnapshots(ctx context.Context, req *abcitypes.RequestListSnapshots) (*abcitypes.ResponseListSnapshots, error) {
	return &abcitypes.ResponseListSnapshots{}, nil
}

func (a *Application) OfferSnapshot(ctx context.Context, req *abcitypes.RequestOfferSnapshot) (*abcitypes.ResponseOfferSnapshot, error) {
	return &abcitypes.ResponseOfferSnapshot{Result: abcitypes.ResponseOfferSnapshot_REJECT}, nil
}

func (a *Application) LoadSnapshotChunk(ctx context.Context, req *abcitypes.RequestLoadSnapshotChunk) (*abcitypes.ResponseLoadSnapshotChunk, error) {
	return &abcitypes.ResponseLoadSnapshotChunk{}, nil
}

func (a *Application) ApplySnapshotChunk(ctx context.Context, req *abcitypes.RequestApplySnapshotChunk) (*abcitypes.ResponseApplySnapshotChunk, error) {
	return &abcitypes.ResponseApplySnapshotChunk{Result: abcitypes.ResponseApplySnapshotChunk_REJECT}, nil
}
