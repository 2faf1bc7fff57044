// Copyright 2025 Certen Protocol

// Package ledger drives the block lifecycle on top of pkg/wstate and
// pkg/vkv: three branches (Main, DeliverTx, CheckTx), the
// BeginBlock/DeliverTx/EndBlock/Commit state machine an ABCI Application
// folds into FinalizeBlock/Commit, and the JSON snapshot written to disk at
// every Commit.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"

	"github.com/ovrchain/ovrd/pkg/merkle"
	"github.com/ovrchain/ovrd/pkg/ovrtx"
	"github.com/ovrchain/ovrd/pkg/vkv"
	"github.com/ovrchain/ovrd/pkg/wstate"
)

// Branch names for the three lines of history every Ledger maintains.
// DeliverTx and CheckTx both fork from Main and are discarded and
// recreated at every BeginBlock; only Main ever survives across blocks.
const (
	MainBranch      = vkv.MainBranch
	DeliverTxBranch = vkv.BranchName("deliver_tx")
	CheckTxBranch   = vkv.BranchName("check_tx")
)

// StateBranch pairs a branch name with the wstate.State view pinned to it.
type StateBranch struct {
	Branch vkv.BranchName
	State  *wstate.State
}

// blockInProgress accumulates one block's receipts between BeginBlock and
// Commit.
type blockInProgress struct {
	height    uint64
	proposer  []byte
	timestamp uint64
	prevHash  common.Hash

	receipts []*wstate.Receipt
	bloom    wstate.Bloom
	nextTx   int
}

// Ledger owns the VKV store's three top-level branches and the in-progress
// block builder between BeginBlock and Commit.
type Ledger struct {
	store   *vkv.Store
	dataDir string

	mu        sync.Mutex
	Main      *StateBranch
	DeliverTx *StateBranch
	CheckTx   *StateBranch
	pending   *blockInProgress
}

// Open binds a Ledger to store, creating the DeliverTx/CheckTx branches the
// first time it ever runs against this store and just rebinding to them on
// every later restart.
func Open(store *vkv.Store, dataDir string) (*Ledger, error) {
	if err := ensureBranch(store, DeliverTxBranch, MainBranch); err != nil {
		return nil, err
	}
	if err := ensureBranch(store, CheckTxBranch, MainBranch); err != nil {
		return nil, err
	}
	return &Ledger{
		store:     store,
		dataDir:   dataDir,
		Main:      &StateBranch{Branch: MainBranch, State: wstate.New(store, MainBranch)},
		DeliverTx: &StateBranch{Branch: DeliverTxBranch, State: wstate.New(store, DeliverTxBranch)},
		CheckTx:   &StateBranch{Branch: CheckTxBranch, State: wstate.New(store, CheckTxBranch)},
	}, nil
}

func ensureBranch(store *vkv.Store, name, parent vkv.BranchName) error {
	if store.HasBranch(name) {
		return nil
	}
	return store.BranchCreate(name, parent)
}

// Genesis is the InitChain payload: the chain's identity and its initial
// OFUEL balances.
type Genesis struct {
	ChainID      uint64
	ChainName    string
	ChainVersion string

	BlockGasLimit uint64

	Balances map[common.Address]*uint256.Int
}

// InitChain seeds chain identity and genesis OFUEL balances on Main at
// version (0, 0). It is only ever valid once per store.
func (l *Ledger) InitChain(g Genesis) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok, err := l.Main.State.ChainID.Get(); err != nil {
		return err
	} else if ok {
		return ErrAlreadyInitialized
	}

	ver, err := l.store.NextVersion(MainBranch, 0, 0)
	if err != nil {
		return err
	}
	if err := l.Main.State.ChainID.Set(ver, g.ChainID); err != nil {
		return err
	}
	if err := l.Main.State.ChainName.Set(ver, g.ChainName); err != nil {
		return err
	}
	if err := l.Main.State.ChainVersion.Set(ver, g.ChainVersion); err != nil {
		return err
	}
	if g.BlockGasLimit > 0 {
		if err := l.Main.State.SetBlockGasLimit(ver, g.BlockGasLimit); err != nil {
			return err
		}
	}
	for addr, amount := range g.Balances {
		if err := l.Main.State.OFUEL.CreditGenesis(ver, addr, amount); err != nil {
			return err
		}
	}
	return nil
}

// Info reports the height and app hash of the last committed block, for the
// ABCI Info RPC.
func (l *Ledger) Info() (height uint64, appHash []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	h, block, ok := l.Main.State.LastBlock()
	if !ok {
		return 0, nil
	}
	return h, block.HeaderHash.Bytes()
}

// CheckTx validates raw against CheckTxBranch without ever writing to it.
func (l *Ledger) CheckTx(raw []byte) error {
	l.mu.Lock()
	state := l.CheckTx.State
	l.mu.Unlock()
	return ovrtx.Validate(state, raw)
}

// BeginBlock folds the previous block's DeliverTx writes into Main (the
// "refresh_branches" step happens here, one block lagged behind Commit by
// design: the block object itself lands on Main directly at Commit, but the
// balances/nonces/etc a block's transactions wrote only become visible on
// Main once the following block's BeginBlock runs this merge), then forks
// fresh DeliverTx and CheckTx branches from Main's new head.
func (l *Ledger) BeginBlock(height uint64, proposer []byte, timestamp uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pending != nil {
		return ErrBlockInProgress
	}

	if err := l.store.BranchMerge(MainBranch, DeliverTxBranch); err != nil {
		return err
	}
	if err := l.store.BranchRemove(DeliverTxBranch); err != nil {
		return err
	}
	if err := l.store.BranchCreate(DeliverTxBranch, MainBranch); err != nil {
		return err
	}
	if err := l.store.BranchRemove(CheckTxBranch); err != nil {
		return err
	}
	if err := l.store.BranchCreate(CheckTxBranch, MainBranch); err != nil {
		return err
	}

	chainID, _, err := l.Main.State.ChainID.Get()
	if err != nil {
		return err
	}
	coinbase := common.BytesToAddress(proposer)
	l.DeliverTx.State.UpdateVicinity(uint256.NewInt(chainID), coinbase, timestamp)
	l.CheckTx.State.UpdateVicinity(uint256.NewInt(chainID), coinbase, timestamp)

	prevHash := common.Hash{}
	if _, block, ok := l.Main.State.LastBlock(); ok {
		prevHash = block.HeaderHash
	}

	l.pending = &blockInProgress{
		height:    height,
		proposer:  proposer,
		timestamp: timestamp,
		prevHash:  prevHash,
	}
	return nil
}

// DeliverTx executes one transaction against DeliverTxBranch. A non-nil
// error means the transaction was rejected before touching state (decode or
// pre-execution failure) and occupies no slot in the block; otherwise the
// returned Receipt is recorded in block order regardless of its own
// StatusCode.
func (l *Ledger) DeliverTx(raw []byte) (*wstate.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pending == nil {
		return nil, ErrNoBlockInProgress
	}

	receipt, err := ovrtx.Execute(l.DeliverTx.State, l.pending.height, l.pending.nextTx, raw)
	if err != nil {
		return nil, err
	}
	l.pending.nextTx++
	l.pending.receipts = append(l.pending.receipts, receipt)
	l.pending.bloom.Or(receipt.LogsBloom)
	return receipt, nil
}

// EndBlock fills in each receipt's cumulative BlockGasUsed now that every
// transaction in the block has run.
func (l *Ledger) EndBlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pending == nil {
		return ErrNoBlockInProgress
	}
	var cumulative uint64
	for _, r := range l.pending.receipts {
		cumulative += r.TxGasUsed
		r.BlockGasUsed = cumulative
	}
	return nil
}

// Commit assembles the finished block (Merkle tree over its receipts' tx
// hashes, sha3-256 header hash), writes it to Main at version (height, 0),
// snapshots the ledger to disk, and clears the in-progress block. It
// returns the new app hash.
func (l *Ledger) Commit() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pending == nil {
		return nil, ErrNoBlockInProgress
	}
	p := l.pending

	txHashes := make([][]byte, len(p.receipts))
	receiptsByHash := make(map[common.Hash]*wstate.Receipt, len(p.receipts))
	txHashList := make([]common.Hash, len(p.receipts))
	for i, r := range p.receipts {
		txHashes[i] = r.TxHash.Bytes()
		receiptsByHash[r.TxHash] = r
		txHashList[i] = r.TxHash
	}

	tree, err := merkle.NewTreeStore(txHashes)
	if err != nil {
		return nil, err
	}
	rootBytes, err := tree.Root()
	if err != nil {
		return nil, err
	}

	header := wstate.BlockHeader{
		Height:    p.height,
		Proposer:  p.proposer,
		Timestamp: p.timestamp,
		TxMerkle: wstate.TxMerkle{
			RootHash: common.BytesToHash(rootBytes),
			Tree:     tree,
		},
		PrevHash: p.prevHash,
		Receipts: receiptsByHash,
	}
	headerHash, err := computeHeaderHash(header, p.receipts)
	if err != nil {
		return nil, err
	}

	block := wstate.Block{
		Header:     header,
		HeaderHash: headerHash,
		TxHashes:   txHashList,
		Bloom:      p.bloom,
	}

	ver, err := l.store.NextVersion(MainBranch, p.height, 0)
	if err != nil {
		return nil, err
	}
	if err := l.Main.State.Blocks.Insert(ver, p.height, block); err != nil {
		return nil, err
	}

	if err := l.snapshotToDisk(p.height, headerHash); err != nil {
		return nil, err
	}

	l.pending = nil
	return headerHash.Bytes(), nil
}

// computeHeaderHash hashes height, proposer, timestamp, the Merkle root,
// the previous header hash and the block's receipts with SHA3-256.
func computeHeaderHash(h wstate.BlockHeader, receipts []*wstate.Receipt) (common.Hash, error) {
	payload := struct {
		Height     uint64
		Proposer   []byte
		Timestamp  uint64
		MerkleRoot common.Hash
		PrevHash   common.Hash
		Receipts   []*wstate.Receipt
	}{h.Height, h.Proposer, h.Timestamp, h.TxMerkle.RootHash, h.PrevHash, receipts}

	buf, err := json.Marshal(payload)
	if err != nil {
		return common.Hash{}, fmt.Errorf("ledger: encode header hash payload: %w", err)
	}
	sum := sha3.Sum256(buf)
	return common.Hash(sum), nil
}

// ledgerSnapshot is the small JSON record written to <dataDir>/overeality/
// ledger/ledger.json at every Commit, primarily useful for operators
// inspecting a node's progress without opening its VKV store.
type ledgerSnapshot struct {
	Height      uint64      `json:"height"`
	HeaderHash  common.Hash `json:"headerHash"`
	CommittedAt time.Time   `json:"committedAt"`
}

func (l *Ledger) snapshotToDisk(height uint64, headerHash common.Hash) error {
	if l.dataDir == "" {
		return nil
	}
	dir := filepath.Join(l.dataDir, "overeality", "ledger")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	snap := ledgerSnapshot{Height: height, HeaderHash: headerHash, CommittedAt: time.Now().UTC()}
	buf, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	final := filepath.Join(dir, "ledger.json")
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, final)
}
