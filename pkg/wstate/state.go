// Copyright 2025 Certen Protocol

// Package wstate defines the world-state schema: the typed containers laid
// over pkg/vkv (chain identity, EVM environment, block index) and the block
// artifacts (Block, BlockHeader, Receipt, Log, Bloom) that pkg/ledger
// assembles at Commit. A State value is the root of all persistent data;
// cloning it onto a different branch is cheap because every container it
// holds only carries a store handle and a branch name.
package wstate

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/ovrchain/ovrd/pkg/evmcore"
	"github.com/ovrchain/ovrd/pkg/merkle"
	"github.com/ovrchain/ovrd/pkg/token"
	"github.com/ovrchain/ovrd/pkg/vkv"
)

var addressCodec = vkv.KeyCodec[common.Address]{
	Encode: func(a common.Address) []byte { return a.Bytes() },
	Decode: func(b []byte) common.Address { return common.BytesToAddress(b) },
}

var hashCodec = vkv.KeyCodec[common.Hash]{
	Encode: func(h common.Hash) []byte { return h.Bytes() },
	Decode: func(b []byte) common.Hash { return common.BytesToHash(b) },
}

// uint256Wire round-trips a uint256 through JSON as a decimal string.
type uint256Wire string

func toWire(v *uint256.Int) uint256Wire {
	if v == nil {
		return "0"
	}
	return uint256Wire(v.Dec())
}

func fromWire(w uint256Wire) *uint256.Int {
	v, ok := new(uint256.Int).SetFromDecimal(string(w))
	if !ok {
		return uint256.NewInt(0)
	}
	return v
}

// State is the root of all persistent data on one branch: chain identity,
// the EVM environment, and the committed block index. It holds no mutex of
// its own — the Ledger in pkg/ledger holds the lock.
type State struct {
	store  *vkv.Store
	branch vkv.BranchName

	ChainID      *vkv.Orphan[uint64]
	ChainName    *vkv.Orphan[string]
	ChainVersion *vkv.Orphan[string]

	GasPrice           *vkv.Orphan[uint256Wire]
	BlockGasLimit      *vkv.Orphan[uint256Wire]
	BlockBaseFeePerGas *vkv.Orphan[uint256Wire]
	BlockHashes        *vkv.OrderedMap[uint64, common.Hash]
	Vicinity           evmcore.Vicinity

	OFUEL *token.Token

	Blocks *vkv.OrderedMap[uint64, Block]
}

// New binds a fresh State to store, scoped to branch.
func New(store *vkv.Store, branch vkv.BranchName) *State {
	return &State{
		store:  store,
		branch: branch,

		ChainID:      vkv.NewOrphan[uint64](store, "wstate:chain_id", branch),
		ChainName:    vkv.NewOrphan[string](store, "wstate:chain_name", branch),
		ChainVersion: vkv.NewOrphan[string](store, "wstate:chain_version", branch),

		GasPrice:           vkv.NewOrphan[uint256Wire](store, "wstate:gas_price", branch),
		BlockGasLimit:      vkv.NewOrphan[uint256Wire](store, "wstate:block_gas_limit", branch),
		BlockBaseFeePerGas: vkv.NewOrphan[uint256Wire](store, "wstate:block_base_fee_per_gas", branch),
		BlockHashes:        vkv.NewOrderedMap[uint64, common.Hash](store, "wstate:block_hashes", branch, vkv.Uint64KeyCodec),

		OFUEL: token.New(store, branch),

		Blocks: vkv.NewOrderedMap[uint64, Block](store, "wstate:blocks", branch, vkv.Uint64KeyCodec),
	}
}

// Clone returns a State view sharing this one's store handles but pinned to
// a different branch — cheap, since no container data is copied.
func (s *State) Clone(branch vkv.BranchName) *State {
	return &State{
		store:  s.store,
		branch: branch,

		ChainID:      s.ChainID.OnBranch(branch),
		ChainName:    s.ChainName.OnBranch(branch),
		ChainVersion: s.ChainVersion.OnBranch(branch),

		GasPrice:           s.GasPrice.OnBranch(branch),
		BlockGasLimit:      s.BlockGasLimit.OnBranch(branch),
		BlockBaseFeePerGas: s.BlockBaseFeePerGas.OnBranch(branch),
		BlockHashes:        s.BlockHashes.OnBranch(branch),
		Vicinity:           s.Vicinity,

		OFUEL: s.OFUEL.OnBranch(branch),

		Blocks: s.Blocks.OnBranch(branch),
	}
}

// Store returns the underlying VKV store, e.g. for branch management.
func (s *State) Store() *vkv.Store { return s.store }

// Branch returns the branch this State view is pinned to.
func (s *State) Branch() vkv.BranchName { return s.branch }

// GetGasPrice reads the versioned minimum gas price, defaulting to the hard
// floor of 10 if never set.
func (s *State) GetGasPrice() *uint256.Int {
	w, ok, err := s.GasPrice.Get()
	if err != nil || !ok {
		return uint256.NewInt(GasPriceFloor)
	}
	return fromWire(w)
}

// SetGasPrice writes a new minimum gas price at ver.
func (s *State) SetGasPrice(ver vkv.Version, v *uint256.Int) error {
	return s.GasPrice.Set(ver, toWire(v))
}

func (s *State) GetBlockGasLimit() uint64 {
	w, ok, err := s.BlockGasLimit.Get()
	if err != nil || !ok {
		return DefaultBlockGasLimit
	}
	return fromWire(w).Uint64()
}

func (s *State) SetBlockGasLimit(ver vkv.Version, limit uint64) error {
	return s.BlockGasLimit.Set(ver, toWire(uint256.NewInt(limit)))
}

func (s *State) GetBlockBaseFeePerGas() *uint256.Int {
	w, ok, err := s.BlockBaseFeePerGas.Get()
	if err != nil || !ok {
		return uint256.NewInt(GasPriceFloor)
	}
	return fromWire(w)
}

func (s *State) SetBlockBaseFeePerGas(ver vkv.Version, v *uint256.Int) error {
	return s.BlockBaseFeePerGas.Set(ver, toWire(v))
}

// BlockHash implements the evmcore.Backend BLOCKHASH lookup.
func (s *State) BlockHash(height uint64) common.Hash {
	h, ok, err := s.BlockHashes.Get(height)
	if err != nil || !ok {
		return common.Hash{}
	}
	return h
}

// LastBlock returns the highest committed block and its height, if any.
func (s *State) LastBlock() (uint64, Block, bool) {
	h, b, ok, err := s.Blocks.Last()
	if err != nil || !ok {
		return 0, Block{}, false
	}
	return h, b, true
}

// UpdateVicinity recomputes the per-block environmental values the EVM
// consults. Called once per block by BeginBlock.
func (s *State) UpdateVicinity(chainID *uint256.Int, blockCoinbase common.Address, blockTimestamp uint64) {
	var blockNumber uint64
	if h, _, ok := s.LastBlock(); ok {
		blockNumber = h
	}
	s.Vicinity = evmcore.Vicinity{
		GasPrice:           s.GetGasPrice(),
		Origin:             common.Address{},
		ChainID:            chainID,
		BlockNumber:        blockNumber,
		BlockCoinbase:      blockCoinbase,
		BlockTimestamp:     blockTimestamp,
		BlockDifficulty:    uint256.NewInt(0),
		BlockGasLimit:      s.GetBlockGasLimit(),
		BlockBaseFeePerGas: s.GetBlockBaseFeePerGas(),
	}
}

// GasPriceFloor is the hard minimum gas price every transaction must meet or
// exceed, including the effective price EIP-1559 transactions are charged at
// regardless of their base-fee/priority-fee fields (see pkg/ovrtx).
const GasPriceFloor = 10

// DefaultBlockGasLimit seeds block_gas_limit before InitChain sets a real
// value.
const DefaultBlockGasLimit = 30_000_000

// Block is one committed block: header, header hash, the transactions it
// contains, and the OR of every contained receipt's bloom.
type Block struct {
	Header     BlockHeader   `json:"header"`
	HeaderHash common.Hash   `json:"headerHash"`
	TxHashes   []common.Hash `json:"txHashes"`
	Bloom      Bloom         `json:"bloom"`
}

// BlockHeader carries everything hashed into HeaderHash plus the receipts
// map, which spec.md keys by transaction hash.
type BlockHeader struct {
	Height    uint64                    `json:"height"`
	Proposer  []byte                    `json:"proposer"`
	Timestamp uint64                    `json:"timestamp"`
	TxMerkle  TxMerkle                  `json:"txMerkle"`
	PrevHash  common.Hash               `json:"prevHash"`
	Receipts  map[common.Hash]*Receipt  `json:"receipts"`
}

// TxMerkle is the per-block inclusion-proof tree plus its cached root.
type TxMerkle struct {
	RootHash common.Hash     `json:"rootHash"`
	Tree     *merkle.TreeStore `json:"tree"`
}

// Receipt is the execution outcome of one delivered transaction.
type Receipt struct {
	TxHash        common.Hash     `json:"txHash"`
	TxIndex       int             `json:"txIndex"`
	From          common.Address  `json:"from"`
	To             *common.Address `json:"to,omitempty"`
	BlockGasUsed  uint64          `json:"blockGasUsed"`
	TxGasUsed     uint64          `json:"txGasUsed"`
	ContractAddr  *common.Address `json:"contractAddr,omitempty"`
	StateRoot     *common.Hash    `json:"stateRoot,omitempty"`
	LogsBloom     Bloom           `json:"logsBloom"`
	StatusCode    bool            `json:"statusCode"`
	Logs          []Log           `json:"logs"`
}

// Log is one EVM event, enriched with its position in the block/tx for
// Web3-style log filtering.
type Log struct {
	Address         common.Address `json:"address"`
	Topics          []common.Hash  `json:"topics"`
	Data            []byte         `json:"data"`
	TxHash          common.Hash    `json:"txHash"`
	TxIndex         int            `json:"txIndex"`
	LogIndexInBlock int            `json:"logIndexInBlock"`
	LogIndexInTx    int            `json:"logIndexInTx"`
	Removed         bool           `json:"removed"`
}
