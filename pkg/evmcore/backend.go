package evmcore

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Backend is the read-only view of chain/world state an EVM execution runs
// against, plus Apply to commit the changes a transaction produced. It is
// the full surface this system's execution engine needs — nothing more —
// ported directly from the external EVM crate's Backend/ApplyBackend
// contract this system was originally built against.
type Backend interface {
	GasPrice() *uint256.Int
	Origin() common.Address
	BlockHash(number uint64) common.Hash
	BlockNumber() uint64
	BlockCoinbase() common.Address
	BlockTimestamp() uint64
	BlockDifficulty() *uint256.Int
	BlockGasLimit() uint64
	BlockBaseFeePerGas() *uint256.Int
	ChainID() *uint256.Int

	Exists(addr common.Address) bool
	Basic(addr common.Address) Basic
	Code(addr common.Address) []byte
	Storage(addr common.Address, key common.Hash) common.Hash
	OriginalStorage(addr common.Address, key common.Hash) (common.Hash, bool)

	// Apply commits a batch of account changes. logs are passed alongside;
	// the OFUEL-backed implementation (pkg/token) does not store them. deleteEmpty
	// mirrors EIP-161: accounts left with zero balance, zero nonce and no
	// code are pruned after the write lands.
	Apply(applies []Apply, logs []Log, deleteEmpty bool) error
}

// Vicinity is the block/transaction-invariant execution context: the parts
// of Backend that don't depend on branch state, held by value so it can be
// constructed fresh for every transaction without touching storage.
type Vicinity struct {
	GasPrice         *uint256.Int
	Origin           common.Address
	ChainID          *uint256.Int
	BlockNumber      uint64
	BlockCoinbase    common.Address
	BlockTimestamp   uint64
	BlockDifficulty  *uint256.Int
	BlockGasLimit    uint64
	BlockBaseFeePerGas *uint256.Int
}
