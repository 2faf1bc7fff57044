// Copyright 2025 Certen Protocol

// Package web3 exposes a read-only query surface over a ledger's Main
// state: direct getters for account balance, nonce and code, the chain id,
// committed blocks, receipts and transaction proofs (there is no getter for
// contract storage slots), plus CallContract, which dispatches an eth_call-shaped request against an
// ephemeral historical branch so it can never affect consensus state.
package web3

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/ovrchain/ovrd/pkg/evmcore"
	"github.com/ovrchain/ovrd/pkg/evmvm"
	"github.com/ovrchain/ovrd/pkg/merkle"
	"github.com/ovrchain/ovrd/pkg/token"
	"github.com/ovrchain/ovrd/pkg/vkv"
	"github.com/ovrchain/ovrd/pkg/wstate"
)

// Reader answers read-only queries against a ledger's Main branch.
type Reader struct {
	main *wstate.State
}

// NewReader binds a Reader to a ledger's Main state.
func NewReader(main *wstate.State) *Reader {
	return &Reader{main: main}
}

// CallRequest is an eth_call-shaped request: a message call (or, with To
// nil, a contract creation) dispatched without a transaction wrapper and
// without ever touching persistent state.
type CallRequest struct {
	From     common.Address
	To       *common.Address
	Value    *uint256.Int
	Data     []byte
	GasLimit uint64
}

// CallResult is the outcome of CallContract.
type CallResult struct {
	Output       []byte
	GasUsed      uint64
	Succeeded    bool
	RevertReason string
}

// CallContract runs req against the state as of atHeight (nil for the
// current head), inside an ephemeral branch that WithHistoricalBranch tears
// down afterward regardless of outcome.
func (r *Reader) CallContract(req CallRequest, atHeight *uint64) (*CallResult, error) {
	asOf := vkv.MaxVersion
	if atHeight != nil {
		asOf = vkv.Version{Height: *atHeight, TxPos: ^uint32(0)}
	}

	var result *CallResult
	err := wstate.WithHistoricalBranch(r.main, asOf, "web3-call", func(view *wstate.State) error {
		height := asOf.Height
		ver, err := view.Store().NextVersion(view.Branch(), height, 0)
		if err != nil {
			return err
		}

		vicinity := view.Vicinity
		vicinity.Origin = req.From
		if req.GasLimit > 0 {
			vicinity.BlockGasLimit = req.GasLimit
		}

		backend := view.OFUEL.NewBackend(view.BlockHashes, vicinity, ver)
		stackState := evmcore.NewStackState(backend, req.GasLimit)
		precompiles := evmvm.StandardPrecompiles()
		precompiles[token.Address] = view.OFUEL.Bind(ver)

		value := req.Value
		if value == nil {
			value = uint256.NewInt(0)
		}

		var res evmvm.Result
		if req.To == nil {
			addr := crypto.CreateAddress(req.From, view.OFUEL.Get(req.From).Nonce)
			res = evmvm.Execute(stackState, vicinity, precompiles, req.From, addr, value, req.Data, req.GasLimit, true)
		} else {
			res = evmvm.Execute(stackState, vicinity, precompiles, req.From, *req.To, value, req.Data, req.GasLimit, false)
		}

		result = &CallResult{
			Output:    res.Output,
			GasUsed:   res.GasUsed,
			Succeeded: res.Reason.IsSucceed(),
		}
		if !result.Succeeded {
			result.RevertReason = res.Reason.Message
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetBalance returns addr's OFUEL balance on Main's current head.
func (r *Reader) GetBalance(addr common.Address) *uint256.Int {
	return r.main.OFUEL.Get(addr).Balance
}

// GetNonce returns addr's current nonce on Main.
func (r *Reader) GetNonce(addr common.Address) uint64 {
	return r.main.OFUEL.Get(addr).Nonce
}

// GetCode returns addr's deployed code on Main, if any.
func (r *Reader) GetCode(addr common.Address) []byte {
	return r.main.OFUEL.Get(addr).Code
}

// ChainID returns the chain's identifier as set at InitChain.
func (r *Reader) ChainID() (uint64, bool) {
	id, ok, err := r.main.ChainID.Get()
	if err != nil {
		return 0, false
	}
	return id, ok
}

// GetBlockByHeight returns the committed block at height, if any.
func (r *Reader) GetBlockByHeight(height uint64) (wstate.Block, bool) {
	b, ok, err := r.main.Blocks.Get(height)
	if err != nil {
		return wstate.Block{}, false
	}
	return b, ok
}

// GetReceipt returns the receipt for txHash within the block at height.
// Callers are expected to already know which block a transaction landed in
// (e.g. from the ABCI DeliverTx response at the time it was submitted);
// this package keeps no separate tx-hash-to-height index.
func (r *Reader) GetReceipt(height uint64, txHash common.Hash) (*wstate.Receipt, error) {
	block, ok := r.GetBlockByHeight(height)
	if !ok {
		return nil, fmt.Errorf("web3: no block at height %d", height)
	}
	receipt, ok := block.Header.Receipts[txHash]
	if !ok {
		return nil, fmt.Errorf("web3: no receipt for %s in block %d", txHash, height)
	}
	return receipt, nil
}

// GetTransactionProof returns a Merkle inclusion proof that txHash's receipt
// is part of the tx tree rooted at the block's TxMerkle.RootHash, so a
// client can verify membership without trusting this node.
func (r *Reader) GetTransactionProof(height uint64, txHash common.Hash) (*merkle.InclusionProof, error) {
	receipt, err := r.GetReceipt(height, txHash)
	if err != nil {
		return nil, err
	}
	block, _ := r.GetBlockByHeight(height)
	tree := block.Header.TxMerkle.Tree
	if tree == nil {
		return nil, fmt.Errorf("web3: block %d has no tx tree", height)
	}
	return tree.ProofFor(receipt.TxIndex)
}
