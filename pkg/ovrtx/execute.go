package ovrtx

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/ovrchain/ovrd/pkg/evmcore"
	"github.com/ovrchain/ovrd/pkg/evmvm"
	"github.com/ovrchain/ovrd/pkg/token"
	"github.com/ovrchain/ovrd/pkg/wstate"
)

// validated holds everything the pre-execution checks compute, reused by
// both Validate (CheckTx, no state touched) and Execute (DeliverTx).
type validated struct {
	tx       *Tx
	etx      *types.Transaction
	sender   common.Address
	gasPrice *uint256.Int
	value    *uint256.Int
}

// validate decodes raw and runs spec.md's four pre-execution checks — gas-price
// floor, signature recovery, nonce, balance coverage — against state without
// writing anything. A non-nil error is always ErrDecode or *ErrRejected.
func validate(state *wstate.State, raw []byte) (*validated, error) {
	tx, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	if tx.Evm == nil {
		return nil, rejectf("native transactions are not supported")
	}
	etx := tx.Evm.Tx

	gasPrice, err := effectiveGasPrice(state, etx)
	if err != nil {
		return nil, err
	}

	chainID := state.Vicinity.ChainID.ToBig()
	signer := types.LatestSignerForChainID(chainID)
	sender, err := types.Sender(signer, etx)
	if err != nil {
		return nil, rejectf("signature recovery failed: %v", err)
	}

	acc := state.OFUEL.Get(sender)
	if etx.Nonce() != acc.Nonce {
		return nil, rejectf("nonce mismatch: tx has %d, account has %d", etx.Nonce(), acc.Nonce)
	}

	value, overflow := uint256.FromBig(etx.Value())
	if overflow {
		return nil, rejectf("value overflows 256 bits")
	}
	gasLimit := etx.Gas()
	gasCost, overflow := new(uint256.Int).MulOverflow(gasPrice, uint256.NewInt(gasLimit))
	if overflow {
		return nil, rejectf("gas_price * gas_limit overflows 256 bits")
	}
	needed, overflow := new(uint256.Int).AddOverflow(gasCost, value)
	if overflow {
		return nil, rejectf("gas cost plus value overflows 256 bits")
	}
	if acc.Balance.Cmp(needed) < 0 {
		return nil, rejectf("insufficient balance: has %s, needs %s", acc.Balance.Dec(), needed.Dec())
	}

	return &validated{tx: tx, etx: etx, sender: sender, gasPrice: gasPrice, value: value}, nil
}

// Validate runs the pre-execution checks only, for CheckTx: it never creates
// a version, never charges a fee, never touches state. A nil return means
// the transaction would be accepted into DeliverTx as of state's branch.
func Validate(state *wstate.State, raw []byte) error {
	_, err := validate(state, raw)
	return err
}

// Execute runs the full pipeline against one delivered transaction: decode,
// pre-execution checks, dispatch, fee settlement, receipt construction.
//
// A non-nil error (ErrDecode or *ErrRejected) means the transaction never
// touched state at all — no version was created, no fee charged, no nonce
// advanced. Once a per-tx version exists, Execute always returns a Receipt:
// a reverted or errored EVM/precompile run still charges the gas it spent
// and still occupies txIndex's slot in the block, with StatusCode false.
func Execute(state *wstate.State, height uint64, txIndex int, raw []byte) (*wstate.Receipt, error) {
	v, err := validate(state, raw)
	if err != nil {
		return nil, err
	}
	etx := v.etx
	sender := v.sender
	gasPrice := v.gasPrice
	value := v.value

	ver, err := state.Store().NextVersion(state.Branch(), height, uint32(txIndex+1))
	if err != nil {
		return nil, err
	}

	txVicinity := state.Vicinity
	txVicinity.GasPrice = gasPrice
	txVicinity.Origin = sender

	backend := state.OFUEL.NewBackend(state.BlockHashes, txVicinity, ver)
	stackState := evmcore.NewStackState(backend, etx.Gas())
	precompiles := evmvm.StandardPrecompiles()
	precompiles[token.Address] = state.OFUEL.Bind(ver)

	act := v.tx.action()
	var contractAddr *common.Address
	var result evmvm.Result
	if act.create {
		newAddr := crypto.CreateAddress(sender, etx.Nonce())
		contractAddr = &newAddr
		result = evmvm.Execute(stackState, txVicinity, precompiles, sender, newAddr, value, etx.Data(), etx.Gas(), true)
	} else {
		result = evmvm.Execute(stackState, txVicinity, precompiles, sender, act.to, value, etx.Data(), etx.Gas(), false)
	}

	succeeded := result.Reason.IsSucceed()
	if !succeeded {
		if err := state.Store().PopVersion(state.Branch(), ver); err != nil {
			return nil, err
		}
		contractAddr = nil
	}

	feeUsed := new(uint256.Int).Mul(gasPrice, uint256.NewInt(result.GasUsed))
	if err := state.OFUEL.ChargeFee(ver, sender, feeUsed); err != nil {
		return nil, err
	}

	txHash := etx.Hash()
	var to *common.Address
	if !act.create {
		toAddr := act.to
		to = &toAddr
	}

	logs := make([]wstate.Log, len(result.Logs))
	var bloom wstate.Bloom
	for i, l := range result.Logs {
		logs[i] = wstate.Log{
			Address:      l.Address,
			Topics:       l.Topics,
			Data:         l.Data,
			TxHash:       txHash,
			TxIndex:      txIndex,
			LogIndexInTx: i,
		}
		bloom.Or(wstate.LogBloom(l.Address, l.Topics))
	}

	receipt := &wstate.Receipt{
		TxHash:       txHash,
		TxIndex:      txIndex,
		From:         sender,
		To:           to,
		TxGasUsed:    result.GasUsed,
		ContractAddr: contractAddr,
		LogsBloom:    bloom,
		StatusCode:   succeeded,
		Logs:         logs,
	}
	return receipt, nil
}

// effectiveGasPrice implements spec.md's per-envelope fee rule: Legacy and
// EIP-2930 transactions carry their own gas price, checked against the
// branch's versioned minimum; EIP-1559 transactions are always charged at
// the hard floor regardless of their base-fee/priority-fee fields.
func effectiveGasPrice(state *wstate.State, etx *types.Transaction) (*uint256.Int, error) {
	switch etx.Type() {
	case types.LegacyTxType, types.AccessListTxType:
		gasPrice, overflow := uint256.FromBig(etx.GasPrice())
		if overflow {
			return nil, rejectf("gas price overflows 256 bits")
		}
		if gasPrice.Cmp(state.GetGasPrice()) < 0 {
			return nil, rejectf("gas price %s below minimum %s", gasPrice.Dec(), state.GetGasPrice().Dec())
		}
		return gasPrice, nil
	case types.DynamicFeeTxType:
		return uint256.NewInt(wstate.GasPriceFloor), nil
	default:
		return nil, rejectf("unsupported transaction type %d", etx.Type())
	}
}
