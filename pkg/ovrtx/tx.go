package ovrtx

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	coretypes "github.com/ethereum/go-ethereum/core/types"
)

// Tx is the tagged transaction envelope delivered to the ABCI app: exactly
// one of Evm or Native is set. Native is a pluggable stub reserved for a
// future non-EVM transaction kind and is never dispatched by Execute.
type Tx struct {
	Evm    *EvmTx    `json:"Evm,omitempty"`
	Native *NativeTx `json:"Native,omitempty"`
}

// EvmTx wraps a standard Ethereum transaction (Legacy, EIP-2930 or
// EIP-1559), carried on the wire as its canonical RLP encoding so every
// envelope type's signature and fee fields round-trip exactly.
type EvmTx struct {
	Tx *coretypes.Transaction
}

func (e EvmTx) MarshalJSON() ([]byte, error) {
	raw, err := e.Tx.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return json.Marshal(hexutil.Encode(raw))
}

func (e *EvmTx) UnmarshalJSON(b []byte) error {
	var hexStr string
	if err := json.Unmarshal(b, &hexStr); err != nil {
		return err
	}
	raw, err := hexutil.Decode(hexStr)
	if err != nil {
		return err
	}
	tx := new(coretypes.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return err
	}
	e.Tx = tx
	return nil
}

// NativeTx is a stub variant for a non-EVM transaction kind; its payload is
// kept opaque since no native transaction type is defined yet.
type NativeTx struct {
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode parses the ABCI tx payload bytes into a Tx. A Tx with neither
// variant set, or with both set, is malformed.
func Decode(raw []byte) (*Tx, error) {
	var tx Tx
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if tx.Evm == nil && tx.Native == nil {
		return nil, fmt.Errorf("%w: empty transaction envelope", ErrDecode)
	}
	if tx.Evm != nil && tx.Native != nil {
		return nil, fmt.Errorf("%w: both Evm and Native set", ErrDecode)
	}
	return &tx, nil
}

// action describes what a Tx does once dispatched: a call against an
// existing address, or a contract creation.
type action struct {
	create bool
	to     common.Address
}

func (t *Tx) action() action {
	to := t.Evm.Tx.To()
	if to == nil {
		return action{create: true}
	}
	return action{to: *to}
}
