// Copyright 2025 Certen Protocol

package evmvm

import (
	"github.com/ethereum/go-ethereum/common"
	ethvm "github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"

	"github.com/ovrchain/ovrd/pkg/evmcore"
)

// stdPrecompile adapts one of go-ethereum's built-in precompiled contracts
// (ecrecover, sha256, ripemd160, identity, modexp, the bn256 curve ops,
// blake2f) to this package's Precompile interface. None of these read or
// write Backend/Substate state or emit logs, so caller/value are ignored.
type stdPrecompile struct {
	contract ethvm.PrecompiledContract
}

func (p stdPrecompile) RequiredGas(input []byte) uint64 {
	return p.contract.RequiredGas(input)
}

func (p stdPrecompile) Run(_ common.Address, _ *uint256.Int, input []byte) ([]byte, []evmcore.Log, error) {
	out, err := p.contract.Run(input)
	return out, nil, err
}

// StandardPrecompiles returns the fixed Istanbul-era set of Ethereum
// built-in precompiles (addresses 0x01-0x09), wrapped for use alongside
// this system's own OFUEL precompile. Callers merge this into their
// address-to-Precompile map rather than reimplementing ecrecover/modexp/
// bn256/blake2f by hand.
func StandardPrecompiles() map[common.Address]Precompile {
	out := make(map[common.Address]Precompile, len(ethvm.PrecompiledContractsIstanbul))
	for addr, c := range ethvm.PrecompiledContractsIstanbul {
		out[addr] = stdPrecompile{contract: c}
	}
	return out
}
