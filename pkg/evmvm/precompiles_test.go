// Copyright 2025 Certen Protocol

package evmvm

import (
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestStandardPrecompilesCoversIstanbulSet(t *testing.T) {
	precompiles := StandardPrecompiles()
	// 0x01 ecrecover .. 0x09 blake2f
	for i := byte(1); i <= 9; i++ {
		addr := common.BytesToAddress([]byte{i})
		if _, ok := precompiles[addr]; !ok {
			t.Fatalf("expected a standard precompile at address %s", addr)
		}
	}
}

func TestStandardPrecompileIdentityEchoesInput(t *testing.T) {
	precompiles := StandardPrecompiles()
	identity := precompiles[common.BytesToAddress([]byte{4})]

	input, err := hex.DecodeString("deadbeef")
	if err != nil {
		t.Fatalf("decode input: %v", err)
	}
	out, logs, err := identity.Run(common.Address{}, nil, input)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(logs) != 0 {
		t.Fatalf("standard precompiles must not emit logs")
	}
	if hex.EncodeToString(out) != "deadbeef" {
		t.Fatalf("identity precompile output = %x, want deadbeef", out)
	}
}
