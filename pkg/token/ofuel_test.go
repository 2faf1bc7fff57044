package token

import (
	"testing"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/ovrchain/ovrd/pkg/vkv"
)

func newTestToken(t *testing.T) *Token {
	t.Helper()
	store, err := vkv.Open(dbm.NewMemDB())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return New(store, vkv.MainBranch)
}

var (
	alice = common.HexToAddress("0xaaaa000000000000000000000000000000aaaa")
	bob    = common.HexToAddress("0xbbbb000000000000000000000000000000bbbb")
	carol  = common.HexToAddress("0xcccc000000000000000000000000000000cccc")
)

func v(h uint64) vkv.Version { return vkv.Version{Height: h} }

func TestCreditGenesisAndBalanceOf(t *testing.T) {
	tok := newTestToken(t)
	if err := tok.CreditGenesis(v(0), alice, uint256.NewInt(1000)); err != nil {
		t.Fatalf("CreditGenesis: %v", err)
	}

	out, _, err := tok.run(alice, uint256.NewInt(0), append(selectorFor[selBalanceOf], abiAddressArg(alice)...), v(1))
	if err != nil {
		t.Fatalf("balanceOf: %v", err)
	}
	got := new(uint256.Int).SetBytes(out)
	if got.Uint64() != 1000 {
		t.Fatalf("balanceOf = %d, want 1000", got.Uint64())
	}
}

func TestTransferMovesBalance(t *testing.T) {
	tok := newTestToken(t)
	if err := tok.CreditGenesis(v(0), alice, uint256.NewInt(1000)); err != nil {
		t.Fatalf("CreditGenesis: %v", err)
	}

	input := append(append([]byte{}, selectorFor[selTransfer]...), append(abiAddressArg(bob), abiUint256Arg(uint256.NewInt(400))...)...)
	out, logs, err := tok.run(alice, uint256.NewInt(0), input, v(1))
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if new(uint256.Int).SetBytes(out).Uint64() != 1 {
		t.Fatalf("transfer did not return true")
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 Transfer log, got %d", len(logs))
	}
	if tok.Get(alice).Balance.Uint64() != 600 {
		t.Fatalf("sender balance = %d, want 600", tok.Get(alice).Balance.Uint64())
	}
	if tok.Get(bob).Balance.Uint64() != 400 {
		t.Fatalf("recipient balance = %d, want 400", tok.Get(bob).Balance.Uint64())
	}
}

func TestTransferInsufficientBalance(t *testing.T) {
	tok := newTestToken(t)
	if err := tok.CreditGenesis(v(0), alice, uint256.NewInt(10)); err != nil {
		t.Fatalf("CreditGenesis: %v", err)
	}
	input := append(append([]byte{}, selectorFor[selTransfer]...), append(abiAddressArg(bob), abiUint256Arg(uint256.NewInt(11))...)...)
	if _, _, err := tok.run(alice, uint256.NewInt(0), input, v(1)); err == nil {
		t.Fatalf("expected insufficient balance error")
	}
}

func TestApproveTransferFrom(t *testing.T) {
	tok := newTestToken(t)
	if err := tok.CreditGenesis(v(0), alice, uint256.NewInt(1000)); err != nil {
		t.Fatalf("CreditGenesis: %v", err)
	}

	approveInput := append(append([]byte{}, selectorFor[selApprove]...), append(abiAddressArg(bob), abiUint256Arg(uint256.NewInt(300))...)...)
	if _, _, err := tok.run(alice, uint256.NewInt(0), approveInput, v(1)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if tok.allowance(alice, bob).Uint64() != 300 {
		t.Fatalf("allowance = %d, want 300", tok.allowance(alice, bob).Uint64())
	}

	tfInput := append(append([]byte{}, selectorFor[selTransferFrom]...), append(abiAddressArg(alice), append(abiAddressArg(carol), abiUint256Arg(uint256.NewInt(200))...)...)...)
	if _, logs, err := tok.run(bob, uint256.NewInt(0), tfInput, v(2)); err != nil {
		t.Fatalf("transferFrom: %v", err)
	} else if len(logs) != 2 {
		t.Fatalf("expected Transfer+Approval logs, got %d", len(logs))
	}

	if tok.Get(alice).Balance.Uint64() != 800 {
		t.Fatalf("alice balance = %d, want 800", tok.Get(alice).Balance.Uint64())
	}
	if tok.Get(carol).Balance.Uint64() != 200 {
		t.Fatalf("carol balance = %d, want 200", tok.Get(carol).Balance.Uint64())
	}
	if tok.allowance(alice, bob).Uint64() != 100 {
		t.Fatalf("remaining allowance = %d, want 100", tok.allowance(alice, bob).Uint64())
	}
}

func TestTransferFromExceedsAllowance(t *testing.T) {
	tok := newTestToken(t)
	if err := tok.CreditGenesis(v(0), alice, uint256.NewInt(1000)); err != nil {
		t.Fatalf("CreditGenesis: %v", err)
	}
	tfInput := append(append([]byte{}, selectorFor[selTransferFrom]...), append(abiAddressArg(alice), append(abiAddressArg(carol), abiUint256Arg(uint256.NewInt(1))...)...)...)
	if _, _, err := tok.run(bob, uint256.NewInt(0), tfInput, v(1)); err == nil {
		t.Fatalf("expected allowance exceeded error")
	}
}

func TestApproveRejectsZeroAddress(t *testing.T) {
	tok := newTestToken(t)
	input := append(append([]byte{}, selectorFor[selApprove]...), append(abiAddressArg(common.Address{}), abiUint256Arg(uint256.NewInt(1))...)...)
	if _, _, err := tok.run(alice, uint256.NewInt(0), input, v(1)); err == nil {
		t.Fatalf("expected zero address rejection")
	}
}

func TestBound(t *testing.T) {
	tok := newTestToken(t)
	if err := tok.CreditGenesis(v(0), alice, uint256.NewInt(1000)); err != nil {
		t.Fatalf("CreditGenesis: %v", err)
	}
	b := tok.Bind(v(1))
	if b.RequiredGas(selectorFor[selTransfer]) != gasTransfer {
		t.Fatalf("RequiredGas mismatch")
	}
	input := append(append([]byte{}, selectorFor[selTransfer]...), append(abiAddressArg(bob), abiUint256Arg(uint256.NewInt(1))...)...)
	if _, _, err := b.Run(alice, uint256.NewInt(0), input); err != nil {
		t.Fatalf("Bound.Run: %v", err)
	}
}

func abiAddressArg(a common.Address) []byte {
	out := make([]byte, 32)
	copy(out[12:], a.Bytes())
	return out
}

func abiUint256Arg(v *uint256.Int) []byte {
	out := make([]byte, 32)
	v.WriteToSlice(out)
	return out
}
