package ovrtx

import (
	"encoding/json"
	"math/big"
	"testing"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/ovrchain/ovrd/pkg/vkv"
	"github.com/ovrchain/ovrd/pkg/wstate"
)

func newTestState(t *testing.T) (*wstate.State, *vkv.Store) {
	t.Helper()
	store, err := vkv.Open(dbm.NewMemDB())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	state := wstate.New(store, vkv.MainBranch)
	state.UpdateVicinity(uint256.NewInt(1337), common.Address{}, 1000)
	return state, store
}

func TestExecuteSimpleTransfer(t *testing.T) {
	state, _ := newTestState(t)

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	sender := crypto.PubkeyToAddress(key.PublicKey)
	recipient := common.HexToAddress("0xbbbb000000000000000000000000000000bbbb")

	if err := state.OFUEL.CreditGenesis(vkv.Version{Height: 0}, sender, uint256.NewInt(1_000_000)); err != nil {
		t.Fatalf("CreditGenesis: %v", err)
	}

	signer := types.NewEIP155Signer(big.NewInt(1337))
	txdata := &types.LegacyTx{
		Nonce:    0,
		GasPrice: big.NewInt(wstate.GasPriceFloor),
		Gas:      21000,
		To:       &recipient,
		Value:    big.NewInt(100),
	}
	signedTx, err := types.SignTx(types.NewTx(txdata), signer, key)
	if err != nil {
		t.Fatalf("SignTx: %v", err)
	}

	raw, err := json.Marshal(&Tx{Evm: &EvmTx{Tx: signedTx}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	receipt, err := Execute(state, 1, 0, raw)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !receipt.StatusCode {
		t.Fatalf("expected success")
	}
	if receipt.From != sender {
		t.Fatalf("From = %s, want %s", receipt.From, sender)
	}
	if receipt.To == nil || *receipt.To != recipient {
		t.Fatalf("To = %v, want %s", receipt.To, recipient)
	}

	senderAcc := state.OFUEL.Get(sender)
	if senderAcc.Nonce != 1 {
		t.Fatalf("sender nonce = %d, want 1", senderAcc.Nonce)
	}
	if senderAcc.Balance.Uint64() != 1_000_000-100 {
		t.Fatalf("sender balance = %s, want %d", senderAcc.Balance.Dec(), 1_000_000-100)
	}
	if state.OFUEL.Get(recipient).Balance.Uint64() != 100 {
		t.Fatalf("recipient balance = %s, want 100", state.OFUEL.Get(recipient).Balance.Dec())
	}
}

func TestExecuteRejectsBadNonce(t *testing.T) {
	state, _ := newTestState(t)

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	sender := crypto.PubkeyToAddress(key.PublicKey)
	recipient := common.HexToAddress("0xcccc000000000000000000000000000000cccc")

	if err := state.OFUEL.CreditGenesis(vkv.Version{Height: 0}, sender, uint256.NewInt(1_000_000)); err != nil {
		t.Fatalf("CreditGenesis: %v", err)
	}

	signer := types.NewEIP155Signer(big.NewInt(1337))
	txdata := &types.LegacyTx{
		Nonce:    5, // wrong, account nonce is 0
		GasPrice: big.NewInt(wstate.GasPriceFloor),
		Gas:      100000,
		To:       &recipient,
		Value:    big.NewInt(1),
	}
	signedTx, err := types.SignTx(types.NewTx(txdata), signer, key)
	if err != nil {
		t.Fatalf("SignTx: %v", err)
	}
	raw, err := json.Marshal(&Tx{Evm: &EvmTx{Tx: signedTx}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	if _, err := Execute(state, 1, 0, raw); err == nil {
		t.Fatalf("expected rejection for bad nonce")
	} else if _, ok := err.(*ErrRejected); !ok {
		t.Fatalf("expected *ErrRejected, got %T: %v", err, err)
	}
}

func TestExecuteRejectsGasPriceBelowFloor(t *testing.T) {
	state, _ := newTestState(t)

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	sender := crypto.PubkeyToAddress(key.PublicKey)
	recipient := common.HexToAddress("0xdddd000000000000000000000000000000dddd")

	if err := state.OFUEL.CreditGenesis(vkv.Version{Height: 0}, sender, uint256.NewInt(1_000_000)); err != nil {
		t.Fatalf("CreditGenesis: %v", err)
	}

	signer := types.NewEIP155Signer(big.NewInt(1337))
	txdata := &types.LegacyTx{
		Nonce:    0,
		GasPrice: big.NewInt(1), // below the floor of 10
		Gas:      100000,
		To:       &recipient,
		Value:    big.NewInt(1),
	}
	signedTx, err := types.SignTx(types.NewTx(txdata), signer, key)
	if err != nil {
		t.Fatalf("SignTx: %v", err)
	}
	raw, err := json.Marshal(&Tx{Evm: &EvmTx{Tx: signedTx}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	if _, err := Execute(state, 1, 0, raw); err == nil {
		t.Fatalf("expected rejection for gas price below floor")
	}
}

func TestDecodeRejectsEmptyEnvelope(t *testing.T) {
	if _, err := Decode([]byte(`{}`)); err == nil {
		t.Fatalf("expected decode error for empty envelope")
	}
}

func TestValidateDoesNotTouchState(t *testing.T) {
	state, store := newTestState(t)

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	sender := crypto.PubkeyToAddress(key.PublicKey)
	recipient := common.HexToAddress("0xeeee000000000000000000000000000000eeee")

	if err := state.OFUEL.CreditGenesis(vkv.Version{Height: 0}, sender, uint256.NewInt(1_000_000)); err != nil {
		t.Fatalf("CreditGenesis: %v", err)
	}

	signer := types.NewEIP155Signer(big.NewInt(1337))
	txdata := &types.LegacyTx{
		Nonce:    0,
		GasPrice: big.NewInt(wstate.GasPriceFloor),
		Gas:      21000,
		To:       &recipient,
		Value:    big.NewInt(1),
	}
	signedTx, err := types.SignTx(types.NewTx(txdata), signer, key)
	if err != nil {
		t.Fatalf("SignTx: %v", err)
	}
	raw, err := json.Marshal(&Tx{Evm: &EvmTx{Tx: signedTx}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	if err := Validate(state, raw); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	_ = store
	if state.OFUEL.Get(sender).Nonce != 0 {
		t.Fatalf("Validate must not advance the sender's nonce")
	}
}
