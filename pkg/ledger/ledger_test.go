package ledger

import (
	"encoding/json"
	"math/big"
	"os"
	"testing"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/ovrchain/ovrd/pkg/ovrtx"
	"github.com/ovrchain/ovrd/pkg/vkv"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	store, err := vkv.Open(dbm.NewMemDB())
	if err != nil {
		t.Fatalf("vkv.Open: %v", err)
	}
	dir, err := os.MkdirTemp("", "ovrd-ledger-test")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	l, err := Open(store, dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return l
}

func TestInitChainThenBeginDeliverEndCommit(t *testing.T) {
	l := newTestLedger(t)

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	sender := crypto.PubkeyToAddress(key.PublicKey)
	recipient := common.HexToAddress("0xbbbb000000000000000000000000000000bbbb")

	if err := l.InitChain(Genesis{
		ChainID:   1337,
		ChainName: "overeality-test",
		Balances: map[common.Address]*uint256.Int{
			sender: uint256.NewInt(1_000_000),
		},
	}); err != nil {
		t.Fatalf("InitChain: %v", err)
	}
	if err := l.InitChain(Genesis{ChainID: 1337}); err != ErrAlreadyInitialized {
		t.Fatalf("second InitChain should fail with ErrAlreadyInitialized, got %v", err)
	}

	if err := l.BeginBlock(1, []byte{0x01}, 1000); err != nil {
		t.Fatalf("BeginBlock: %v", err)
	}

	signer := types.NewEIP155Signer(big.NewInt(1337))
	txdata := &types.LegacyTx{
		Nonce:    0,
		GasPrice: big.NewInt(10),
		Gas:      21000,
		To:       &recipient,
		Value:    big.NewInt(100),
	}
	signedTx, err := types.SignTx(types.NewTx(txdata), signer, key)
	if err != nil {
		t.Fatalf("SignTx: %v", err)
	}
	raw, err := json.Marshal(&ovrtx.Tx{Evm: &ovrtx.EvmTx{Tx: signedTx}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	receipt, err := l.DeliverTx(raw)
	if err != nil {
		t.Fatalf("DeliverTx: %v", err)
	}
	if !receipt.StatusCode {
		t.Fatalf("expected successful receipt")
	}

	// The delivered write lives on DeliverTxBranch immediately...
	if l.DeliverTx.State.OFUEL.Get(recipient).Balance.Uint64() != 100 {
		t.Fatalf("recipient balance on deliver_tx branch should be 100 immediately")
	}
	// ...but Main hasn't seen it merged in yet (the one-block lag).
	if l.Main.State.OFUEL.Get(recipient).Balance.Uint64() != 0 {
		t.Fatalf("recipient balance on main branch should still be 0 before the next BeginBlock")
	}

	if err := l.EndBlock(); err != nil {
		t.Fatalf("EndBlock: %v", err)
	}
	appHash, err := l.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(appHash) != 32 {
		t.Fatalf("app hash should be 32 bytes, got %d", len(appHash))
	}

	height, block, ok := l.Main.State.LastBlock()
	if !ok || height != 1 {
		t.Fatalf("expected block 1 committed on main, got height=%d ok=%v", height, ok)
	}
	if len(block.Header.Receipts) != 1 {
		t.Fatalf("expected 1 receipt in block header, got %d", len(block.Header.Receipts))
	}

	// refresh_branches merges deliver_tx's writes into main on the NEXT
	// BeginBlock, not at Commit.
	if err := l.BeginBlock(2, []byte{0x01}, 2000); err != nil {
		t.Fatalf("BeginBlock(2): %v", err)
	}
	if l.Main.State.OFUEL.Get(recipient).Balance.Uint64() != 100 {
		t.Fatalf("recipient balance on main should be 100 after the following BeginBlock merges deliver_tx")
	}
}

func TestCheckTxDoesNotMutateDeliverTxBranch(t *testing.T) {
	l := newTestLedger(t)

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	sender := crypto.PubkeyToAddress(key.PublicKey)
	recipient := common.HexToAddress("0xcccc000000000000000000000000000000cccc")

	if err := l.InitChain(Genesis{
		ChainID: 1337,
		Balances: map[common.Address]*uint256.Int{
			sender: uint256.NewInt(1_000_000),
		},
	}); err != nil {
		t.Fatalf("InitChain: %v", err)
	}
	if err := l.BeginBlock(1, []byte{0x01}, 1000); err != nil {
		t.Fatalf("BeginBlock: %v", err)
	}

	signer := types.NewEIP155Signer(big.NewInt(1337))
	txdata := &types.LegacyTx{
		Nonce:    0,
		GasPrice: big.NewInt(10),
		Gas:      21000,
		To:       &recipient,
		Value:    big.NewInt(1),
	}
	signedTx, err := types.SignTx(types.NewTx(txdata), signer, key)
	if err != nil {
		t.Fatalf("SignTx: %v", err)
	}
	raw, err := json.Marshal(&ovrtx.Tx{Evm: &ovrtx.EvmTx{Tx: signedTx}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	if err := l.CheckTx(raw); err != nil {
		t.Fatalf("CheckTx: %v", err)
	}
	if l.DeliverTx.State.OFUEL.Get(sender).Nonce != 0 {
		t.Fatalf("CheckTx must not affect deliver_tx branch state")
	}
}

func TestDeliverTxRejectionDoesNotOccupyASlot(t *testing.T) {
	l := newTestLedger(t)

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	sender := crypto.PubkeyToAddress(key.PublicKey)
	recipient := common.HexToAddress("0xdddd000000000000000000000000000000dddd")

	if err := l.InitChain(Genesis{
		ChainID: 1337,
		Balances: map[common.Address]*uint256.Int{
			sender: uint256.NewInt(1_000_000),
		},
	}); err != nil {
		t.Fatalf("InitChain: %v", err)
	}
	if err := l.BeginBlock(1, []byte{0x01}, 1000); err != nil {
		t.Fatalf("BeginBlock: %v", err)
	}

	signer := types.NewEIP155Signer(big.NewInt(1337))
	txdata := &types.LegacyTx{
		Nonce:    7, // wrong nonce: account nonce is 0
		GasPrice: big.NewInt(10),
		Gas:      100000,
		To:       &recipient,
		Value:    big.NewInt(1),
	}
	signedTx, err := types.SignTx(types.NewTx(txdata), signer, key)
	if err != nil {
		t.Fatalf("SignTx: %v", err)
	}
	raw, err := json.Marshal(&ovrtx.Tx{Evm: &ovrtx.EvmTx{Tx: signedTx}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	if _, err := l.DeliverTx(raw); err == nil {
		t.Fatalf("expected rejection")
	}
	if err := l.EndBlock(); err != nil {
		t.Fatalf("EndBlock: %v", err)
	}
	if _, err := l.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	_, block, ok := l.Main.State.LastBlock()
	if !ok {
		t.Fatalf("expected a committed block")
	}
	if len(block.Header.Receipts) != 0 {
		t.Fatalf("a rejected transaction should not appear in the block's receipts")
	}
}
