// Copyright 2025 Certen Protocol

package web3

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

	"github.com/ovrchain/ovrd/pkg/ledger"
	"github.com/ovrchain/ovrd/pkg/ovrtx"
	"github.com/ovrchain/ovrd/pkg/vkv"
)

func newTestLedgerWithBlock(t *testing.T) (*ledger.Ledger, common.Address, common.Address) {
	t.Helper()
	store, err := vkv.Open(dbm.NewMemDB())
	if err != nil {
		t.Fatalf("vkv.Open: %v", err)
	}
	dir, err := os.MkdirTemp("", "ovrd-web3-test")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	l, err := ledger.Open(store, dir)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	sender := crypto.PubkeyToAddress(key.PublicKey)
	recipient := common.HexToAddress("0xeeee000000000000000000000000000000eeee")

	if err := l.InitChain(ledger.Genesis{
		ChainID:   1337,
		ChainName: "overeality-web3-test",
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
		Value:    big.NewInt(250),
	}
	signedTx, err := types.SignTx(types.NewTx(txdata), signer, key)
	if err != nil {
		t.Fatalf("SignTx: %v", err)
	}
	raw, err := json.Marshal(&ovrtx.Tx{Evm: &ovrtx.EvmTx{Tx: signedTx}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if _, err := l.DeliverTx(raw); err != nil {
		t.Fatalf("DeliverTx: %v", err)
	}
	if err := l.EndBlock(); err != nil {
		t.Fatalf("EndBlock: %v", err)
	}
	if _, err := l.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// The one-block lag means Main only sees block 1's writes once another
	// block begins.
	if err := l.BeginBlock(2, []byte{0x01}, 2000); err != nil {
		t.Fatalf("BeginBlock(2): %v", err)
	}

	return l, sender, recipient
}

func TestReaderGetBalanceAndNonce(t *testing.T) {
	l, sender, recipient := newTestLedgerWithBlock(t)
	r := NewReader(l.Main.State)

	if got := r.GetBalance(recipient).Uint64(); got != 250 {
		t.Fatalf("recipient balance = %d, want 250", got)
	}
	if got := r.GetNonce(sender); got != 1 {
		t.Fatalf("sender nonce = %d, want 1", got)
	}
}

func TestReaderGetBlockAndReceipt(t *testing.T) {
	l, _, recipient := newTestLedgerWithBlock(t)
	r := NewReader(l.Main.State)

	block, ok := r.GetBlockByHeight(1)
	if !ok {
		t.Fatalf("expected block 1 to exist")
	}
	if len(block.Header.Receipts) != 1 {
		t.Fatalf("expected 1 receipt in block 1, got %d", len(block.Header.Receipts))
	}

	var txHash common.Hash
	for h := range block.Header.Receipts {
		txHash = h
	}
	receipt, err := r.GetReceipt(1, txHash)
	if err != nil {
		t.Fatalf("GetReceipt: %v", err)
	}
	if receipt.To == nil || *receipt.To != recipient {
		t.Fatalf("receipt.To = %v, want %s", receipt.To, recipient)
	}

	if _, err := r.GetReceipt(1, common.HexToAddress("0x01").Hash()); err == nil {
		t.Fatalf("expected an error for an unknown tx hash")
	}

	proof, err := r.GetTransactionProof(1, txHash)
	if err != nil {
		t.Fatalf("GetTransactionProof: %v", err)
	}
	if proof.MerkleRoot != common.Bytes2Hex(block.Header.TxMerkle.RootHash[:]) {
		t.Fatalf("proof root = %s, want %s", proof.MerkleRoot, common.Bytes2Hex(block.Header.TxMerkle.RootHash[:]))
	}
}

func TestReaderChainID(t *testing.T) {
	l, _, _ := newTestLedgerWithBlock(t)
	r := NewReader(l.Main.State)

	id, ok := r.ChainID()
	if !ok || id != 1337 {
		t.Fatalf("ChainID() = (%d, %v), want (1337, true)", id, ok)
	}
}

func TestReaderCallContractPlainTransfer(t *testing.T) {
	l, sender, recipient := newTestLedgerWithBlock(t)
	r := NewReader(l.Main.State)

	result, err := r.CallContract(CallRequest{
		From:     sender,
		To:       &recipient,
		Value:    uint256.NewInt(0),
		GasLimit: 100000,
	}, nil)
	if err != nil {
		t.Fatalf("CallContract: %v", err)
	}
	if !result.Succeeded {
		t.Fatalf("expected a call against a code-less recipient to succeed, got revert: %s", result.RevertReason)
	}

	// An ephemeral call must never leave a branch behind.
	if l.Main.State.Store().HasBranch("web3-call") {
		t.Fatalf("CallContract must tear down its ephemeral branch")
	}
}
