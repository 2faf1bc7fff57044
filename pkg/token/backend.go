package token

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/ovrchain/ovrd/pkg/evmcore"
	"github.com/ovrchain/ovrd/pkg/vkv"
)

// Backend adapts a Token (OFUEL's account/storage maps) plus a block-hash
// index and a Vicinity into the evmcore.Backend contract the EVM interpreter
// runs against. One Backend is constructed per transaction, pinned to the
// version that transaction's Apply will write at.
type Backend struct {
	token       *Token
	blockHashes *vkv.OrderedMap[uint64, common.Hash]
	vicinity    evmcore.Vicinity
	ver         vkv.Version
}

// NewBackend builds a Backend scoped to one transaction's write version.
func (t *Token) NewBackend(blockHashes *vkv.OrderedMap[uint64, common.Hash], vicinity evmcore.Vicinity, ver vkv.Version) *Backend {
	return &Backend{token: t, blockHashes: blockHashes, vicinity: vicinity, ver: ver}
}

func (b *Backend) GasPrice() *uint256.Int         { return b.vicinity.GasPrice }
func (b *Backend) Origin() common.Address         { return b.vicinity.Origin }
func (b *Backend) BlockNumber() uint64            { return b.vicinity.BlockNumber }
func (b *Backend) BlockCoinbase() common.Address  { return b.vicinity.BlockCoinbase }
func (b *Backend) BlockTimestamp() uint64         { return b.vicinity.BlockTimestamp }
func (b *Backend) BlockDifficulty() *uint256.Int  { return b.vicinity.BlockDifficulty }
func (b *Backend) BlockGasLimit() uint64          { return b.vicinity.BlockGasLimit }
func (b *Backend) BlockBaseFeePerGas() *uint256.Int { return b.vicinity.BlockBaseFeePerGas }
func (b *Backend) ChainID() *uint256.Int          { return b.vicinity.ChainID }

func (b *Backend) BlockHash(number uint64) common.Hash {
	h, ok, err := b.blockHashes.Get(number)
	if err != nil || !ok {
		return common.Hash{}
	}
	return h
}

// Exists reports whether addr has an Account record on this branch.
func (b *Backend) Exists(addr common.Address) bool {
	_, ok, err := b.token.accounts.Get(addr)
	return err == nil && ok
}

func (b *Backend) Basic(addr common.Address) evmcore.Basic {
	acc := b.token.Get(addr)
	return evmcore.Basic{Balance: acc.Balance, Nonce: acc.Nonce}
}

func (b *Backend) Code(addr common.Address) []byte {
	return b.token.Get(addr).Code
}

func (b *Backend) Storage(addr common.Address, key common.Hash) common.Hash {
	v, ok, err := b.token.storages.Get(addr, key)
	if err != nil || !ok {
		return common.Hash{}
	}
	return v
}

// OriginalStorage returns the same value Storage does: there is no
// pending-within-transaction distinction at the backend layer, only in the
// stack substate above it.
func (b *Backend) OriginalStorage(addr common.Address, key common.Hash) (common.Hash, bool) {
	return b.Storage(addr, key), true
}

// Apply commits a batch of account-level changes, following spec.md
// §4.3.2's Modify/Delete semantics exactly: balance/nonce/code replace,
// zero-valued storage writes are skipped (zero is already the default on
// read), ResetStorage wipes every existing slot for the address first, and
// an account left empty (zero balance, zero nonce, no code) is pruned when
// deleteEmpty is set.
func (b *Backend) Apply(applies []evmcore.Apply, logs []evmcore.Log, deleteEmpty bool) error {
	for _, a := range applies {
		if a.IsDelete {
			if err := b.token.accounts.Remove(b.ver, a.Address); err != nil {
				return err
			}
			continue
		}

		acc := b.token.Get(a.Address)
		acc.Balance = a.Basic.Balance
		if acc.Balance == nil {
			acc.Balance = uint256.NewInt(0)
		}
		acc.Nonce = a.Basic.Nonce
		if a.HasCode {
			acc.Code = a.Code
		}

		if a.ResetStorage {
			if err := b.token.storages.RemoveAll(b.ver, a.Address); err != nil {
				return err
			}
		}
		for slot, val := range a.Storage {
			if val == (common.Hash{}) {
				continue
			}
			if err := b.token.storages.Insert(b.ver, a.Address, slot, val); err != nil {
				return err
			}
		}

		empty := acc.Balance.IsZero() && acc.Nonce == 0 && len(acc.Code) == 0
		if empty && deleteEmpty {
			if err := b.token.accounts.Remove(b.ver, a.Address); err != nil {
				return err
			}
			continue
		}
		if err := b.token.set(b.ver, a.Address, acc); err != nil {
			return err
		}
	}
	return nil
}
