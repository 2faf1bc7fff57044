package evmcore

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// stackAccount is a copy-on-write shadow of one account's Basic/code as
// seen by the currently executing call frame.
type stackAccount struct {
	basic   Basic
	code    []byte
	hasCode bool
	// reset marks that this frame's account has had SELFDESTRUCT-adjacent
	// storage reset semantics requested (EIP-6780-less full reset on
	// re-creation within the same transaction); mirrors the original
	// ethvm substate's reset flag used to purge storage on commit.
	reset bool
}

type storageKey struct {
	addr common.Address
	key  common.Hash
}

// accessSet tracks which addresses/slots this frame (not its ancestors)
// has touched, for EIP-2929 cold/warm accounting.
type accessSet struct {
	addrs map[common.Address]bool
	slots map[storageKey]bool
}

func newAccessSet() *accessSet {
	return &accessSet{addrs: map[common.Address]bool{}, slots: map[storageKey]bool{}}
}

// Substate is one frame of the nested call/create substate stack. The root
// substate (parent == nil) is the frame a whole transaction begins in.
type Substate struct {
	parent    *Substate
	gasLimit  uint64
	isStatic  bool
	accessed  *accessSet
	accounts  map[common.Address]*stackAccount
	storages  map[storageKey]common.Hash
	deletes   map[common.Address]bool
	logs      []Log
}

// NewRootSubstate starts the substate stack for a new transaction.
func NewRootSubstate(gasLimit uint64) *Substate {
	return &Substate{
		gasLimit: gasLimit,
		accessed: newAccessSet(),
		accounts: map[common.Address]*stackAccount{},
		storages: map[storageKey]common.Hash{},
		deletes:  map[common.Address]bool{},
	}
}

// Enter pushes a new child frame for a nested CALL/CREATE.
func (s *Substate) Enter(gasLimit uint64, isStatic bool) *Substate {
	return &Substate{
		parent:   s,
		gasLimit: gasLimit,
		isStatic: isStatic || s.isStatic,
		accessed: newAccessSet(),
		accounts: map[common.Address]*stackAccount{},
		storages: map[storageKey]common.Hash{},
		deletes:  map[common.Address]bool{},
	}
}

// ExitCommit merges a child frame's changes up into its parent and returns
// the parent. Storage entries under an account whose popped frame requested
// reset are purged from the parent before the merge, matching the original
// commit semantics: a mid-transaction reset must not resurrect pre-reset
// slots once execution unwinds.
func (s *Substate) ExitCommit() *Substate {
	p := s.parent
	if p == nil {
		return s
	}
	for addr, acc := range s.accounts {
		if acc.reset {
			for k := range p.storages {
				if k.addr == addr {
					delete(p.storages, k)
				}
			}
		}
		p.accounts[addr] = acc
	}
	for k, v := range s.storages {
		p.storages[k] = v
	}
	for addr := range s.deletes {
		p.deletes[addr] = true
	}
	p.logs = append(p.logs, s.logs...)
	for addr := range s.accessed.addrs {
		p.accessed.addrs[addr] = true
	}
	for k := range s.accessed.slots {
		p.accessed.slots[k] = true
	}
	return p
}

// ExitRevert discards a child frame's changes (but its gas accounting and
// access-list warming still apply in the real EVM cost model — that is
// handled by the interpreter, not here) and returns the parent.
func (s *Substate) ExitRevert() *Substate {
	if s.parent == nil {
		return s
	}
	return s.parent
}

// ExitDiscard is identical to ExitRevert for this substate's bookkeeping;
// kept as a distinct method because callers (CREATE failure vs. REVERT
// opcode) reach it from different opcodes in the interpreter.
func (s *Substate) ExitDiscard() *Substate {
	return s.ExitRevert()
}

func (s *Substate) knownAccount(addr common.Address) (*stackAccount, bool) {
	if acc, ok := s.accounts[addr]; ok {
		return acc, true
	}
	if s.parent != nil {
		return s.parent.knownAccount(addr)
	}
	return nil, false
}

func (s *Substate) knownStorage(addr common.Address, key common.Hash) (common.Hash, bool) {
	if acc, ok := s.accounts[addr]; ok && acc.reset {
		if v, ok := s.storages[storageKey{addr, key}]; ok {
			return v, true
		}
		return common.Hash{}, true
	}
	if v, ok := s.storages[storageKey{addr, key}]; ok {
		return v, true
	}
	if s.parent != nil {
		return s.parent.knownStorage(addr, key)
	}
	return common.Hash{}, false
}

func (s *Substate) deleted(addr common.Address) bool {
	if s.deletes[addr] {
		return true
	}
	if s.parent != nil {
		return s.parent.deleted(addr)
	}
	return false
}

// IsCold reports whether addr has not been accessed by this frame or any
// ancestor (EIP-2929).
func (s *Substate) IsCold(addr common.Address) bool {
	for f := s; f != nil; f = f.parent {
		if f.accessed.addrs[addr] {
			return false
		}
	}
	return true
}

// IsStorageCold reports whether (addr,key) has not been accessed by this
// frame or any ancestor.
func (s *Substate) IsStorageCold(addr common.Address, key common.Hash) bool {
	sk := storageKey{addr, key}
	for f := s; f != nil; f = f.parent {
		if f.accessed.slots[sk] {
			return false
		}
	}
	return true
}

// Touch marks addr (and optionally a slot) as accessed in this frame.
func (s *Substate) Touch(addr common.Address) { s.accessed.addrs[addr] = true }
func (s *Substate) TouchStorage(addr common.Address, key common.Hash) {
	s.accessed.slots[storageKey{addr, key}] = true
}

// accountMut returns a copy-on-write account shadow for addr in this frame,
// seeding it from an ancestor frame (clearing its reset flag, matching the
// original: a fresh frame touching an already-known account should not
// inherit the ancestor's pending reset) or from backend.Basic if unknown
// anywhere.
func (s *Substate) accountMut(addr common.Address, backend Backend) *stackAccount {
	if acc, ok := s.accounts[addr]; ok {
		return acc
	}
	var acc *stackAccount
	if anc, ok := s.knownAccount(addr); ok {
		acc = &stackAccount{basic: anc.basic, code: anc.code, hasCode: anc.hasCode}
	} else {
		acc = &stackAccount{basic: backend.Basic(addr)}
	}
	s.accounts[addr] = acc
	return acc
}

func (s *Substate) IncNonce(addr common.Address, backend Backend) {
	acc := s.accountMut(addr, backend)
	acc.basic.Nonce++
}

func (s *Substate) SetBalance(addr common.Address, amount *uint256.Int, backend Backend) {
	acc := s.accountMut(addr, backend)
	acc.basic.Balance = amount
}

func (s *Substate) SetCode(addr common.Address, code []byte, backend Backend) {
	acc := s.accountMut(addr, backend)
	acc.code = code
	acc.hasCode = true
}

func (s *Substate) SetDeleted(addr common.Address) {
	s.deletes[addr] = true
}

func (s *Substate) SetStorage(addr common.Address, key, value common.Hash) {
	s.storages[storageKey{addr, key}] = value
}

func (s *Substate) ResetStorage(addr common.Address, backend Backend) {
	acc := s.accountMut(addr, backend)
	acc.reset = true
	for k := range s.storages {
		if k.addr == addr {
			delete(s.storages, k)
		}
	}
}

func (s *Substate) AppendLog(log Log) {
	s.logs = append(s.logs, log)
}

// Transfer moves amount from source to target within this frame, returning
// false if source's known balance is insufficient.
func (s *Substate) Transfer(source, target common.Address, amount *uint256.Int, backend Backend) bool {
	if amount.IsZero() {
		return true
	}
	src := s.accountMut(source, backend)
	if src.basic.Balance.Cmp(amount) < 0 {
		return false
	}
	src.basic.Balance = new(uint256.Int).Sub(src.basic.Balance, amount)
	dst := s.accountMut(target, backend)
	dst.basic.Balance = new(uint256.Int).Add(dst.basic.Balance, amount)
	return true
}

// Deconstruct collects this (root) substate's accumulated changes into the
// Apply/Log slices the Backend commits at the end of a successful
// transaction. Must only be called on the root frame (parent == nil).
func (s *Substate) Deconstruct(backend Backend) ([]Apply, []Log) {
	touched := map[common.Address]bool{}
	for addr := range s.accounts {
		touched[addr] = true
	}
	for k := range s.storages {
		touched[k.addr] = true
	}

	var applies []Apply
	for addr := range touched {
		if s.deletes[addr] {
			continue
		}
		acc, ok := s.accounts[addr]
		if !ok {
			continue
		}
		storage := map[common.Hash]common.Hash{}
		for k, v := range s.storages {
			if k.addr == addr {
				storage[k.key] = v
			}
		}
		applies = append(applies, ModifyApply(addr, acc.basic, acc.code, acc.hasCode, storage, acc.reset))
	}
	for addr := range s.deletes {
		applies = append(applies, DeleteApply(addr))
	}
	return applies, s.logs
}
