package evmcore

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// StackState combines a Backend with the live Substate frame the
// interpreter is currently executing in. It is the single object
// pkg/evmvm's opcode loop talks to: every read falls through the
// substate chain to the backend, every write lands in the current
// frame only.
type StackState struct {
	backend Backend
	top     *Substate
}

// NewStackState starts a StackState for a new transaction with the given
// gas limit.
func NewStackState(backend Backend, gasLimit uint64) *StackState {
	return &StackState{backend: backend, top: NewRootSubstate(gasLimit)}
}

func (s *StackState) Backend() Backend { return s.backend }
func (s *StackState) Current() *Substate { return s.top }

// EnterCall pushes a new frame for a nested CALL/CALLCODE/DELEGATECALL/
// STATICCALL/CREATE/CREATE2.
func (s *StackState) EnterCall(gasLimit uint64, isStatic bool) {
	s.top = s.top.Enter(gasLimit, isStatic)
}

func (s *StackState) ExitCommit() { s.top = s.top.ExitCommit() }
func (s *StackState) ExitRevert() { s.top = s.top.ExitRevert() }
func (s *StackState) ExitDiscard() { s.top = s.top.ExitDiscard() }

func (s *StackState) IsStatic() bool { return s.top.isStatic }

func (s *StackState) Exists(addr common.Address) bool {
	if _, ok := s.top.knownAccount(addr); ok {
		return !s.top.deleted(addr)
	}
	return s.backend.Exists(addr) && !s.top.deleted(addr)
}

func (s *StackState) Deleted(addr common.Address) bool { return s.top.deleted(addr) }

func (s *StackState) Basic(addr common.Address) Basic {
	if acc, ok := s.top.knownAccount(addr); ok {
		return acc.basic
	}
	return s.backend.Basic(addr)
}

func (s *StackState) GetBalance(addr common.Address) *uint256.Int {
	b := s.Basic(addr).Balance
	if b == nil {
		return uint256.NewInt(0)
	}
	return b
}

func (s *StackState) GetNonce(addr common.Address) uint64 { return s.Basic(addr).Nonce }

func (s *StackState) GetCode(addr common.Address) []byte {
	if acc, ok := s.top.knownAccount(addr); ok && acc.hasCode {
		return acc.code
	}
	if _, ok := s.top.knownAccount(addr); ok {
		return nil
	}
	return s.backend.Code(addr)
}

func (s *StackState) GetStorage(addr common.Address, key common.Hash) common.Hash {
	if v, ok := s.top.knownStorage(addr, key); ok {
		return v
	}
	return s.backend.Storage(addr, key)
}

func (s *StackState) GetOriginalStorage(addr common.Address, key common.Hash) common.Hash {
	if v, ok := s.backend.OriginalStorage(addr, key); ok {
		return v
	}
	return s.backend.Storage(addr, key)
}

func (s *StackState) SetStorage(addr common.Address, key, value common.Hash) {
	s.top.TouchStorage(addr, key)
	s.top.SetStorage(addr, key, value)
}

func (s *StackState) IncNonce(addr common.Address) { s.top.IncNonce(addr, s.backend) }

func (s *StackState) SetBalance(addr common.Address, amount *uint256.Int) {
	s.top.SetBalance(addr, amount, s.backend)
}

func (s *StackState) Transfer(from, to common.Address, amount *uint256.Int) bool {
	s.top.Touch(from)
	s.top.Touch(to)
	return s.top.Transfer(from, to, amount, s.backend)
}

func (s *StackState) SetCode(addr common.Address, code []byte) { s.top.SetCode(addr, code, s.backend) }

func (s *StackState) ResetStorage(addr common.Address) { s.top.ResetStorage(addr, s.backend) }

func (s *StackState) Suicide(addr common.Address) { s.top.SetDeleted(addr) }

func (s *StackState) Log(log Log) { s.top.AppendLog(log) }

func (s *StackState) Touch(addr common.Address) { s.top.Touch(addr) }

func (s *StackState) IsCold(addr common.Address) bool { return s.top.IsCold(addr) }
func (s *StackState) IsStorageCold(addr common.Address, key common.Hash) bool {
	return s.top.IsStorageCold(addr, key)
}

// Finalize must be called once, on a StackState whose current frame is the
// root, at the end of a successful transaction. It applies the accumulated
// changes to the backend and returns the logs recorded.
func (s *StackState) Finalize(deleteEmpty bool) ([]Log, error) {
	applies, logs := s.top.Deconstruct(s.backend)
	if err := s.backend.Apply(applies, logs, deleteEmpty); err != nil {
		return nil, err
	}
	return logs, nil
}
