// Copyright 2025 Certen Protocol

// Package evmcore implements the EVM host contract this system's
// transaction engine executes against: account/storage access (Backend),
// state-change application (Apply), and the nested substate stack opcode
// execution needs for CALL/CREATE (Substate). It holds no knowledge of VKV
// branches (see pkg/wstate) or opcodes (see pkg/evmvm) — it is the seam
// between them, ported from the backend/stack contract an external EVM
// crate expected of its embedder.
package evmcore

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Basic is the balance/nonce pair tracked for every account.
type Basic struct {
	Balance *uint256.Int
	Nonce   uint64
}

// Log is one EVM log entry (event) emitted during execution.
type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

// Apply describes one account-level state change to commit to the backing
// store at the end of a successful transaction. Exactly one of Modify or
// Delete is set; see ModifyApply/DeleteApply constructors.
type Apply struct {
	IsDelete bool

	Address      common.Address
	Basic        Basic
	Code         []byte
	HasCode      bool
	Storage      map[common.Hash]common.Hash
	ResetStorage bool
}

// ModifyApply builds an Apply that creates/updates an account.
func ModifyApply(addr common.Address, basic Basic, code []byte, hasCode bool, storage map[common.Hash]common.Hash, resetStorage bool) Apply {
	return Apply{
		Address:      addr,
		Basic:        basic,
		Code:         code,
		HasCode:      hasCode,
		Storage:      storage,
		ResetStorage: resetStorage,
	}
}

// DeleteApply builds an Apply that removes an account. Per this system's
// documented semantics, deleting an account does NOT eagerly wipe its
// storage rows — they remain until a future Modify with ResetStorage=true
// or an explicit overwrite touches them.
func DeleteApply(addr common.Address) Apply {
	return Apply{IsDelete: true, Address: addr}
}

// ExitKind classifies how an EVM execution ended.
type ExitKind int

const (
	ExitSucceed ExitKind = iota
	ExitRevert
	ExitError
	ExitFatal
)

// ExitReason is the outcome of one call/create frame or a whole
// transaction.
type ExitReason struct {
	Kind    ExitKind
	Message string
}

func (e ExitReason) IsSucceed() bool { return e.Kind == ExitSucceed }

var (
	ExitSucceeded      = ExitReason{Kind: ExitSucceed}
	ExitReverted       = ExitReason{Kind: ExitRevert}
)

func ExitErr(msg string) ExitReason  { return ExitReason{Kind: ExitError, Message: msg} }
func ExitFatalErr(msg string) ExitReason { return ExitReason{Kind: ExitFatal, Message: msg} }
