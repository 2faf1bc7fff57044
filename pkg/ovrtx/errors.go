// Copyright 2025 Certen Protocol

// Package ovrtx implements the transaction execution pipeline: decoding the
// tagged transaction envelope, the pre-execution gas-price/signature/nonce/
// balance checks, dispatch into either the OFUEL precompile or the general
// EVM interpreter, fee settlement, and receipt construction. pkg/ledger
// calls Execute once per delivered transaction.
package ovrtx

import (
	"errors"
	"fmt"
)

// ErrDecode means the raw transaction bytes could not be parsed into a Tx at
// all. Callers never charge a fee or advance any nonce for a decode
// failure; the transaction never reaches a per-tx version.
var ErrDecode = errors.New("ovrtx: malformed transaction")

// ErrRejected means the transaction decoded fine but failed one of the
// pre-execution checks (gas price floor, signature recovery, nonce, balance
// coverage) before a per-tx version was ever created. Like ErrDecode, a
// rejection charges no fee and advances no nonce.
type ErrRejected struct {
	Reason string
}

func (e *ErrRejected) Error() string {
	return fmt.Sprintf("ovrtx: rejected: %s", e.Reason)
}

func rejectf(format string, args ...any) error {
	return &ErrRejected{Reason: fmt.Sprintf(format, args...)}
}
