package ledger

import "errors"

var (
	// ErrBlockInProgress is returned by BeginBlock if called while a
	// previous block's DeliverTx/EndBlock/Commit cycle hasn't finished.
	ErrBlockInProgress = errors.New("ledger: a block is already in progress")

	// ErrNoBlockInProgress is returned by DeliverTx, EndBlock and Commit if
	// called without a preceding BeginBlock.
	ErrNoBlockInProgress = errors.New("ledger: no block in progress")

	// ErrAlreadyInitialized is returned by InitChain if genesis has already
	// been applied to this store.
	ErrAlreadyInitialized = errors.New("ledger: chain already initialized")
)
