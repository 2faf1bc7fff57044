package wstate

import (
	"fmt"
	"sync/atomic"

	"github.com/ovrchain/ovrd/pkg/vkv"
)

var historicalBranchSeq atomic.Uint64

// WithHistoricalBranch forks an ephemeral branch from Main fenced at
// asOf, hands the caller a State view pinned to it, and always removes the
// branch on return — including when fn panics or returns an error — giving
// read-only historical queries (pkg/web3.CallContract) isolation from Main
// without leaving branch litter behind.
func WithHistoricalBranch(main *State, asOf vkv.Version, label string, fn func(*State) error) (err error) {
	store := main.Store()
	seq := historicalBranchSeq.Add(1)
	name := vkv.BranchName(fmt.Sprintf("%s-%d-%d-%d", label, asOf.Height, asOf.TxPos, seq))

	if err := store.BranchCreateAtVersion(name, vkv.MainBranch, asOf); err != nil {
		return err
	}
	defer func() {
		if rerr := store.BranchRemove(name); err == nil {
			err = rerr
		}
	}()

	view := main.Clone(name)
	return fn(view)
}
