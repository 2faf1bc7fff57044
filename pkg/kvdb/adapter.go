// Copyright 2025 Certen Protocol
//
// Physical storage bootstrap: opens the on-disk database CometBFT-style
// nodes use and binds a pkg/vkv.Store on top of it.

package kvdb

import (
	"path/filepath"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/ovrchain/ovrd/pkg/vkv"
)

// OpenStore opens (creating if absent) a GoLevelDB-backed store rooted at
// <dataDir>/overeality/state.db and returns a pkg/vkv.Store bound to it.
func OpenStore(dataDir string) (*vkv.Store, error) {
	dbDir := filepath.Join(dataDir, "overeality")
	db, err := dbm.NewGoLevelDB("state", dbDir)
	if err != nil {
		return nil, err
	}
	return vkv.Open(db)
}
