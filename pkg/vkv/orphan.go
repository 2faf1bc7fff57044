package vkv

import "encoding/json"

// singleKey is the one fixed logical key an Orphan container stores its
// value under.
var singleKey = []byte("_")

// Orphan is a single versioned cell, e.g. chain_id or total_supply: a value
// with no map structure around it, just a history of writes on a branch.
type Orphan[T any] struct {
	store     *Store
	container string
	branch    BranchName
}

// NewOrphan binds a new Orphan view over store, identified by containerID
// (must be unique across all containers sharing the Store) and defaulting
// to branch.
func NewOrphan[T any](store *Store, containerID string, branch BranchName) *Orphan[T] {
	return &Orphan[T]{store: store, container: containerID, branch: branch}
}

// OnBranch returns a view of the same container bound to a different
// branch, sharing the same underlying Store.
func (o *Orphan[T]) OnBranch(branch BranchName) *Orphan[T] {
	return &Orphan[T]{store: o.store, container: o.container, branch: branch}
}

// Get returns the latest value visible on the bound branch, or ok=false if
// never written.
func (o *Orphan[T]) Get() (T, bool, error) {
	return o.GetAsOf(MaxVersion)
}

// GetAsOf resolves the value as it stood at or before the given version.
func (o *Orphan[T]) GetAsOf(asOf Version) (T, bool, error) {
	var zero T
	raw, ok, err := o.store.readLatestRaw(o.container, o.branch, singleKey, asOf)
	if err != nil || !ok {
		return zero, false, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Set writes a new version of the value.
func (o *Orphan[T]) Set(ver Version, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return o.store.insertRaw(o.container, o.branch, singleKey, ver, raw)
}
