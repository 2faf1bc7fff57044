package vkv

import (
	"bytes"
	"encoding/json"
)

// DualKeyMap is a branch/version-aware map keyed by a pair (K1, K2), such as
// (address, storage slot). RemoveAll(k1) drops every entry for k1 regardless
// of k2, mirroring vsdb's remove_by_branch((k1, None), branch).
type DualKeyMap[K1 any, K2 any, V any] struct {
	store     *Store
	container string
	branch    BranchName
	k1        KeyCodec[K1]
	k2        KeyCodec[K2]
}

// NewDualKeyMap binds a new DualKeyMap view.
func NewDualKeyMap[K1 any, K2 any, V any](store *Store, containerID string, branch BranchName, k1 KeyCodec[K1], k2 KeyCodec[K2]) *DualKeyMap[K1, K2, V] {
	return &DualKeyMap[K1, K2, V]{store: store, container: containerID, branch: branch, k1: k1, k2: k2}
}

// OnBranch returns a view of the same container bound to a different
// branch.
func (m *DualKeyMap[K1, K2, V]) OnBranch(branch BranchName) *DualKeyMap[K1, K2, V] {
	return &DualKeyMap[K1, K2, V]{store: m.store, container: m.container, branch: branch, k1: m.k1, k2: m.k2}
}

func (m *DualKeyMap[K1, K2, V]) encodeKey(a K1, b K2) []byte {
	ea := m.k1.Encode(a)
	eb := m.k2.Encode(b)
	out := make([]byte, 0, len(ea)+1+len(eb))
	out = append(out, ea...)
	out = append(out, '/')
	out = append(out, eb...)
	return out
}

// Get returns the latest visible value for (k1, k2).
func (m *DualKeyMap[K1, K2, V]) Get(k1 K1, k2 K2) (V, bool, error) {
	var zero V
	raw, ok, err := m.store.readLatestRaw(m.container, m.branch, m.encodeKey(k1, k2), MaxVersion)
	if err != nil || !ok {
		return zero, false, err
	}
	var v V
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Insert writes (k1,k2) -> value at ver.
func (m *DualKeyMap[K1, K2, V]) Insert(ver Version, k1 K1, k2 K2, value V) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return m.store.insertRaw(m.container, m.branch, m.encodeKey(k1, k2), ver, raw)
}

// Remove tombstones a single (k1,k2) entry.
func (m *DualKeyMap[K1, K2, V]) Remove(ver Version, k1 K1, k2 K2) error {
	return m.store.removeRaw(m.container, m.branch, m.encodeKey(k1, k2), ver)
}

// RemoveAll tombstones every entry for k1 regardless of k2, mirroring
// vsdb's remove_by_branch((k1, None), branch) used to implement
// ApplyBackend's reset_storage.
func (m *DualKeyMap[K1, K2, V]) RemoveAll(ver Version, k1 K1) error {
	prefix := append(m.k1.Encode(k1), '/')
	var toRemove [][]byte
	err := m.store.iteratePrefixLatest(m.container, m.branch, MaxVersion, func(userKey []byte) error {
		if bytes.HasPrefix(userKey, prefix) {
			toRemove = append(toRemove, append([]byte{}, userKey...))
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range toRemove {
		if err := m.store.removeRaw(m.container, m.branch, k, ver); err != nil {
			return err
		}
	}
	return nil
}
