package vkv

import (
	"encoding/json"
	"sort"
)

// KeyCodec turns a typed key into a byte encoding that sorts in the key's
// natural order under byte-lexicographic comparison (e.g. big-endian for
// integers) and back.
type KeyCodec[K any] struct {
	Encode func(K) []byte
	Decode func([]byte) K
}

// OrderedMap is a branch/version-aware map that also supports ordered
// iteration (Keys, Last), mirroring vsdb's MapxOrd.
type OrderedMap[K any, V any] struct {
	store     *Store
	container string
	branch    BranchName
	keys      KeyCodec[K]
}

// NewOrderedMap binds a new OrderedMap view.
func NewOrderedMap[K any, V any](store *Store, containerID string, branch BranchName, keys KeyCodec[K]) *OrderedMap[K, V] {
	return &OrderedMap[K, V]{store: store, container: containerID, branch: branch, keys: keys}
}

// OnBranch returns a view of the same container bound to a different
// branch.
func (m *OrderedMap[K, V]) OnBranch(branch BranchName) *OrderedMap[K, V] {
	return &OrderedMap[K, V]{store: m.store, container: m.container, branch: branch, keys: m.keys}
}

// Get returns the latest visible value for key.
func (m *OrderedMap[K, V]) Get(key K) (V, bool, error) {
	return m.GetAsOf(key, MaxVersion)
}

// GetAsOf resolves key as it stood at or before asOf.
func (m *OrderedMap[K, V]) GetAsOf(key K, asOf Version) (V, bool, error) {
	var zero V
	raw, ok, err := m.store.readLatestRaw(m.container, m.branch, m.keys.Encode(key), asOf)
	if err != nil || !ok {
		return zero, false, err
	}
	var v V
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Insert writes key -> value at ver.
func (m *OrderedMap[K, V]) Insert(ver Version, key K, value V) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return m.store.insertRaw(m.container, m.branch, m.keys.Encode(key), ver, raw)
}

// Remove tombstones key at ver.
func (m *OrderedMap[K, V]) Remove(ver Version, key K) error {
	return m.store.removeRaw(m.container, m.branch, m.keys.Encode(key), ver)
}

// Keys returns every key currently visible on the bound branch, in
// ascending order.
func (m *OrderedMap[K, V]) Keys() ([]K, error) {
	var out []K
	err := m.store.iteratePrefixLatest(m.container, m.branch, MaxVersion, func(raw []byte) error {
		v, ok, err := m.store.readLatestRaw(m.container, m.branch, raw, MaxVersion)
		if err != nil {
			return err
		}
		if !ok || v == nil {
			return nil
		}
		out = append(out, m.keys.Decode(raw))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return string(m.keys.Encode(out[i])) < string(m.keys.Encode(out[j]))
	})
	return out, nil
}

// Last returns the entry with the greatest key currently visible, if any.
func (m *OrderedMap[K, V]) Last() (K, V, bool, error) {
	var zk K
	var zv V
	keys, err := m.Keys()
	if err != nil || len(keys) == 0 {
		return zk, zv, false, err
	}
	last := keys[len(keys)-1]
	v, ok, err := m.Get(last)
	return last, v, ok, err
}

// Uint64KeyCodec encodes uint64 keys big-endian so byte order matches
// numeric order.
var Uint64KeyCodec = KeyCodec[uint64]{
	Encode: func(k uint64) []byte {
		b := make([]byte, 8)
		for i := 0; i < 8; i++ {
			b[7-i] = byte(k >> (8 * i))
		}
		return b
	},
	Decode: func(b []byte) uint64 {
		var k uint64
		for i := 0; i < 8 && i < len(b); i++ {
			k = k<<8 | uint64(b[i])
		}
		return k
	},
}

// BytesKeyCodec passes fixed-width byte keys (addresses, hashes) through
// unchanged; lexicographic order on the raw bytes is what callers expect.
var BytesKeyCodec = KeyCodec[[]byte]{
	Encode: func(k []byte) []byte { return k },
	Decode: func(b []byte) []byte { return append([]byte{}, b...) },
}
