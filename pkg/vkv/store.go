package vkv

import (
	"bytes"
	"fmt"
	"sync"

	dbm "github.com/cometbft/cometbft-db"
)

// Store owns a single physical dbm.DB and the branch/version bookkeeping
// every container (Orphan, OrderedMap, DualKeyMap) resolves reads and
// writes through. All containers sharing a Store see the same branch table.
type Store struct {
	db       dbm.DB
	mu       sync.RWMutex
	branches map[BranchName]*branchMeta
}

// Open creates a Store backed by db, initializing the branch table with a
// single root "main" branch if none is persisted yet.
func Open(db dbm.DB) (*Store, error) {
	s := &Store{db: db}
	table, err := s.loadBranchTable()
	if err != nil {
		return nil, err
	}
	s.branches = table
	return s, nil
}

// entryKey builds the physical key under which a container stores one
// logical (containerID, userKey) write at a given branch and version.
func entryKey(containerID string, branch BranchName, userKey []byte, ver Version) []byte {
	buf := bytes.NewBuffer(nil)
	buf.WriteString("vkv:c:")
	buf.WriteString(containerID)
	buf.WriteByte('/')
	buf.WriteString(string(branch))
	buf.WriteByte('/')
	buf.Write(userKey)
	buf.WriteByte('/')
	buf.Write(ver.Encode())
	return buf.Bytes()
}

// entryPrefix builds the prefix spanning every version ever written for one
// logical key on one branch.
func entryPrefix(containerID string, branch BranchName, userKey []byte) []byte {
	buf := bytes.NewBuffer(nil)
	buf.WriteString("vkv:c:")
	buf.WriteString(containerID)
	buf.WriteByte('/')
	buf.WriteString(string(branch))
	buf.WriteByte('/')
	buf.Write(userKey)
	buf.WriteByte('/')
	return buf.Bytes()
}

// Every stored entry starts with a one-byte tag: insertRaw stores tagValue
// followed by the encoded value, and removeRaw stores a tombstone, the
// single byte tagTombstone, in place of a removed value.
const (
	tagValue     byte = 1
	tagTombstone byte = 0
)

func (s *Store) insertRaw(containerID string, branch BranchName, userKey []byte, ver Version, value []byte) error {
	key := entryKey(containerID, branch, userKey, ver)
	if err := s.db.SetSync(key, append([]byte{tagValue}, value...)); err != nil {
		return err
	}
	return s.logWrite(branch, ver, key)
}

func (s *Store) removeRaw(containerID string, branch BranchName, userKey []byte, ver Version) error {
	key := entryKey(containerID, branch, userKey, ver)
	if err := s.db.SetSync(key, []byte{tagTombstone}); err != nil {
		return err
	}
	return s.logWrite(branch, ver, key)
}

// readLatestRaw resolves the most recent visible write for userKey on
// branch as of asOf (inclusive), walking up the branch's ancestor chain as
// needed. ok is false if no write is visible (including a visible
// tombstone, which is reported by returning ok=false as well since callers
// only care about presence of live data).
func (s *Store) readLatestRaw(containerID string, branch BranchName, userKey []byte, asOf Version) (value []byte, ok bool, err error) {
	names, bounds, err := s.branchChain(branch)
	if err != nil {
		return nil, false, err
	}
	for i, name := range names {
		bound := bounds[i]
		if asOf.Less(bound) {
			bound = asOf
		}
		prefix := entryPrefix(containerID, name, userKey)
		v, found, tomb, ierr := s.lastInRange(prefix, bound)
		if ierr != nil {
			return nil, false, ierr
		}
		if found {
			if tomb {
				return nil, false, nil
			}
			return v, true, nil
		}
	}
	return nil, false, nil
}

// lastInRange scans all versions stored under prefix and returns the value
// (sans tag byte) for the highest version <= bound.
func (s *Store) lastInRange(prefix []byte, bound Version) (value []byte, found bool, tomb bool, err error) {
	end := append(append([]byte{}, prefix...), 0xff)
	it, err := s.db.Iterator(prefix, end)
	if err != nil {
		return nil, false, false, err
	}
	defer it.Close()

	boundEnc := bound.Encode()
	var bestKey []byte
	var bestVal []byte
	for ; it.Valid(); it.Next() {
		k := it.Key()
		if len(k) < len(prefix) {
			continue
		}
		verEnc := k[len(prefix):]
		if bytes.Compare(verEnc, boundEnc) > 0 {
			break
		}
		if bestKey == nil || bytes.Compare(verEnc, bestKey) >= 0 {
			bestKey = append([]byte{}, verEnc...)
			bestVal = append([]byte{}, it.Value()...)
		}
	}
	if bestKey == nil {
		return nil, false, false, nil
	}
	if len(bestVal) == 0 {
		return nil, true, true, nil
	}
	return bestVal[1:], true, bestVal[0] == tagTombstone, nil
}

// iteratePrefixLatest walks every distinct userKey ever written under
// containerID on branch (across its whole ancestor chain), invoking fn once
// with each userKey; keys seen on more than one branch of the chain are
// deduplicated here. fn receives no value: asOf and branch fences are not
// applied, so keys that are tombstoned or not visible are reported too and
// fn resolves visibility itself. Used by OrderedMap.Keys and
// DualKeyMap.RemoveAll.
func (s *Store) iteratePrefixLatest(containerID string, branch BranchName, asOf Version, fn func(userKey []byte) error) error {
	names, _, err := s.branchChain(branch)
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, name := range names {
		prefix := []byte(fmt.Sprintf("vkv:c:%s/%s/", containerID, name))
		it, err := s.db.Iterator(prefix, append(append([]byte{}, prefix...), 0xff))
		if err != nil {
			return err
		}
		for ; it.Valid(); it.Next() {
			k := it.Key()
			rest := k[len(prefix):]
			// rest = userKey + "/" + 12-byte version
			if len(rest) < 13 {
				continue
			}
			userKey := rest[:len(rest)-13]
			if seen[string(userKey)] {
				continue
			}
			seen[string(userKey)] = true
			if err := fn(userKey); err != nil {
				it.Close()
				return err
			}
		}
		it.Close()
	}
	return nil
}

// rekeyBranch copies every entry stored under src's namespace into dst's
// namespace, keeping each entry's version, used by BranchMerge. uptoFence is
// not consulted: entries are copied whatever their version.
func (s *Store) rekeyBranch(src, dst BranchName, uptoFence Version) error {
	_ = uptoFence
	prefix := []byte(fmt.Sprintf("vkv:c:"))
	srcMarker := []byte("/" + string(src) + "/")
	it, err := s.db.Iterator(prefix, append(append([]byte{}, prefix...), 0xff))
	if err != nil {
		return err
	}
	defer it.Close()

	batch := s.db.NewBatch()
	defer batch.Close()
	for ; it.Valid(); it.Next() {
		k := it.Key()
		idx := bytes.Index(k, srcMarker)
		if idx < 0 {
			continue
		}
		newKey := append([]byte{}, k[:idx]...)
		newKey = append(newKey, []byte("/"+string(dst)+"/")...)
		newKey = append(newKey, k[idx+len(srcMarker):]...)
		if err := batch.Set(newKey, it.Value()); err != nil {
			return err
		}
	}
	return batch.WriteSync()
}
