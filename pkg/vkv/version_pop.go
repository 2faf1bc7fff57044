package vkv

import (
	"encoding/json"
	"fmt"
)

// writeLogKey names the physical key holding the list of physical entry keys
// touched by one (branch, version) pair. It is itself outside the
// "vkv:c:"-prefixed entry namespace so it never shows up in container scans.
func writeLogKey(branch BranchName, ver Version) []byte {
	return []byte(fmt.Sprintf("vkv:wlog:%s/%x", branch, ver.Encode()))
}

// logWrite appends a physical entry key to the write log for (branch, ver),
// so that a later PopVersion can find and erase every key a version touched.
func (s *Store) logWrite(branch BranchName, ver Version, physicalKey []byte) error {
	lk := writeLogKey(branch, ver)
	raw, err := s.db.Get(lk)
	if err != nil {
		return err
	}
	var keys [][]byte
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &keys); err != nil {
			return fmt.Errorf("vkv: decode write log %s: %w", lk, err)
		}
	}
	keys = append(keys, physicalKey)
	out, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	return s.db.SetSync(lk, out)
}

// PopVersion erases every write tagged with (branch, ver), restoring reads to
// whatever version preceded it. Used to undo a rejected transaction's partial
// writes without touching any other version's data. Popping a version that
// wrote nothing (or was already popped) is a no-op, not an error.
func (s *Store) PopVersion(branch BranchName, ver Version) error {
	lk := writeLogKey(branch, ver)
	raw, err := s.db.Get(lk)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}
	var keys [][]byte
	if err := json.Unmarshal(raw, &keys); err != nil {
		return fmt.Errorf("vkv: decode write log %s: %w", lk, err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	for _, k := range keys {
		if err := batch.Delete(k); err != nil {
			return err
		}
	}
	if err := batch.Delete(lk); err != nil {
		return err
	}
	return batch.WriteSync()
}
