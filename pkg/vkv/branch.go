package vkv

import (
	"encoding/json"
	"fmt"
)

// BranchName names a line of history. The zero value "" is never a valid
// branch name; MainBranch is the conventional root branch with no
// parent.
type BranchName string

// MainBranch is the root branch every other branch is ultimately forked
// from. It has no parent and is never removed.
const MainBranch BranchName = "main"

// branchMeta describes one branch's position in the fork tree.
//
// Fence is the parent's Version at the moment this branch was created: reads
// that fall through to the parent only ever see writes with Version <= Fence,
// which is what makes the child branch's view of history stable even as the
// parent keeps advancing.
type branchMeta struct {
	Parent BranchName `json:"parent"`
	Fence  Version    `json:"fence"`
	Head   Version    `json:"head"`
}

var branchTableKey = []byte("vkv:branches")

func (s *Store) loadBranchTable() (map[BranchName]*branchMeta, error) {
	raw, err := s.db.Get(branchTableKey)
	if err != nil {
		return nil, err
	}
	table := map[BranchName]*branchMeta{}
	if len(raw) == 0 {
		table[MainBranch] = &branchMeta{}
		return table, nil
	}
	if err := json.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("vkv: decode branch table: %w", err)
	}
	return table, nil
}

func (s *Store) saveBranchTable() error {
	raw, err := json.Marshal(s.branches)
	if err != nil {
		return fmt.Errorf("vkv: encode branch table: %w", err)
	}
	return s.db.SetSync(branchTableKey, raw)
}

// HasBranch reports whether name has ever been created (and not removed).
func (s *Store) HasBranch(name BranchName) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.branches[name]
	return ok
}

// BranchCreate forks a new branch from parent, fixed at parent's current
// head version. Returns an error if name already exists or parent is
// unknown.
func (s *Store) BranchCreate(name, parent BranchName) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.branches[name]; ok {
		return fmt.Errorf("vkv: branch %q already exists", name)
	}
	pm, ok := s.branches[parent]
	if !ok {
		return fmt.Errorf("vkv: unknown parent branch %q", parent)
	}
	s.branches[name] = &branchMeta{Parent: parent, Fence: pm.Head, Head: pm.Head}
	return s.saveBranchTable()
}

// BranchCreateAtVersion forks a new branch from parent the same way
// BranchCreate does, but pins its fence to an arbitrary past version of
// parent instead of parent's current head. Reads on the new branch that
// fall through to parent only ever see writes with Version <= fence, giving
// a stable historical snapshot even while parent keeps advancing. Used by
// pkg/wstate.WithHistoricalBranch for read-only queries against a past
// block height.
func (s *Store) BranchCreateAtVersion(name, parent BranchName, fence Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.branches[name]; ok {
		return fmt.Errorf("vkv: branch %q already exists", name)
	}
	if _, ok := s.branches[parent]; !ok {
		return fmt.Errorf("vkv: unknown parent branch %q", parent)
	}
	s.branches[name] = &branchMeta{Parent: parent, Fence: fence, Head: fence}
	return s.saveBranchTable()
}

// BranchRemove deletes a branch's metadata. It does not walk and delete the
// branch's written entries eagerly (mirroring the VKV contract that removal
// is a lightweight, lazy operation). Those entries stay in the database, so
// a later branch created under the same name still sees them through its own
// namespace, ahead of anything it reads from its parent.
func (s *Store) BranchRemove(name BranchName) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == MainBranch {
		return fmt.Errorf("vkv: cannot remove main branch")
	}
	if _, ok := s.branches[name]; !ok {
		return fmt.Errorf("vkv: unknown branch %q", name)
	}
	delete(s.branches, name)
	return s.saveBranchTable()
}

// BranchMerge folds child's writes back into parent: it copies every entry
// stored under child's namespace into parent's namespace at the same version
// (rekeyBranch) and advances parent's head to child's head when that is
// later. child's own metadata is left unchanged, and because parent now
// carries copies of its entries a subsequent BranchRemove(child) loses
// nothing from parent's view.
//
// This module only ever merges DeliverTx into Main (see pkg/ledger), a
// single well-known shape, so a general three-way merge is not implemented.
func (s *Store) BranchMerge(parent, child BranchName) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pm, ok := s.branches[parent]
	if !ok {
		return fmt.Errorf("vkv: unknown branch %q", parent)
	}
	cm, ok := s.branches[child]
	if !ok {
		return fmt.Errorf("vkv: unknown branch %q", child)
	}
	if cm.Parent != parent {
		return fmt.Errorf("vkv: branch %q is not a child of %q", child, parent)
	}

	// Re-key every entry the child wrote (versions in (fence, head]) onto the
	// parent's branch namespace so the parent alone carries the merged view.
	if err := s.rekeyBranch(child, parent, cm.Fence); err != nil {
		return err
	}
	if cm.Head.Less(pm.Head) {
		// nothing to advance
	} else {
		pm.Head = cm.Head
	}
	return s.saveBranchTable()
}

// NextVersion sets branch's head to (height, txPos) and returns that version
// for callers to pass to container Insert/Remove operations.
func (s *Store) NextVersion(branch BranchName, height uint64, txPos uint32) (Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bm, ok := s.branches[branch]
	if !ok {
		return Version{}, fmt.Errorf("vkv: unknown branch %q", branch)
	}
	v := Version{Height: height, TxPos: txPos}
	bm.Head = v
	return v, s.saveBranchTable()
}

// branchChain returns the ancestor chain starting at name and ending at the
// root branch, paired with the fence bounding visibility into the next
// ancestor (MaxVersion for name itself, since its own writes have no fence).
func (s *Store) branchChain(name BranchName) ([]BranchName, []Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var names []BranchName
	var bounds []Version
	cur := name
	bound := MaxVersion
	for {
		bm, ok := s.branches[cur]
		if !ok {
			return nil, nil, fmt.Errorf("vkv: unknown branch %q", cur)
		}
		names = append(names, cur)
		bounds = append(bounds, bound)
		if cur == MainBranch {
			break
		}
		bound = bm.Fence
		cur = bm.Parent
	}
	return names, bounds, nil
}
