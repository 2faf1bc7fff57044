package vkv

import (
	"testing"

	dbm "github.com/cometbft/cometbft-db"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(dbm.NewMemDB())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestOrphanSetGet(t *testing.T) {
	s := newTestStore(t)
	o := NewOrphan[uint64](s, "test:counter", MainBranch)

	if _, ok, err := o.Get(); err != nil || ok {
		t.Fatalf("expected no value, got ok=%v err=%v", ok, err)
	}

	if err := o.Set(Version{Height: 1, TxPos: 0}, 42); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := o.Get()
	if err != nil || !ok || v != 42 {
		t.Fatalf("Get: v=%v ok=%v err=%v", v, ok, err)
	}

	if err := o.Set(Version{Height: 2, TxPos: 0}, 43); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, _, _ = o.Get()
	if v != 43 {
		t.Fatalf("expected latest value 43, got %d", v)
	}

	v, ok, err = o.GetAsOf(Version{Height: 1, TxPos: 0})
	if err != nil || !ok || v != 42 {
		t.Fatalf("GetAsOf(1): v=%v ok=%v err=%v", v, ok, err)
	}
}

func TestOrderedMapBasic(t *testing.T) {
	s := newTestStore(t)
	m := NewOrderedMap[uint64, string](s, "test:blocks", MainBranch, Uint64KeyCodec)

	for i := uint64(1); i <= 3; i++ {
		if err := m.Insert(Version{Height: i}, i, "block"); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	keys, err := m.Keys()
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 3 || keys[0] != 1 || keys[2] != 3 {
		t.Fatalf("unexpected keys: %v", keys)
	}

	lastKey, _, ok, err := m.Last()
	if err != nil || !ok || lastKey != 3 {
		t.Fatalf("Last: key=%v ok=%v err=%v", lastKey, ok, err)
	}

	if err := m.Remove(Version{Height: 4}, 2); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := m.Get(2); ok {
		t.Fatalf("expected key 2 removed")
	}
	keys, _ = m.Keys()
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys after removal, got %v", keys)
	}
}

func TestBranchIsolationAndMerge(t *testing.T) {
	s := newTestStore(t)
	m := NewOrderedMap[uint64, string](s, "test:accounts", MainBranch, Uint64KeyCodec)

	if err := m.Insert(Version{Height: 1}, 1, "alice"); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	const child BranchName = "deliver_tx"
	if err := s.BranchCreate(child, MainBranch); err != nil {
		t.Fatalf("BranchCreate: %v", err)
	}
	mc := m.OnBranch(child)

	// child sees parent's pre-fork write
	if v, ok, err := mc.Get(1); err != nil || !ok || v != "alice" {
		t.Fatalf("child should see parent write: v=%v ok=%v err=%v", v, ok, err)
	}

	// write on child only
	if err := mc.Insert(Version{Height: 2}, 2, "bob"); err != nil {
		t.Fatalf("Insert on child: %v", err)
	}

	// parent must not see child's write
	if _, ok, _ := m.Get(2); ok {
		t.Fatalf("parent must not see child's write before merge")
	}

	if err := s.BranchMerge(MainBranch, child); err != nil {
		t.Fatalf("BranchMerge: %v", err)
	}
	if v, ok, err := m.Get(2); err != nil || !ok || v != "bob" {
		t.Fatalf("parent should see merged write: v=%v ok=%v err=%v", v, ok, err)
	}

	if err := s.BranchRemove(child); err != nil {
		t.Fatalf("BranchRemove: %v", err)
	}
}

func TestPopVersionUndoesWrites(t *testing.T) {
	s := newTestStore(t)
	m := NewOrderedMap[uint64, string](s, "test:popcheck", MainBranch, Uint64KeyCodec)

	if err := m.Insert(Version{Height: 1}, 1, "alice"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	badVer := Version{Height: 2}
	if err := m.Insert(badVer, 2, "bob"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := m.Insert(badVer, 3, "carol"); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := s.PopVersion(MainBranch, badVer); err != nil {
		t.Fatalf("PopVersion: %v", err)
	}

	if _, ok, _ := m.Get(2); ok {
		t.Fatalf("expected key 2 popped")
	}
	if _, ok, _ := m.Get(3); ok {
		t.Fatalf("expected key 3 popped")
	}
	if v, ok, err := m.Get(1); err != nil || !ok || v != "alice" {
		t.Fatalf("expected key 1 untouched: v=%v ok=%v err=%v", v, ok, err)
	}

	// popping again, or popping a version that never wrote anything, is a no-op
	if err := s.PopVersion(MainBranch, badVer); err != nil {
		t.Fatalf("PopVersion (repeat): %v", err)
	}
	if err := s.PopVersion(MainBranch, Version{Height: 99}); err != nil {
		t.Fatalf("PopVersion (never written): %v", err)
	}
}

func TestDualKeyMapRemoveAll(t *testing.T) {
	s := newTestStore(t)
	m := NewDualKeyMap[[]byte, []byte, string](s, "test:storage", MainBranch, BytesKeyCodec, BytesKeyCodec)

	addr := []byte("addr1")
	if err := m.Insert(Version{Height: 1}, addr, []byte("slot1"), "v1"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := m.Insert(Version{Height: 1}, addr, []byte("slot2"), "v2"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := m.RemoveAll(Version{Height: 2}, addr); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	if _, ok, _ := m.Get(addr, []byte("slot1")); ok {
		t.Fatalf("expected slot1 removed")
	}
	if _, ok, _ := m.Get(addr, []byte("slot2")); ok {
		t.Fatalf("expected slot2 removed")
	}
}
