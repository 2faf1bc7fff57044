package merkle

import "crypto/sha256"

// sentinelLeaf is prepended to every TreeStore so the tree is never empty,
// even for a block with zero transactions.
var sentinelLeaf = sha256.Sum256([]byte("ovr-merkle-sentinel"))

// TreeStore is the Merkle tree container embedded in a block header: a
// serializable list of leaves (the sentinel plus one per transaction in the
// block) alongside the resulting root. It round-trips through JSON so it
// can travel with the header it belongs to.
type TreeStore struct {
	Leaves [][]byte `json:"leaves"`
	root   []byte
}

// NewTreeStore builds a TreeStore from the given transaction hashes, always
// prepending the sentinel leaf first.
func NewTreeStore(txHashes [][]byte) (*TreeStore, error) {
	leaves := make([][]byte, 0, len(txHashes)+1)
	leaves = append(leaves, sentinelLeaf[:])
	leaves = append(leaves, txHashes...)

	tree, err := BuildTree(leaves)
	if err != nil {
		return nil, err
	}
	return &TreeStore{Leaves: leaves, root: tree.Root()}, nil
}

// Root returns the store's Merkle root, rebuilding the tree from Leaves if
// necessary (e.g. after JSON decoding).
func (ts *TreeStore) Root() ([]byte, error) {
	if ts.root != nil {
		return ts.root, nil
	}
	tree, err := BuildTree(ts.Leaves)
	if err != nil {
		return nil, err
	}
	ts.root = tree.Root()
	return ts.root, nil
}

// ProofFor returns an inclusion proof for the transaction hash at position
// txIndex (0-based among the real transactions, i.e. not counting the
// sentinel).
func (ts *TreeStore) ProofFor(txIndex int) (*InclusionProof, error) {
	tree, err := BuildTree(ts.Leaves)
	if err != nil {
		return nil, err
	}
	return tree.GenerateProof(txIndex + 1)
}
