// Copyright 2025 Certen Protocol

// Package vkv implements a branched, versioned key-value store on top of a
// CometBFT dbm.DB handle. A branch is a named line of history; a version is
// a (block height, tx position) pair identifying a single write. Containers
// (Orphan, OrderedMap, DualKeyMap) are typed views bound to a branch name.
package vkv

import "encoding/binary"

// Version identifies a single write, ordered first by block height then by
// position of the transaction within that block. Version{} (the zero value)
// sorts before every other version; genesis writes use it.
type Version struct {
	Height   uint64
	TxPos    uint32
}

// Encode returns a 12-byte big-endian encoding that preserves Version
// ordering under byte-lexicographic comparison.
func (v Version) Encode() []byte {
	b := make([]byte, 12)
	binary.BigEndian.PutUint64(b[:8], v.Height)
	binary.BigEndian.PutUint32(b[8:], v.TxPos)
	return b
}

// DecodeVersion parses a 12-byte encoding produced by Version.Encode.
func DecodeVersion(b []byte) Version {
	if len(b) < 12 {
		return Version{}
	}
	return Version{
		Height: binary.BigEndian.Uint64(b[:8]),
		TxPos:  binary.BigEndian.Uint32(b[8:]),
	}
}

// Less reports whether v sorts strictly before o.
func (v Version) Less(o Version) bool {
	if v.Height != o.Height {
		return v.Height < o.Height
	}
	return v.TxPos < o.TxPos
}

// MaxVersion is the largest possible Version, used as an open upper bound
// when resolving "latest" reads.
var MaxVersion = Version{Height: ^uint64(0), TxPos: ^uint32(0)}
