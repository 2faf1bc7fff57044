package wstate

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Bloom is a 2048-bit (256-byte) logs bloom filter, built with the standard
// Ethereum bloom9 rule: each added item sets 3 bits, each derived from a
// 11-bit window of its keccak256 hash.
type Bloom [256]byte

// Add sets the 3 bits data's keccak256 hash selects.
func (b *Bloom) Add(data []byte) {
	h := crypto.Keccak256(data)
	for i := 0; i < 3; i++ {
		bit := (uint(h[2*i])<<8 | uint(h[2*i+1])) & 2047
		byteIndex := 256 - 1 - bit/8
		bitMask := byte(1) << (bit % 8)
		b[byteIndex] |= bitMask
	}
}

// Test reports whether every bit data's hash selects is set.
func (b Bloom) Test(data []byte) bool {
	h := crypto.Keccak256(data)
	for i := 0; i < 3; i++ {
		bit := (uint(h[2*i])<<8 | uint(h[2*i+1])) & 2047
		byteIndex := 256 - 1 - bit/8
		bitMask := byte(1) << (bit % 8)
		if b[byteIndex]&bitMask == 0 {
			return false
		}
	}
	return true
}

// Or ORs other's bits into b, used to fold a log's bloom into its
// transaction's and a transaction's into the block's.
func (b *Bloom) Or(other Bloom) {
	for i := range b {
		b[i] |= other[i]
	}
}

// LogBloom computes the bloom for a single log: the address plus every
// topic, each contributing its own 3-bit probe.
func LogBloom(address common.Address, topics []common.Hash) Bloom {
	var b Bloom
	b.Add(address.Bytes())
	for _, t := range topics {
		b.Add(t.Bytes())
	}
	return b
}
