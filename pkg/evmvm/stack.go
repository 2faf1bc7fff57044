package evmvm

import "github.com/holiman/uint256"

const maxStackDepth = 1024

type stack struct {
	data []uint256.Int
}

func newStack() *stack { return &stack{data: make([]uint256.Int, 0, 16)} }

func (s *stack) push(v *uint256.Int) { s.data = append(s.data, *v) }

func (s *stack) pop() uint256.Int {
	n := len(s.data) - 1
	v := s.data[n]
	s.data = s.data[:n]
	return v
}

func (s *stack) peek(depth int) *uint256.Int {
	return &s.data[len(s.data)-1-depth]
}

func (s *stack) swap(depth int) {
	n := len(s.data) - 1
	s.data[n], s.data[n-depth] = s.data[n-depth], s.data[n]
}

func (s *stack) len() int { return len(s.data) }

// memory is a byte-addressable, word-granularity-charged scratch buffer.
type memory struct {
	store []byte
}

func newMemory() *memory { return &memory{} }

func (m *memory) resize(size uint64) {
	if uint64(len(m.store)) < size {
		grown := make([]byte, size)
		copy(grown, m.store)
		m.store = grown
	}
}

func (m *memory) set(offset uint64, data []byte) {
	if len(data) == 0 {
		return
	}
	m.resize(offset + uint64(len(data)))
	copy(m.store[offset:], data)
}

func (m *memory) get(offset, size uint64) []byte {
	out := make([]byte, size)
	if offset >= uint64(len(m.store)) {
		return out
	}
	n := copy(out, m.store[offset:])
	_ = n
	return out
}

func (m *memory) len() uint64 { return uint64(len(m.store)) }
