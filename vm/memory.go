package vm

import "github.com/MinkowskiMetric/wasm-interp/wasm"

// PageSize is the fixed linear-memory page granularity the MVP binary
// format specifies (§4.5).
const PageSize = 64 * 1024

// MaxPages is the hard ceiling the interpreter enforces even for a memory
// that declares no maximum, keeping a runaway memory.grow from exhausting
// the host.
const MaxPages = 65536

// Memory is one instance's linear memory: a byte slice grown in whole
// pages, bounds-checked on every access.
type Memory struct {
	data    []byte
	maxPage uint32
	hasMax  bool
}

// NewMemory allocates a memory starting at t.Limits.Min pages.
func NewMemory(t wasm.MemType) *Memory {
	max := uint32(MaxPages)
	if t.Limits.HasMax {
		max = t.Limits.Max
	}
	return &Memory{
		data:    make([]byte, uint64(t.Limits.Min)*PageSize),
		maxPage: max,
		hasMax:  t.Limits.HasMax,
	}
}

// Size returns the current size in pages.
func (m *Memory) Size() uint32 { return uint32(len(m.data) / PageSize) }

// Max returns the memory's enforced page ceiling — its declared maximum,
// or MaxPages when the type declared none. It is always meaningful, unlike
// Table.Max, since memory.grow needs a ceiling even absent a declared max.
func (m *Memory) Max() uint32 { return m.maxPage }

// HasMax reports whether the memory's type declared an explicit maximum.
func (m *Memory) HasMax() bool { return m.hasMax }

// Grow attempts to add delta pages, returning the previous size in pages,
// or -1 if the growth would exceed the memory's maximum.
func (m *Memory) Grow(delta uint32) int32 {
	prev := m.Size()
	newSize := uint64(prev) + uint64(delta)
	if newSize > uint64(m.maxPage) {
		return -1
	}
	grown := make([]byte, newSize*PageSize)
	copy(grown, m.data)
	m.data = grown
	return int32(prev)
}

// Read copies n bytes starting at offset into a new slice, trapping on
// out-of-bounds access.
func (m *Memory) Read(offset uint32, n uint32) ([]byte, error) {
	end := uint64(offset) + uint64(n)
	if end > uint64(len(m.data)) {
		return nil, ErrOutOfBoundMemoryAccess
	}
	out := make([]byte, n)
	copy(out, m.data[offset:end])
	return out, nil
}

// Write copies data into memory starting at offset, trapping on
// out-of-bounds access.
func (m *Memory) Write(offset uint32, data []byte) error {
	end := uint64(offset) + uint64(len(data))
	if end > uint64(len(m.data)) {
		return ErrOutOfBoundMemoryAccess
	}
	copy(m.data[offset:end], data)
	return nil
}

// Bytes exposes the underlying backing array directly, for embedders that
// need zero-copy access (§6).
func (m *Memory) Bytes() []byte { return m.data }
