package vm

import "github.com/MinkowskiMetric/wasm-interp/wasm"

// Table is one instance's table of function references — the MVP only
// has funcref tables (§4.6). Unwritten slots hold -1, a sentinel for "no
// function installed here".
type Table struct {
	entries []int64
	maxSize uint32
	hasMax  bool
}

// NewTable allocates a table sized to t.Limits.Min, every slot empty.
func NewTable(t wasm.TableType) *Table {
	entries := make([]int64, t.Limits.Min)
	for i := range entries {
		entries[i] = -1
	}
	return &Table{entries: entries, maxSize: t.Limits.Max, hasMax: t.Limits.HasMax}
}

// Size returns the table's current element count.
func (t *Table) Size() uint32 { return uint32(len(t.entries)) }

// Max returns the table's declared maximum element count. It is only
// meaningful when HasMax reports true.
func (t *Table) Max() uint32 { return t.maxSize }

// HasMax reports whether the table's type declared a maximum.
func (t *Table) HasMax() bool { return t.hasMax }

// Set installs funcIdx at idx, trapping on out-of-bounds.
func (t *Table) Set(idx uint32, funcIdx int64) error {
	if idx >= uint32(len(t.entries)) {
		return ErrOutOfBoundTableAccess
	}
	t.entries[idx] = funcIdx
	return nil
}

// Get returns the function index installed at idx, or ErrUninitializedElement
// if the slot was never written.
func (t *Table) Get(idx uint32) (int64, error) {
	if idx >= uint32(len(t.entries)) {
		return 0, ErrOutOfBoundTableAccess
	}
	v := t.entries[idx]
	if v < 0 {
		return 0, ErrUninitializedElement
	}
	return v, nil
}
