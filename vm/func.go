package vm

import (
	"sync"

	"github.com/MinkowskiMetric/wasm-interp/wasm"
)

// HostFunction is a function implemented outside the module, wired in by a
// Resolver (§6). It receives raw operand cells and returns raw result
// cells in the same encoding the executor uses internally.
type HostFunction func(args []uint64) ([]uint64, error)

// FuncInstance is one entry of the function index space: either a local
// function with decoded bytecode, or a host function supplied at
// instantiation time.
type FuncInstance struct {
	Type wasm.FuncType

	// Local function fields. Code is nil for host functions.
	Code              []byte
	LocalTypes        []wasm.ValueType // declared locals, flattened, in order
	NumDeclaredLocals int

	Host HostFunction

	// Name, when non-empty, is an imported function's field name — used
	// only for diagnostics. Local functions leave it empty.
	Name string

	blockTableOnce sync.Once
	blockTable     map[int]blockEnds
}

// IsHost reports whether this entry calls out instead of running bytecode.
func (f *FuncInstance) IsHost() bool { return f.Host != nil }

func flattenLocals(locals []wasm.LocalEntry) []wasm.ValueType {
	n := 0
	for _, l := range locals {
		n += int(l.Count)
	}
	out := make([]wasm.ValueType, 0, n)
	for _, l := range locals {
		for i := uint32(0); i < l.Count; i++ {
			out = append(out, l.ValueType)
		}
	}
	return out
}
