package vm

import "github.com/MinkowskiMetric/wasm-interp/wasm"

// Global is one instance's global variable: its declared type plus a
// current value (raw cell encoding). Set returns a typed error rather
// than panicking when a caller writes to an immutable global — a write
// through an exported or imported handle is a link-time/embedder mistake,
// not a bytecode trap, so it is reported the same way for every caller
// instead of only inside the executor (§4.7).
type Global struct {
	Type  wasm.GlobalType
	Value uint64
}

// NewGlobal constructs a global of type t holding its initial value.
func NewGlobal(t wasm.GlobalType, init uint64) *Global {
	return &Global{Type: t, Value: init}
}

// Get reads the global's current value.
func (g *Global) Get() uint64 { return g.Value }

// Set writes v to the global, failing if it is declared const.
func (g *Global) Set(v uint64) error {
	if g.Type.Mut != wasm.Var {
		return ErrGlobalNotMutable
	}
	g.Value = v
	return nil
}
