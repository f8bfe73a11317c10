package vm

import "github.com/MinkowskiMetric/wasm-interp/opcode"

// asm is a tiny fluent bytecode builder used only by tests, so scenario
// tests can be written as a sequence of instructions instead of raw byte
// literals.
type asm struct{ b []byte }

func (a *asm) op(o opcode.Opcode) *asm { a.b = append(a.b, byte(o)); return a }
func (a *asm) raw(b byte) *asm         { a.b = append(a.b, b); return a }
func (a *asm) u(v uint64) *asm         { a.b = append(a.b, uleb(v)...); return a }
func (a *asm) s(v int64) *asm          { a.b = append(a.b, sleb(v)...); return a }
func (a *asm) bytes() []byte           { return a.b }

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			break
		}
	}
	return out
}

func sleb(v int64) []byte {
	var out []byte
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}
