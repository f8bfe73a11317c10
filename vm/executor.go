package vm

import (
	"math"
	"math/bits"

	"github.com/chewxy/math32"

	"github.com/MinkowskiMetric/wasm-interp/leb128"
	"github.com/MinkowskiMetric/wasm-interp/number"
	"github.com/MinkowskiMetric/wasm-interp/opcode"
	"github.com/MinkowskiMetric/wasm-interp/wasm"
)

// must panics with err if it is non-nil. The executor runs entirely under
// panic/recover: Module.Invoke and Module.CallFunction are where a trap or
// internal error turns back into a normal Go error (§7).
func must(err error) {
	if err != nil {
		panic(err)
	}
}

func check[T any](v T, err error) T {
	must(err)
	return v
}

func b2cell(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func blockArity(bt byte) int {
	if bt == wasm.BlockTypeEmpty {
		return 0
	}
	return 1
}

func readU32(code []byte, ip *int) uint32 {
	r := leb128.NewReader(code[*ip:])
	v := check(r.U32())
	*ip += r.Pos()
	return v
}

func readI32(code []byte, ip *int) int32 {
	r := leb128.NewReader(code[*ip:])
	v := check(r.I32())
	*ip += r.Pos()
	return v
}

func readI64(code []byte, ip *int) int64 {
	r := leb128.NewReader(code[*ip:])
	v := check(r.I64())
	*ip += r.Pos()
	return v
}

func readF32Bits(code []byte, ip *int) uint32 {
	r := leb128.NewReader(code[*ip:])
	v := check(r.F32())
	*ip += r.Pos()
	return v
}

func readF64Bits(code []byte, ip *int) uint64 {
	r := leb128.NewReader(code[*ip:])
	v := check(r.F64())
	*ip += r.Pos()
	return v
}

// readMemArgOffset reads a memarg's (align, offset) pair and returns the
// offset; alignment is a performance hint the interpreter ignores.
func readMemArgOffset(code []byte, ip *int) uint32 {
	r := leb128.NewReader(code[*ip:])
	check(r.U32())
	offset := check(r.U32())
	*ip += r.Pos()
	return offset
}

// callFunc runs fn to completion (or invokes its host implementation),
// returning its results. It pushes args itself and leaves the operand
// stack exactly as it found it aside from that.
func (e *execCtx) callFunc(fn *FuncInstance, args []uint64) []uint64 {
	if fn.IsHost() {
		results, err := fn.Host(args)
		must(err)
		return results
	}
	for _, a := range args {
		must(e.stack.Push(a))
	}
	frame := check(e.stack.EnterFrame(fn))
	e.run(frame)
	results := check(e.stack.PopN(len(fn.Type.Results)))
	must(e.stack.Truncate(frame.BasePointer, 0))
	check(e.stack.PopFrame())
	return results
}

// branch implements the shared mechanic behind br/br_if/br_table/return:
// unwind to the label k levels up from the innermost, preserving its
// arity worth of values, and resume at the appropriate instruction.
func (e *execCtx) branch(frame *Frame, k int) bool {
	lbl, idx, ok := frame.LabelAt(k)
	if !ok {
		panic(ErrInvalidBreakDepth)
	}
	if lbl.IsLoop {
		must(e.stack.Truncate(lbl.SP, 0))
		frame.TruncateLabels(idx + 1)
		frame.IP = lbl.LoopStart
		return false
	}
	must(e.stack.Truncate(lbl.SP, lbl.Arity))
	frame.TruncateLabels(idx)
	frame.IP = lbl.EndIP
	return len(frame.Labels) == 0
}

// run executes frame's bytecode from its current IP until the function
// returns (normally, via an explicit return, or by branching past its
// outermost implicit block).
func (e *execCtx) run(frame *Frame) {
	code := frame.Fn.Code
	must(e.stack.PushLabel(frame, Label{
		SP:    e.stack.Depth(),
		Arity: len(frame.Fn.Type.Results),
		EndIP: len(code),
	}))

	for frame.IP < len(code) {
		op := opcode.Opcode(code[frame.IP])
		frame.IP++

		switch op {
		case opcode.Unreachable:
			panic(ErrUnreachable)
		case opcode.Nop:

		case opcode.Block:
			opIP := frame.IP - 1
			bt := code[frame.IP]
			frame.IP++
			be := check(frame.Fn.blockEndsFor(opIP))
			must(e.stack.PushLabel(frame, Label{SP: e.stack.Depth(), Arity: blockArity(bt), EndIP: be.EndIP}))

		case opcode.Loop:
			bt := code[frame.IP]
			frame.IP++
			must(e.stack.PushLabel(frame, Label{SP: e.stack.Depth(), Arity: blockArity(bt), IsLoop: true, LoopStart: frame.IP}))

		case opcode.If:
			opIP := frame.IP - 1
			bt := code[frame.IP]
			frame.IP++
			cond := check(e.stack.Pop())
			be := check(frame.Fn.blockEndsFor(opIP))
			must(e.stack.PushLabel(frame, Label{SP: e.stack.Depth(), Arity: blockArity(bt), EndIP: be.EndIP}))
			if cond == 0 {
				if be.ElseIP >= 0 {
					frame.IP = be.ElseIP
				} else {
					lbl, err := frame.PopLabel()
					must(err)
					must(e.stack.Truncate(lbl.SP, lbl.Arity))
					frame.IP = be.EndIP
				}
			}

		case opcode.Else:
			lbl, err := frame.PopLabel()
			must(err)
			must(e.stack.Truncate(lbl.SP, lbl.Arity))
			frame.IP = lbl.EndIP

		case opcode.End:
			lbl, err := frame.PopLabel()
			must(err)
			must(e.stack.Truncate(lbl.SP, lbl.Arity))
			if len(frame.Labels) == 0 {
				return
			}

		case opcode.Br:
			k := int(readU32(code, &frame.IP))
			if e.branch(frame, k) {
				return
			}

		case opcode.BrIf:
			k := int(readU32(code, &frame.IP))
			cond := check(e.stack.Pop())
			if cond != 0 {
				if e.branch(frame, k) {
					return
				}
			}

		case opcode.BrTable:
			r := leb128.NewReader(code[frame.IP:])
			n := check(r.U32())
			targets := make([]uint32, n)
			for i := range targets {
				targets[i] = check(r.U32())
			}
			def := check(r.U32())
			frame.IP += r.Pos()
			idx := uint32(check(e.stack.Pop()))
			chosen := def
			if idx < n {
				chosen = targets[idx]
			}
			if e.branch(frame, int(chosen)) {
				return
			}

		case opcode.Return:
			e.branch(frame, len(frame.Labels)-1)
			return

		case opcode.Call:
			idx := readU32(code, &frame.IP)
			callee := check(e.store.Func(idx))
			args := check(e.stack.PopN(len(callee.Type.Params)))
			for _, v := range e.callFunc(callee, args) {
				must(e.stack.Push(v))
			}

		case opcode.CallIndirect:
			typeIdx := readU32(code, &frame.IP)
			readU32(code, &frame.IP) // reserved table index, always 0 in the MVP
			elem := uint32(check(e.stack.Pop()))
			funcIdx, err := e.store.TableGet(elem)
			must(err)
			callee := check(e.store.Func(uint32(funcIdx)))
			if !callee.Type.Equal(e.store.Type(typeIdx)) {
				panic(ErrMismatchedFuncSig)
			}
			args := check(e.stack.PopN(len(callee.Type.Params)))
			for _, v := range e.callFunc(callee, args) {
				must(e.stack.Push(v))
			}

		case opcode.Drop:
			check(e.stack.Pop())

		case opcode.Select:
			cond := check(e.stack.Pop())
			vals := check(e.stack.PopN(2))
			if cond != 0 {
				must(e.stack.Push(vals[0]))
			} else {
				must(e.stack.Push(vals[1]))
			}

		case opcode.LocalGet:
			idx := readU32(code, &frame.IP)
			locals := e.stack.Locals(frame)
			must(e.stack.Push(locals[idx]))

		case opcode.LocalSet:
			idx := readU32(code, &frame.IP)
			v := check(e.stack.Pop())
			e.stack.Locals(frame)[idx] = v

		case opcode.LocalTee:
			idx := readU32(code, &frame.IP)
			top := check(e.stack.TopN(1))
			e.stack.Locals(frame)[idx] = top[0]

		case opcode.GlobalGet:
			idx := readU32(code, &frame.IP)
			must(e.stack.Push(check(e.store.GetGlobal(idx))))

		case opcode.GlobalSet:
			idx := readU32(code, &frame.IP)
			v := check(e.stack.Pop())
			must(e.store.SetGlobal(idx, v))

		default:
			e.execMemOrNumeric(frame, code, op)
		}
	}
}

// execMemOrNumeric dispatches the memory and numeric opcodes (§4.8.1,
// §4.8.4) — split out of run's switch purely to keep that function's
// control-flow cases readable.
func (e *execCtx) execMemOrNumeric(frame *Frame, code []byte, op opcode.Opcode) {
	switch op {
	case opcode.I32Load:
		addr := e.effAddr(code, &frame.IP)
		b := check(e.loadBytes(addr, 4))
		push32(e.stack, leU32(b))
	case opcode.I64Load:
		addr := e.effAddr(code, &frame.IP)
		b := check(e.loadBytes(addr, 8))
		push64(e.stack, leU64(b))
	case opcode.F32Load:
		addr := e.effAddr(code, &frame.IP)
		b := check(e.loadBytes(addr, 4))
		push32(e.stack, leU32(b))
	case opcode.F64Load:
		addr := e.effAddr(code, &frame.IP)
		b := check(e.loadBytes(addr, 8))
		push64(e.stack, leU64(b))
	case opcode.I32Load8S:
		addr := e.effAddr(code, &frame.IP)
		b := check(e.loadBytes(addr, 1))
		push32(e.stack, uint32(int32(int8(b[0]))))
	case opcode.I32Load8U:
		addr := e.effAddr(code, &frame.IP)
		b := check(e.loadBytes(addr, 1))
		push32(e.stack, uint32(b[0]))
	case opcode.I32Load16S:
		addr := e.effAddr(code, &frame.IP)
		b := check(e.loadBytes(addr, 2))
		push32(e.stack, uint32(int32(int16(leU32(b)))))
	case opcode.I32Load16U:
		addr := e.effAddr(code, &frame.IP)
		b := check(e.loadBytes(addr, 2))
		push32(e.stack, leU32(b))
	case opcode.I64Load8S:
		addr := e.effAddr(code, &frame.IP)
		b := check(e.loadBytes(addr, 1))
		push64(e.stack, uint64(int64(int8(b[0]))))
	case opcode.I64Load8U:
		addr := e.effAddr(code, &frame.IP)
		b := check(e.loadBytes(addr, 1))
		push64(e.stack, uint64(b[0]))
	case opcode.I64Load16S:
		addr := e.effAddr(code, &frame.IP)
		b := check(e.loadBytes(addr, 2))
		push64(e.stack, uint64(int64(int16(leU32(b)))))
	case opcode.I64Load16U:
		addr := e.effAddr(code, &frame.IP)
		b := check(e.loadBytes(addr, 2))
		push64(e.stack, uint64(leU32(b)))
	case opcode.I64Load32S:
		addr := e.effAddr(code, &frame.IP)
		b := check(e.loadBytes(addr, 4))
		push64(e.stack, uint64(int64(int32(leU32(b)))))
	case opcode.I64Load32U:
		addr := e.effAddr(code, &frame.IP)
		b := check(e.loadBytes(addr, 4))
		push64(e.stack, uint64(leU32(b)))

	case opcode.I32Store:
		offset := readMemArgOffset(code, &frame.IP)
		v := check(e.stack.Pop())
		addr := baseAddr(check(e.stack.Pop()), offset)
		must(e.storeBytes(addr, le32(uint32(v))))
	case opcode.I64Store:
		offset := readMemArgOffset(code, &frame.IP)
		v := check(e.stack.Pop())
		addr := baseAddr(check(e.stack.Pop()), offset)
		must(e.storeBytes(addr, le64(v)))
	case opcode.F32Store:
		offset := readMemArgOffset(code, &frame.IP)
		v := check(e.stack.Pop())
		addr := baseAddr(check(e.stack.Pop()), offset)
		must(e.storeBytes(addr, le32(uint32(v))))
	case opcode.F64Store:
		offset := readMemArgOffset(code, &frame.IP)
		v := check(e.stack.Pop())
		addr := baseAddr(check(e.stack.Pop()), offset)
		must(e.storeBytes(addr, le64(v)))
	case opcode.I32Store8:
		offset := readMemArgOffset(code, &frame.IP)
		v := check(e.stack.Pop())
		addr := baseAddr(check(e.stack.Pop()), offset)
		must(e.storeBytes(addr, []byte{byte(v)}))
	case opcode.I32Store16:
		offset := readMemArgOffset(code, &frame.IP)
		v := check(e.stack.Pop())
		addr := baseAddr(check(e.stack.Pop()), offset)
		must(e.storeBytes(addr, le32(uint32(v))[:2]))
	case opcode.I64Store8:
		offset := readMemArgOffset(code, &frame.IP)
		v := check(e.stack.Pop())
		addr := baseAddr(check(e.stack.Pop()), offset)
		must(e.storeBytes(addr, []byte{byte(v)}))
	case opcode.I64Store16:
		offset := readMemArgOffset(code, &frame.IP)
		v := check(e.stack.Pop())
		addr := baseAddr(check(e.stack.Pop()), offset)
		must(e.storeBytes(addr, le64(v)[:2]))
	case opcode.I64Store32:
		offset := readMemArgOffset(code, &frame.IP)
		v := check(e.stack.Pop())
		addr := baseAddr(check(e.stack.Pop()), offset)
		must(e.storeBytes(addr, le64(v)[:4]))

	case opcode.MemorySize:
		push32(e.stack, check(e.store.MemorySize()))
	case opcode.MemoryGrow:
		delta := uint32(check(e.stack.Pop()))
		res, err := e.store.MemoryGrow(delta)
		must(err)
		push32(e.stack, uint32(res))

	case opcode.I32Const:
		push32(e.stack, uint32(readI32(code, &frame.IP)))
	case opcode.I64Const:
		push64(e.stack, uint64(readI64(code, &frame.IP)))
	case opcode.F32Const:
		push32(e.stack, readF32Bits(code, &frame.IP))
	case opcode.F64Const:
		push64(e.stack, readF64Bits(code, &frame.IP))

	default:
		e.execNumeric(op)
	}
}

func (e *execCtx) effAddr(code []byte, ip *int) uint64 {
	offset := readMemArgOffset(code, ip)
	return baseAddr(check(e.stack.Pop()), offset)
}

func baseAddr(addr uint64, offset uint32) uint64 { return uint64(uint32(addr)) + uint64(offset) }

func (e *execCtx) loadBytes(addr uint64, n uint32) ([]byte, error) {
	if addr > uint64(^uint32(0)) {
		return nil, ErrOutOfBoundMemoryAccess
	}
	return e.store.ReadMemory(uint32(addr), n)
}

func (e *execCtx) storeBytes(addr uint64, data []byte) error {
	if addr > uint64(^uint32(0)) {
		return ErrOutOfBoundMemoryAccess
	}
	return e.store.WriteMemory(uint32(addr), data)
}

func leU32(b []byte) uint32 {
	v := uint32(0)
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint32(b[i])
	}
	return v
}

func leU64(b []byte) uint64 {
	v := uint64(0)
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func le64(v uint64) []byte {
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[i] = byte(v >> (8 * uint(i)))
	}
	return out
}

func push32(s *Stack, v uint32) { must(s.Push(uint64(v))) }
func push64(s *Stack, v uint64) { must(s.Push(v)) }

func (s *Stack) pop2I32() (int32, int32) {
	b := int32(uint32(check(s.Pop())))
	a := int32(uint32(check(s.Pop())))
	return a, b
}

func (s *Stack) pop2U32() (uint32, uint32) {
	b := uint32(check(s.Pop()))
	a := uint32(check(s.Pop()))
	return a, b
}

func (s *Stack) pop2I64() (int64, int64) {
	b := int64(check(s.Pop()))
	a := int64(check(s.Pop()))
	return a, b
}

func (s *Stack) pop2U64() (uint64, uint64) {
	b := check(s.Pop())
	a := check(s.Pop())
	return a, b
}

func (s *Stack) pop2F32() (float32, float32) {
	b := math32.Float32frombits(uint32(check(s.Pop())))
	a := math32.Float32frombits(uint32(check(s.Pop())))
	return a, b
}

func (s *Stack) pop2F64() (float64, float64) {
	b := math.Float64frombits(check(s.Pop()))
	a := math.Float64frombits(check(s.Pop()))
	return a, b
}

func (s *Stack) popF32() float32 {
	return math32.Float32frombits(uint32(check(s.Pop())))
}

func (s *Stack) popF64() float64 {
	return math.Float64frombits(check(s.Pop()))
}

func f32min(a, b float32) float32 {
	if math32.IsNaN(a) || math32.IsNaN(b) {
		return math32.NaN()
	}
	if a == 0 && b == 0 {
		if math32.Signbit(a) {
			return a
		}
		return b
	}
	return math32.Min(a, b)
}

func f32max(a, b float32) float32 {
	if math32.IsNaN(a) || math32.IsNaN(b) {
		return math32.NaN()
	}
	if a == 0 && b == 0 {
		if math32.Signbit(a) {
			return b
		}
		return a
	}
	return math32.Max(a, b)
}

func f64min(a, b float64) float64 {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.NaN()
	}
	if a == 0 && b == 0 {
		if math.Signbit(a) {
			return a
		}
		return b
	}
	return math.Min(a, b)
}

func f64max(a, b float64) float64 {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.NaN()
	}
	if a == 0 && b == 0 {
		if math.Signbit(a) {
			return b
		}
		return a
	}
	return math.Max(a, b)
}

// execNumeric dispatches the comparison, arithmetic, and conversion
// opcodes (§4.8.1).
func (e *execCtx) execNumeric(op opcode.Opcode) {
	switch op {

	// i32 comparisons
	case opcode.I32Eqz:
		push32(e.stack, uint32(b2cell(uint32(check(e.stack.Pop())) == 0)))
	case opcode.I32Eq:
		a, b := e.stack.pop2U32()
		push32(e.stack, uint32(b2cell(a == b)))
	case opcode.I32Ne:
		a, b := e.stack.pop2U32()
		push32(e.stack, uint32(b2cell(a != b)))
	case opcode.I32LtS:
		a, b := e.stack.pop2I32()
		push32(e.stack, uint32(b2cell(a < b)))
	case opcode.I32LtU:
		a, b := e.stack.pop2U32()
		push32(e.stack, uint32(b2cell(a < b)))
	case opcode.I32GtS:
		a, b := e.stack.pop2I32()
		push32(e.stack, uint32(b2cell(a > b)))
	case opcode.I32GtU:
		a, b := e.stack.pop2U32()
		push32(e.stack, uint32(b2cell(a > b)))
	case opcode.I32LeS:
		a, b := e.stack.pop2I32()
		push32(e.stack, uint32(b2cell(a <= b)))
	case opcode.I32LeU:
		a, b := e.stack.pop2U32()
		push32(e.stack, uint32(b2cell(a <= b)))
	case opcode.I32GeS:
		a, b := e.stack.pop2I32()
		push32(e.stack, uint32(b2cell(a >= b)))
	case opcode.I32GeU:
		a, b := e.stack.pop2U32()
		push32(e.stack, uint32(b2cell(a >= b)))

	// i64 comparisons
	case opcode.I64Eqz:
		push32(e.stack, uint32(b2cell(check(e.stack.Pop()) == 0)))
	case opcode.I64Eq:
		a, b := e.stack.pop2U64()
		push32(e.stack, uint32(b2cell(a == b)))
	case opcode.I64Ne:
		a, b := e.stack.pop2U64()
		push32(e.stack, uint32(b2cell(a != b)))
	case opcode.I64LtS:
		a, b := e.stack.pop2I64()
		push32(e.stack, uint32(b2cell(a < b)))
	case opcode.I64LtU:
		a, b := e.stack.pop2U64()
		push32(e.stack, uint32(b2cell(a < b)))
	case opcode.I64GtS:
		a, b := e.stack.pop2I64()
		push32(e.stack, uint32(b2cell(a > b)))
	case opcode.I64GtU:
		a, b := e.stack.pop2U64()
		push32(e.stack, uint32(b2cell(a > b)))
	case opcode.I64LeS:
		a, b := e.stack.pop2I64()
		push32(e.stack, uint32(b2cell(a <= b)))
	case opcode.I64LeU:
		a, b := e.stack.pop2U64()
		push32(e.stack, uint32(b2cell(a <= b)))
	case opcode.I64GeS:
		a, b := e.stack.pop2I64()
		push32(e.stack, uint32(b2cell(a >= b)))
	case opcode.I64GeU:
		a, b := e.stack.pop2U64()
		push32(e.stack, uint32(b2cell(a >= b)))

	// f32/f64 comparisons
	case opcode.F32Eq:
		a, b := e.stack.pop2F32()
		push32(e.stack, uint32(b2cell(a == b)))
	case opcode.F32Ne:
		a, b := e.stack.pop2F32()
		push32(e.stack, uint32(b2cell(a != b)))
	case opcode.F32Lt:
		a, b := e.stack.pop2F32()
		push32(e.stack, uint32(b2cell(a < b)))
	case opcode.F32Gt:
		a, b := e.stack.pop2F32()
		push32(e.stack, uint32(b2cell(a > b)))
	case opcode.F32Le:
		a, b := e.stack.pop2F32()
		push32(e.stack, uint32(b2cell(a <= b)))
	case opcode.F32Ge:
		a, b := e.stack.pop2F32()
		push32(e.stack, uint32(b2cell(a >= b)))
	case opcode.F64Eq:
		a, b := e.stack.pop2F64()
		push32(e.stack, uint32(b2cell(a == b)))
	case opcode.F64Ne:
		a, b := e.stack.pop2F64()
		push32(e.stack, uint32(b2cell(a != b)))
	case opcode.F64Lt:
		a, b := e.stack.pop2F64()
		push32(e.stack, uint32(b2cell(a < b)))
	case opcode.F64Gt:
		a, b := e.stack.pop2F64()
		push32(e.stack, uint32(b2cell(a > b)))
	case opcode.F64Le:
		a, b := e.stack.pop2F64()
		push32(e.stack, uint32(b2cell(a <= b)))
	case opcode.F64Ge:
		a, b := e.stack.pop2F64()
		push32(e.stack, uint32(b2cell(a >= b)))

	// i32 arithmetic
	case opcode.I32Clz:
		push32(e.stack, uint32(bits.LeadingZeros32(uint32(check(e.stack.Pop())))))
	case opcode.I32Ctz:
		push32(e.stack, uint32(bits.TrailingZeros32(uint32(check(e.stack.Pop())))))
	case opcode.I32Popcnt:
		push32(e.stack, uint32(bits.OnesCount32(uint32(check(e.stack.Pop())))))
	case opcode.I32Add:
		a, b := e.stack.pop2U32()
		push32(e.stack, a+b)
	case opcode.I32Sub:
		a, b := e.stack.pop2U32()
		push32(e.stack, a-b)
	case opcode.I32Mul:
		a, b := e.stack.pop2U32()
		push32(e.stack, a*b)
	case opcode.I32DivS:
		a, b := e.stack.pop2I32()
		if b == 0 {
			panic(ErrIntegerDivisionByZero)
		}
		if a == math.MinInt32 && b == -1 {
			panic(ErrIntegerOverflow)
		}
		push32(e.stack, uint32(a/b))
	case opcode.I32DivU:
		a, b := e.stack.pop2U32()
		if b == 0 {
			panic(ErrIntegerDivisionByZero)
		}
		push32(e.stack, a/b)
	case opcode.I32RemS:
		a, b := e.stack.pop2I32()
		if b == 0 {
			panic(ErrIntegerDivisionByZero)
		}
		if a == math.MinInt32 && b == -1 {
			push32(e.stack, 0)
		} else {
			push32(e.stack, uint32(a%b))
		}
	case opcode.I32RemU:
		a, b := e.stack.pop2U32()
		if b == 0 {
			panic(ErrIntegerDivisionByZero)
		}
		push32(e.stack, a%b)
	case opcode.I32And:
		a, b := e.stack.pop2U32()
		push32(e.stack, a&b)
	case opcode.I32Or:
		a, b := e.stack.pop2U32()
		push32(e.stack, a|b)
	case opcode.I32Xor:
		a, b := e.stack.pop2U32()
		push32(e.stack, a^b)
	case opcode.I32Shl:
		a, b := e.stack.pop2U32()
		push32(e.stack, a<<(b&31))
	case opcode.I32ShrS:
		a, b := e.stack.pop2I32()
		push32(e.stack, uint32(a>>(uint32(b)&31)))
	case opcode.I32ShrU:
		a, b := e.stack.pop2U32()
		push32(e.stack, a>>(b&31))
	case opcode.I32Rotl:
		a, b := e.stack.pop2U32()
		push32(e.stack, bits.RotateLeft32(a, int(b)))
	case opcode.I32Rotr:
		a, b := e.stack.pop2U32()
		push32(e.stack, bits.RotateLeft32(a, -int(b)))

	// i64 arithmetic
	case opcode.I64Clz:
		push64(e.stack, uint64(bits.LeadingZeros64(check(e.stack.Pop()))))
	case opcode.I64Ctz:
		push64(e.stack, uint64(bits.TrailingZeros64(check(e.stack.Pop()))))
	case opcode.I64Popcnt:
		push64(e.stack, uint64(bits.OnesCount64(check(e.stack.Pop()))))
	case opcode.I64Add:
		a, b := e.stack.pop2U64()
		push64(e.stack, a+b)
	case opcode.I64Sub:
		a, b := e.stack.pop2U64()
		push64(e.stack, a-b)
	case opcode.I64Mul:
		a, b := e.stack.pop2U64()
		push64(e.stack, a*b)
	case opcode.I64DivS:
		a, b := e.stack.pop2I64()
		if b == 0 {
			panic(ErrIntegerDivisionByZero)
		}
		if a == math.MinInt64 && b == -1 {
			panic(ErrIntegerOverflow)
		}
		push64(e.stack, uint64(a/b))
	case opcode.I64DivU:
		a, b := e.stack.pop2U64()
		if b == 0 {
			panic(ErrIntegerDivisionByZero)
		}
		push64(e.stack, a/b)
	case opcode.I64RemS:
		a, b := e.stack.pop2I64()
		if b == 0 {
			panic(ErrIntegerDivisionByZero)
		}
		if a == math.MinInt64 && b == -1 {
			push64(e.stack, 0)
		} else {
			push64(e.stack, uint64(a%b))
		}
	case opcode.I64RemU:
		a, b := e.stack.pop2U64()
		if b == 0 {
			panic(ErrIntegerDivisionByZero)
		}
		push64(e.stack, a%b)
	case opcode.I64And:
		a, b := e.stack.pop2U64()
		push64(e.stack, a&b)
	case opcode.I64Or:
		a, b := e.stack.pop2U64()
		push64(e.stack, a|b)
	case opcode.I64Xor:
		a, b := e.stack.pop2U64()
		push64(e.stack, a^b)
	case opcode.I64Shl:
		a, b := e.stack.pop2U64()
		push64(e.stack, a<<(b&63))
	case opcode.I64ShrS:
		a, b := e.stack.pop2I64()
		push64(e.stack, uint64(a>>(uint64(b)&63)))
	case opcode.I64ShrU:
		a, b := e.stack.pop2U64()
		push64(e.stack, a>>(b&63))
	case opcode.I64Rotl:
		a, b := e.stack.pop2U64()
		push64(e.stack, bits.RotateLeft64(a, int(b)))
	case opcode.I64Rotr:
		a, b := e.stack.pop2U64()
		push64(e.stack, bits.RotateLeft64(a, -int(b)))

	// f32 arithmetic — chewxy/math32 keeps these single-precision without
	// a float64 round trip, except F32Nearest, which rounds through
	// math.RoundToEven on a float64.
	case opcode.F32Abs:
		push32(e.stack, math32.Float32bits(math32.Abs(e.stack.popF32())))
	case opcode.F32Neg:
		push32(e.stack, math32.Float32bits(-e.stack.popF32()))
	case opcode.F32Ceil:
		push32(e.stack, math32.Float32bits(math32.Ceil(e.stack.popF32())))
	case opcode.F32Floor:
		push32(e.stack, math32.Float32bits(math32.Floor(e.stack.popF32())))
	case opcode.F32Trunc:
		push32(e.stack, math32.Float32bits(math32.Trunc(e.stack.popF32())))
	case opcode.F32Nearest:
		push32(e.stack, math32.Float32bits(float32(math.RoundToEven(float64(e.stack.popF32())))))
	case opcode.F32Sqrt:
		push32(e.stack, math32.Float32bits(math32.Sqrt(e.stack.popF32())))
	case opcode.F32Add:
		a, b := e.stack.pop2F32()
		push32(e.stack, math32.Float32bits(a+b))
	case opcode.F32Sub:
		a, b := e.stack.pop2F32()
		push32(e.stack, math32.Float32bits(a-b))
	case opcode.F32Mul:
		a, b := e.stack.pop2F32()
		push32(e.stack, math32.Float32bits(a*b))
	case opcode.F32Div:
		a, b := e.stack.pop2F32()
		push32(e.stack, math32.Float32bits(a/b))
	case opcode.F32Min:
		a, b := e.stack.pop2F32()
		push32(e.stack, math32.Float32bits(f32min(a, b)))
	case opcode.F32Max:
		a, b := e.stack.pop2F32()
		push32(e.stack, math32.Float32bits(f32max(a, b)))
	case opcode.F32Copysign:
		a, b := e.stack.pop2F32()
		push32(e.stack, math32.Float32bits(math32.Copysign(a, b)))

	// f64 arithmetic — stdlib math is the natural fit for float64.
	case opcode.F64Abs:
		push64(e.stack, math.Float64bits(math.Abs(e.stack.popF64())))
	case opcode.F64Neg:
		push64(e.stack, math.Float64bits(-e.stack.popF64()))
	case opcode.F64Ceil:
		push64(e.stack, math.Float64bits(math.Ceil(e.stack.popF64())))
	case opcode.F64Floor:
		push64(e.stack, math.Float64bits(math.Floor(e.stack.popF64())))
	case opcode.F64Trunc:
		push64(e.stack, math.Float64bits(math.Trunc(e.stack.popF64())))
	case opcode.F64Nearest:
		push64(e.stack, math.Float64bits(math.RoundToEven(e.stack.popF64())))
	case opcode.F64Sqrt:
		push64(e.stack, math.Float64bits(math.Sqrt(e.stack.popF64())))
	case opcode.F64Add:
		a, b := e.stack.pop2F64()
		push64(e.stack, math.Float64bits(a+b))
	case opcode.F64Sub:
		a, b := e.stack.pop2F64()
		push64(e.stack, math.Float64bits(a-b))
	case opcode.F64Mul:
		a, b := e.stack.pop2F64()
		push64(e.stack, math.Float64bits(a*b))
	case opcode.F64Div:
		a, b := e.stack.pop2F64()
		push64(e.stack, math.Float64bits(a/b))
	case opcode.F64Min:
		a, b := e.stack.pop2F64()
		push64(e.stack, math.Float64bits(f64min(a, b)))
	case opcode.F64Max:
		a, b := e.stack.pop2F64()
		push64(e.stack, math.Float64bits(f64max(a, b)))
	case opcode.F64Copysign:
		a, b := e.stack.pop2F64()
		push64(e.stack, math.Float64bits(math.Copysign(a, b)))

	// conversions
	case opcode.I32WrapI64:
		push32(e.stack, uint32(check(e.stack.Pop())))
	case opcode.I32TruncF32S:
		push32(e.stack, uint32(trunc(number.TruncF32(uint32(check(e.stack.Pop())), number.I32))))
	case opcode.I32TruncF32U:
		push32(e.stack, uint32(trunc(number.TruncF32(uint32(check(e.stack.Pop())), number.U32))))
	case opcode.I32TruncF64S:
		push32(e.stack, uint32(trunc(number.TruncF64(check(e.stack.Pop()), number.I32))))
	case opcode.I32TruncF64U:
		push32(e.stack, uint32(trunc(number.TruncF64(check(e.stack.Pop()), number.U32))))
	case opcode.I64ExtendI32S:
		push64(e.stack, uint64(int64(int32(uint32(check(e.stack.Pop()))))))
	case opcode.I64ExtendI32U:
		push64(e.stack, uint64(uint32(check(e.stack.Pop()))))
	case opcode.I64TruncF32S:
		push64(e.stack, trunc(number.TruncF32(uint32(check(e.stack.Pop())), number.I64)))
	case opcode.I64TruncF32U:
		push64(e.stack, trunc(number.TruncF32(uint32(check(e.stack.Pop())), number.U64)))
	case opcode.I64TruncF64S:
		push64(e.stack, trunc(number.TruncF64(check(e.stack.Pop()), number.I64)))
	case opcode.I64TruncF64U:
		push64(e.stack, trunc(number.TruncF64(check(e.stack.Pop()), number.U64)))
	case opcode.F32ConvertI32S:
		push32(e.stack, math32.Float32bits(float32(int32(uint32(check(e.stack.Pop()))))))
	case opcode.F32ConvertI32U:
		push32(e.stack, math32.Float32bits(float32(uint32(check(e.stack.Pop())))))
	case opcode.F32ConvertI64S:
		push32(e.stack, math32.Float32bits(float32(int64(check(e.stack.Pop())))))
	case opcode.F32ConvertI64U:
		push32(e.stack, math32.Float32bits(float32(check(e.stack.Pop()))))
	case opcode.F32DemoteF64:
		push32(e.stack, math32.Float32bits(float32(e.stack.popF64())))
	case opcode.F64ConvertI32S:
		push64(e.stack, math.Float64bits(float64(int32(uint32(check(e.stack.Pop()))))))
	case opcode.F64ConvertI32U:
		push64(e.stack, math.Float64bits(float64(uint32(check(e.stack.Pop())))))
	case opcode.F64ConvertI64S:
		push64(e.stack, math.Float64bits(float64(int64(check(e.stack.Pop())))))
	case opcode.F64ConvertI64U:
		push64(e.stack, math.Float64bits(float64(check(e.stack.Pop()))))
	case opcode.F64PromoteF32:
		push64(e.stack, math.Float64bits(float64(e.stack.popF32())))
	case opcode.I32ReinterpretF32:
		push32(e.stack, uint32(check(e.stack.Pop())))
	case opcode.I64ReinterpretF64:
		push64(e.stack, check(e.stack.Pop()))
	case opcode.F32ReinterpretI32:
		push32(e.stack, uint32(check(e.stack.Pop())))
	case opcode.F64ReinterpretI64:
		push64(e.stack, check(e.stack.Pop()))

	default:
		panic(ErrUnknownOpcode)
	}
}

// trunc converts a number.TruncF32/TruncF64 result into a panic on trap,
// or the plain value on success.
func trunc(v uint64, trap number.TrapCode) uint64 {
	switch trap {
	case number.NanTrap:
		panic(ErrInvalidIntConversion)
	case number.ConvertTrap:
		panic(ErrIntegerOverflow)
	default:
		return v
	}
}
