package vm

import (
	"github.com/MinkowskiMetric/wasm-interp/leb128"
	"github.com/MinkowskiMetric/wasm-interp/opcode"
)

// blockEnds caches the instruction-stream offsets a Block/Loop/If needs to
// jump to: the byte right after its matching End, and (for If) the byte
// right after its Else separator, or -1 if it has none. Each block is
// scanned the first time it is entered and the result cached in its
// function's block table for every subsequent execution (§4.2, §9's
// block-table optimization).
type blockEnds struct {
	EndIP  int
	ElseIP int
}

// blockEndsFor returns the cached blockEnds for the Block/Loop/If opcode
// sitting at ip (the index of the opcode byte itself), scanning the
// function's code on first use.
func (f *FuncInstance) blockEndsFor(ip int) (blockEnds, error) {
	f.blockTableOnce.Do(func() {
		f.blockTable = make(map[int]blockEnds)
	})
	if be, ok := f.blockTable[ip]; ok {
		return be, nil
	}
	// ip -> opcode byte, ip+1 -> blocktype byte, body starts at ip+2.
	be, err := scanBlock(f.Code, ip+2)
	if err != nil {
		return blockEnds{}, err
	}
	f.blockTable[ip] = be
	return be, nil
}

// scanBlock walks forward from start (the first byte of a block body)
// until it finds the End matching the block that opened it, recording the
// Else offset along the way if one appears at the same nesting depth.
func scanBlock(code []byte, start int) (blockEnds, error) {
	ip := start
	depth := 0
	elseIP := -1
	for {
		if ip >= len(code) {
			return blockEnds{}, ErrUnknownOpcode
		}
		op := opcode.Opcode(code[ip])
		ip++
		switch {
		case op == opcode.Block || op == opcode.Loop || op == opcode.If:
			depth++
			ip++ // blocktype byte
		case op == opcode.Else:
			if depth == 0 {
				elseIP = ip
			}
		case op == opcode.End:
			if depth == 0 {
				return blockEnds{EndIP: ip, ElseIP: elseIP}, nil
			}
			depth--
		default:
			n, err := instrOperandLen(op, code[ip:])
			if err != nil {
				return blockEnds{}, err
			}
			ip += n
		}
	}
}

// instrOperandLen returns the number of bytes op's operands occupy,
// starting at rest (the byte immediately following the opcode byte).
func instrOperandLen(op opcode.Opcode, rest []byte) (int, error) {
	r := leb128.NewReader(rest)
	switch opcode.ShapeOf(op) {
	case opcode.ShapeNone:
		return 0, nil
	case opcode.ShapeLEB:
		if _, err := r.U64(); err != nil {
			return 0, err
		}
		return r.Pos(), nil
	case opcode.ShapeMemArg:
		if _, err := r.U32(); err != nil {
			return 0, err
		}
		if _, err := r.U32(); err != nil {
			return 0, err
		}
		return r.Pos(), nil
	case opcode.ShapeF32:
		return 4, nil
	case opcode.ShapeF64:
		return 8, nil
	case opcode.ShapeBrTable:
		n, err := r.U32()
		if err != nil {
			return 0, err
		}
		for i := uint32(0); i <= n; i++ {
			if _, err := r.U32(); err != nil {
				return 0, err
			}
		}
		return r.Pos(), nil
	default:
		return 0, ErrUnknownOpcode
	}
}
