package wasm

import (
	"github.com/MinkowskiMetric/wasm-interp/leb128"
)

// Magic is the 4-byte Wasm module magic number, "\0asm".
const Magic uint32 = 0x6d736100

// Version is the only Wasm binary format version this core understands.
const Version uint32 = 0x1

// Decode parses a complete Wasm binary module: the 8-byte envelope followed
// by the section stream (§4.3). Custom sections are read and discarded.
func Decode(b []byte) (*RawModule, error) {
	r := leb128.NewReader(b)

	magic, err := readU32(r)
	if err != nil {
		return nil, decodeErr(noSection, r.Pos(), "truncated header: %v", err)
	}
	if magic != Magic {
		return nil, decodeErr(noSection, 0, "bad magic number %#x", magic)
	}
	version, err := readU32(r)
	if err != nil {
		return nil, decodeErr(noSection, r.Pos(), "truncated header: %v", err)
	}
	if version != Version {
		return nil, decodeErr(noSection, 4, "unsupported version %d", version)
	}

	m := &RawModule{}
	lastNonCustom := byte(0)
	seen := make(map[byte]bool)

	for r.Len() > 0 {
		id, err := r.Byte()
		if err != nil {
			return nil, decodeErr(noSection, r.Pos(), "truncated section header: %v", err)
		}
		size, err := r.U32()
		if err != nil {
			return nil, decodeErr(id, r.Pos(), "truncated section length: %v", err)
		}
		sec, err := r.Scoped(size)
		if err != nil {
			return nil, decodeErr(id, r.Pos(), "section length exceeds input: %v", err)
		}

		if id == SecCustom {
			// Custom sections may repeat or interleave anywhere; skip the
			// payload without inspecting it.
			continue
		}
		if id > SecData {
			return nil, decodeErr(id, 0, "unknown section id %d", id)
		}
		if seen[id] {
			return nil, decodeErr(id, 0, "section %d appears more than once", id)
		}
		if id <= lastNonCustom {
			return nil, decodeErr(id, 0, "sections out of order")
		}
		seen[id] = true
		lastNonCustom = id

		if err := decodeSection(m, id, sec); err != nil {
			return nil, err
		}
		if !sec.AtEnd() {
			return nil, decodeErr(id, sec.Pos(), "trailing bytes in section")
		}
	}

	if len(m.TypeIdx) != len(m.Funcs) {
		return nil, decodeErr(SecFunction, 0, "function section count (%d) does not match code section count (%d)", len(m.TypeIdx), len(m.Funcs))
	}

	return m, nil
}

func decodeSection(m *RawModule, id byte, r *leb128.Reader) error {
	var err error
	switch id {
	case SecType:
		m.Types, err = decodeTypeSec(r)
	case SecImport:
		m.Imports, err = decodeImportSec(r)
	case SecFunction:
		m.TypeIdx, err = decodeFunctionSec(r)
	case SecTable:
		m.Tables, err = decodeTableSec(r)
	case SecMemory:
		m.Mems, err = decodeMemorySec(r)
	case SecGlobal:
		m.Globals, err = decodeGlobalSec(r)
	case SecExport:
		m.Exports, err = decodeExportSec(r)
	case SecStart:
		m.Start, err = r.U32()
		m.HasStart = true
	case SecElement:
		m.Elements, err = decodeElementSec(r)
	case SecCode:
		m.Funcs, err = decodeCodeSec(r)
	case SecData:
		m.Data, err = decodeDataSec(r)
	}
	if err != nil {
		return decodeErr(id, r.Pos(), "%v", err)
	}
	return nil
}

func readU32(r *leb128.Reader) (uint32, error) {
	b, err := r.Bytes(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

func decodeValueType(r *leb128.Reader) (ValueType, error) {
	b, err := r.Byte()
	if err != nil {
		return 0, err
	}
	switch b {
	case 0x7F, 0x7E, 0x7D, 0x7C:
		return ValueType(b), nil
	default:
		return 0, decodeErr(SecType, r.Pos()-1, "invalid value type byte %#x", b)
	}
}

func decodeLimits(r *leb128.Reader) (Limits, error) {
	flag, err := r.Byte()
	if err != nil {
		return Limits{}, err
	}
	var l Limits
	l.Min, err = r.U32()
	if err != nil {
		return Limits{}, err
	}
	switch flag {
	case 0x00:
	case 0x01:
		l.HasMax = true
		l.Max, err = r.U32()
		if err != nil {
			return Limits{}, err
		}
	default:
		return Limits{}, decodeErr(0, r.Pos()-1, "invalid limits flag %#x", flag)
	}
	return l, nil
}

func decodeTableType(r *leb128.Reader) (TableType, error) {
	elemType, err := r.Byte()
	if err != nil {
		return TableType{}, err
	}
	if elemType != ElemTypeFuncRef {
		return TableType{}, decodeErr(SecTable, r.Pos()-1, "invalid table element type %#x", elemType)
	}
	limits, err := decodeLimits(r)
	if err != nil {
		return TableType{}, err
	}
	return TableType{ElemType: elemType, Limits: limits}, nil
}

func decodeGlobalType(r *leb128.Reader) (GlobalType, error) {
	vt, err := decodeValueType(r)
	if err != nil {
		return GlobalType{}, err
	}
	mb, err := r.Byte()
	if err != nil {
		return GlobalType{}, err
	}
	if mb != 0x00 && mb != 0x01 {
		return GlobalType{}, decodeErr(SecGlobal, r.Pos()-1, "invalid mutability flag %#x", mb)
	}
	return GlobalType{ValueType: vt, Mut: Mut(mb)}, nil
}

func decodeTypeSec(r *leb128.Reader) ([]FuncType, error) {
	return leb128.ReadVec(r, func(r *leb128.Reader) (FuncType, error) {
		form, err := r.Byte()
		if err != nil {
			return FuncType{}, err
		}
		if form != FuncTypeForm {
			return FuncType{}, decodeErr(SecType, r.Pos()-1, "invalid functype form byte %#x", form)
		}
		params, err := leb128.ReadVec(r, decodeValueType)
		if err != nil {
			return FuncType{}, err
		}
		results, err := leb128.ReadVec(r, decodeValueType)
		if err != nil {
			return FuncType{}, err
		}
		return FuncType{Params: params, Results: results}, nil
	})
}

func decodeImportSec(r *leb128.Reader) ([]Import, error) {
	return leb128.ReadVec(r, func(r *leb128.Reader) (Import, error) {
		var imp Import
		var err error
		imp.Module, err = r.Name()
		if err != nil {
			return imp, err
		}
		imp.Field, err = r.Name()
		if err != nil {
			return imp, err
		}
		kind, err := r.Byte()
		if err != nil {
			return imp, err
		}
		imp.Desc.Kind = kind
		switch kind {
		case ExternalFunction:
			imp.Desc.TypeIdx, err = r.U32()
		case ExternalTable:
			var tt TableType
			tt, err = decodeTableType(r)
			imp.Desc.Table = &tt
		case ExternalMemory:
			var limits Limits
			limits, err = decodeLimits(r)
			imp.Desc.Mem = &MemType{Limits: limits}
		case ExternalGlobal:
			var gt GlobalType
			gt, err = decodeGlobalType(r)
			imp.Desc.GlobalType = &gt
		default:
			return imp, decodeErr(SecImport, r.Pos()-1, "invalid import kind %#x", kind)
		}
		return imp, err
	})
}

func decodeFunctionSec(r *leb128.Reader) ([]uint32, error) {
	return leb128.ReadVec(r, func(r *leb128.Reader) (uint32, error) { return r.U32() })
}

func decodeTableSec(r *leb128.Reader) ([]TableType, error) {
	return leb128.ReadVec(r, decodeTableType)
}

func decodeMemorySec(r *leb128.Reader) ([]MemType, error) {
	return leb128.ReadVec(r, func(r *leb128.Reader) (MemType, error) {
		l, err := decodeLimits(r)
		return MemType{Limits: l}, err
	})
}

func decodeGlobalSec(r *leb128.Reader) ([]Global, error) {
	return leb128.ReadVec(r, func(r *leb128.Reader) (Global, error) {
		gt, err := decodeGlobalType(r)
		if err != nil {
			return Global{}, err
		}
		init, err := decodeExpr(r)
		if err != nil {
			return Global{}, err
		}
		return Global{Type: gt, Init: init}, nil
	})
}

func decodeExportSec(r *leb128.Reader) ([]Export, error) {
	names := make(map[string]bool)
	return leb128.ReadVec(r, func(r *leb128.Reader) (Export, error) {
		var e Export
		var err error
		e.Name, err = r.Name()
		if err != nil {
			return e, err
		}
		if names[e.Name] {
			return e, decodeErr(SecExport, r.Pos(), "duplicate export name %q", e.Name)
		}
		names[e.Name] = true
		kind, err := r.Byte()
		if err != nil {
			return e, err
		}
		if kind > ExternalGlobal {
			return e, decodeErr(SecExport, r.Pos()-1, "invalid export kind %#x", kind)
		}
		e.Desc.Kind = kind
		e.Desc.Idx, err = r.U32()
		return e, err
	})
}

func decodeElementSec(r *leb128.Reader) ([]Element, error) {
	return leb128.ReadVec(r, func(r *leb128.Reader) (Element, error) {
		var e Element
		var err error
		e.TableIdx, err = r.U32()
		if err != nil {
			return e, err
		}
		e.Offset, err = decodeExpr(r)
		if err != nil {
			return e, err
		}
		e.Funcs, err = leb128.ReadVec(r, func(r *leb128.Reader) (uint32, error) { return r.U32() })
		return e, err
	})
}

func decodeCodeSec(r *leb128.Reader) ([]Func, error) {
	return leb128.ReadVec(r, func(r *leb128.Reader) (Func, error) {
		size, err := r.U32()
		if err != nil {
			return Func{}, err
		}
		body, err := r.Scoped(size)
		if err != nil {
			return Func{}, err
		}
		locals, err := leb128.ReadVec(body, func(r *leb128.Reader) (LocalEntry, error) {
			count, err := r.U32()
			if err != nil {
				return LocalEntry{}, err
			}
			vt, err := decodeValueType(r)
			return LocalEntry{Count: count, ValueType: vt}, err
		})
		if err != nil {
			return Func{}, err
		}
		code := body.Remaining()
		if len(code) == 0 || code[len(code)-1] != 0x0B {
			return Func{}, decodeErr(SecCode, body.Pos(), "function body missing terminating end")
		}
		return Func{Locals: locals, Code: code}, nil
	})
}

func decodeDataSec(r *leb128.Reader) ([]Data, error) {
	return leb128.ReadVec(r, func(r *leb128.Reader) (Data, error) {
		var d Data
		var err error
		d.MemIdx, err = r.U32()
		if err != nil {
			return d, err
		}
		d.Offset, err = decodeExpr(r)
		if err != nil {
			return d, err
		}
		n, err := r.U32()
		if err != nil {
			return d, err
		}
		d.Init, err = r.Bytes(n)
		return d, err
	})
}

// decodeExpr reads raw instruction bytes up to and including the
// terminating End opcode (0x0B) without evaluating them — an Expr is
// opaque to the decoder (§3); the scanner walks it at execution time. It
// skips the immediates of the constant-expression opcodes (the four
// *.const forms and global.get) and counts block/loop/if nesting; the
// immediates of other opcodes are not decoded.
func decodeExpr(r *leb128.Reader) ([]byte, error) {
	start := r.Pos()
	depth := 0
	for {
		b, err := r.Byte()
		if err != nil {
			return nil, err
		}
		switch b {
		case 0x02, 0x03, 0x04: // block, loop, if
			depth++
		case 0x0B: // end
			if depth == 0 {
				full := r.SliceFrom(start)
				return full, nil
			}
			depth--
		case 0x41, 0x42: // i32.const, i64.const
			_, err = r.I64()
		case 0x43: // f32.const
			_, err = r.Bytes(4)
		case 0x44: // f64.const
			_, err = r.Bytes(8)
		case 0x23: // global.get
			_, err = r.U32()
		}
		if err != nil {
			return nil, err
		}
	}
}
