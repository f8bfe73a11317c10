package vm

import (
	"fmt"

	"github.com/MinkowskiMetric/wasm-interp/leb128"
	"github.com/MinkowskiMetric/wasm-interp/opcode"
	"github.com/MinkowskiMetric/wasm-interp/wasm"
)

// checkLimits enforces that a resolved table/memory is at least as large as
// an import's declared minimum and, if the import declares a maximum, that
// the resolved entity both has one and stays within it (§4.9).
func checkLimits(declared wasm.Limits, resolvedMin uint32, resolvedHasMax bool, resolvedMax uint32) error {
	if resolvedMin < declared.Min {
		return fmt.Errorf("resolved min %d is smaller than declared min %d", resolvedMin, declared.Min)
	}
	if declared.HasMax {
		if !resolvedHasMax {
			return fmt.Errorf("declared max %d but resolved entity has none", declared.Max)
		}
		if resolvedMax > declared.Max {
			return fmt.Errorf("resolved max %d exceeds declared max %d", resolvedMax, declared.Max)
		}
	}
	return nil
}

// resolveImports walks the import section in order, asking resolver for
// each entry and appending the result to the matching index space. Import
// declaration order fixes the low end of every index space (§3).
func (m *Module) resolveImports(raw *wasm.RawModule, resolver Resolver) error {
	memCount, tableCount := 0, 0
	for _, imp := range raw.Imports {
		switch imp.Desc.Kind {
		case wasm.ExternalFunction:
			sig := raw.Types[imp.Desc.TypeIdx]
			host, err := resolver.ResolveFunction(imp.Module, imp.Field, sig)
			if err != nil {
				return err
			}
			m.funcs = append(m.funcs, &FuncInstance{Type: sig, Host: host, Name: imp.Field})
		case wasm.ExternalTable:
			tableCount++
			if tableCount > 1 {
				return ErrMoreThanOneTable
			}
			t, err := resolver.ResolveTable(imp.Module, imp.Field, *imp.Desc.Table)
			if err != nil {
				return err
			}
			if err := checkLimits(imp.Desc.Table.Limits, t.Size(), t.HasMax(), t.Max()); err != nil {
				return &LinkError{Module: imp.Module, Field: imp.Field, Reason: err.Error()}
			}
			m.table = t
		case wasm.ExternalMemory:
			memCount++
			if memCount > 1 {
				return ErrMoreThanOneMemory
			}
			mem, err := resolver.ResolveMemory(imp.Module, imp.Field, *imp.Desc.Mem)
			if err != nil {
				return err
			}
			if err := checkLimits(imp.Desc.Mem.Limits, mem.Size(), mem.HasMax(), mem.Max()); err != nil {
				return &LinkError{Module: imp.Module, Field: imp.Field, Reason: err.Error()}
			}
			m.mem = mem
		case wasm.ExternalGlobal:
			v, err := resolver.ResolveGlobal(imp.Module, imp.Field, *imp.Desc.GlobalType)
			if err != nil {
				return err
			}
			m.globals = append(m.globals, NewGlobal(*imp.Desc.GlobalType, v))
		}
	}
	return nil
}

// appendLocalDefinitions appends this module's own function/table/memory
// definitions after whatever imports resolveImports placed (§3, §4.9).
func (m *Module) appendLocalDefinitions(raw *wasm.RawModule) error {
	for i, typeIdx := range raw.TypeIdx {
		body := raw.Funcs[i]
		m.funcs = append(m.funcs, &FuncInstance{
			Type:              raw.Types[typeIdx],
			Code:              body.Code,
			LocalTypes:        flattenLocals(body.Locals),
			NumDeclaredLocals: countLocals(body.Locals),
		})
	}

	if len(raw.Tables) > 0 {
		if m.table != nil || len(raw.Tables) > 1 {
			return ErrMoreThanOneTable
		}
		m.table = NewTable(raw.Tables[0])
	}

	if len(raw.Mems) > 0 {
		if m.mem != nil || len(raw.Mems) > 1 {
			return ErrMoreThanOneMemory
		}
		m.mem = NewMemory(raw.Mems[0])
	}

	return nil
}

func countLocals(locals []wasm.LocalEntry) int {
	n := 0
	for _, l := range locals {
		n += int(l.Count)
	}
	return n
}

// evalGlobals evaluates each locally-defined global's constant-expression
// initializer and appends it after any imported globals. An initializer
// may reference only globals already placed in the index space — in
// practice, imported ones (§4.7).
func (m *Module) evalGlobals(raw *wasm.RawModule) error {
	for _, g := range raw.Globals {
		v, err := m.evalConstExpr(g.Init)
		if err != nil {
			return err
		}
		m.globals = append(m.globals, NewGlobal(g.Type, v))
	}
	return nil
}

// installElements evaluates each element segment's offset expression and
// installs its function indices into the module's table.
func (m *Module) installElements(raw *wasm.RawModule) error {
	for _, e := range raw.Elements {
		offset, err := m.evalConstExpr(e.Offset)
		if err != nil {
			return err
		}
		if m.table == nil {
			return ErrOutOfBoundTableAccess
		}
		for i, fn := range e.Funcs {
			if err := m.table.Set(uint32(offset)+uint32(i), int64(fn)); err != nil {
				return err
			}
		}
	}
	return nil
}

// installData evaluates each data segment's offset expression and copies
// its bytes into the module's memory.
func (m *Module) installData(raw *wasm.RawModule) error {
	for _, d := range raw.Data {
		offset, err := m.evalConstExpr(d.Offset)
		if err != nil {
			return err
		}
		if m.mem == nil {
			return ErrOutOfBoundMemoryAccess
		}
		if err := m.mem.Write(uint32(offset), d.Init); err != nil {
			return err
		}
	}
	return nil
}

// evalConstExpr evaluates a constant expression (§4.8.6's const-expr
// mode): a single i32.const/i64.const/f32.const/f64.const or
// global.get, followed by the terminating end.
func (m *Module) evalConstExpr(code []byte) (uint64, error) {
	if len(code) == 0 {
		return 0, ErrUnknownOpcode
	}
	r := leb128.NewReader(code[1:])
	op := opcode.Opcode(code[0])
	switch op {
	case opcode.I32Const:
		v, err := r.I32()
		return uint64(uint32(v)), err
	case opcode.I64Const:
		v, err := r.I64()
		return uint64(v), err
	case opcode.F32Const:
		v, err := r.F32()
		return uint64(v), err
	case opcode.F64Const:
		return r.F64()
	case opcode.GlobalGet:
		idx, err := r.U32()
		if err != nil {
			return 0, err
		}
		return m.GetGlobal(idx)
	default:
		return 0, ErrUnknownOpcode
	}
}
