package vm

import (
	"testing"

	"github.com/MinkowskiMetric/wasm-interp/opcode"
	"github.com/MinkowskiMetric/wasm-interp/wasm"
)

func i32i32() wasm.FuncType {
	return wasm.FuncType{Params: []wasm.ValueType{wasm.I32}, Results: []wasm.ValueType{wasm.I32}}
}

func TestFibonacciRecursion(t *testing.T) {
	// fib(n) = n < 2 ? n : fib(n-1) + fib(n-2), self-recursive call to
	// function index 0.
	code := (&asm{}).
		op(opcode.LocalGet).u(0).
		op(opcode.I32Const).s(2).
		op(opcode.I32LtS).
		op(opcode.If).raw(byte(wasm.I32)).
		op(opcode.LocalGet).u(0).
		op(opcode.Else).
		op(opcode.LocalGet).u(0).
		op(opcode.I32Const).s(1).
		op(opcode.I32Sub).
		op(opcode.Call).u(0).
		op(opcode.LocalGet).u(0).
		op(opcode.I32Const).s(2).
		op(opcode.I32Sub).
		op(opcode.Call).u(0).
		op(opcode.I32Add).
		op(opcode.End).
		op(opcode.End).
		bytes()

	raw := &wasm.RawModule{
		Types:   []wasm.FuncType{i32i32()},
		TypeIdx: []uint32{0},
		Funcs:   []wasm.Func{{Code: code}},
		Exports: []wasm.Export{{Name: "fib", Desc: wasm.ExportDesc{Kind: wasm.ExternalFunction, Idx: 0}}},
	}

	m, err := Instantiate(raw, NopResolver{})
	if err != nil {
		t.Fatal(err)
	}
	results, err := m.InvokeName("fib", 10)
	if err != nil {
		t.Fatal(err)
	}
	if results[0] != 55 {
		t.Fatalf("fib(10): expect 55, got %d", results[0])
	}
}

func TestCountdownLoop(t *testing.T) {
	// countdown(n): loop decrementing local 0 until it reaches zero,
	// using br_if to exit the enclosing block and br to continue the loop.
	code := (&asm{}).
		op(opcode.Block).raw(wasm.BlockTypeEmpty).
		op(opcode.Loop).raw(wasm.BlockTypeEmpty).
		op(opcode.LocalGet).u(0).
		op(opcode.I32Eqz).
		op(opcode.BrIf).u(1).
		op(opcode.LocalGet).u(0).
		op(opcode.I32Const).s(1).
		op(opcode.I32Sub).
		op(opcode.LocalSet).u(0).
		op(opcode.Br).u(0).
		op(opcode.End).
		op(opcode.End).
		op(opcode.LocalGet).u(0).
		op(opcode.End).
		bytes()

	raw := &wasm.RawModule{
		Types:   []wasm.FuncType{i32i32()},
		TypeIdx: []uint32{0},
		Funcs:   []wasm.Func{{Code: code}},
		Exports: []wasm.Export{{Name: "countdown", Desc: wasm.ExportDesc{Kind: wasm.ExternalFunction, Idx: 0}}},
	}

	m, err := Instantiate(raw, NopResolver{})
	if err != nil {
		t.Fatal(err)
	}
	results, err := m.InvokeName("countdown", 5)
	if err != nil {
		t.Fatal(err)
	}
	if results[0] != 0 {
		t.Fatalf("countdown(5): expect 0, got %d", results[0])
	}
}

func TestBrTableDispatch(t *testing.T) {
	// pick(selector): three nested empty blocks around a br_table, each
	// case pushing a distinct constant and returning it.
	code := (&asm{}).
		op(opcode.Block).raw(wasm.BlockTypeEmpty). // depth2 (default)
		op(opcode.Block).raw(wasm.BlockTypeEmpty). // depth1
		op(opcode.Block).raw(wasm.BlockTypeEmpty). // depth0
		op(opcode.LocalGet).u(0).
		op(opcode.BrTable).u(2).u(0).u(1).u(2).
		op(opcode.End).
		op(opcode.I32Const).s(10).
		op(opcode.Return).
		op(opcode.End).
		op(opcode.I32Const).s(20).
		op(opcode.Return).
		op(opcode.End).
		op(opcode.I32Const).s(30).
		op(opcode.Return).
		op(opcode.End).
		bytes()

	raw := &wasm.RawModule{
		Types:   []wasm.FuncType{i32i32()},
		TypeIdx: []uint32{0},
		Funcs:   []wasm.Func{{Code: code}},
		Exports: []wasm.Export{{Name: "pick", Desc: wasm.ExportDesc{Kind: wasm.ExternalFunction, Idx: 0}}},
	}

	m, err := Instantiate(raw, NopResolver{})
	if err != nil {
		t.Fatal(err)
	}
	for selector, want := range map[uint64]uint64{0: 10, 1: 20, 2: 30, 99: 30} {
		results, err := m.InvokeName("pick", selector)
		if err != nil {
			t.Fatalf("selector %d: %v", selector, err)
		}
		if results[0] != want {
			t.Errorf("selector %d: expect %d, got %d", selector, want, results[0])
		}
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	// store a single 0xFF byte then reload it with i32.load8_s and
	// i32.load8_u to check sign versus zero extension.
	store := (&asm{}).
		op(opcode.I32Const).s(0). // addr
		op(opcode.I32Const).s(-1).
		op(opcode.I32Store8).raw(0).raw(0).
		op(opcode.End).
		bytes()
	loadS := (&asm{}).
		op(opcode.I32Const).s(0).
		op(opcode.I32Load8S).raw(0).raw(0).
		op(opcode.End).
		bytes()
	loadU := (&asm{}).
		op(opcode.I32Const).s(0).
		op(opcode.I32Load8U).raw(0).raw(0).
		op(opcode.End).
		bytes()

	voidType := wasm.FuncType{}
	noArgsI32 := wasm.FuncType{Results: []wasm.ValueType{wasm.I32}}
	raw := &wasm.RawModule{
		Types:   []wasm.FuncType{voidType, noArgsI32},
		TypeIdx: []uint32{0, 1, 1},
		Funcs:   []wasm.Func{{Code: store}, {Code: loadS}, {Code: loadU}},
		Mems:    []wasm.MemType{{Limits: wasm.Limits{Min: 1}}},
		Exports: []wasm.Export{
			{Name: "store", Desc: wasm.ExportDesc{Kind: wasm.ExternalFunction, Idx: 0}},
			{Name: "loadS", Desc: wasm.ExportDesc{Kind: wasm.ExternalFunction, Idx: 1}},
			{Name: "loadU", Desc: wasm.ExportDesc{Kind: wasm.ExternalFunction, Idx: 2}},
		},
	}

	m, err := Instantiate(raw, NopResolver{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.InvokeName("store"); err != nil {
		t.Fatal(err)
	}
	s, err := m.InvokeName("loadS")
	if err != nil {
		t.Fatal(err)
	}
	if int32(s[0]) != -1 {
		t.Errorf("loadS: expect -1, got %d", int32(s[0]))
	}
	u, err := m.InvokeName("loadU")
	if err != nil {
		t.Fatal(err)
	}
	if u[0] != 0xFF {
		t.Errorf("loadU: expect 0xFF, got %#x", u[0])
	}
}

func TestIndirectCall(t *testing.T) {
	addOneType := i32i32()
	addType := wasm.FuncType{Params: []wasm.ValueType{wasm.I32, wasm.I32}, Results: []wasm.ValueType{wasm.I32}}
	voidType := wasm.FuncType{}

	addOne := (&asm{}).
		op(opcode.LocalGet).u(0).
		op(opcode.I32Const).s(1).
		op(opcode.I32Add).
		op(opcode.End).
		bytes()
	add := (&asm{}).
		op(opcode.LocalGet).u(0).
		op(opcode.LocalGet).u(1).
		op(opcode.I32Add).
		op(opcode.End).
		bytes()
	caller := (&asm{}).
		op(opcode.LocalGet).u(0).
		op(opcode.I32Const).s(0).
		op(opcode.CallIndirect).u(0).u(0).
		op(opcode.End).
		bytes()
	mismatch := (&asm{}).
		op(opcode.I32Const).s(0).
		op(opcode.CallIndirect).u(1).u(0).
		op(opcode.End).
		bytes()

	offset := (&asm{}).op(opcode.I32Const).s(0).op(opcode.End).bytes()

	raw := &wasm.RawModule{
		Types:   []wasm.FuncType{addOneType, addType, voidType},
		TypeIdx: []uint32{0, 1, 0, 2},
		Funcs:   []wasm.Func{{Code: addOne}, {Code: add}, {Code: caller}, {Code: mismatch}},
		Tables:  []wasm.TableType{{ElemType: wasm.ElemTypeFuncRef, Limits: wasm.Limits{Min: 1}}},
		Elements: []wasm.Element{
			{TableIdx: 0, Offset: offset, Funcs: []uint32{0}},
		},
		Exports: []wasm.Export{
			{Name: "caller", Desc: wasm.ExportDesc{Kind: wasm.ExternalFunction, Idx: 2}},
			{Name: "mismatch", Desc: wasm.ExportDesc{Kind: wasm.ExternalFunction, Idx: 3}},
		},
	}

	m, err := Instantiate(raw, NopResolver{})
	if err != nil {
		t.Fatal(err)
	}
	results, err := m.InvokeName("caller", 41)
	if err != nil {
		t.Fatal(err)
	}
	if results[0] != 42 {
		t.Fatalf("caller(41): expect 42, got %d", results[0])
	}
	if _, err := m.InvokeName("mismatch"); err != ErrMismatchedFuncSig {
		t.Fatalf("expect type mismatch trap, got %v", err)
	}
}

func TestGlobalInitMutationAndConstTrap(t *testing.T) {
	constInit := (&asm{}).op(opcode.I32Const).s(42).op(opcode.End).bytes()
	varInit := (&asm{}).op(opcode.I32Const).s(0).op(opcode.End).bytes()

	readConst := (&asm{}).op(opcode.GlobalGet).u(0).op(opcode.End).bytes()
	bump := (&asm{}).
		op(opcode.GlobalGet).u(1).
		op(opcode.I32Const).s(1).
		op(opcode.I32Add).
		op(opcode.GlobalSet).u(1).
		op(opcode.GlobalGet).u(1).
		op(opcode.End).
		bytes()
	trapWrite := (&asm{}).
		op(opcode.I32Const).s(99).
		op(opcode.GlobalSet).u(0).
		op(opcode.End).
		bytes()

	noArgsI32 := wasm.FuncType{Results: []wasm.ValueType{wasm.I32}}
	voidType := wasm.FuncType{}
	raw := &wasm.RawModule{
		Types:   []wasm.FuncType{noArgsI32, voidType},
		TypeIdx: []uint32{0, 0, 1},
		Funcs:   []wasm.Func{{Code: readConst}, {Code: bump}, {Code: trapWrite}},
		Globals: []wasm.Global{
			{Type: wasm.GlobalType{ValueType: wasm.I32, Mut: wasm.Const}, Init: constInit},
			{Type: wasm.GlobalType{ValueType: wasm.I32, Mut: wasm.Var}, Init: varInit},
		},
		Exports: []wasm.Export{
			{Name: "readConst", Desc: wasm.ExportDesc{Kind: wasm.ExternalFunction, Idx: 0}},
			{Name: "bump", Desc: wasm.ExportDesc{Kind: wasm.ExternalFunction, Idx: 1}},
			{Name: "trapWrite", Desc: wasm.ExportDesc{Kind: wasm.ExternalFunction, Idx: 2}},
		},
	}

	m, err := Instantiate(raw, NopResolver{})
	if err != nil {
		t.Fatal(err)
	}
	results, err := m.InvokeName("readConst")
	if err != nil {
		t.Fatal(err)
	}
	if results[0] != 42 {
		t.Fatalf("expect 42, got %d", results[0])
	}
	results, err = m.InvokeName("bump")
	if err != nil {
		t.Fatal(err)
	}
	if results[0] != 1 {
		t.Fatalf("expect 1 after bump, got %d", results[0])
	}
	if _, err := m.InvokeName("trapWrite"); err != ErrGlobalNotMutable {
		t.Fatalf("expect immutable trap, got %v", err)
	}
}
