// Package vm implements the WebAssembly MVP stack machine: it turns a
// decoded wasm.RawModule into a runnable Module (instantiation, §4.9) and
// executes exported functions against it (the expression executor,
// §4.8).
package vm

import (
	"fmt"

	"github.com/MinkowskiMetric/wasm-interp/wasm"
)

// Default resource limits, overridable per-instantiation via Option.
const (
	defaultMaxValues = 1 << 16
	defaultMaxFrames = 1 << 10
	defaultMaxBlocks = 1024
)

type config struct {
	maxValues int
	maxFrames int
	maxBlocks int
}

// Option configures resource limits at instantiation time (§5: the core
// enforces stack, frame, and block depth bounds; time budgets are the
// embedder's concern).
type Option func(*config)

// WithMaxValues overrides the operand stack's cell capacity.
func WithMaxValues(n int) Option { return func(c *config) { c.maxValues = n } }

// WithMaxFrames overrides the call-frame stack's depth capacity.
func WithMaxFrames(n int) Option { return func(c *config) { c.maxFrames = n } }

// WithMaxBlocks overrides the per-frame label/block nesting depth.
func WithMaxBlocks(n int) Option { return func(c *config) { c.maxBlocks = n } }

// Module is one instantiated module: its resolved index spaces plus the
// operand/frame stack execution runs against.
type Module struct {
	raw *wasm.RawModule

	funcs   []*FuncInstance
	mem     *Memory
	table   *Table
	globals []*Global

	exports map[string]wasm.ExportDesc

	stack *Stack
}

// Instantiate decodes nothing further — raw must already be the output of
// wasm.Decode — and produces a runnable Module: imports are resolved via
// resolver, local definitions are appended to each index space, globals
// and element/data segments are evaluated, and the start function (if
// any) is invoked (§4.9).
func Instantiate(raw *wasm.RawModule, resolver Resolver, opts ...Option) (*Module, error) {
	if resolver == nil {
		resolver = NopResolver{}
	}
	cfg := config{maxValues: defaultMaxValues, maxFrames: defaultMaxFrames, maxBlocks: defaultMaxBlocks}
	for _, o := range opts {
		o(&cfg)
	}

	m := &Module{
		raw:     raw,
		exports: make(map[string]wasm.ExportDesc),
		stack:   NewStack(cfg.maxValues, cfg.maxFrames, cfg.maxBlocks),
	}

	if err := m.resolveImports(raw, resolver); err != nil {
		return nil, err
	}
	if err := m.appendLocalDefinitions(raw); err != nil {
		return nil, err
	}
	if err := m.evalGlobals(raw); err != nil {
		return nil, err
	}
	if err := m.installElements(raw); err != nil {
		return nil, err
	}
	if err := m.installData(raw); err != nil {
		return nil, err
	}
	for _, e := range raw.Exports {
		m.exports[e.Name] = e.Desc
	}

	if raw.HasStart {
		if _, err := m.Invoke(raw.Start); err != nil {
			return nil, fmt.Errorf("vm: start function trapped: %w", err)
		}
	}

	return m, nil
}

// ExportNames returns every exported name, in declaration order.
func (m *Module) ExportNames() []string {
	names := make([]string, len(m.raw.Exports))
	for i, e := range m.raw.Exports {
		names[i] = e.Name
	}
	return names
}

// FunctionIndex returns the function index space index of an exported
// function named name.
func (m *Module) FunctionIndex(name string) (uint32, bool) {
	desc, ok := m.exports[name]
	if !ok || desc.Kind != wasm.ExternalFunction {
		return 0, false
	}
	return desc.Idx, true
}

// Invoke calls the function at funcIdx with args, running it to
// completion or until it traps. It recovers any internal panic carrying an
// error into a returned error — like CallFunction, it turns an invariant
// violation into a regular error rather than letting it escape as a
// panic.
func (m *Module) Invoke(funcIdx uint32, args ...uint64) (results []uint64, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			panic(r)
		}
	}()
	fn, err := m.Func(funcIdx)
	if err != nil {
		return nil, err
	}
	if len(args) != len(fn.Type.Params) {
		return nil, ErrWrongNumberOfArgs
	}
	return m.execCtx().callFunc(fn, args), nil
}

// InvokeName resolves name as an exported function and calls it.
func (m *Module) InvokeName(name string, args ...uint64) ([]uint64, error) {
	idx, ok := m.FunctionIndex(name)
	if !ok {
		return nil, ErrFuncNotFound
	}
	return m.Invoke(idx, args...)
}

// MemSize returns the instance's single memory's size in pages, or 0 if
// the module declares none.
func (m *Module) MemSize() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}

// MemRead reads n bytes from the instance's memory.
func (m *Module) MemRead(offset, n uint32) ([]byte, error) {
	return m.ReadMemory(offset, n)
}

// MemWrite writes data into the instance's memory.
func (m *Module) MemWrite(offset uint32, data []byte) error {
	return m.WriteMemory(offset, data)
}

// GetMemory exposes the instance's raw memory bytes directly.
func (m *Module) GetMemory() []byte {
	if m.mem == nil {
		return nil
	}
	return m.mem.Bytes()
}

// GlobalValue reads a global's current raw cell value by index.
func (m *Module) GlobalValue(idx uint32) (uint64, error) { return m.GetGlobal(idx) }

// --- Store implementation -------------------------------------------------

func (m *Module) GetGlobal(idx uint32) (uint64, error) {
	if idx >= uint32(len(m.globals)) {
		return 0, ErrOutOfBoundMemoryAccess
	}
	return m.globals[idx].Get(), nil
}

func (m *Module) SetGlobal(idx uint32, v uint64) error {
	if idx >= uint32(len(m.globals)) {
		return ErrOutOfBoundMemoryAccess
	}
	return m.globals[idx].Set(v)
}

func (m *Module) ReadMemory(offset, n uint32) ([]byte, error) {
	if m.mem == nil {
		return nil, ErrOutOfBoundMemoryAccess
	}
	return m.mem.Read(offset, n)
}

func (m *Module) WriteMemory(offset uint32, data []byte) error {
	if m.mem == nil {
		return ErrOutOfBoundMemoryAccess
	}
	return m.mem.Write(offset, data)
}

func (m *Module) MemorySize() (uint32, error) {
	if m.mem == nil {
		return 0, ErrOutOfBoundMemoryAccess
	}
	return m.mem.Size(), nil
}

func (m *Module) MemoryGrow(delta uint32) (int32, error) {
	if m.mem == nil {
		return -1, nil
	}
	return m.mem.Grow(delta), nil
}

func (m *Module) TableGet(idx uint32) (int64, error) {
	if m.table == nil {
		return 0, ErrOutOfBoundTableAccess
	}
	return m.table.Get(idx)
}

func (m *Module) Func(idx uint32) (*FuncInstance, error) {
	if idx >= uint32(len(m.funcs)) {
		return nil, ErrFuncNotFound
	}
	return m.funcs[idx], nil
}

func (m *Module) Type(idx uint32) wasm.FuncType {
	return m.raw.Types[idx]
}

func (m *Module) CallFunction(idx uint32, args []uint64) (results []uint64, err error) {
	fn, ferr := m.Func(idx)
	if ferr != nil {
		return nil, ferr
	}
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			panic(r)
		}
	}()
	return m.execCtx().callFunc(fn, args), nil
}

// execCtx builds the Store+Stack pair the dispatch loop runs against.
func (m *Module) execCtx() *execCtx { return &execCtx{store: m, stack: m.stack} }
