package vm

import "github.com/MinkowskiMetric/wasm-interp/wasm"

// Store is the runtime state surface the executor needs, kept as an
// interface so the dispatch loop in executor.go never reaches into a
// concrete Module's fields directly (§4.10): every execCtx it runs
// against holds a Store and a *Stack, nothing else. *Module is the only
// implementation, but the separation keeps the stack-machine logic free
// of instantiation and linking concerns.
type Store interface {
	GetGlobal(idx uint32) (uint64, error)
	SetGlobal(idx uint32, v uint64) error

	ReadMemory(offset, n uint32) ([]byte, error)
	WriteMemory(offset uint32, data []byte) error
	MemorySize() (uint32, error)
	MemoryGrow(delta uint32) (int32, error)

	TableGet(idx uint32) (int64, error)

	Func(idx uint32) (*FuncInstance, error)
	Type(idx uint32) wasm.FuncType
	CallFunction(idx uint32, args []uint64) ([]uint64, error)
}

// execCtx is the dispatch loop's execution context: the Store it reads
// and mutates instance state through, and the Stack it runs on.
type execCtx struct {
	store Store
	stack *Stack
}
