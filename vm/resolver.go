package vm

import "github.com/MinkowskiMetric/wasm-interp/wasm"

// Resolver supplies the concrete values a module's imports bind to (§6).
// An embedder implements this once per host environment; Instantiate
// calls it for every import entry in declaration order.
type Resolver interface {
	ResolveFunction(module, field string, sig wasm.FuncType) (HostFunction, error)
	ResolveTable(module, field string, t wasm.TableType) (*Table, error)
	ResolveMemory(module, field string, t wasm.MemType) (*Memory, error)
	ResolveGlobal(module, field string, t wasm.GlobalType) (uint64, error)
}

// NopResolver rejects every import; it is useful for instantiating
// modules known to import nothing.
type NopResolver struct{}

func (NopResolver) ResolveFunction(module, field string, sig wasm.FuncType) (HostFunction, error) {
	return nil, &LinkError{Module: module, Field: field, Reason: "no imports available"}
}

func (NopResolver) ResolveTable(module, field string, t wasm.TableType) (*Table, error) {
	return nil, &LinkError{Module: module, Field: field, Reason: "no imports available"}
}

func (NopResolver) ResolveMemory(module, field string, t wasm.MemType) (*Memory, error) {
	return nil, &LinkError{Module: module, Field: field, Reason: "no imports available"}
}

func (NopResolver) ResolveGlobal(module, field string, t wasm.GlobalType) (uint64, error) {
	return 0, &LinkError{Module: module, Field: field, Reason: "no imports available"}
}
