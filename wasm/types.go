// Package wasm decodes the Wasm MVP binary module envelope and section
// stream into an in-memory, passive RawModule — the Decoder of the core
// (module envelope, §4.3).
package wasm

import "fmt"

// ValueType is one of the four MVP value types.
type ValueType int8

// Value type byte encodings, per https://webassembly.github.io/spec/core/binary/types.html#value-types
const (
	I32 ValueType = 0x7F
	I64 ValueType = 0x7E
	F32 ValueType = 0x7D
	F64 ValueType = 0x7C
)

func (v ValueType) String() string {
	switch v {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	default:
		return fmt.Sprintf("valtype(%#x)", byte(v))
	}
}

// BlockTypeEmpty is the block-type byte meaning "no result".
const BlockTypeEmpty byte = 0x40

// FuncTypeForm is the signature byte every FuncType entry starts with.
const FuncTypeForm byte = 0x60

// ElemTypeFuncRef is the only MVP element type.
const ElemTypeFuncRef byte = 0x70

// Mut is global mutability.
type Mut uint8

// Mutability flags.
const (
	Const Mut = 0x00
	Var   Mut = 0x01
)

// FuncType is a function signature: ordered params -> ordered results.
type FuncType struct {
	Params  []ValueType
	Results []ValueType
}

func (ft FuncType) String() string {
	return fmt.Sprintf("%v -> %v", ft.Params, ft.Results)
}

// Equal reports whether ft and other declare the same params and results,
// used for call_indirect type checks and import/export matching.
func (ft FuncType) Equal(other FuncType) bool {
	if len(ft.Params) != len(other.Params) || len(ft.Results) != len(other.Results) {
		return false
	}
	for i := range ft.Params {
		if ft.Params[i] != other.Params[i] {
			return false
		}
	}
	for i := range ft.Results {
		if ft.Results[i] != other.Results[i] {
			return false
		}
	}
	return true
}

// Limits describes a min (and optional max) bound shared by tables and
// memories.
type Limits struct {
	Min    uint32
	Max    uint32
	HasMax bool
}

// TableType describes a table of function references.
type TableType struct {
	ElemType byte // always ElemTypeFuncRef in the MVP
	Limits   Limits
}

// MemType describes a linear memory, in units of 64 KiB pages.
type MemType struct {
	Limits Limits
}

// GlobalType describes a global's value type and mutability.
type GlobalType struct {
	ValueType ValueType
	Mut       Mut
}

// Global is a global definition: its type plus a constant-expression
// initializer.
type Global struct {
	Type GlobalType
	Init []byte
}

// Import external kinds.
const (
	ExternalFunction byte = 0x00
	ExternalTable    byte = 0x01
	ExternalMemory   byte = 0x02
	ExternalGlobal   byte = 0x03
)

// ImportDesc is the typed payload of one import entry.
type ImportDesc struct {
	Kind       byte
	TypeIdx    uint32
	Table      *TableType
	Mem        *MemType
	GlobalType *GlobalType
}

// Import is one entry of the import section.
type Import struct {
	Module string
	Field  string
	Desc   ImportDesc
}

// ExportDesc is the typed payload of one export entry.
type ExportDesc struct {
	Kind byte // one of the External* kinds
	Idx  uint32
}

// Export is one entry of the export section.
type Export struct {
	Name string
	Desc ExportDesc
}

// LocalEntry is a run-length group of locals sharing one value type.
type LocalEntry struct {
	Count     uint32
	ValueType ValueType
}

// Func is the locals-plus-body payload of one code section entry.
type Func struct {
	Locals []LocalEntry
	Code   []byte // instructions up to and including the terminating End
}

// Element is one element segment: table index, offset expr, function
// indices to install starting at the offset.
type Element struct {
	TableIdx uint32
	Offset   []byte // constant expression
	Funcs    []uint32
}

// Data is one data segment: memory index, offset expr, raw bytes.
type Data struct {
	MemIdx uint32
	Offset []byte // constant expression
	Init   []byte
}
