// Package wasmtest assembles small guest binaries for tests.
package wasmtest

import (
	"github.com/tetratelabs/wabin/binary"
	"github.com/tetratelabs/wabin/leb128"
	"github.com/tetratelabs/wabin/wasm"
)

// Value types re-exported for brevity in tests.
const (
	I32 = wasm.ValueTypeI32
	I64 = wasm.ValueTypeI64
)

// Builder assembles a core module. All imports must be declared before
// the first function so indices stay stable.
type Builder struct {
	mod     wasm.Module
	imports uint32
	defined bool
}

// New creates an empty module builder.
func New() *Builder {
	return &Builder{}
}

// Memory declares a linear memory of min pages exported as "memory".
func (b *Builder) Memory(min uint32) *Builder {
	b.mod.MemorySection = &wasm.Memory{Min: min}
	b.mod.ExportSection = append(b.mod.ExportSection, &wasm.Export{
		Type:  wasm.ExternTypeMemory,
		Name:  "memory",
		Index: 0,
	})
	return b
}

func (b *Builder) addType(params, results []wasm.ValueType) wasm.Index {
	b.mod.TypeSection = append(b.mod.TypeSection, &wasm.FunctionType{
		Params:  params,
		Results: results,
	})
	return wasm.Index(len(b.mod.TypeSection) - 1)
}

// Import declares an imported function and returns its function index.
func (b *Builder) Import(module, name string, params, results []wasm.ValueType) uint32 {
	if b.defined {
		panic("wasmtest: imports must precede functions")
	}
	b.mod.ImportSection = append(b.mod.ImportSection, &wasm.Import{
		Type:     wasm.ExternTypeFunc,
		Module:   module,
		Name:     name,
		DescFunc: b.addType(params, results),
	})
	b.imports++
	return b.imports - 1
}

// Func defines a function from body instructions and returns its index.
// A non-empty export name exports it. The trailing end opcode is added.
func (b *Builder) Func(export string, params, results, locals []wasm.ValueType, body ...[]byte) uint32 {
	b.defined = true
	b.mod.FunctionSection = append(b.mod.FunctionSection, b.addType(params, results))

	var code []byte
	for _, instr := range body {
		code = append(code, instr...)
	}
	code = append(code, wasm.OpcodeEnd)
	b.mod.CodeSection = append(b.mod.CodeSection, &wasm.Code{
		LocalTypes: locals,
		Body:       code,
	})

	index := b.imports + uint32(len(b.mod.FunctionSection)) - 1
	if export != "" {
		b.mod.ExportSection = append(b.mod.ExportSection, &wasm.Export{
			Type:  wasm.ExternTypeFunc,
			Name:  export,
			Index: index,
		})
	}
	return index
}

// Data places bytes at offset in linear memory.
func (b *Builder) Data(offset int32, data []byte) *Builder {
	b.mod.DataSection = append(b.mod.DataSection, &wasm.DataSegment{
		OffsetExpression: &wasm.ConstantExpression{
			Opcode: wasm.OpcodeI32Const,
			Data:   leb128.EncodeInt32(offset),
		},
		Init: data,
	})
	return b
}

// Build encodes the module.
func (b *Builder) Build() []byte {
	return binary.EncodeModule(&b.mod)
}

// Instructions

func I32Const(v int32) []byte {
	return append([]byte{wasm.OpcodeI32Const}, leb128.EncodeInt32(v)...)
}

func I64Const(v int64) []byte {
	return append([]byte{wasm.OpcodeI64Const}, leb128.EncodeInt64(v)...)
}

func LocalGet(i uint32) []byte {
	return append([]byte{wasm.OpcodeLocalGet}, leb128.EncodeUint32(i)...)
}

func LocalSet(i uint32) []byte {
	return append([]byte{wasm.OpcodeLocalSet}, leb128.EncodeUint32(i)...)
}

func Call(function uint32) []byte {
	return append([]byte{wasm.OpcodeCall}, leb128.EncodeUint32(function)...)
}

// I32Load loads from the address on the stack with a 4-byte alignment hint.
func I32Load(offset uint32) []byte {
	return append([]byte{wasm.OpcodeI32Load, 2}, leb128.EncodeUint32(offset)...)
}

// I32Store stores to the address on the stack with a 4-byte alignment hint.
func I32Store(offset uint32) []byte {
	return append([]byte{wasm.OpcodeI32Store, 2}, leb128.EncodeUint32(offset)...)
}

func I32Eq() []byte        { return []byte{wasm.OpcodeI32Eq} }
func I32Ne() []byte        { return []byte{wasm.OpcodeI32Ne} }
func I32Eqz() []byte       { return []byte{wasm.OpcodeI32Eqz} }
func I32Add() []byte       { return []byte{wasm.OpcodeI32Add} }
func Drop() []byte         { return []byte{wasm.OpcodeDrop} }
func Return() []byte       { return []byte{wasm.OpcodeReturn} }
func Unreachable() []byte  { return []byte{wasm.OpcodeUnreachable} }
func End() []byte          { return []byte{wasm.OpcodeEnd} }
func Else() []byte         { return []byte{wasm.OpcodeElse} }
func If() []byte           { return []byte{wasm.OpcodeIf, 0x40} }
func IfI32() []byte        { return []byte{wasm.OpcodeIf, wasm.ValueTypeI32} }
func Block() []byte        { return []byte{wasm.OpcodeBlock, 0x40} }
func BrIf(d uint32) []byte { return append([]byte{wasm.OpcodeBrIf}, leb128.EncodeUint32(d)...) }

// ReturnIfNonZero returns the i32 in local i when it is not zero.
func ReturnIfNonZero(i uint32) []byte {
	return concat(LocalGet(i), If(), LocalGet(i), Return(), End())
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
