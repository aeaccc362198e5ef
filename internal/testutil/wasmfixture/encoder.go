// Package wasmfixture assembles small WebAssembly modules for tests.
//
// Modules speak the native ABI: they export memory and allocate, keep their
// JSON documents in a data segment, and return them from world exports as a
// packed ptr<<32|len value.
package wasmfixture

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
)

// Value types
const (
	I32 byte = 0x7f
	I64 byte = 0x7e
)

const (
	// DataBase is where the first data segment byte lands in linear memory.
	DataBase uint32 = 1024

	// HeapBase is the first address handed out by allocate.
	HeapBase uint32 = 32768
)

const (
	globalHeap    = 0
	globalCounter = 1
	globalScratch = 2 // i64
)

// Segment locates bytes stored in the module's data segment.
type Segment struct {
	Offset uint32
	Len    uint32
}

// Packed returns the ptr<<32|len form used by the ABI.
func (s Segment) Packed() uint64 {
	return uint64(s.Offset)<<32 | uint64(s.Len)
}

type funcType struct {
	params  []byte
	results []byte
}

type function struct {
	typeIdx uint32
	body    []byte
}

type funcImport struct {
	module  string
	name    string
	typeIdx uint32
}

type funcExport struct {
	name string
	fn   uint32
}

// Module is an in-progress module.
type Module struct {
	types    []funcType
	imports  []funcImport
	funcs    []function
	exports  []funcExport
	data     []byte
	noMemory bool
}

// New returns a module exporting memory and a bump allocator.
func New() *Module {
	m := &Module{}
	m.Func("allocate", []byte{I32}, []byte{I32}, concat(
		globalGet(globalHeap),
		globalGet(globalHeap),
		[]byte{0x20, 0x00}, // local.get 0
		[]byte{0x6a},       // i32.add
		globalSet(globalHeap),
	))
	return m
}

// WithoutMemory drops the memory and any data segment from the encoding.
func (m *Module) WithoutMemory() *Module {
	m.noMemory = true
	return m
}

// Data appends bytes to the data segment.
func (m *Module) Data(b []byte) Segment {
	seg := Segment{Offset: DataBase + uint32(len(m.data)), Len: uint32(len(b))}
	m.data = append(m.data, b...)
	return seg
}

// JSON marshals v into the data segment.
func (m *Module) JSON(v interface{}) Segment {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return m.Data(b)
}

// Import declares a function import and returns its function index.
func (m *Module) Import(module, name string, params, results []byte) uint32 {
	typeIdx := m.typeIndex(params, results)
	for i, imp := range m.imports {
		if imp.module == module && imp.name == name && imp.typeIdx == typeIdx {
			return uint32(i)
		}
	}
	m.imports = append(m.imports, funcImport{module: module, name: name, typeIdx: typeIdx})
	return uint32(len(m.imports) - 1)
}

// Func defines and exports a function. body is the instruction sequence
// without the trailing end opcode.
func (m *Module) Func(name string, params, results []byte, body []byte) *Module {
	m.funcs = append(m.funcs, function{typeIdx: m.typeIndex(params, results), body: body})
	m.exports = append(m.exports, funcExport{name: name, fn: uint32(len(m.funcs) - 1)})
	return m
}

// World defines an export with the world signature (i32, i32) -> i64.
func (m *Module) World(name string, body []byte) *Module {
	return m.Func(name, []byte{I32, I32}, []byte{I64}, body)
}

// PostHook defines the cleanup hook for an export.
func (m *Module) PostHook(export string, body []byte) *Module {
	return m.Func("cabi_post_"+export, []byte{I64}, nil, body)
}

func (m *Module) typeIndex(params, results []byte) uint32 {
	for i, t := range m.types {
		if string(t.params) == string(params) && string(t.results) == string(results) {
			return uint32(i)
		}
	}
	m.types = append(m.types, funcType{params: params, results: results})
	return uint32(len(m.types) - 1)
}

// Bytes encodes the module.
func (m *Module) Bytes() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	var types [][]byte
	for _, t := range m.types {
		types = append(types, concat([]byte{0x60}, vecBytes(t.params), vecBytes(t.results)))
	}
	out = append(out, section(1, vec(types))...)

	if len(m.imports) > 0 {
		var imports [][]byte
		for _, imp := range m.imports {
			imports = append(imports, concat(name(imp.module), name(imp.name), []byte{0x00}, uleb(uint64(imp.typeIdx))))
		}
		out = append(out, section(2, vec(imports))...)
	}

	var funcs [][]byte
	for _, f := range m.funcs {
		funcs = append(funcs, uleb(uint64(f.typeIdx)))
	}
	out = append(out, section(3, vec(funcs))...)

	if !m.noMemory {
		// one memory, min 1 page, no max
		out = append(out, section(5, vec([][]byte{{0x00, 0x01}}))...)
	}

	globals := [][]byte{
		concat([]byte{I32, 0x01}, i32Const(int32(HeapBase)), []byte{0x0b}),
		concat([]byte{I32, 0x01}, i32Const(0), []byte{0x0b}),
		concat([]byte{I64, 0x01}, i64Const(0), []byte{0x0b}),
	}
	out = append(out, section(6, vec(globals))...)

	var exports [][]byte
	if !m.noMemory {
		exports = append(exports, concat(name("memory"), []byte{0x02, 0x00}))
	}
	for _, e := range m.exports {
		exports = append(exports, concat(name(e.name), []byte{0x00}, uleb(uint64(uint32(len(m.imports))+e.fn))))
	}
	out = append(out, section(7, vec(exports))...)

	var code [][]byte
	for _, f := range m.funcs {
		body := concat([]byte{0x00}, f.body, []byte{0x0b})
		code = append(code, concat(uleb(uint64(len(body))), body))
	}
	out = append(out, section(10, vec(code))...)

	if len(m.data) > 0 && !m.noMemory {
		seg := concat([]byte{0x00}, i32Const(int32(DataBase)), []byte{0x0b}, vecBytes(m.data))
		out = append(out, section(11, vec([][]byte{seg}))...)
	}

	return out
}

// WriteFile writes the module to dir/filename.
func (m *Module) WriteFile(dir, filename string) (string, error) {
	path := filepath.Join(dir, filename)
	return path, os.WriteFile(path, m.Bytes(), 0o644)
}

// Instructions

// ReturnSegment is a body returning the packed segment.
func ReturnSegment(seg Segment) []byte {
	return i64Const(int64(seg.Packed()))
}

// Unreachable is a body that traps.
func Unreachable() []byte {
	return []byte{0x00}
}

// Spin is a body that never returns.
func Spin() []byte {
	return []byte{
		0x03, 0x40, // loop
		0x0c, 0x00, // br 0
		0x0b, // end
		0x00, // unreachable
	}
}

// CallDrop calls fn with a packed segment argument and drops the result.
func CallDrop(fn uint32, arg Segment) []byte {
	return concat(i64Const(int64(arg.Packed())), call(fn), []byte{0x1a})
}

// CallWithPacked calls fn with a packed argument, leaving its i64 result on the stack.
func CallWithPacked(fn uint32, packed uint64) []byte {
	return concat(i64Const(int64(packed)), call(fn))
}

// CountedReturn increments the counter global and returns first when the
// counter is 1, other afterwards.
func CountedReturn(first, other Segment) []byte {
	return concat(
		globalGet(globalCounter),
		i32Const(1),
		[]byte{0x6a}, // i32.add
		globalSet(globalCounter),
		globalGet(globalCounter),
		i32Const(1),
		[]byte{0x46},      // i32.eq
		[]byte{0x04, I64}, // if (result i64)
		i64Const(int64(first.Packed())),
		[]byte{0x05}, // else
		i64Const(int64(other.Packed())),
		[]byte{0x0b}, // end
	)
}

// FdWrite writes text to fd through wasi fd_write and drops the errno.
func (m *Module) FdWrite(fdWrite uint32, fd int32, text string) []byte {
	buf := m.Data([]byte(text))
	iov := make([]byte, 8)
	binary.LittleEndian.PutUint32(iov[0:], buf.Offset)
	binary.LittleEndian.PutUint32(iov[4:], buf.Len)
	iovSeg := m.Data(iov)
	written := m.Data(make([]byte, 4))

	return concat(
		i32Const(fd),
		i32Const(int32(iovSeg.Offset)),
		i32Const(1),
		i32Const(int32(written.Offset)),
		call(fdWrite),
		[]byte{0x1a},
	)
}

// Concat joins instruction sequences.
func Concat(parts ...[]byte) []byte {
	return concat(parts...)
}

// I32Const pushes an i32.
func I32Const(v int32) []byte {
	return i32Const(v)
}

func call(fn uint32) []byte {
	return concat([]byte{0x10}, uleb(uint64(fn)))
}

func globalGet(idx uint32) []byte {
	return concat([]byte{0x23}, uleb(uint64(idx)))
}

func globalSet(idx uint32) []byte {
	return concat([]byte{0x24}, uleb(uint64(idx)))
}

func i32Const(v int32) []byte {
	return concat([]byte{0x41}, sleb(int64(v)))
}

func i64Const(v int64) []byte {
	return concat([]byte{0x42}, sleb(v))
}

// Encoding

func section(id byte, content []byte) []byte {
	return concat([]byte{id}, uleb(uint64(len(content))), content)
}

func vec(items [][]byte) []byte {
	return concat(append([][]byte{uleb(uint64(len(items)))}, items...)...)
}

func vecBytes(b []byte) []byte {
	return concat(uleb(uint64(len(b))), b)
}

func name(s string) []byte {
	return vecBytes([]byte(s))
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if !done {
			b |= 0x80
		}
		out = append(out, b)
		if done {
			return out
		}
	}
}
