package wasmfixture

import (
	"encoding/json"

	"github.com/ignitionstack/ember/pkg/contract"
)

// ExtismModule is the kernel namespace imported by Extism guests.
const ExtismModule = "extism:host/env"

// NewExtism returns an empty module for the Extism ABI. Exports take no
// arguments, return an i32 exit code and pass output through the kernel.
func NewExtism() *Module {
	return &Module{}
}

// ExtismPlugin returns an Extism guest whose register export outputs info.
func ExtismPlugin(info contract.PluginInfo) *Module {
	return NewExtism().ExtismOutput(contract.ExportRegister, mustJSON(info))
}

// ExtismOutput adds an export that copies payload into kernel memory and
// sets it as the call output.
func (m *Module) ExtismOutput(export string, payload []byte) *Module {
	alloc := m.Import(ExtismModule, "alloc", []byte{I64}, []byte{I64})
	store := m.Import(ExtismModule, "store_u8", []byte{I64, I32}, nil)
	outputSet := m.Import(ExtismModule, "output_set", []byte{I64, I64}, nil)

	body := concat(i64Const(int64(len(payload))), call(alloc), globalSet(globalScratch))
	for i, b := range payload {
		body = concat(body,
			globalGet(globalScratch),
			i64Const(int64(i)),
			[]byte{0x7c}, // i64.add
			i32Const(int32(b)),
			call(store),
		)
	}
	body = concat(body,
		globalGet(globalScratch),
		i64Const(int64(len(payload))),
		call(outputSet),
		i32Const(0),
	)
	return m.Func(export, nil, []byte{I32}, body)
}

// WithExtismLoad adds a load export outputting resp.
func (m *Module) WithExtismLoad(resp contract.Response) *Module {
	return m.ExtismOutput(contract.ExportLoad, mustJSON(resp))
}

// WithExtismHostCall adds an export that calls a host capability with no
// input and outputs what it returned.
func (m *Module) WithExtismHostCall(export, capability string) *Module {
	fn := m.Import(HostModule, capability, []byte{I64}, []byte{I64})
	length := m.Import(ExtismModule, "length", []byte{I64}, []byte{I64})
	outputSet := m.Import(ExtismModule, "output_set", []byte{I64, I64}, nil)

	return m.Func(export, nil, []byte{I32}, concat(
		i64Const(0),
		call(fn),
		globalSet(globalScratch),
		globalGet(globalScratch),
		globalGet(globalScratch),
		call(length),
		call(outputSet),
		i32Const(0),
	))
}

// WithExtismExitCode adds an export that returns code without output.
func (m *Module) WithExtismExitCode(export string, code int32) *Module {
	return m.Func(export, nil, []byte{I32}, i32Const(code))
}

// NoMemoryPlugin exports allocate and register but no memory.
func NoMemoryPlugin() *Module {
	m := New().WithoutMemory()
	return m.World(contract.ExportRegister, i64Const(int64(Segment{Offset: DataBase, Len: 2}.Packed())))
}

func mustJSON(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
