package wasmfixture

import (
	"github.com/ignitionstack/ember/pkg/contract"
)

// Import module names seen by guests.
const (
	HostModule = "ember"
	WasiModule = "wasi_snapshot_preview1"
)

// Plugin returns a module whose register export returns info.
func Plugin(info contract.PluginInfo) *Module {
	m := New()
	m.World(contract.ExportRegister, ReturnSegment(m.JSON(info)))
	return m
}

// Demo returns the reference plugin: name "demo", one menu, and a load
// export rendering a small page.
func Demo() *Module {
	m := Plugin(contract.PluginInfo{
		Name:    "demo",
		Version: "0.1.0",
		Management: contract.Management{
			Menus: []contract.Menu{{Path: "/", Name: "Demo"}},
		},
	})
	return m.WithLoad(DemoResponse())
}

// DemoResponse is what Demo's load export returns.
func DemoResponse() contract.Response {
	return contract.Response{
		Head:    []string{`<link rel="stylesheet" href="/static/demo.css">`},
		Body:    `<div id="demo">Hello from demo</div>`,
		Scripts: []string{`console.log("demo")`},
	}
}

// WithLoad adds a load export returning resp.
func (m *Module) WithLoad(resp contract.Response) *Module {
	return m.World(contract.ExportLoad, ReturnSegment(m.JSON(resp)))
}

// WithMenus adds a management world export returning menus.
func (m *Module) WithMenus(menus []contract.Menu) *Module {
	return m.World(contract.ExportMenus, ReturnSegment(m.JSON(menus)))
}

// WithTrappingLoad adds a load export that always traps.
func (m *Module) WithTrappingLoad() *Module {
	return m.World(contract.ExportLoad, Unreachable())
}

// WithSpinningLoad adds a load export that never returns.
func (m *Module) WithSpinningLoad() *Module {
	return m.World(contract.ExportLoad, Spin())
}

// WithStatefulLoad adds a load export whose result would change if
// instance state survived between calls.
func (m *Module) WithStatefulLoad(first, later contract.Response) *Module {
	return m.World(contract.ExportLoad, CountedReturn(m.JSON(first), m.JSON(later)))
}

// WithLoggingLoad adds a load export that calls the host log capability
// before returning resp.
func (m *Module) WithLoggingLoad(level, message string, resp contract.Response) *Module {
	logFn := m.Import(HostModule, "log", []byte{I64}, []byte{I64})
	entry := m.JSON(map[string]string{"level": level, "message": message})
	return m.World(contract.ExportLoad, Concat(
		CallDrop(logFn, entry),
		ReturnSegment(m.JSON(resp)),
	))
}

// WithStdoutLoad adds a load export that prints text on stdout through WASI.
func (m *Module) WithStdoutLoad(text string, resp contract.Response) *Module {
	fdWrite := m.Import(WasiModule, "fd_write", []byte{I32, I32, I32, I32}, []byte{I32})
	return m.World(contract.ExportLoad, Concat(
		m.FdWrite(fdWrite, 1, text),
		ReturnSegment(m.JSON(resp)),
	))
}

// WithHostCall adds an export that calls a host capability with no input
// and returns whatever the capability returned.
func (m *Module) WithHostCall(export, capability string) *Module {
	fn := m.Import(HostModule, capability, []byte{I64}, []byte{I64})
	return m.World(export, CallWithPacked(fn, 0))
}

// WithLoggingPostHook adds a cleanup hook for export that logs message.
func (m *Module) WithLoggingPostHook(export, message string) *Module {
	logFn := m.Import(HostModule, "log", []byte{I64}, []byte{I64})
	entry := m.JSON(map[string]string{"level": "info", "message": message})
	return m.PostHook(export, CallDrop(logFn, entry))
}

// WithTrappingPostHook adds a cleanup hook for export that traps.
func (m *Module) WithTrappingPostHook(export string) *Module {
	return m.PostHook(export, Unreachable())
}

// WithForbiddenImport makes the module import a function the host does not provide.
func (m *Module) WithForbiddenImport() *Module {
	m.Import("env", "open_socket", nil, nil)
	return m
}

// WithWrongLoadSignature adds a load export typed () -> i32.
func (m *Module) WithWrongLoadSignature() *Module {
	return m.Func(contract.ExportLoad, nil, []byte{I32}, I32Const(0))
}

// Bare returns a module that compiles but implements no world.
func Bare() *Module {
	return New().Func("helper", nil, []byte{I32}, I32Const(7))
}

// Garbage is not a WebAssembly module.
func Garbage() []byte {
	return []byte("this is definitely not wasm")
}
