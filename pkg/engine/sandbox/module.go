package sandbox

import (
	"context"
	"fmt"
	"sort"
	"strings"

	extism "github.com/extism/go-sdk"
	"github.com/tetratelabs/wazero"

	"github.com/ignitionstack/ember/pkg/contract"
	"github.com/ignitionstack/ember/pkg/engine/config"
	"github.com/ignitionstack/ember/pkg/engine/errors"
	"github.com/ignitionstack/ember/pkg/store"
)

// Module is a compiled guest. It is never mutated after compilation and may
// be instantiated concurrently.
type Module struct {
	ID     string
	Path   string
	Digest string
	Size   int
	ABI    ABI

	exports  map[string]struct{}
	compiled wazero.CompiledModule
	release  func(context.Context) error
	extism   *extism.CompiledPlugin
}

// CompileOptions carries per-plugin settings applied at compile time.
type CompileOptions struct {
	MemoryPages uint32
	TimeoutMs   uint64
	Config      config.ImmutableConfig
}

// Exports returns the exported function names, sorted.
func (m *Module) Exports() []string {
	names := make([]string, 0, len(m.exports))
	for name := range m.exports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasExport reports whether the module exports a function.
func (m *Module) HasExport(name string) bool {
	_, ok := m.exports[name]
	return ok
}

// Close releases this module's hold on its compiled code. Code shared with
// another live module of the same content stays compiled.
func (m *Module) Close(ctx context.Context) error {
	var err error
	if m.extism != nil {
		err = m.extism.Close(ctx)
	}
	if m.release != nil {
		if rerr := m.release(ctx); err == nil {
			err = rerr
		}
	}
	return err
}

// Compile validates and compiles a candidate against the shared runtime.
// Every import must be satisfied by the capability table.
func (r *Runtime) Compile(ctx context.Context, c store.Candidate, data []byte, caps *CapabilityTable, opts CompileOptions) (*Module, error) {
	digest := store.Digest(data)
	compiled, release, err := r.code.acquire(ctx, r.rt, digest, data)
	if err != nil {
		return nil, errors.Wrap(errors.DomainDiscovery, errors.CodeCompileFailed, "Failed to compile module", err).
			WithPlugin(c.ID).WithPath(c.Path)
	}

	m := &Module{
		ID:      c.ID,
		Path:    c.Path,
		Digest:  digest,
		Size:    len(data),
		ABI:     ABINative,
		exports: make(map[string]struct{}),
		release: release,
	}
	for name := range compiled.ExportedFunctions() {
		m.exports[name] = struct{}{}
	}

	var unresolved []string
	for _, def := range compiled.ImportedFunctions() {
		module, name, _ := def.Import()
		if module == ExtismHostModule {
			m.ABI = ABIExtism
			continue
		}
		if !caps.Provides(module, name) {
			unresolved = append(unresolved, module+"."+name)
		}
	}
	if len(unresolved) > 0 {
		_ = release(ctx)
		return nil, errors.New(errors.DomainDiscovery, errors.CodeInstantiateFailed,
			"Module imports functions the host does not provide: "+strings.Join(unresolved, ", ")).
			WithPlugin(c.ID).WithPath(c.Path)
	}

	if opts.MemoryPages > 0 {
		for name, mem := range compiled.ExportedMemories() {
			if mem.Min() > opts.MemoryPages {
				_ = release(ctx)
				return nil, errors.New(errors.DomainDiscovery, errors.CodeInstantiateFailed,
					fmt.Sprintf("Memory %q needs %d pages, limit is %d", name, mem.Min(), opts.MemoryPages)).
					WithPlugin(c.ID).WithPath(c.Path)
			}
		}
	}

	if m.ABI == ABINative {
		if m.HasExport(contract.ExportRegister) && len(compiled.ExportedMemories()) == 0 {
			_ = release(ctx)
			return nil, errors.New(errors.DomainDiscovery, errors.CodeInstantiateFailed,
				"Module exports no memory to exchange data through").
				WithPlugin(c.ID).WithPath(c.Path)
		}
		m.compiled = compiled
		return m, nil
	}

	// Extism plugins are linked by the Extism SDK, which builds its own
	// runtime from the same config and so shares the compilation cache.
	// The reference taken above keeps that shared entry alive until Close.

	manifest := extism.Manifest{
		Wasm:   []extism.Wasm{extism.WasmData{Data: data, Name: "main"}},
		Config: opts.Config.ToMap(),
	}
	if opts.MemoryPages > 0 {
		manifest.Memory = &extism.ManifestMemory{MaxPages: opts.MemoryPages}
	}
	if opts.TimeoutMs > 0 {
		manifest.Timeout = opts.TimeoutMs
	}

	plugin, err := extism.NewCompiledPlugin(ctx, manifest, extism.PluginConfig{
		RuntimeConfig: r.config,
		EnableWasi:    true,
	}, caps.ExtismFunctions())
	if err != nil {
		_ = release(ctx)
		return nil, errors.Wrap(errors.DomainDiscovery, errors.CodeCompileFailed, "Failed to compile Extism plugin", err).
			WithPlugin(c.ID).WithPath(c.Path)
	}

	m.extism = plugin
	return m, nil
}

// instantiate creates a fresh instance bound to the run state's stdio.
func (m *Module) instantiate(ctx context.Context, r *Runtime, rs *RunState) (Instance, error) {
	cfg := wazero.NewModuleConfig().
		WithName(rs.instanceName()).
		WithStdout(rs.Stdout).
		WithStderr(rs.Stderr).
		WithStartFunctions(InitializeExport)

	switch m.ABI {
	case ABIExtism:
		p, err := m.extism.Instance(ctx, extism.PluginInstanceConfig{ModuleConfig: cfg})
		if err != nil {
			return nil, err
		}
		return &extismInstance{plugin: p}, nil
	default:
		if m.compiled == nil {
			return nil, fmt.Errorf("module %s is closed", m.ID)
		}
		mod, err := r.rt.InstantiateModule(ctx, m.compiled, cfg)
		if err != nil {
			return nil, err
		}
		return &nativeInstance{mod: mod}, nil
	}
}
