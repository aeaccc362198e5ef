package sandbox

import (
	"context"
	"sync"
	"time"

	"github.com/ignitionstack/ember/pkg/contract"
	"github.com/ignitionstack/ember/pkg/engine/errors"
	"github.com/ignitionstack/ember/pkg/engine/logging"
	"github.com/ignitionstack/ember/pkg/store"
)

// Options configures a Sandbox.
type Options struct {
	HostVersion          string
	DefaultTimeout       time.Duration
	MaxMemoryPages       uint32
	CompilationCacheDir  string
	DiscoveryConcurrency int
	Capabilities         []Capability
	Logger               logging.Logger
	LogStore             *logging.PluginLogStore
	OnCleanupFailure     CleanupFailureFunc
}

// MenuEntry is a menu attributed to the plugin that contributed it.
type MenuEntry struct {
	PluginID string `json:"plugin_id"`
	contract.Menu
}

// Result is the output of a call and the plugin that produced it.
type Result struct {
	PluginID string
	Output   []byte
}

// Sandbox is the host-facing entry point: it owns the runtime, the
// capability table and the current plugin generation.
type Sandbox struct {
	runtime    *Runtime
	caps       *CapabilityTable
	executor   *Executor
	discoverer *Discoverer
	catalog    *Catalog
	logger     logging.Logger
	logs       *logging.PluginLogStore

	reloadMu sync.Mutex
	enabled  EnabledFunc
	enableMu sync.RWMutex
}

// New builds the runtime and capability table. Failures here are BootErrors.
// Call Discover before invoking plugins.
func New(ctx context.Context, storage store.Storage, opts Options) (*Sandbox, error) {
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if opts.LogStore == nil {
		opts.LogStore = logging.NewPluginLogStore(1000)
	}

	runtime, err := NewRuntime(ctx, RuntimeOptions{
		MemoryLimitPages:    opts.MaxMemoryPages,
		CompilationCacheDir: opts.CompilationCacheDir,
	})
	if err != nil {
		return nil, err
	}

	caps, err := NewCapabilityTable(ctx, runtime, opts.Capabilities...)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, err
	}

	executor := NewExecutor(runtime, opts.LogStore, opts.Logger, opts.DefaultTimeout)
	if opts.OnCleanupFailure != nil {
		executor.OnCleanupFailure(opts.OnCleanupFailure)
	}

	s := &Sandbox{
		runtime:  runtime,
		caps:     caps,
		executor: executor,
		catalog:  NewCatalog(opts.Logger),
		logger:   opts.Logger,
		logs:     opts.LogStore,
		enabled:  allEnabled,
	}
	s.discoverer = NewDiscoverer(runtime, caps, storage, executor, opts.Logger,
		contract.NewHostInfo(opts.HostVersion), opts.DiscoveryConcurrency, opts.MaxMemoryPages)

	return s, nil
}

// Discover scans the plugin directory and publishes the result. It is used
// at boot and for every reload; the previous generation stays live until
// the new one is complete, and in-flight calls finish against it.
func (s *Sandbox) Discover(ctx context.Context) (*Report, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	report, err := s.discoverer.Discover(ctx)
	if err != nil {
		return nil, err
	}
	g := s.catalog.Publish(report)
	s.logger.Printf("Published plugin generation %d with %d plugin(s)", g.Number, len(g.Plugins))
	return report, nil
}

// Reload is Discover under its operational name.
func (s *Sandbox) Reload(ctx context.Context) (*Report, error) {
	return s.Discover(ctx)
}

// SetEnabledFunc installs the enablement policy. Nil enables everything.
func (s *Sandbox) SetEnabledFunc(fn EnabledFunc) {
	if fn == nil {
		fn = allEnabled
	}
	s.enableMu.Lock()
	s.enabled = fn
	s.enableMu.Unlock()
}

func (s *Sandbox) isEnabled(id string) bool {
	s.enableMu.RLock()
	fn := s.enabled
	s.enableMu.RUnlock()
	return fn(id)
}

// Generation returns the current generation, or nil before discovery.
func (s *Sandbox) Generation() *Generation {
	return s.catalog.Current()
}

// Plugins returns the plugins of the current generation in discovery order.
func (s *Sandbox) Plugins() []*Plugin {
	g := s.catalog.Current()
	if g == nil {
		return nil
	}
	out := make([]*Plugin, len(g.Plugins))
	copy(out, g.Plugins)
	return out
}

// Plugin returns a plugin of the current generation by id.
func (s *Sandbox) Plugin(id string) (*Plugin, bool) {
	g := s.catalog.Current()
	if g == nil {
		return nil, false
	}
	return g.Find(id)
}

// Menus returns the admin menus of every enabled plugin, in discovery order.
func (s *Sandbox) Menus() []MenuEntry {
	var entries []MenuEntry
	for _, p := range s.Plugins() {
		if !s.isEnabled(p.ID) {
			continue
		}
		for _, m := range p.Menus() {
			entries = append(entries, MenuEntry{PluginID: p.ID, Menu: m})
		}
	}
	return entries
}

// Select resolves a selector against the current generation.
func (s *Sandbox) Select(sel Selector, export string) (*Plugin, error) {
	g := s.catalog.Current()
	if g == nil {
		return nil, errors.ErrSandboxClosed
	}
	return sel.Select(g.Plugins, export, s.isEnabled)
}

// Invoke selects a plugin and calls export with raw input.
func (s *Sandbox) Invoke(ctx context.Context, sel Selector, export string, input []byte) (*Result, error) {
	g, release, err := s.catalog.Acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	p, err := sel.Select(g.Plugins, export, s.isEnabled)
	if err != nil {
		return nil, err
	}

	out, err := s.executor.Invoke(ctx, p, export, input)
	if err != nil {
		return &Result{PluginID: p.ID}, err
	}
	return &Result{PluginID: p.ID, Output: out}, nil
}

// InvokeJSON is Invoke with JSON encoded input and output.
func (s *Sandbox) InvokeJSON(ctx context.Context, sel Selector, export string, in, out interface{}) (string, error) {
	g, release, err := s.catalog.Acquire()
	if err != nil {
		return "", err
	}
	defer release()

	p, err := sel.Select(g.Plugins, export, s.isEnabled)
	if err != nil {
		return "", err
	}
	return p.ID, s.executor.InvokeJSON(ctx, p, export, in, out)
}

// Load runs the handler world.
func (s *Sandbox) Load(ctx context.Context, sel Selector, req contract.Request) (*contract.Response, string, error) {
	if err := req.Validate(); err != nil {
		return nil, "", errors.Wrap(errors.DomainInvocation, errors.CodeDecodeFailed, "Invalid request", err).
			WithExport(contract.ExportLoad)
	}

	var resp contract.Response
	pluginID, err := s.InvokeJSON(ctx, sel, contract.ExportLoad, req, &resp)
	if err != nil {
		return nil, pluginID, err
	}
	return &resp, pluginID, nil
}

// Close retires the plugins and releases the runtime.
func (s *Sandbox) Close(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	s.catalog.Close()
	return s.runtime.Close(ctx)
}
