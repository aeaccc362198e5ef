package sandbox

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ignitionstack/ember/pkg/contract"
	"github.com/ignitionstack/ember/pkg/engine/config"
	"github.com/ignitionstack/ember/pkg/engine/errors"
	"github.com/ignitionstack/ember/pkg/engine/logging"
	"github.com/ignitionstack/ember/pkg/manifest"
	"github.com/ignitionstack/ember/pkg/store"
)

// Report is the outcome of a discovery pass, in directory order.
type Report struct {
	Plugins    []*Plugin
	Bare       []BareModule
	Failures   []Failure
	Candidates int
	Duration   time.Duration
}

// Discoverer turns the plugin directory into plugin records.
type Discoverer struct {
	runtime     *Runtime
	caps        *CapabilityTable
	storage     store.Storage
	executor    *Executor
	logger      logging.Logger
	hostInfo    contract.HostInfo
	concurrency int
	memoryPages uint32
}

// NewDiscoverer creates a discoverer.
func NewDiscoverer(runtime *Runtime, caps *CapabilityTable, storage store.Storage, executor *Executor,
	logger logging.Logger, hostInfo contract.HostInfo, concurrency int, memoryPages uint32) *Discoverer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Discoverer{
		runtime:     runtime,
		caps:        caps,
		storage:     storage,
		executor:    executor,
		logger:      logger,
		hostInfo:    hostInfo,
		concurrency: concurrency,
		memoryPages: memoryPages,
	}
}

type examined struct {
	plugin  *Plugin
	bare    *BareModule
	failure *Failure
}

// Discover scans the directory. Individual candidates that fail are logged
// and left out; only an unreadable directory fails the pass.
func (d *Discoverer) Discover(ctx context.Context) (*Report, error) {
	start := time.Now()

	candidates, err := d.storage.List()
	if err != nil {
		return nil, errors.ErrDirectoryUnreadable.WithPath(d.storage.Dir()).WithCause(err)
	}

	results := make([]examined, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, c := range candidates {
		g.Go(func() error {
			results[i] = d.examine(gctx, c)
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{Candidates: len(candidates)}
	for _, r := range results {
		switch {
		case r.plugin != nil:
			report.Plugins = append(report.Plugins, r.plugin)
		case r.bare != nil:
			report.Bare = append(report.Bare, *r.bare)
		case r.failure != nil:
			report.Failures = append(report.Failures, *r.failure)
		}
	}
	report.Duration = time.Since(start)

	d.logger.Printf("Discovered %d plugin(s) in %s: %d candidate(s), %d bare, %d rejected",
		len(report.Plugins), d.storage.Dir(), report.Candidates, len(report.Bare), len(report.Failures))

	return report, nil
}

func (d *Discoverer) examine(ctx context.Context, c store.Candidate) examined {
	fail := func(err error) examined {
		d.logger.Errorf("Skipping plugin candidate %s: %v", c.Path, err)
		return examined{failure: &Failure{ID: c.ID, Path: c.Path, Err: err}}
	}

	data, err := d.storage.ReadWASMFile(c.Path)
	if err != nil {
		return fail(errors.Wrap(errors.DomainDiscovery, errors.CodeCompileFailed, "Failed to read module", err).
			WithPlugin(c.ID).WithPath(c.Path))
	}

	m, manifestPath, err := manifest.LoadSidecar(d.storage.Dir(), c.ID)
	if err != nil {
		return fail(errors.Wrap(errors.DomainDiscovery, errors.CodeInvalidManifest, "Invalid plugin manifest", err).
			WithPlugin(c.ID).WithPath(manifestPath))
	}

	pluginConfig := config.NewConfig(m.Plugin.Config).Merge(config.NewConfig(map[string]string{
		"ember.plugin_id":    c.ID,
		"ember.host_version": d.hostInfo.Version,
	}))

	memoryPages := m.Plugin.MemoryPages
	if memoryPages == 0 {
		memoryPages = d.memoryPages
	}

	module, err := d.runtime.Compile(ctx, c, data, d.caps, CompileOptions{
		MemoryPages: memoryPages,
		TimeoutMs:   uint64(m.TimeoutOr(d.executor.defaultTimeout).Milliseconds()),
		Config:      pluginConfig,
	})
	if err != nil {
		return fail(err)
	}

	if !module.HasExport(contract.ExportRegister) {
		bare := &BareModule{ID: c.ID, Path: c.Path, Digest: module.Digest, Exports: module.Exports()}
		_ = module.Close(ctx)
		d.logger.Printf("Module %s exports no %q function and contributes nothing", c.Path, contract.ExportRegister)
		return examined{bare: bare}
	}

	plugin := &Plugin{
		ID:           c.ID,
		Path:         c.Path,
		Module:       module,
		Manifest:     m,
		Config:       pluginConfig,
		DiscoveredAt: time.Now(),
	}

	if err := d.register(ctx, plugin); err != nil {
		_ = module.Close(ctx)
		return fail(err)
	}

	d.logger.Printf("Registered plugin %s (%s %s, %s ABI, %d menu(s))",
		plugin.ID, plugin.Info.Name, plugin.Info.Version, module.ABI, len(plugin.Menus()))
	return examined{plugin: plugin}
}

// register runs the plugin world once and, when present, the management world.
func (d *Discoverer) register(ctx context.Context, p *Plugin) error {
	var info contract.PluginInfo
	if err := d.executor.InvokeJSON(ctx, p, contract.ExportRegister, d.hostInfo, &info); err != nil {
		return errors.Wrap(errors.DomainDiscovery, errors.CodeRegistrationFailed, "Registration call failed", err).
			WithPlugin(p.ID).WithPath(p.Path)
	}
	if err := info.Validate(); err != nil {
		return errors.Wrap(errors.DomainDiscovery, errors.CodeInvalidMetadata, "Plugin returned invalid metadata", err).
			WithPlugin(p.ID).WithPath(p.Path)
	}
	p.Info = info

	if !p.Implements(contract.ExportMenus) {
		return nil
	}

	var menus []contract.Menu
	if err := d.executor.InvokeJSON(ctx, p, contract.ExportMenus, d.hostInfo, &menus); err != nil {
		return errors.Wrap(errors.DomainDiscovery, errors.CodeRegistrationFailed, "Management world call failed", err).
			WithPlugin(p.ID).WithPath(p.Path)
	}
	if err := contract.ValidateMenus(menus); err != nil {
		return errors.Wrap(errors.DomainDiscovery, errors.CodeInvalidMetadata, "Plugin returned invalid menus", err).
			WithPlugin(p.ID).WithPath(p.Path)
	}
	p.ExtraMenus = menus
	return nil
}
