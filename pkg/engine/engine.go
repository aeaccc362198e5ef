package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ignitionstack/ember/internal/repository"
	"github.com/ignitionstack/ember/pkg/contract"
	"github.com/ignitionstack/ember/pkg/engine/components"
	"github.com/ignitionstack/ember/pkg/engine/config"
	"github.com/ignitionstack/ember/pkg/engine/errors"
	"github.com/ignitionstack/ember/pkg/engine/logging"
	"github.com/ignitionstack/ember/pkg/engine/metrics"
	"github.com/ignitionstack/ember/pkg/engine/resource"
	"github.com/ignitionstack/ember/pkg/engine/sandbox"
	"github.com/ignitionstack/ember/pkg/engine/state"
	"github.com/ignitionstack/ember/pkg/store"
	"github.com/ignitionstack/ember/pkg/types"
)

// Alias logging levels for callers that only import engine
const (
	LevelInfo    = logging.LevelInfo
	LevelWarning = logging.LevelWarning
	LevelError   = logging.LevelError
	LevelDebug   = logging.LevelDebug
)

// Options configures an Engine.
type Options struct {
	HostVersion  string
	Engine       config.EngineConfig
	Logger       logging.Logger
	Capabilities []sandbox.Capability

	// State database; an in-memory one is opened when nil
	StateRepo repository.DBRepository

	// Metrics collectors; a fresh set is created when nil
	Metrics *metrics.Metrics
}

// Engine is the host service around the sandbox: it adds persisted
// enablement, per-plugin circuit breakers, concurrency limits, metrics and
// the plugin log store.
type Engine struct {
	sandbox     *sandbox.Sandbox
	state       *state.Store
	breakers    *components.BreakerSet
	limits      *resource.Manager
	metrics     *metrics.Metrics
	logStore    *logging.PluginLogStore
	logger      logging.Logger
	hostVersion string
	startedAt   time.Time
	initialized atomic.Bool
}

// NewEngine builds the sandbox and the services around it. Call Start (or
// Reload) to run discovery.
func NewEngine(ctx context.Context, storage store.Storage, opts Options) (*Engine, error) {
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}

	stateRepo := opts.StateRepo
	if stateRepo == nil {
		var err error
		if stateRepo, err = repository.OpenInMemory(); err != nil {
			return nil, errors.Wrap(errors.DomainBoot, errors.CodeStateStoreFailed, "Failed to open plugin state", err)
		}
	}
	stateStore, err := state.NewStore(stateRepo)
	if err != nil {
		_ = stateRepo.Close()
		return nil, err
	}

	e := &Engine{
		state: stateStore,
		breakers: components.NewBreakerSet(
			opts.Engine.CircuitBreaker.FailureThreshold,
			opts.Engine.CircuitBreaker.ResetTimeout,
		),
		limits: resource.NewManager(resource.Limits{
			MaxConcurrentCalls: opts.Engine.MaxConcurrentCalls,
			MaxCallsPerPlugin:  opts.Engine.MaxCallsPerPlugin,
		}, opts.Logger),
		metrics:     opts.Metrics,
		logStore:    logging.NewPluginLogStore(opts.Engine.LogStoreCapacity),
		logger:      opts.Logger,
		hostVersion: opts.HostVersion,
		startedAt:   time.Now(),
	}

	sb, err := sandbox.New(ctx, storage, sandbox.Options{
		HostVersion:          opts.HostVersion,
		DefaultTimeout:       opts.Engine.DefaultTimeout,
		MaxMemoryPages:       opts.Engine.MaxMemoryPages,
		CompilationCacheDir:  opts.Engine.CompilationCacheDir,
		DiscoveryConcurrency: opts.Engine.DiscoveryConcurrency,
		Capabilities:         opts.Capabilities,
		Logger:               opts.Logger,
		LogStore:             e.logStore,
		OnCleanupFailure:     e.onCleanupFailure,
	})
	if err != nil {
		_ = stateStore.Close()
		return nil, err
	}
	sb.SetEnabledFunc(stateStore.IsEnabled)

	e.sandbox = sb
	e.initialized.Store(true)
	return e, nil
}

// Start runs the first discovery pass.
func (e *Engine) Start(ctx context.Context) (*sandbox.Report, error) {
	return e.Reload(ctx)
}

// Reload rediscovers the plugin directory and publishes a new generation.
// When discovery fails the current generation keeps serving.
func (e *Engine) Reload(ctx context.Context) (*sandbox.Report, error) {
	if !e.initialized.Load() {
		return nil, ErrEngineNotInitialized
	}

	report, err := e.sandbox.Reload(ctx)
	if err != nil {
		e.logger.Errorf("Discovery failed, keeping the current generation: %v", err)
		return nil, err
	}

	if err := e.state.Sync(observations(report)); err != nil {
		e.logger.Errorf("Failed to record plugin state: %v", err)
	}

	for _, p := range report.Plugins {
		e.breakers.Forget(p.ID)
		e.logStore.AddLog(p.ID, LevelInfo,
			fmt.Sprintf("Registered %s %s (digest %s)", p.Info.Name, p.Info.Version, store.TruncateDigest(p.Module.Digest, 12)))
	}
	for _, b := range report.Bare {
		e.logStore.AddLog(b.ID, LevelWarning, "Module implements no plugin world and was not registered")
	}
	for _, f := range report.Failures {
		e.logger.Warnf("Rejected plugin candidate %s: %v", f.Path, f.Err)
		e.logStore.AddLog(f.ID, LevelError, fmt.Sprintf("Discovery failed: %v", f.Err))
	}

	var generation uint64
	if g := e.sandbox.Generation(); g != nil {
		generation = g.Number
	}
	e.metrics.RecordDiscovery(generation, len(report.Plugins), len(report.Bare), len(report.Failures), report.Duration)

	return report, nil
}

func observations(report *sandbox.Report) []state.Observation {
	obs := make([]state.Observation, 0, len(report.Plugins)+len(report.Bare)+len(report.Failures))
	for _, p := range report.Plugins {
		obs = append(obs, state.Observation{
			ID:             p.ID,
			Path:           p.Path,
			Digest:         p.Module.Digest,
			Name:           p.Info.Name,
			Version:        p.Info.Version,
			Status:         state.StatusLoaded,
			DefaultEnabled: p.Manifest == nil || !p.Manifest.Plugin.Disabled,
		})
	}
	for _, b := range report.Bare {
		obs = append(obs, state.Observation{
			ID: b.ID, Path: b.Path, Digest: b.Digest, Status: state.StatusBare, DefaultEnabled: true,
		})
	}
	for _, f := range report.Failures {
		obs = append(obs, state.Observation{
			ID: f.ID, Path: f.Path, Status: state.StatusFailed, Err: f.Err.Error(), DefaultEnabled: true,
		})
	}
	return obs
}

// Load runs the handler world of the selected plugin.
func (e *Engine) Load(ctx context.Context, sel sandbox.Selector, req contract.Request) (*contract.Response, string, error) {
	var resp *contract.Response
	pluginID, err := e.guarded(ctx, sel, contract.ExportLoad, func(ctx context.Context, id string) error {
		var err error
		resp, _, err = e.sandbox.Load(ctx, sandbox.ByID(id), req)
		return err
	})
	return resp, pluginID, err
}

// Call invokes an arbitrary export of a plugin with raw input.
func (e *Engine) Call(ctx context.Context, pluginID, export string, input []byte) ([]byte, error) {
	var out []byte
	_, err := e.guarded(ctx, sandbox.ByID(pluginID), export, func(ctx context.Context, id string) error {
		res, err := e.sandbox.Invoke(ctx, sandbox.ByID(id), export, input)
		if res != nil {
			out = res.Output
		}
		return err
	})
	return out, err
}

// guarded resolves the selector, then runs call behind the plugin's circuit
// breaker and execution slots, recording the outcome.
func (e *Engine) guarded(ctx context.Context, sel sandbox.Selector, export string, call func(context.Context, string) error) (string, error) {
	if !e.initialized.Load() {
		return "", ErrEngineNotInitialized
	}

	p, err := e.sandbox.Select(sel, export)
	if err != nil {
		return "", err
	}
	id := p.ID

	cb := e.breakers.Get(id)
	if err := cb.Allow(); err != nil {
		e.metrics.RecordInvocation(id, export, metrics.OutcomeRejected, 0)
		e.logStore.AddLog(id, LevelError, fmt.Sprintf("Call to %s rejected: circuit breaker is open", export))
		return id, errors.ErrCircuitOpen.WithPlugin(id).WithExport(export)
	}

	release, err := e.limits.Acquire(ctx, id)
	if err != nil {
		cb.Abandon()
		e.metrics.RecordInvocation(id, export, metrics.OutcomeRejected, 0)
		return id, err
	}
	defer release()

	e.metrics.InFlight.Inc()
	start := time.Now()
	err = call(ctx, id)
	elapsed := time.Since(start)
	e.metrics.InFlight.Dec()

	switch {
	case err == nil:
		cb.RecordSuccess()
		e.metrics.RecordInvocation(id, export, metrics.OutcomeSuccess, elapsed)
		e.logStore.AddLog(id, LevelDebug, fmt.Sprintf("%s completed in %v", export, elapsed))
	case errors.IsTimeout(err):
		e.recordFailure(cb, id, export, err)
		e.metrics.RecordInvocation(id, export, metrics.OutcomeTimeout, elapsed)
	case errors.IsTrap(err):
		e.recordFailure(cb, id, export, err)
		e.metrics.RecordInvocation(id, export, metrics.OutcomeError, elapsed)
	default:
		// missing export, bad request
		cb.Abandon()
		e.metrics.RecordInvocation(id, export, metrics.OutcomeError, elapsed)
		e.logStore.AddLog(id, LevelError, fmt.Sprintf("%s failed: %v", export, err))
	}

	return id, err
}

func (e *Engine) recordFailure(cb *components.CircuitBreaker, id, export string, err error) {
	e.logStore.AddLog(id, LevelError, fmt.Sprintf("%s failed: %v", export, err))
	if cb.RecordFailure() {
		msg := fmt.Sprintf("Circuit breaker opened for plugin %s", id)
		e.logger.Warnf("%s", msg)
		e.logStore.AddLog(id, LevelError, msg)
	}
}

func (e *Engine) onCleanupFailure(pluginID, export string, err error) {
	e.metrics.RecordCleanupFailure(pluginID, export)
	e.logger.Warnf("Cleanup after %s.%s failed: %v", pluginID, export, err)
}

// Menus returns the admin menus of enabled plugins in discovery order.
func (e *Engine) Menus() []sandbox.MenuEntry {
	return e.sandbox.Menus()
}

// Plugins returns every known plugin id, live or not, ordered by id.
func (e *Engine) Plugins() ([]types.PluginStatus, error) {
	records, err := e.state.List()
	if err != nil {
		return nil, err
	}

	circuits := e.breakers.States()
	out := make([]types.PluginStatus, 0, len(records))
	for _, r := range records {
		ps := types.PluginStatus{
			ID:        r.ID,
			Name:      r.Name,
			Version:   r.Version,
			Digest:    r.Digest,
			Path:      r.Path,
			Enabled:   r.Enabled,
			Status:    string(r.Status),
			LastError: r.LastError,
			FirstSeen: r.FirstSeen,
			LastSeen:  r.LastSeen,
		}
		if p, ok := e.sandbox.Plugin(r.ID); ok {
			ps.Live = true
			ps.Routes = p.Routes()
			ps.Menus = len(p.Menus())
			ps.Circuit = components.StateClosed.String()
		}
		if s, ok := circuits[r.ID]; ok && ps.Live {
			ps.Circuit = s.String()
		}
		out = append(out, ps)
	}
	return out, nil
}

// SetEnabled enables or disables a plugin. The change applies to the next
// selection; calls already running are not interrupted.
func (e *Engine) SetEnabled(pluginID string, enabled bool) (*state.PluginRecord, error) {
	record, err := e.state.SetEnabled(pluginID, enabled)
	if err != nil {
		return nil, err
	}
	verb := "disabled"
	if enabled {
		verb = "enabled"
		e.breakers.Forget(pluginID)
	}
	e.logger.Printf("Plugin %s %s", pluginID, verb)
	e.logStore.AddLog(pluginID, LevelInfo, "Plugin "+verb)
	return record, nil
}

// Logs returns rendered log lines of a plugin.
func (e *Engine) Logs(pluginID string, since time.Time, tail int) []string {
	return e.logStore.GetLogs(pluginID, since, tail)
}

// Status returns the current generation summary.
func (e *Engine) Status() types.StatusResponse {
	s := types.StatusResponse{
		HostVersion: e.hostVersion,
		Protocol:    contract.Protocol,
		StartedAt:   e.startedAt,
		InFlight:    e.limits.InUse(),
	}
	if g := e.sandbox.Generation(); g != nil {
		s.Generation = g.Number
		s.Plugins = len(g.Plugins)
		s.LoadedAt = g.LoadedAt
		if g.Report != nil {
			s.Bare = len(g.Report.Bare)
			s.Failures = len(g.Report.Failures)
		}
	}
	return s
}

// Metrics returns the engine's collectors.
func (e *Engine) Metrics() *metrics.Metrics {
	return e.metrics
}

// Close releases the sandbox and the state database.
func (e *Engine) Close(ctx context.Context) error {
	if !e.initialized.CompareAndSwap(true, false) {
		return nil
	}
	sbErr := e.sandbox.Close(ctx)
	stErr := e.state.Close()
	if sbErr != nil {
		return sbErr
	}
	return stErr
}
