package sandbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ignitionstack/ember/pkg/engine/errors"
	"github.com/ignitionstack/ember/pkg/engine/logging"
	"github.com/ignitionstack/ember/pkg/engine/utils"
)

// CleanupFailureFunc is told about cleanup hooks that failed after a
// successful call.
type CleanupFailureFunc func(pluginID, export string, err error)

// Executor runs one export call in full isolation: fresh run state, fresh
// instance, call, cleanup hook, release.
type Executor struct {
	runtime        *Runtime
	logs           *logging.PluginLogStore
	logger         logging.Logger
	defaultTimeout time.Duration
	onCleanup      CleanupFailureFunc
}

// NewExecutor creates an executor over a runtime.
func NewExecutor(runtime *Runtime, logs *logging.PluginLogStore, logger logging.Logger, defaultTimeout time.Duration) *Executor {
	if defaultTimeout <= 0 {
		defaultTimeout = 5 * time.Second
	}
	return &Executor{
		runtime:        runtime,
		logs:           logs,
		logger:         logger,
		defaultTimeout: defaultTimeout,
	}
}

// OnCleanupFailure sets a callback for failed cleanup hooks.
func (e *Executor) OnCleanupFailure(fn CleanupFailureFunc) {
	e.onCleanup = fn
}

// Invoke calls export on a new instance of the plugin with raw input bytes.
func (e *Executor) Invoke(ctx context.Context, p *Plugin, export string, input []byte) (out []byte, err error) {
	ctx, cancel := context.WithTimeout(ctx, p.Manifest.TimeoutOr(e.defaultTimeout))
	defer cancel()

	rs := newRunState(p.ID, export, p.Config, e.logs, e.logger)
	ctx = WithRunState(ctx, rs)
	defer func() {
		if cerr := rs.Close(context.Background()); cerr != nil {
			e.logger.Errorf("Failed to release run state %s of plugin %s: %v", rs.ID, p.ID, cerr)
		}
	}()

	inst, err := p.Module.instantiate(ctx, e.runtime, rs)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.FromContext(ctx).WithPlugin(p.ID).WithExport(export)
		}
		return nil, errors.Wrap(errors.DomainInvocation, errors.CodeInstantiateFailed, "Failed to instantiate plugin", err).
			WithPlugin(p.ID).WithExport(export)
	}
	if err := rs.Track("instance", inst.Close); err != nil {
		_ = inst.Close(context.Background())
		return nil, err
	}

	rs.enter()
	out, err = utils.ExecuteWithContext(ctx, func() ([]byte, error) {
		defer rs.exit()
		return inst.Call(ctx, export, input)
	})
	if err != nil {
		return nil, withPlugin(err, p.ID, export)
	}

	if err := inst.PostReturn(ctx, export); err != nil {
		if errors.IsTimeout(err) {
			return nil, withPlugin(err, p.ID, export)
		}
		e.logger.Errorf("Cleanup hook of %s.%s failed: %v", p.ID, export, err)
		rs.Log(logging.SourceHost, logging.LevelError, "cleanup hook failed: "+err.Error())
		if e.onCleanup != nil {
			e.onCleanup(p.ID, export, err)
		}
	}

	return out, nil
}

// InvokeJSON encodes in, invokes export and decodes the result into out.
func (e *Executor) InvokeJSON(ctx context.Context, p *Plugin, export string, in, out interface{}) error {
	input, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(errors.DomainInvocation, errors.CodeDecodeFailed, "Failed to encode input", err).
			WithPlugin(p.ID).WithExport(export)
	}

	raw, err := e.Invoke(ctx, p, export, input)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrap(errors.DomainInvocation, errors.CodeDecodeFailed, "Plugin returned malformed JSON", err).
			WithPlugin(p.ID).WithExport(export)
	}
	return nil
}

func withPlugin(err error, pluginID, export string) error {
	de, ok := errors.As(err)
	if !ok {
		return errors.Wrap(errors.DomainInvocation, errors.CodeGuestTrap, "Plugin call failed", err).
			WithPlugin(pluginID).WithExport(export)
	}
	de = de.WithPlugin(pluginID)
	if de.Export == "" {
		de = de.WithExport(export)
	}
	return de
}
