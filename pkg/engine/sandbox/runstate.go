package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ignitionstack/ember/pkg/engine/config"
	"github.com/ignitionstack/ember/pkg/engine/logging"
)

var instanceCounter atomic.Uint64

// RunState is the per-invocation context: captured guest output and the
// resources opened for the call. It is created for exactly one call and
// everything it tracks is released by Close.
type RunState struct {
	ID       string
	PluginID string
	Export   string
	Config   config.ImmutableConfig

	Stdout *lockedBuffer
	Stderr *lockedBuffer

	logs   *logging.PluginLogStore
	logger logging.Logger

	mu        sync.Mutex
	resources []resource
	closed    bool
	busy      sync.WaitGroup
}

type resource struct {
	name  string
	close func(context.Context) error
}

func newRunState(pluginID, export string, cfg config.ImmutableConfig, logs *logging.PluginLogStore, logger logging.Logger) *RunState {
	return &RunState{
		ID:       uuid.NewString(),
		PluginID: pluginID,
		Export:   export,
		Config:   cfg,
		Stdout:   &lockedBuffer{},
		Stderr:   &lockedBuffer{},
		logs:     logs,
		logger:   logger,
	}
}

// instanceName is unique across the runtime so concurrent instances of the
// same module never collide.
func (rs *RunState) instanceName() string {
	return rs.PluginID + "#" + strconv.FormatUint(instanceCounter.Add(1), 10)
}

// Track registers a resource to release when the run state closes.
// Resources are released in reverse order.
func (rs *RunState) Track(name string, closeFn func(context.Context) error) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.closed {
		return fmt.Errorf("run state %s is closed", rs.ID)
	}
	rs.resources = append(rs.resources, resource{name: name, close: closeFn})
	return nil
}

// Tracked returns the number of live resources.
func (rs *RunState) Tracked() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.resources)
}

// Log records a guest or host message against the plugin.
func (rs *RunState) Log(source logging.Source, level logging.LogLevel, message string) {
	if rs.logs != nil {
		rs.logs.Add(rs.PluginID, logging.PluginLogEntry{Level: level, Source: source, Message: message})
	}
	if rs.logger != nil {
		rs.logger.Debugf("plugin %s [%s] %s", rs.PluginID, source, message)
	}
}

// enter marks a guest call in progress; Close waits for it to leave.
func (rs *RunState) enter() { rs.busy.Add(1) }
func (rs *RunState) exit()  { rs.busy.Done() }

// Close waits for the guest call to unwind, releases every tracked resource
// and flushes captured output to the plugin log store. It is idempotent.
func (rs *RunState) Close(ctx context.Context) error {
	rs.busy.Wait()

	rs.mu.Lock()
	if rs.closed {
		rs.mu.Unlock()
		return nil
	}
	rs.closed = true
	resources := rs.resources
	rs.resources = nil
	rs.mu.Unlock()

	var errs []error
	for i := len(resources) - 1; i >= 0; i-- {
		if err := resources[i].close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", resources[i].name, err))
		}
	}

	if rs.logs != nil {
		rs.logs.AddOutput(rs.PluginID, logging.SourceStdout, rs.Stdout.Bytes())
		rs.logs.AddOutput(rs.PluginID, logging.SourceStderr, rs.Stderr.Bytes())
	}

	return errors.Join(errs...)
}

type runStateKey struct{}

// WithRunState attaches the run state to ctx so host functions can find it.
func WithRunState(ctx context.Context, rs *RunState) context.Context {
	return context.WithValue(ctx, runStateKey{}, rs)
}

// RunStateFrom returns the run state of the current call.
func RunStateFrom(ctx context.Context) (*RunState, bool) {
	rs, ok := ctx.Value(runStateKey{}).(*RunState)
	return rs, ok
}

// lockedBuffer is a bytes.Buffer safe for the guest writer and the host reader.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, b.buf.Len())
	copy(out, b.buf.Bytes())
	return out
}

func (b *lockedBuffer) String() string {
	return string(b.Bytes())
}
