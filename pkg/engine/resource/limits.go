package resource

import (
	"context"
	"sync"

	"github.com/ignitionstack/ember/pkg/engine/errors"
	"github.com/ignitionstack/ember/pkg/engine/logging"
)

// Limits bounds how many plugin calls may run at once.
type Limits struct {
	// Maximum concurrent calls across all plugins
	MaxConcurrentCalls int

	// Maximum concurrent calls into a single plugin
	MaxCallsPerPlugin int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxConcurrentCalls: 100,
		MaxCallsPerPlugin:  10,
	}
}

// Manager hands out execution slots. A call holds one global slot and one
// slot of its plugin for its whole duration.
type Manager struct {
	limits       Limits
	logger       logging.Logger
	executionSem chan struct{}
	pluginSems   map[string]chan struct{}
	pluginSemMu  sync.Mutex
}

// NewManager creates a resource manager with the specified limits.
func NewManager(limits Limits, logger logging.Logger) *Manager {
	defaults := DefaultLimits()
	if limits.MaxConcurrentCalls <= 0 {
		limits.MaxConcurrentCalls = defaults.MaxConcurrentCalls
	}
	if limits.MaxCallsPerPlugin <= 0 {
		limits.MaxCallsPerPlugin = defaults.MaxCallsPerPlugin
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Manager{
		limits:       limits,
		logger:       logger,
		executionSem: make(chan struct{}, limits.MaxConcurrentCalls),
		pluginSems:   make(map[string]chan struct{}),
	}
}

// Limits returns the configured limits.
func (rm *Manager) Limits() Limits {
	return rm.limits
}

// Acquire waits for a global and a per-plugin slot. When ctx ends first it
// returns a capacity_exhausted error wrapping the context error. The
// returned release func must be called exactly once.
func (rm *Manager) Acquire(ctx context.Context, pluginID string) (func(), error) {
	select {
	case rm.executionSem <- struct{}{}:
	case <-ctx.Done():
		return nil, capacityError(pluginID, "No global execution slot available", ctx.Err())
	}

	sem := rm.pluginSemaphore(pluginID)
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		rm.releaseGlobal()
		return nil, capacityError(pluginID, "No execution slot available for plugin", ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			rm.releasePlugin(pluginID, sem)
			rm.releaseGlobal()
		})
	}, nil
}

// InUse returns the number of global slots currently held.
func (rm *Manager) InUse() int {
	return len(rm.executionSem)
}

// Forget drops the semaphore of a plugin that has no calls in flight.
func (rm *Manager) Forget(pluginID string) {
	rm.pluginSemMu.Lock()
	defer rm.pluginSemMu.Unlock()

	if sem, ok := rm.pluginSems[pluginID]; ok && len(sem) == 0 {
		delete(rm.pluginSems, pluginID)
	}
}

func (rm *Manager) releaseGlobal() {
	select {
	case <-rm.executionSem:
	default:
		rm.logger.Warnf("Attempted to release an execution slot that wasn't acquired")
	}
}

func (rm *Manager) releasePlugin(pluginID string, sem chan struct{}) {
	select {
	case <-sem:
	default:
		rm.logger.Warnf("Attempted to release an execution slot that wasn't acquired: %s", pluginID)
	}
}

func (rm *Manager) pluginSemaphore(pluginID string) chan struct{} {
	rm.pluginSemMu.Lock()
	defer rm.pluginSemMu.Unlock()

	sem, exists := rm.pluginSems[pluginID]
	if !exists {
		sem = make(chan struct{}, rm.limits.MaxCallsPerPlugin)
		rm.pluginSems[pluginID] = sem
	}
	return sem
}

func capacityError(pluginID, msg string, cause error) error {
	return errors.Wrap(errors.DomainInvocation, errors.CodeCapacityExhausted, msg, cause).WithPlugin(pluginID)
}
