package sandbox

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignitionstack/ember/pkg/engine/errors"
	"github.com/ignitionstack/ember/pkg/engine/logging"
)

// Generation is the immutable result of one discovery pass. Calls hold a
// reference on the generation they selected from, so a reload never pulls
// compiled code from under an in-flight call.
type Generation struct {
	Number   uint64
	Plugins  []*Plugin
	Report   *Report
	LoadedAt time.Time

	refs      atomic.Int64
	closeOnce sync.Once
	logger    logging.Logger
}

func newGeneration(number uint64, report *Report, logger logging.Logger) *Generation {
	g := &Generation{
		Number:   number,
		Plugins:  report.Plugins,
		Report:   report,
		LoadedAt: time.Now(),
		logger:   logger,
	}
	g.refs.Store(1)
	return g
}

// Find returns a plugin by id.
func (g *Generation) Find(id string) (*Plugin, bool) {
	for _, p := range g.Plugins {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

func (g *Generation) tryAcquire() bool {
	for {
		n := g.refs.Load()
		if n <= 0 {
			return false
		}
		if g.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (g *Generation) release() {
	if g.refs.Add(-1) == 0 {
		g.closeOnce.Do(func() {
			ctx := context.Background()
			for _, p := range g.Plugins {
				if err := p.Module.Close(ctx); err != nil {
					g.logger.Errorf("Failed to close module %s: %v", p.ID, err)
				}
			}
			g.logger.Debugf("Generation %d released", g.Number)
		})
	}
}

// Catalog publishes the current generation.
type Catalog struct {
	current atomic.Pointer[Generation]
	number  atomic.Uint64
	logger  logging.Logger
}

// NewCatalog creates an empty catalog.
func NewCatalog(logger logging.Logger) *Catalog {
	return &Catalog{logger: logger}
}

// Acquire returns the current generation and a release function the caller
// must call when done with it.
func (c *Catalog) Acquire() (*Generation, func(), error) {
	for {
		g := c.current.Load()
		if g == nil {
			return nil, nil, errors.ErrSandboxClosed
		}
		if g.tryAcquire() {
			return g, g.release, nil
		}
		// g was retired between Load and tryAcquire; the swap has already
		// published its successor.
	}
}

// Current returns the published generation without taking a reference.
// Only metadata may be read from it.
func (c *Catalog) Current() *Generation {
	return c.current.Load()
}

// Publish atomically replaces the current generation. The previous one is
// closed once its last in-flight call finishes.
func (c *Catalog) Publish(report *Report) *Generation {
	g := newGeneration(c.number.Add(1), report, c.logger)
	if old := c.current.Swap(g); old != nil {
		old.release()
	}
	return g
}

// Close retires the current generation.
func (c *Catalog) Close() {
	if old := c.current.Swap(nil); old != nil {
		old.release()
	}
}
