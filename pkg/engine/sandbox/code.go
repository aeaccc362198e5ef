package sandbox

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero"
)

// codeCache shares compiled code between modules with identical bytes.
// wazero keeps one engine entry per module content, and closing any
// CompiledModule of that content evicts it for every holder. The code is
// closed only when the last module referencing the digest lets go.
type codeCache struct {
	mu      sync.Mutex
	entries map[string]*codeEntry
}

type codeEntry struct {
	refs     int
	ready    chan struct{}
	compiled wazero.CompiledModule
	err      error
}

func newCodeCache() *codeCache {
	return &codeCache{entries: make(map[string]*codeEntry)}
}

// acquire returns the compiled code for digest, compiling data on first use.
// The release function must be called exactly once; extra calls are no-ops.
func (c *codeCache) acquire(ctx context.Context, rt wazero.Runtime, digest string, data []byte) (wazero.CompiledModule, func(context.Context) error, error) {
	c.mu.Lock()
	e, ok := c.entries[digest]
	if ok {
		e.refs++
		c.mu.Unlock()
		<-e.ready
	} else {
		e = &codeEntry{refs: 1, ready: make(chan struct{})}
		c.entries[digest] = e
		c.mu.Unlock()

		e.compiled, e.err = rt.CompileModule(ctx, data)
		close(e.ready)
	}

	if e.err != nil {
		err := e.err
		_ = c.release(ctx, digest, e)
		return nil, nil, err
	}

	var once sync.Once
	release := func(ctx context.Context) error {
		var err error
		once.Do(func() { err = c.release(ctx, digest, e) })
		return err
	}
	return e.compiled, release, nil
}

// release drops one reference. The close runs under the lock: an acquire
// for the same bytes must not see the entry being evicted.
func (c *codeCache) release(ctx context.Context, digest string, e *codeEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e.refs--
	if e.refs > 0 {
		return nil
	}
	if c.entries[digest] == e {
		delete(c.entries, digest)
	}
	if e.compiled == nil {
		return nil
	}
	return e.compiled.Close(ctx)
}

// live reports how many distinct compiled contents are held.
func (c *codeCache) live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
