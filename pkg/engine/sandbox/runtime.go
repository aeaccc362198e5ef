// Package sandbox loads untrusted WebAssembly plugins and runs each call in
// its own short-lived instance.
package sandbox

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/ignitionstack/ember/pkg/engine/errors"
)

// RuntimeOptions configures the process-wide runtime.
type RuntimeOptions struct {
	// MemoryLimitPages caps guest linear memory. Zero keeps the wazero default.
	MemoryLimitPages uint32

	// CompilationCacheDir persists compiled code across restarts when set.
	CompilationCacheDir string
}

// Runtime owns the compiled-code environment shared by every plugin.
// It is created once and outlives every module compiled against it.
type Runtime struct {
	rt     wazero.Runtime
	config wazero.RuntimeConfig
	cache  wazero.CompilationCache
	code   *codeCache
}

// NewRuntime builds the runtime. Calls honour context cancellation: a
// finished context closes the guest instance, which interrupts it.
func NewRuntime(ctx context.Context, opts RuntimeOptions) (*Runtime, error) {
	var (
		cache wazero.CompilationCache
		err   error
	)
	if opts.CompilationCacheDir != "" {
		cache, err = wazero.NewCompilationCacheWithDir(opts.CompilationCacheDir)
		if err != nil {
			return nil, errors.ErrRuntimeInit.WithCause(fmt.Errorf("compilation cache: %w", err))
		}
	} else {
		cache = wazero.NewCompilationCache()
	}

	cfg := wazero.NewRuntimeConfig().
		WithCompilationCache(cache).
		WithCloseOnContextDone(true)
	if opts.MemoryLimitPages > 0 {
		cfg = cfg.WithMemoryLimitPages(opts.MemoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, cfg)

	// stdio only: no preopened directories, env, args or sockets are
	// configured on guest module configs.
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		_ = cache.Close(ctx)
		return nil, errors.ErrRuntimeInit.WithCause(fmt.Errorf("wasi: %w", err))
	}

	return &Runtime{rt: rt, config: cfg, cache: cache, code: newCodeCache()}, nil
}

// Close releases the runtime and everything compiled with it.
func (r *Runtime) Close(ctx context.Context) error {
	err := r.rt.Close(ctx)
	if cerr := r.cache.Close(ctx); err == nil {
		err = cerr
	}
	return err
}
