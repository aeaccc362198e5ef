package sandbox

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignitionstack/ember/internal/testutil/wasmfixture"
	"github.com/ignitionstack/ember/pkg/contract"
	"github.com/ignitionstack/ember/pkg/engine/errors"
	"github.com/ignitionstack/ember/pkg/engine/logging"
	"github.com/ignitionstack/ember/pkg/store"
)

type harness struct {
	dir     string
	sandbox *Sandbox
	logs    *logging.PluginLogStore
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	dir := t.TempDir()
	logs := logging.NewPluginLogStore(100)

	opts.LogStore = logs
	if opts.DefaultTimeout == 0 {
		opts.DefaultTimeout = 5 * time.Second
	}
	if opts.HostVersion == "" {
		opts.HostVersion = "test"
	}

	s, err := New(context.Background(), store.NewLocalStorage(dir), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	return &harness{dir: dir, sandbox: s, logs: logs}
}

func (h *harness) write(t *testing.T, name string, m *wasmfixture.Module) {
	t.Helper()
	_, err := m.WriteFile(h.dir, name)
	require.NoError(t, err)
}

func (h *harness) writeRaw(t *testing.T, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(h.dir, name), data, 0o644))
}

func (h *harness) requireLoad(t *testing.T, id string, want contract.Response) {
	t.Helper()
	resp, pluginID, err := h.sandbox.Load(context.Background(), ByID(id), contract.Request{URL: "/"})
	require.NoError(t, err)
	assert.Equal(t, id, pluginID)
	assert.Equal(t, want, *resp)
}

func (h *harness) discover(t *testing.T) *Report {
	t.Helper()
	report, err := h.sandbox.Discover(context.Background())
	require.NoError(t, err)
	return report
}

func TestGoodAndBadScenario(t *testing.T) {
	h := newHarness(t, Options{})
	h.write(t, "good.wasm", wasmfixture.Demo())
	h.writeRaw(t, "bad.wasm", wasmfixture.Garbage())

	report := h.discover(t)
	require.Len(t, report.Plugins, 1)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, 2, report.Candidates)
	assert.Equal(t, "bad", report.Failures[0].ID)
	assert.True(t, errors.Is(report.Failures[0].Err, errors.DomainDiscovery, errors.CodeCompileFailed))

	p := report.Plugins[0]
	assert.Equal(t, "good", p.ID)
	assert.Equal(t, "demo", p.Info.Name)
	assert.Equal(t, ABINative, p.Module.ABI)

	resp, pluginID, err := h.sandbox.Load(context.Background(), First(), contract.Request{URL: "/admin/editor", Query: ""})
	require.NoError(t, err)
	assert.Equal(t, "good", pluginID)
	assert.NotEmpty(t, resp.Body)
	assert.Equal(t, wasmfixture.DemoResponse(), *resp)

	menus := h.sandbox.Menus()
	require.Len(t, menus, 1)
	assert.Equal(t, MenuEntry{PluginID: "good", Menu: contract.Menu{Path: "/", Name: "Demo"}}, menus[0])
}

func TestInvalidCandidatesAreExcluded(t *testing.T) {
	h := newHarness(t, Options{})
	h.writeRaw(t, "garbage.wasm", wasmfixture.Garbage())
	h.writeRaw(t, "empty.wasm", nil)
	h.write(t, "forbidden.wasm", wasmfixture.Demo().WithForbiddenImport())
	h.write(t, "nameless.wasm", wasmfixture.Plugin(contract.PluginInfo{Version: "1"}))
	h.write(t, "trapping.wasm", wasmfixture.New().World(contract.ExportRegister, wasmfixture.Unreachable()))
	h.write(t, "badjson.wasm", func() *wasmfixture.Module {
		m := wasmfixture.New()
		return m.World(contract.ExportRegister, wasmfixture.ReturnSegment(m.Data([]byte("{not json"))))
	}())
	h.write(t, "badmenus.wasm", wasmfixture.Plugin(contract.PluginInfo{Name: "x", Version: "1"}).
		WithMenus([]contract.Menu{{Path: "relative", Name: "R"}}))
	h.writeRaw(t, "readme.txt", []byte("ignored"))

	report := h.discover(t)
	assert.Empty(t, report.Plugins)
	assert.Equal(t, 7, report.Candidates)
	require.Len(t, report.Failures, 7)

	codes := map[string]errors.Code{}
	for _, f := range report.Failures {
		de, ok := errors.As(f.Err)
		require.True(t, ok, f.ID)
		assert.Equal(t, errors.DomainDiscovery, de.ErrDomain, f.ID)
		codes[f.ID] = de.ErrCode
	}
	assert.Equal(t, errors.CodeCompileFailed, codes["garbage"])
	assert.Equal(t, errors.CodeCompileFailed, codes["empty"])
	assert.Equal(t, errors.CodeInstantiateFailed, codes["forbidden"])
	assert.Equal(t, errors.CodeInvalidMetadata, codes["nameless"])
	assert.Equal(t, errors.CodeRegistrationFailed, codes["trapping"])
	assert.Equal(t, errors.CodeRegistrationFailed, codes["badjson"])
	assert.Equal(t, errors.CodeInvalidMetadata, codes["badmenus"])
	assert.Empty(t, h.sandbox.Menus())
}

func TestDiscoveryKeepsDirectoryOrder(t *testing.T) {
	h := newHarness(t, Options{DiscoveryConcurrency: 4})
	names := []string{"a", "b", "c", "d", "e", "f"}
	for _, n := range names {
		h.write(t, n+".wasm", wasmfixture.Plugin(contract.PluginInfo{Name: n, Version: "1"}))
	}

	report := h.discover(t)
	require.Len(t, report.Plugins, len(names))
	for i, n := range names {
		assert.Equal(t, n, report.Plugins[i].ID)
		assert.Equal(t, n, report.Plugins[i].Info.Name)
	}
}

func TestInvocationIsIsolated(t *testing.T) {
	h := newHarness(t, Options{})
	first := contract.Response{Body: "fresh instance"}
	later := contract.Response{Body: "state leaked"}
	h.write(t, "stateful.wasm", wasmfixture.Plugin(contract.PluginInfo{Name: "s", Version: "1"}).
		WithStatefulLoad(first, later))
	h.discover(t)

	for i := 0; i < 3; i++ {
		resp, _, err := h.sandbox.Load(context.Background(), ByID("stateful"), contract.Request{URL: "/"})
		require.NoError(t, err)
		assert.Equal(t, first, *resp)
	}
}

func TestConcurrentInvocations(t *testing.T) {
	h := newHarness(t, Options{})
	h.write(t, "good.wasm", wasmfixture.Demo())
	h.discover(t)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, _, err := h.sandbox.Load(context.Background(), ByID("good"), contract.Request{URL: "/"})
			if err == nil && resp.Body != wasmfixture.DemoResponse().Body {
				err = assert.AnError
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestRegistrationIsIdempotent(t *testing.T) {
	h := newHarness(t, Options{})
	h.write(t, "good.wasm", wasmfixture.Demo())

	first := h.discover(t)
	second := h.discover(t)

	require.Len(t, first.Plugins, 1)
	require.Len(t, second.Plugins, 1)
	assert.Equal(t, first.Plugins[0].Info, second.Plugins[0].Info)
	assert.Equal(t, first.Plugins[0].Module.Digest, second.Plugins[0].Module.Digest)
}

func TestMenusRoundTripInOrder(t *testing.T) {
	for _, n := range []int{0, 1, 5} {
		h := newHarness(t, Options{})
		menus := make([]contract.Menu, n)
		for i := range menus {
			menus[i] = contract.Menu{Path: "/m/" + string(rune('a'+i)), Name: "Menu " + string(rune('A'+i))}
		}
		h.write(t, "p.wasm", wasmfixture.Plugin(contract.PluginInfo{
			Name: "p", Version: "1", Management: contract.Management{Menus: menus},
		}))
		h.discover(t)

		got := h.sandbox.Menus()
		require.Len(t, got, n)
		for i := range menus {
			assert.Equal(t, menus[i], got[i].Menu)
		}
	}
}

func TestManagementWorldMenusFollowRegisteredOnes(t *testing.T) {
	h := newHarness(t, Options{})
	h.write(t, "p.wasm", wasmfixture.Plugin(contract.PluginInfo{
		Name: "p", Version: "1",
		Management: contract.Management{Menus: []contract.Menu{{Path: "/a", Name: "A"}}},
	}).WithMenus([]contract.Menu{{Path: "/b", Name: "B"}, {Path: "/c", Name: "C"}}))
	h.discover(t)

	got := h.sandbox.Menus()
	require.Len(t, got, 3)
	assert.Equal(t, "/a", got[0].Path)
	assert.Equal(t, "/b", got[1].Path)
	assert.Equal(t, "/c", got[2].Path)
}

func TestTrappingPluginDoesNotAffectOthers(t *testing.T) {
	h := newHarness(t, Options{})
	h.write(t, "good.wasm", wasmfixture.Demo())
	h.write(t, "trap.wasm", wasmfixture.Plugin(contract.PluginInfo{Name: "trap", Version: "1"}).WithTrappingLoad())
	h.discover(t)

	_, pluginID, err := h.sandbox.Load(context.Background(), ByID("trap"), contract.Request{URL: "/"})
	require.Error(t, err)
	assert.Equal(t, "trap", pluginID)
	assert.True(t, errors.IsTrap(err))
	assert.True(t, errors.InDomain(err, errors.DomainInvocation))

	resp, _, err := h.sandbox.Load(context.Background(), ByID("good"), contract.Request{URL: "/"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Body)

	_, _, err = h.sandbox.Load(context.Background(), ByID("trap"), contract.Request{URL: "/"})
	assert.True(t, errors.IsTrap(err))
}

func TestBareModuleContributesNothing(t *testing.T) {
	h := newHarness(t, Options{})
	h.write(t, "bare.wasm", wasmfixture.Bare())

	report := h.discover(t)
	assert.Empty(t, report.Plugins)
	assert.Empty(t, report.Failures)
	require.Len(t, report.Bare, 1)
	assert.Equal(t, "bare", report.Bare[0].ID)
	assert.Contains(t, report.Bare[0].Exports, "helper")
	assert.Empty(t, h.sandbox.Menus())

	_, _, err := h.sandbox.Load(context.Background(), ByID("bare"), contract.Request{URL: "/"})
	assert.True(t, errors.Is(err, errors.DomainInvocation, errors.CodePluginNotFound))
}

func TestMissingExportIsDistinctFromTrap(t *testing.T) {
	h := newHarness(t, Options{})
	h.write(t, "reg.wasm", wasmfixture.Plugin(contract.PluginInfo{Name: "reg", Version: "1"}))
	h.discover(t)

	_, _, err := h.sandbox.Load(context.Background(), ByID("reg"), contract.Request{URL: "/"})
	require.Error(t, err)
	assert.True(t, errors.IsMissingExport(err))
	assert.False(t, errors.IsTrap(err))

	de, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, "reg", de.PluginID)
	assert.Equal(t, contract.ExportLoad, de.Export)
}

func TestSignatureMismatch(t *testing.T) {
	h := newHarness(t, Options{})
	h.write(t, "odd.wasm", wasmfixture.Plugin(contract.PluginInfo{Name: "odd", Version: "1"}).WithWrongLoadSignature())
	h.discover(t)

	_, _, err := h.sandbox.Load(context.Background(), ByID("odd"), contract.Request{URL: "/"})
	assert.True(t, errors.Is(err, errors.DomainInvocation, errors.CodeSignatureMismatch))
}

func TestTimeoutInterruptsGuest(t *testing.T) {
	h := newHarness(t, Options{DefaultTimeout: 100 * time.Millisecond})
	h.write(t, "good.wasm", wasmfixture.Demo())
	h.write(t, "spin.wasm", wasmfixture.Plugin(contract.PluginInfo{Name: "spin", Version: "1"}).WithSpinningLoad())
	h.discover(t)

	start := time.Now()
	_, _, err := h.sandbox.Load(context.Background(), ByID("spin"), contract.Request{URL: "/"})
	require.Error(t, err)
	assert.True(t, errors.IsTimeout(err))
	assert.Less(t, time.Since(start), 5*time.Second)

	resp, _, err := h.sandbox.Load(context.Background(), ByID("good"), contract.Request{URL: "/"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Body)
}

func TestCancelledContext(t *testing.T) {
	h := newHarness(t, Options{})
	h.write(t, "spin.wasm", wasmfixture.Plugin(contract.PluginInfo{Name: "spin", Version: "1"}).WithSpinningLoad())
	h.discover(t)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, _, err := h.sandbox.Load(ctx, ByID("spin"), contract.Request{URL: "/"})
	assert.True(t, errors.Is(err, errors.DomainTimeout, errors.CodeExecutionCancelled))
}

func TestGuestLogAndStdoutReachLogStore(t *testing.T) {
	h := newHarness(t, Options{})
	resp := contract.Response{Body: "ok"}
	h.write(t, "logger.wasm", wasmfixture.Plugin(contract.PluginInfo{Name: "l", Version: "1"}).
		WithLoggingLoad("warn", "rendering editor", resp))
	h.write(t, "printer.wasm", wasmfixture.Plugin(contract.PluginInfo{Name: "p", Version: "1"}).
		WithStdoutLoad("hello from stdout\n", resp))
	h.discover(t)

	_, _, err := h.sandbox.Load(context.Background(), ByID("logger"), contract.Request{URL: "/"})
	require.NoError(t, err)
	entries := h.logs.Entries("logger", time.Time{}, 0)
	require.NotEmpty(t, entries)
	last := entries[len(entries)-1]
	assert.Equal(t, logging.SourceGuest, last.Source)
	assert.Equal(t, logging.LevelWarning, last.Level)
	assert.Equal(t, "rendering editor", last.Message)

	_, _, err = h.sandbox.Load(context.Background(), ByID("printer"), contract.Request{URL: "/"})
	require.NoError(t, err)
	entries = h.logs.Entries("printer", time.Time{}, 0)
	require.NotEmpty(t, entries)
	assert.Equal(t, logging.SourceStdout, entries[len(entries)-1].Source)
	assert.Equal(t, "hello from stdout", entries[len(entries)-1].Message)
}

func TestConfigCapabilityReturnsSidecarConfig(t *testing.T) {
	h := newHarness(t, Options{HostVersion: "9.9.9"})
	h.write(t, "cfg.wasm", wasmfixture.Plugin(contract.PluginInfo{Name: "cfg", Version: "1"}).
		WithHostCall("read_config", CapabilityConfig))
	h.writeRaw(t, "cfg.toml", []byte("[plugin.config]\ngreeting = \"hi\"\n"))
	h.discover(t)

	res, err := h.sandbox.Invoke(context.Background(), ByID("cfg"), "read_config", nil)
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal(res.Output, &got))
	assert.Equal(t, "hi", got["greeting"])
	assert.Equal(t, "cfg", got["ember.plugin_id"])
	assert.Equal(t, "9.9.9", got["ember.host_version"])
}

func TestIntegratorCapability(t *testing.T) {
	h := newHarness(t, Options{Capabilities: []Capability{{
		Name: "site_name",
		Handler: func(ctx context.Context, _ []byte) ([]byte, error) {
			rs, ok := RunStateFrom(ctx)
			if !ok {
				return nil, assert.AnError
			}
			return []byte(`{"site":"example","plugin":"` + rs.PluginID + `"}`), nil
		},
	}}})
	h.write(t, "site.wasm", wasmfixture.Plugin(contract.PluginInfo{Name: "site", Version: "1"}).
		WithHostCall("site", "site_name"))
	h.discover(t)

	res, err := h.sandbox.Invoke(context.Background(), ByID("site"), "site", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"site":"example","plugin":"site"}`, string(res.Output))
}

func TestDuplicateCapabilityIsBootError(t *testing.T) {
	handler := func(context.Context, []byte) ([]byte, error) { return nil, nil }
	_, err := New(context.Background(), store.NewLocalStorage(t.TempDir()), Options{
		Capabilities: []Capability{{Name: CapabilityLog, Handler: handler}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.DomainBoot, errors.CodeCapabilityInitFailed))
}

func TestPostReturnHook(t *testing.T) {
	var (
		mu       sync.Mutex
		failures []string
	)
	h := newHarness(t, Options{OnCleanupFailure: func(pluginID, export string, err error) {
		mu.Lock()
		defer mu.Unlock()
		failures = append(failures, pluginID+"."+export)
	}})

	resp := contract.Response{Body: "with hook"}
	h.write(t, "tidy.wasm", wasmfixture.Plugin(contract.PluginInfo{Name: "tidy", Version: "1"}).
		WithLoad(resp).WithLoggingPostHook(contract.ExportLoad, "freed result"))
	h.write(t, "messy.wasm", wasmfixture.Plugin(contract.PluginInfo{Name: "messy", Version: "1"}).
		WithLoad(resp).WithTrappingPostHook(contract.ExportLoad))
	h.discover(t)

	got, _, err := h.sandbox.Load(context.Background(), ByID("tidy"), contract.Request{URL: "/"})
	require.NoError(t, err)
	assert.Equal(t, resp, *got)
	entries := h.logs.Entries("tidy", time.Time{}, 0)
	require.NotEmpty(t, entries)
	assert.Equal(t, "freed result", entries[len(entries)-1].Message)

	got, _, err = h.sandbox.Load(context.Background(), ByID("messy"), contract.Request{URL: "/"})
	require.NoError(t, err, "a failing cleanup hook must not overturn a successful call")
	assert.Equal(t, resp, *got)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"messy.load"}, failures)
}

func TestReloadPicksUpChanges(t *testing.T) {
	h := newHarness(t, Options{})
	h.write(t, "good.wasm", wasmfixture.Demo())
	h.discover(t)
	first := h.sandbox.Generation()
	h.requireLoad(t, "good", wasmfixture.DemoResponse())

	secondResp := contract.Response{Body: "second page"}
	h.write(t, "second.wasm", wasmfixture.Plugin(contract.PluginInfo{
		Name: "second", Version: "1",
		Management: contract.Management{Menus: []contract.Menu{{Path: "/second", Name: "Second"}}},
	}).WithLoad(secondResp))
	report, err := h.sandbox.Reload(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Plugins, 2)

	assert.Greater(t, h.sandbox.Generation().Number, first.Number)
	assert.Len(t, h.sandbox.Menus(), 2)
	h.requireLoad(t, "good", wasmfixture.DemoResponse())
	h.requireLoad(t, "second", secondResp)

	require.NoError(t, os.Remove(filepath.Join(h.dir, "good.wasm")))
	_, err = h.sandbox.Reload(context.Background())
	require.NoError(t, err)
	_, ok := h.sandbox.Plugin("good")
	assert.False(t, ok)
	h.requireLoad(t, "second", secondResp)

	_, err = h.sandbox.Reload(context.Background())
	require.NoError(t, err)
	h.requireLoad(t, "second", secondResp)
}

func TestReloadDuringInFlightCall(t *testing.T) {
	entered := make(chan struct{}, 1)
	gate := make(chan struct{})
	h := newHarness(t, Options{Capabilities: []Capability{{
		Name: "gate",
		Handler: func(context.Context, []byte) ([]byte, error) {
			select {
			case entered <- struct{}{}:
			default:
			}
			<-gate
			return []byte(`{"gate":"open"}`), nil
		},
	}}})
	h.write(t, "slow.wasm", wasmfixture.Demo().WithHostCall("wait", "gate"))
	h.discover(t)
	before := h.sandbox.Generation().Number

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := h.sandbox.Invoke(context.Background(), ByID("slow"), "wait", nil)
		done <- outcome{res, err}
	}()

	<-entered
	_, err := h.sandbox.Reload(context.Background())
	require.NoError(t, err)
	assert.Greater(t, h.sandbox.Generation().Number, before)
	h.requireLoad(t, "slow", wasmfixture.DemoResponse())

	close(gate)
	out := <-done
	require.NoError(t, out.err)
	assert.JSONEq(t, `{"gate":"open"}`, string(out.res.Output))

	// the old generation is gone now; the new one still runs
	h.requireLoad(t, "slow", wasmfixture.DemoResponse())
	res, err := h.sandbox.Invoke(context.Background(), ByID("slow"), "wait", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"gate":"open"}`, string(res.Output))
}

func TestIdenticalModulesShareCompiledCode(t *testing.T) {
	h := newHarness(t, Options{})
	h.write(t, "a.wasm", wasmfixture.Demo())
	h.write(t, "b.wasm", wasmfixture.Demo())
	report := h.discover(t)
	require.Len(t, report.Plugins, 2)
	assert.Equal(t, report.Plugins[0].Module.Digest, report.Plugins[1].Module.Digest)
	assert.Equal(t, 1, h.sandbox.runtime.code.live())

	require.NoError(t, os.Remove(filepath.Join(h.dir, "a.wasm")))
	_, err := h.sandbox.Reload(context.Background())
	require.NoError(t, err)
	h.requireLoad(t, "b", wasmfixture.DemoResponse())

	require.NoError(t, h.sandbox.Close(context.Background()))
	assert.Equal(t, 0, h.sandbox.runtime.code.live())
}

func TestModuleWithoutMemoryIsRejected(t *testing.T) {
	h := newHarness(t, Options{})
	h.write(t, "hollow.wasm", wasmfixture.NoMemoryPlugin())
	h.write(t, "good.wasm", wasmfixture.Demo())

	report := h.discover(t)
	require.Len(t, report.Plugins, 1)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "hollow", report.Failures[0].ID)
	assert.True(t, errors.Is(report.Failures[0].Err, errors.DomainDiscovery, errors.CodeInstantiateFailed))
	h.requireLoad(t, "good", wasmfixture.DemoResponse())
}

func TestReloadFailureKeepsPreviousGeneration(t *testing.T) {
	h := newHarness(t, Options{})
	h.write(t, "good.wasm", wasmfixture.Demo())
	h.discover(t)

	require.NoError(t, os.RemoveAll(h.dir))
	_, err := h.sandbox.Reload(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.DomainBoot, errors.CodeDirectoryUnreadable))

	resp, _, err := h.sandbox.Load(context.Background(), ByID("good"), contract.Request{URL: "/"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Body)
}

func TestDisabledPluginsAreSkipped(t *testing.T) {
	h := newHarness(t, Options{})
	h.write(t, "good.wasm", wasmfixture.Demo())
	h.discover(t)

	h.sandbox.SetEnabledFunc(func(id string) bool { return id != "good" })
	_, _, err := h.sandbox.Load(context.Background(), ByID("good"), contract.Request{URL: "/"})
	assert.True(t, errors.Is(err, errors.DomainInvocation, errors.CodePluginDisabled))
	assert.Empty(t, h.sandbox.Menus())

	_, _, err = h.sandbox.Load(context.Background(), First(), contract.Request{URL: "/"})
	assert.True(t, errors.Is(err, errors.DomainInvocation, errors.CodePluginNotFound))

	h.sandbox.SetEnabledFunc(nil)
	assert.Len(t, h.sandbox.Menus(), 1)
}

func TestLoadRejectsInvalidRequest(t *testing.T) {
	h := newHarness(t, Options{})
	h.write(t, "good.wasm", wasmfixture.Demo())
	h.discover(t)

	_, _, err := h.sandbox.Load(context.Background(), First(), contract.Request{})
	assert.True(t, errors.Is(err, errors.DomainInvocation, errors.CodeDecodeFailed))
}

func TestUnreadableDirectoryIsBootError(t *testing.T) {
	s, err := New(context.Background(), store.NewLocalStorage(filepath.Join(t.TempDir(), "missing")), Options{})
	require.NoError(t, err)
	defer s.Close(context.Background())

	_, err = s.Discover(context.Background())
	require.Error(t, err)
	assert.True(t, errors.InDomain(err, errors.DomainBoot))
}

func TestInvokeBeforeDiscovery(t *testing.T) {
	h := newHarness(t, Options{})
	_, err := h.sandbox.Invoke(context.Background(), First(), contract.ExportLoad, nil)
	assert.ErrorIs(t, err, errors.ErrSandboxClosed)
}
