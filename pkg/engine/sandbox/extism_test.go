package sandbox

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignitionstack/ember/internal/testutil/wasmfixture"
	"github.com/ignitionstack/ember/pkg/contract"
	"github.com/ignitionstack/ember/pkg/engine/errors"
)

func extismPlugin() *wasmfixture.Module {
	return wasmfixture.ExtismPlugin(contract.PluginInfo{
		Name:       "kernel",
		Version:    "2.0.0",
		Management: contract.Management{Menus: []contract.Menu{{Path: "/", Name: "Kernel"}}},
	})
}

func TestExtismPluginRegistersAndLoads(t *testing.T) {
	h := newHarness(t, Options{})
	resp := contract.Response{Body: "<p>from extism</p>", Scripts: []string{"init()"}}
	h.write(t, "kernel.wasm", extismPlugin().WithExtismLoad(resp))
	h.write(t, "good.wasm", wasmfixture.Demo())

	report := h.discover(t)
	require.Len(t, report.Plugins, 2)
	require.Empty(t, report.Failures)

	p, ok := h.sandbox.Plugin("kernel")
	require.True(t, ok)
	assert.Equal(t, ABIExtism, p.Module.ABI)
	assert.Equal(t, "kernel", p.Info.Name)
	assert.Equal(t, "2.0.0", p.Info.Version)

	good, ok := h.sandbox.Plugin("good")
	require.True(t, ok)
	assert.Equal(t, ABINative, good.Module.ABI)

	h.requireLoad(t, "kernel", resp)
	h.requireLoad(t, "good", wasmfixture.DemoResponse())

	menus := h.sandbox.Menus()
	require.Len(t, menus, 2)
	assert.Equal(t, "kernel", menus[1].PluginID)

	// reload keeps the plugin runnable
	_, err := h.sandbox.Reload(context.Background())
	require.NoError(t, err)
	h.requireLoad(t, "kernel", resp)
}

func TestExtismPluginCallsHostCapability(t *testing.T) {
	h := newHarness(t, Options{HostVersion: "3.1.4"})
	h.write(t, "kernel.wasm", extismPlugin().WithExtismHostCall("read_config", CapabilityConfig))
	h.writeRaw(t, "kernel.toml", []byte("[plugin.config]\ncolor = \"blue\"\n"))
	h.discover(t)

	res, err := h.sandbox.Invoke(context.Background(), ByID("kernel"), "read_config", nil)
	require.NoError(t, err)
	assert.Equal(t, "kernel", res.PluginID)

	var got map[string]string
	require.NoError(t, json.Unmarshal(res.Output, &got))
	assert.Equal(t, "blue", got["color"])
	assert.Equal(t, "kernel", got["ember.plugin_id"])
	assert.Equal(t, "3.1.4", got["ember.host_version"])
}

func TestExtismNonZeroExitIsTrap(t *testing.T) {
	h := newHarness(t, Options{})
	h.write(t, "kernel.wasm", extismPlugin().WithExtismExitCode("fail", 3))
	h.discover(t)

	_, err := h.sandbox.Invoke(context.Background(), ByID("kernel"), "fail", nil)
	require.Error(t, err)
	assert.True(t, errors.IsTrap(err))
	assert.Contains(t, err.Error(), "kernel")

	_, err = h.sandbox.Invoke(context.Background(), ByID("kernel"), "absent", nil)
	assert.True(t, errors.IsMissingExport(err))
}
