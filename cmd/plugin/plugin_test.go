package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignitionstack/ember/internal/testutil/wasmfixture"
	"github.com/ignitionstack/ember/pkg/engine/config"
	"github.com/ignitionstack/ember/pkg/types"
)

func TestToggleChanges(t *testing.T) {
	plugins := []types.PluginStatus{
		{ID: "a", Enabled: true, Status: "loaded"},
		{ID: "b", Enabled: false, Status: "loaded"},
		{ID: "c", Enabled: true, Status: "missing"},
		{ID: "d", Enabled: true, Status: "failed"},
	}

	options, selected := toggleOptions(plugins)
	assert.Len(t, options, 3)
	assert.Equal(t, []string{"a", "d"}, selected)

	changes := toggleChanges(plugins, []string{"b", "d"})
	assert.Equal(t, map[string]bool{"a": false, "b": true}, changes)

	assert.Empty(t, toggleChanges(plugins, selected))
}

func TestRenderFragments(t *testing.T) {
	out := renderFragments(wasmfixture.DemoResponse())
	assert.Equal(t, `<link rel="stylesheet" href="/static/demo.css">
<div id="demo">Hello from demo</div>
<script>console.log("demo")</script>`, out)
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	_, err := wasmfixture.Demo().WriteFile(dir, "demo.wasm")
	require.NoError(t, err)
	_, err = wasmfixture.Bare().WriteFile(dir, "helper.wasm")
	require.NoError(t, err)

	ins, err := inspect(context.Background(), dir, config.DefaultConfig().Engine, "/plugins/demo/hello")
	require.NoError(t, err)

	assert.Equal(t, 2, ins.report.Candidates)
	require.Len(t, ins.plugins, 1)
	assert.Equal(t, "demo", ins.plugins[0].ID)
	assert.Len(t, ins.report.Bare, 1)
	assert.Equal(t, "demo", ins.pageID)
	assert.Equal(t, wasmfixture.DemoResponse(), *ins.page)
}

func TestInspectMissingDirectory(t *testing.T) {
	_, err := inspect(context.Background(), t.TempDir()+"/absent", config.DefaultConfig().Engine, "")
	assert.Error(t, err)
}

func TestCapitalize(t *testing.T) {
	assert.Equal(t, "Enable", capitalize("enable"))
}
