package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSidecarToml(t *testing.T) {
	dir := t.TempDir()
	content := `
[plugin]
timeout = "750ms"
routes = ["/admin/editor", "/blog"]
memory_pages = 32

[plugin.config]
greeting = "hi"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "demo.toml"), []byte(content), 0o644))

	m, path, err := LoadSidecar(dir, "demo")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "demo.toml"), path)
	assert.Equal(t, 750*time.Millisecond, m.TimeoutOr(time.Second))
	assert.Equal(t, []string{"/admin/editor", "/blog"}, m.Plugin.Routes)
	assert.Equal(t, uint32(32), m.Plugin.MemoryPages)
	assert.Equal(t, "hi", m.Plugin.Config["greeting"])
}

func TestLoadSidecarYaml(t *testing.T) {
	dir := t.TempDir()
	content := "plugin:\n  disabled: true\n  config:\n    theme: dark\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "demo.yaml"), []byte(content), 0o644))

	m, _, err := LoadSidecar(dir, "demo")
	require.NoError(t, err)
	assert.True(t, m.Plugin.Disabled)
	assert.Equal(t, "dark", m.Plugin.Config["theme"])
	assert.Equal(t, 2*time.Second, m.TimeoutOr(2*time.Second))
}

func TestLoadSidecarMissing(t *testing.T) {
	m, path, err := LoadSidecar(t.TempDir(), "demo")
	require.NoError(t, err)
	assert.Empty(t, path)
	require.NotNil(t, m)
	assert.Empty(t, m.Plugin.Routes)
}

func TestParseRejectsInvalidManifests(t *testing.T) {
	tests := []struct {
		name string
		file string
		data string
	}{
		{"bad timeout", "x.toml", "[plugin]\ntimeout = \"soon\"\n"},
		{"negative timeout", "x.toml", "[plugin]\ntimeout = \"-1s\"\n"},
		{"relative route", "x.yaml", "plugin:\n  routes: [\"blog\"]\n"},
		{"unknown yaml key", "x.yaml", "plugin:\n  wasi: true\n"},
		{"broken toml", "x.toml", "[plugin\n"},
		{"unknown extension", "x.json", "{}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.file, []byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	m := &PluginManifest{Plugin: PluginSettings{Timeout: "1s", Routes: []string{"/x"}}}

	y, err := m.MarshalYaml()
	require.NoError(t, err)
	parsed, err := Parse("m.yaml", y)
	require.NoError(t, err)
	assert.Equal(t, m.Plugin.Routes, parsed.Plugin.Routes)

	tm, err := m.MarshalToml()
	require.NoError(t, err)
	parsed, err = Parse("m.toml", tm)
	require.NoError(t, err)
	assert.Equal(t, "1s", parsed.Plugin.Timeout)
}
