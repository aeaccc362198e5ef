package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	def := DefaultConfig()
	assert.Equal(t, def.Engine.DefaultTimeout, cfg.Engine.DefaultTimeout)
	assert.Equal(t, def.Engine.PluginDir, cfg.Engine.PluginDir)
	assert.Equal(t, 5, cfg.Engine.CircuitBreaker.FailureThreshold)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
engine:
  plugin_dir: /srv/plugins
  default_timeout: 250ms
  circuit_breaker:
    failure_threshold: 2
server:
  http_addr: "127.0.0.1:9999"
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("EMBER_ENGINE__MAX_CALLS_PER_PLUGIN", "3")
	t.Setenv("EMBER_SERVER__HTTP_ADDR", "0.0.0.0:8081")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/plugins", cfg.Engine.PluginDir)
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.DefaultTimeout)
	assert.Equal(t, 2, cfg.Engine.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 3, cfg.Engine.MaxCallsPerPlugin)
	assert.Equal(t, "0.0.0.0:8081", cfg.Server.HTTPAddr)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: loud\n"), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  registry_dir: /tmp\n"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "engine.plugin_dir", envKey("EMBER_ENGINE__PLUGIN_DIR"))
	assert.Equal(t, "engine.circuit_breaker.reset_timeout", envKey("EMBER_ENGINE__CIRCUIT_BREAKER__RESET_TIMEOUT"))
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "x"), ExpandHome("~/x"))
	assert.Equal(t, "/abs", ExpandHome("/abs"))
}

func TestImmutableConfig(t *testing.T) {
	src := map[string]string{"b": "2", "a": "1"}
	cfg := NewConfig(src)
	src["a"] = "changed"

	v, ok := cfg.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
	assert.Equal(t, []string{"a", "b"}, cfg.Keys())
	assert.Equal(t, "fallback", cfg.GetWithDefault("zzz", "fallback"))

	merged := cfg.Merge(NewConfig(map[string]string{"b": "3", "c": "4"}))
	assert.Equal(t, 3, merged.Size())
	assert.Equal(t, "{a: 1, b: 3, c: 4}", merged.String())
	assert.Equal(t, 2, cfg.Size())

	data, err := merged.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"1","b":"3","c":"4"}`, string(data))

	empty, err := ImmutableConfig{}.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "{}", string(empty))
}
