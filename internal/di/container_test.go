package di

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/ignitionstack/ember/internal/testutil/wasmfixture"
	"github.com/ignitionstack/ember/pkg/engine"
)

func testAppConfig(t *testing.T) AppConfig {
	t.Helper()
	socketDir, err := os.MkdirTemp("", "ember")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(socketDir) })

	pluginDir := t.TempDir()
	_, err = wasmfixture.Demo().WriteFile(pluginDir, "demo.wasm")
	require.NoError(t, err)

	return NewAppConfig(filepath.Join(t.TempDir(), "missing.yaml"), "test", Overrides{
		SocketPath: filepath.Join(socketDir, "ember.sock"),
		HTTPAddr:   "127.0.0.1:0",
		PluginDir:  pluginDir,
		StateDir:   t.TempDir(),
		LogLevel:   "error",
	})
}

func TestModuleValidates(t *testing.T) {
	err := fx.ValidateApp(fx.Supply(testAppConfig(t)), Module)
	assert.NoError(t, err)
}

func TestModuleLifecycle(t *testing.T) {
	app := testAppConfig(t)

	var (
		e   *engine.Engine
		srv *engine.Server
	)
	fxApp := fxtest.New(t, fx.Supply(app), Module, fx.Populate(&e, &srv))
	fxApp.RequireStart()

	assert.Equal(t, uint64(1), e.Status().Generation)
	assert.FileExists(t, app.Overrides.SocketPath)

	resp, err := http.Get("http://" + srv.HTTPAddr() + "/plugins/demo/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	fxApp.RequireStop()
	assert.NoFileExists(t, app.Overrides.SocketPath)
}

func TestProvideConfigOverrides(t *testing.T) {
	app := testAppConfig(t)
	cfg, err := provideConfig(app)
	require.NoError(t, err)

	assert.Equal(t, app.Overrides.SocketPath, cfg.Server.SocketPath)
	assert.Equal(t, "127.0.0.1:0", cfg.Server.HTTPAddr)
	assert.Equal(t, app.Overrides.PluginDir, cfg.Engine.PluginDir)
	assert.Equal(t, "error", cfg.Log.Level)

	app.Overrides.LogLevel = "loud"
	_, err = provideConfig(app)
	assert.Error(t, err)
}

func TestEngineStartFailureAbortsApp(t *testing.T) {
	app := testAppConfig(t)
	app.Overrides.PluginDir = filepath.Join(t.TempDir(), "absent")

	fxApp := fx.New(fx.Supply(app), Module)
	err := fxApp.Start(context.Background())
	assert.Error(t, err)
	_ = fxApp.Stop(context.Background())
}
