package host

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	globalConfig "github.com/ignitionstack/ember/internal/config"
	"github.com/ignitionstack/ember/internal/di"
)

// NewServeCommand creates the command that runs the host in the foreground.
// socketPath points at the root --socket flag.
func NewServeCommand(socketPath *string) *cobra.Command {
	var overrides di.Overrides

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the plugin host",
		Long: `Run the ember plugin host in the foreground.

The host discovers every .wasm file in the plugin directory, then serves:
* Plugin pages and the admin UI over HTTP
* The admin API on a Unix socket, used by the other ember commands
* Prometheus metrics on /metrics

Flags override the configuration file, which overrides the defaults.
SIGINT or SIGTERM stops the host gracefully.`,
		Example: `  # Start with default settings
  ember serve

  # Serve another plugin directory on port 9090
  ember serve --plugins ./plugins --http :9090

  # Start with debug logging to a file
  ember serve --log-level debug --log-file ~/.ember/ember.log`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			overrides.SocketPath = *socketPath

			fmt.Println("Starting ember...")
			fmt.Println("Press Ctrl+C to stop")

			app := fx.New(
				fx.Supply(di.NewAppConfig(globalConfig.ConfigPath, globalConfig.Version, overrides)),
				di.Module,
				fx.StartTimeout(60*time.Second),
				fx.StopTimeout(30*time.Second),
			)

			if err := app.Start(context.Background()); err != nil {
				return fmt.Errorf("failed to start host: %w", err)
			}

			sig := <-app.Wait()

			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := app.Stop(stopCtx); err != nil {
				return fmt.Errorf("error during shutdown: %w", err)
			}
			if sig.ExitCode != 0 {
				return fmt.Errorf("host stopped with exit code %d", sig.ExitCode)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&overrides.HTTPAddr, "http", "H", "", "HTTP server address (config: server.http_addr)")
	cmd.Flags().StringVarP(&overrides.PluginDir, "plugins", "p", "", "Plugin directory (config: engine.plugin_dir)")
	cmd.Flags().StringVarP(&overrides.StateDir, "state-dir", "d", "", "Plugin state database directory (config: server.state_dir)")
	cmd.Flags().StringVarP(&overrides.LogFile, "log-file", "l", "", "Log file path (logs to stderr if not specified)")
	cmd.Flags().StringVarP(&overrides.LogLevel, "log-level", "L", "", "Log level (debug, info, warn, error)")

	return cmd
}
