package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	globalConfig "github.com/ignitionstack/ember/internal/config"
	"github.com/ignitionstack/ember/internal/ui"
	"github.com/ignitionstack/ember/pkg/engine/config"
	"github.com/ignitionstack/ember/pkg/engineclient"
)

// Global flags
var (
	socketPath   string
	engineClient engineclient.Client
)

var rootCmd = &cobra.Command{
	Use:   "ember",
	Short: "ember WebAssembly plugin host",
	Long: `ember hosts CMS plugins compiled to WebAssembly.

Every .wasm file in the plugin directory is compiled and registered at
startup. Plugins render pages and contribute admin menus, each call running
in a fresh sandboxed instance with a timeout and a memory cap.

Key capabilities:
* Serve plugin pages and the admin UI over HTTP
* Enable, disable and reload plugins without a restart
* Call plugin exports and read their logs from the command line
* Inspect a plugin directory offline`,
	Example: `  # Start the host
  ember serve

  # List plugins
  ember plugins

  # Render a page through a plugin
  ember plugins call demo --url /hello

  # Use a custom config file
  ember --config ~/.ember/custom.yaml plugins`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		client, err := newEngineClient()
		if err != nil {
			return err
		}
		engineClient = client

		plainFlag := false
		cmd.Flags().Visit(func(f *pflag.Flag) {
			if f.Name == "plain" && f.Value.String() == "true" {
				plainFlag = true
			}
		})
		if !plainFlag && !ui.IsCI() {
			ui.PrintLogo()
		}

		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&globalConfig.ConfigPath, "config", "c", config.DefaultConfigPath, "Path to the configuration file")
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", "", "Path to the admin socket (overrides config)")
	rootCmd.PersistentFlags().Bool("plain", false, "Plain output without colors, spinners or banner")
}

// newEngineClient builds the admin client from the socket flag, falling
// back to the config file and then the default path.
func newEngineClient() (engineclient.Client, error) {
	if socketPath != "" {
		return engineclient.New(engineclient.Options{SocketPath: config.ExpandHome(socketPath)})
	}

	cfg, err := config.LoadConfig(globalConfig.ConfigPath)
	if err != nil {
		return engineclient.New(engineclient.Options{SocketPath: globalConfig.DefaultSocket})
	}
	return engineclient.New(engineclient.Options{SocketPath: cfg.Server.SocketPath})
}

func currentClient() engineclient.Client {
	return engineClient
}

func isPlain(cmd *cobra.Command) bool {
	plain, _ := cmd.Flags().GetBool("plain")
	return plain || ui.IsCI()
}
