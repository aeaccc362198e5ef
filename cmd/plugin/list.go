package plugin

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ignitionstack/ember/internal/ui"
	"github.com/ignitionstack/ember/internal/ui/handlers"
)

// NewListCommand creates the plugins command, which lists plugins and
// carries the other plugin subcommands.
func NewListCommand(env Env) *cobra.Command {
	return &cobra.Command{
		Use:     "plugins",
		Aliases: []string{"plugin", "ls"},
		Short:   "List and manage plugins",
		Long: `List every plugin the host knows about, including plugins that failed
discovery or whose file has been removed.

For each plugin the list shows:
* Name and version reported by the plugin
* Status (loaded, bare, failed, missing) and whether it is enabled
* Circuit breaker state and binary digest`,
		Example: `  ember plugins
  ember plugins --plain`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			plain := env.Plain(c)

			plugins, err := env.Client().Plugins(context.Background())
			if err != nil {
				if !plain {
					ui.PrintError(fmt.Sprintf("Failed to list plugins: %v", err))
				}
				return err
			}

			handlers.DisplayPlugins(plugins, plain)
			return nil
		},
	}
}
