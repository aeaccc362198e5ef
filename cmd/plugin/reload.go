package plugin

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ignitionstack/ember/internal/ui/handlers"
	"github.com/ignitionstack/ember/internal/ui/operations"
	"github.com/ignitionstack/ember/pkg/types"
)

func NewReloadCommand(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Rescan the plugin directory",
		Long: `Rescan the plugin directory and swap in a new plugin generation.

Calls already running finish on the previous generation. If the directory
cannot be read the host keeps serving the previous generation.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			result, err := operations.WithSpinner("Reloading plugins...", env.Plain(c), func() (interface{}, error) {
				return env.Client().Reload(context.Background())
			})
			if err != nil {
				return err
			}

			handlers.DisplayReloadReport(*result.Data.(*types.ReloadResponse))
			return nil
		},
	}
}
