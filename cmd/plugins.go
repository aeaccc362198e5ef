package cmd

import (
	"github.com/ignitionstack/ember/cmd/plugin"
)

func init() {
	env := plugin.Env{
		Client: currentClient,
		Plain:  isPlain,
	}

	pluginsCmd := plugin.NewListCommand(env)
	pluginsCmd.AddCommand(
		plugin.NewReloadCommand(env),
		plugin.NewEnableCommand(env, true),
		plugin.NewEnableCommand(env, false),
		plugin.NewToggleCommand(env),
		plugin.NewCallCommand(env),
		plugin.NewLogsCommand(env),
		plugin.NewInspectCommand(env),
	)

	rootCmd.AddCommand(pluginsCmd)
}
