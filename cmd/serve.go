package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ignitionstack/ember/cmd/host"
)

func init() {
	serveCmd := host.NewServeCommand(&socketPath)
	// serve runs the host itself and needs no admin client
	serveCmd.PersistentPreRunE = func(*cobra.Command, []string) error { return nil }
	rootCmd.AddCommand(serveCmd)
}
