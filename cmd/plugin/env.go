package plugin

import (
	"github.com/spf13/cobra"

	"github.com/ignitionstack/ember/pkg/engineclient"
)

// Env gives the plugin commands access to state owned by the root command.
type Env struct {
	Client func() engineclient.Client
	Plain  func(*cobra.Command) bool
}
