package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ignitionstack/ember/internal/ui"
	"github.com/ignitionstack/ember/internal/ui/handlers"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the host is running",
	Long: `Connect to the running host and print its version, plugin protocol,
current generation and plugin counts.`,
	Example: `  ember status
  ember status --plain`,
	RunE: func(c *cobra.Command, _ []string) error {
		status, err := currentClient().Status(context.Background())
		if err != nil {
			if !isPlain(c) {
				ui.PrintError(err.Error())
			}
			return err
		}

		if isPlain(c) {
			out, err := json.MarshalIndent(status, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}

		handlers.DisplayStatus(*status)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
