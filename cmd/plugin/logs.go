package plugin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ignitionstack/ember/internal/ui"
)

func NewLogsCommand(env Env) *cobra.Command {
	var (
		since time.Duration
		tail  int
	)

	cmd := &cobra.Command{
		Use:   "logs <id>",
		Short: "Show the logs of a plugin",
		Long: `Show host events, guest log calls and captured stdout and stderr of a
plugin. The host keeps a bounded number of lines per plugin in memory.`,
		Example: `  ember plugins logs demo
  ember plugins logs demo --since 10m --tail 50`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			logs, err := env.Client().Logs(context.Background(), args[0], since, tail)
			if err != nil {
				if !env.Plain(c) {
					ui.PrintError(err.Error())
				}
				return err
			}

			if len(logs.Lines) == 0 && !env.Plain(c) {
				ui.PrintEmptyState(fmt.Sprintf("No logs for %s.", args[0]))
				return nil
			}
			for _, line := range logs.Lines {
				fmt.Println(styleLogLine(line, env.Plain(c)))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&since, "since", 0, "Only show lines newer than this duration")
	cmd.Flags().IntVarP(&tail, "tail", "n", 0, "Number of lines to show from the end")

	return cmd
}

func styleLogLine(line string, plain bool) string {
	if plain {
		return line
	}
	switch {
	case strings.Contains(line, "[ERROR]"):
		return ui.ErrorStyle.Render(line)
	case strings.Contains(line, "[WARNING]"):
		return ui.WarningStyle.Render(line)
	case strings.Contains(line, "[DEBUG]"):
		return ui.DimStyle.Render(line)
	default:
		return line
	}
}
