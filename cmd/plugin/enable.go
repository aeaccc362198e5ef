package plugin

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ignitionstack/ember/internal/ui"
)

// NewEnableCommand creates the enable command, or the disable command when
// enabled is false.
func NewEnableCommand(env Env, enabled bool) *cobra.Command {
	verb, past := "disable", "disabled"
	if enabled {
		verb, past = "enable", "enabled"
	}

	return &cobra.Command{
		Use:   verb + " <id>...",
		Short: fmt.Sprintf("%s one or more plugins", capitalize(verb)),
		Long: fmt.Sprintf(`%s plugins by id. The change is persisted and applies to the
next request; calls already running are not interrupted.`, capitalize(verb)),
		Example: fmt.Sprintf("  ember plugins %s demo\n  ember plugins %s demo gallery", verb, verb),
		Args:    cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			changes := make(map[string]bool, len(args))
			for _, id := range args {
				changes[id] = enabled
			}

			results, err := env.Client().SetEnabled(context.Background(), changes)
			for _, r := range results {
				if r.Err == nil && !env.Plain(c) {
					ui.PrintSuccess(fmt.Sprintf("Plugin %s %s", r.ID, past))
				}
			}
			if err != nil && !env.Plain(c) {
				ui.PrintError(err.Error())
			}
			return err
		},
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
