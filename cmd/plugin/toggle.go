package plugin

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/ignitionstack/ember/internal/ui"
	"github.com/ignitionstack/ember/pkg/types"
)

func NewToggleCommand(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle",
		Short: "Choose enabled plugins interactively",
		Long: `Show every plugin with a checkbox for its enablement and apply the
changes in one batch. Plugins whose file is missing are not listed.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			if env.Plain(c) {
				return errors.New("toggle is interactive; use enable or disable in plain mode")
			}

			ctx := context.Background()
			client := env.Client()

			plugins, err := client.Plugins(ctx)
			if err != nil {
				ui.PrintError(fmt.Sprintf("Failed to list plugins: %v", err))
				return err
			}

			options, selected := toggleOptions(plugins)
			if len(options) == 0 {
				ui.PrintEmptyState("No plugins to toggle.")
				return nil
			}

			baseStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ui.PrimaryColor))
			theme := huh.ThemeBase()
			theme.Focused.Title = baseStyle.Bold(true)
			theme.Focused.SelectSelector = baseStyle

			form := huh.NewForm(huh.NewGroup(
				huh.NewMultiSelect[string]().
					Title("Enabled plugins").
					Options(options...).
					Value(&selected),
			))
			if err := form.WithTheme(theme).Run(); err != nil {
				return fmt.Errorf("error during plugin selection: %w", err)
			}

			changes := toggleChanges(plugins, selected)
			if len(changes) == 0 {
				ui.PrintInfo("Nothing changed", "")
				return nil
			}

			results, err := client.SetEnabled(ctx, changes)
			for _, r := range results {
				if r.Err != nil {
					continue
				}
				if r.Enabled {
					ui.PrintSuccess("Enabled " + r.ID)
				} else {
					ui.PrintWarning("Disabled " + r.ID)
				}
			}
			if err != nil {
				ui.PrintError(err.Error())
			}
			return err
		},
	}
}

// toggleOptions lists the plugins that can be toggled, preselecting the
// enabled ones.
func toggleOptions(plugins []types.PluginStatus) ([]huh.Option[string], []string) {
	var options []huh.Option[string]
	var selected []string
	for _, p := range plugins {
		if p.Status == "missing" {
			continue
		}
		label := p.ID
		if p.Name != "" && p.Name != p.ID {
			label = fmt.Sprintf("%s (%s)", p.ID, p.Name)
		}
		options = append(options, huh.NewOption(label, p.ID).Selected(p.Enabled))
		if p.Enabled {
			selected = append(selected, p.ID)
		}
	}
	return options, selected
}

// toggleChanges returns the enablement changes a selection implies.
func toggleChanges(plugins []types.PluginStatus, selected []string) map[string]bool {
	want := make(map[string]bool, len(selected))
	for _, id := range selected {
		want[id] = true
	}

	changes := make(map[string]bool)
	for _, p := range plugins {
		if p.Status == "missing" {
			continue
		}
		if want[p.ID] != p.Enabled {
			changes[p.ID] = want[p.ID]
		}
	}
	return changes
}
