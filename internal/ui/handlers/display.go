package handlers

import (
	"fmt"
	"strings"
	"time"

	"github.com/ignitionstack/ember/internal/ui"
	"github.com/ignitionstack/ember/pkg/store"
	"github.com/ignitionstack/ember/pkg/types"
)

// DisplayReloadReport prints the outcome of a discovery pass.
func DisplayReloadReport(report types.ReloadResponse) {
	ui.PrintSuccess(fmt.Sprintf("Generation %d loaded in %s", report.Generation, report.Duration))
	fmt.Println()

	ui.PrintInfo("Candidates", fmt.Sprintf("%d", report.Candidates))
	ui.PrintInfo("Plugins", fmt.Sprintf("%d", len(report.Plugins)))
	for _, id := range report.Plugins {
		fmt.Printf("  %s %s\n", ui.BulletSymbol, id)
	}

	if len(report.Bare) > 0 {
		ui.PrintInfo("Bare modules", strings.Join(report.Bare, ", "))
	}

	if len(report.Failures) > 0 {
		fmt.Println()
		ui.PrintWarning(fmt.Sprintf("%d candidate(s) failed", len(report.Failures)))
		for _, f := range report.Failures {
			fmt.Printf("  %s %s\n", ui.ErrorStyle.Render(ui.ErrorSymbol), ui.HeaderStyle.Render(f.ID))
			fmt.Println(ui.DimStyle.Render(indent(ui.Wrap(f.Error, ui.TerminalWidth()-6), "    ")))
		}
	}
}

// PluginsTable builds the table printed by the plugins command.
func PluginsTable(plugins []types.PluginStatus) *ui.Table {
	table := ui.NewTable([]string{"ID", "NAME", "VERSION", "STATUS", "ENABLED", "CIRCUIT", "DIGEST", "LAST SEEN"})
	for _, p := range plugins {
		status := p.Status
		if !p.Enabled && status == "loaded" {
			status = "disabled"
		}
		enabled := "yes"
		if !p.Enabled {
			enabled = "no"
		}
		table.AddRow(
			p.ID,
			ui.TruncateWithEllipsis(p.Name, 24),
			p.Version,
			ui.StyleStatusValue(status),
			enabled,
			ui.StyleCircuit(p.Circuit),
			store.TruncateDigest(p.Digest, 12),
			formatAge(p.LastSeen),
		)
	}
	return table
}

// DisplayPlugins prints the plugin list, or a plain tab separated listing
// for scripting.
func DisplayPlugins(plugins []types.PluginStatus, plain bool) {
	if plain {
		fmt.Printf("%s\t%s\t%s\t%s\n", "ID", "STATUS", "ENABLED", "VERSION")
		for _, p := range plugins {
			fmt.Printf("%s\t%s\t%t\t%s\n", p.ID, p.Status, p.Enabled, p.Version)
		}
		return
	}

	if len(plugins) == 0 {
		ui.PrintEmptyState("No plugins found.")
		return
	}
	fmt.Println(ui.RenderTable(PluginsTable(plugins)))
	for _, p := range plugins {
		if p.LastError != "" {
			fmt.Printf("%s %s: %s\n", ui.ErrorStyle.Render(ui.ErrorSymbol), p.ID,
				ui.DimStyle.Render(ui.TruncateWithEllipsis(p.LastError, ui.TerminalWidth()-len(p.ID)-4)))
		}
	}
}

// DisplayStatus prints the host summary.
func DisplayStatus(status types.StatusResponse) {
	ui.PrintSuccess("Host is running")
	ui.PrintInfo("Version", status.HostVersion)
	ui.PrintInfo("Protocol", status.Protocol)
	ui.PrintInfo("Generation", fmt.Sprintf("%d", status.Generation))
	ui.PrintInfo("Plugins", fmt.Sprintf("%d loaded, %d bare, %d failed", status.Plugins, status.Bare, status.Failures))
	ui.PrintInfo("In flight", fmt.Sprintf("%d", status.InFlight))
	ui.PrintInfo("Uptime", time.Since(status.StartedAt).Truncate(time.Second).String())
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Format("2006-01-02")
	}
}

func indent(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
