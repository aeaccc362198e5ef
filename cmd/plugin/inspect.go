package plugin

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	globalConfig "github.com/ignitionstack/ember/internal/config"
	"github.com/ignitionstack/ember/internal/ui"
	"github.com/ignitionstack/ember/internal/ui/handlers"
	"github.com/ignitionstack/ember/internal/ui/operations"
	"github.com/ignitionstack/ember/pkg/contract"
	"github.com/ignitionstack/ember/pkg/engine"
	"github.com/ignitionstack/ember/pkg/engine/config"
	"github.com/ignitionstack/ember/pkg/engine/sandbox"
	"github.com/ignitionstack/ember/pkg/store"
)

type inspection struct {
	report  *sandbox.Report
	plugins []*sandbox.Plugin
	page    *contract.Response
	pageID  string
}

// NewInspectCommand creates a command that runs discovery on a directory
// without a running host.
func NewInspectCommand(env Env) *cobra.Command {
	var render string

	cmd := &cobra.Command{
		Use:   "inspect <dir>",
		Short: "Discover a plugin directory offline",
		Long: `Compile and register every plugin in a directory without starting the
host, then print the discovery report and what each plugin registered.

With --render the page for a URL is rendered through the plugin whose
route matches it.`,
		Example: `  ember plugins inspect ./plugins
  ember plugins inspect ./plugins --render /plugins/demo/hello`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			plain := env.Plain(c)

			cfg, err := config.LoadConfig(globalConfig.ConfigPath)
			if err != nil {
				cfg = config.DefaultConfig()
			}

			result, err := operations.WithSpinner("Discovering plugins...", plain, func() (interface{}, error) {
				return inspect(context.Background(), args[0], cfg.Engine, render)
			})
			if err != nil {
				if !plain {
					ui.PrintError(err.Error())
				}
				return err
			}

			ins := result.Data.(*inspection)
			handlers.DisplayReloadReport(engine.NewReloadResponse(1, ins.report))
			displayRegistrations(ins.plugins)

			if render != "" {
				fmt.Println()
				ui.PrintInfo("Rendered by", ins.pageID)
				fmt.Println(ui.HighlightHTML(renderFragments(*ins.page), plain))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&render, "render", "r", "", "Render the page for this URL")

	return cmd
}

func inspect(ctx context.Context, dir string, cfg config.EngineConfig, render string) (*inspection, error) {
	sb, err := sandbox.New(ctx, store.NewLocalStorage(config.ExpandHome(dir)), sandbox.Options{
		HostVersion:          globalConfig.Version,
		DefaultTimeout:       cfg.DefaultTimeout,
		MaxMemoryPages:       cfg.MaxMemoryPages,
		CompilationCacheDir:  cfg.CompilationCacheDir,
		DiscoveryConcurrency: cfg.DiscoveryConcurrency,
	})
	if err != nil {
		return nil, err
	}
	defer sb.Close(ctx)

	report, err := sb.Discover(ctx)
	if err != nil {
		return nil, err
	}

	ins := &inspection{report: report, plugins: sb.Plugins()}
	if render != "" {
		page, id, err := sb.Load(ctx, sandbox.ByRoute(render), contract.Request{URL: render})
		if err != nil {
			return nil, fmt.Errorf("failed to render %s: %w", render, err)
		}
		ins.page, ins.pageID = page, id
	}
	return ins, nil
}

func displayRegistrations(plugins []*sandbox.Plugin) {
	for _, p := range plugins {
		fmt.Println()
		fmt.Println(ui.HeaderStyle.Render(fmt.Sprintf("%s %s", p.Info.Name, p.Info.Version)))
		ui.PrintInfo("  id", p.ID)
		ui.PrintInfo("  routes", strings.Join(p.Routes(), ", "))
		for _, m := range p.Menus() {
			fmt.Printf("    %s %s %s\n", ui.BulletSymbol, m.Name, ui.DimStyle.Render(m.Path))
		}
	}
}
