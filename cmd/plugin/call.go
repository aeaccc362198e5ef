package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/ignitionstack/ember/internal/ui"
	"github.com/ignitionstack/ember/internal/ui/operations"
	"github.com/ignitionstack/ember/pkg/contract"
	"github.com/ignitionstack/ember/pkg/types"
)

func NewCallCommand(env Env) *cobra.Command {
	var (
		export  string
		url     string
		query   string
		input   string
		html    bool
		copyOut bool
	)

	cmd := &cobra.Command{
		Use:   "call <id>",
		Short: "Call an export of a plugin",
		Long: `Call one export of a plugin on the running host and print its output.

The load export receives a request built from --url and --query. Any other
export receives --input as its raw argument.`,
		Example: `  # Render a page
  ember plugins call demo --url /hello --query a=1

  # Print only the page body as highlighted HTML
  ember plugins call demo --url /hello --html

  # Call another export with a JSON argument
  ember plugins call demo --export register-plugin`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			plain := env.Plain(c)

			req := types.CallRequest{
				PluginRequest: types.PluginRequest{ID: args[0]},
				Export:        export,
				URL:           url,
				Query:         query,
			}
			if input != "" {
				if !json.Valid([]byte(input)) {
					quoted, _ := json.Marshal(input)
					input = string(quoted)
				}
				req.Input = json.RawMessage(input)
			}

			result, err := operations.WithSpinner(fmt.Sprintf("Calling %s...", args[0]), plain, func() (interface{}, error) {
				return env.Client().Call(context.Background(), req)
			})
			if err != nil {
				if !plain {
					ui.PrintError(err.Error())
				}
				return err
			}

			resp := result.Data.(*types.CallResponse)
			if copyOut {
				if err := clipboard.WriteAll(string(resp.Output)); err != nil {
					ui.PrintWarning(fmt.Sprintf("Failed to copy output: %v", err))
				} else if !plain {
					ui.PrintSuccess("Output copied to clipboard")
				}
			}
			if html && resp.Export == contract.ExportLoad {
				var page contract.Response
				if err := json.Unmarshal(resp.Output, &page); err != nil {
					return fmt.Errorf("failed to decode page: %w", err)
				}
				fmt.Println(ui.HighlightHTML(renderFragments(page), plain))
				return nil
			}

			fmt.Println(ui.HighlightJSON(resp.Output, plain))
			if !plain {
				ui.PrintInfo("Duration", resp.Duration)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&export, "export", "e", contract.ExportLoad, "Export to call")
	cmd.Flags().StringVarP(&url, "url", "u", "/", "Request URL for the load export")
	cmd.Flags().StringVarP(&query, "query", "q", "", "Raw query string for the load export")
	cmd.Flags().StringVarP(&input, "input", "i", "", "Argument for other exports (JSON or text)")
	cmd.Flags().BoolVar(&html, "html", false, "Print the page as markup instead of JSON")
	cmd.Flags().BoolVar(&copyOut, "copy", false, "Copy the raw output to the clipboard")

	return cmd
}

// renderFragments joins a page's parts in the order the host emits them.
func renderFragments(page contract.Response) string {
	var b strings.Builder
	for _, h := range page.Head {
		b.WriteString(h)
		b.WriteString("\n")
	}
	b.WriteString(page.Body)
	b.WriteString("\n")
	for _, s := range page.Scripts {
		b.WriteString("<script>")
		b.WriteString(s)
		b.WriteString("</script>\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
