package engine

import (
	"html/template"
	"io"

	"github.com/ignitionstack/ember/pkg/contract"
	"github.com/ignitionstack/ember/pkg/engine/errors"
	"github.com/ignitionstack/ember/pkg/engine/sandbox"
)

// Plugin output is markup the plugin owns; it is inserted unescaped. Host
// supplied strings (titles, error messages, menu names) are escaped.
var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
{{range .Head}}{{.}}
{{end}}</head>
<body>
{{- if .Menus}}
<nav class="ember-admin-menu">
<ul>
{{- range .Menus}}
<li><a href="/admin/plugins/{{.PluginID}}{{.Path}}">{{.Name}}</a></li>
{{- end}}
</ul>
</nav>
{{- end}}
<main>
{{if .Error}}<div class="ember-plugin-error" data-plugin="{{.Error.PluginID}}" data-code="{{.Error.Code}}">{{.Error.Message}}</div>{{else}}{{.Body}}{{end}}
</main>
{{range .Scripts}}<script>{{.}}</script>
{{end}}</body>
</html>
`))

// Page is the data a composed HTML page is rendered from.
type Page struct {
	Title   string
	Head    []template.HTML
	Body    template.HTML
	Scripts []template.JS
	Menus   []sandbox.MenuEntry
	Error   *PageError
}

// PageError replaces plugin output when the call failed.
type PageError struct {
	PluginID string
	Code     string
	Message  string
}

// NewPage builds a page from a handler world response.
func NewPage(title string, resp *contract.Response) *Page {
	p := &Page{Title: title}
	if resp == nil {
		return p
	}
	for _, h := range resp.Head {
		p.Head = append(p.Head, template.HTML(h))
	}
	p.Body = template.HTML(resp.Body)
	for _, s := range resp.Scripts {
		p.Scripts = append(p.Scripts, template.JS(s))
	}
	return p
}

// NewErrorPage builds a page whose content is an error fragment.
func NewErrorPage(title, pluginID string, err error) *Page {
	pe := &PageError{PluginID: pluginID, Message: "The plugin failed to render this page."}
	if de, ok := errors.As(err); ok {
		pe.Code = string(de.Code())
		if pe.PluginID == "" {
			pe.PluginID = de.PluginID
		}
		pe.Message = de.Message
	}
	return &Page{Title: title, Error: pe}
}

// RenderPage writes the page as a complete HTML document: head fragments in
// order, then the body, then each script wrapped in a script element.
func RenderPage(w io.Writer, page *Page) error {
	return pageTemplate.Execute(w, page)
}
