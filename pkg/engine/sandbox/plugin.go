package sandbox

import (
	"strings"
	"time"

	"github.com/ignitionstack/ember/pkg/contract"
	"github.com/ignitionstack/ember/pkg/engine/config"
	"github.com/ignitionstack/ember/pkg/manifest"
)

// Plugin is a module that registered successfully, with its cached metadata.
// It is read-only once discovery returns it.
type Plugin struct {
	ID           string
	Path         string
	Module       *Module
	Info         contract.PluginInfo
	ExtraMenus   []contract.Menu
	Manifest     *manifest.PluginManifest
	Config       config.ImmutableConfig
	DiscoveredAt time.Time
}

// Implements reports whether the plugin exports a world function.
func (p *Plugin) Implements(export string) bool {
	return p.Module != nil && p.Module.HasExport(export)
}

// Menus returns the registered menus followed by management world extras.
func (p *Plugin) Menus() []contract.Menu {
	menus := make([]contract.Menu, 0, len(p.Info.Management.Menus)+len(p.ExtraMenus))
	menus = append(menus, p.Info.Management.Menus...)
	menus = append(menus, p.ExtraMenus...)
	return menus
}

// DefaultRoute is used when the plugin's manifest declares no routes.
func (p *Plugin) DefaultRoute() string {
	return "/plugins/" + p.ID
}

// Routes returns the URL prefixes the plugin serves.
func (p *Plugin) Routes() []string {
	if p.Manifest != nil && len(p.Manifest.Plugin.Routes) > 0 {
		return p.Manifest.Plugin.Routes
	}
	return []string{p.DefaultRoute()}
}

// matchRoute returns the length of the longest route matching url, or -1.
func (p *Plugin) matchRoute(url string) int {
	best := -1
	for _, route := range p.Routes() {
		if routeMatches(route, url) && len(route) > best {
			best = len(route)
		}
	}
	return best
}

func routeMatches(route, url string) bool {
	if route == "/" {
		return strings.HasPrefix(url, "/")
	}
	if !strings.HasPrefix(url, route) {
		return false
	}
	rest := url[len(route):]
	return rest == "" || rest[0] == '/' || rest[0] == '?'
}

// BareModule compiled but implements no plugin world. It is reported by
// discovery and never invoked.
type BareModule struct {
	ID      string
	Path    string
	Digest  string
	Exports []string
}

// Failure is a candidate discovery rejected.
type Failure struct {
	ID   string
	Path string
	Err  error
}
