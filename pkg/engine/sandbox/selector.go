package sandbox

import (
	"github.com/ignitionstack/ember/pkg/engine/errors"
)

// EnabledFunc reports whether a plugin may be selected.
type EnabledFunc func(pluginID string) bool

// Selector chooses the plugin that serves a call.
type Selector interface {
	Select(plugins []*Plugin, export string, enabled EnabledFunc) (*Plugin, error)
}

type byID string

// ByID selects a plugin by its id, the file name without extension.
func ByID(id string) Selector {
	return byID(id)
}

func (s byID) Select(plugins []*Plugin, _ string, enabled EnabledFunc) (*Plugin, error) {
	for _, p := range plugins {
		if p.ID != string(s) {
			continue
		}
		if !enabled(p.ID) {
			return nil, errors.ErrPluginDisabled.WithPlugin(p.ID)
		}
		return p, nil
	}
	return nil, errors.ErrPluginNotFound.WithPlugin(string(s))
}

type byRoute string

// ByRoute selects the enabled plugin with the longest route prefix matching url.
// Ties go to the plugin discovered first.
func ByRoute(url string) Selector {
	return byRoute(url)
}

func (s byRoute) Select(plugins []*Plugin, _ string, enabled EnabledFunc) (*Plugin, error) {
	var (
		best    *Plugin
		bestLen = -1
	)
	for _, p := range plugins {
		if !enabled(p.ID) {
			continue
		}
		if n := p.matchRoute(string(s)); n > bestLen {
			best, bestLen = p, n
		}
	}
	if best == nil {
		return nil, errors.ErrPluginNotFound.WithDetails(map[string]interface{}{"url": string(s)})
	}
	return best, nil
}

type first struct{}

// First selects the first enabled plugin, in discovery order, that exports
// the requested function.
func First() Selector {
	return first{}
}

func (first) Select(plugins []*Plugin, export string, enabled EnabledFunc) (*Plugin, error) {
	for _, p := range plugins {
		if enabled(p.ID) && p.Implements(export) {
			return p, nil
		}
	}
	return nil, errors.ErrPluginNotFound.WithExport(export)
}

func allEnabled(string) bool { return true }
