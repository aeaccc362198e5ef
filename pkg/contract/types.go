// Package contract holds the values exchanged between the host and plugins.
// Every value crosses the sandbox boundary as a JSON document.
package contract

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Protocol identifies the calling convention the host speaks.
const Protocol = "ember/1"

// World export names.
const (
	// ExportRegister is called once per plugin at discovery time.
	ExportRegister = "register"

	// ExportLoad renders a page fragment for a request.
	ExportLoad = "load"

	// ExportMenus contributes extra admin menu entries.
	ExportMenus = "menus"
)

// WorldExports lists every export the host knows how to call.
var WorldExports = []string{ExportRegister, ExportLoad, ExportMenus}

// HostInfo describes the host to a plugin during registration.
type HostInfo struct {
	Protocol string `json:"protocol"`
	Version  string `json:"version"`
}

// NewHostInfo returns the HostInfo sent to plugins.
func NewHostInfo(version string) HostInfo {
	return HostInfo{Protocol: Protocol, Version: version}
}

// Menu is one admin navigation entry.
type Menu struct {
	Path string `json:"path" validate:"required,startswith=/"`
	Name string `json:"name" validate:"required"`
}

// Management holds the admin contributions of a plugin.
type Management struct {
	Menus []Menu `json:"menus" validate:"dive"`
}

// PluginInfo is returned by the register export.
type PluginInfo struct {
	Name       string     `json:"name" validate:"required"`
	Version    string     `json:"version" validate:"required"`
	Management Management `json:"management"`
}

// Request is passed to the load export.
type Request struct {
	URL   string `json:"url" validate:"required"`
	Query string `json:"query"`
}

// Response is returned by the load export.
type Response struct {
	Head    []string `json:"head"`
	Body    string   `json:"body"`
	Scripts []string `json:"scripts"`
}

var validate = validator.New()

// Validate checks the plugin metadata.
func (i *PluginInfo) Validate() error {
	return formatValidation(validate.Struct(i))
}

// Validate checks a request before it is sent to a plugin.
func (r *Request) Validate() error {
	return formatValidation(validate.Struct(r))
}

// ValidateMenus checks a list of menus returned by the management world.
func ValidateMenus(menus []Menu) error {
	for i := range menus {
		if err := formatValidation(validate.Struct(&menus[i])); err != nil {
			return fmt.Errorf("menu %d: %w", i, err)
		}
	}
	return nil
}

// Struct validates any value using the shared validator.
func Struct(v interface{}) error {
	return formatValidation(validate.Struct(v))
}

func formatValidation(err error) error {
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Namespace()))
		case "startswith":
			msgs = append(msgs, fmt.Sprintf("%s must start with %q", fe.Namespace(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Namespace(), fe.Tag()))
		}
	}
	return fmt.Errorf("invalid %s", strings.Join(msgs, ", "))
}
