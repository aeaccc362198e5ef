package types

import (
	"encoding/json"
	"time"
)

// PluginRequest identifies a plugin.
type PluginRequest struct {
	ID string `json:"id" validate:"required"`
}

// CallRequest asks the host to run one export of a plugin. For the load
// export URL and Query build the Request; for any other export Input is
// passed through as the raw argument.
type CallRequest struct {
	PluginRequest
	Export string          `json:"export,omitempty"`
	URL    string          `json:"url,omitempty" validate:"omitempty,startswith=/"`
	Query  string          `json:"query,omitempty"`
	Input  json.RawMessage `json:"input,omitempty"`
}

// CallResponse carries the output of a call.
type CallResponse struct {
	PluginID string          `json:"plugin_id"`
	Export   string          `json:"export"`
	Output   json.RawMessage `json:"output"`
	Duration string          `json:"duration"`
}

// FailureInfo is a rejected discovery candidate.
type FailureInfo struct {
	ID    string `json:"id"`
	Path  string `json:"path"`
	Error string `json:"error"`
}

// ReloadResponse summarizes a discovery pass.
type ReloadResponse struct {
	Generation uint64        `json:"generation"`
	Candidates int           `json:"candidates"`
	Plugins    []string      `json:"plugins"`
	Bare       []string      `json:"bare"`
	Failures   []FailureInfo `json:"failures"`
	Duration   string        `json:"duration"`
}

// EnableResponse reports the enablement after a change.
type EnableResponse struct {
	ID      string `json:"id"`
	Enabled bool   `json:"enabled"`
}

// LogsResponse carries rendered log lines of a plugin.
type LogsResponse struct {
	ID    string   `json:"id"`
	Lines []string `json:"lines"`
}

// MessageResponse is returned by endpoints with nothing else to report.
type MessageResponse struct {
	Message string `json:"message"`
}

// StatusResponse summarizes the running host.
type StatusResponse struct {
	HostVersion string    `json:"host_version"`
	Protocol    string    `json:"protocol"`
	Generation  uint64    `json:"generation"`
	Plugins     int       `json:"plugins"`
	Bare        int       `json:"bare"`
	Failures    int       `json:"failures"`
	LoadedAt    time.Time `json:"loaded_at,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	InFlight    int       `json:"in_flight"`
}

// PluginStatus is the admin view of one plugin id, live or not.
type PluginStatus struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Version   string    `json:"version,omitempty"`
	Digest    string    `json:"digest,omitempty"`
	Path      string    `json:"path"`
	Enabled   bool      `json:"enabled"`
	Status    string    `json:"status"`
	LastError string    `json:"last_error,omitempty"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Routes    []string  `json:"routes,omitempty"`
	Menus     int       `json:"menus"`
	Circuit   string    `json:"circuit,omitempty"`
	Live      bool      `json:"live"`
}
