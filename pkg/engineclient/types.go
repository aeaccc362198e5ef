package engineclient

import "fmt"

// ErrorResponse is the JSON body the engine writes for failed requests.
//
//nolint:errname // mirrors the wire name
type ErrorResponse struct {
	Message  string `json:"error"`
	Status   int    `json:"status"`
	Domain   string `json:"domain,omitempty"`
	Code     string `json:"code,omitempty"`
	PluginID string `json:"plugin_id,omitempty"`
}

func (e ErrorResponse) Error() string {
	if e.Code == "" {
		return e.Message
	}
	if e.PluginID != "" {
		return fmt.Sprintf("%s (%s, plugin %s)", e.Message, e.Code, e.PluginID)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// BatchResult is the outcome of one plugin in a batch enablement change.
type BatchResult struct {
	ID      string
	Enabled bool
	Err     error
}
