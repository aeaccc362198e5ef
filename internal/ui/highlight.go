package ui

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
)

// HighlightJSON pretty prints JSON and colors it for the terminal. Input
// that is not JSON is returned unchanged; with plain set no colors are
// added.
func HighlightJSON(data []byte, plain bool) string {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		return string(data)
	}
	if plain || IsCI() {
		return pretty.String()
	}

	var out strings.Builder
	if err := quick.Highlight(&out, pretty.String(), "json", "terminal256", "monokai"); err != nil {
		return pretty.String()
	}
	return out.String()
}

// HighlightHTML colors markup returned by a plugin.
func HighlightHTML(markup string, plain bool) string {
	if plain || IsCI() {
		return markup
	}
	var out strings.Builder
	if err := quick.Highlight(&out, markup, "html", "terminal256", "monokai"); err != nil {
		return markup
	}
	return out.String()
}
